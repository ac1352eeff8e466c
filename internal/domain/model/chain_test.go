package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasGasStation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		chainID *big.Int
		want    bool
	}{
		{chainID: big.NewInt(BlockchainDecimalEthereum), want: false},
		{chainID: big.NewInt(BlockchainDecimalBSC), want: false},
		{chainID: big.NewInt(BlockchainDecimalMainnet), want: true},
		{chainID: big.NewInt(BlockchainDecimalAmoy), want: true},
		{chainID: big.NewInt(BlockchainDecimalHardhatLocal), want: false},
		{chainID: nil, want: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HasGasStation(tt.chainID), "chain %v", tt.chainID)
	}
}

func TestChainName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "polygon", ChainName(big.NewInt(BlockchainDecimalMainnet)))
	assert.Equal(t, "bsc", ChainName(big.NewInt(BlockchainDecimalBSC)))
	assert.Equal(t, "42161", ChainName(big.NewInt(42161)))
	assert.Equal(t, "unknown", ChainName(nil))
}

func TestNonceSource_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, NonceSourceLatest.Valid())
	assert.True(t, NonceSourcePending.Valid())
	assert.False(t, NonceSource("safe").Valid())
	assert.False(t, NonceSource("").Valid())
}
