package model

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestUnsignedTransaction_Transaction(t *testing.T) {
	t.Parallel()

	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	t.Run("dynamic fee", func(t *testing.T) {
		t.Parallel()

		utx := &UnsignedTransaction{
			ChainID:  big.NewInt(BlockchainDecimalAmoy),
			To:       to,
			Nonce:    7,
			Fee:      NewDynamicFeeQuote(FeeSourceLive, big.NewInt(32), big.NewInt(2)),
			GasLimit: 21000,
			Value:    big.NewInt(1_000_000),
		}

		tx := utx.Transaction()
		assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		assert.Equal(t, uint64(7), tx.Nonce())
		assert.Equal(t, int64(32), tx.GasFeeCap().Int64())
		assert.Equal(t, int64(2), tx.GasTipCap().Int64())
		assert.Equal(t, uint64(21000), tx.Gas())
		assert.Equal(t, to, *tx.To())
		assert.Equal(t, int64(1_000_000), tx.Value().Int64())
		assert.Equal(t, int64(BlockchainDecimalAmoy), tx.ChainId().Int64())
	})

	t.Run("legacy", func(t *testing.T) {
		t.Parallel()

		utx := &UnsignedTransaction{
			ChainID:  big.NewInt(BlockchainDecimalBSC),
			To:       to,
			Fee:      NewLegacyFeeQuote(FeeSourceFallback, big.NewInt(5_000_000_000)),
			GasLimit: 200000,
			Data:     []byte{0xa9, 0x05, 0x9c, 0xbb},
		}

		tx := utx.Transaction()
		assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
		assert.Equal(t, int64(5_000_000_000), tx.GasPrice().Int64())
		assert.Equal(t, int64(0), tx.Value().Int64())
		assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, tx.Data())
	})
}

func TestFeeQuote_Immutable(t *testing.T) {
	t.Parallel()

	maxFee := big.NewInt(32)
	q := NewDynamicFeeQuote(FeeSourceLive, maxFee, big.NewInt(2))
	maxFee.SetInt64(1)
	q.MaxFeePerGas().SetInt64(99)

	assert.Equal(t, int64(32), q.MaxFeePerGas().Int64())
	assert.Equal(t, int64(32*21000), q.MaxCost(21000).Int64())
	assert.True(t, q.Equal(NewDynamicFeeQuote(FeeSourceLive, big.NewInt(32), big.NewInt(2))))
	assert.False(t, q.Equal(NewDynamicFeeQuote(FeeSourceFallback, big.NewInt(32), big.NewInt(2))))
	assert.Equal(t, "maxFeePerGas=32 maxPriorityFeePerGas=2", q.String())
}

func TestChainName_Transfer(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "polygon", ChainName(big.NewInt(BlockchainDecimalMainnet)))
	assert.Equal(t, "10", ChainName(big.NewInt(10)))
	assert.Equal(t, "unknown", ChainName(nil))
}
