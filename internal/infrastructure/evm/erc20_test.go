package evm

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testToken     = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testRecipient = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func TestERC20Token_TransferCallData(t *testing.T) {
	t.Parallel()

	token := NewERC20Token(testToken, New(&fakeBackend{}))

	data, err := token.TransferCallData(testRecipient, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Len(t, data, 4+32+32)

	assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	assert.Equal(t, common.LeftPadBytes(testRecipient.Bytes(), 32), data[4:36])
	assert.Equal(t, common.LeftPadBytes(big.NewInt(1_000_000).Bytes(), 32), data[36:])
	assert.Equal(t, testToken, token.Address())
}

func TestERC20Token_Balance(t *testing.T) {
	t.Parallel()

	owner := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	backend := &fakeBackend{callResult: common.LeftPadBytes(big.NewInt(1_000_000).Bytes(), 32)}
	token := NewERC20Token(testToken, New(backend))

	balance, err := token.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), balance.Int64())

	require.NotNil(t, backend.callMsg.To)
	assert.Equal(t, testToken, *backend.callMsg.To)
	assert.Equal(t, "70a08231", hex.EncodeToString(backend.callMsg.Data[:4]))
	assert.Equal(t, common.LeftPadBytes(owner.Bytes(), 32), backend.callMsg.Data[4:])
}

func TestERC20Token_BalanceOfNonContract(t *testing.T) {
	t.Parallel()

	token := NewERC20Token(testToken, New(&fakeBackend{callResult: nil}))

	_, err := token.Balance(context.Background(), testRecipient)
	assert.Error(t, err)
}

func TestNativeBalance(t *testing.T) {
	t.Parallel()

	balance, err := NewNativeBalance(New(&fakeBackend{balance: big.NewInt(42)})).Balance(context.Background(), testRecipient)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.Int64())
}
