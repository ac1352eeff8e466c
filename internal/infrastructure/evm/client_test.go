package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
)

// fakeBackend answers from fixed values; a nil func field means "block until ctx is done".
type fakeBackend struct {
	header      *types.Header
	gasPrice    *big.Int
	nonce       uint64
	pending     uint64
	balance     *big.Int
	callResult  []byte
	callMsg     ethereum.CallMsg
	sendErr     error
	estimate    func(ctx context.Context) (uint64, error)
	sentTxs     []*types.Transaction
	nonceBlocks []*big.Int
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(model.BlockchainDecimalHardhatLocal), nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return f.header, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeBackend) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	f.nonceBlocks = append(f.nonceBlocks, blockNumber)
	return f.nonce, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.pending, nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.estimate == nil {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.estimate(ctx)
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sentTxs = append(f.sentTxs, tx)
	return f.sendErr
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.callMsg = msg
	return f.callResult, nil
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	t.Parallel()

	c := New(&fakeBackend{}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := c.EstimateGas(context.Background(), ethereum.CallMsg{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, model.ErrorClassNetworkTimeout, model.ClassOf(err))
	assert.True(t, model.ClassOf(err).Transient())
}

func TestClient_SendTransactionClassifies(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{sendErr: testRPCError{code: -32000, msg: "nonce too low"}}
	c := New(backend)

	tx := types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, Value: big.NewInt(1)})
	err := c.SendTransaction(context.Background(), tx)
	require.Error(t, err)
	assert.Equal(t, model.ErrorClassNonceTooLow, model.ClassOf(err))
	assert.Len(t, backend.sentTxs, 1)

	var se *model.SubmissionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, opSendTransaction, se.Op)
}

func TestClient_NonceReadsLatestState(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{nonce: 4, pending: 6}
	c := New(backend)

	nonce, err := c.NonceAt(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), nonce)
	require.Len(t, backend.nonceBlocks, 1)
	assert.Nil(t, backend.nonceBlocks[0])

	pending, err := c.PendingNonceAt(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), pending)
}

func TestClient_PassThrough(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		header:   &types.Header{BaseFee: big.NewInt(30)},
		gasPrice: big.NewInt(5),
		balance:  big.NewInt(1_000_000),
		estimate: func(ctx context.Context) (uint64, error) { return 51234, nil },
	}
	c := New(backend, WithLimiter(NewLimiter(1000, 10)))
	ctx := context.Background()

	header, err := c.LatestHeader(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), header.BaseFee.Int64())

	gasPrice, err := c.SuggestGasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), gasPrice.Int64())

	balance, err := c.BalanceAt(ctx, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), balance.Int64())

	gas, err := c.EstimateGas(ctx, ethereum.CallMsg{})
	require.NoError(t, err)
	assert.Equal(t, uint64(51234), gas)

	chainID, err := c.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(model.BlockchainDecimalHardhatLocal), chainID.Int64())
}

func TestLimiter_CanceledWait(t *testing.T) {
	t.Parallel()

	l := NewLimiter(0.001, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)

	var disabled *Limiter
	assert.NoError(t, disabled.Wait(context.Background()))
	assert.Nil(t, NewLimiter(0, 1))
}
