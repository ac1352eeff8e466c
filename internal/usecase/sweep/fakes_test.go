package sweep

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/infrastructure/wallet"
)

var (
	testChainID   = big.NewInt(model.BlockchainDecimalHardhatLocal)
	testRecipient = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	testToken     = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	gwei = big.NewInt(1_000_000_000)
)

func gweiOf(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), gwei)
}

var bigIntComparer = cmp.Comparer(func(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
})

// fakeChain plays the RPC node. Sequences return their last element once exhausted.
type fakeChain struct {
	baseFees  []*big.Int
	headerErr error
	gasPrice  *big.Int
	priceErr  error

	nonces       []uint64
	pendingNonce uint64

	estimate     uint64
	estimateErr  error
	estimateMsgs []ethereum.CallMsg

	sendErrs []error
	sendErr  error // after sendErrs is exhausted
	sent     []*types.Transaction

	balances []*big.Int

	headerCalls  int
	nonceCalls   int
	pendingCalls int
	balanceCalls int
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(testChainID), nil
}

func (f *fakeChain) LatestHeader(ctx context.Context) (*types.Header, error) {
	f.headerCalls++
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	header := &types.Header{Number: big.NewInt(100)}
	if len(f.baseFees) > 0 {
		header.BaseFee = f.baseFees[min(f.headerCalls, len(f.baseFees))-1]
	}
	return header, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, f.priceErr
}

func (f *fakeChain) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.nonceCalls++
	if len(f.nonces) == 0 {
		return 0, nil
	}
	return f.nonces[min(f.nonceCalls, len(f.nonces))-1], nil
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.pendingCalls++
	return f.pendingNonce, nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.estimateMsgs = append(f.estimateMsgs, msg)
	return f.estimate, f.estimateErr
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	if i := len(f.sent) - 1; i < len(f.sendErrs) {
		return f.sendErrs[i]
	}
	return f.sendErr
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	f.balanceCalls++
	if len(f.balances) == 0 {
		return new(big.Int), nil
	}
	return f.balances[min(f.balanceCalls, len(f.balances))-1], nil
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return nil, errors.New("not implemented")
}

var _ repository.ChainRepository = (*fakeChain)(nil)

// sendFailure emulates an error already classified at the RPC boundary.
func sendFailure(class model.ErrorClass, msg string) error {
	return model.NewSubmissionError(class, "eth_sendRawTransaction", errors.New(msg))
}

func newTestSigner(t *testing.T) repository.SignerRepository {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet.NewLocalSigner(key)
}

func testFeeConfig(mode model.FeeMode) FeeConfig {
	return FeeConfig{
		Mode:                mode,
		PriorityFee:         gweiOf(2),
		StationTier:         model.GasStationTierStandard,
		FallbackMaxFee:      gweiOf(7),
		FallbackPriorityFee: gweiOf(2),
		FallbackGasPrice:    gweiOf(5),
	}
}

func testBuilderConfig() BuilderConfig {
	return BuilderConfig{
		NativeGasLimit: 21000,
		TokenGasLimit:  200000,
	}
}

// recordingSleep counts backoff waits without sleeping.
type recordingSleep struct {
	calls     int
	durations []time.Duration
	err       error
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.calls++
	r.durations = append(r.durations, d)
	return r.err
}
