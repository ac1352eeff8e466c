package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/metrics"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

const packageName = "evm"

const (
	opChainID         = "eth_chainId"
	opGetBlock        = "eth_getBlockByNumber"
	opGasPrice        = "eth_gasPrice"
	opNonce           = "eth_getTransactionCount"
	opEstimateGas     = "eth_estimateGas"
	opSendTransaction = "eth_sendRawTransaction"
	opBalance         = "eth_getBalance"
	opCall            = "eth_call"
)

const DefaultTimeout = 15 * time.Second

// Backend is the subset of the go-ethereum client API the sweeper uses.
// Both *ethclient.Client and the simulated backend client satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type client struct {
	backend Backend
	timeout time.Duration
	limiter *Limiter
}

type Option func(*client)

// WithTimeout bounds every call. Expiry is reported as a network_timeout error.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		c.timeout = d
	}
}

func WithLimiter(l *Limiter) Option {
	return func(c *client) {
		c.limiter = l
	}
}

func New(backend Backend, opts ...Option) repository.ChainRepository {
	c := &client{
		backend: backend,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) ChainID(ctx context.Context) (*big.Int, error) {
	var chainID *big.Int
	err := c.call(ctx, opChainID, func(ctx context.Context) (err error) {
		chainID, err = c.backend.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to get chain id: %w", err))
	}
	return chainID, nil
}

func (c *client) LatestHeader(ctx context.Context) (*types.Header, error) {
	var header *types.Header
	err := c.call(ctx, opGetBlock, func(ctx context.Context) (err error) {
		header, err = c.backend.HeaderByNumber(ctx, nil)
		return err
	})
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to get latest header: %w", err))
	}
	return header, nil
}

func (c *client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var gasPrice *big.Int
	err := c.call(ctx, opGasPrice, func(ctx context.Context) (err error) {
		gasPrice, err = c.backend.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to get gas price: %w", err))
	}
	return gasPrice, nil
}

func (c *client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.call(ctx, opNonce, func(ctx context.Context) (err error) {
		nonce, err = c.backend.NonceAt(ctx, account, nil)
		return err
	})
	if err != nil {
		return 0, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to get nonce: %w", err))
	}
	return nonce, nil
}

func (c *client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.call(ctx, opNonce, func(ctx context.Context) (err error) {
		nonce, err = c.backend.PendingNonceAt(ctx, account)
		return err
	})
	if err != nil {
		return 0, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to get pending nonce: %w", err))
	}
	return nonce, nil
}

func (c *client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.call(ctx, opEstimateGas, func(ctx context.Context) (err error) {
		gas, err = c.backend.EstimateGas(ctx, msg)
		return err
	})
	if err != nil {
		return 0, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to estimate gas: %w", err))
	}
	return gas, nil
}

func (c *client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := c.call(ctx, opSendTransaction, func(ctx context.Context) error {
		return c.backend.SendTransaction(ctx, tx)
	})
	if err != nil {
		return util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to send transaction %s: %w", tx.Hash().Hex(), err))
	}
	return nil
}

func (c *client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.call(ctx, opBalance, func(ctx context.Context) (err error) {
		balance, err = c.backend.BalanceAt(ctx, account, nil)
		return err
	})
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to get balance: %w", err))
	}
	return balance, nil
}

func (c *client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.call(ctx, opCall, func(ctx context.Context) (err error) {
		out, err = c.backend.CallContract(ctx, msg, nil)
		return err
	})
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to call contract: %w", err))
	}
	return out, nil
}

// call applies the rate limit and timeout, then classifies the result.
func (c *client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		err = classify(op, err)
		metrics.RPCCallsTotal.WithLabelValues(op, string(model.ClassOf(err))).Inc()
		return err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := classify(op, fn(ctx))
	class := model.ClassOf(err)
	if class == model.ErrorClassNone {
		class = "ok"
	}
	metrics.RPCCallsTotal.WithLabelValues(op, string(class)).Inc()
	return err
}
