package sweep

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

type BuilderConfig struct {
	NativeGasLimit   uint64
	TokenGasLimit    uint64
	EstimateTokenGas bool
}

type Builder struct {
	token repository.TokenRepository
	gas   GasEstimator
	cfg   BuilderConfig
}

// NewBuilder returns a builder. token is nil for native-only sweepers; gas is only used with EstimateTokenGas.
func NewBuilder(token repository.TokenRepository, gas GasEstimator, cfg BuilderConfig) *Builder {
	return &Builder{
		token: token,
		gas:   gas,
		cfg:   cfg,
	}
}

type BuildParams struct {
	Kind      model.AssetKind
	From      common.Address
	Recipient common.Address
	Amount    *big.Int
	SweepAll  bool
	ChainID   *big.Int
	Nonce     uint64
	Fee       model.FeeQuote
}

// Build assembles one attempt of a transfer. The result depends only on p, apart from an optional
// token gas estimate.
func (b *Builder) Build(ctx context.Context, p BuildParams) (*model.UnsignedTransaction, error) {
	funcName := util.FuncName()

	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("%w: amount %v", model.ErrNoFundsToTransfer, p.Amount))
	}
	if p.Recipient == (common.Address{}) || p.Recipient == p.From {
		return nil, util.WrapErrorForLog(packageName, funcName,
			model.NewSubmissionError(model.ErrorClassInvalidRecipient, "build", fmt.Errorf("recipient %s is not a valid sweep target", p.Recipient.Hex())))
	}
	if p.ChainID == nil {
		return nil, util.WrapErrorForLog(packageName, funcName,
			model.NewSubmissionError(model.ErrorClassRejected, "build", errors.New("chain id is not set")))
	}
	if p.Fee.FeeCap() == nil {
		return nil, util.WrapErrorForLog(packageName, funcName,
			model.NewSubmissionError(model.ErrorClassRejected, "build", errors.New("fee quote is empty")))
	}

	utx := &model.UnsignedTransaction{
		Kind:      p.Kind,
		ChainID:   new(big.Int).Set(p.ChainID),
		From:      p.From,
		Recipient: p.Recipient,
		Nonce:     p.Nonce,
		Fee:       p.Fee,
	}

	switch p.Kind {
	case model.AssetKindNative:
		value := new(big.Int).Set(p.Amount)
		if p.SweepAll {
			value.Sub(value, p.Fee.MaxCost(b.cfg.NativeGasLimit))
			if value.Sign() <= 0 {
				return nil, util.WrapErrorForLog(packageName, funcName,
					fmt.Errorf("%w: balance %s does not cover max fee %s", model.ErrNoFundsToTransfer, p.Amount, p.Fee.MaxCost(b.cfg.NativeGasLimit)))
			}
		}
		utx.To = p.Recipient
		utx.GasLimit = b.cfg.NativeGasLimit
		utx.Value = value
		utx.Amount = new(big.Int).Set(value)

	case model.AssetKindToken:
		if b.token == nil {
			return nil, util.WrapErrorForLog(packageName, funcName,
				model.NewSubmissionError(model.ErrorClassRejected, "build", errors.New("token contract is not configured")))
		}
		if p.Recipient == b.token.Address() {
			return nil, util.WrapErrorForLog(packageName, funcName,
				model.NewSubmissionError(model.ErrorClassInvalidRecipient, "build", errors.New("recipient is the token contract")))
		}
		data, err := b.token.TransferCallData(p.Recipient, p.Amount)
		if err != nil {
			return nil, util.WrapErrorForLog(packageName, funcName,
				model.NewSubmissionError(model.ErrorClassRejected, "build", err))
		}

		gasLimit := b.cfg.TokenGasLimit
		if b.cfg.EstimateTokenGas {
			gasLimit, err = b.gas.EstimateGas(ctx, ethereum.CallMsg{
				From: p.From,
				To:   util.Pointer(b.token.Address()),
				Data: data,
			})
			if err != nil {
				return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to estimate token transfer gas: %w", err))
			}
		}

		utx.To = b.token.Address()
		utx.GasLimit = gasLimit
		utx.Value = new(big.Int)
		utx.Data = data
		utx.Amount = new(big.Int).Set(p.Amount)

	default:
		return nil, util.WrapErrorForLog(packageName, funcName,
			model.NewSubmissionError(model.ErrorClassRejected, "build", fmt.Errorf("unknown asset kind %q", p.Kind)))
	}

	return utx, nil
}
