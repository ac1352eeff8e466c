package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

type Submitter struct {
	chain repository.ChainRepository
	now   func() time.Time
}

func NewSubmitter(chain repository.ChainRepository) *Submitter {
	return &Submitter{
		chain: chain,
		now:   time.Now,
	}
}

// Submit signs utx with signer and broadcasts it.
func (s *Submitter) Submit(ctx context.Context, utx *model.UnsignedTransaction, signer repository.SignerRepository) (*model.Receipt, error) {
	signedTx, err := s.Sign(ctx, utx, signer)
	if err != nil {
		return nil, err
	}
	return s.Broadcast(ctx, signedTx, utx)
}

func (s *Submitter) Sign(ctx context.Context, utx *model.UnsignedTransaction, signer repository.SignerRepository) (*types.Transaction, error) {
	funcName := util.FuncName()

	if signer.Address() != utx.From {
		return nil, util.WrapErrorForLog(packageName, funcName,
			model.NewSubmissionError(model.ErrorClassSigningFailure, "sign", fmt.Errorf("signer %s does not own sender %s", signer.Address().Hex(), utx.From.Hex())))
	}

	signedTx, err := signer.SignTx(ctx, utx.Transaction(), utx.ChainID)
	if err != nil {
		if model.ClassOf(err) == model.ErrorClassRejected {
			err = model.NewSubmissionError(model.ErrorClassSigningFailure, "sign", err)
		}
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to sign transaction: %w", err))
	}
	return signedTx, nil
}

// Broadcast sends signedTx and returns once the node accepted or rejected it. It does not wait for inclusion.
func (s *Submitter) Broadcast(ctx context.Context, signedTx *types.Transaction, utx *model.UnsignedTransaction) (*model.Receipt, error) {
	funcName := util.FuncName()

	err := s.chain.SendTransaction(ctx, signedTx)
	switch class := model.ClassOf(err); {
	case err == nil:
	case class == model.ErrorClassAlreadyKnown:
		log.Info().Str("txHash", signedTx.Hash().Hex()).Uint64("nonce", signedTx.Nonce()).
			Msg(util.WrapLogMessage(packageName, funcName, "node already has the transaction, treating as accepted"))
	default:
		log.Warn().Str("txHash", signedTx.Hash().Hex()).Uint64("nonce", signedTx.Nonce()).Str("errorClass", string(class)).Err(err).
			Msg(util.WrapLogMessage(packageName, funcName, "broadcast rejected"))
		return nil, util.WrapErrorForLog(packageName, funcName, err)
	}

	receipt := &model.Receipt{
		TxHash:      signedTx.Hash(),
		Nonce:       signedTx.Nonce(),
		From:        utx.From,
		To:          utx.To,
		Recipient:   utx.Recipient,
		Amount:      utx.Amount,
		SubmittedAt: s.now(),
	}
	log.Info().
		Str("txHash", receipt.TxHash.Hex()).
		Uint64("nonce", receipt.Nonce).
		Str("from", receipt.From.Hex()).
		Str("recipient", receipt.Recipient.Hex()).
		Str("amount", receipt.Amount.String()).
		Msg(util.WrapLogMessage(packageName, funcName, "transaction accepted"))

	return receipt, nil
}
