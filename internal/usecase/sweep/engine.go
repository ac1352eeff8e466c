package sweep

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/metrics"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

const (
	DefaultRetryCeiling = 10000
	DefaultRetryBackoff = 3 * time.Second
)

type RetryConfig struct {
	// Ceiling is the maximum number of attempts (entries into building) per transfer.
	Ceiling     int
	Backoff     time.Duration
	NonceSource model.NonceSource
}

type EngineDeps struct {
	Chain     repository.ChainRepository
	Fees      FeeQuoter
	Builder   *Builder
	Submitter *Submitter
	Signer    repository.SignerRepository
	ChainID   *big.Int
	// Balance, when set, is re-read for SweepAll requests whenever nonce and fee are refreshed after a failure.
	Balance repository.BalanceRepository
}

type EngineOption func(*Engine)

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

func WithIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) {
		e.newID = newID
	}
}

// Engine drives one logical transfer at a time through build, sign and submit, retrying transient failures.
type Engine struct {
	deps  EngineDeps
	cfg   RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

func NewEngine(deps EngineDeps, cfg RetryConfig, opts ...EngineOption) *Engine {
	if cfg.Ceiling < 1 {
		cfg.Ceiling = DefaultRetryCeiling
	}
	if cfg.NonceSource == "" {
		cfg.NonceSource = model.NonceSourceLatest
	}
	e := &Engine{
		deps:  deps,
		cfg:   cfg,
		sleep: sleepContext,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Address() common.Address {
	return e.deps.Signer.Address()
}

// transfer is the state of one logical transfer. It never outlives Transfer.
type transfer struct {
	result  *model.TransferResult
	logger  zerolog.Logger
	stale   bool
	nonce   uint64
	fee     model.FeeQuote
	amount  *big.Int
	utx     *model.UnsignedTransaction
	signed  *types.Transaction
	attempt model.SubmissionAttempt
	err     *model.TransferError
}

// Transfer runs req to a terminal state. The result is always returned; err is a *model.TransferError
// (wrapped) when the transfer was aborted or exhausted its retries.
func (e *Engine) Transfer(ctx context.Context, req model.TransferRequest) (*model.TransferResult, error) {
	funcName := util.FuncName()
	started := time.Now()

	t := &transfer{
		result: &model.TransferResult{
			ID:      e.newID(),
			Request: req,
			State:   model.StateBuilding,
		},
		stale:  true,
		amount: req.Amount,
	}
	t.logger = log.With().
		Str("transferID", t.result.ID).
		Str("asset", string(req.Kind)).
		Str("recipient", req.Recipient.Hex()).
		Logger()

	// Signing and broadcasting are not interrupted by cancellation once started; RPC timeouts still apply.
	inFlight := context.WithoutCancel(ctx)

	for !t.result.State.Terminal() {
		switch t.result.State {
		case model.StateBuilding:
			e.build(ctx, t)
		case model.StateSigning:
			e.signTx(inFlight, t)
		case model.StateSubmitting:
			e.submit(inFlight, t)
		case model.StateRetrying:
			e.retry(ctx, t)
		}
	}

	metrics.TransferDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(started).Seconds())

	if t.result.State == model.StateSucceeded {
		metrics.TransfersTotal.WithLabelValues(string(req.Kind), "succeeded").Inc()
		t.logger.Info().
			Str("txHash", t.result.Receipt.TxHash.Hex()).
			Uint64("nonce", t.result.Receipt.Nonce).
			Int("attempts", len(t.result.Attempts)).
			Msg(util.WrapLogMessage(packageName, funcName, "transfer succeeded"))
		return t.result, nil
	}

	resultLabel := "aborted"
	switch {
	case len(t.err.Unconfirmed) > 0:
		resultLabel = "unconfirmed"
	case t.err.Exhausted:
		resultLabel = "exhausted"
	}
	metrics.TransfersTotal.WithLabelValues(string(req.Kind), resultLabel).Inc()

	event := t.logger.Error()
	if len(t.err.Unconfirmed) > 0 {
		hashes := make([]string, len(t.err.Unconfirmed))
		for i, h := range t.err.Unconfirmed {
			hashes[i] = h.Hex()
		}
		event = t.logger.Warn().Strs("possiblyMined", hashes)
	}
	event.
		Int("attempts", len(t.result.Attempts)).
		Str("lastErrorClass", string(t.err.LastClass)).
		Err(t.err).
		Msg(util.WrapLogMessage(packageName, funcName, "transfer "+resultLabel))

	return t.result, util.WrapErrorForLog(packageName, funcName, t.err)
}

func (e *Engine) build(ctx context.Context, t *transfer) {
	if err := ctx.Err(); err != nil {
		e.abort(t, model.ErrorClassCanceled, err, false)
		return
	}

	t.attempt = model.SubmissionAttempt{
		Number:  len(t.result.Attempts) + 1,
		Outcome: model.OutcomePending,
	}

	if t.stale {
		if err := e.refresh(ctx, t); err != nil {
			e.fail(t, err)
			return
		}
		t.stale = false
	}
	t.attempt.Nonce = t.nonce
	t.attempt.Fee = t.fee

	utx, err := e.deps.Builder.Build(ctx, BuildParams{
		Kind:      t.result.Request.Kind,
		From:      e.deps.Signer.Address(),
		Recipient: t.result.Request.Recipient,
		Amount:    t.amount,
		SweepAll:  t.result.Request.SweepAll,
		ChainID:   e.deps.ChainID,
		Nonce:     t.nonce,
		Fee:       t.fee,
	})
	if err != nil {
		e.fail(t, err)
		return
	}
	t.utx = utx
	t.result.State = model.StateSigning
}

// refresh re-reads the nonce, the balance of SweepAll transfers after a failure, and the fee quote.
func (e *Engine) refresh(ctx context.Context, t *transfer) error {
	from := e.deps.Signer.Address()

	var (
		nonce uint64
		err   error
	)
	if e.cfg.NonceSource == model.NonceSourcePending {
		nonce, err = e.deps.Chain.PendingNonceAt(ctx, from)
	} else {
		nonce, err = e.deps.Chain.NonceAt(ctx, from)
	}
	if err != nil {
		return err
	}

	if t.result.Request.SweepAll && e.deps.Balance != nil && len(t.result.Attempts) > 0 {
		balance, err := e.deps.Balance.Balance(ctx, from)
		if err != nil {
			return err
		}
		if t.amount == nil || balance.Cmp(t.amount) != 0 {
			t.logger.Info().Str("previous", t.amount.String()).Str("current", balance.String()).
				Msg(util.WrapLogMessage(packageName, "refresh", "balance changed since the transfer was requested"))
		}
		t.amount = balance
	}

	t.nonce = nonce
	t.fee = e.deps.Fees.Estimate(ctx)
	return nil
}

func (e *Engine) signTx(ctx context.Context, t *transfer) {
	signed, err := e.deps.Submitter.Sign(ctx, t.utx, e.deps.Signer)
	if err != nil {
		e.fail(t, err)
		return
	}
	t.signed = signed
	t.attempt.TxHash = signed.Hash()
	t.result.State = model.StateSubmitting
}

func (e *Engine) submit(ctx context.Context, t *transfer) {
	receipt, err := e.deps.Submitter.Broadcast(ctx, t.signed, t.utx)
	if err != nil {
		e.fail(t, err)
		return
	}

	t.attempt.Outcome = model.OutcomeConfirmed
	t.result.Attempts = append(t.result.Attempts, t.attempt)
	metrics.SubmissionAttemptsTotal.WithLabelValues(string(model.OutcomeConfirmed), "").Inc()

	receipt.Attempts = len(t.result.Attempts)
	t.result.Receipt = receipt
	t.result.State = model.StateSucceeded
}

func (e *Engine) retry(ctx context.Context, t *transfer) {
	last := t.result.LastAttempt()
	if last.ErrorClass.RefreshesNonceAndFee() {
		t.stale = true
	}

	t.logger.Warn().
		Int("attempt", last.Number).
		Str("errorClass", string(last.ErrorClass)).
		Bool("refreshNonceAndFee", t.stale).
		Dur("backoff", e.cfg.Backoff).
		Err(last.Err).
		Msg(util.WrapLogMessage(packageName, "retry", "transient failure, retrying"))

	if err := e.sleep(ctx, e.cfg.Backoff); err != nil {
		e.abort(t, model.ErrorClassCanceled, err, false)
		return
	}
	t.result.State = model.StateBuilding
}

// fail records the current attempt as failed and picks the next state from the error class.
func (e *Engine) fail(t *transfer, err error) {
	class := model.ClassOf(err)

	t.attempt.Outcome = model.OutcomeFailed
	t.attempt.ErrorClass = class
	t.attempt.Err = err
	t.result.Attempts = append(t.result.Attempts, t.attempt)
	metrics.SubmissionAttemptsTotal.WithLabelValues(string(model.OutcomeFailed), string(class)).Inc()

	switch {
	case class == model.ErrorClassNoFunds && t.result.Request.SweepAll:
		// An empty balance after a timed-out broadcast means that broadcast most likely went through.
		e.abort(t, class, err, false)
		t.err.Unconfirmed = timedOutBroadcasts(t.result.Attempts)
	case !class.Transient():
		e.abort(t, class, err, false)
	case len(t.result.Attempts) >= e.cfg.Ceiling:
		e.abort(t, class, err, true)
	default:
		t.result.State = model.StateRetrying
	}
}

func (e *Engine) abort(t *transfer, class model.ErrorClass, err error, exhausted bool) {
	t.err = &model.TransferError{
		Exhausted: exhausted,
		Attempts:  len(t.result.Attempts),
		LastClass: class,
		Err:       err,
	}
	t.result.State = model.StateAborted
}

// timedOutBroadcasts returns the distinct hashes of attempts whose broadcast failed without a node verdict.
func timedOutBroadcasts(attempts []model.SubmissionAttempt) []common.Hash {
	var hashes []common.Hash
	seen := make(map[common.Hash]bool)
	for _, a := range attempts {
		if a.TxHash == (common.Hash{}) || seen[a.TxHash] {
			continue
		}
		if a.ErrorClass != model.ErrorClassNetworkTimeout && a.ErrorClass != model.ErrorClassConnectionFailure {
			continue
		}
		seen[a.TxHash] = true
		hashes = append(hashes, a.TxHash)
	}
	return hashes
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
