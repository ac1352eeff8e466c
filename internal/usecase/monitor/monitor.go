package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/metrics"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

const packageName = "monitor"

const (
	DefaultInterval = 5 * time.Second
	DefaultMaxTicks = 10000
)

// ErrTickInFlight is returned by Tick while another tick is still running.
var ErrTickInFlight = errors.New("a tick is already in flight")

// Transferer moves funds for one request. *sweep.Engine implements it.
type Transferer interface {
	Address() common.Address
	Transfer(ctx context.Context, req model.TransferRequest) (*model.TransferResult, error)
}

type Config struct {
	Kind      model.AssetKind
	Recipient common.Address
	// Threshold is the balance (in base units) that must be exceeded before a transfer is triggered.
	Threshold *big.Int
	Interval  time.Duration
	// MaxTicks bounds Run. Zero means unbounded.
	MaxTicks int
	// Decimals is only used to render balances in logs.
	Decimals int32
}

type TickResult string

const (
	TickIdle      TickResult = "idle"
	TickSwept     TickResult = "swept"
	TickFailed    TickResult = "failed"
	TickReadError TickResult = "read_error"
)

type Monitor struct {
	engine   Transferer
	balance  repository.BalanceRepository
	cfg      Config
	inFlight atomic.Bool
	newTick  func(d time.Duration) (<-chan time.Time, func())
}

func NewMonitor(engine Transferer, balance repository.BalanceRepository, cfg Config) *Monitor {
	if cfg.Threshold == nil {
		cfg.Threshold = new(big.Int)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxTicks < 0 {
		cfg.MaxTicks = 0
	}
	return &Monitor{
		engine:  engine,
		balance: balance,
		cfg:     cfg,
		newTick: func(d time.Duration) (<-chan time.Time, func()) {
			ticker := time.NewTicker(d)
			return ticker.C, ticker.Stop
		},
	}
}

// Tick reads the balance once and, when it exceeds the threshold, hands the whole balance to the engine.
// It returns the engine's result, or nil when nothing was transferred.
func (m *Monitor) Tick(ctx context.Context) (*model.TransferResult, error) {
	funcName := util.FuncName()

	if !m.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTickInFlight
	}
	defer m.inFlight.Store(false)

	owner := m.engine.Address()
	balance, err := m.balance.Balance(ctx, owner)
	if err != nil {
		metrics.MonitorTicksTotal.WithLabelValues(string(TickReadError)).Inc()
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to read balance: %w", err))
	}
	balanceFloat, _ := decimal.NewFromBigInt(balance, 0).Float64()
	metrics.ObservedBalance.WithLabelValues(string(m.cfg.Kind)).Set(balanceFloat)

	log.Debug().
		Str("owner", owner.Hex()).
		Str("balance", util.FormatUnits(balance, m.cfg.Decimals)).
		Str("threshold", util.FormatUnits(m.cfg.Threshold, m.cfg.Decimals)).
		Msg(util.WrapLogMessage(packageName, funcName, "balance observed"))

	if balance.Cmp(m.cfg.Threshold) <= 0 {
		metrics.MonitorTicksTotal.WithLabelValues(string(TickIdle)).Inc()
		return nil, nil
	}

	log.Info().
		Str("owner", owner.Hex()).
		Str("balance", util.FormatUnits(balance, m.cfg.Decimals)).
		Msg(util.WrapLogMessage(packageName, funcName, "balance above threshold, sweeping"))

	result, err := m.engine.Transfer(ctx, model.TransferRequest{
		Kind:      m.cfg.Kind,
		Recipient: m.cfg.Recipient,
		Amount:    new(big.Int).Set(balance),
		SweepAll:  m.cfg.Kind == model.AssetKindNative,
	})
	if err != nil {
		metrics.MonitorTicksTotal.WithLabelValues(string(TickFailed)).Inc()
		return result, err
	}
	metrics.MonitorTicksTotal.WithLabelValues(string(TickSwept)).Inc()
	return result, nil
}

// Run ticks at once and then every Interval until MaxTicks ticks have run or ctx is done.
// Failed ticks are logged and polling continues; a canceled context ends Run with its error.
func (m *Monitor) Run(ctx context.Context) error {
	funcName := util.FuncName()

	tick, stop := m.newTick(m.cfg.Interval)
	defer stop()

	log.Info().
		Str("owner", m.engine.Address().Hex()).
		Str("recipient", m.cfg.Recipient.Hex()).
		Str("asset", string(m.cfg.Kind)).
		Dur("interval", m.cfg.Interval).
		Int("maxTicks", m.cfg.MaxTicks).
		Msg(util.WrapLogMessage(packageName, funcName, "balance monitor started"))

	for n := 1; m.cfg.MaxTicks == 0 || n <= m.cfg.MaxTicks; n++ {
		// The first balance check runs immediately.
		if n > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		_, err := m.Tick(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, model.ErrOutcomeUnknown):
			log.Warn().Int("tick", n).Err(err).
				Msg(util.WrapLogMessage(packageName, funcName, "balance drained after a timed-out broadcast, check the listed transactions"))
		case errors.Is(err, model.ErrRetryExhausted):
			log.Error().Int("tick", n).Err(err).
				Msg(util.WrapLogMessage(packageName, funcName, "transfer gave up after retry ceiling"))
		case errors.Is(err, model.ErrFatalSubmission):
			log.Error().Int("tick", n).Err(err).
				Msg(util.WrapLogMessage(packageName, funcName, "transfer aborted"))
		default:
			log.Warn().Int("tick", n).Err(err).
				Msg(util.WrapLogMessage(packageName, funcName, "tick failed"))
		}
	}

	log.Info().Int("ticks", m.cfg.MaxTicks).
		Msg(util.WrapLogMessage(packageName, funcName, "balance monitor reached its tick limit"))
	return nil
}
