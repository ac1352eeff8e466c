package sweep

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/metrics"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

const packageName = "sweep"

var errNoBaseFee = errors.New("latest block has no base fee")

// FeeQuoter returns a fee quote for the next attempt. It never fails.
type FeeQuoter interface {
	Estimate(ctx context.Context) model.FeeQuote
}

type FeeConfig struct {
	Mode        model.FeeMode
	PriorityFee *big.Int
	StationTier model.GasStationTier

	FallbackMaxFee      *big.Int
	FallbackPriorityFee *big.Int
	FallbackGasPrice    *big.Int
}

type FeeEstimator struct {
	chain   repository.ChainRepository
	station repository.GasStationRepository
	cfg     FeeConfig
}

// NewFeeEstimator builds an estimator. station may be nil unless cfg.Mode is gasstation.
func NewFeeEstimator(chain repository.ChainRepository, station repository.GasStationRepository, cfg FeeConfig) *FeeEstimator {
	return &FeeEstimator{
		chain:   chain,
		station: station,
		cfg:     cfg,
	}
}

// Estimate reads the live fee source and substitutes the configured fallback quote on any failure.
func (f *FeeEstimator) Estimate(ctx context.Context) model.FeeQuote {
	funcName := util.FuncName()

	quote, err := f.live(ctx)
	if err != nil {
		log.Warn().Err(err).Str("mode", string(f.cfg.Mode)).
			Msg(util.WrapLogMessage(packageName, funcName, "fee source unavailable, using fallback quote"))
		quote = f.fallback()
	}

	metrics.FeeQuotesTotal.WithLabelValues(string(f.cfg.Mode), string(quote.Source())).Inc()

	event := log.Info().Str("mode", string(f.cfg.Mode)).Str("source", string(quote.Source()))
	if quote.Dynamic() {
		event = event.
			Str("maxFeePerGas", quote.MaxFeePerGas().String()).
			Str("maxPriorityFeePerGas", quote.MaxPriorityFeePerGas().String()).
			Str("maxFeeGwei", util.FormatUnits(quote.MaxFeePerGas(), util.GweiDecimals))
	} else {
		event = event.
			Str("gasPrice", quote.GasPrice().String()).
			Str("gasPriceGwei", util.FormatUnits(quote.GasPrice(), util.GweiDecimals))
	}
	event.Msg(util.WrapLogMessage(packageName, funcName, "fee quote"))

	return quote
}

func (f *FeeEstimator) live(ctx context.Context) (model.FeeQuote, error) {
	switch f.cfg.Mode {
	case model.FeeModeLegacy:
		return f.legacy(ctx)
	case model.FeeModeGasStation:
		return f.gasStation(ctx)
	default:
		return f.feeMarket(ctx)
	}
}

func (f *FeeEstimator) feeMarket(ctx context.Context) (model.FeeQuote, error) {
	header, err := f.chain.LatestHeader(ctx)
	if err != nil {
		return model.FeeQuote{}, err
	}
	if header == nil || header.BaseFee == nil {
		return model.FeeQuote{}, errNoBaseFee
	}

	maxFee := new(big.Int).Add(header.BaseFee, f.cfg.PriorityFee)
	return model.NewDynamicFeeQuote(model.FeeSourceLive, maxFee, f.cfg.PriorityFee), nil
}

func (f *FeeEstimator) legacy(ctx context.Context) (model.FeeQuote, error) {
	gasPrice, err := f.chain.SuggestGasPrice(ctx)
	if err != nil {
		return model.FeeQuote{}, err
	}
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		return model.FeeQuote{}, fmt.Errorf("node suggested gas price %v", gasPrice)
	}
	return model.NewLegacyFeeQuote(model.FeeSourceLive, gasPrice), nil
}

func (f *FeeEstimator) gasStation(ctx context.Context) (model.FeeQuote, error) {
	if f.station == nil {
		return model.FeeQuote{}, errors.New("gas station is not configured")
	}
	recommendations, err := f.station.GetGasPriceRecommendations(ctx)
	if err != nil {
		return model.FeeQuote{}, err
	}
	tier := recommendations.Tier(f.cfg.StationTier)
	if tier == nil {
		return model.FeeQuote{}, fmt.Errorf("gas station tier %q is missing", f.cfg.StationTier)
	}

	maxFee := util.CeilUnits(tier.MaxFee, util.GweiDecimals)
	tip := util.CeilUnits(tier.MaxPriorityFee, util.GweiDecimals)
	if tip.Cmp(maxFee) > 0 {
		maxFee = new(big.Int).Set(tip)
	}
	return model.NewDynamicFeeQuote(model.FeeSourceLive, maxFee, tip), nil
}

func (f *FeeEstimator) fallback() model.FeeQuote {
	if f.cfg.Mode == model.FeeModeLegacy {
		return model.NewLegacyFeeQuote(model.FeeSourceFallback, f.cfg.FallbackGasPrice)
	}
	return model.NewDynamicFeeQuote(model.FeeSourceFallback, f.cfg.FallbackMaxFee, f.cfg.FallbackPriorityFee)
}
