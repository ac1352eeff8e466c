package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

type FeeMode string

const (
	FeeModeEIP1559    FeeMode = "eip1559"
	FeeModeLegacy     FeeMode = "legacy"
	FeeModeGasStation FeeMode = "gasstation"
)

func (m FeeMode) Valid() bool {
	switch m {
	case FeeModeEIP1559, FeeModeLegacy, FeeModeGasStation:
		return true
	}
	return false
}

type FeeSource string

const (
	FeeSourceLive     FeeSource = "live"
	FeeSourceFallback FeeSource = "fallback"
)

// FeeQuote is an immutable fee proposal in wei. Either the dynamic fee fields or GasPrice are set.
type FeeQuote struct {
	source               FeeSource
	dynamic              bool
	maxFeePerGas         *big.Int
	maxPriorityFeePerGas *big.Int
	gasPrice             *big.Int
}

func NewDynamicFeeQuote(source FeeSource, maxFeePerGas, maxPriorityFeePerGas *big.Int) FeeQuote {
	return FeeQuote{
		source:               source,
		dynamic:              true,
		maxFeePerGas:         copyInt(maxFeePerGas),
		maxPriorityFeePerGas: copyInt(maxPriorityFeePerGas),
	}
}

func NewLegacyFeeQuote(source FeeSource, gasPrice *big.Int) FeeQuote {
	return FeeQuote{
		source:   source,
		gasPrice: copyInt(gasPrice),
	}
}

func (q FeeQuote) Source() FeeSource { return q.source }

// Dynamic reports whether the quote carries fee-market fields.
func (q FeeQuote) Dynamic() bool { return q.dynamic }

func (q FeeQuote) MaxFeePerGas() *big.Int { return copyInt(q.maxFeePerGas) }

func (q FeeQuote) MaxPriorityFeePerGas() *big.Int { return copyInt(q.maxPriorityFeePerGas) }

func (q FeeQuote) GasPrice() *big.Int { return copyInt(q.gasPrice) }

// FeeCap is the highest price per gas the quote can pay: maxFeePerGas or gasPrice.
func (q FeeQuote) FeeCap() *big.Int {
	if q.dynamic {
		return q.MaxFeePerGas()
	}
	return q.GasPrice()
}

// MaxCost returns gasLimit * FeeCap, the worst-case fee of a transaction using this quote.
func (q FeeQuote) MaxCost(gasLimit uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), q.FeeCap())
}

func (q FeeQuote) Equal(o FeeQuote) bool {
	return q.source == o.source &&
		q.dynamic == o.dynamic &&
		intEqual(q.maxFeePerGas, o.maxFeePerGas) &&
		intEqual(q.maxPriorityFeePerGas, o.maxPriorityFeePerGas) &&
		intEqual(q.gasPrice, o.gasPrice)
}

func (q FeeQuote) String() string {
	if q.dynamic {
		return "maxFeePerGas=" + intString(q.maxFeePerGas) + " maxPriorityFeePerGas=" + intString(q.maxPriorityFeePerGas)
	}
	return "gasPrice=" + intString(q.gasPrice)
}

type GasStationTier string

const (
	GasStationTierSafeLow  GasStationTier = "safeLow"
	GasStationTierStandard GasStationTier = "standard"
	GasStationTierFast     GasStationTier = "fast"
)

// GasPriceRecommendation values are in gwei, kept as exact decimals.
type GasPriceRecommendation struct {
	MaxPriorityFee decimal.Decimal
	MaxFee         decimal.Decimal
}

type GasPriceRecommendations struct {
	SafeLow          *GasPriceRecommendation
	Standard         *GasPriceRecommendation
	Fast             *GasPriceRecommendation
	EstimatedBaseFee decimal.Decimal
	BlockTime        int64
	BlockNumber      int64
}

// Tier returns the recommendation for tier, defaulting to Standard.
func (r *GasPriceRecommendations) Tier(tier GasStationTier) *GasPriceRecommendation {
	switch tier {
	case GasStationTierSafeLow:
		return r.SafeLow
	case GasStationTierFast:
		return r.Fast
	default:
		return r.Standard
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func intEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func intString(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
