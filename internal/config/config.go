package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

const packageName = "config"

const (
	SignerLocal = "local"
	SignerKMS   = "kms"
)

const (
	defaultPriorityFeeGwei         = "2"
	defaultFallbackMaxFeeGwei      = "7"
	defaultFallbackPriorityFeeGwei = "2"
	defaultFallbackGasPriceGwei    = "5"
	defaultNativeThresholdWei      = "2000000000000000" // 0.002 ETH
	defaultRetryCeiling            = 10000
	defaultRetryBackoff            = 3 * time.Second
	defaultPollInterval            = 5 * time.Second
	defaultPollMaxTicks            = 10000
	defaultRPCTimeout              = 15 * time.Second
)

// Config holds every setting of the sweeper, already validated. PrivateKey is never printed.
type Config struct {
	Environment string
	LogLevel    string
	MetricsAddr string

	RPCEndpoint  string
	RPCTimeout   time.Duration
	RPCRateLimit float64
	RPCRateBurst int
	ChainID      *big.Int // nil means ask the node

	Asset        model.AssetKind
	TokenAddress common.Address
	Recipient    common.Address

	Signer     string
	PrivateKey string

	FeeMode             model.FeeMode
	GasStationTier      model.GasStationTier
	PriorityFee         *big.Int
	FallbackMaxFee      *big.Int
	FallbackPriorityFee *big.Int
	FallbackGasPrice    *big.Int

	NativeGasLimit   uint64
	TokenGasLimit    uint64
	EstimateTokenGas bool
	NonceSource      model.NonceSource

	RetryCeiling int
	RetryBackoff time.Duration

	PollInterval time.Duration
	PollMaxTicks int
	Threshold    *big.Int
}

// Load reads the process environment. All problems are reported together.
func Load() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		Environment:    GetEnvironment(),
		LogLevel:       GetLogLevel(),
		MetricsAddr:    GetMetricsAddr(),
		RPCEndpoint:    os.Getenv("RPC_ENDPOINT"),
		NativeGasLimit: GetGasLimit(),
		TokenGasLimit:  GetTokenGasLimit(),
		Signer:         strings.ToLower(getString("SIGNER", SignerLocal)),
		Asset:          model.AssetKind(strings.ToLower(getString("ASSET", string(model.AssetKindToken)))),
		FeeMode:        model.FeeMode(strings.ToLower(getString("FEE_MODE", string(model.FeeModeEIP1559)))),
		GasStationTier: model.GasStationTier(getString("GAS_STATION_TIER", string(model.GasStationTierStandard))),
		NonceSource:    model.NonceSource(strings.ToLower(getString("NONCE_SOURCE", string(model.NonceSourceLatest)))),
	}
	cfg.PrivateKey = getSecret("PRIVATE_KEY", cfg.Asset)

	if cfg.RPCEndpoint == "" {
		collect(errors.New("RPC_ENDPOINT is not set"))
	}

	var err error
	cfg.RPCTimeout, err = getDuration("RPC_TIMEOUT", defaultRPCTimeout)
	collect(err)
	cfg.RetryBackoff, err = getDuration("RETRY_BACKOFF", defaultRetryBackoff)
	collect(err)
	cfg.PollInterval, err = getDuration("POLL_INTERVAL", defaultPollInterval)
	collect(err)
	cfg.RetryCeiling, err = getInt("RETRY_CEILING", defaultRetryCeiling)
	collect(err)
	if err == nil && cfg.RetryCeiling < 1 {
		collect(fmt.Errorf("RETRY_CEILING must be at least 1, got %d", cfg.RetryCeiling))
	}
	cfg.PollMaxTicks, err = getInt("POLL_MAX_TICKS", defaultPollMaxTicks)
	collect(err)
	cfg.RPCRateBurst, err = getInt("RPC_RATE_BURST", 1)
	collect(err)
	cfg.EstimateTokenGas, err = getBool("ESTIMATE_TOKEN_GAS", false)
	collect(err)
	if s := os.Getenv("RPC_RATE_LIMIT"); s != "" {
		cfg.RPCRateLimit, err = strconv.ParseFloat(s, 64)
		if err != nil || cfg.RPCRateLimit < 0 {
			collect(fmt.Errorf("RPC_RATE_LIMIT is invalid: %q", s))
		}
	}

	if s := os.Getenv("CHAIN_ID"); s != "" {
		id, ok := new(big.Int).SetString(s, 10)
		if !ok || id.Sign() <= 0 {
			collect(fmt.Errorf("CHAIN_ID is invalid: %q", s))
		} else {
			cfg.ChainID = id
		}
	}

	if !cfg.Asset.Valid() {
		collect(fmt.Errorf("ASSET must be %q or %q, got %q", model.AssetKindNative, model.AssetKindToken, cfg.Asset))
	}

	cfg.Recipient, err = getAddress("RECIPIENT_ADDRESS", cfg.Asset)
	collect(err)
	if cfg.Asset == model.AssetKindToken {
		cfg.TokenAddress, err = getAddress("TOKEN_ADDRESS", cfg.Asset)
		collect(err)
	}

	switch cfg.Signer {
	case SignerLocal:
		if cfg.PrivateKey == "" {
			collect(errors.New("PRIVATE_KEY is not set"))
		}
	case SignerKMS:
		for _, key := range []string{"GCP_PROJECT_ID", "KEY_RING_ID", "KMS_KEY_ID"} {
			if os.Getenv(key) == "" {
				collect(fmt.Errorf("%s is not set", key))
			}
		}
	default:
		collect(fmt.Errorf("SIGNER must be %q or %q, got %q", SignerLocal, SignerKMS, cfg.Signer))
	}

	if !cfg.FeeMode.Valid() {
		collect(fmt.Errorf("FEE_MODE is invalid: %q", cfg.FeeMode))
	}
	if cfg.FeeMode == model.FeeModeGasStation && cfg.ChainID != nil && !model.HasGasStation(cfg.ChainID) {
		collect(fmt.Errorf("FEE_MODE %q needs a Polygon CHAIN_ID, got %s", cfg.FeeMode, cfg.ChainID))
	}
	switch cfg.GasStationTier {
	case model.GasStationTierSafeLow, model.GasStationTierStandard, model.GasStationTierFast:
	default:
		collect(fmt.Errorf("GAS_STATION_TIER is invalid: %q", cfg.GasStationTier))
	}
	if !cfg.NonceSource.Valid() {
		collect(fmt.Errorf("NONCE_SOURCE must be %q or %q, got %q", model.NonceSourceLatest, model.NonceSourcePending, cfg.NonceSource))
	}

	cfg.PriorityFee, err = getGwei("PRIORITY_FEE_GWEI", defaultPriorityFeeGwei)
	collect(err)
	cfg.FallbackMaxFee, err = getGwei("FALLBACK_MAX_FEE_GWEI", defaultFallbackMaxFeeGwei)
	collect(err)
	cfg.FallbackPriorityFee, err = getGwei("FALLBACK_PRIORITY_FEE_GWEI", defaultFallbackPriorityFeeGwei)
	collect(err)
	cfg.FallbackGasPrice, err = getGwei("FALLBACK_GAS_PRICE_GWEI", defaultFallbackGasPriceGwei)
	collect(err)

	defaultThreshold := "0"
	if cfg.Asset == model.AssetKindNative {
		defaultThreshold = defaultNativeThresholdWei
	}
	cfg.Threshold, err = util.ParseUnits(getString("SWEEP_THRESHOLD_WEI", defaultThreshold), 0)
	if err != nil {
		collect(fmt.Errorf("SWEEP_THRESHOLD_WEI is invalid: %w", err))
	}

	if len(errs) > 0 {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), errors.Join(errs...))
	}
	return cfg, nil
}

// String omits the private key.
func (c *Config) String() string {
	return fmt.Sprintf("env=%s asset=%s recipient=%s token=%s signer=%s feeMode=%s nonceSource=%s retryCeiling=%d retryBackoff=%s pollInterval=%s threshold=%s",
		c.Environment, c.Asset, c.Recipient.Hex(), c.TokenAddress.Hex(), c.Signer, c.FeeMode, c.NonceSource, c.RetryCeiling, c.RetryBackoff, c.PollInterval, c.Threshold)
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def, fmt.Errorf("%s is invalid: %q", key, s)
	}
	return v, nil
}

func getBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def, fmt.Errorf("%s is invalid: %q", key, s)
	}
	return v, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil || v < 0 {
		return def, fmt.Errorf("%s is invalid: %q", key, s)
	}
	return v, nil
}

func getGwei(key, def string) (*big.Int, error) {
	v, err := util.ParseUnits(getString(key, def), util.GweiDecimals)
	if err != nil {
		return nil, fmt.Errorf("%s is invalid: %w", key, err)
	}
	return v, nil
}

func getSecret(key string, asset model.AssetKind) string {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" && asset == model.AssetKindNative {
		s = strings.TrimSpace(os.Getenv(key + "_ETHER"))
	}
	return strings.TrimPrefix(s, "0x")
}

// getAddress reads KEY, falling back to KEY_ETHER for native sweeps.
func getAddress(key string, asset model.AssetKind) (common.Address, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" && asset == model.AssetKindNative {
		s = strings.TrimSpace(os.Getenv(key + "_ETHER"))
	}
	if s == "" {
		return common.Address{}, fmt.Errorf("%s is not set", key)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s is not a valid address: %q", key, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s must not be the zero address", key)
	}
	return addr, nil
}
