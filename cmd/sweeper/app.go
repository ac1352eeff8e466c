package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	kms "cloud.google.com/go/kms/apiv1"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/yukia3e/evm-balance-sweeper/internal/config"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/infrastructure/evm"
	appHttp "github.com/yukia3e/evm-balance-sweeper/internal/infrastructure/http"
	"github.com/yukia3e/evm-balance-sweeper/internal/infrastructure/wallet"
	"github.com/yukia3e/evm-balance-sweeper/internal/usecase/monitor"
	"github.com/yukia3e/evm-balance-sweeper/internal/usecase/sweep"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

// app holds the wired collaborators. close releases the RPC and KMS connections.
type app struct {
	cfg     *config.Config
	chainID *big.Int
	chain   repository.ChainRepository
	signer  repository.SignerRepository
	balance repository.BalanceRepository
	token   repository.TokenRepository
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	funcName := util.FuncName()
	a := &app{cfg: cfg}

	ethClient, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to dial eth client: %w", err))
	}
	a.closers = append(a.closers, ethClient.Close)

	a.chain = evm.New(ethClient,
		evm.WithTimeout(cfg.RPCTimeout),
		evm.WithLimiter(evm.NewLimiter(cfg.RPCRateLimit, cfg.RPCRateBurst)),
	)

	a.chainID = cfg.ChainID
	if a.chainID == nil {
		a.chainID, err = a.chain.ChainID(ctx)
		if err != nil {
			a.close()
			return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to get chain id: %w", err))
		}
	}

	if cfg.FeeMode == model.FeeModeGasStation && !model.HasGasStation(a.chainID) {
		a.close()
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("fee mode %q is not available on chain %s", cfg.FeeMode, a.chainID))
	}

	a.signer, err = a.newSigner(ctx)
	if err != nil {
		a.close()
		return nil, util.WrapErrorForLog(packageName, funcName, err)
	}

	switch cfg.Asset {
	case model.AssetKindToken:
		a.token = evm.NewERC20Token(cfg.TokenAddress, a.chain)
		a.balance = a.token
	default:
		a.balance = evm.NewNativeBalance(a.chain)
	}

	log.Info().
		Str("chain", model.ChainName(a.chainID)).
		Str("chainID", a.chainID.String()).
		Str("address", a.signer.Address().Hex()).
		Str("config", cfg.String()).
		Msg(util.WrapLogMessage(packageName, funcName, "initialized"))

	return a, nil
}

func (a *app) newSigner(ctx context.Context) (repository.SignerRepository, error) {
	switch a.cfg.Signer {
	case config.SignerKMS:
		var opts []option.ClientOption
		if path := config.GetCredentialFilePath(); path != "" {
			opts = append(opts, option.WithCredentialsFile(path))
		}
		kmsClient, err := kms.NewKeyManagementClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create kms client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = kmsClient.Close() })

		return wallet.NewKMSSigner(ctx, kmsClient, config.GetKMSKeyVersionName())
	default:
		return wallet.NewLocalSignerFromHex(a.cfg.PrivateKey)
	}
}

func (a *app) engine() *sweep.Engine {
	var station repository.GasStationRepository
	if a.cfg.FeeMode == model.FeeModeGasStation {
		station = appHttp.NewGasStationClient(&http.Client{Timeout: a.cfg.RPCTimeout}, a.chainID)
	}

	fees := sweep.NewFeeEstimator(a.chain, station, sweep.FeeConfig{
		Mode:                a.cfg.FeeMode,
		PriorityFee:         a.cfg.PriorityFee,
		StationTier:         a.cfg.GasStationTier,
		FallbackMaxFee:      a.cfg.FallbackMaxFee,
		FallbackPriorityFee: a.cfg.FallbackPriorityFee,
		FallbackGasPrice:    a.cfg.FallbackGasPrice,
	})
	builder := sweep.NewBuilder(a.token, a.chain, sweep.BuilderConfig{
		NativeGasLimit:   a.cfg.NativeGasLimit,
		TokenGasLimit:    a.cfg.TokenGasLimit,
		EstimateTokenGas: a.cfg.EstimateTokenGas,
	})

	return sweep.NewEngine(sweep.EngineDeps{
		Chain:     a.chain,
		Fees:      fees,
		Builder:   builder,
		Submitter: sweep.NewSubmitter(a.chain),
		Signer:    a.signer,
		ChainID:   a.chainID,
		Balance:   a.balance,
	}, sweep.RetryConfig{
		Ceiling:     a.cfg.RetryCeiling,
		Backoff:     a.cfg.RetryBackoff,
		NonceSource: a.cfg.NonceSource,
	})
}

func (a *app) monitor() *monitor.Monitor {
	return monitor.NewMonitor(a.engine(), a.balance, monitor.Config{
		Kind:      a.cfg.Asset,
		Recipient: a.cfg.Recipient,
		Threshold: a.cfg.Threshold,
		Interval:  a.cfg.PollInterval,
		MaxTicks:  a.cfg.PollMaxTicks,
		Decimals:  a.decimals(),
	})
}

// decimals is used for log rendering only. Token decimals are not queried, so token balances log in base units.
func (a *app) decimals() int32 {
	if a.cfg.Asset == model.AssetKindNative {
		return util.EtherDecimals
	}
	return 0
}

// serveMetrics exposes /metrics until ctx is done. An empty addr disables it.
func serveMetrics(ctx context.Context, addr string, handler http.Handler) {
	funcName := util.FuncName()
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg(util.WrapLogMessage(packageName, funcName, "metrics server stopped"))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg(util.WrapLogMessage(packageName, funcName, "serving metrics"))
}
