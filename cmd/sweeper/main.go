package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yukia3e/evm-balance-sweeper/internal/config"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

const packageName = "main"

func main() {
	const funcName = "main"

	loadEnvFiles()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg(util.WrapLogMessage(packageName, funcName, "command failed"))
		stop()
		os.Exit(1)
	}
}

// loadEnvFiles reads .env and then lets .env.local override it. Missing files are ignored.
func loadEnvFiles() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	if err := godotenv.Overload(".env.local"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env.local: %v\n", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sweeper",
		Short:         "Moves the balance of one account to a fixed recipient",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newAddressCmd(), newBalanceCmd())
	return root
}

// setup loads the configuration and wires the application for a subcommand.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	util.SetupLogger(cfg.LogLevel, config.IsDevelopment())

	return newApp(ctx, cfg)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the balance and sweep it whenever it exceeds the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			serveMetrics(ctx, a.cfg.MetricsAddr, promhttp.Handler())

			err = a.monitor().Run(ctx)
			if errors.Is(err, context.Canceled) {
				log.Info().Msg(util.WrapLogMessage(packageName, "run", "shutting down"))
				return nil
			}
			return err
		},
	}
}

func newAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the sweeping address",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Fprintln(cmd.OutOrStdout(), a.signer.Address().Hex())
			return nil
		},
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the current balance of the sweeping address",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			balance, err := a.balance.Balance(cmd.Context(), a.signer.Address())
			if err != nil {
				return util.WrapErrorForLog(packageName, "balance", fmt.Errorf("failed to get balance: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s base units)\n",
				util.FormatUnits(balance, a.decimals()), a.cfg.Asset, balance.String())
			return nil
		},
	}
}
