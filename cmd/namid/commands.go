package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	sdkversion "github.com/cosmos/cosmos-sdk/version"
	"github.com/spf13/cobra"

	"github.com/nami-protocol/nami-client/namiClient/api"
	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/constant"
	"github.com/nami-protocol/nami-client/namiClient/cron"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(networkCmd())
	rootCmd.AddCommand(walletCmd())
	rootCmd.AddCommand(txCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(pairingCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print namid version info",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:       %s\n", sdkversion.Name)
			fmt.Fprintf(out, "App Name:   %s\n", sdkversion.AppName)
			fmt.Fprintf(out, "Version:    %s\n", sdkversion.Version)
			fmt.Fprintf(out, "Commit:     %s\n", sdkversion.Commit)
			fmt.Fprintf(out, "Build Tags: %s\n", sdkversion.BuildTags)
		},
	}
}

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to the home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(homeFlag, constant.ConfigSubdir, constant.ConfigFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = homeFlag
			if err := config.Save(cfg, homeFlag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the connection live and serve status over HTTP",
		Long: `
Connects to the stored network and wallet, keeps probing the RPC endpoints
and serves the client status on the configured query server port:

  /health            liveness, 503 without an RPC connection
  /api/v1/network    selected network, live RPC and block status
  /api/v1/rpcs       every endpoint with latency and status colour
  /api/v1/wallet     connected adapter and account
  /api/v1/balances   cached balances of the connected account
  /api/v1/tx-history recorded deposits and withdrawals
  /metrics           prometheus metrics
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(cmd, appOptions{watch: true, autoConnect: true})
			if err != nil {
				return err
			}
			defer app.Close()

			app.network.StartHealthMonitor(ctx)

			job := cron.NewStatusJob(app.wallets, app.network, app.metrics.ObserveBlock,
				app.cfg.RPCPoolConfig.HealthCheckInterval(), app.cfg.RPCPoolConfig.RequestTimeout(), app.log)
			if err := job.Start(ctx); err != nil {
				return err
			}
			defer job.Stop()
			unsubscribe := app.wallets.Subscribe(func(wallet.Change) { job.ForceSync() })
			defer unsubscribe()

			server := api.NewServer(app.network, app.wallets, app.log, app.cfg.QueryServerPort,
				api.WithMetrics(app.metrics),
				api.WithTxHistory(app.db),
			)
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()

			<-ctx.Done()
			app.log.Info().Msg("shutting down")
			return nil
		},
	}
}
