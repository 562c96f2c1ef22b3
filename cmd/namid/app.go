package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/constant"
	"github.com/nami-protocol/nami-client/namiClient/db"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/keys"
	"github.com/nami-protocol/nami-client/namiClient/logger"
	"github.com/nami-protocol/nami-client/namiClient/metrics"
	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/pairing"
	"github.com/nami-protocol/nami-client/namiClient/transaction"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
	"github.com/nami-protocol/nami-client/namiClient/wallet/local"
	"github.com/nami-protocol/nami-client/namiClient/wallet/readonly"
)

const startTimeout = 30 * time.Second

// appOptions selects what a command needs wired.
type appOptions struct {
	// signing prompts for the keyring password up front when the keyring
	// adapter is connected, or about to be.
	signing bool
	// connect is the adapter the command is about to connect, if any.
	connect wallet.Kind
	// watch keeps following keyring changes, for long-running commands.
	watch bool
	// autoConnect reconnects the stored wallet adapter.
	autoConnect bool
}

// clientApp is the wired client shared by the commands.
type clientApp struct {
	cfg     config.Config
	log     zerolog.Logger
	db      *db.DB
	metrics *metrics.Metrics
	network *network.Manager
	wallets *wallet.Manager
	flow    *transaction.Flow
	out     io.Writer
}

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadOrDefault(homeFlag)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.NodeHome == "" {
		cfg.NodeHome = homeFlag
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command, opts appOptions) (*clientApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

	database, err := db.OpenHome(cfg.NodeHome)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	prefs := database.Preferences()

	if opts.signing && usesKeyring(opts, prefs) {
		pm := keys.NewPasswordManager(os.Stdin, cmd.ErrOrStderr())
		password, err := pm.PasswordForBackend(cfg.KeyringBackend, cfg.KeyringPassword, false)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to read keyring password: %w", err)
		}
		cfg.KeyringPassword = password
	}

	m := metrics.New()
	app := &clientApp{cfg: cfg, log: log, db: database, metrics: m, out: cmd.OutOrStdout()}

	app.network = network.NewManager(cfg, prefs, log, network.WithProbeObserver(m.ProbeObserver(func() string {
		return app.network.Network()
	})))

	ctx, cancel := context.WithTimeout(cmd.Context(), startTimeout)
	defer cancel()
	if err := app.network.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("no rpc endpoint reachable")
	}

	var localOpts []local.ConnectorOption
	if !opts.watch {
		localOpts = append(localOpts, local.WithoutWatch())
	}
	connectors := map[wallet.Kind]wallet.Connector{
		wallet.KindKeyring:  local.NewConnector(cfg, log, localOpts...),
		wallet.KindPairing:  pairing.NewConnector(cfg.PairingConfig, database, log),
		wallet.KindReadOnly: readonly.NewConnector(cfg, log),
	}
	app.wallets = wallet.NewManager(app.network, prefs, connectors, cfg, log,
		wallet.WithPairingURIHandler(func(uri string) { showPairingURI(cmd.ErrOrStderr(), uri) }),
		wallet.WithConnectObserver(m.ConnectObserver),
	)
	if opts.autoConnect {
		if err := app.wallets.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to reconnect stored wallet")
		}
	}

	app.flow = transaction.NewFlow(app.wallets, app.network, cfg, log,
		transaction.WithRecorder(database),
		transaction.WithObserver(m.TxObserver),
	)
	return app, nil
}

func usesKeyring(opts appOptions, prefs *db.Preferences) bool {
	if opts.connect != "" {
		return opts.connect == wallet.KindKeyring
	}
	stored, ok, err := prefs.Get(constant.PrefWallet)
	return err == nil && ok && stored == string(wallet.KindKeyring)
}

func (a *clientApp) Close() {
	a.wallets.Close()
	if err := a.network.Close(); err != nil {
		a.log.Debug().Err(err).Msg("failed to close network")
	}
	if err := a.db.Close(); err != nil {
		a.log.Debug().Err(err).Msg("failed to close database")
	}
}

// requireWallet fails with ErrNoWallet when no adapter is connected.
func (a *clientApp) requireWallet() error {
	if _, ok := a.wallets.Account(); !ok {
		return nerrors.ErrNoWallet
	}
	return nil
}

func (a *clientApp) print(data interface{}) error {
	return printOutput(a.out, data, outputFlag)
}

// showPairingURI prints the pairing URI and its QR code for a wallet to scan.
func showPairingURI(w io.Writer, uri string) {
	fmt.Fprintln(w, "Scan with your wallet or paste the URI into it:")
	qrterminal.GenerateHalfBlock(uri, qrterminal.L, w)
	fmt.Fprintln(w, uri)
}
