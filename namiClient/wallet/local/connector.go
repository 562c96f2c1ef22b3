package local

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/config"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/keys"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

// Connector opens the configured keyring key as a wallet.
type Connector struct {
	cfg    config.Config
	logger zerolog.Logger
	watch  bool
}

var _ wallet.Connector = (*Connector)(nil)

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithoutWatch disables watching the keyring directory for key changes.
func WithoutWatch() ConnectorOption {
	return func(c *Connector) { c.watch = false }
}

func NewConnector(cfg config.Config, logger zerolog.Logger, opts ...ConnectorOption) *Connector {
	c := &Connector{
		cfg:    cfg,
		logger: logger.With().Str("adapter", "keyring").Logger(),
		watch:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) keyringConfig() keys.KeyringConfig {
	return keys.KeyringConfig{
		HomeDir:  c.cfg.NodeHome,
		Backend:  c.cfg.KeyringBackend,
		KeyName:  c.cfg.KeyName,
		Password: c.cfg.KeyringPassword,
	}
}

// Connect opens the key named in the config. The keyring has no approval
// step, so auto-reconnects behave like explicit ones.
func (c *Connector) Connect(_ context.Context, req wallet.ConnectRequest) (wallet.Wallet, error) {
	netCfg, err := c.cfg.GetNetwork(req.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", nerrors.ErrUnknownNetwork, err)
	}

	s, err := c.open(req.Chain, netCfg.GasPrices)
	if err != nil {
		return nil, err
	}

	if c.watch {
		if dir := keys.KeyringDir(c.cfg.NodeHome, c.cfg.KeyringBackend); dir != "" {
			w, err := newKeyringWatcher(dir, c.logger, func() { c.reload(s, req.Chain, netCfg.GasPrices) })
			if err != nil {
				c.logger.Warn().Err(err).Str("dir", dir).Msg("not watching keyring for changes")
			} else {
				s.watcher = w
			}
		}
	}

	c.logger.Info().Str("key_name", c.cfg.KeyName).Str("address", s.address).Msg("keyring wallet opened")
	return s, nil
}

func (c *Connector) open(chain wallet.Chain, gasPrices string) (*Signer, error) {
	kr, _, err := keys.OpenKeyring(c.keyringConfig())
	if err != nil {
		return nil, nerrors.NewWalletError("", "failed to open keyring key", err)
	}
	s, err := newSigner(keys.NewKeys(kr, c.cfg.KeyName), chain, c.cfg.GasConfig, gasPrices, c.logger)
	if err != nil {
		return nil, nerrors.NewWalletError("", "failed to load key", err)
	}
	return s, nil
}

// reload re-reads the key after the keyring changed on disk and reports a
// different address, or a removed key, to the signer's listener.
func (c *Connector) reload(current *Signer, chain wallet.Chain, gasPrices string) {
	next, err := c.open(chain, gasPrices)
	if err != nil {
		c.logger.Info().Err(err).Msg("keyring key went away")
		_ = current.Close()
		current.notifyChange(nil)
		return
	}
	if next.address == current.address {
		return
	}

	c.logger.Info().Str("old", current.address).Str("new", next.address).Msg("keyring key changed")
	current.changeMu.Lock()
	next.watcher = current.watcher
	current.watcher = nil
	current.changeMu.Unlock()
	if next.watcher != nil {
		next.watcher.setHandler(func() { c.reload(next, chain, gasPrices) })
	}
	current.notifyChange(next)
}
