// Package readonly implements a wallet adapter that watches an address
// without being able to sign for it.
package readonly

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/constant"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

// Connector connects read-only wallets.
type Connector struct {
	cfg    config.Config
	logger zerolog.Logger
}

var _ wallet.Connector = (*Connector)(nil)

func NewConnector(cfg config.Config, logger zerolog.Logger) *Connector {
	return &Connector{cfg: cfg, logger: logger.With().Str("adapter", "readOnly").Logger()}
}

// Connect watches req.Address, or the configured default address when the
// request carries none.
func (c *Connector) Connect(_ context.Context, req wallet.ConnectRequest) (wallet.Wallet, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = c.cfg.ReadOnlyAddress
	}
	if address == "" {
		address = constant.DefaultReadOnlyAddress
	}

	prefix := constant.Bech32Prefix
	if n, err := c.cfg.GetNetwork(req.Network); err == nil && n.Bech32Prefix != "" {
		prefix = n.Bech32Prefix
	}
	if err := ValidateAddress(address, prefix); err != nil {
		return nil, err
	}

	c.logger.Debug().Str("address", address).Str("network", req.Network).Msg("watching address")
	return &Wallet{address: address}, nil
}

// ValidateAddress checks that address is bech32 with the given prefix and
// encodes an account or contract address.
func ValidateAddress(address, prefix string) error {
	hrp, data, err := bech32.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: %s", nerrors.ErrInvalidAddress, err)
	}
	if hrp != prefix {
		return fmt.Errorf("%w: expected prefix %q, got %q", nerrors.ErrInvalidAddress, prefix, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return fmt.Errorf("%w: %s", nerrors.ErrInvalidAddress, err)
	}
	if err := sdk.VerifyAddressFormat(raw); err != nil {
		return fmt.Errorf("%w: %s", nerrors.ErrInvalidAddress, err)
	}
	return nil
}

// Wallet is a watched address.
type Wallet struct {
	address string
}

var _ wallet.Wallet = (*Wallet)(nil)

func (w *Wallet) Kind() wallet.Kind { return wallet.KindReadOnly }

func (w *Wallet) Account() wallet.Account {
	return wallet.Account{Address: w.address, Algo: wallet.AlgoSecp256k1}
}

// SignAndBroadcast always fails.
func (w *Wallet) SignAndBroadcast(context.Context, []sdk.Msg, string, string) (*network.DeliverTxResponse, error) {
	return nil, nerrors.ErrReadOnly
}

// OnChange is a no-op, a watched address never changes on its own.
func (w *Wallet) OnChange(func(wallet.Wallet)) {}

func (w *Wallet) Disconnect(context.Context) error { return nil }
