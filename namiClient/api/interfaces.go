package api

import (
	"context"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/rpcpool"
	"github.com/nami-protocol/nami-client/namiClient/store"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

// NetworkStatus is the part of the network manager the server reports on.
type NetworkStatus interface {
	Network() string
	RPC() string
	Preferred() string
	Connected() bool
	RPCs() []rpcpool.EndpointRecord
	BlockStatus(ctx context.Context) (network.BlockStatus, error)
}

// WalletStatus is the part of the wallet manager the server reports on.
type WalletStatus interface {
	Kind() wallet.Kind
	Account() (wallet.Account, bool)
	State() wallet.State
	FeeDenom() string
	Balances() sdk.Coins
}

// TxHistory lists recorded vault transactions.
type TxHistory interface {
	TxHistory(network string, limit int) ([]store.TxRecord, error)
}
