// Package wallet puts the keyring, remote-pairing and read-only adapters
// behind one surface and tracks the connected account and its balances.
package wallet

import (
	"context"
	"fmt"

	"github.com/cosmos/cosmos-sdk/client"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/nami-protocol/nami-client/namiClient/network"
)

// Kind names a wallet adapter.
type Kind string

const (
	KindKeyring  Kind = "keyring"
	KindPairing  Kind = "pairing"
	KindReadOnly Kind = "readOnly"
)

// Kinds lists every adapter in display order.
var Kinds = []Kind{KindKeyring, KindPairing, KindReadOnly}

// ParseKind accepts an adapter name as stored in preferences or typed on
// the command line.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	if s == "readonly" || s == "read-only" {
		return KindReadOnly, nil
	}
	return "", fmt.Errorf("unknown wallet adapter %q", s)
}

// AlgoSecp256k1 is the only key algorithm Kujira accounts use.
const AlgoSecp256k1 = "secp256k1"

// Account is the address and public key exposed by a connected wallet.
// PubKey is empty for adapters that never reveal it.
type Account struct {
	Address string `json:"address" yaml:"address"`
	PubKey  []byte `json:"pubkey,omitempty" yaml:"pubkey,omitempty"`
	Algo    string `json:"algo" yaml:"algo"`
}

// Wallet is a connected adapter.
type Wallet interface {
	Kind() Kind
	Account() Account

	// SignAndBroadcast signs msgs paying fees in feeDenom and broadcasts the
	// transaction through the chain connection.
	SignAndBroadcast(ctx context.Context, msgs []sdk.Msg, feeDenom, memo string) (*network.DeliverTxResponse, error)

	// OnChange registers fn to be called when the wallet behind the adapter
	// changes. fn receives nil when the wallet went away.
	OnChange(fn func(Wallet))

	// Disconnect ends the wallet session.
	Disconnect(ctx context.Context) error
}

// Connector creates a Wallet of one adapter kind.
type Connector interface {
	Connect(ctx context.Context, req ConnectRequest) (Wallet, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, req ConnectRequest) (Wallet, error)

func (f ConnectorFunc) Connect(ctx context.Context, req ConnectRequest) (Wallet, error) {
	return f(ctx, req)
}

// ConnectRequest carries what an adapter may need to connect.
type ConnectRequest struct {
	Network  string
	Chain    Chain
	FeeDenom string
	// Address is the watched address for the read-only adapter.
	Address string
	// Auto is set when reconnecting a stored adapter without user action.
	Auto bool
	// OnPairingURI receives the URI a remote wallet has to scan.
	OnPairingURI func(uri string)
}

// Chain is the connection the wallet queries and broadcasts through.
type Chain interface {
	ChainID() string
	RPC() string
	Query() (network.Querier, error)
	BroadcastTx(ctx context.Context, txBytes []byte) (*network.DeliverTxResponse, error)
	TxConfig() client.TxConfig
	Subscribe(fn func(network.Event)) func()
}

var _ Chain = (*network.Manager)(nil)

// State is the connection state of the wallet manager.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Change is delivered to subscribers whenever the wallet or its state changes.
type Change struct {
	State   State
	Kind    Kind
	Account Account
}
