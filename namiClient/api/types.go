package api

import (
	"time"

	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/rpcpool"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data        interface{} `json:"data"`
	LastFetched time.Time   `json:"last_fetched"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

type NetworkResponse struct {
	Network   string               `json:"network"`
	RPC       string               `json:"rpc"`
	Preferred string               `json:"preferred,omitempty"`
	Connected bool                 `json:"connected"`
	Block     *network.BlockStatus `json:"block,omitempty"`
}

type RPCsResponse struct {
	Network   string                   `json:"network"`
	Endpoints []rpcpool.EndpointRecord `json:"endpoints"`
}

type WalletResponse struct {
	Adapter  wallet.Kind     `json:"adapter,omitempty"`
	State    wallet.State    `json:"state"`
	Account  *wallet.Account `json:"account,omitempty"`
	FeeDenom string          `json:"fee_denom"`
}

type Balance struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}
