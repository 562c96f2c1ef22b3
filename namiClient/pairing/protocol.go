package pairing

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// JSON-RPC methods exchanged over the relay.
const (
	MethodSessionPropose = "session_propose"
	MethodSessionSettle  = "session_settle"
	MethodSessionRequest = "session_request"
	MethodSessionDelete  = "session_delete"
	MethodSessionPing    = "session_ping"
)

// MethodSignTx is the request method wallets advertise for signing a
// transaction and returning its bytes.
const MethodSignTx = "cosmos_signTx"

// NamespaceCosmos is the only namespace the dapp asks for.
const NamespaceCosmos = "cosmos"

// Error codes carried in JSON-RPC error responses.
const (
	CodeUserRejected       = 5000
	CodeUnsupportedMethod  = 10001
	CodeUserDisconnected   = 6000
	CodeUnauthorizedChains = 5100
)

// ChainRef is the CAIP-2 reference of a Cosmos chain, cosmos:<chain-id>.
func ChainRef(chainID string) string {
	return NamespaceCosmos + ":" + chainID
}

// AccountRef is the CAIP-10 account reference, cosmos:<chain-id>:<address>.
func AccountRef(chainID, address string) string {
	return ChainRef(chainID) + ":" + address
}

// AccountAddress returns the address of a CAIP-10 account reference.
func AccountAddress(ref string) (string, error) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "", fmt.Errorf("invalid account reference %q", ref)
	}
	return parts[2], nil
}

// Request is a JSON-RPC request.
type Request struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response.
type Response struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a failed response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("pairing peer error %d: %s", e.Code, e.Message)
}

// envelope decodes either a request or a response.
type envelope struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

func (e envelope) isRequest() bool { return e.Method != "" }

var lastID atomic.Int64

// nextID returns increasing ids derived from the clock so ids from
// different processes rarely collide.
func nextID() int64 {
	for {
		last := lastID.Load()
		id := time.Now().UnixMilli() * 1000
		if id <= last {
			id = last + 1
		}
		if lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}

// Metadata describes a peer to the user.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}

// Participant is one side of a proposal or session.
type Participant struct {
	PublicKey string   `json:"publicKey"`
	Metadata  Metadata `json:"metadata"`
}

// RequiredNamespace lists what the dapp needs from the wallet.
type RequiredNamespace struct {
	Chains  []string `json:"chains"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// Namespace is what the wallet grants.
type Namespace struct {
	Accounts []string `json:"accounts"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
}

type relayInfo struct {
	Protocol string `json:"protocol"`
}

// ProposeParams are the params of session_propose.
type ProposeParams struct {
	Relays             []relayInfo                  `json:"relays"`
	Proposer           Participant                  `json:"proposer"`
	RequiredNamespaces map[string]RequiredNamespace `json:"requiredNamespaces"`
}

// ProposeResult is the wallet's answer to session_propose.
type ProposeResult struct {
	Relay              relayInfo `json:"relay"`
	ResponderPublicKey string    `json:"responderPublicKey"`
}

// SettleParams are the params of session_settle.
type SettleParams struct {
	Relay      relayInfo            `json:"relay"`
	Controller Participant          `json:"controller"`
	Namespaces map[string]Namespace `json:"namespaces"`
	Expiry     int64                `json:"expiry"`
}

// SessionRequestParams wrap a wallet request for one chain.
type SessionRequestParams struct {
	ChainID string        `json:"chainId"`
	Request WalletRequest `json:"request"`
}

// WalletRequest is the method and params the wallet executes.
type WalletRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// SignTxParams ask the wallet to sign msgs and return the transaction bytes.
type SignTxParams struct {
	FeeDenom string       `json:"feeDenom"`
	Memo     string       `json:"memo"`
	Msgs     []EncodedMsg `json:"msgs"`
}

// EncodedMsg is a protobuf Any with a base64 value.
type EncodedMsg struct {
	TypeURL string `json:"typeUrl"`
	Value   string `json:"value"`
}

// DeleteParams are the params of session_delete.
type DeleteParams struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// UserClosed is sent when the user ends the session.
var UserClosed = DeleteParams{Code: 1, Message: "USER_CLOSED"}
