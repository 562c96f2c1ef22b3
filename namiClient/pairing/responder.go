package pairing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

// TxSigner signs transactions without broadcasting them.
type TxSigner interface {
	Account() wallet.Account
	SignTx(ctx context.Context, msgs []sdk.Msg, feeDenom, memo string) ([]byte, error)
}

// ApproveFunc decides whether to accept a dapp's proposal.
type ApproveFunc func(proposer Participant, required map[string]RequiredNamespace) bool

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithApprove sets the proposal approval callback. Proposals are approved
// when none is set.
func WithApprove(fn ApproveFunc) ResponderOption {
	return func(r *Responder) { r.approve = fn }
}

// WithSessionTTL sets how long granted sessions last.
func WithSessionTTL(ttl time.Duration) ResponderOption {
	return func(r *Responder) { r.ttl = ttl }
}

// WithResponderMetadata sets what the dapp shows about this wallet.
func WithResponderMetadata(m Metadata) ResponderOption {
	return func(r *Responder) { r.metadata = m }
}

// Responder is the wallet side of a pairing. It answers proposals with the
// signer's account and signs the transactions the dapp requests.
type Responder struct {
	peer     *peer
	signer   TxSigner
	registry codectypes.InterfaceRegistry
	chainID  string
	logger   zerolog.Logger
	approve  ApproveFunc
	ttl      time.Duration
	metadata Metadata
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]Session
	deleted  chan string
}

func NewResponder(relay Relay, signer TxSigner, registry codectypes.InterfaceRegistry, chainID string, logger zerolog.Logger, opts ...ResponderOption) *Responder {
	logger = logger.With().Str("component", "pairing_responder").Logger()
	r := &Responder{
		peer:     newPeer(relay, logger),
		signer:   signer,
		registry: registry,
		chainID:  chainID,
		logger:   logger,
		ttl:      7 * 24 * time.Hour,
		metadata: Metadata{Name: "namid", Description: "NAMI client keyring"},
		now:      time.Now,
		sessions: make(map[string]Session),
		deleted:  make(chan string, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Pair joins the pairing in uri, answers the dapp's proposal and settles a
// session. It returns once the session is settled.
func (r *Responder) Pair(ctx context.Context, rawURI string) (Session, error) {
	uri, err := ParseURI(rawURI)
	if err != nil {
		return Session{}, err
	}

	proposals := make(chan *Request, 1)
	err = r.peer.subscribe(ctx, uri.Topic, uri.SymKey, func(_ context.Context, _ string, req *Request) (any, *RPCError) {
		if req.Method == MethodSessionPropose {
			select {
			case proposals <- req:
			default:
			}
		}
		return nil, nil
	})
	if err != nil {
		return Session{}, err
	}
	defer r.peer.unsubscribe(context.Background(), uri.Topic)

	var req *Request
	select {
	case req = <-proposals:
	case <-ctx.Done():
		return Session{}, fmt.Errorf("no proposal received on pairing topic: %w", ctx.Err())
	}

	var proposal ProposeParams
	if err := json.Unmarshal(req.Params, &proposal); err != nil {
		return Session{}, fmt.Errorf("invalid proposal: %w", err)
	}

	chainRef := ChainRef(r.chainID)
	if rejection := r.check(proposal, chainRef); rejection != nil {
		if err := r.peer.respond(ctx, uri.Topic, req.ID, nil, rejection); err != nil {
			return Session{}, err
		}
		return Session{}, rejection
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		return Session{}, err
	}
	sessionKey, err := DeriveSessionKey(kp.Private, proposal.Proposer.PublicKey)
	if err != nil {
		return Session{}, err
	}
	sessionTopic := Topic(sessionKey)
	if err := r.peer.subscribe(ctx, sessionTopic, sessionKey, r.handle); err != nil {
		return Session{}, err
	}

	if err := r.peer.respond(ctx, uri.Topic, req.ID, ProposeResult{
		Relay:              relayInfo{Protocol: relayProtocol},
		ResponderPublicKey: kp.PublicHex(),
	}, nil); err != nil {
		return Session{}, err
	}

	account := AccountRef(r.chainID, r.signer.Account().Address)
	expiry := r.now().Add(r.ttl)
	ns := Namespace{
		Accounts: []string{account},
		Methods:  []string{MethodSignTx},
		Events:   []string{"accountsChanged"},
	}
	if _, err := r.peer.request(ctx, sessionTopic, MethodSessionSettle, SettleParams{
		Relay:      relayInfo{Protocol: relayProtocol},
		Controller: Participant{PublicKey: kp.PublicHex(), Metadata: r.metadata},
		Namespaces: map[string]Namespace{NamespaceCosmos: ns},
		Expiry:     expiry.Unix(),
	}); err != nil {
		return Session{}, fmt.Errorf("dapp did not acknowledge the session: %w", err)
	}

	s := Session{
		Topic:         sessionTopic,
		PairingTopic:  uri.Topic,
		Key:           sessionKey,
		PeerPublicKey: proposal.Proposer.PublicKey,
		Chain:         chainRef,
		Accounts:      ns.Accounts,
		Methods:       ns.Methods,
		PeerName:      proposal.Proposer.Metadata.Name,
		Expiry:        expiry,
	}
	r.mu.Lock()
	r.sessions[sessionTopic] = s
	r.mu.Unlock()

	r.logger.Info().Str("topic", sessionTopic).Str("dapp", s.PeerName).Str("account", account).Msg("pairing session settled")
	return s, nil
}

func (r *Responder) check(p ProposeParams, chainRef string) *RPCError {
	required, ok := p.RequiredNamespaces[NamespaceCosmos]
	if !ok {
		return &RPCError{Code: CodeUnauthorizedChains, Message: "cosmos namespace not requested"}
	}
	supported := false
	for _, c := range required.Chains {
		if c == chainRef {
			supported = true
		}
	}
	if !supported {
		return &RPCError{Code: CodeUnauthorizedChains, Message: "unsupported chains, wallet serves " + chainRef}
	}
	if r.approve != nil && !r.approve(p.Proposer, p.RequiredNamespaces) {
		return &RPCError{Code: CodeUserRejected, Message: "User rejected."}
	}
	return nil
}

func (r *Responder) handle(ctx context.Context, topic string, req *Request) (any, *RPCError) {
	switch req.Method {
	case MethodSessionPing:
		return true, nil
	case MethodSessionDelete:
		r.mu.Lock()
		delete(r.sessions, topic)
		r.mu.Unlock()
		r.logger.Info().Str("topic", topic).Msg("dapp ended the session")
		select {
		case r.deleted <- topic:
		default:
		}
		return nil, nil
	case MethodSessionRequest:
		return r.sign(ctx, req)
	default:
		return nil, &RPCError{Code: CodeUnsupportedMethod, Message: "unsupported method " + req.Method}
	}
}

func (r *Responder) sign(ctx context.Context, req *Request) (any, *RPCError) {
	var params SessionRequestParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &RPCError{Code: CodeUnsupportedMethod, Message: "invalid request params"}
	}
	if params.ChainID != ChainRef(r.chainID) {
		return nil, &RPCError{Code: CodeUnauthorizedChains, Message: "unsupported chain " + params.ChainID}
	}
	if params.Request.Method != MethodSignTx {
		return nil, &RPCError{Code: CodeUnsupportedMethod, Message: "unsupported method " + params.Request.Method}
	}

	var signParams SignTxParams
	if err := json.Unmarshal(params.Request.Params, &signParams); err != nil {
		return nil, &RPCError{Code: CodeUnsupportedMethod, Message: "invalid sign params"}
	}
	msgs, err := DecodeMsgs(r.registry, signParams.Msgs)
	if err != nil {
		return nil, &RPCError{Code: CodeUnsupportedMethod, Message: err.Error()}
	}

	txBytes, err := r.signer.SignTx(ctx, msgs, signParams.FeeDenom, signParams.Memo)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to sign requested transaction")
		return nil, &RPCError{Code: CodeUserRejected, Message: err.Error()}
	}
	r.logger.Info().Int("msg_count", len(msgs)).Msg("signed transaction for dapp")
	return base64.StdEncoding.EncodeToString(txBytes), nil
}

// Sessions returns the live sessions.
func (r *Responder) Sessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Deleted reports topics of sessions the dapp ended.
func (r *Responder) Deleted() <-chan string {
	return r.deleted
}

// Disconnect ends a session from the wallet side.
func (r *Responder) Disconnect(ctx context.Context, topic string) error {
	r.mu.Lock()
	_, ok := r.sessions[topic]
	delete(r.sessions, topic)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no session with topic %s", topic)
	}
	err := r.peer.notify(ctx, topic, MethodSessionDelete, DeleteParams{Code: CodeUserDisconnected, Message: "User disconnected."})
	r.peer.unsubscribe(ctx, topic)
	return err
}

func (r *Responder) Close() error {
	return r.peer.close()
}
