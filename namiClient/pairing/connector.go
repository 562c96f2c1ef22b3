package pairing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/config"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

// DappMetadata is shown by wallets when asked to approve a pairing.
var DappMetadata = Metadata{
	Name:        "NAMI",
	Description: "NAMI vault client",
	URL:         "https://nami.money",
}

// RelayDialer opens a relay connection.
type RelayDialer func(ctx context.Context) (Relay, error)

// Option configures a Connector.
type Option func(*Connector)

// WithRelayDialer replaces the websocket relay.
func WithRelayDialer(d RelayDialer) Option {
	return func(c *Connector) { c.dial = d }
}

// WithClock sets the time source used for session expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) { c.now = now }
}

// Connector pairs with a remote wallet or resumes a stored session.
type Connector struct {
	cfg    config.PairingConfig
	store  SessionStore
	logger zerolog.Logger
	dial   RelayDialer
	now    func() time.Time
}

var _ wallet.Connector = (*Connector)(nil)

func NewConnector(cfg config.PairingConfig, sessions SessionStore, logger zerolog.Logger, opts ...Option) *Connector {
	c := &Connector{
		cfg:    cfg,
		store:  sessions,
		logger: logger.With().Str("adapter", "pairing").Logger(),
		now:    time.Now,
	}
	c.dial = func(ctx context.Context) (Relay, error) {
		return DialRelay(ctx, cfg.RelayURL, nil, c.logger)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect resumes the latest unexpired session for the network. Without one
// it publishes a proposal, hands the pairing URI to req.OnPairingURI and
// waits for the wallet to approve. Automatic reconnects never start a new
// pairing.
func (c *Connector) Connect(ctx context.Context, req wallet.ConnectRequest) (wallet.Wallet, error) {
	chain := ChainRef(req.Network)

	var stored *Session
	if c.store != nil {
		rec, err := c.store.LatestSession(chain, c.now())
		if err != nil {
			return nil, err
		}
		if rec != nil {
			s, err := sessionFromRecord(rec)
			if err != nil {
				c.logger.Warn().Err(err).Msg("dropping unreadable session")
				_ = c.store.DeleteSession(rec.Topic)
			} else {
				stored = &s
			}
		}
	}
	if stored == nil && req.Auto {
		return nil, errorsmod.Wrap(nerrors.ErrSessionDeleted, "no stored pairing session to resume")
	}

	relay, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	p := newPeer(relay, c.logger)

	var w *Wallet
	if stored != nil {
		w, err = c.resume(ctx, p, *stored, req.Chain)
	} else {
		w, err = c.pair(ctx, p, req)
	}
	if err != nil {
		_ = p.close()
		return nil, err
	}
	return w, nil
}

func (c *Connector) resume(ctx context.Context, p *peer, s Session, chain wallet.Chain) (*Wallet, error) {
	w, err := c.newWallet(p, s, chain)
	if err != nil {
		return nil, err
	}
	if err := p.subscribe(ctx, s.Topic, s.Key, w.handle); err != nil {
		return nil, err
	}
	c.logger.Info().Str("topic", s.Topic).Str("peer", s.PeerName).Msg("resumed pairing session")
	return w, nil
}

func (c *Connector) pair(ctx context.Context, p *peer, req wallet.ConnectRequest) (*Wallet, error) {
	symKey, err := GenerateSymKey()
	if err != nil {
		return nil, err
	}
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	pairingTopic := Topic(symKey)

	if err := p.subscribe(ctx, pairingTopic, symKey, nil); err != nil {
		return nil, err
	}
	defer p.unsubscribe(context.Background(), pairingTopic)

	uri := URI{Topic: pairingTopic, SymKey: symKey, RelayProtocol: relayProtocol, RelayURL: c.cfg.RelayURL}
	if req.OnPairingURI != nil {
		req.OnPairingURI(uri.String())
	}
	c.logger.Info().Str("topic", pairingTopic).Msg("waiting for wallet approval")

	approveCtx := ctx
	if timeout := c.cfg.ApprovalTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		approveCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	chainRef := ChainRef(req.Network)
	raw, err := p.request(approveCtx, pairingTopic, MethodSessionPropose, ProposeParams{
		Relays:   []relayInfo{{Protocol: relayProtocol}},
		Proposer: Participant{PublicKey: kp.PublicHex(), Metadata: DappMetadata},
		RequiredNamespaces: map[string]RequiredNamespace{
			NamespaceCosmos: {
				Chains:  []string{chainRef},
				Methods: []string{MethodSignTx},
				Events:  []string{"accountsChanged"},
			},
		},
	})
	if err != nil {
		if _, ok := err.(*RPCError); ok {
			return nil, errorsmod.Wrap(nerrors.ErrPairingRejected, err.Error())
		}
		return nil, err
	}
	var proposal ProposeResult
	if err := json.Unmarshal(raw, &proposal); err != nil {
		return nil, fmt.Errorf("invalid proposal answer: %w", err)
	}

	sessionKey, err := DeriveSessionKey(kp.Private, proposal.ResponderPublicKey)
	if err != nil {
		return nil, err
	}
	sessionTopic := Topic(sessionKey)

	settled := make(chan SettleParams, 1)
	err = p.subscribe(ctx, sessionTopic, sessionKey, func(_ context.Context, _ string, r *Request) (any, *RPCError) {
		if r.Method != MethodSessionSettle {
			return nil, nil
		}
		var params SettleParams
		if err := json.Unmarshal(r.Params, &params); err != nil {
			return nil, &RPCError{Code: CodeUnsupportedMethod, Message: "invalid settle params"}
		}
		select {
		case settled <- params:
		default:
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	var params SettleParams
	select {
	case params = <-settled:
	case <-approveCtx.Done():
		p.unsubscribe(context.Background(), sessionTopic)
		return nil, nerrors.NewTimeoutError(req.Network, "wallet did not settle the pairing session")
	}

	ns, ok := params.Namespaces[NamespaceCosmos]
	if !ok || len(ns.Accounts) == 0 {
		p.unsubscribe(context.Background(), sessionTopic)
		return nil, errorsmod.Wrap(nerrors.ErrPairingRejected, "wallet granted no cosmos account")
	}

	expiry := time.Unix(params.Expiry, 0)
	if ttl := c.cfg.SessionTTL(); params.Expiry == 0 || (ttl > 0 && expiry.After(c.now().Add(ttl))) {
		expiry = c.now().Add(ttl)
	}
	s := Session{
		Topic:         sessionTopic,
		PairingTopic:  pairingTopic,
		Key:           sessionKey,
		PeerPublicKey: proposal.ResponderPublicKey,
		Chain:         chainRef,
		Accounts:      ns.Accounts,
		Methods:       ns.Methods,
		PeerName:      params.Controller.Metadata.Name,
		Expiry:        expiry,
	}

	w, err := c.newWallet(p, s, req.Chain)
	if err != nil {
		p.unsubscribe(context.Background(), sessionTopic)
		return nil, err
	}
	// later requests on the session topic go to the wallet
	if err := p.subscribe(ctx, sessionTopic, sessionKey, w.handle); err != nil {
		return nil, err
	}

	if c.store != nil {
		rec, err := s.record()
		if err == nil {
			err = c.store.SaveSession(rec)
		}
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist pairing session")
		}
	}
	c.logger.Info().Str("topic", sessionTopic).Str("peer", s.PeerName).Str("address", w.address).Msg("pairing approved")
	return w, nil
}

func (c *Connector) newWallet(p *peer, s Session, chain wallet.Chain) (*Wallet, error) {
	address, err := s.Address()
	if err != nil {
		return nil, err
	}
	return &Wallet{
		peer:           p,
		session:        s,
		address:        address,
		chain:          chain,
		store:          c.store,
		requestTimeout: c.cfg.RequestTimeout(),
		logger:         c.logger.With().Str("topic", s.Topic).Logger(),
	}, nil
}

// Wallet is a wallet reached through a pairing session.
type Wallet struct {
	peer           *peer
	session        Session
	address        string
	chain          wallet.Chain
	store          SessionStore
	requestTimeout time.Duration
	logger         zerolog.Logger

	mu       sync.Mutex
	onChange func(wallet.Wallet)
	closed   bool
}

var _ wallet.Wallet = (*Wallet)(nil)

func (w *Wallet) Kind() wallet.Kind { return wallet.KindPairing }

// Account has no public key, pairing sessions only reveal addresses.
func (w *Wallet) Account() wallet.Account {
	return wallet.Account{Address: w.address, Algo: wallet.AlgoSecp256k1}
}

// Session returns the pairing session behind the wallet.
func (w *Wallet) Session() Session { return w.session }

func (w *Wallet) OnChange(fn func(wallet.Wallet)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// SignAndBroadcast asks the paired wallet to sign msgs and broadcasts the
// signed transaction through the chain connection.
func (w *Wallet) SignAndBroadcast(ctx context.Context, msgs []sdk.Msg, feeDenom, memo string) (*network.DeliverTxResponse, error) {
	encoded, err := EncodeMsgs(msgs)
	if err != nil {
		return nil, err
	}
	params, err := json.Marshal(SignTxParams{FeeDenom: feeDenom, Memo: memo, Msgs: encoded})
	if err != nil {
		return nil, err
	}

	reqCtx := ctx
	if w.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, w.requestTimeout)
		defer cancel()
	}

	w.logger.Info().Int("msg_count", len(msgs)).Str("method", w.session.Method()).Msg("requesting signature from paired wallet")
	raw, err := w.peer.request(reqCtx, w.session.Topic, MethodSessionRequest, SessionRequestParams{
		ChainID: w.session.Chain,
		Request: WalletRequest{Method: w.session.Method(), Params: params},
	})
	if err != nil {
		if rpcErr, ok := err.(*RPCError); ok {
			return nil, nerrors.NewWalletError("", "paired wallet declined the request", rpcErr)
		}
		return nil, err
	}

	var b64 string
	if err := json.Unmarshal(raw, &b64); err != nil {
		return nil, fmt.Errorf("invalid signed transaction from paired wallet: %w", err)
	}
	txBytes, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid signed transaction encoding: %w", err)
	}
	return w.chain.BroadcastTx(ctx, txBytes)
}

// Disconnect tells the wallet the user closed the session and forgets it.
func (w *Wallet) Disconnect(ctx context.Context) error {
	if err := w.peer.notify(ctx, w.session.Topic, MethodSessionDelete, UserClosed); err != nil {
		w.logger.Warn().Err(err).Msg("failed to notify wallet of disconnect")
	}
	w.forget()
	return w.Close()
}

// Close releases the relay connection. The session stays stored.
func (w *Wallet) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.peer.unsubscribe(context.Background(), w.session.Topic)
	return w.peer.close()
}

func (w *Wallet) forget() {
	if w.store == nil {
		return
	}
	if err := w.store.DeleteSession(w.session.Topic); err != nil {
		w.logger.Warn().Err(err).Msg("failed to delete pairing session")
	}
}

// handle serves requests the paired wallet sends on the session topic.
func (w *Wallet) handle(_ context.Context, _ string, req *Request) (any, *RPCError) {
	switch req.Method {
	case MethodSessionPing:
		return true, nil
	case MethodSessionDelete:
		var params DeleteParams
		_ = json.Unmarshal(req.Params, &params)
		w.logger.Info().Int("code", params.Code).Str("reason", params.Message).Msg("paired wallet ended the session")
		w.forget()
		go func() {
			_ = w.Close()
		}()
		w.mu.Lock()
		fn := w.onChange
		w.mu.Unlock()
		if fn != nil {
			fn(nil)
		}
		return nil, nil
	default:
		return nil, &RPCError{Code: CodeUnsupportedMethod, Message: "unsupported method " + req.Method}
	}
}

// EncodeMsgs packs msgs as Any with base64 values.
func EncodeMsgs(msgs []sdk.Msg) ([]EncodedMsg, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no messages to sign")
	}
	out := make([]EncodedMsg, 0, len(msgs))
	for _, m := range msgs {
		a, err := codectypes.NewAnyWithValue(m)
		if err != nil {
			return nil, fmt.Errorf("failed to pack %T: %w", m, err)
		}
		out = append(out, EncodedMsg{TypeURL: a.TypeUrl, Value: base64.StdEncoding.EncodeToString(a.Value)})
	}
	return out, nil
}

// DecodeMsgs resolves encoded msgs through the interface registry.
func DecodeMsgs(registry codectypes.InterfaceRegistry, encoded []EncodedMsg) ([]sdk.Msg, error) {
	msgs := make([]sdk.Msg, 0, len(encoded))
	for _, e := range encoded {
		value, err := base64.StdEncoding.DecodeString(e.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", e.TypeURL, err)
		}
		var msg sdk.Msg
		if err := registry.UnpackAny(&codectypes.Any{TypeUrl: e.TypeURL, Value: value}, &msg); err != nil {
			return nil, fmt.Errorf("failed to unpack %s: %w", e.TypeURL, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
