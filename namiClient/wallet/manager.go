package wallet

import (
	"context"
	"io"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/constant"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/network"
)

// backgroundTimeout bounds work started by network events.
const backgroundTimeout = 30 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithPairingURIHandler receives pairing URIs to show to the user.
func WithPairingURIHandler(fn func(uri string)) Option {
	return func(m *Manager) { m.onPairingURI = fn }
}

// WithConnectObserver is told the outcome of every connect attempt.
func WithConnectObserver(fn func(kind Kind, err error)) Option {
	return func(m *Manager) { m.connectObserver = fn }
}

// Manager owns the connected wallet. It reconnects the stored adapter on
// start and on network changes, caches balances of the connected account
// and signs through whichever adapter is active.
type Manager struct {
	chain      Chain
	prefs      network.Preferences
	connectors map[Kind]Connector
	cfg        config.Config
	logger     zerolog.Logger

	onPairingURI    func(uri string)
	connectObserver func(kind Kind, err error)

	mu           sync.RWMutex
	wallet       Wallet
	state        State
	balances     map[string]math.Int
	coins        sdk.Coins
	chainAccount sdk.AccountI

	listenersMu sync.RWMutex
	listeners   map[int]func(Change)
	nextID      int

	unsubscribe func()
	wg          sync.WaitGroup
}

// NewManager creates a wallet manager over chain.
func NewManager(
	chain Chain,
	prefs network.Preferences,
	connectors map[Kind]Connector,
	cfg config.Config,
	logger zerolog.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		chain:      chain,
		prefs:      prefs,
		connectors: connectors,
		cfg:        cfg,
		logger:     logger.With().Str("component", "wallet").Logger(),
		state:      StateDisconnected,
		balances:   make(map[string]math.Int),
		listeners:  make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start follows network events and reconnects the stored adapter. A stored
// read-only wallet reconnects to its stored address.
func (m *Manager) Start(ctx context.Context) error {
	if m.unsubscribe == nil {
		m.unsubscribe = m.chain.Subscribe(m.handleNetworkEvent)
	}

	stored, ok := m.pref(constant.PrefWallet)
	if !ok {
		return nil
	}
	kind, err := ParseKind(stored)
	if err != nil {
		m.logger.Warn().Str("adapter", stored).Msg("ignoring unknown stored adapter")
		m.clearPref(constant.PrefWallet)
		return nil
	}

	if kind == KindReadOnly {
		if address, ok := m.pref(constant.PrefAddress); ok {
			return m.connect(ctx, kind, address, true)
		}
	}
	return m.connect(ctx, kind, "", true)
}

// Connect connects the adapter of the given kind.
func (m *Manager) Connect(ctx context.Context, kind Kind) error {
	return m.connect(ctx, kind, "", false)
}

// ConnectReadOnly watches address without the ability to sign.
func (m *Manager) ConnectReadOnly(ctx context.Context, address string) error {
	return m.connect(ctx, KindReadOnly, address, false)
}

func (m *Manager) connect(ctx context.Context, kind Kind, address string, auto bool) error {
	connector, ok := m.connectors[kind]
	if !ok || connector == nil {
		return errorsmod.Wrap(nerrors.ErrUnknownAdapter, string(kind))
	}

	m.setState(StateConnecting)

	w, err := connector.Connect(ctx, ConnectRequest{
		Network:      m.chain.ChainID(),
		Chain:        m.chain,
		FeeDenom:     m.FeeDenom(),
		Address:      address,
		Auto:         auto,
		OnPairingURI: m.onPairingURI,
	})
	if m.connectObserver != nil {
		m.connectObserver(kind, err)
	}
	if err != nil {
		m.logger.Error().Err(err).Str("adapter", string(kind)).Msg("wallet connection failed")
		m.clearPref(constant.PrefWallet)
		m.mu.Lock()
		if m.wallet != nil {
			m.state = StateConnected
		} else {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
		m.notify()
		return err
	}

	if err := m.setPref(constant.PrefWallet, string(kind)); err != nil {
		m.logger.Warn().Err(err).Msg("failed to store adapter")
	}
	m.replace(ctx, w)

	m.logger.Info().
		Str("adapter", string(kind)).
		Str("address", w.Account().Address).
		Str("network", m.chain.ChainID()).
		Msg("wallet connected")
	return nil
}

// replace installs w as the connected wallet and releases the previous one.
func (m *Manager) replace(ctx context.Context, w Wallet) {
	m.mu.Lock()
	old := m.wallet
	m.wallet = w
	m.state = StateConnected
	m.resetBalancesLocked()
	m.mu.Unlock()

	if old != nil && old != w {
		m.release(ctx, old, w)
	}

	if err := m.setPref(constant.PrefAddress, w.Account().Address); err != nil {
		m.logger.Warn().Err(err).Msg("failed to store address")
	}
	m.watch(w)
	m.refreshChainAccount(ctx)
	m.notify()
}

// release lets go of a replaced wallet. A wallet of another kind is
// disconnected; one of the same kind only frees its local resources, as
// its session carries over to the replacement.
func (m *Manager) release(ctx context.Context, old, replacement Wallet) {
	if old.Kind() != replacement.Kind() {
		if err := old.Disconnect(ctx); err != nil {
			m.logger.Warn().Err(err).Str("adapter", string(old.Kind())).Msg("failed to disconnect replaced wallet")
		}
		return
	}
	if c, ok := old.(io.Closer); ok {
		_ = c.Close()
	}
}

func (m *Manager) watch(w Wallet) {
	w.OnChange(func(next Wallet) {
		m.handleWalletChange(w, next)
	})
}

// handleWalletChange applies a change reported by src. Reports from a
// wallet that is no longer connected are ignored.
func (m *Manager) handleWalletChange(src, next Wallet) {
	m.mu.Lock()
	if m.wallet != src {
		m.mu.Unlock()
		return
	}
	if next == nil {
		m.wallet = nil
		m.state = StateDisconnected
		m.resetBalancesLocked()
		m.mu.Unlock()
		m.logger.Info().Str("adapter", string(src.Kind())).Msg("wallet went away")
		m.notify()
		return
	}
	m.mu.Unlock()

	m.logger.Info().
		Str("adapter", string(next.Kind())).
		Str("address", next.Account().Address).
		Msg("wallet changed")
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()
	m.replace(ctx, next)
}

func (m *Manager) handleNetworkEvent(ev network.Event) {
	switch ev.Type {
	case network.NetworkChanged:
		m.mu.RLock()
		w := m.wallet
		m.mu.RUnlock()
		if w == nil {
			return
		}
		kind := w.Kind()
		address := ""
		if kind == KindReadOnly {
			address = w.Account().Address
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
			defer cancel()
			if err := m.connect(ctx, kind, address, false); err != nil {
				m.logger.Error().Err(err).Str("network", ev.Network).Msg("failed to reconnect wallet after network change")
			}
		}()

	case network.ConnectionChanged, network.ConnectionLost:
		m.mu.Lock()
		m.resetBalancesLocked()
		connected := m.wallet != nil
		m.mu.Unlock()
		if !connected || ev.Type == network.ConnectionLost {
			return
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
			defer cancel()
			m.refreshChainAccount(ctx)
		}()
	}
}

func (m *Manager) refreshChainAccount(ctx context.Context) {
	m.mu.RLock()
	w := m.wallet
	m.mu.RUnlock()
	if w == nil {
		return
	}
	q, err := m.chain.Query()
	if err != nil {
		return
	}
	acc, err := q.Account(ctx, w.Account().Address)
	if err != nil {
		m.logger.Debug().Err(err).Str("address", w.Account().Address).Msg("chain account unavailable")
		return
	}
	m.mu.Lock()
	if m.wallet == w {
		m.chainAccount = acc
	}
	m.mu.Unlock()
}

// Disconnect forgets the stored adapter and ends the wallet session.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.clearPref(constant.PrefWallet)

	m.mu.Lock()
	w := m.wallet
	m.wallet = nil
	m.state = StateDisconnected
	m.resetBalancesLocked()
	m.mu.Unlock()
	m.notify()

	if w == nil {
		return nil
	}
	m.logger.Info().Str("adapter", string(w.Kind())).Msg("wallet disconnected")
	return w.Disconnect(ctx)
}

// SignAndBroadcast signs msgs with the connected wallet, paying fees in the
// selected fee denom, and requires the transaction to succeed on chain.
func (m *Manager) SignAndBroadcast(ctx context.Context, msgs []sdk.Msg, memo string) (*network.DeliverTxResponse, error) {
	w := m.Wallet()
	if w == nil {
		return nil, nerrors.ErrNoWallet
	}

	resp, err := w.SignAndBroadcast(ctx, msgs, m.FeeDenom(), memo)
	if err != nil {
		return resp, err
	}
	if !resp.IsSuccess() {
		return resp, errorsmod.Wrapf(nerrors.ErrTxFailed,
			"transaction %s failed with code %d: %s", resp.TxHash, resp.Code, resp.RawLog)
	}
	return resp, nil
}

// Balance returns the cached balance of denom, zero when unknown.
func (m *Manager) Balance(denom string) math.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.balances[denom]; ok {
		return b
	}
	return math.ZeroInt()
}

// FetchBalance queries the balance of denom and caches it. Without a wallet
// or a connection the balance is zero.
func (m *Manager) FetchBalance(ctx context.Context, denom string) (math.Int, error) {
	w := m.Wallet()
	if w == nil {
		return math.ZeroInt(), nil
	}
	q, err := m.chain.Query()
	if err != nil {
		return math.ZeroInt(), nil
	}

	coin, err := q.Balance(ctx, w.Account().Address, denom)
	if err != nil {
		return math.ZeroInt(), err
	}
	amount := coin.Amount
	if amount.IsNil() {
		amount = math.ZeroInt()
	}

	m.mu.Lock()
	if m.wallet == w {
		m.balances[denom] = amount
	}
	m.mu.Unlock()
	return amount, nil
}

// GetBalance fetches denom when it is already cached or refresh is set and
// returns zero otherwise.
func (m *Manager) GetBalance(ctx context.Context, denom string, refresh bool) (math.Int, error) {
	m.mu.RLock()
	_, cached := m.balances[denom]
	m.mu.RUnlock()
	if cached || refresh {
		return m.FetchBalance(ctx, denom)
	}
	return math.ZeroInt(), nil
}

// RefreshBalances loads every balance of the connected account.
func (m *Manager) RefreshBalances(ctx context.Context) error {
	w := m.Wallet()
	if w == nil {
		return nil
	}
	q, err := m.chain.Query()
	if err != nil {
		return err
	}

	coins, err := q.AllBalances(ctx, w.Account().Address)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wallet != w {
		return nil
	}
	m.coins = coins
	for _, c := range coins {
		if c.Denom == "" {
			continue
		}
		m.balances[c.Denom] = c.Amount
	}
	return nil
}

// Balances returns the balances loaded by the last RefreshBalances.
func (m *Manager) Balances() sdk.Coins {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coins
}

// ChainAccount returns the on-chain account of the connected wallet, or nil.
func (m *Manager) ChainAccount() sdk.AccountI {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chainAccount
}

// FeeDenom returns the denom fees are paid in.
func (m *Manager) FeeDenom() string {
	if d, ok := m.pref(constant.PrefFeeDenom); ok {
		return d
	}
	if m.cfg.FeeDenom != "" {
		return m.cfg.FeeDenom
	}
	return constant.DefaultFeeDenom
}

// SetFeeDenom selects and stores the fee denom.
func (m *Manager) SetFeeDenom(denom string) error {
	if err := sdk.ValidateDenom(denom); err != nil {
		return nerrors.NewValidationError(m.chain.ChainID(), err.Error())
	}
	return m.setPref(constant.PrefFeeDenom, denom)
}

// Wallet returns the connected wallet, or nil.
func (m *Manager) Wallet() Wallet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.wallet
}

// Kind returns the adapter of the connected wallet, or "".
func (m *Manager) Kind() Kind {
	if w := m.Wallet(); w != nil {
		return w.Kind()
	}
	return ""
}

// Account returns the connected account and whether there is one.
func (m *Manager) Account() (Account, bool) {
	if w := m.Wallet(); w != nil {
		return w.Account(), true
	}
	return Account{}, false
}

// State returns the connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe registers fn for wallet changes and returns a function that
// removes it.
func (m *Manager) Subscribe(fn func(Change)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

// Close stops following network events and waits for background work.
// The wallet stays connected.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.wg.Wait()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) notify() {
	m.mu.RLock()
	change := Change{State: m.state}
	if m.wallet != nil {
		change.Kind = m.wallet.Kind()
		change.Account = m.wallet.Account()
	}
	m.mu.RUnlock()

	m.listenersMu.RLock()
	fns := make([]func(Change), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.RUnlock()
	for _, fn := range fns {
		fn(change)
	}
}

func (m *Manager) resetBalancesLocked() {
	m.balances = make(map[string]math.Int)
	m.coins = nil
	m.chainAccount = nil
}

func (m *Manager) pref(key string) (string, bool) {
	if m.prefs == nil {
		return "", false
	}
	v, ok, err := m.prefs.Get(key)
	if err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to read preference")
		return "", false
	}
	return v, ok && v != ""
}

func (m *Manager) setPref(key, value string) error {
	if m.prefs == nil {
		return nil
	}
	return m.prefs.Set(key, value)
}

func (m *Manager) clearPref(key string) {
	if m.prefs == nil {
		return
	}
	if err := m.prefs.Delete(key); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to clear preference")
	}
}
