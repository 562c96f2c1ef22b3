package wallet

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/client"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/constant"
	"github.com/nami-protocol/nami-client/namiClient/db"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/network"
)

func TestMain(m *testing.M) {
	cfg := sdk.GetConfig()
	cfg.SetBech32PrefixForAccount(constant.Bech32Prefix, constant.Bech32Prefix+"pub")
	cfg.Seal()

	os.Exit(m.Run())
}

type fakeQuerier struct {
	network.Querier

	mu       sync.Mutex
	balances map[string]sdk.Coins
	calls    int
}

func (q *fakeQuerier) Balance(_ context.Context, address, denom string) (sdk.Coin, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return sdk.Coin{Denom: denom, Amount: q.balances[address].AmountOf(denom)}, nil
}

func (q *fakeQuerier) AllBalances(_ context.Context, address string) (sdk.Coins, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return q.balances[address], nil
}

func (q *fakeQuerier) Account(_ context.Context, address string) (sdk.AccountI, error) {
	addr, err := sdk.AccAddressFromBech32(address)
	if err != nil {
		return nil, nerrors.ErrAccountMissing
	}
	return authtypes.NewBaseAccount(addr, nil, 7, 3), nil
}

type fakeChain struct {
	id      string
	querier *fakeQuerier

	mu        sync.Mutex
	listeners map[int]func(network.Event)
	next      int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		id:        constant.Testnet,
		querier:   &fakeQuerier{balances: map[string]sdk.Coins{}},
		listeners: map[int]func(network.Event){},
	}
}

func (c *fakeChain) ChainID() string { return c.id }
func (c *fakeChain) RPC() string     { return "http://fake:26657" }
func (c *fakeChain) Query() (network.Querier, error) {
	return c.querier, nil
}

func (c *fakeChain) BroadcastTx(context.Context, []byte) (*network.DeliverTxResponse, error) {
	return nil, errors.New("not used")
}
func (c *fakeChain) TxConfig() client.TxConfig { return nil }

func (c *fakeChain) Subscribe(fn func(network.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *fakeChain) emit(ev network.Event) {
	c.mu.Lock()
	fns := make([]func(network.Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

type fakeWallet struct {
	kind    Kind
	address string
	resp    *network.DeliverTxResponse
	err     error

	mu           sync.Mutex
	onChange     func(Wallet)
	disconnected bool
	closed       bool
	feeDenom     string
}

func (w *fakeWallet) Kind() Kind { return w.kind }
func (w *fakeWallet) Account() Account {
	return Account{Address: w.address, Algo: AlgoSecp256k1}
}

func (w *fakeWallet) SignAndBroadcast(_ context.Context, _ []sdk.Msg, feeDenom, _ string) (*network.DeliverTxResponse, error) {
	w.mu.Lock()
	w.feeDenom = feeDenom
	w.mu.Unlock()
	return w.resp, w.err
}

func (w *fakeWallet) OnChange(fn func(Wallet)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

func (w *fakeWallet) change(next Wallet) {
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(next)
	}
}

func (w *fakeWallet) Disconnect(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disconnected = true
	return nil
}

func (w *fakeWallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWallet) isDisconnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disconnected
}

func (w *fakeWallet) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

const (
	aliceAddr = "kujira1qs9hp47w86tvftrwj57tu0nn3xkeltmzs94w6knnjx8gnefmzsjqwg2986"
	bobAddr   = "kujira1qyqszqgpqyqszqgpqyqszqgpqyqszqgprmrxqk"
)

// connectorFor returns a connector handing out the wallets in order and
// recording the requests it saw.
func connectorFor(wallets ...*fakeWallet) (Connector, func() []ConnectRequest) {
	var mu sync.Mutex
	var reqs []ConnectRequest
	i := 0
	c := ConnectorFunc(func(_ context.Context, req ConnectRequest) (Wallet, error) {
		mu.Lock()
		defer mu.Unlock()
		reqs = append(reqs, req)
		if i >= len(wallets) {
			return nil, errors.New("wallet rejected the connection")
		}
		w := wallets[i]
		i++
		if req.Address != "" {
			w.address = req.Address
		}
		return w, nil
	})
	return c, func() []ConnectRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]ConnectRequest(nil), reqs...)
	}
}

func newTestManager(t *testing.T, chain *fakeChain, connectors map[Kind]Connector) (*Manager, *db.Preferences) {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	prefs := database.Preferences()
	m := NewManager(chain, prefs, connectors, config.Config{}, zerolog.Nop())
	t.Cleanup(m.Close)
	return m, prefs
}

func TestParseKind(t *testing.T) {
	testCases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "keyring", want: KindKeyring},
		{in: "pairing", want: KindPairing},
		{in: "readOnly", want: KindReadOnly},
		{in: "read-only", want: KindReadOnly},
		{in: "ledger", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseKind(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestManager_ConnectStoresAdapter(t *testing.T) {
	chain := newFakeChain()
	w := &fakeWallet{kind: KindKeyring, address: aliceAddr}
	keyring, requests := connectorFor(w)
	m, prefs := newTestManager(t, chain, map[Kind]Connector{KindKeyring: keyring})

	var changes []Change
	m.Subscribe(func(c Change) { changes = append(changes, c) })

	require.NoError(t, m.Connect(context.Background(), KindKeyring))

	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, KindKeyring, m.Kind())
	acc, ok := m.Account()
	require.True(t, ok)
	assert.Equal(t, aliceAddr, acc.Address)

	stored, ok, err := prefs.Get(constant.PrefWallet)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "keyring", stored)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, constant.Testnet, reqs[0].Network)
	assert.Equal(t, constant.DefaultFeeDenom, reqs[0].FeeDenom)
	assert.False(t, reqs[0].Auto)

	require.NotEmpty(t, changes)
	assert.Equal(t, StateConnecting, changes[0].State)
	assert.Equal(t, StateConnected, changes[len(changes)-1].State)

	require.NotNil(t, m.ChainAccount())
	assert.Equal(t, uint64(7), m.ChainAccount().GetAccountNumber())
}

func TestManager_ConnectUnknownAdapter(t *testing.T) {
	m, _ := newTestManager(t, newFakeChain(), nil)
	err := m.Connect(context.Background(), KindPairing)
	require.Error(t, err)
	assert.ErrorIs(t, err, nerrors.ErrUnknownAdapter)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_ConnectFailureKeepsPreviousWallet(t *testing.T) {
	chain := newFakeChain()
	w := &fakeWallet{kind: KindKeyring, address: aliceAddr}
	keyring, _ := connectorFor(w)
	pairing, _ := connectorFor()
	m, prefs := newTestManager(t, chain, map[Kind]Connector{KindKeyring: keyring, KindPairing: pairing})

	require.NoError(t, m.Connect(context.Background(), KindKeyring))
	require.Error(t, m.Connect(context.Background(), KindPairing))

	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, KindKeyring, m.Kind())
	assert.False(t, w.isDisconnected())

	_, ok, err := prefs.Get(constant.PrefWallet)
	require.NoError(t, err)
	assert.False(t, ok, "failed adapter must not stay stored")
}

func TestManager_ReplaceWallet(t *testing.T) {
	chain := newFakeChain()
	first := &fakeWallet{kind: KindKeyring, address: aliceAddr}
	second := &fakeWallet{kind: KindKeyring, address: bobAddr}
	other := &fakeWallet{kind: KindReadOnly}
	keyring, _ := connectorFor(first, second)
	readOnly, _ := connectorFor(other)
	m, _ := newTestManager(t, chain, map[Kind]Connector{KindKeyring: keyring, KindReadOnly: readOnly})
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx, KindKeyring))
	require.NoError(t, m.Connect(ctx, KindKeyring))
	assert.True(t, first.isClosed(), "same kind replacement frees resources")
	assert.False(t, first.isDisconnected(), "same kind replacement keeps the session")

	require.NoError(t, m.ConnectReadOnly(ctx, aliceAddr))
	assert.True(t, second.isDisconnected(), "switching adapters disconnects the old wallet")
	assert.Equal(t, KindReadOnly, m.Kind())
}

func TestManager_StartAutoConnects(t *testing.T) {
	testCases := []struct {
		name        string
		prefs       map[string]string
		wantKind    Kind
		wantAddress string
		wantAuto    bool
	}{
		{
			name:     "nothing stored",
			prefs:    map[string]string{},
			wantKind: "",
		},
		{
			name:     "stored keyring",
			prefs:    map[string]string{constant.PrefWallet: "keyring"},
			wantKind: KindKeyring,
			wantAuto: true,
		},
		{
			name:        "stored read-only uses stored address",
			prefs:       map[string]string{constant.PrefWallet: "readOnly", constant.PrefAddress: bobAddr},
			wantKind:    KindReadOnly,
			wantAddress: bobAddr,
			wantAuto:    true,
		},
		{
			name:     "unknown stored adapter",
			prefs:    map[string]string{constant.PrefWallet: "ledger"},
			wantKind: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			chain := newFakeChain()
			keyring, keyringReqs := connectorFor(&fakeWallet{kind: KindKeyring, address: aliceAddr})
			readOnly, readOnlyReqs := connectorFor(&fakeWallet{kind: KindReadOnly})
			m, prefs := newTestManager(t, chain, map[Kind]Connector{KindKeyring: keyring, KindReadOnly: readOnly})
			for k, v := range tc.prefs {
				require.NoError(t, prefs.Set(k, v))
			}

			require.NoError(t, m.Start(context.Background()))
			assert.Equal(t, tc.wantKind, m.Kind())

			var reqs []ConnectRequest
			switch tc.wantKind {
			case KindKeyring:
				reqs = keyringReqs()
			case KindReadOnly:
				reqs = readOnlyReqs()
			default:
				assert.Empty(t, keyringReqs())
				assert.Empty(t, readOnlyReqs())
				return
			}
			require.Len(t, reqs, 1)
			assert.Equal(t, tc.wantAuto, reqs[0].Auto)
			assert.Equal(t, tc.wantAddress, reqs[0].Address)
		})
	}
}

func TestManager_Balances(t *testing.T) {
	chain := newFakeChain()
	chain.querier.balances[aliceAddr] = sdk.NewCoins(
		sdk.NewInt64Coin("ukuji", 1_500_000),
		sdk.NewInt64Coin("unami", 42),
	)
	keyring, _ := connectorFor(&fakeWallet{kind: KindKeyring, address: aliceAddr})
	m, _ := newTestManager(t, chain, map[Kind]Connector{KindKeyring: keyring})
	ctx := context.Background()

	// no wallet, no balance
	b, err := m.FetchBalance(ctx, "ukuji")
	require.NoError(t, err)
	assert.True(t, b.IsZero())

	require.NoError(t, m.Connect(ctx, KindKeyring))

	b, err = m.GetBalance(ctx, "ukuji", false)
	require.NoError(t, err)
	assert.True(t, b.IsZero(), "uncached balance is not fetched without refresh")

	b, err = m.GetBalance(ctx, "ukuji", true)
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(1_500_000), b)
	assert.Equal(t, math.NewInt(1_500_000), m.Balance("ukuji"))

	// cached denoms are refetched
	chain.querier.balances[aliceAddr] = sdk.NewCoins(sdk.NewInt64Coin("ukuji", 10), sdk.NewInt64Coin("unami", 42))
	b, err = m.GetBalance(ctx, "ukuji", false)
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(10), b)

	require.NoError(t, m.RefreshBalances(ctx))
	assert.Equal(t, math.NewInt(42), m.Balance("unami"))
	assert.Len(t, m.Balances(), 2)

	require.NoError(t, m.Disconnect(ctx))
	assert.True(t, m.Balance("unami").IsZero())
	assert.Nil(t, m.Balances())
}

func TestManager_SignAndBroadcast(t *testing.T) {
	testCases := []struct {
		name    string
		resp    *network.DeliverTxResponse
		err     error
		wantErr error
	}{
		{
			name: "success",
			resp: &network.DeliverTxResponse{TxHash: "ABC", Height: 10},
		},
		{
			name:    "failed on chain",
			resp:    &network.DeliverTxResponse{TxHash: "ABC", Code: 5, RawLog: "insufficient funds"},
			wantErr: nerrors.ErrTxFailed,
		},
		{
			name:    "wallet error",
			err:     nerrors.ErrReadOnly,
			wantErr: nerrors.ErrReadOnly,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := &fakeWallet{kind: KindKeyring, address: aliceAddr, resp: tc.resp, err: tc.err}
			keyring, _ := connectorFor(w)
			m, _ := newTestManager(t, newFakeChain(), map[Kind]Connector{KindKeyring: keyring})
			require.NoError(t, m.SetFeeDenom("uusk"))
			require.NoError(t, m.Connect(context.Background(), KindKeyring))

			resp, err := m.SignAndBroadcast(context.Background(), nil, "")
			assert.Equal(t, "uusk", w.feeDenom)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ABC", resp.TxHash)
		})
	}
}

func TestManager_SignAndBroadcastNoWallet(t *testing.T) {
	m, _ := newTestManager(t, newFakeChain(), nil)
	_, err := m.SignAndBroadcast(context.Background(), nil, "")
	assert.ErrorIs(t, err, nerrors.ErrNoWallet)
}

func TestManager_FeeDenom(t *testing.T) {
	m, prefs := newTestManager(t, newFakeChain(), nil)
	assert.Equal(t, constant.DefaultFeeDenom, m.FeeDenom())

	require.NoError(t, m.SetFeeDenom("factory/kujira1qk00h5atutpsv900x202pxx42npjr9thg58dnqpa72f2p7m2luase444a7/uusk"))
	stored, ok, err := prefs.Get(constant.PrefFeeDenom)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored, m.FeeDenom())

	assert.Error(t, m.SetFeeDenom("1"))
}

func TestManager_WalletChange(t *testing.T) {
	chain := newFakeChain()
	w := &fakeWallet{kind: KindKeyring, address: aliceAddr}
	keyring, _ := connectorFor(w)
	m, prefs := newTestManager(t, chain, map[Kind]Connector{KindKeyring: keyring})
	require.NoError(t, m.Connect(context.Background(), KindKeyring))

	next := &fakeWallet{kind: KindKeyring, address: bobAddr}
	w.change(next)
	acc, ok := m.Account()
	require.True(t, ok)
	assert.Equal(t, bobAddr, acc.Address)
	stored, _, err := prefs.Get(constant.PrefAddress)
	require.NoError(t, err)
	assert.Equal(t, bobAddr, stored)

	// the replaced wallet no longer drives the manager
	w.change(nil)
	assert.Equal(t, StateConnected, m.State())

	next.change(nil)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Nil(t, m.Wallet())
}

func TestManager_ReconnectsOnNetworkChange(t *testing.T) {
	chain := newFakeChain()
	keyring, requests := connectorFor(
		&fakeWallet{kind: KindKeyring, address: aliceAddr},
		&fakeWallet{kind: KindKeyring, address: aliceAddr},
	)
	m, _ := newTestManager(t, chain, map[Kind]Connector{KindKeyring: keyring})
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Connect(ctx, KindKeyring))

	chain.id = constant.Mainnet
	chain.emit(network.Event{Type: network.NetworkChanged, Network: constant.Mainnet})

	require.Eventually(t, func() bool { return len(requests()) == 2 }, time.Second, 10*time.Millisecond)
	m.Close()
	reqs := requests()
	assert.Equal(t, constant.Mainnet, reqs[1].Network)
	assert.Equal(t, StateConnected, m.State())
}

func TestManager_ConnectionChangeClearsBalances(t *testing.T) {
	chain := newFakeChain()
	chain.querier.balances[aliceAddr] = sdk.NewCoins(sdk.NewInt64Coin("ukuji", 5))
	keyring, _ := connectorFor(&fakeWallet{kind: KindKeyring, address: aliceAddr})
	m, _ := newTestManager(t, chain, map[Kind]Connector{KindKeyring: keyring})
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Connect(ctx, KindKeyring))

	_, err := m.FetchBalance(ctx, "ukuji")
	require.NoError(t, err)
	require.False(t, m.Balance("ukuji").IsZero())

	chain.emit(network.Event{Type: network.ConnectionLost, Network: constant.Testnet})
	assert.True(t, m.Balance("ukuji").IsZero())
	assert.Nil(t, m.ChainAccount())
}
