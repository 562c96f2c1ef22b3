package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"cosmossdk.io/math"
	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/constant"
	"github.com/nami-protocol/nami-client/namiClient/db"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

const (
	sender = "kujira1qyqszqgpqyqszqgpqyqszqgpqyqszqgprmrxqk"
	vault  = "kujira1vault"
	usk    = "factory/kujira1r85/uusk"
	nausd  = "factory/kujira1qs9/unausd"
)

type fakeWallet struct {
	mu        sync.Mutex
	connected bool
	balances  map[string]math.Int
	resp      *network.DeliverTxResponse
	err       error
	msgs      []sdk.Msg
	block     chan struct{}
}

func (w *fakeWallet) Account() (wallet.Account, bool) {
	if !w.connected {
		return wallet.Account{}, false
	}
	return wallet.Account{Address: sender}, true
}

func (w *fakeWallet) Balance(denom string) math.Int {
	if b, ok := w.balances[denom]; ok {
		return b
	}
	return math.ZeroInt()
}

func (w *fakeWallet) SignAndBroadcast(_ context.Context, msgs []sdk.Msg, _ string) (*network.DeliverTxResponse, error) {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return w.resp, w.err
}

type fakeChain struct{}

func (fakeChain) Network() string { return constant.Testnet }
func (fakeChain) NetworkConfig() config.NetworkConfig {
	return config.NetworkConfig{VaultContract: vault, ExplorerURL: "https://finder.kujira.network/harpoon-4"}
}
func (fakeChain) ExplorerTxURL(hash string) string {
	return "https://finder.kujira.network/harpoon-4/tx/" + hash
}

func testConfig() config.Config {
	return config.Config{
		TokenDecimals: 6,
		DepositDenoms: []config.DenomOption{
			{Name: "USDC", Denom: "ibc/usdc", Disabled: true},
			{Name: "USK", Denom: usk},
		},
		WithdrawDenoms: []config.DenomOption{{Name: "naUSD", Denom: nausd}},
	}
}

func newTestFlow(t *testing.T, w *fakeWallet, opts ...Option) (*Flow, *db.DB) {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	opts = append([]Option{WithRecorder(database)}, opts...)
	return NewFlow(w, fakeChain{}, testConfig(), zerolog.Nop(), opts...), database
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("deposit")
	require.NoError(t, err)
	assert.Equal(t, "Deposit", k.Action())
	k, err = ParseKind("withdraw")
	require.NoError(t, err)
	assert.Equal(t, "Withdraw", k.Action())
	_, err = ParseKind("swap")
	assert.Error(t, err)
}

func TestBuildExecuteMsg(t *testing.T) {
	msg, err := BuildExecuteMsg(sender, vault, Withdraw, sdk.NewInt64Coin(nausd, 5))
	require.NoError(t, err)
	assert.Equal(t, sender, msg.Sender)
	assert.Equal(t, vault, msg.Contract)
	assert.JSONEq(t, `{"Withdraw":{}}`, string(msg.Msg))
	assert.Equal(t, sdk.NewCoins(sdk.NewInt64Coin(nausd, 5)), msg.Funds)
}

func TestFlow_SubmitValidation(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		kind      Kind
		amount    string
		denom     string
		wantErr   error
		wantCode  nerrors.ErrorCode
	}{
		{name: "no account", kind: Deposit, amount: "1", denom: usk, wantErr: nerrors.ErrAccountMissing},
		{name: "no amount", connected: true, kind: Deposit, denom: usk, wantErr: nerrors.ErrAmountMissing},
		{name: "no denom", connected: true, kind: Deposit, amount: "1", wantErr: nerrors.ErrDenomMissing},
		{name: "disabled denom", connected: true, kind: Deposit, amount: "1", denom: "ibc/usdc", wantCode: nerrors.ErrCodeValidation},
		{name: "wrong side denom", connected: true, kind: Withdraw, amount: "1", denom: usk, wantCode: nerrors.ErrCodeValidation},
		{name: "bad amount", connected: true, kind: Deposit, amount: "x", denom: usk, wantCode: nerrors.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWallet{connected: tt.connected}
			f, _ := newTestFlow(t, w)

			res, err := f.Submit(context.Background(), tt.kind, tt.amount, tt.denom)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.True(t, nerrors.IsClientError(err, tt.wantCode))
			}
			assert.Equal(t, StateIdle, res.State)
			assert.Empty(t, w.msgs)
		})
	}
}

func TestFlow_SubmitSuccess(t *testing.T) {
	w := &fakeWallet{connected: true, resp: &network.DeliverTxResponse{TxHash: "ABC", Height: 10}}
	var observed []State
	f, database := newTestFlow(t, w, WithObserver(func(_ Kind, s State) { observed = append(observed, s) }))

	var states []State
	unsubscribe := f.Subscribe(func(r Result) { states = append(states, r.State) })
	defer unsubscribe()

	res, err := f.Submit(context.Background(), Deposit, "1.5", usk)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, "https://finder.kujira.network/harpoon-4/tx/ABC", res.ExplorerURL)
	assert.Equal(t, []State{StateWorking, StateSuccess}, states)
	assert.Equal(t, []State{StateSuccess}, observed)

	require.Len(t, w.msgs, 1)
	exec, ok := w.msgs[0].(*wasmtypes.MsgExecuteContract)
	require.True(t, ok)
	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(exec.Msg, &payload))
	assert.Contains(t, payload, "Deposit")
	assert.Equal(t, "1500000", exec.Funds.AmountOf(usk).String())

	recs, err := database.TxHistory(constant.Testnet, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ABC", recs[0].TxHash)
	assert.Equal(t, "1500000", recs[0].Amount)
	assert.Equal(t, string(StateSuccess), recs[0].Status)

	f.Reset()
	assert.Equal(t, StateIdle, f.Result().State)
}

func TestFlow_SubmitFailure(t *testing.T) {
	w := &fakeWallet{connected: true, err: errors.New("Request rejected")}
	f, database := newTestFlow(t, w)

	res, err := f.Submit(context.Background(), Withdraw, "2", nausd)
	require.Error(t, err)
	assert.Equal(t, StateFailure, res.State)
	assert.Equal(t, "Request rejected", res.Error)
	assert.Empty(t, res.ExplorerURL)

	recs, err := database.TxHistory(constant.Testnet, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(StateFailure), recs[0].Status)
	assert.Equal(t, "Request rejected", recs[0].RawLog)
}

func TestFlow_SubmitWhileWorking(t *testing.T) {
	w := &fakeWallet{connected: true, resp: &network.DeliverTxResponse{TxHash: "A"}, block: make(chan struct{})}
	f, _ := newTestFlow(t, w)

	working := make(chan struct{})
	f.Subscribe(func(r Result) {
		if r.State == StateWorking {
			close(working)
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), Deposit, "1", usk)
		done <- err
	}()
	<-working

	_, err := f.Submit(context.Background(), Deposit, "1", usk)
	assert.ErrorContains(t, err, "already in progress")

	f.Reset()
	assert.Equal(t, StateWorking, f.Result().State)

	close(w.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateSuccess, f.Result().State)
}

func TestFlow_Options(t *testing.T) {
	w := &fakeWallet{connected: true, balances: map[string]math.Int{usk: math.NewInt(2_345_678)}}
	f, _ := newTestFlow(t, w)

	assert.Len(t, f.Options(Deposit), 2)
	assert.Equal(t, usk, f.DefaultDenom(Deposit))
	assert.Equal(t, nausd, f.DefaultDenom(Withdraw))
	assert.Equal(t, "2.345678", f.MaxAmount(usk))
	assert.Equal(t, "0.000000", f.MaxAmount(nausd))
}
