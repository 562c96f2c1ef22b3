package transaction

import (
	"context"
	"fmt"
	"sync"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/config"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/store"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

// Wallet is the part of the wallet manager the flow needs.
type Wallet interface {
	Account() (wallet.Account, bool)
	Balance(denom string) math.Int
	SignAndBroadcast(ctx context.Context, msgs []sdk.Msg, memo string) (*network.DeliverTxResponse, error)
}

// Chain is the part of the network manager the flow needs.
type Chain interface {
	Network() string
	NetworkConfig() config.NetworkConfig
	ExplorerTxURL(hash string) string
}

// Recorder keeps submitted transactions.
type Recorder interface {
	RecordTx(rec *store.TxRecord) error
}

// State of the flow.
type State string

const (
	StateIdle    State = "idle"
	StateWorking State = "working"
	StateSuccess State = "success"
	StateFailure State = "failure"
)

// Result is the latest submission and its outcome.
type Result struct {
	State       State                      `json:"state" yaml:"state"`
	Kind        Kind                       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Denom       string                     `json:"denom,omitempty" yaml:"denom,omitempty"`
	Amount      string                     `json:"amount,omitempty" yaml:"amount,omitempty"`
	Response    *network.DeliverTxResponse `json:"response,omitempty" yaml:"response,omitempty"`
	Err         error                      `json:"-" yaml:"-"`
	Error       string                     `json:"error,omitempty" yaml:"error,omitempty"`
	ExplorerURL string                     `json:"explorer_url,omitempty" yaml:"explorer_url,omitempty"`
}

// Option configures a Flow.
type Option func(*Flow)

// WithRecorder stores every finished submission.
func WithRecorder(r Recorder) Option {
	return func(f *Flow) { f.recorder = r }
}

// WithObserver is called with the kind and final state of each submission.
func WithObserver(fn func(kind Kind, state State)) Option {
	return func(f *Flow) { f.observe = fn }
}

// Flow submits deposits and withdrawals to the vault contract, one at a time.
type Flow struct {
	wallet   Wallet
	chain    Chain
	cfg      config.Config
	logger   zerolog.Logger
	recorder Recorder
	observe  func(Kind, State)

	mu        sync.Mutex
	result    Result
	listeners map[int]func(Result)
	nextID    int
}

func NewFlow(w Wallet, chain Chain, cfg config.Config, logger zerolog.Logger, opts ...Option) *Flow {
	f := &Flow{
		wallet:    w,
		chain:     chain,
		cfg:       cfg,
		logger:    logger.With().Str("component", "transaction").Logger(),
		result:    Result{State: StateIdle},
		listeners: make(map[int]func(Result)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Submit sends amount of denom to the vault as kind and waits for the
// outcome. Validation errors leave the flow idle.
func (f *Flow) Submit(ctx context.Context, kind Kind, amount, denom string) (Result, error) {
	account, ok := f.wallet.Account()
	if !ok {
		return f.Result(), nerrors.ErrAccountMissing
	}
	if amount == "" {
		return f.Result(), nerrors.ErrAmountMissing
	}
	if denom == "" {
		return f.Result(), nerrors.ErrDenomMissing
	}
	netCfg := f.chain.NetworkConfig()
	if netCfg.VaultContract == "" {
		return f.Result(), nerrors.NewValidationError(f.chain.Network(), "network has no vault contract configured")
	}
	if !f.allowed(kind, denom) {
		return f.Result(), nerrors.NewValidationError(f.chain.Network(), fmt.Sprintf("%s is not available for %s", denom, kind))
	}
	base, err := ParseAmount(amount, f.cfg.TokenDecimals)
	if err != nil {
		return f.Result(), err
	}
	msg, err := BuildExecuteMsg(account.Address, netCfg.VaultContract, kind, sdk.NewCoin(denom, base))
	if err != nil {
		return f.Result(), err
	}

	f.mu.Lock()
	if f.result.State == StateWorking {
		f.mu.Unlock()
		return f.Result(), fmt.Errorf("a %s is already in progress", f.result.Kind)
	}
	f.result = Result{State: StateWorking, Kind: kind, Denom: denom, Amount: amount}
	f.mu.Unlock()
	f.notify()

	f.logger.Info().Str("kind", string(kind)).Str("denom", denom).Str("amount", base.String()).Msg("submitting vault transaction")
	resp, err := f.wallet.SignAndBroadcast(ctx, []sdk.Msg{msg}, "")

	res := Result{Kind: kind, Denom: denom, Amount: amount, Response: resp}
	if err != nil {
		res.State = StateFailure
		res.Err = err
		res.Error = err.Error()
		f.logger.Error().Err(err).Str("kind", string(kind)).Msg("vault transaction failed")
	} else {
		res.State = StateSuccess
		res.ExplorerURL = f.chain.ExplorerTxURL(resp.TxHash)
		f.logger.Info().Str("tx_hash", resp.TxHash).Int64("height", resp.Height).Msg("vault transaction succeeded")
	}
	f.record(account.Address, base, res)

	f.mu.Lock()
	f.result = res
	f.mu.Unlock()
	f.notify()
	if f.observe != nil {
		f.observe(kind, res.State)
	}
	return res, err
}

func (f *Flow) record(sender string, base math.Int, res Result) {
	if f.recorder == nil {
		return
	}
	rec := &store.TxRecord{
		Network: f.chain.Network(),
		Kind:    string(res.Kind),
		Sender:  sender,
		Denom:   res.Denom,
		Amount:  base.String(),
		Status:  string(res.State),
	}
	if res.Response != nil {
		rec.TxHash = res.Response.TxHash
		rec.Code = res.Response.Code
		rec.Height = res.Response.Height
		rec.RawLog = res.Response.RawLog
	}
	if res.Err != nil && rec.RawLog == "" {
		rec.RawLog = res.Err.Error()
	}
	if err := f.recorder.RecordTx(rec); err != nil {
		f.logger.Warn().Err(err).Msg("failed to record transaction")
	}
}

func (f *Flow) allowed(kind Kind, denom string) bool {
	opts := f.Options(kind)
	if len(opts) == 0 {
		return true
	}
	for _, o := range opts {
		if o.Denom == denom {
			return !o.Disabled
		}
	}
	return false
}

// Result returns the latest outcome.
func (f *Flow) Result() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// Reset returns a finished flow to idle.
func (f *Flow) Reset() {
	f.mu.Lock()
	if f.result.State == StateWorking {
		f.mu.Unlock()
		return
	}
	f.result = Result{State: StateIdle}
	f.mu.Unlock()
	f.notify()
}

// Subscribe registers fn for every state transition and returns a function
// that removes it.
func (f *Flow) Subscribe(fn func(Result)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *Flow) notify() {
	f.mu.Lock()
	res := f.result
	fns := make([]func(Result), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(res)
	}
}

// Options lists the tokens offered for kind.
func (f *Flow) Options(kind Kind) []config.DenomOption {
	if kind == Deposit {
		return f.cfg.DepositDenoms
	}
	return f.cfg.WithdrawDenoms
}

// DefaultDenom is the first enabled token for kind.
func (f *Flow) DefaultDenom(kind Kind) string {
	for _, o := range f.Options(kind) {
		if !o.Disabled {
			return o.Denom
		}
	}
	return ""
}

// MaxAmount is the wallet's cached balance of denom in display units.
func (f *Flow) MaxAmount(denom string) string {
	return FormatAmount(f.wallet.Balance(denom), f.cfg.TokenDecimals, f.cfg.TokenDecimals)
}
