// Package local implements the keyring wallet adapter, signing with a key
// stored in the client's Cosmos keyring.
package local

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/tx"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/config"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/keys"
	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

const maxBroadcastAttempts = 3

// Signer signs with a keyring key and broadcasts through the chain connection.
type Signer struct {
	keys      keys.WalletKeys
	chain     wallet.Chain
	gasCfg    config.GasConfig
	gasPrices string
	address   string
	pubKey    []byte
	log       zerolog.Logger

	sequenceMutex sync.Mutex // serializes signing so sequences are not reused
	lastSequence  uint64

	changeMu sync.Mutex
	onChange func(wallet.Wallet)
	watcher  *keyringWatcher
}

var _ wallet.Wallet = (*Signer)(nil)

func newSigner(k keys.WalletKeys, chain wallet.Chain, gasCfg config.GasConfig, gasPrices string, log zerolog.Logger) (*Signer, error) {
	addr, err := k.GetAddress()
	if err != nil {
		return nil, err
	}
	pk, err := k.GetPubKey()
	if err != nil {
		return nil, err
	}
	return &Signer{
		keys:      k,
		chain:     chain,
		gasCfg:    gasCfg,
		gasPrices: gasPrices,
		address:   addr.String(),
		pubKey:    pk.Bytes(),
		log:       log.With().Str("component", "keyring_signer").Str("address", addr.String()).Logger(),
	}, nil
}

func (s *Signer) Kind() wallet.Kind { return wallet.KindKeyring }

func (s *Signer) Account() wallet.Account {
	return wallet.Account{Address: s.address, PubKey: s.pubKey, Algo: wallet.AlgoSecp256k1}
}

// OnChange registers fn to be told when the key behind the signer changes
// or is removed from the keyring.
func (s *Signer) OnChange(fn func(wallet.Wallet)) {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()
	s.onChange = fn
}

func (s *Signer) notifyChange(next wallet.Wallet) {
	s.changeMu.Lock()
	fn := s.onChange
	s.changeMu.Unlock()
	if fn != nil {
		fn(next)
	}
}

// Disconnect stops watching the keyring. Keys stay in place.
func (s *Signer) Disconnect(context.Context) error {
	return s.Close()
}

// Close stops watching the keyring.
func (s *Signer) Close() error {
	s.changeMu.Lock()
	w := s.watcher
	s.watcher = nil
	s.changeMu.Unlock()
	if w != nil {
		return w.Close()
	}
	return nil
}

// SignAndBroadcast signs msgs with the keyring key, paying fees in feeDenom
// at the network's gas price, and waits for the transaction to be included.
func (s *Signer) SignAndBroadcast(ctx context.Context, msgs []sdk.Msg, feeDenom, memo string) (*network.DeliverTxResponse, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no messages to sign")
	}

	price, err := GasPrice(s.gasPrices, feeDenom)
	if err != nil {
		return nil, err
	}

	s.sequenceMutex.Lock()
	defer s.sequenceMutex.Unlock()

	s.log.Info().
		Int("msg_count", len(msgs)).
		Str("fee_denom", feeDenom).
		Msg("Creating transaction")

	for attempt := 1; attempt <= maxBroadcastAttempts; attempt++ {
		txBytes, err := s.signedTx(ctx, msgs, price, memo)
		if err != nil {
			return nil, err
		}

		resp, err := s.chain.BroadcastTx(ctx, txBytes)
		if isSequenceMismatch(resp, err) && attempt < maxBroadcastAttempts {
			s.log.Warn().
				Uint64("current_sequence", s.lastSequence).
				Int("attempt", attempt).
				Msg("Sequence mismatch detected, forcing refresh and retrying")
			s.lastSequence = 0
			continue
		}
		if err != nil {
			// the sequence is consumed once the tx made it past CheckTx
			if resp != nil && resp.Code == 0 {
				s.lastSequence++
			}
			return resp, err
		}

		s.lastSequence++
		s.log.Info().
			Str("tx_hash", resp.TxHash).
			Int64("height", resp.Height).
			Uint32("code", resp.Code).
			Int64("gas_used", resp.GasUsed).
			Uint64("sequence_used", s.lastSequence-1).
			Msg("Transaction broadcasted")
		return resp, nil
	}

	return nil, fmt.Errorf("failed to broadcast transaction after %d attempts", maxBroadcastAttempts)
}

// SignTx signs msgs without broadcasting them. The sequence is consumed as
// the caller is expected to broadcast the returned bytes.
func (s *Signer) SignTx(ctx context.Context, msgs []sdk.Msg, feeDenom, memo string) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no messages to sign")
	}
	price, err := GasPrice(s.gasPrices, feeDenom)
	if err != nil {
		return nil, err
	}

	s.sequenceMutex.Lock()
	defer s.sequenceMutex.Unlock()

	txBytes, err := s.signedTx(ctx, msgs, price, memo)
	if err != nil {
		return nil, err
	}
	s.lastSequence++
	return txBytes, nil
}

// signedTx builds, signs and encodes a transaction at the reconciled
// sequence. Callers hold sequenceMutex.
func (s *Signer) signedTx(ctx context.Context, msgs []sdk.Msg, price sdk.DecCoin, memo string) ([]byte, error) {
	account, err := s.reconcileSequence(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := s.estimateGas(ctx, msgs, memo)
	fee := sdk.NewCoins(Fee(gasLimit, price))

	txBuilder, err := s.createTxBuilder(msgs, memo, gasLimit, fee)
	if err != nil {
		return nil, fmt.Errorf("failed to create tx builder: %w", err)
	}
	if err := s.sign(ctx, txBuilder, account.GetAccountNumber()); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	txBytes, err := s.chain.TxConfig().TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return txBytes, nil
}

// reconcileSequence refreshes the account and picks the sequence to sign with.
// A local sequence ahead of the chain is kept since the query may lag recent
// transactions.
func (s *Signer) reconcileSequence(ctx context.Context) (sdk.AccountI, error) {
	q, err := s.chain.Query()
	if err != nil {
		return nil, err
	}
	account, err := q.Account(ctx, s.address)
	if err != nil {
		if errorsmod.IsOf(err, nerrors.ErrAccountMissing) {
			return nil, errorsmod.Wrapf(err, "%s has never received funds", s.address)
		}
		return nil, fmt.Errorf("failed to query account info: %w", err)
	}

	chainSequence := account.GetSequence()
	switch {
	case s.lastSequence == 0:
		s.lastSequence = chainSequence
	case s.lastSequence < chainSequence:
		s.log.Info().
			Uint64("chain_sequence", chainSequence).
			Uint64("cached_sequence", s.lastSequence).
			Msg("Local sequence behind chain, adopting chain's sequence")
		s.lastSequence = chainSequence
	case s.lastSequence > chainSequence:
		s.log.Warn().
			Uint64("chain_sequence", chainSequence).
			Uint64("cached_sequence", s.lastSequence).
			Msg("Local sequence ahead of chain query, keeping local to avoid reuse")
	}
	return account, nil
}

// estimateGas simulates the transaction and scales the result by the
// configured adjustment, falling back to the default limit.
func (s *Signer) estimateGas(ctx context.Context, msgs []sdk.Msg, memo string) uint64 {
	if !s.gasCfg.Simulate {
		return s.gasCfg.DefaultLimit
	}

	txBytes, err := s.simulationTx(msgs, memo)
	if err == nil {
		var q network.Querier
		if q, err = s.chain.Query(); err == nil {
			var used uint64
			if used, err = q.Simulate(ctx, txBytes); err == nil {
				adjustment := s.gasCfg.Adjustment
				if adjustment < 1 {
					adjustment = 1
				}
				return uint64(math.Ceil(float64(used) * adjustment))
			}
		}
	}
	s.log.Warn().Err(err).Uint64("gas_limit", s.gasCfg.DefaultLimit).Msg("Gas simulation failed, using default limit")
	return s.gasCfg.DefaultLimit
}

// simulationTx encodes msgs with an empty signature carrying the public key,
// which is what the simulate endpoint expects.
func (s *Signer) simulationTx(msgs []sdk.Msg, memo string) ([]byte, error) {
	txBuilder, err := s.createTxBuilder(msgs, memo, 0, nil)
	if err != nil {
		return nil, err
	}
	pk, err := s.keys.GetPubKey()
	if err != nil {
		return nil, err
	}
	sig := signing.SignatureV2{
		PubKey:   pk,
		Data:     &signing.SingleSignatureData{SignMode: signing.SignMode_SIGN_MODE_DIRECT},
		Sequence: s.lastSequence,
	}
	if err := txBuilder.SetSignatures(sig); err != nil {
		return nil, err
	}
	return s.chain.TxConfig().TxEncoder()(txBuilder.GetTx())
}

func (s *Signer) createTxBuilder(msgs []sdk.Msg, memo string, gasLimit uint64, feeAmount sdk.Coins) (client.TxBuilder, error) {
	txBuilder := s.chain.TxConfig().NewTxBuilder()
	if err := txBuilder.SetMsgs(msgs...); err != nil {
		return nil, fmt.Errorf("failed to set messages: %w", err)
	}
	txBuilder.SetMemo(memo)
	txBuilder.SetGasLimit(gasLimit)
	txBuilder.SetFeeAmount(feeAmount)
	return txBuilder, nil
}

// sign uses the keyring directly so the private key never leaves it.
func (s *Signer) sign(ctx context.Context, txBuilder client.TxBuilder, accountNumber uint64) error {
	kr, err := s.keys.GetKeyring()
	if err != nil {
		return fmt.Errorf("failed to get keyring: %w", err)
	}

	txFactory := tx.Factory{}.
		WithChainID(s.chain.ChainID()).
		WithKeybase(kr).
		WithTxConfig(s.chain.TxConfig()).
		WithAccountNumber(accountNumber).
		WithSequence(s.lastSequence).
		WithSignMode(signing.SignMode_SIGN_MODE_DIRECT)

	s.log.Debug().
		Str("key_name", s.keys.GetKeyName()).
		Uint64("account_number", accountNumber).
		Uint64("sequence", s.lastSequence).
		Msg("Signing transaction")

	return tx.Sign(ctx, txFactory, s.keys.GetKeyName(), txBuilder, true)
}

func isSequenceMismatch(resp *network.DeliverTxResponse, err error) bool {
	const msg = "account sequence mismatch"
	if err != nil && strings.Contains(strings.ToLower(err.Error()), msg) {
		return true
	}
	return resp != nil && resp.Code != 0 && strings.Contains(strings.ToLower(resp.RawLog), msg)
}

// GasPrice returns the price of one unit of gas in denom from a gas price
// list such as "0.00119ukuji,0.0015uusk".
func GasPrice(gasPrices, denom string) (sdk.DecCoin, error) {
	prices, err := sdk.ParseDecCoins(gasPrices)
	if err != nil {
		return sdk.DecCoin{}, fmt.Errorf("invalid gas prices %q: %w", gasPrices, err)
	}
	for _, p := range prices {
		if p.Denom == denom {
			return p, nil
		}
	}
	return sdk.DecCoin{}, nerrors.NewValidationError("", fmt.Sprintf("fee denom %s is not accepted for gas", denom))
}

// Fee is the fee for gasLimit at price, rounded up.
func Fee(gasLimit uint64, price sdk.DecCoin) sdk.Coin {
	amount := price.Amount.MulInt(sdkmath.NewIntFromUint64(gasLimit)).Ceil().TruncateInt()
	return sdk.NewCoin(price.Denom, amount)
}
