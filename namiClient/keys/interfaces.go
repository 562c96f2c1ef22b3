package keys

import (
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// WalletKeys gives the keyring wallet access to its signing key.
type WalletKeys interface {
	// GetAddress returns the account address of the key
	GetAddress() (sdk.AccAddress, error)

	// GetPubKey returns the public key of the key
	GetPubKey() (cryptotypes.PubKey, error)

	// GetKeyName returns the name of the key in the keyring
	GetKeyName() string

	// GetKeyring returns the underlying keyring for signing operations.
	// It validates that the key exists before returning the keyring.
	// For the file backend, decryption happens when tx.Sign asks for it,
	// so the private key never leaves the keyring.
	GetKeyring() (keyring.Keyring, error)
}
