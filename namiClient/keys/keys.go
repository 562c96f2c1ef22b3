package keys

import (
	"fmt"

	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

var _ WalletKeys = &Keys{}

// Keys is a named key inside a Cosmos SDK keyring.
type Keys struct {
	keyName string
	keyring keyring.Keyring
}

// NewKeys creates a new instance of Keys
func NewKeys(kr keyring.Keyring, keyName string) *Keys {
	return &Keys{
		keyName: keyName,
		keyring: kr,
	}
}

// GetAddress returns the key's account address
func (k *Keys) GetAddress() (sdk.AccAddress, error) {
	info, err := k.keyring.Key(k.keyName)
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", k.keyName, err)
	}

	addr, err := info.GetAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to get address from key info: %w", err)
	}
	return addr, nil
}

// GetPubKey returns the key's public key
func (k *Keys) GetPubKey() (cryptotypes.PubKey, error) {
	info, err := k.keyring.Key(k.keyName)
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", k.keyName, err)
	}
	return info.GetPubKey()
}

// GetKeyName returns the name of the key in the keyring
func (k *Keys) GetKeyName() string {
	return k.keyName
}

// GetKeyring returns the underlying keyring for signing operations.
func (k *Keys) GetKeyring() (keyring.Keyring, error) {
	if _, err := k.keyring.Key(k.keyName); err != nil {
		return nil, fmt.Errorf("key %s not found in keyring: %w", k.keyName, err)
	}
	return k.keyring, nil
}
