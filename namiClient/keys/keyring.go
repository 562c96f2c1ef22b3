package keys

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	cryptocodec "github.com/cosmos/cosmos-sdk/crypto/codec"
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/constant"
)

// KeyringConfig holds configuration for keyring initialization
type KeyringConfig struct {
	HomeDir  string
	Backend  config.KeyringBackend
	KeyName  string
	Password string
}

// DefaultHDPath is the derivation path of the first Kujira account.
var DefaultHDPath = hd.CreateHDPath(constant.CoinType, 0, 0).String()

// OpenKeyring opens the keyring described by cfg and checks that the key exists.
func OpenKeyring(cfg KeyringConfig) (keyring.Keyring, *keyring.Record, error) {
	if len(cfg.KeyName) == 0 {
		return nil, nil, fmt.Errorf("key name is empty")
	}

	kr, err := CreateKeyring(cfg.HomeDir, PasswordReader(cfg.Backend, cfg.Password), cfg.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get keybase: %w", err)
	}

	rc, err := kr.Key(cfg.KeyName)
	if err != nil {
		return nil, nil, fmt.Errorf("key not present in backend %s with name (%s): %w",
			kr.Backend(), cfg.KeyName, err)
	}
	return kr, rc, nil
}

// PasswordReader feeds the password to the file backend, which asks for it
// twice when the keyring is first created.
func PasswordReader(backend config.KeyringBackend, password string) io.Reader {
	if backend != config.KeyringBackendFile || password == "" {
		return strings.NewReader("")
	}
	return strings.NewReader(fmt.Sprintf("%s\n%s\n", password, password))
}

// NewInterfaceRegistry registers the key types a Kujira keyring stores.
func NewInterfaceRegistry() codectypes.InterfaceRegistry {
	registry := codectypes.NewInterfaceRegistry()
	cryptocodec.RegisterInterfaces(registry)
	return registry
}

// CreateKeyring creates a keyring rooted at homeDir.
func CreateKeyring(homeDir string, reader io.Reader, backend config.KeyringBackend) (keyring.Keyring, error) {
	if len(homeDir) == 0 {
		return nil, fmt.Errorf("home directory is empty")
	}
	if backend == "" {
		backend = config.KeyringBackendTest
	}
	switch backend {
	case config.KeyringBackendTest, config.KeyringBackendFile, config.KeyringBackendOS:
	default:
		return nil, fmt.Errorf("unsupported keyring backend: %s", backend)
	}

	cdc := codec.NewProtoCodec(NewInterfaceRegistry())
	return keyring.New(sdk.KeyringServiceName(), string(backend), homeDir, reader, cdc)
}

// KeyringDir is the directory the file and test backends keep their keys in.
// The os backend stores keys outside the home directory and has none.
func KeyringDir(homeDir string, backend config.KeyringBackend) string {
	switch backend {
	case config.KeyringBackendFile:
		return filepath.Join(homeDir, "keyring-file")
	case config.KeyringBackendOS:
		return ""
	default:
		return filepath.Join(homeDir, "keyring-test")
	}
}

// CreateNewKey creates a new secp256k1 key in the keyring and returns the
// record and mnemonic. If mnemonic is provided the key is imported and the
// returned mnemonic is the one given.
func CreateNewKey(kr keyring.Keyring, name string, mnemonic string, passphrase string) (*keyring.Record, string, error) {
	if mnemonic != "" {
		record, err := kr.NewAccount(name, mnemonic, passphrase, DefaultHDPath, hd.Secp256k1)
		if err != nil {
			return nil, "", fmt.Errorf("failed to import key: %w", err)
		}
		return record, mnemonic, nil
	}

	record, generatedMnemonic, err := kr.NewMnemonic(name, keyring.English, DefaultHDPath, passphrase, hd.Secp256k1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate new key with mnemonic: %w", err)
	}
	return record, generatedMnemonic, nil
}

// ValidateKeyExists checks if a key exists in the keyring
func ValidateKeyExists(kr keyring.Keyring, keyName string) error {
	if _, err := kr.Key(keyName); err != nil {
		return fmt.Errorf("key %s not found: %w", keyName, err)
	}
	return nil
}
