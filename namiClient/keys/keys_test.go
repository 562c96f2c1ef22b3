package keys

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nami-protocol/nami-client/namiClient/config"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

func TestMain(m *testing.M) {
	cfg := sdk.GetConfig()
	cfg.SetBech32PrefixForAccount("kujira", "kujirapub")
	cfg.SetBech32PrefixForValidator("kujiravaloper", "kujiravaloperpub")
	cfg.SetBech32PrefixForConsensusNode("kujiravalcons", "kujiravalconspub")
	cfg.Seal()

	os.Exit(m.Run())
}

func TestCreateKeyring(t *testing.T) {
	tests := []struct {
		name    string
		home    string
		backend config.KeyringBackend
		wantErr bool
	}{
		{name: "test backend", home: t.TempDir(), backend: config.KeyringBackendTest},
		{name: "file backend", home: t.TempDir(), backend: config.KeyringBackendFile},
		{name: "default backend", home: t.TempDir()},
		{name: "empty home", home: "", backend: config.KeyringBackendTest, wantErr: true},
		{name: "unknown backend", home: t.TempDir(), backend: "kwallet", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kr, err := CreateKeyring(tt.home, PasswordReader(tt.backend, "Passw0rd!"), tt.backend)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, kr)
		})
	}
}

func TestCreateNewKeyImportsKujiraAddress(t *testing.T) {
	kr, err := CreateKeyring(t.TempDir(), nil, config.KeyringBackendTest)
	require.NoError(t, err)

	record, mnemonic, err := CreateNewKey(kr, "nami", testMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, mnemonic)

	addr, err := record.GetAddress()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr.String(), "kujira1"))
	assert.Equal(t, keyring.TypeLocal, record.GetType())

	// the same keyring refuses a second copy of the key
	_, _, err = CreateNewKey(kr, "nami2", testMnemonic, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicated address")

	// another keyring derives the same address from the mnemonic
	other, err := CreateKeyring(t.TempDir(), nil, config.KeyringBackendTest)
	require.NoError(t, err)
	record2, _, err := CreateNewKey(other, "nami2", testMnemonic, "")
	require.NoError(t, err)
	addr2, err := record2.GetAddress()
	require.NoError(t, err)
	assert.Equal(t, addr, addr2)
}

func TestCreateNewKeyGeneratesMnemonic(t *testing.T) {
	kr, err := CreateKeyring(t.TempDir(), nil, config.KeyringBackendTest)
	require.NoError(t, err)

	_, mnemonic, err := CreateNewKey(kr, "fresh", "", "")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(mnemonic), 24)
	assert.NoError(t, ValidateKeyExists(kr, "fresh"))
	assert.Error(t, ValidateKeyExists(kr, "missing"))
}

func TestOpenKeyringAndKeys(t *testing.T) {
	home := t.TempDir()
	kr, err := CreateKeyring(home, nil, config.KeyringBackendTest)
	require.NoError(t, err)
	record, _, err := CreateNewKey(kr, "nami", testMnemonic, "")
	require.NoError(t, err)

	opened, rc, err := OpenKeyring(KeyringConfig{HomeDir: home, Backend: config.KeyringBackendTest, KeyName: "nami"})
	require.NoError(t, err)
	assert.Equal(t, record.Name, rc.Name)

	k := NewKeys(opened, "nami")
	assert.Equal(t, "nami", k.GetKeyName())

	addr, err := k.GetAddress()
	require.NoError(t, err)
	want, err := record.GetAddress()
	require.NoError(t, err)
	assert.Equal(t, want, addr)

	pub, err := k.GetPubKey()
	require.NoError(t, err)
	assert.Len(t, pub.Bytes(), 33)

	_, err = k.GetKeyring()
	assert.NoError(t, err)

	_, err = NewKeys(opened, "missing").GetKeyring()
	assert.Error(t, err)

	_, _, err = OpenKeyring(KeyringConfig{HomeDir: home, Backend: config.KeyringBackendTest, KeyName: "missing"})
	assert.Error(t, err)
	_, _, err = OpenKeyring(KeyringConfig{HomeDir: home})
	assert.Error(t, err)
}

func TestKeyringDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/h", "keyring-test"), KeyringDir("/h", config.KeyringBackendTest))
	assert.Equal(t, filepath.Join("/h", "keyring-file"), KeyringDir("/h", config.KeyringBackendFile))
	assert.Empty(t, KeyringDir("/h", config.KeyringBackendOS))
	assert.Equal(t, "m/44'/118'/0'/0/0", DefaultHDPath)
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		wantErr  string
	}{
		{"Sh0rt!", "at least 8 characters"},
		{"alllowercase1!", "uppercase letter"},
		{"NoDigitsHere!", "digit"},
		{"NoSymbols123", "special character"},
		{"G00d-Passw0rd", ""},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPasswordForBackend(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString("Typed-Passw0rd\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	defer r.Close()

	var prompts strings.Builder
	pm := NewPasswordManager(r, &prompts)

	got, err := pm.PasswordForBackend(config.KeyringBackendTest, "", false)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = pm.PasswordForBackend(config.KeyringBackendFile, "from-config", false)
	require.NoError(t, err)
	assert.Equal(t, "from-config", got)

	got, err = pm.PasswordForBackend(config.KeyringBackendFile, "", false)
	require.NoError(t, err)
	assert.Equal(t, "Typed-Passw0rd", got)
	assert.Contains(t, prompts.String(), "Enter keyring password")
}

func TestValidateKeyringDirectory(t *testing.T) {
	base := t.TempDir()

	fresh := filepath.Join(base, "keyring-test")
	require.NoError(t, ValidateKeyringDirectory(fresh, zerolog.Nop()))
	info, err := os.Stat(fresh)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	loose := filepath.Join(base, "loose")
	require.NoError(t, os.Mkdir(loose, 0o755))
	require.NoError(t, ValidateKeyringDirectory(loose, zerolog.Nop()))
	info, err = os.Stat(loose)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.Error(t, ValidateKeyringDirectory(file, zerolog.Nop()))
	assert.Error(t, ValidateKeyringDirectory("", zerolog.Nop()))
}

func TestValidateKeyName(t *testing.T) {
	assert.NoError(t, ValidateKeyName("nami"))
	assert.Error(t, ValidateKeyName(""))
	assert.Error(t, ValidateKeyName(strings.Repeat("k", 65)))
	assert.Error(t, ValidateKeyName("bad\x00name"))
}
