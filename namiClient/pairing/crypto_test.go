package pairing

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := GenerateSymKey()
	require.NoError(t, err)

	sealed, err := Seal(key, []byte(`{"id":1}`))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	assert.Equal(t, envelopeType0, raw[0])

	opened, err := Open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(opened))

	other, err := GenerateSymKey()
	require.NoError(t, err)
	_, err = Open(other, sealed)
	assert.Error(t, err, "wrong key must not open the envelope")

	tampered := bytes.Clone(raw)
	tampered[len(tampered)-1] ^= 0xff
	_, err = Open(key, base64.StdEncoding.EncodeToString(tampered))
	assert.Error(t, err)

	wrongType := bytes.Clone(raw)
	wrongType[0] = 1
	_, err = Open(key, base64.StdEncoding.EncodeToString(wrongType))
	assert.ErrorContains(t, err, "unsupported envelope type")

	_, err = Open(key, "AAE=")
	assert.ErrorContains(t, err, "too short")
}

func TestDeriveSessionKey(t *testing.T) {
	dapp, err := GenerateKeyPair()
	require.NoError(t, err)
	wallet, err := GenerateKeyPair()
	require.NoError(t, err)

	k1, err := DeriveSessionKey(dapp.Private, wallet.PublicHex())
	require.NoError(t, err)
	k2, err := DeriveSessionKey(wallet.Private, dapp.PublicHex())
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)
	assert.Len(t, Topic(k1), 64)

	_, err = DeriveSessionKey(dapp.Private, "zz")
	assert.Error(t, err)
}

func TestURI(t *testing.T) {
	key, err := GenerateSymKey()
	require.NoError(t, err)
	u := URI{Topic: Topic(key), SymKey: key, RelayProtocol: relayProtocol, RelayURL: "ws://127.0.0.1:26670/relay"}

	s := u.String()
	assert.True(t, strings.HasPrefix(s, "wc:"+u.Topic+"@2?"))
	assert.Contains(t, s, "relay-protocol=irn")

	parsed, err := ParseURI(s)
	require.NoError(t, err)
	assert.Equal(t, u, parsed)

	otherKey, err := GenerateSymKey()
	require.NoError(t, err)

	testCases := []struct {
		name string
		uri  string
		msg  string
	}{
		{name: "wrong scheme", uri: "http://example.com", msg: "must start with wc:"},
		{name: "no topic", uri: "wc:@2?symKey=00", msg: "no topic"},
		{name: "old version", uri: "wc:" + u.Topic + "@1?symKey=00", msg: "unsupported pairing version"},
		{name: "bad key", uri: "wc:" + u.Topic + "@2?symKey=zz", msg: "invalid symKey"},
		{name: "topic mismatch", uri: URI{Topic: u.Topic, SymKey: otherKey, RelayProtocol: "irn"}.String(), msg: "does not match"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseURI(tc.uri)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestAccountAddress(t *testing.T) {
	addr, err := AccountAddress(AccountRef("harpoon-4", "kujira1abc"))
	require.NoError(t, err)
	assert.Equal(t, "kujira1abc", addr)

	_, err = AccountAddress("cosmos:harpoon-4")
	assert.Error(t, err)
}
