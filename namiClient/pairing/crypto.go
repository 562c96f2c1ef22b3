// Package pairing implements the remote-pairing wallet adapter: a dapp and
// a wallet agree on a session over an untrusted relay and exchange encrypted
// JSON-RPC messages on topics derived from their shared keys.
package pairing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of symmetric keys and X25519 keys.
const KeySize = 32

// envelopeType0 marks a message sealed with the topic's symmetric key.
const envelopeType0 byte = 0

// GenerateSymKey returns a random symmetric key.
func GenerateSymKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Topic is the relay topic derived from a symmetric key.
func Topic(symKey []byte) string {
	sum := sha256.Sum256(symKey)
	return hex.EncodeToString(sum[:])
}

// KeyPair is an X25519 key pair.
type KeyPair struct {
	Private [KeySize]byte
	Public  [KeySize]byte
}

// GenerateKeyPair returns a fresh X25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := io.ReadFull(rand.Reader, kp.Private[:]); err != nil {
		return kp, err
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return kp, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// PublicHex is the hex public key as sent to the peer.
func (kp KeyPair) PublicHex() string {
	return hex.EncodeToString(kp.Public[:])
}

// DeriveSessionKey derives the session key from our private key and the
// peer's hex public key.
func DeriveSessionKey(priv [KeySize]byte, peerPublicHex string) ([]byte, error) {
	peer, err := hex.DecodeString(peerPublicHex)
	if err != nil || len(peer) != KeySize {
		return nil, fmt.Errorf("invalid peer public key")
	}
	shared, err := curve25519.X25519(priv[:], peer)
	if err != nil {
		return nil, err
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, nil), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts payload into a base64 type-0 envelope:
// type byte, 12-byte nonce, then the ChaCha20-Poly1305 ciphertext.
func Seal(symKey, payload []byte) (string, error) {
	aead, err := chacha20poly1305.New(symKey)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(payload)+aead.Overhead())
	buf[0] = envelopeType0
	if _, err := io.ReadFull(rand.Reader, buf[1:]); err != nil {
		return "", err
	}
	nonce := buf[1:]
	buf = aead.Seal(buf, nonce, payload, nil)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Open decrypts a type-0 envelope produced by Seal.
func Open(symKey []byte, envelope string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope encoding: %w", err)
	}
	aead, err := chacha20poly1305.New(symKey)
	if err != nil {
		return nil, err
	}
	if len(raw) < 1+aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("envelope too short")
	}
	if raw[0] != envelopeType0 {
		return nil, fmt.Errorf("unsupported envelope type %d", raw[0])
	}
	nonce := raw[1 : 1+aead.NonceSize()]
	payload, err := aead.Open(nil, nonce, raw[1+aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt envelope: %w", err)
	}
	return payload, nil
}
