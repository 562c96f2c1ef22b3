package pairing

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nami-protocol/nami-client/namiClient/store"
)

// SessionStore persists approved sessions.
type SessionStore interface {
	SaveSession(s *store.PairingSession) error
	LatestSession(chain string, now time.Time) (*store.PairingSession, error)
	DeleteSession(topic string) error
}

// Session is an approved pairing between the dapp and one wallet.
type Session struct {
	Topic         string
	PairingTopic  string
	Key           []byte
	PeerPublicKey string
	Chain         string
	Accounts      []string
	Methods       []string
	PeerName      string
	Expiry        time.Time
}

// Address is the address of the first granted account.
func (s Session) Address() (string, error) {
	if len(s.Accounts) == 0 {
		return "", fmt.Errorf("session grants no accounts")
	}
	return AccountAddress(s.Accounts[0])
}

// Method is the request method used for signing: the first one granted.
func (s Session) Method() string {
	if len(s.Methods) == 0 {
		return MethodSignTx
	}
	return s.Methods[0]
}

func (s Session) record() (*store.PairingSession, error) {
	accounts, err := json.Marshal(s.Accounts)
	if err != nil {
		return nil, err
	}
	methods, err := json.Marshal(s.Methods)
	if err != nil {
		return nil, err
	}
	return &store.PairingSession{
		Topic:         s.Topic,
		PairingTopic:  s.PairingTopic,
		SymKey:        hex.EncodeToString(s.Key),
		PeerPublicKey: s.PeerPublicKey,
		Chain:         s.Chain,
		Accounts:      string(accounts),
		Methods:       string(methods),
		PeerName:      s.PeerName,
		Expiry:        s.Expiry,
	}, nil
}

func sessionFromRecord(r *store.PairingSession) (Session, error) {
	key, err := hex.DecodeString(r.SymKey)
	if err != nil || len(key) != KeySize {
		return Session{}, fmt.Errorf("stored session %s has an invalid key", r.Topic)
	}
	s := Session{
		Topic:         r.Topic,
		PairingTopic:  r.PairingTopic,
		Key:           key,
		PeerPublicKey: r.PeerPublicKey,
		Chain:         r.Chain,
		PeerName:      r.PeerName,
		Expiry:        r.Expiry,
	}
	if r.Accounts != "" {
		if err := json.Unmarshal([]byte(r.Accounts), &s.Accounts); err != nil {
			return Session{}, fmt.Errorf("stored session %s has invalid accounts: %w", r.Topic, err)
		}
	}
	if r.Methods != "" {
		if err := json.Unmarshal([]byte(r.Methods), &s.Methods); err != nil {
			return Session{}, fmt.Errorf("stored session %s has invalid methods: %w", r.Topic, err)
		}
	}
	return s, nil
}
