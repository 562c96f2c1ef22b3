// Package store contains GORM-backed SQLite models used by the NAMI client.
//
// Database Structure (database file: nami.db):
//
//	<home>/databases/nami.db
//	├── preferences
//	├── pairing_sessions
//	└── tx_records
package store

import (
	"time"

	"gorm.io/gorm"
)

// Preference is a single persisted user choice (selected network, pinned RPC,
// connected wallet adapter, read-only address, fee denom).
type Preference struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null"`
	Value string
}

// PairingSession is an approved remote-pairing session that can be resumed
// on the next start without asking the wallet again.
type PairingSession struct {
	gorm.Model
	Topic         string    `gorm:"uniqueIndex;not null"` // session topic (hex sha256 of the session key)
	PairingTopic  string    // topic of the pairing URI that produced the session
	SymKey        string    `gorm:"not null"` // hex session key
	PeerPublicKey string    // hex X25519 public key of the wallet
	Chain         string    `gorm:"index"` // "cosmos:<chain-id>"
	Accounts      string    // JSON array of "cosmos:<chain-id>:<address>"
	Methods       string    // JSON array of supported request methods
	PeerName      string    // wallet metadata name
	Expiry        time.Time `gorm:"index"`
}

// TxRecord keeps the outcome of each submitted deposit or withdraw.
type TxRecord struct {
	gorm.Model
	TxHash  string `gorm:"index"`
	Network string `gorm:"index"`
	Kind    string // "deposit" or "withdraw"
	Sender  string
	Denom   string
	Amount  string
	Status  string `gorm:"index"` // "success" or "failure"
	Code    uint32
	Height  int64
	RawLog  string `gorm:"type:text"`
}
