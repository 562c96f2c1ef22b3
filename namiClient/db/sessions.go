package db

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nami-protocol/nami-client/namiClient/store"
)

// SaveSession inserts or replaces a pairing session keyed by topic.
func (d *DB) SaveSession(s *store.PairingSession) error {
	err := d.client.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "topic"}},
		UpdateAll: true,
	}).Create(s).Error
	if err != nil {
		return errors.Wrap(err, "failed to save pairing session")
	}
	return nil
}

// LatestSession returns the most recently created session for chain that has
// not expired at now. It returns (nil, nil) when there is none.
func (d *DB) LatestSession(chain string, now time.Time) (*store.PairingSession, error) {
	var s store.PairingSession
	err := d.client.
		Where("chain = ? AND expiry > ?", chain, now).
		Order("id DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query pairing sessions")
	}
	return &s, nil
}

// DeleteSession removes the session with the given topic.
func (d *DB) DeleteSession(topic string) error {
	if err := d.client.Unscoped().Where("topic = ?", topic).Delete(&store.PairingSession{}).Error; err != nil {
		return errors.Wrap(err, "failed to delete pairing session")
	}
	return nil
}

// DeleteExpiredSessions drops every session that expired before now.
func (d *DB) DeleteExpiredSessions(now time.Time) (int64, error) {
	res := d.client.Unscoped().Where("expiry <= ?", now).Delete(&store.PairingSession{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to delete expired sessions")
	}
	return res.RowsAffected, nil
}
