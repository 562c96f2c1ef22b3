package db

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nami-protocol/nami-client/namiClient/store"
)

// Preferences is a key/value view over the preferences table.
type Preferences struct {
	db *DB
}

// Preferences returns the preference store backed by this database.
func (d *DB) Preferences() *Preferences {
	return &Preferences{db: d}
}

var errEmptyKey = errors.New("preference key is empty")

// Get returns the stored value for key and whether it was present.
func (p *Preferences) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, errEmptyKey
	}
	var pref store.Preference
	err := p.db.client.Where(&store.Preference{Key: key}).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read preference %s", key)
	}
	return pref.Value, true, nil
}

// Set stores value under key, replacing any previous value.
func (p *Preferences) Set(key, value string) error {
	if key == "" {
		return errEmptyKey
	}
	pref := store.Preference{Key: key, Value: value}
	err := p.db.client.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return errors.Wrapf(err, "failed to write preference %s", key)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (p *Preferences) Delete(key string) error {
	if key == "" {
		return errEmptyKey
	}
	if err := p.db.client.Unscoped().Where(&store.Preference{Key: key}).Delete(&store.Preference{}).Error; err != nil {
		return errors.Wrapf(err, "failed to delete preference %s", key)
	}
	return nil
}
