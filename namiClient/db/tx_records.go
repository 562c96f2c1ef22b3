package db

import (
	"github.com/pkg/errors"

	"github.com/nami-protocol/nami-client/namiClient/store"
)

// RecordTx stores the outcome of a submitted transaction.
func (d *DB) RecordTx(rec *store.TxRecord) error {
	if err := d.client.Create(rec).Error; err != nil {
		return errors.Wrap(err, "failed to record transaction")
	}
	return nil
}

// TxHistory returns up to limit records for network, newest first.
// A limit of zero or less returns every record.
func (d *DB) TxHistory(network string, limit int) ([]store.TxRecord, error) {
	var recs []store.TxRecord
	q := d.client.Where("network = ?", network).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query transaction history")
	}
	return recs, nil
}
