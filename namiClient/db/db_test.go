package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nami-protocol/nami-client/namiClient/constant"
	"github.com/nami-protocol/nami-client/namiClient/store"
)

func TestDB_OpenModes(t *testing.T) {
	t.Run("in-memory alias", func(t *testing.T) {
		db, err := OpenInMemoryDB(true)
		require.NoError(t, err)
		require.NotNil(t, db)

		runSampleInsertSelectTest(t, db)
		assert.NoError(t, db.Close())
	})

	t.Run("file-based DB", func(t *testing.T) {
		dir := t.TempDir()
		dbName := "test.db"

		db, err := OpenFileDB(dir, dbName, true)
		require.NoError(t, err)
		require.NotNil(t, db)

		assert.FileExists(t, filepath.Join(dir, dbName))
		runSampleInsertSelectTest(t, db)
		assert.NoError(t, db.Close())
	})

	t.Run("home layout", func(t *testing.T) {
		home := t.TempDir()

		db, err := OpenHome(home)
		require.NoError(t, err)
		defer db.Close()

		assert.FileExists(t, filepath.Join(home, constant.DatabasesSubdir, constant.DatabaseFileName))
	})

	t.Run("invalid path fails", func(t *testing.T) {
		db, err := OpenFileDB("///invalid", "db.db", true)
		require.ErrorContains(t, err, "failed to prepare database path")
		require.Nil(t, db)
	})
}

func runSampleInsertSelectTest(t *testing.T, db *DB) {
	entry := store.TxRecord{TxHash: "ABC", Network: constant.Testnet, Status: "success", Height: 10101}

	require.NoError(t, db.Client().Create(&entry).Error)

	var result store.TxRecord
	require.NoError(t, db.Client().First(&result).Error)
	assert.Equal(t, int64(10101), result.Height)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPreferences(t *testing.T) {
	prefs := newTestDB(t).Preferences()

	_, ok, err := prefs.Get(constant.PrefNetwork)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, prefs.Set(constant.PrefNetwork, constant.Testnet))
	require.NoError(t, prefs.Set(constant.PrefNetwork, constant.Mainnet))
	require.NoError(t, prefs.Set(constant.PrefFeeDenom, "ukuji"))

	v, ok, err := prefs.Get(constant.PrefNetwork)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, constant.Mainnet, v)

	require.NoError(t, prefs.Delete(constant.PrefNetwork))
	require.NoError(t, prefs.Delete(constant.PrefNetwork))

	_, ok, err = prefs.Get(constant.PrefNetwork)
	require.NoError(t, err)
	assert.False(t, ok)

	// other keys are untouched
	v, ok, err = prefs.Get(constant.PrefFeeDenom)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ukuji", v)

	assert.Error(t, prefs.Delete(""))
	assert.Error(t, prefs.Set("", "x"))
}

func TestSessions(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	s, err := db.LatestSession("cosmos:harpoon-4", now)
	require.NoError(t, err)
	assert.Nil(t, s)

	require.NoError(t, db.SaveSession(&store.PairingSession{
		Topic: "old", SymKey: "aa", Chain: "cosmos:harpoon-4", Expiry: now.Add(time.Hour),
	}))
	require.NoError(t, db.SaveSession(&store.PairingSession{
		Topic: "new", SymKey: "bb", Chain: "cosmos:harpoon-4", Expiry: now.Add(time.Hour),
	}))
	require.NoError(t, db.SaveSession(&store.PairingSession{
		Topic: "expired", SymKey: "cc", Chain: "cosmos:harpoon-4", Expiry: now.Add(-time.Minute),
	}))
	require.NoError(t, db.SaveSession(&store.PairingSession{
		Topic: "mainnet", SymKey: "dd", Chain: "cosmos:kaiyo-1", Expiry: now.Add(time.Hour),
	}))

	s, err = db.LatestSession("cosmos:harpoon-4", now)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "new", s.Topic)

	require.NoError(t, db.DeleteSession("new"))
	s, err = db.LatestSession("cosmos:harpoon-4", now)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "old", s.Topic)

	n, err := db.DeleteExpiredSessions(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTxHistory(t *testing.T) {
	db := newTestDB(t)

	for i, hash := range []string{"A", "B", "C"} {
		require.NoError(t, db.RecordTx(&store.TxRecord{
			TxHash: hash, Network: constant.Testnet, Kind: "deposit", Height: int64(i),
		}))
	}
	require.NoError(t, db.RecordTx(&store.TxRecord{TxHash: "M", Network: constant.Mainnet}))

	recs, err := db.TxHistory(constant.Testnet, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "C", recs[0].TxHash)
	assert.Equal(t, "B", recs[1].TxHash)

	all, err := db.TxHistory(constant.Testnet, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
