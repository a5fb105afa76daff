package clientdata

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE price_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	stored_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX idx_price_cache_expires ON price_cache(expires_at);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

type testPayload struct {
	Symbol string  `msgpack:"symbol"`
	Price  float64 `msgpack:"price"`
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	in := testPayload{Symbol: "AAPL", Price: 123.45}
	require.NoError(t, repo.Store("equity:AAPL", in, time.Hour))

	var out testPayload
	found, err := repo.GetIfFresh("equity:AAPL", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestGetIfFreshMissingKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	var out testPayload
	found, err := repo.GetIfFresh("equity:MISSING", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetIfFreshExpiredEntry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("crypto:BTC", testPayload{Symbol: "BTC", Price: 50000}, time.Hour))

	// Age the row past its expiry
	_, err := db.Exec(`UPDATE price_cache SET expires_at = ? WHERE cache_key = ?`,
		time.Now().Add(-time.Minute).Unix(), "crypto:BTC")
	require.NoError(t, err)

	var out testPayload
	found, err := repo.GetIfFresh("crypto:BTC", &out)
	require.NoError(t, err)
	assert.False(t, found, "expired entries must be treated as absent")
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("fiat:EUR", testPayload{Symbol: "EUR", Price: 1.05}, time.Hour))
	require.NoError(t, repo.Store("fiat:EUR", testPayload{Symbol: "EUR", Price: 1.09}, time.Hour))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM price_cache`).Scan(&count))
	assert.Equal(t, 1, count)

	var out testPayload
	found, err := repo.GetIfFresh("fiat:EUR", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1.09, out.Price)
}

func TestDelete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store("equity:TSLA", testPayload{Symbol: "TSLA", Price: 200}, time.Hour))
	require.NoError(t, repo.Delete("equity:TSLA"))

	var out testPayload
	found, err := repo.GetIfFresh("equity:TSLA", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClear(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("equity:AAPL", testPayload{Symbol: "AAPL", Price: 1}, time.Hour))
	require.NoError(t, repo.Store("crypto:BTC", testPayload{Symbol: "BTC", Price: 2}, time.Hour))
	require.NoError(t, repo.Clear())

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM price_cache`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("equity:OLD", testPayload{Symbol: "OLD", Price: 1}, time.Hour))
	require.NoError(t, repo.Store("equity:NEW", testPayload{Symbol: "NEW", Price: 2}, time.Hour))

	_, err := db.Exec(`UPDATE price_cache SET expires_at = ? WHERE cache_key = ?`,
		time.Now().Add(-time.Minute).Unix(), "equity:OLD")
	require.NoError(t, err)

	deleted, err := repo.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var out testPayload
	found, err := repo.GetIfFresh("equity:NEW", &out)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("equity:OLD", testPayload{Symbol: "OLD", Price: 1}, time.Hour))
	_, err := db.Exec(`UPDATE price_cache SET expires_at = 0`)
	require.NoError(t, err)

	job := NewCleanupJob(repo, zerolog.Nop())
	require.NoError(t, job.Run())

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM price_cache`).Scan(&count))
	assert.Equal(t, 0, count)
}
