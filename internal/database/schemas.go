package database

// schemas maps database names to their embedded schema definitions.
// All statements use IF NOT EXISTS so Migrate is idempotent.
var schemas = map[string]string{
	"portfolio": portfolioSchema,
	"cache":     cacheSchema,
}

// portfolioSchema holds per-user durable state: the position documents and
// push-notification tokens. Positions are addressed as (user_id, position_id),
// mirroring a document collection - no cross-document constraints.
const portfolioSchema = `
CREATE TABLE IF NOT EXISTS positions (
	user_id       TEXT NOT NULL,
	position_id   TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	name          TEXT NOT NULL,
	class         TEXT NOT NULL,
	quantity      REAL NOT NULL,
	buy_price     REAL NOT NULL,
	current_price REAL NOT NULL,
	last_updated  INTEGER NOT NULL,
	currency      TEXT,
	description   TEXT,
	created_at    INTEGER NOT NULL,
	PRIMARY KEY (user_id, position_id)
);

CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id);

CREATE TABLE IF NOT EXISTS push_tokens (
	user_id    TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// cacheSchema holds the durable tier of the price cache. Payloads are
// msgpack-encoded price records; expires_at enforces the TTL at read time.
const cacheSchema = `
CREATE TABLE IF NOT EXISTS price_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	stored_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_cache_expires ON price_cache(expires_at);
`
