package store

// Schema is the veil database schema, applied on open. IF NOT EXISTS keeps
// reopening idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS marks (
	domain        TEXT NOT NULL,
	kind          TEXT NOT NULL CHECK (kind IN ('blur','hide','textReplace')),
	selector      TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	custom_text   TEXT NOT NULL DEFAULT '',
	original_text TEXT NOT NULL DEFAULT '',
	preset        INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	PRIMARY KEY (domain, kind, selector)
);

CREATE INDEX IF NOT EXISTS idx_marks_domain ON marks(domain);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	event_id   TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	selector   TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	success    INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);
`
