package protocol

// SchemaDDL defines the SQLite schema for the guard state database.
// Tables: events (decision log), pending_writes (content staged by the
// PreToolUse hook for its PostToolUse counterpart).
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Guard decision log: authorizations, rejections, writes, trace failures
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    intent_id TEXT,
    path TEXT,
    reason TEXT,
    mutation_class TEXT,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_events_intent ON events(intent_id);

-- Pre-write content captured by the PreToolUse hook, consumed by PostToolUse
CREATE TABLE IF NOT EXISTS pending_writes (
    key TEXT PRIMARY KEY,
    intent_id TEXT NOT NULL,
    path TEXT NOT NULL,
    existed INTEGER NOT NULL DEFAULT 0,
    content BLOB,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// Event types recorded in the events table.
const (
	EventAuthorized   = "authorized"
	EventRejected     = "rejected"
	EventWritten      = "written"
	EventWriteFailed  = "write_failed"
	EventTraced       = "traced"
	EventTraceFailed  = "trace_failed"
	EventConfigDefect = "config_defect"
)
