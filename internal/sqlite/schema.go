package sqlite

// Schema DDL. The event log is keyed by the client-generated event id
// (unique) with a server-assigned auto-increment seq. The items table holds
// the legacy field-merge rows with one shadow-timestamp column per tracked
// field.
const (
	createEvents = `CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL UNIQUE,
    item_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    ts INTEGER NOT NULL,
    client_id TEXT NOT NULL,
    owner TEXT NOT NULL DEFAULT '',
    payload TEXT
);`

	createEventsOwnerIndex = `CREATE INDEX IF NOT EXISTS idx_events_owner ON events(owner, seq);`

	createItems = `CREATE TABLE IF NOT EXISTS items (
    item_id TEXT PRIMARY KEY,
    parent_id TEXT NOT NULL DEFAULT '',
    item_type TEXT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    important INTEGER NOT NULL DEFAULT 0,
    completed_at INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT 0,
    position TEXT NOT NULL DEFAULT '',
    level INTEGER NOT NULL DEFAULT 0,
    indented INTEGER NOT NULL DEFAULT 0,
    archived INTEGER NOT NULL DEFAULT 0,
    archived_at INTEGER NOT NULL DEFAULT 0,
    ts_text INTEGER NOT NULL DEFAULT 0,
    ts_important INTEGER NOT NULL DEFAULT 0,
    ts_completed INTEGER NOT NULL DEFAULT 0,
    ts_position INTEGER NOT NULL DEFAULT 0,
    ts_type INTEGER NOT NULL DEFAULT 0,
    ts_level INTEGER NOT NULL DEFAULT 0,
    ts_indented INTEGER NOT NULL DEFAULT 0,
    ts_archived INTEGER NOT NULL DEFAULT 0,
    ts_parent INTEGER NOT NULL DEFAULT 0
);`
)

// schemaStatements lists the DDL executed on Attach, in order.
var schemaStatements = []string{
	createEvents,
	createEventsOwnerIndex,
	createItems,
}
