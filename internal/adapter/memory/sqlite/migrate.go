package sqlite

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS memories (
			id         TEXT PRIMARY KEY,
			user_text  TEXT NOT NULL,
			agent_text TEXT NOT NULL,
			ts_ms      INTEGER NOT NULL,
			importance REAL NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			embedding  BLOB
		);

		CREATE INDEX IF NOT EXISTS memories_ts ON memories(ts_ms);
		CREATE INDEX IF NOT EXISTS memories_priority ON memories(importance DESC, ts_ms DESC);

		CREATE TABLE IF NOT EXISTS preferences (
			key   TEXT PRIMARY KEY,
			value REAL NOT NULL
		);
	`
	_, err := db.Exec(schema)
	return err
}
