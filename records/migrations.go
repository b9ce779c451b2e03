package records

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS mediafiles (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		filename TEXT NOT NULL,
		original_mime TEXT NOT NULL DEFAULT '',
		upload_kind TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		hash TEXT NOT NULL DEFAULT '',
		magnet TEXT NOT NULL DEFAULT '',
		visibility INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,

	`CREATE INDEX IF NOT EXISTS ix_mediafiles_owner ON mediafiles (owner);`,
	`CREATE INDEX IF NOT EXISTS ix_mediafiles_status ON mediafiles (status);`,
}
