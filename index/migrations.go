package index

import (
	"database/sql"
	"fmt"
)

// migration is one forward-only, irreversible schema delta.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL PRIMARY KEY)`,
			`CREATE TABLE IF NOT EXISTS snapshots (
				repo_url TEXT NOT NULL,
				snapshot_id TEXT NOT NULL,
				parent_id TEXT NOT NULL DEFAULT '',
				tree_hash TEXT NOT NULL DEFAULT '',
				hostname TEXT NOT NULL DEFAULT '',
				username TEXT NOT NULL DEFAULT '',
				time TEXT NOT NULL,
				tags TEXT NOT NULL DEFAULT '',
				backup_name TEXT NOT NULL DEFAULT '',
				files INTEGER NOT NULL DEFAULT 0,
				generation INTEGER NOT NULL,
				PRIMARY KEY (repo_url, snapshot_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_snapshots_time ON snapshots(time)`,
			`CREATE TABLE IF NOT EXISTS files (
				repo_url TEXT NOT NULL,
				snapshot_id TEXT NOT NULL,
				path TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL,
				parent TEXT NOT NULL DEFAULT '',
				uid INTEGER NOT NULL DEFAULT 0,
				gid INTEGER NOT NULL DEFAULT 0,
				size INTEGER,
				mode INTEGER NOT NULL DEFAULT 0,
				permissions TEXT NOT NULL DEFAULT '',
				mtime TEXT NOT NULL DEFAULT '',
				atime TEXT NOT NULL DEFAULT '',
				ctime TEXT NOT NULL DEFAULT '',
				generation INTEGER NOT NULL,
				PRIMARY KEY (repo_url, snapshot_id, path),
				FOREIGN KEY (repo_url, snapshot_id) REFERENCES snapshots(repo_url, snapshot_id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_files_path ON files(path)`,
			`CREATE INDEX IF NOT EXISTS idx_files_name ON files(name)`,
			`CREATE INDEX IF NOT EXISTS idx_files_parent ON files(repo_url, snapshot_id, parent)`,
		},
	},
}

// migrate applies every migration whose version exceeds the highest
// previously-applied version, each inside its own transaction, and validates
// the ledger by re-reading it afterward: every migration version must be recorded.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL PRIMARY KEY)`); err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return err
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	var recorded int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&recorded); err != nil {
		return err
	}
	if recorded < len(migrations) {
		return fmt.Errorf("index: migration ledger records %d of %d versions", recorded, len(migrations))
	}
	return nil
}
