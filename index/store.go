package index

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"oss.nandlabs.io/cirrusd/l3"
	"oss.nandlabs.io/cirrusd/pool"
)

var logger = l3.Get()

// Store persists snapshot and file metadata for one or more repositories.
type Store interface {
	// SaveSnapshots atomically replaces the full snapshot set for repoURL
	// with snapshots, bumping the store's generation counter.
	SaveSnapshots(ctx context.Context, repoURL string, snapshots []Snapshot) error
	// SaveFiles atomically replaces the file rows for one snapshot.
	SaveFiles(ctx context.Context, repoURL, snapshotID string, files []File) error
	// GetSnapshots returns every indexed snapshot for repoURL, newest first.
	GetSnapshots(ctx context.Context, repoURL string) ([]Snapshot, error)
	// GetUnindexedSnapshots returns up to limit ids of snapshots that have no
	// file rows yet, newest first.
	GetUnindexedSnapshots(ctx context.Context, repoURL string, limit int) ([]string, error)
	// GetFiles returns up to limit file rows directly under key.Parent ("/" for top-level entries).
	GetFiles(ctx context.Context, key FileKey, limit int) ([]FileRecord, error)
	// Close releases the store's connections.
	Close() error
}

// sqliteStore is a Store backed by an embedded SQLite database: one
// dedicated write connection (SQLite serializes writers regardless) and a
// pooled set of read-only connections for concurrent queries.
type sqliteStore struct {
	path       string
	writeConn  *sql.Conn
	writeDB    *sql.DB
	readPool   pool.Pool[*sql.Conn]
	readDB     *sql.DB
	generation atomic.Int64
}

// Open creates or opens the SQLite database at path, applying migrations,
// and returns a Store ready for use.
func Open(path string) (Store, error) {
	writeDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("index: opening write connection: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	if err := migrate(writeDB); err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("index: applying migrations: %w", err)
	}

	writeConn, err := writeDB.Conn(context.Background())
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("index: acquiring write connection: %w", err)
	}

	readDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&mode=ro")
	if err != nil {
		writeConn.Close()
		writeDB.Close()
		return nil, fmt.Errorf("index: opening read pool source: %w", err)
	}

	creator := func() (*sql.Conn, error) { return readDB.Conn(context.Background()) }
	destroyer := func(c *sql.Conn) error { return c.Close() }
	readPool, err := pool.NewPool[*sql.Conn](creator, destroyer, 1, 4, 5)
	if err != nil {
		readDB.Close()
		writeConn.Close()
		writeDB.Close()
		return nil, fmt.Errorf("index: building read pool: %w", err)
	}
	if err := readPool.Start(); err != nil {
		readDB.Close()
		writeConn.Close()
		writeDB.Close()
		return nil, fmt.Errorf("index: starting read pool: %w", err)
	}

	s := &sqliteStore{path: path, writeConn: writeConn, writeDB: writeDB, readPool: readPool, readDB: readDB}

	var maxGen sql.NullInt64
	if err := writeConn.QueryRowContext(context.Background(), `SELECT MAX(generation) FROM snapshots`).Scan(&maxGen); err == nil && maxGen.Valid {
		s.generation.Store(maxGen.Int64)
	}

	return s, nil
}

func (s *sqliteStore) Close() error {
	s.readPool.Clear()
	s.readDB.Close()
	s.writeConn.Close()
	return s.writeDB.Close()
}

// SaveSnapshots replaces the snapshot set for repoURL inside one transaction,
// using the documented generation-filtered replace rather than
// delete-then-insert: every row is written under a fresh generation number
// via INSERT OR REPLACE first, and only then are rows left over from an
// older generation deleted. This never transiently empties the table (a
// reader querying mid-refresh still sees either the prior generation's rows
// or the new ones, never neither) and avoids per-row diffing against the
// previous set.
func (s *sqliteStore) SaveSnapshots(ctx context.Context, repoURL string, snapshots []Snapshot) error {
	gen := s.generation.Add(1)

	tx, err := s.writeConn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO snapshots
		(repo_url, snapshot_id, parent_id, tree_hash, hostname, username, time, tags, backup_name, files, generation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx, repoURL, snap.SnapshotID, snap.ParentID, snap.TreeHash,
			snap.Hostname, snap.Username, snap.Time.UTC().Format(timeLayout), joinTags(snap.Tags),
			snap.BackupName, snap.Files, gen); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE repo_url = ? AND generation != ?`, repoURL, gen); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveFiles replaces the file rows for one snapshot and updates that
// snapshot's file count, inside one transaction using the same
// generation-filtered replace as SaveSnapshots, scoped to (repoURL,
// snapshotID) so other snapshots' file rows are untouched.
func (s *sqliteStore) SaveFiles(ctx context.Context, repoURL, snapshotID string, files []File) error {
	gen := s.generation.Add(1)

	tx, err := s.writeConn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO files
		(repo_url, snapshot_id, path, name, type, parent, uid, gid, size, mode, permissions, mtime, atime, ctime, generation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range files {
		var size sql.NullInt64
		if f.HasSize {
			size = sql.NullInt64{Int64: f.Size, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, repoURL, snapshotID, f.Path, f.Name, f.Type.String(), f.Parent,
			f.UID, f.GID, size, f.Mode, f.Permissions,
			f.MTime.UTC().Format(timeLayout), f.ATime.UTC().Format(timeLayout), f.CTime.UTC().Format(timeLayout), gen); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE repo_url = ? AND snapshot_id = ? AND generation != ?`, repoURL, snapshotID, gen); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET files = ? WHERE repo_url = ? AND snapshot_id = ?`, len(files), repoURL, snapshotID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqliteStore) GetSnapshots(ctx context.Context, repoURL string) ([]Snapshot, error) {
	conn, err := s.readPool.Checkout()
	if err != nil {
		return nil, err
	}
	defer s.readPool.Checkin(conn)

	rows, err := conn.QueryContext(ctx, `SELECT repo_url, snapshot_id, parent_id, tree_hash, hostname, username, time, tags, backup_name, files
		FROM snapshots WHERE repo_url = ? ORDER BY time DESC`, repoURL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetUnindexedSnapshots(ctx context.Context, repoURL string, limit int) ([]string, error) {
	conn, err := s.readPool.Checkout()
	if err != nil {
		return nil, err
	}
	defer s.readPool.Checkin(conn)

	rows, err := conn.QueryContext(ctx, `SELECT snapshot_id FROM snapshots WHERE repo_url = ? AND files = 0
		ORDER BY time DESC LIMIT ?`, repoURL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) GetFiles(ctx context.Context, key FileKey, limit int) ([]FileRecord, error) {
	conn, err := s.readPool.Checkout()
	if err != nil {
		return nil, err
	}
	defer s.readPool.Checkin(conn)

	rows, err := conn.QueryContext(ctx, `SELECT
			f.repo_url, f.snapshot_id, f.path, f.name, f.type, f.parent, f.uid, f.gid, f.size, f.mode, f.permissions, f.mtime, f.atime, f.ctime,
			s.parent_id, s.tree_hash, s.hostname, s.username, s.time, s.tags, s.backup_name, s.files
		FROM files f JOIN snapshots s ON s.repo_url = f.repo_url AND s.snapshot_id = f.snapshot_id
		WHERE f.repo_url = ? AND f.snapshot_id = ? AND f.parent = ? LIMIT ?`, key.RepoURL, key.SnapshotID, key.Parent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
