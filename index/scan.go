package index

import (
	"database/sql"
	"strings"
	"time"
)

const timeLayout = time.RFC3339Nano

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func parseFileType(s string) FileType {
	if s == "dir" {
		return FileTypeDir
	}
	return FileTypeFile
}

func scanSnapshot(rows *sql.Rows) (Snapshot, error) {
	var snap Snapshot
	var timeStr, tags string
	if err := rows.Scan(&snap.RepoURL, &snap.SnapshotID, &snap.ParentID, &snap.TreeHash, &snap.Hostname,
		&snap.Username, &timeStr, &tags, &snap.BackupName, &snap.Files); err != nil {
		return Snapshot{}, err
	}
	snap.Tags = splitTags(tags)
	snap.Time, _ = time.Parse(timeLayout, timeStr)
	return snap, nil
}

func scanFileRecord(rows *sql.Rows) (FileRecord, error) {
	var rec FileRecord
	var typeStr, mtime, atime, ctime string
	var size sql.NullInt64
	var snapTime, snapTags string

	if err := rows.Scan(
		&rec.File.RepoURL, &rec.File.SnapshotID, &rec.File.Path, &rec.File.Name, &typeStr, &rec.File.Parent,
		&rec.File.UID, &rec.File.GID, &size, &rec.File.Mode, &rec.File.Permissions, &mtime, &atime, &ctime,
		&rec.Snapshot.ParentID, &rec.Snapshot.TreeHash, &rec.Snapshot.Hostname, &rec.Snapshot.Username,
		&snapTime, &snapTags, &rec.Snapshot.BackupName, &rec.Snapshot.Files,
	); err != nil {
		return FileRecord{}, err
	}

	rec.File.Type = parseFileType(typeStr)
	rec.File.HasSize = size.Valid
	rec.File.Size = size.Int64
	rec.File.MTime, _ = time.Parse(timeLayout, mtime)
	rec.File.ATime, _ = time.Parse(timeLayout, atime)
	rec.File.CTime, _ = time.Parse(timeLayout, ctime)

	rec.Snapshot.RepoURL = rec.File.RepoURL
	rec.Snapshot.SnapshotID = rec.File.SnapshotID
	rec.Snapshot.Tags = splitTags(snapTags)
	rec.Snapshot.Time, _ = time.Parse(timeLayout, snapTime)

	return rec, nil
}
