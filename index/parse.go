package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedEntry is wrapped into errors describing a specific JSON entry
// missing a field the index cannot do without.
var ErrMalformedEntry = errors.New("index: malformed entry")

type snapshotEntry struct {
	ID       string    `json:"id"`
	Short    string    `json:"short_id"`
	Time     time.Time `json:"time"`
	Parent   string    `json:"parent"`
	Tree     string    `json:"tree"`
	Hostname string    `json:"hostname"`
	Username string    `json:"username"`
	Tags     []string  `json:"tags"`
}

// ParseSnapshotsJSON parses the backup tool's "snapshots --json" array output
// into Snapshot rows tagged with repoURL. A tag matching "cirrus.<name>"
// populates BackupName.
func ParseSnapshotsJSON(repoURL, output string) ([]Snapshot, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, nil
	}

	var entries []snapshotEntry
	if err := json.Unmarshal([]byte(output), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}

	snapshots := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = e.Short
		}
		if id == "" {
			return nil, fmt.Errorf("%w: snapshot entry missing id", ErrMalformedEntry)
		}
		snapshots = append(snapshots, Snapshot{
			RepoURL:    repoURL,
			SnapshotID: id,
			ParentID:   e.Parent,
			TreeHash:   e.Tree,
			Hostname:   e.Hostname,
			Username:   e.Username,
			Time:       e.Time,
			Tags:       e.Tags,
			BackupName: backupNameFromTags(e.Tags),
		})
	}
	return snapshots, nil
}

func backupNameFromTags(tags []string) string {
	const prefix = "cirrus."
	for _, t := range tags {
		if strings.HasPrefix(t, prefix) {
			return strings.TrimPrefix(t, prefix)
		}
	}
	return ""
}

type lsEntry struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	UID         int       `json:"uid"`
	GID         int       `json:"gid"`
	Size        *int64    `json:"size"`
	Mode        uint32    `json:"mode"`
	Permissions string    `json:"permissions"`
	MTime       time.Time `json:"mtime"`
	ATime       time.Time `json:"atime"`
	CTime       time.Time `json:"ctime"`
	// StructType distinguishes the leading "snapshot" summary line the
	// backup tool emits before the actual file entries, which this parser skips.
	StructType string `json:"struct_type"`
}

// ParseLsJSON parses the backup tool's "ls <snapshot-id> --json" output,
// which is newline-delimited JSON (one object per line, the first line being
// a snapshot summary this function ignores) into File rows.
func ParseLsJSON(repoURL, snapshotID, output string) ([]File, error) {
	var files []File
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e lsEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
		}
		if e.StructType == "snapshot" || e.Path == "" {
			continue
		}

		f := File{
			RepoURL:     repoURL,
			SnapshotID:  snapshotID,
			Path:        e.Path,
			Name:        e.Name,
			Type:        parseFileType(e.Type),
			Parent:      parentPath(e.Path),
			UID:         e.UID,
			GID:         e.GID,
			Mode:        e.Mode,
			Permissions: e.Permissions,
			MTime:       e.MTime,
			ATime:       e.ATime,
			CTime:       e.CTime,
		}
		if e.Size != nil {
			f.HasSize = true
			f.Size = *e.Size
		}
		files = append(files, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

func parentPath(path string) string {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
