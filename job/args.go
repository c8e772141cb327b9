package job

import (
	"fmt"
	"runtime"

	"oss.nandlabs.io/cirrusd/daemoncfg"
)

// excludeFlag is spelled case-insensitively on Windows (the backup tool's own
// convention for that platform) and case-sensitively everywhere else.
func excludeFlag() string {
	if runtime.GOOS == "windows" {
		return "--iexclude"
	}
	return "--exclude"
}

// BackupArgs composes the argument vector for a "backup" invocation, not
// including the global flags (JSON/verbosity/--repo), which the supervisor
// caller attaches from its own options.
func BackupArgs(backup *daemoncfg.Backup) []string {
	args := []string{"backup", backup.Path, "--tag", fmt.Sprintf("cirrus.%s", backup.Name)}
	for _, pattern := range backup.Excludes {
		args = append(args, excludeFlag(), pattern)
	}
	if backup.ExcludeCaches {
		args = append(args, "--exclude-caches")
	}
	if backup.ExcludeLargerThan != "" {
		args = append(args, "--exclude-larger-than", backup.ExcludeLargerThan)
	}
	if backup.IgnoreUnreadableSourceFiles {
		args = append(args, "--ignore-unreadable-source-files")
	}
	args = append(args, backup.ExtraArgs...)
	return args
}

// SnapshotsArgs composes the argument vector for listing a repository's
// snapshots in JSON form, per the index population design.
func SnapshotsArgs() []string {
	return []string{"snapshots", "--json"}
}

// LsArgs composes the argument vector for listing a snapshot's files in
// line-delimited JSON form.
func LsArgs(snapshotID string) []string {
	return []string{"ls", snapshotID, "--json"}
}
