// Package daemoncfg parses the TOML configuration document, exposes typed
// access to repository and backup definitions, computes next-fire times for
// a backup's triggers, and watches the source file for hot reload.
package daemoncfg

import (
	"fmt"
	"time"

	"oss.nandlabs.io/cirrusd/trigger"
)

// SecretRef names where a credential value comes from. Exactly one field is
// set; which one is decided at parse time from the TOML shape.
type SecretRef struct {
	EnvVar       string `toml:"env-var"`
	Keyring      string `toml:"keyring"`
	File         string `toml:"file"`
	FileKey      string `toml:"key"`
}

// Kind reports which backend this reference names.
func (r SecretRef) Kind() string {
	switch {
	case r.EnvVar != "":
		return "env-var"
	case r.Keyring != "":
		return "keyring"
	case r.File != "":
		return "file"
	default:
		return ""
	}
}

func (r SecretRef) validate(context string) error {
	if r.Kind() == "" {
		return fmt.Errorf("%s: secret reference must set one of env-var, keyring, or file+key", context)
	}
	if r.File != "" && r.FileKey == "" {
		return fmt.Errorf("%s: secret reference with file must also set key", context)
	}
	return nil
}

// Repository is a named logical backup target.
type Repository struct {
	Name        string
	URL         string
	Password    SecretRef
	Secrets     map[string]SecretRef
	ParallelJobs int
	BuildIndexEvery string
}

// TriggerSpec is the parsed, still-uncompiled form of a [[backups.X.triggers]]
// entry, kept alongside the compiled trigger.Trigger so configuration can be
// round-tripped for display (e.g. the CLI's "config" subcommand).
type TriggerSpec struct {
	Raw     triggerDoc
	Trigger trigger.Trigger
}

// Backup is a named backup plan.
type Backup struct {
	Name               string
	Repository         string
	Path               string
	Excludes           []string
	ExcludeCaches      bool
	ExcludeLargerThan  string
	IgnoreUnreadableSourceFiles bool
	DisableTriggers    bool
	Triggers           []TriggerSpec
	ExtraArgs          []string
	// MaxAttempts bounds how many times a failed run of this backup is
	// automatically retried. Zero (the default) disables automatic retry.
	MaxAttempts int
}

// Config is a fully-validated, immutable configuration snapshot. Once
// published it is never mutated; a reload replaces the reference wholesale.
type Config struct {
	Repositories map[string]*Repository
	Backups      map[string]*Backup
	sourcePath   string
}

// SourcePath returns the file this configuration was parsed from, or empty
// if it came from ParseString.
func (c *Config) SourcePath() string { return c.sourcePath }

// RepositoryForBackup resolves a backup's repository, or an error if the
// backup names a repository absent from this configuration.
func (c *Config) RepositoryForBackup(backup *Backup) (*Repository, error) {
	repo, ok := c.Repositories[backup.Repository]
	if !ok {
		return nil, fmt.Errorf("%w: backup %q references unknown repository %q", ErrUnknownRepository, backup.Name, backup.Repository)
	}
	return repo, nil
}

// NextSchedule returns the earliest instant strictly after `after` at which
// any of the backup's triggers fires, or the zero time if the backup has no
// enabled trigger.
func NextSchedule(backup *Backup, after time.Time) time.Time {
	if backup.DisableTriggers || len(backup.Triggers) == 0 {
		return time.Time{}
	}
	var min time.Time
	for _, ts := range backup.Triggers {
		if ts.Trigger == nil {
			continue
		}
		next := ts.Trigger.NextSchedule(after)
		if next.IsZero() {
			continue
		}
		if min.IsZero() || next.Before(min) {
			min = next
		}
	}
	return min
}
