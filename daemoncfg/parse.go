package daemoncfg

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"oss.nandlabs.io/cirrusd/errutils"
	"oss.nandlabs.io/cirrusd/trigger"
	"oss.nandlabs.io/cirrusd/vfs"
)

// document mirrors the top-level TOML shape. go-toml/v2 matches field tags
// case-sensitively, so both the kebab-case and underscore spellings a user
// might write are accepted via dedicated tagged fields merged after decode.
type document struct {
	Repositories map[string]repositoryDoc `toml:"repositories"`
	Backups      map[string]backupDoc     `toml:"backups"`
}

type repositoryDoc struct {
	URL             string               `toml:"url"`
	ParallelJobs    int                  `toml:"parallel-jobs"`
	ParallelJobsAlt int                  `toml:"parallel_jobs"`
	BuildIndex      string               `toml:"build-index-every"`
	BuildIndexAlt   string               `toml:"build_index_every"`
	Password        SecretRef            `toml:"password"`
	Secrets         map[string]SecretRef `toml:"secrets"`
}

type backupDoc struct {
	Repository        string       `toml:"repository"`
	Path              string       `toml:"path"`
	Excludes          []string     `toml:"excludes"`
	ExcludeCaches     bool         `toml:"exclude-caches"`
	ExcludeCachesAlt  bool         `toml:"exclude_caches"`
	ExcludeLargerThan string       `toml:"exclude-larger-than"`
	ExcludeLargerAlt  string       `toml:"exclude_larger_than"`
	IgnoreUnreadable    bool       `toml:"ignore-unreadable-source-files"`
	IgnoreUnreadableAlt bool       `toml:"ignore_unreadable_source_files"`
	DisableTriggers   bool         `toml:"disable-triggers"`
	DisableTriggersAlt bool        `toml:"disable_triggers"`
	Triggers          []triggerDoc `toml:"triggers"`
	ExtraArgs         []string     `toml:"extra-args"`
	ExtraArgsAlt      []string     `toml:"extra_args"`
	MaxAttempts       int          `toml:"max-attempts"`
	MaxAttemptsAlt    int          `toml:"max_attempts"`
}

// triggerDoc is either a wall-clock pair (at/every) or a cron pair
// (cron/timezone); which fields are non-empty determines the shape.
type triggerDoc struct {
	At       string `toml:"at"`
	Every    string `toml:"every"`
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonEmptyInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// ParseString parses TOML configuration text, returning a validated Config
// or a typed error.
func ParseString(s string) (*Config, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrEmptyConfig
	}

	var doc document
	if err := toml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
	}

	cfg, err := fromDocument(doc)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFile reads and parses the configuration file at path. A missing or
// unreadable file is an I/O error; an empty file is ErrEmptyConfig.
func ParseFile(path string) (*Config, error) {
	f, err := vfs.GetManager().OpenRaw(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	defer f.Close()
	contents, err := f.AsString()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	cfg, err := ParseString(contents)
	if err != nil {
		return nil, err
	}
	cfg.sourcePath = path
	return cfg, nil
}

// fromDocument validates and converts doc into a Config, aggregating every
// invalid repository/backup/trigger it finds via a MultiError instead of
// returning on the first one, so a single pass over a config file reports
// every problem it has at once.
func fromDocument(doc document) (*Config, error) {
	cfg := &Config{
		Repositories: make(map[string]*Repository, len(doc.Repositories)),
		Backups:      make(map[string]*Backup, len(doc.Backups)),
	}

	errs := errutils.NewMultiErr(nil)

	for name, rd := range doc.Repositories {
		repo := &Repository{
			Name:            name,
			URL:             rd.URL,
			Password:        rd.Password,
			Secrets:         rd.Secrets,
			ParallelJobs:    firstNonEmptyInt(rd.ParallelJobs, rd.ParallelJobsAlt),
			BuildIndexEvery: firstNonEmpty(rd.BuildIndex, rd.BuildIndexAlt),
		}
		if repo.ParallelJobs <= 0 {
			repo.ParallelJobs = 3
		}
		if repo.URL == "" {
			errs.Add(fmt.Errorf("%w: repository %q: url is required", ErrInvalidFile, name))
			continue
		}
		if err := repo.Password.validate(fmt.Sprintf("repository %q password", name)); err != nil {
			errs.Add(fmt.Errorf("%w: %v", ErrInvalidFile, err))
			continue
		}
		valid := true
		for secretName, ref := range repo.Secrets {
			if err := ref.validate(fmt.Sprintf("repository %q secret %q", name, secretName)); err != nil {
				errs.Add(fmt.Errorf("%w: %v", ErrInvalidFile, err))
				valid = false
			}
		}
		if !valid {
			continue
		}
		cfg.Repositories[name] = repo
	}

	for name, bd := range doc.Backups {
		backup := &Backup{
			Name:              name,
			Repository:        bd.Repository,
			Path:              bd.Path,
			Excludes:          bd.Excludes,
			ExcludeCaches:     bd.ExcludeCaches || bd.ExcludeCachesAlt,
			ExcludeLargerThan: firstNonEmpty(bd.ExcludeLargerThan, bd.ExcludeLargerAlt),
			IgnoreUnreadableSourceFiles: bd.IgnoreUnreadable || bd.IgnoreUnreadableAlt,
			DisableTriggers:   bd.DisableTriggers || bd.DisableTriggersAlt,
			ExtraArgs:         append(append([]string{}, bd.ExtraArgs...), bd.ExtraArgsAlt...),
			MaxAttempts:       firstNonEmptyInt(bd.MaxAttempts, bd.MaxAttemptsAlt),
		}
		valid := true
		if backup.Path == "" {
			errs.Add(fmt.Errorf("%w: backup %q: path is required", ErrInvalidFile, name))
			valid = false
		}
		if backup.Repository == "" {
			errs.Add(fmt.Errorf("%w: backup %q: repository is required", ErrInvalidFile, name))
			valid = false
		} else if _, ok := cfg.Repositories[backup.Repository]; !ok {
			errs.Add(fmt.Errorf("%w: backup %q references unknown repository %q", ErrUnknownRepository, name, backup.Repository))
			valid = false
		}

		for i, td := range bd.Triggers {
			compiled, err := compileTrigger(td)
			if err != nil {
				errs.Add(fmt.Errorf("%w: backup %q trigger %d: %v", ErrInvalidFile, name, i, err))
				valid = false
				continue
			}
			backup.Triggers = append(backup.Triggers, TriggerSpec{Raw: td, Trigger: compiled})
		}
		if !valid {
			continue
		}

		cfg.Backups[name] = backup
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return cfg, nil
}

func compileTrigger(td triggerDoc) (trigger.Trigger, error) {
	switch {
	case td.At != "" || td.Every != "":
		if td.At == "" || td.Every == "" {
			return nil, fmt.Errorf("wall-clock trigger requires both at and every")
		}
		return trigger.ParseWallClockFields(td.At, td.Every)
	case td.Cron != "":
		return trigger.ParseCron(td.Cron, td.Timezone)
	default:
		return nil, fmt.Errorf("trigger must set at/every or cron")
	}
}
