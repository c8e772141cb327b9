// Package job defines the job and status shapes shared by the queue engine,
// runner, and retry handler, and the tagged spec variants a job can carry.
package job

import (
	"reflect"
	"time"

	"oss.nandlabs.io/cirrusd/daemoncfg"
	"oss.nandlabs.io/cirrusd/uuid"
)

// Status is a job's lifecycle state.
type Status int

const (
	StatusStarted Status = iota
	StatusFinishedSuccessfully
	StatusFinishedWithError
	StatusCancelled
	StatusRetried
)

func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusFinishedSuccessfully:
		return "finished-successfully"
	case StatusFinishedWithError:
		return "finished-with-error"
	case StatusCancelled:
		return "cancelled"
	case StatusRetried:
		return "retried"
	default:
		return "unknown"
	}
}

// CancelReason distinguishes why a running job was cancelled.
type CancelReason int

const (
	CancelNone CancelReason = iota
	CancelSuspend
	CancelShutdown
	CancelUser
)

func (r CancelReason) String() string {
	switch r {
	case CancelSuspend:
		return "suspend"
	case CancelShutdown:
		return "shutdown"
	case CancelUser:
		return "user"
	default:
		return "none"
	}
}

// Spec is a tagged job-spec variant. Two specs are equivalent iff their
// tagged contents are structurally equal; this equivalence governs queue
// deduplication.
type Spec interface {
	// RepositoryName names the repository queue this spec belongs to.
	RepositoryName() string
	// Equivalent reports whether other carries the same logical work as this
	// spec (same kind, structurally equal contents) regardless of job identity.
	Equivalent(other Spec) bool
	// Kind is a short tag identifying the spec variant ("backup", "index-snapshots").
	Kind() string
	// MaxAttempts is the total number of attempts (including the first) the
	// retry handler allows before treating a failure as terminal. 1 means no
	// automatic retry.
	MaxAttempts() int
}

// BackupSpec carries a reference-copy of the repository and backup
// definitions captured at submission time, so later config reloads do not
// perturb an in-flight job.
type BackupSpec struct {
	Repository *daemoncfg.Repository
	Backup     *daemoncfg.Backup
}

func (s *BackupSpec) RepositoryName() string { return s.Repository.Name }
func (s *BackupSpec) Kind() string           { return "backup" }

func (s *BackupSpec) MaxAttempts() int {
	if s.Backup.MaxAttempts <= 0 {
		return 1
	}
	return s.Backup.MaxAttempts
}

func (s *BackupSpec) Equivalent(other Spec) bool {
	o, ok := other.(*BackupSpec)
	if !ok {
		return false
	}
	return reflect.DeepEqual(s.Backup, o.Backup) && reflect.DeepEqual(s.Repository, o.Repository)
}

// IndexSnapshotsSpec requests a snapshot/file index refresh for a
// repository. SnapshotID, when non-empty, restricts file-population to that
// one snapshot; empty means index every unindexed snapshot.
type IndexSnapshotsSpec struct {
	Repository *daemoncfg.Repository
	SnapshotID string
}

func (s *IndexSnapshotsSpec) RepositoryName() string { return s.Repository.Name }
func (s *IndexSnapshotsSpec) Kind() string           { return "index-snapshots" }
func (s *IndexSnapshotsSpec) MaxAttempts() int       { return 1 }

func (s *IndexSnapshotsSpec) Equivalent(other Spec) bool {
	o, ok := other.(*IndexSnapshotsSpec)
	if !ok {
		return false
	}
	return reflect.DeepEqual(s.Repository, o.Repository) && s.SnapshotID == o.SnapshotID
}

// Job pairs a spec with an immutable, randomly-generated identifier. Two
// jobs are equal iff their identifiers match.
type Job struct {
	ID   string
	Spec Spec
}

// New allocates a job with a fresh identifier for spec.
func New(spec Spec) (Job, error) {
	id, err := uuid.V4()
	if err != nil {
		return Job{}, err
	}
	return Job{ID: id.String(), Spec: spec}, nil
}

// Submission is published on the bus to request that a job be enqueued. The
// scheduler publishes it for scheduled fires; the retry handler publishes it
// to resubmit a failed job; the CLI's one-shot "backup <name>" path publishes
// it for a manual run.
type Submission struct {
	Job Job
}

// RawStatusChange is published by the runner as the ground truth of a job's
// lifecycle. Only the retry handler subscribes to this; every other
// component (queue engine, UI) subscribes to the public StatusChange below.
type RawStatusChange struct {
	JobID          string
	RepositoryName string
	BackupName     string
	Status         Status
	Reason         CancelReason
	Err            error
	Timestamp      time.Time
}

// StatusChange is the public topic: the retry handler forwards every
// RawStatusChange onto this topic unchanged, except that FinishedWithError is
// replaced by Retried when an automatic retry was dispatched.
type StatusChange struct {
	JobID          string
	RepositoryName string
	BackupName     string
	Status         Status
	Reason         CancelReason
	Err            error
	Attempt        int
	AttemptsLeft   int
	Timestamp      time.Time
}
