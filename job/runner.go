package job

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/daemoncfg"
	"oss.nandlabs.io/cirrusd/index"
	"oss.nandlabs.io/cirrusd/supervisor"
)

// terminateGrace is the fixed grace period the runner gives the backup tool
// to exit cleanly after a cancellation before force-killing it.
const terminateGrace = 2 * time.Second

// defaultIndexBatchLimit bounds how many unindexed snapshots a single
// no-specific-id IndexSnapshots run will walk and populate files for.
const defaultIndexBatchLimit = 50

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithJSONOutput attaches the backup tool's own "--json" flag to every invocation.
func WithJSONOutput() RunnerOption {
	return func(r *Runner) { r.jsonOutput = true }
}

// WithVerbose attaches the backup tool's own verbosity flag.
func WithVerbose() RunnerOption {
	return func(r *Runner) { r.verbose = true }
}

// WithIndex attaches a snapshot index store. Without a store, index-snapshot
// jobs store nothing: one without a snapshot id still runs the tool's
// snapshot listing, and one with a snapshot id runs nothing and succeeds.
func WithIndex(store index.Store) RunnerOption {
	return func(r *Runner) { r.index = store }
}

// WithIndexBatchLimit overrides how many unindexed snapshots a single
// no-specific-id IndexSnapshots run will populate files for.
func WithIndexBatchLimit(limit int) RunnerOption {
	return func(r *Runner) { r.indexBatchLimit = limit }
}

// Runner translates a job spec into a supervised backup-tool invocation.
type Runner struct {
	bus             *bus.Bus
	path            string
	fallbackPath    string
	secrets         *SecretResolver
	index           index.Store
	jsonOutput      bool
	verbose         bool
	indexBatchLimit int
}

// NewRunner builds a Runner. path/fallbackPath are the backup tool's primary
// and secondary executable locations.
func NewRunner(b *bus.Bus, path, fallbackPath string, resolver *SecretResolver, opts ...RunnerOption) *Runner {
	r := &Runner{bus: b, path: path, fallbackPath: fallbackPath, secrets: resolver, indexBatchLimit: defaultIndexBatchLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes job, satisfying the RunnerFunc contract expected by the queue
// engine. It always ends by publishing a terminal RawStatusChange.
func (r *Runner) Run(j Job, cancel <-chan CancelReason) {
	switch spec := j.Spec.(type) {
	case *BackupSpec:
		r.runBackup(j, spec, cancel)
	case *IndexSnapshotsSpec:
		r.runIndexSnapshots(j, spec, cancel)
	default:
		r.publish(j, "", StatusFinishedWithError, CancelNone, fmt.Errorf("job: unsupported spec kind %q", j.Spec.Kind()))
	}
}

func (r *Runner) runBackup(j Job, spec *BackupSpec, cancel <-chan CancelReason) {
	repoName := spec.Repository.Name
	backupName := spec.Backup.Name

	r.publishf(j, repoName, backupName, StatusStarted, CancelNone, nil)

	ctx := context.Background()
	env, err := r.envFor(ctx, spec.Repository)
	if err != nil {
		r.publishf(j, repoName, backupName, StatusFinishedWithError, CancelNone, err)
		return
	}

	args := append([]string{"--repo", spec.Repository.URL}, r.globalFlags()...)
	args = append(args, BackupArgs(spec.Backup)...)

	status, cancelReason, err := r.supervise(args, env, cancel)
	r.finish(j, repoName, backupName, status, cancelReason, err)
}

func (r *Runner) runIndexSnapshots(j Job, spec *IndexSnapshotsSpec, cancel <-chan CancelReason) {
	repoName := spec.Repository.Name
	r.publishf(j, repoName, "", StatusStarted, CancelNone, nil)

	ctx := context.Background()

	// A specific snapshot id restricts this run to populating that one
	// snapshot's files; it does not refresh the snapshot list.
	if spec.SnapshotID != "" {
		var err error
		if r.index != nil {
			err = r.indexFiles(ctx, spec.Repository, spec.SnapshotID)
			if err != nil {
				err = fmt.Errorf("indexing files for snapshot %q: %w", spec.SnapshotID, err)
			}
		}
		status := supervisor.ExitStatus{Successful: err == nil}
		r.finish(j, repoName, "", status, CancelNone, err)
		return
	}

	env, err := r.envFor(ctx, spec.Repository)
	if err != nil {
		r.publishf(j, repoName, "", StatusFinishedWithError, CancelNone, err)
		return
	}

	args := append([]string{"--repo", spec.Repository.URL}, r.globalFlags()...)
	args = append(args, SnapshotsArgs()...)

	output, status, cancelReason, err := r.superviseCapture(args, env, cancel)
	if err == nil && cancelReason == CancelNone && status.Successful && r.index != nil {
		if indexErr := r.indexSnapshots(ctx, spec.Repository, output); indexErr != nil {
			logger.WarnF("indexing snapshots for repository %q: %v", repoName, indexErr)
		}
	}
	r.finish(j, repoName, "", status, cancelReason, err)
}

// indexSnapshots parses the backup tool's "snapshots --json" output and
// persists it, then fetches and indexes the file list for up to
// r.indexBatchLimit snapshots not yet recorded.
func (r *Runner) indexSnapshots(ctx context.Context, repo *daemoncfg.Repository, output string) error {
	snapshots, err := index.ParseSnapshotsJSON(repo.URL, output)
	if err != nil {
		return fmt.Errorf("parsing snapshots output: %w", err)
	}
	if err := r.index.SaveSnapshots(ctx, repo.URL, snapshots); err != nil {
		return fmt.Errorf("saving snapshots: %w", err)
	}

	limit := r.indexBatchLimit
	if limit <= 0 {
		limit = defaultIndexBatchLimit
	}
	unindexed, err := r.index.GetUnindexedSnapshots(ctx, repo.URL, limit)
	if err != nil {
		return fmt.Errorf("listing unindexed snapshots: %w", err)
	}
	for _, snapshotID := range unindexed {
		if err := r.indexFiles(ctx, repo, snapshotID); err != nil {
			logger.WarnF("indexing files for snapshot %q: %v", snapshotID, err)
		}
	}
	return nil
}

func (r *Runner) indexFiles(ctx context.Context, repo *daemoncfg.Repository, snapshotID string) error {
	env, err := r.envFor(ctx, repo)
	if err != nil {
		return err
	}
	args := append([]string{"--repo", repo.URL}, r.globalFlags()...)
	args = append(args, LsArgs(snapshotID)...)

	output, status, _, err := r.superviseCapture(args, env, nil)
	if err != nil {
		return err
	}
	if !status.Successful {
		return fmt.Errorf("backup tool exited %s listing snapshot %q", status.String(), snapshotID)
	}

	files, err := index.ParseLsJSON(repo.URL, snapshotID, output)
	if err != nil {
		return fmt.Errorf("parsing ls output: %w", err)
	}
	return r.index.SaveFiles(ctx, repo.URL, snapshotID, files)
}

// envFor resolves the repository's password and auxiliary secrets into
// environment variable assignments for the subprocess.
func (r *Runner) envFor(ctx context.Context, repo *daemoncfg.Repository) ([]string, error) {
	var env []string
	password, err := r.secrets.Resolve(ctx, repo.Password)
	if err != nil {
		return nil, err
	}
	env = append(env, "RESTIC_PASSWORD="+password)

	for name, ref := range repo.Secrets {
		value, err := r.secrets.Resolve(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolving auxiliary secret %q: %w", name, err)
		}
		env = append(env, name+"="+value)
	}
	return env, nil
}

func (r *Runner) globalFlags() []string {
	var flags []string
	if r.jsonOutput {
		flags = append(flags, "--json")
	}
	if r.verbose {
		flags = append(flags, "-v")
	}
	return flags
}

// supervise spawns the backup tool, drains its output streams at the
// appropriate log levels, and waits for exit or cancellation.
func (r *Runner) supervise(args, env []string, cancel <-chan CancelReason) (supervisor.ExitStatus, CancelReason, error) {
	ctx := context.Background()
	handle, err := supervisor.Spawn(ctx, supervisor.Options{
		Path:         r.path,
		FallbackPath: r.fallbackPath,
		Args:         args,
		Env:          env,
		Stdout:       supervisor.OutputCapture,
		Stderr:       supervisor.OutputCapture,
	})
	if err != nil {
		return supervisor.ExitStatus{}, CancelNone, err
	}

	stdout := handle.Stdout()
	stderr := handle.Stderr()
	for stdout != nil || stderr != nil {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			logger.Info(line)
		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			logger.Warn(line)
		case reason := <-cancel:
			status, _ := handle.Terminate(terminateGrace)
			return status, reason, nil
		}
	}

	select {
	case reason := <-cancel:
		status, _ := handle.Terminate(terminateGrace)
		return status, reason, nil
	case <-handle.Done():
	}
	status, err := handle.Wait()
	return status, CancelNone, err
}

// superviseCapture behaves like supervise but also accumulates stdout into a
// single string for callers that need the tool's full JSON output, not just
// a line-by-line log stream. cancel may be nil if the invocation cannot be
// cancelled independently of its parent job (e.g. a follow-up "ls" call).
func (r *Runner) superviseCapture(args, env []string, cancel <-chan CancelReason) (string, supervisor.ExitStatus, CancelReason, error) {
	ctx := context.Background()
	handle, err := supervisor.Spawn(ctx, supervisor.Options{
		Path:         r.path,
		FallbackPath: r.fallbackPath,
		Args:         args,
		Env:          env,
		Stdout:       supervisor.OutputCapture,
		Stderr:       supervisor.OutputCapture,
	})
	if err != nil {
		return "", supervisor.ExitStatus{}, CancelNone, err
	}

	var out strings.Builder
	stdout := handle.Stdout()
	stderr := handle.Stderr()
	for stdout != nil || stderr != nil {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			out.WriteString(line)
			out.WriteByte('\n')
		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			logger.Warn(line)
		case reason := <-cancel:
			status, _ := handle.Terminate(terminateGrace)
			return out.String(), status, reason, nil
		}
	}

	select {
	case reason := <-cancel:
		status, _ := handle.Terminate(terminateGrace)
		return out.String(), status, reason, nil
	case <-handle.Done():
	}
	status, err := handle.Wait()
	return out.String(), status, CancelNone, err
}

func (r *Runner) finish(j Job, repoName, backupName string, status supervisor.ExitStatus, reason CancelReason, err error) {
	if reason != CancelNone {
		r.publishf(j, repoName, backupName, StatusCancelled, reason, nil)
		return
	}
	if err != nil {
		r.publishf(j, repoName, backupName, StatusFinishedWithError, CancelNone, err)
		return
	}
	if status.Successful {
		r.publishf(j, repoName, backupName, StatusFinishedSuccessfully, CancelNone, nil)
		return
	}
	r.publishf(j, repoName, backupName, StatusFinishedWithError, CancelNone, fmt.Errorf("backup tool exited %s", status.String()))
}

func (r *Runner) publish(j Job, repoName string, status Status, reason CancelReason, err error) {
	r.publishf(j, repoName, "", status, reason, err)
}

func (r *Runner) publishf(j Job, repoName, backupName string, status Status, reason CancelReason, err error) {
	bus.Send(r.bus, RawStatusChange{
		JobID:          j.ID,
		RepositoryName: repoName,
		BackupName:     backupName,
		Status:         status,
		Reason:         reason,
		Err:            err,
		Timestamp:      time.Now(),
	})
}
