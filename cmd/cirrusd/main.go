// Command cirrusd is the backup-orchestrator daemon's entrypoint: it wires
// the configuration store, scheduler, job queue, runner, retry relay,
// suspend service, signal handler, and shutdown coordinator into one
// lifecycle-managed component graph, plus a handful of thin one-shot
// collaborator subcommands that reuse the same configuration and secrets
// plumbing without starting the daemon loop.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/cli"
	"oss.nandlabs.io/cirrusd/config"
	"oss.nandlabs.io/cirrusd/daemoncfg"
	"oss.nandlabs.io/cirrusd/index"
	"oss.nandlabs.io/cirrusd/job"
	"oss.nandlabs.io/cirrusd/l3"
	"oss.nandlabs.io/cirrusd/lifecycle"
	"oss.nandlabs.io/cirrusd/scheduler"
	"oss.nandlabs.io/cirrusd/secrets"
	"oss.nandlabs.io/cirrusd/shutdown"
	"oss.nandlabs.io/cirrusd/signalhandler"
	"oss.nandlabs.io/cirrusd/supervisor"
	"oss.nandlabs.io/cirrusd/suspend"
	"oss.nandlabs.io/cirrusd/vfs"
)

var logger = l3.Get()

// version is stamped at release build time; "dev" otherwise.
var version = "dev"

const defaultResticBinary = "restic"

func main() {
	app := cli.NewCLI()
	app.AddVersion(version)
	app.AddCommand(daemonCommand())
	app.AddCommand(versionCommand())
	app.AddCommand(configCommand())
	app.AddCommand(backupCommand())
	app.AddCommand(secretCommand())
	app.AddCommand(resticCommand())

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configFlags() []*cli.Flag {
	return []*cli.Flag{
		{Name: "config-file", Usage: "path to the TOML configuration file", Default: "cirrusd.toml"},
		{Name: "config-string", Usage: "inline TOML configuration (overrides config-file)", Default: ""},
		{Name: "restic-binary", Usage: "path to the backup tool executable", Default: defaultResticBinary},
		{Name: "secrets-file", Usage: "path to a local encrypted secret store (optional)", Default: ""},
		{Name: "secrets-key", Usage: "master key for the local encrypted secret store", Default: ""},
	}
}

func loadConfig(ctx *cli.Context) (*daemoncfg.Config, error) {
	if s, ok := ctx.GetFlag("config-string"); ok && s != "" {
		return daemoncfg.ParseString(s)
	}
	path, _ := ctx.GetFlag("config-file")
	return daemoncfg.ParseFile(path)
}

func loadSecretResolver(ctx *cli.Context) (*job.SecretResolver, error) {
	file, _ := ctx.GetFlag("secrets-file")
	if file == "" {
		return job.NewSecretResolver(nil), nil
	}
	key, _ := ctx.GetFlag("secrets-key")
	store, err := secrets.NewLocalStore(file, key)
	if err != nil {
		return nil, fmt.Errorf("opening local secret store: %w", err)
	}
	return job.NewSecretResolver(store), nil
}

func indexPathFor(repoURL string) (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(cacheDir, "cirrusd", "index")
	if _, err := vfs.GetManager().MkdirAllRaw(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, hashRepoURL(repoURL)+".db"), nil
}

// hashRepoURL derives a filesystem-safe, stable file name from a repository
// URL, which may otherwise contain characters unsafe for a path component.
func hashRepoURL(repoURL string) string {
	sum := sha256.Sum256([]byte(repoURL))
	return hex.EncodeToString(sum[:])[:16]
}

func daemonCommand() *cli.Command {
	cmd := cli.NewCommand("daemon", "run the backup-orchestrator daemon", version, runDaemon)
	cmd.Flags = configFlags()
	return cmd
}

func runDaemon(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	resolver, err := loadSecretResolver(ctx)
	if err != nil {
		return err
	}

	configFile, _ := ctx.GetFlag("config-file")
	resticBinary, _ := ctx.GetFlag("restic-binary")

	b := bus.New()
	manager := lifecycle.NewSimpleComponentManager(lifecycle.WithoutSignalHandling())

	reloader, err := daemoncfg.NewReloader(configFile, b)
	if err != nil {
		// A config-string invocation has no file to watch; proceed without a
		// reloader but still publish the one-time ConfigReload so the
		// scheduler picks it up.
		logger.WarnF("configuration hot-reload disabled: %v", err)
		bus.Send(b, daemoncfg.ConfigReload{Config: cfg})
	} else {
		manager.Register(reloader)
	}

	sched := scheduler.New(b)
	manager.Register(sched)

	runnerOpts := []job.RunnerOption{job.WithJSONOutput()}
	if store, err := openIndexForAllRepositories(cfg); err == nil && store != nil {
		runnerOpts = append(runnerOpts, job.WithIndex(store))
	} else if err != nil {
		logger.WarnF("snapshot index disabled: %v", err)
	}
	runner := job.NewRunner(b, resticBinary, resticBinary, resolver, runnerOpts...)

	queueEngine := job.NewEngine(b, runner.Run, func(repositoryName string) int {
		if repo, ok := cfg.Repositories[repositoryName]; ok && repo.ParallelJobs > 0 {
			return repo.ParallelJobs
		}
		return 0
	})
	manager.Register(queueEngine)

	manager.Register(job.NewRetryHandler(b))
	manager.Register(suspend.NewService(b))
	manager.Register(signalhandler.New(b))

	gracePeriodSeconds, err := config.GetEnvAsInt("CIRRUSD_SHUTDOWN_GRACE_SECONDS", int(shutdown.DefaultGracePeriod/time.Second))
	if err != nil {
		logger.WarnF("ignoring malformed CIRRUSD_SHUTDOWN_GRACE_SECONDS: %v", err)
		gracePeriodSeconds = int(shutdown.DefaultGracePeriod / time.Second)
	}

	exit := func(code int) { os.Exit(code) }
	manager.Register(shutdown.New(b, time.Duration(gracePeriodSeconds)*time.Second, exit))

	if err := manager.StartAll(); err != nil {
		return fmt.Errorf("starting components: %w", err)
	}
	manager.StartAndWait()
	return nil
}

// openIndexForAllRepositories opens one SQLite-backed index store per
// repository named in cfg and returns a fan-out Store that routes by
// RepoURL; nil with no error if cfg declares no repositories.
func openIndexForAllRepositories(cfg *daemoncfg.Config) (index.Store, error) {
	if len(cfg.Repositories) == 0 {
		return nil, nil
	}
	stores := make(map[string]index.Store, len(cfg.Repositories))
	for _, repo := range cfg.Repositories {
		path, err := indexPathFor(repo.URL)
		if err != nil {
			return nil, err
		}
		store, err := index.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening index for repository %q: %w", repo.Name, err)
		}
		stores[repo.URL] = store
	}
	return index.NewMultiStore(stores), nil
}

func versionCommand() *cli.Command {
	return cli.NewCommand("version", "print cirrusd and backup-tool versions", version, func(ctx *cli.Context) error {
		fmt.Printf("cirrusd %s\n", version)
		resticBinary, _ := ctx.GetFlag("restic-binary")
		if resticBinary == "" {
			resticBinary = defaultResticBinary
		}
		if v, err := supervisor.VersionString(context.Background(), resticBinary); err == nil {
			fmt.Printf("backup tool: %s\n", v)
		}
		return nil
	})
}

func configCommand() *cli.Command {
	cmd := cli.NewCommand("config", "display the parsed configuration", version, func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		for name, repo := range cfg.Repositories {
			fmt.Printf("repository %s: url=%s parallel-jobs=%d\n", name, repo.URL, repo.ParallelJobs)
		}
		for name, backup := range cfg.Backups {
			fmt.Printf("backup %s: repository=%s path=%s triggers=%d\n", name, backup.Repository, backup.Path, len(backup.Triggers))
		}
		return nil
	})
	cmd.Flags = configFlags()
	return cmd
}

func backupCommand() *cli.Command {
	cmd := cli.NewCommand("backup", "submit a one-shot backup run (requires a running daemon)", version, func(ctx *cli.Context) error {
		return fmt.Errorf("cirrusd: one-shot backup submission requires an IPC channel to a running daemon, not yet wired")
	})
	cmd.Flags = configFlags()
	return cmd
}

func secretCommand() *cli.Command {
	cmd := cli.NewCommand("secret", "manage local secret store entries", version, func(ctx *cli.Context) error {
		return fmt.Errorf("cirrusd: use the 'set' or 'list' subcommand")
	})
	cmd.Flags = configFlags()

	cmd.AddSubCommand(cli.NewCommand("list", "list keys in the local secret store", version, func(ctx *cli.Context) error {
		return fmt.Errorf("cirrusd: local secret store does not support key enumeration by design (no plaintext index is kept at rest)")
	}))
	cmd.AddSubCommand(cli.NewCommand("set", "write a key into the local secret store", version, func(ctx *cli.Context) error {
		return fmt.Errorf("cirrusd: secret set is stubbed pending an interactive value prompt")
	}))
	return cmd
}

func resticCommand() *cli.Command {
	cmd := cli.NewCommand("restic", "pass arguments through to the backup tool", version, func(ctx *cli.Context) error {
		resticBinary, _ := ctx.GetFlag("restic-binary")
		if resticBinary == "" {
			resticBinary = defaultResticBinary
		}
		return fmt.Errorf("cirrusd: restic passthrough is stubbed; invoke %s directly for now", resticBinary)
	})
	cmd.Flags = configFlags()
	return cmd
}
