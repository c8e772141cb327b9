package daemoncfg

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/events"
	"oss.nandlabs.io/cirrusd/fsutils"
	"oss.nandlabs.io/cirrusd/l3"
	"oss.nandlabs.io/cirrusd/lifecycle"
)

var logger = l3.Get()

// componentID is the identifier this component registers under with the
// lifecycle manager and acknowledges shutdown with.
const componentID = "config-reloader"

// Reloader watches a configuration file and republishes ConfigReload on every
// successfully-validated change. It is a lifecycle.Component.
type Reloader struct {
	*lifecycle.SimpleComponent
	path    string
	bus     *bus.Bus
	watcher *fsnotify.Watcher
	current atomic.Pointer[Config]
	done    chan struct{}
}

// NewReloader validates that path exists, performs the initial parse, and
// returns a Reloader ready to register with a lifecycle.ComponentManager. The
// initial configuration is available via Current immediately, even before
// Start is called.
func NewReloader(path string, b *bus.Bus) (*Reloader, error) {
	if !fsutils.FileExists(path) {
		return nil, fmt.Errorf("%w: %s: file does not exist", ErrIO, path)
	}
	cfg, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	r := &Reloader{
		SimpleComponent: &lifecycle.SimpleComponent{CompId: componentID},
		path:            path,
		bus:             b,
		done:            make(chan struct{}),
	}
	r.current.Store(cfg)
	r.StartFunc = r.start
	r.StopFunc = r.stop
	return r, nil
}

// Current returns the most recently successfully-parsed configuration.
func (r *Reloader) Current() *Config { return r.current.Load() }

func (r *Reloader) start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("daemoncfg: unable to watch %s: %w", r.path, err)
	}
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("daemoncfg: unable to watch %s: %w", dir, err)
	}
	r.watcher = watcher

	bus.Send(r.bus, ConfigReload{Config: r.current.Load()})

	shutdown := bus.Subscribe[events.ShutdownRequested](r.bus)
	go r.run(watcher, shutdown)
	return nil
}

func (r *Reloader) run(watcher *fsnotify.Watcher, shutdown *bus.Subscription[events.ShutdownRequested]) {
	defer close(r.done)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WarnF("config watcher error: %v", err)

		case _, ok := <-shutdown.Chan():
			_ = watcher.Close()
			shutdown.Unsubscribe()
			if ok {
				bus.Send(r.bus, events.ShutdownAcknowledged{Component: componentID})
			}
			return
		}
	}
}

func (r *Reloader) reload() {
	cfg, err := ParseFile(r.path)
	if err != nil {
		logger.WarnF("config reload failed, keeping previous configuration: %v", err)
		return
	}
	r.current.Store(cfg)
	bus.Send(r.bus, ConfigReload{Config: cfg})
	logger.InfoF("configuration reloaded from %s", r.path)
}

func (r *Reloader) stop() error {
	<-r.done
	return nil
}
