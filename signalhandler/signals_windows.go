//go:build windows

package signalhandler

import (
	"os"
	"syscall"
)

// terminationSignals is reduced relative to POSIX: Go's os/signal package on
// Windows can only surface os.Interrupt (ctrl-c) and syscall.SIGTERM for a
// console process. The finer-grained ctrl-break/close/logoff/shutdown
// distinction the backup tool's original platform layer makes has no
// os/signal equivalent short of raw Win32 console-handler callbacks, and is
// accepted here as a documented reduced-fidelity limitation.
func terminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
