// Package daemonctl wraps sevlyar/go-daemon so both the Master and
// Slave binaries can reborn themselves into a background process the
// same way, keyed by a process name.
package daemonctl

import (
	"errors"
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/sevlyar/go-daemon"
)

// Context builds the daemon.Context for the given process name (e.g.
// "clocksync-masterd", "clocksync-saved").
func Context(name string) *daemon.Context {
	return &daemon.Context{
		PidFileName: fmt.Sprintf("/var/run/%s.pid", name),
		PidFilePerm: 0644,
		LogFileName: fmt.Sprintf("/var/log/%s.log", name),
		LogFilePerm: 0640,
		WorkDir:     "./",
		Umask:       027,
		Args:        append([]string{name}, os.Args[1:]...),
	}
}

// Reborn forks into the background unless noDaemon is set, in which
// case it returns (nil, nil) and the caller runs in the foreground.
//
// When invoked a second time against an already-running daemon (the
// go-daemon child-detection idiom), it kills the running instance and
// returns ErrStopped instead of starting a new one.
var ErrStopped = errors.New("daemonctl: stopped the running daemon instead of starting a new one")

func Reborn(ctx *daemon.Context, noDaemon bool) (*os.Process, error) {
	if noDaemon {
		return nil, nil
	}

	child, err := ctx.Reborn()
	if err != nil {
		if errors.Is(err, daemon.ErrWouldBlock) {
			if killErr := Kill(ctx); killErr != nil {
				return nil, killErr
			}
			return nil, ErrStopped
		}
		return nil, fmt.Errorf("daemonctl: reborn failed: %w", err)
	}
	return child, nil
}

// Kill sends SIGTERM to the running daemon found via ctx's PID file.
func Kill(ctx *daemon.Context) error {
	proc, err := ctx.Search()
	if err != nil {
		return fmt.Errorf("daemonctl: could not find running daemon: %w", err)
	}
	if err := syscall.Kill(proc.Pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("daemonctl: could not signal daemon: %w", err)
	}
	return nil
}

// MustLogStart writes the conventional daemon-started banner line to
// the standard logger, matching what ends up in the daemon's log file.
func MustLogStart(name string) {
	log.Print("- - - - - - - - - - - - - - -")
	log.Print(name, " daemon started: ", os.Args)
}
