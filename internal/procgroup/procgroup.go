// Package procgroup starts download processes in their own process group
// and tears the whole group down again, so merge/encoder children spawned
// by the downloader never outlive it.
package procgroup

import (
	"errors"
	"os/exec"
	"time"

	"github.com/amilaanjanab/voidstream/internal/log"
	"github.com/amilaanjanab/voidstream/internal/metrics"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrKillFailed      = errors.New("kill operation failed")
)

// Set configures cmd to start as a process group leader (POSIX) or without
// a console window (Windows). Must be called before cmd.Start.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Interrupt asks the process tree rooted at pid to exit. On POSIX this is
// SIGTERM to the group; Windows has no graceful equivalent for console-less
// children, so the tree is killed outright.
func Interrupt(pid int) error {
	return interrupt(pid)
}

// Kill forcibly terminates the process tree rooted at pid.
func Kill(pid int) error {
	return kill(pid)
}

// Terminate interrupts the tree rooted at pid and waits for exited to be
// closed. If the process is still alive after grace it is killed, and
// ErrKillFailed is returned if it still has not exited after another grace
// period. exited is closed by whoever owns the process's Wait.
func Terminate(pid int, exited <-chan struct{}, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	logger := log.WithComponent("procgroup")

	err := Interrupt(pid)
	record(interruptSignal, err)
	if errors.Is(err, ErrProcessNotFound) {
		return nil
	}
	if err != nil {
		logger.Warn().Err(err).Int("pid", pid).Msg("interrupt failed, escalating")
	}

	select {
	case <-exited:
		return nil
	case <-time.After(grace):
	}

	logger.Warn().Int("pid", pid).Dur("grace", grace).Msg("grace period exceeded, killing process group")
	err = Kill(pid)
	record(killSignal, err)
	if errors.Is(err, ErrProcessNotFound) {
		return nil
	}

	select {
	case <-exited:
		return nil
	case <-time.After(grace):
		return ErrKillFailed
	}
}

func record(signal string, err error) {
	switch {
	case err == nil:
		metrics.IncTerminate(signal, "sent")
	case errors.Is(err, ErrProcessNotFound):
		metrics.IncTerminate(signal, "esrch")
	default:
		metrics.IncTerminate(signal, "error")
	}
}
