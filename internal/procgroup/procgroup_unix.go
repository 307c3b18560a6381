//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

const (
	interruptSignal = "SIGTERM"
	killSignal      = "SIGKILL"
)

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func interrupt(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

func kill(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

// signalGroup signals the group led by pid. The downloader is started with
// Setpgid, so its pgid equals its pid; if the group is already gone the
// leader itself is tried once before reporting ErrProcessNotFound.
func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := syscall.Kill(-pid, sig)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
		if err == nil {
			return nil
		}
		if errors.Is(err, syscall.ESRCH) {
			return ErrProcessNotFound
		}
	}
	return err
}
