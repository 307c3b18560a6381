//go:build !unix && !windows

package procgroup

import (
	"os"
	"os/exec"
)

const (
	interruptSignal = "interrupt"
	killSignal      = "kill"
)

func set(cmd *exec.Cmd) {}

func interrupt(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessNotFound
	}
	return proc.Signal(os.Interrupt)
}

func kill(pid int) error {
	return KillTree(pid)
}
