//go:build windows

package procgroup

import (
	"errors"
	"os/exec"
	"strconv"
	"syscall"
)

const (
	interruptSignal = "tree_kill"
	killSignal      = "tree_kill"

	createNoWindow = 0x08000000
)

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
	cmd.SysProcAttr.CreationFlags |= createNoWindow
}

func interrupt(pid int) error {
	return kill(pid)
}

// kill walks the tree with gopsutil and falls back to taskkill /T when the
// process table cannot be read.
func kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := KillTree(pid)
	if err == nil || errors.Is(err, ErrProcessNotFound) {
		return err
	}
	tk := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid))
	tk.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: createNoWindow}
	if tkErr := tk.Run(); tkErr != nil {
		return errors.Join(err, tkErr)
	}
	return nil
}
