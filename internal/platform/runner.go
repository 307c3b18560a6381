package platform

import (
	"context"
	"os/exec"
	"strings"
)

// Runner executes host commands. Actions uses the real one; tests record.
type Runner interface {
	Launch(name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
	LookPath(name string) (string, error)
}

type execRunner struct{}

// Launch starts name and returns once it is running. Some file managers stay
// in the foreground while their window is open, so the process is reaped in
// the background and never tied to a request context.
func (execRunner) Launch(name string, args ...string) error {
	// #nosec G204 -- fixed helper binaries; args are paths
	cmd := exec.Command(name, args...)
	hideWindow(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (execRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	// #nosec G204 -- fixed helper binaries
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	out, err := cmd.Output()
	return strings.TrimSpace(string(out)), err
}

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
