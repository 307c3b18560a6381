package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/amilaanjanab/voidstream/internal/log"
)

const (
	OSDarwin  = "darwin"
	OSWindows = "windows"
	OSLinux   = "linux"
)

const (
	OpenCommand     = "open"
	ExplorerCommand = "explorer"
	XDGOpenCommand  = "xdg-open"
)

var LinuxFileManagers = []string{"nautilus", "dolphin", "thunar", "nemo", "pcmanfm"}

const pickerTitle = "Select download folder"

var (
	ErrNoFileManager = errors.New("no suitable file manager found")
	ErrNoPicker      = errors.New("no folder picker available")
	ErrUnsupportedOS = errors.New("unsupported operating system")
)

// Actions runs the folder helpers for one operating system.
type Actions struct {
	runner Runner
	goos   string
	logger zerolog.Logger
}

func New() *Actions {
	return NewWithRunner(execRunner{}, runtime.GOOS)
}

func NewWithRunner(r Runner, goos string) *Actions {
	return &Actions{runner: r, goos: goos, logger: log.WithComponent("platform")}
}

// OpenFolder creates path if needed and opens it in the host file manager.
// It returns the absolute path that was opened.
func (a *Actions) OpenFolder(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("creating folder: %w", err)
	}

	switch a.goos {
	case OSDarwin:
		err = a.runner.Launch(OpenCommand, abs)
	case OSWindows:
		err = a.runner.Launch(ExplorerCommand, abs)
	case OSLinux, "freebsd", "openbsd", "netbsd":
		err = a.openLinux(abs)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedOS, a.goos)
	}
	if err != nil {
		a.logger.Warn().Err(err).Str("path", abs).Msg("open folder failed")
		return abs, err
	}
	return abs, nil
}

func (a *Actions) openLinux(dir string) error {
	if err := a.runner.Launch(XDGOpenCommand, dir); err == nil {
		return nil
	}
	for _, fm := range LinuxFileManagers {
		if _, err := a.runner.LookPath(fm); err == nil {
			return a.runner.Launch(fm, dir)
		}
	}
	return ErrNoFileManager
}

// PickFolder shows the native directory chooser starting at initial. It
// returns "" with a nil error when the user cancels.
func (a *Actions) PickFolder(ctx context.Context, initial string) (string, error) {
	switch a.goos {
	case OSDarwin:
		script := fmt.Sprintf(`POSIX path of (choose folder with prompt %q)`, pickerTitle)
		return a.pick(ctx, "osascript", "-e", script)
	case OSWindows:
		script := "Add-Type -AssemblyName System.Windows.Forms; " +
			"$d = New-Object System.Windows.Forms.FolderBrowserDialog; " +
			"$d.Description = '" + pickerTitle + "'; " +
			"if ($d.ShowDialog() -eq 'OK') { $d.SelectedPath }"
		return a.pick(ctx, "powershell", "-NoProfile", "-STA", "-Command", script)
	case OSLinux, "freebsd", "openbsd", "netbsd":
		if _, err := a.runner.LookPath("zenity"); err == nil {
			args := []string{"--file-selection", "--directory", "--title=" + pickerTitle}
			if initial != "" {
				args = append(args, "--filename="+withTrailingSep(initial))
			}
			return a.pick(ctx, "zenity", args...)
		}
		if _, err := a.runner.LookPath("kdialog"); err == nil {
			return a.pick(ctx, "kdialog", "--getexistingdirectory", initial, "--title", pickerTitle)
		}
		return "", ErrNoPicker
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOS, a.goos)
	}
}

// pick runs a dialog and maps a non-zero exit (the dialogs' cancel) to an
// empty selection.
func (a *Actions) pick(ctx context.Context, name string, args ...string) (string, error) {
	out, err := a.runner.Output(ctx, name, args...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", nil
		}
		return "", fmt.Errorf("running %s: %w", name, err)
	}
	return out, nil
}

func withTrailingSep(p string) string {
	if p == "" || os.IsPathSeparator(p[len(p)-1]) {
		return p
	}
	return p + string(os.PathSeparator)
}
