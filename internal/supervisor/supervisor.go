// Package supervisor starts external download processes for sessions,
// relays their output as events, and terminates them on request.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/amilaanjanab/voidstream/internal/config"
	"github.com/amilaanjanab/voidstream/internal/log"
	"github.com/amilaanjanab/voidstream/internal/metrics"
	"github.com/amilaanjanab/voidstream/internal/procgroup"
	"github.com/amilaanjanab/voidstream/internal/session"
)

// Registry is the session registry specialised to process handles.
type Registry = session.Registry[*Handle]

func NewRegistry() *Registry {
	return session.NewRegistry[*Handle]()
}

// SpawnError reports that the download process could not be started. No
// handle was registered.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return e.Err.Error()
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

type Supervisor struct {
	downloader config.DownloaderConfig
	killGrace  time.Duration
	tailLines  int

	registry *Registry
	logger   zerolog.Logger
	now      func() time.Time

	// terminateGroup signals a process group; swapped in tests.
	terminateGroup func(pid int, exited <-chan struct{}, grace time.Duration) error

	startMu sync.Mutex
	runSeq  atomic.Uint64
	wg      sync.WaitGroup

	// mu orders registry removals by Stop against the Start checks, so a
	// stopped process stays visible in draining until it has exited.
	mu       sync.Mutex
	draining map[string]*Handle
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithClock overrides the clock used for output filename timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

func New(cfg *config.Config, registry *Registry, opts ...Option) *Supervisor {
	s := &Supervisor{
		downloader: cfg.Downloader,
		killGrace:  cfg.Supervisor.KillGrace,
		tailLines:  cfg.Supervisor.TailLines,
		registry:   registry,
		logger:     log.WithComponent("supervisor"),
		now:        time.Now,
		draining:   make(map[string]*Handle),

		terminateGroup: procgroup.Terminate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns the downloader for sessionID and starts relaying its output
// into sink. It returns session.ErrAlreadyRunning if the session already
// has a process and a *SpawnError if the process could not be started.
// A process that was stopped but has not exited yet is waited for, bounded
// by ctx, so one session never has two live processes.
func (s *Supervisor) Start(ctx context.Context, sessionID string, req Request, sink Sink) (*Handle, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.startMu.Lock()
		prev, running := s.claim(sessionID)
		if running {
			s.startMu.Unlock()
			metrics.IncStart("already_running")
			return nil, session.ErrAlreadyRunning
		}
		if prev == nil {
			break
		}
		s.startMu.Unlock()

		s.logger.Debug().Str("session_id", sessionID).Uint64("run_id", prev.RunID).Msg("waiting for stopped run to exit")
		select {
		case <-prev.exited:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer s.startMu.Unlock()

	argv := BuildArgs(s.downloader, req, s.now())
	logger := s.logger.With().Str("session_id", sessionID).Logger()
	logger.Info().Strs("argv", argv).Msg("executing downloader")

	// #nosec G301 -- download folders are user-visible
	if err := os.MkdirAll(req.DownloadPath, 0o755); err != nil {
		metrics.IncStart("spawn_error")
		return nil, &SpawnError{Err: fmt.Errorf("creating download directory: %w", err)}
	}

	// #nosec G204 -- argv comes from server config plus the requested URL as a single argument
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		metrics.IncStart("spawn_error")
		return nil, &SpawnError{Err: err}
	}
	cmd.Stderr = cmd.Stdout
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		metrics.IncStart("spawn_error")
		logger.Error().Err(err).Msg("could not start subprocess")
		return nil, &SpawnError{Err: err}
	}

	h := &Handle{
		SessionID: sessionID,
		RunID:     s.runSeq.Add(1),
		PID:       cmd.Process.Pid,
		URL:       req.URL,
		StartedAt: s.now(),
		cmd:       cmd,
		stdout:    stdout,
		exited:    make(chan struct{}),
		tail:      NewLineRing(s.tailLines),
		sink:      sink,
	}
	if err := s.registry.Register(sessionID, h); err != nil {
		// Registered behind our back; do not leave an unowned process.
		_ = procgroup.Kill(h.PID)
		_ = cmd.Wait()
		metrics.IncStart("already_running")
		return nil, err
	}

	metrics.IncStart("ok")
	metrics.ActiveProcesses.Inc()
	logger.Info().Uint64("run_id", h.RunID).Int("pid", h.PID).Msg("download started")

	s.wg.Add(1)
	go s.relay(h)
	return h, nil
}

// Stop terminates the process registered for sessionID. It returns the
// Status(stopped) event to deliver, or false if nothing was running.
// Termination runs in the background; failures are only logged.
func (s *Supervisor) Stop(sessionID string) (session.Event, bool) {
	s.mu.Lock()
	h, ok := s.registry.Take(sessionID)
	if ok {
		s.markDraining(h)
	}
	s.mu.Unlock()
	if !ok {
		return session.Event{}, false
	}
	return s.terminate(h), true
}

// StopRun is Stop restricted to one run: it does nothing unless the process
// registered for sessionID is still the one started as runID. Connections
// use it so a stale stop never kills a newer run under a shared id.
func (s *Supervisor) StopRun(sessionID string, runID uint64) (session.Event, bool) {
	if runID == 0 {
		return session.Event{}, false
	}
	s.mu.Lock()
	h, ok := s.registry.Lookup(sessionID)
	ok = ok && h.RunID == runID && s.registry.Remove(sessionID, h)
	if ok {
		s.markDraining(h)
	}
	s.mu.Unlock()
	if !ok {
		return session.Event{}, false
	}
	return s.terminate(h), true
}

// claim reports whether sessionID has a registered process, or else the
// stopped process it must wait for. Callers hold startMu.
func (s *Supervisor) claim(sessionID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registry.Lookup(sessionID); ok {
		return nil, true
	}
	prev, ok := s.draining[sessionID]
	if !ok {
		return nil, false
	}
	select {
	case <-prev.exited:
		delete(s.draining, sessionID)
		return nil, false
	default:
		return prev, false
	}
}

// markDraining records a handle taken out of the registry until its process
// exits. Callers hold mu.
func (s *Supervisor) markDraining(h *Handle) {
	select {
	case <-h.exited:
	default:
		s.draining[h.SessionID] = h
	}
}

// exitedRun clears h from draining once its process has been reaped.
func (s *Supervisor) exitedRun(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining[h.SessionID] == h {
		delete(s.draining, h.SessionID)
	}
}

func (s *Supervisor) terminate(h *Handle) session.Event {
	h.stopped.Store(true)
	metrics.IncExit("stopped")

	logger := s.logger.With().
		Str("session_id", h.SessionID).
		Uint64("run_id", h.RunID).
		Int("pid", h.PID).
		Logger()
	logger.Info().Msg("stopping download")

	// Once reaped, the pid may already belong to another process.
	select {
	case <-h.exited:
		logger.Debug().Msg("process already exited")
		return session.StatusEvent(h.RunID, session.StatusStopped)
	default:
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.terminateGroup(h.PID, h.exited, s.killGrace); err != nil {
			logger.Error().Err(err).Msg("error killing process")
		}
	}()

	return session.StatusEvent(h.RunID, session.StatusStopped)
}

// StopAll stops every registered process. Used on server shutdown.
func (s *Supervisor) StopAll() int {
	n := 0
	for _, id := range s.registry.IDs() {
		if _, ok := s.Stop(id); ok {
			n++
		}
	}
	return n
}

// Wait blocks until every relay and termination goroutine has finished or
// ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active lists the running processes ordered by session id.
func (s *Supervisor) Active() []Info {
	snap := s.registry.Snapshot()
	out := make([]Info, 0, len(snap))
	for id, h := range snap {
		out = append(out, Info{ID: id, PID: h.PID, URL: h.URL, StartedAt: h.StartedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func exitCode(err error) (int, bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}
