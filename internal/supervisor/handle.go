package supervisor

import (
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/amilaanjanab/voidstream/internal/session"
)

// Sink is where a run's events go. Events is the connection's bounded event
// channel; Done is closed when the connection is torn down, after which
// sends are dropped instead of blocking the relay.
type Sink struct {
	Events chan<- session.Event
	Done   <-chan struct{}
}

func (s Sink) deliver(ev session.Event) bool {
	select {
	case s.Events <- ev:
		return true
	case <-s.Done:
		return false
	}
}

// Handle is one running download process. It is owned by the registry
// entry for its session; Stop consumes it with Take and the relay releases
// it with Remove, so only one of them reports the run's final status.
type Handle struct {
	SessionID string
	RunID     uint64
	PID       int
	URL       string
	StartedAt time.Time

	cmd     *exec.Cmd
	stdout  io.ReadCloser
	exited  chan struct{}
	stopped atomic.Bool
	tail    *LineRing
	sink    Sink
}

// Exited is closed once the process has been waited for.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// Stopped reports whether the run was cancelled through Stop.
func (h *Handle) Stopped() bool {
	return h.stopped.Load()
}

// Info is the listing view of a handle.
type Info struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"startedAt"`
}
