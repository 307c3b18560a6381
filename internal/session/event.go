package session

// EventType tags the variant carried by an Event. The values double as the
// "type" field of the wire message.
type EventType string

const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventStatus   EventType = "status"
	EventFatal    EventType = "error"
)

// Status is the terminal state reported for a process run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Event is one item of relay output for a session. RunID identifies the
// process run that produced it so a connection can discard output from a
// run it has already stopped; zero means "not tied to a run".
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Raw     string    `json:"raw,omitempty"`
	Status  Status    `json:"status,omitempty"`
	Code    *int      `json:"code,omitempty"`
	RunID   uint64    `json:"-"`
}

func LogEvent(runID uint64, msg string) Event {
	return Event{Type: EventLog, Message: msg, RunID: runID}
}

func ProgressEvent(runID uint64, raw string) Event {
	return Event{Type: EventProgress, Raw: raw, RunID: runID}
}

func StatusEvent(runID uint64, status Status) Event {
	return Event{Type: EventStatus, Status: status, RunID: runID}
}

// FailedEvent is a failed status carrying the process exit code.
func FailedEvent(runID uint64, code int) Event {
	c := code
	return Event{Type: EventStatus, Status: StatusFailed, Code: &c, RunID: runID}
}

func FatalEvent(msg string) Event {
	return Event{Type: EventFatal, Message: msg}
}

// IsTerminal reports whether the event ends a run.
func (e Event) IsTerminal() bool {
	return e.Type == EventStatus
}
