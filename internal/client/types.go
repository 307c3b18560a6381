// Package client talks to a voidstream server: the WebSocket command channel
// and the HTTP settings and folder endpoints.
package client

import (
	"time"

	"github.com/amilaanjanab/voidstream/internal/session"
)

// command mirrors the inbound frame the server decodes.
type command struct {
	Action  string `json:"action"`
	URL     string `json:"url,omitempty"`
	Quality string `json:"quality,omitempty"`
}

const (
	actionStart = "start_download"
	actionStop  = "stop_download"
)

// --- Bubble Tea messages ---

// ConnectedMsg is sent when the WebSocket connects.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the connection drops.
type DisconnectedMsg struct{ Err error }

// EventMsg delivers one server event.
type EventMsg struct{ Event session.Event }

// FolderResult is the reply of the folder endpoints.
type FolderResult struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// ActiveSession is one entry of GET /api/sessions.
type ActiveSession struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"startedAt"`
}
