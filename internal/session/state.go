package session

import (
	"encoding/json"
)

// State is the lifecycle position of one client connection.
type State int

const (
	Connected State = iota
	Idle
	DownloadActive
	Closing
)

var stateNames = map[State]string{
	Connected:      "connected",
	Idle:           "idle",
	DownloadActive: "download_active",
	Closing:        "closing",
}

var stateFromName = map[string]State{
	"connected":       Connected,
	"idle":            Idle,
	"download_active": DownloadActive,
	"closing":         Closing,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := stateFromName[name]; ok {
		*s = v
	}
	return nil
}

// CanStart reports whether a start command is accepted in this state.
func (s State) CanStart() bool {
	return s == Idle
}
