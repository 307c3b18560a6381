package ws

import (
	"encoding/json"
	"errors"
	"strings"
)

// Action names the client command.
type Action string

const (
	ActionStartDownload Action = "start_download"
	ActionStopDownload  Action = "stop_download"
)

// Command is one inbound client frame. Filename and IsLive are accepted for
// compatibility with the web frontend and otherwise ignored.
type Command struct {
	Action   Action `json:"action"`
	URL      string `json:"url,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Filename string `json:"filename,omitempty"`
	IsLive   *bool  `json:"is_live,omitempty"`
}

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownAction    = errors.New("unknown action")
)

// DecodeCommand parses a frame. Errors are ErrMalformedCommand or
// ErrUnknownAction and are reported to the client verbatim.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, ErrMalformedCommand
	}
	switch cmd.Action {
	case ActionStartDownload:
		cmd.URL = strings.TrimSpace(cmd.URL)
		if cmd.URL == "" {
			return Command{}, ErrMalformedCommand
		}
	case ActionStopDownload:
	case "":
		return Command{}, ErrMalformedCommand
	default:
		return cmd, ErrUnknownAction
	}
	return cmd, nil
}

// metricLabel bounds the action label set.
func metricLabel(cmd Command, err error) string {
	switch {
	case errors.Is(err, ErrMalformedCommand):
		return "malformed"
	case errors.Is(err, ErrUnknownAction):
		return "unknown"
	default:
		return string(cmd.Action)
	}
}
