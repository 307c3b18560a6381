package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/amilaanjanab/voidstream/internal/client"
	"github.com/amilaanjanab/voidstream/internal/log"
	"github.com/amilaanjanab/voidstream/internal/tui"
)

type options struct {
	wsURL    string
	token    string
	clientID string
	logFile  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "voidstream-tui",
		Short:         "Terminal client for a voidstream server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			closeLog, err := configureLog(opts.logFile)
			if err != nil {
				return err
			}
			defer closeLog()

			endpoint, err := sessionURL(opts.wsURL, opts.clientID)
			if err != nil {
				return err
			}
			ws := client.NewWSClient(endpoint, opts.token)
			defer ws.Close()
			httpClient := client.NewHTTPClient(deriveHTTPBase(opts.wsURL), opts.token)

			p := tea.NewProgram(tui.New(ws, httpClient), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.wsURL, "url", "ws://127.0.0.1:8000/ws", "WebSocket URL of the voidstream server")
	f.StringVar(&opts.token, "token", "", "auth token (if the server requires it)")
	f.StringVar(&opts.clientID, "client-id", "", "session id to use (default: random)")
	f.StringVar(&opts.logFile, "log-file", "", "write client logs to this file")
	return cmd
}

// configureLog keeps log output off the terminal the TUI draws on.
func configureLog(path string) (func(), error) {
	if path == "" {
		log.Configure(log.Config{Output: io.Discard, Service: "voidstream-tui"})
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.Configure(log.Config{Output: f, Service: "voidstream-tui"})
	return func() { f.Close() }, nil
}

// sessionURL appends the client id to the /ws path so reconnects keep the
// same session.
func sessionURL(wsURL, clientID string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return u.JoinPath(clientID).String(), nil
}

// deriveHTTPBase converts ws://host:port/ws → http://host:port
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "http://127.0.0.1:8000"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
