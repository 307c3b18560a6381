package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/amilaanjanab/voidstream/internal/log"
	"github.com/amilaanjanab/voidstream/internal/session"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// ErrNotConnected is returned by the send methods while no connection is up.
var ErrNotConnected = errors.New("not connected")

// WSClient manages the WebSocket connection to a voidstream server.
type WSClient struct {
	url    string
	token  string
	logger zerolog.Logger

	mu         sync.Mutex
	writeMu    sync.Mutex // serialises all conn writes (ping, commands)
	conn       *websocket.Conn
	pingCancel context.CancelFunc
}

// NewWSClient creates a client that connects to the given WebSocket URL.
func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token, logger: log.WithComponent("ws-client")}
}

// Listen returns a Bubble Tea command that connects, retrying with
// exponential backoff until it succeeds or ctx is cancelled.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			conn, err := c.dial(ctx)
			if err == nil {
				c.attach(ctx, conn)
				return ConnectedMsg{}
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Debug().Err(err).Dur("retry_in", delay).Msg("ws dial failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay = min(delay*2, reconnectMaxDelay)
		}
	}
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	var header http.Header
	if c.token != "" {
		header = http.Header{}
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (c *WSClient) attach(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	if c.pingCancel != nil {
		c.pingCancel()
	}
	pingCtx, cancel := context.WithCancel(ctx)
	c.conn = conn
	c.pingCancel = cancel
	c.mu.Unlock()

	go c.pingLoop(pingCtx, conn)
}

// ReadLoop returns a Bubble Tea command that reads the next event from the
// connection. It should be started after ConnectedMsg and re-issued after
// every EventMsg.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: ErrNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.drop(conn)
				if ctx.Err() != nil {
					return nil
				}
				return DisconnectedMsg{Err: err}
			}

			var ev session.Event
			if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
				continue
			}
			return EventMsg{Event: ev}
		}
	}
}

func (c *WSClient) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if c.pingCancel != nil {
			c.pingCancel()
			c.pingCancel = nil
		}
	}
	c.mu.Unlock()
	conn.Close()
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// StartDownload asks the server to start capturing url. An empty quality
// lets the server use its configured default.
func (c *WSClient) StartDownload(url, quality string) error {
	return c.send(command{Action: actionStart, URL: url, Quality: quality})
}

// StopDownload asks the server to stop the running download, if any.
func (c *WSClient) StopDownload() error {
	return c.send(command{Action: actionStop})
}

func (c *WSClient) send(cmd command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(cmd)
}

// Close tears down the current connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.drop(conn)
	}
}
