package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/amilaanjanab/voidstream/internal/config"
	"github.com/amilaanjanab/voidstream/internal/metrics"
	"github.com/amilaanjanab/voidstream/internal/session"
	"github.com/amilaanjanab/voidstream/internal/settings"
	"github.com/amilaanjanab/voidstream/internal/supervisor"
)

const (
	msgWelcome     = "[SYSTEM] Uplink established. Ready for input."
	msgMergeOK     = "[SYSTEM] FFmpeg detected. Audio/Video merging enabled."
	msgMergeAbsent = "[WARN] FFmpeg binaries not detected in PATH. Merging may fail."
	msgInit        = "[CMD] Initializing capture sequence..."
	msgTerminated  = "[SYSTEM] Sequence terminated by user."
	fatalPrefix    = "[FATAL] Startup failed: "

	maxMessageSize = 64 * 1024
)

// Launcher is the part of the supervisor a channel drives.
type Launcher interface {
	Start(ctx context.Context, sessionID string, req supervisor.Request, sink supervisor.Sink) (*supervisor.Handle, error)
	StopRun(sessionID string, runID uint64) (session.Event, bool)
}

// SettingsReader supplies the download folder.
type SettingsReader interface {
	Get() settings.Settings
}

// Capability reports whether the merge tool is installed.
type Capability interface {
	HasMergeTool() bool
}

// Channel is the duplex loop for one client connection. A reader goroutine
// feeds decoded frames in; everything else, including every write, happens
// on the goroutine running Serve.
type Channel struct {
	id       string
	conn     *websocket.Conn
	launcher Launcher
	settings SettingsReader
	caps     Capability
	cfg      config.ChannelConfig
	logger   zerolog.Logger

	events chan session.Event
	done   chan struct{}

	state session.State
	runID uint64
}

func NewChannel(id string, conn *websocket.Conn, launcher Launcher, st SettingsReader, caps Capability, cfg config.ChannelConfig, eventBuffer int, logger zerolog.Logger) *Channel {
	if eventBuffer < 1 {
		eventBuffer = 1
	}
	return &Channel{
		id:       id,
		conn:     conn,
		launcher: launcher,
		settings: st,
		caps:     caps,
		cfg:      cfg,
		logger:   logger.With().Str("session_id", id).Logger(),
		events:   make(chan session.Event, eventBuffer),
		done:     make(chan struct{}),
		state:    session.Connected,
	}
}

// Serve runs the loop until the connection fails or ctx is cancelled, then
// stops this connection's download, if any, and closes the socket.
func (c *Channel) Serve(ctx context.Context) {
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		c.readPump(frames, readErr)
	}()

	defer func() {
		c.state = session.Closing
		if _, ok := c.launcher.StopRun(c.id, c.runID); ok {
			c.logger.Info().Uint64("run_id", c.runID).Msg("connection closed, download terminated")
		}
		close(c.done)
		_ = c.conn.Close()
		<-readerDone
	}()

	if err := c.greet(); err != nil {
		c.logger.Debug().Err(err).Msg("greeting failed")
		return
	}

	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		case err = <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("connection read failed")
			} else {
				c.logger.Debug().Err(err).Msg("client disconnected")
			}
			return
		case data := <-frames:
			err = c.handleFrame(ctx, data)
		case ev := <-c.events:
			err = c.handleEvent(ev)
		case <-ping.C:
			err = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
		}
		if err != nil {
			c.logger.Debug().Err(err).Msg("write failed, closing connection")
			return
		}
	}
}

func (c *Channel) readPump(frames chan<- []byte, readErr chan<- error) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		select {
		case frames <- data:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) greet() error {
	if err := c.write(session.LogEvent(0, msgWelcome)); err != nil {
		return err
	}
	msg := msgMergeAbsent
	if c.caps.HasMergeTool() {
		msg = msgMergeOK
	}
	if err := c.write(session.LogEvent(0, msg)); err != nil {
		return err
	}
	c.state = session.Idle
	return nil
}

func (c *Channel) handleFrame(ctx context.Context, data []byte) error {
	cmd, err := DecodeCommand(data)
	metrics.IncCommand(metricLabel(cmd, err))
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("rejected client command")
		return c.write(session.FatalEvent(err.Error()))
	}

	switch cmd.Action {
	case ActionStartDownload:
		return c.start(ctx, cmd)
	case ActionStopDownload:
		return c.stop()
	}
	return nil
}

func (c *Channel) start(ctx context.Context, cmd Command) error {
	if !c.state.CanStart() {
		return c.write(session.FatalEvent(session.ErrAlreadyRunning.Error()))
	}

	quality := cmd.Quality
	if quality == "" {
		quality = supervisor.QualityBest
	}

	if err := c.write(session.LogEvent(0, msgInit)); err != nil {
		return err
	}

	req := supervisor.Request{URL: cmd.URL, Quality: quality, DownloadPath: c.settings.Get().DownloadPath}
	h, err := c.launcher.Start(ctx, c.id, req, supervisor.Sink{Events: c.events, Done: c.done})
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		return c.write(session.FatalEvent(err.Error()))
	case err != nil:
		c.logger.Error().Err(err).Str("url", cmd.URL).Msg("could not start subprocess")
		if werr := c.write(session.FatalEvent(fatalPrefix + err.Error())); werr != nil {
			return werr
		}
		return c.write(session.StatusEvent(0, session.StatusFailed))
	}

	c.runID = h.RunID
	c.state = session.DownloadActive
	return nil
}

// stop cancels the current run. Output of that run already queued is sent
// before the stopped status.
func (c *Channel) stop() error {
	ev, ok := c.launcher.StopRun(c.id, c.runID)
	if !ok {
		return nil
	}
	if err := c.flush(); err != nil {
		return err
	}
	c.runID = 0
	c.state = session.Idle
	if err := c.write(ev); err != nil {
		return err
	}
	return c.write(session.LogEvent(0, msgTerminated))
}

func (c *Channel) flush() error {
	for {
		select {
		case ev := <-c.events:
			if err := c.handleEvent(ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// handleEvent forwards relay output of the current run and drops anything
// left over from earlier runs.
func (c *Channel) handleEvent(ev session.Event) error {
	if c.runID == 0 || ev.RunID != c.runID {
		return nil
	}
	if ev.IsTerminal() {
		c.runID = 0
		c.state = session.Idle
	}
	return c.write(ev)
}

func (c *Channel) write(ev session.Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(ev)
}
