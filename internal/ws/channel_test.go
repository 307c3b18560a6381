//go:build unix

package ws

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amilaanjanab/voidstream/internal/config"
	"github.com/amilaanjanab/voidstream/internal/session"
	"github.com/amilaanjanab/voidstream/internal/settings"
	"github.com/amilaanjanab/voidstream/internal/supervisor"
)

type fixture struct {
	ts          *httptest.Server
	sup         *supervisor.Supervisor
	reg         *supervisor.Registry
	store       *settings.Store
	downloadDir string
}

// newFixture serves the real supervisor with script standing in for the
// downloader.
func newFixture(t *testing.T, script string, mergeTool bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Downloader.Command = []string{"sh", "-c", script, "sh"}
	cfg.Supervisor.KillGrace = 500 * time.Millisecond
	cfg.Channel.PingInterval = time.Second
	cfg.Channel.PongTimeout = 5 * time.Second

	store := settings.NewStore(filepath.Join(dir, "config.json"))
	downloadDir := filepath.Join(dir, "not", "yet", "created")
	_, err := store.Set(settings.Partial{DownloadPath: &downloadDir})
	require.NoError(t, err)

	reg := supervisor.NewRegistry()
	sup := supervisor.New(cfg, reg)
	srv := NewServer(cfg, sup, store, fakeCapability(mergeTool), &fakeFolders{})
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		sup.StopAll()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Wait(ctx)
	})
	return &fixture{ts: ts, sup: sup, reg: reg, store: store, downloadDir: downloadDir}
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dialReady connects and consumes the two greeting lines.
func (f *fixture) dialReady(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn := f.dial(t, path)
	read(t, conn)
	read(t, conn)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) session.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev session.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func readUntil(t *testing.T, conn *websocket.Conn, stop func(session.Event) bool) []session.Event {
	t.Helper()
	var out []session.Event
	for {
		ev := read(t, conn)
		out = append(out, ev)
		if stop(ev) {
			return out
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func startCmd(url string) map[string]any {
	return map[string]any{"action": "start_download", "url": url}
}

var stopCmd = map[string]any{"action": "stop_download"}

func TestGreeting(t *testing.T) {
	tests := []struct {
		name      string
		mergeTool bool
		second    string
	}{
		{"merge tool present", true, msgMergeOK},
		{"merge tool missing", false, msgMergeAbsent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "exit 0", tt.mergeTool)
			conn := f.dial(t, "/ws/c1")
			assert.Equal(t, session.LogEvent(0, msgWelcome), read(t, conn))
			assert.Equal(t, session.LogEvent(0, tt.second), read(t, conn))
		})
	}
}

func TestDownloadStreamsAndCompletes(t *testing.T) {
	f := newFixture(t, `echo "Extracting URL: $1"; printf '[download]  10.0%% of 5MiB\r[download] 100%% of 5MiB\n'; exit 0`, true)
	conn := f.dialReady(t, "/ws/c1")

	send(t, conn, startCmd("https://example/video"))
	got := readUntil(t, conn, session.Event.IsTerminal)

	want := []session.Event{
		session.LogEvent(0, msgInit),
		session.LogEvent(0, "Extracting URL: https://example/video"),
		session.LogEvent(0, "[download]  10.0% of 5MiB"),
		session.ProgressEvent(0, "[download]  10.0% of 5MiB"),
		session.LogEvent(0, "[download] 100% of 5MiB"),
		session.ProgressEvent(0, "[download] 100% of 5MiB"),
		session.StatusEvent(0, session.StatusCompleted),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	assert.DirExists(t, f.downloadDir)
	assert.Eventually(t, func() bool { return f.reg.Len() == 0 }, 2*time.Second, 20*time.Millisecond)

	// Back in Idle: a second download is accepted.
	send(t, conn, startCmd("https://example/other"))
	got = readUntil(t, conn, session.Event.IsTerminal)
	assert.Equal(t, session.StatusCompleted, got[len(got)-1].Status)
}

func TestFailedDownloadCarriesExitCode(t *testing.T) {
	f := newFixture(t, `echo "ERROR: Unsupported URL"; exit 2`, true)
	conn := f.dialReady(t, "/ws/c1")

	send(t, conn, startCmd("https://example/video"))
	got := readUntil(t, conn, session.Event.IsTerminal)

	last := got[len(got)-1]
	assert.Equal(t, session.StatusFailed, last.Status)
	require.NotNil(t, last.Code)
	assert.Equal(t, 2, *last.Code)
}

func TestOmittedQualityAddsNoSelector(t *testing.T) {
	f := newFixture(t, `echo "$@"`, true)
	worst := "worst"
	_, err := f.store.Set(settings.Partial{Quality: &worst})
	require.NoError(t, err)
	conn := f.dialReady(t, "/ws/c1")

	send(t, conn, startCmd("https://example/video"))
	got := readUntil(t, conn, session.Event.IsTerminal)
	require.Len(t, got, 3)
	assert.NotContains(t, got[1].Message, "-f worst")
	assert.True(t, strings.HasSuffix(got[1].Message, "--restrict-filenames"), got[1].Message)

	send(t, conn, map[string]any{"action": "start_download", "url": "u", "quality": "worst"})
	got = readUntil(t, conn, session.Event.IsTerminal)
	require.Len(t, got, 3)
	assert.True(t, strings.HasSuffix(got[1].Message, "-f worst"), got[1].Message)
}

func TestStopDuringDownload(t *testing.T) {
	f := newFixture(t, `echo started; sleep 30`, true)
	conn := f.dialReady(t, "/ws/c1")

	send(t, conn, startCmd("https://example/live"))
	readUntil(t, conn, func(ev session.Event) bool { return ev.Message == "started" })

	send(t, conn, stopCmd)
	got := readUntil(t, conn, func(ev session.Event) bool { return ev.Message == msgTerminated })

	var statuses []session.Status
	for _, ev := range got {
		if ev.IsTerminal() {
			statuses = append(statuses, ev.Status)
		}
	}
	assert.Equal(t, []session.Status{session.StatusStopped}, statuses)
	assert.Equal(t, session.StatusEvent(0, session.StatusStopped), got[len(got)-2])
	assert.Equal(t, 0, f.reg.Len())

	// Nothing from the killed run arrives before the next reply.
	send(t, conn, map[string]any{"action": "bogus"})
	assert.Equal(t, session.FatalEvent(ErrUnknownAction.Error()), read(t, conn))
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	f := newFixture(t, `exit 0`, true)
	conn := f.dialReady(t, "/ws/c1")

	send(t, conn, stopCmd)
	send(t, conn, stopCmd)
	send(t, conn, "not a command")
	assert.Equal(t, session.FatalEvent(ErrMalformedCommand.Error()), read(t, conn))
}

func TestSecondStartRejected(t *testing.T) {
	f := newFixture(t, `sleep 30`, true)
	conn := f.dialReady(t, "/ws/c1")

	send(t, conn, startCmd("https://example/one"))
	assert.Equal(t, session.LogEvent(0, msgInit), read(t, conn))
	require.Eventually(t, func() bool { return f.reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	first := f.sup.Active()[0].PID

	for i := 0; i < 3; i++ {
		send(t, conn, startCmd("https://example/two"))
		assert.Equal(t, session.FatalEvent("download already running"), read(t, conn))
	}
	require.Len(t, f.sup.Active(), 1)
	assert.Equal(t, first, f.sup.Active()[0].PID)
}

func TestSharedIDRejectedAcrossConnections(t *testing.T) {
	f := newFixture(t, `sleep 30`, true)
	a := f.dialReady(t, "/ws/shared")
	b := f.dialReady(t, "/ws/shared")

	send(t, a, startCmd("https://example/one"))
	assert.Equal(t, session.LogEvent(0, msgInit), read(t, a))
	require.Eventually(t, func() bool { return f.reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	send(t, b, startCmd("https://example/two"))
	assert.Equal(t, session.LogEvent(0, msgInit), read(t, b))
	assert.Equal(t, session.FatalEvent("download already running"), read(t, b))

	// b owns nothing, so its stop leaves a's download alone.
	send(t, b, stopCmd)
	send(t, b, "x")
	assert.Equal(t, session.FatalEvent(ErrMalformedCommand.Error()), read(t, b))
	assert.Equal(t, 1, f.reg.Len())
}

func TestDisconnectTerminatesProcess(t *testing.T) {
	f := newFixture(t, `echo started; sleep 30`, true)
	conn := f.dialReady(t, "/ws/c1")

	send(t, conn, startCmd("https://example/live"))
	readUntil(t, conn, func(ev session.Event) bool { return ev.Message == "started" })
	active := f.sup.Active()
	require.Len(t, active, 1)
	pid := active[0].PID

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return f.reg.Len() == 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		return syscall.Kill(pid, 0) != nil
	}, 3*time.Second, 20*time.Millisecond, "process %d survived disconnect", pid)
}

func TestSpawnFailureStaysIdle(t *testing.T) {
	f := newFixture(t, `exit 0`, true)
	// Point the downloader at a file that is not executable.
	bogus := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(bogus, []byte("not a program"), 0o644))
	cfg := config.Default()
	cfg.Downloader.Command = []string{bogus}
	sup := supervisor.New(cfg, f.reg)
	srv := NewServer(cfg, sup, f.store, fakeCapability(true), &fakeFolders{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()
	f.ts = ts

	conn := f.dialReady(t, "/ws/c1")
	for i := 0; i < 2; i++ {
		send(t, conn, startCmd("https://example/video"))
		assert.Equal(t, session.LogEvent(0, msgInit), read(t, conn))
		fatal := read(t, conn)
		assert.Equal(t, session.EventFatal, fatal.Type)
		assert.True(t, strings.HasPrefix(fatal.Message, fatalPrefix), fatal.Message)
		assert.Equal(t, session.StatusEvent(0, session.StatusFailed), read(t, conn))
	}
	assert.Equal(t, 0, f.reg.Len())
}

func TestGeneratedClientID(t *testing.T) {
	f := newFixture(t, `exit 0`, true)
	conn := f.dial(t, "/ws")
	assert.Equal(t, session.LogEvent(0, msgWelcome), read(t, conn))
}

func TestServerCloseEndsChannels(t *testing.T) {
	f := newFixture(t, `echo started; sleep 30`, true)
	cfg := config.Default()
	srv := NewServer(cfg, f.sup, f.store, fakeCapability(true), &fakeFolders{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	f.ts = ts

	conn := f.dialReady(t, "/ws/c1")
	send(t, conn, startCmd("https://example/live"))
	readUntil(t, conn, func(ev session.Event) bool { return ev.Message == "started" })

	done := make(chan struct{})
	go func() {
		srv.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, 0, f.reg.Len())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
