package supervisor

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/amilaanjanab/voidstream/internal/metrics"
	"github.com/amilaanjanab/voidstream/internal/procgroup"
	"github.com/amilaanjanab/voidstream/internal/session"
)

const maxLineSize = 1 << 20

// splitter is bufio.ScanLines that also ends a line at a bare '\r', which
// downloaders use to redraw progress in place. A '\n' directly after a '\r'
// is swallowed so "\r\n" yields one line.
type splitter struct {
	afterCR bool
}

func (s *splitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if s.afterCR && len(data) > 0 {
		s.afterCR = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		s.afterCR = data[i] == '\r'
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func isProgress(line string) bool {
	return strings.Contains(line, "[download]") && strings.Contains(line, "%")
}

// relay reads the combined output until EOF, then waits for the process and
// reports its final status unless Stop already consumed the handle.
func (s *Supervisor) relay(h *Handle) {
	defer s.wg.Done()
	logger := s.logger.With().
		Str("session_id", h.SessionID).
		Uint64("run_id", h.RunID).
		Int("pid", h.PID).
		Logger()

	sc := bufio.NewScanner(h.stdout)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	sp := &splitter{}
	sc.Split(sp.split)

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		metrics.RelayLinesTotal.Inc()
		h.tail.Add(line)
		h.sink.deliver(session.LogEvent(h.RunID, line))
		if isProgress(line) {
			h.sink.deliver(session.ProgressEvent(h.RunID, line))
		}
	}

	readErr := sc.Err()
	if readErr != nil {
		logger.Error().Err(readErr).Msg("stream reader failed")
		h.sink.deliver(session.LogEvent(h.RunID, "[ERROR] Stream reader: "+readErr.Error()))
		if err := procgroup.Kill(h.PID); err != nil {
			logger.Warn().Err(err).Msg("kill after read error")
		}
	}

	waitErr := h.cmd.Wait()
	close(h.exited)
	s.exitedRun(h)
	metrics.ActiveProcesses.Dec()

	if !s.registry.Remove(h.SessionID, h) {
		logger.Info().Msg("stopped run exited")
		return
	}

	code, ok := exitCode(waitErr)
	switch {
	case readErr != nil:
		metrics.IncExit("read_error")
		h.sink.deliver(session.StatusEvent(h.RunID, session.StatusFailed))
	case ok && code == 0:
		metrics.IncExit("completed")
		logger.Info().Msg("download completed")
		h.sink.deliver(session.StatusEvent(h.RunID, session.StatusCompleted))
	case ok:
		metrics.IncExit("failed")
		logger.Warn().Int("exit_code", code).Strs("tail", h.tail.LastN(s.tailLines)).Msg("download failed")
		h.sink.deliver(session.FailedEvent(h.RunID, code))
	default:
		metrics.IncExit("failed")
		logger.Error().Err(waitErr).Msg("waiting for process")
		h.sink.deliver(session.StatusEvent(h.RunID, session.StatusFailed))
	}
}
