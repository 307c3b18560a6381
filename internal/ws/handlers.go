package ws

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/httprate"

	"github.com/amilaanjanab/voidstream/internal/config"
	"github.com/amilaanjanab/voidstream/internal/settings"
)

const maxConfigBody = 16 * 1024

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}

// rateLimit limits the folder endpoints per client IP; each call spawns a
// host process.
func rateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.Window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
		}),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not read body")
		return
	}
	if len(body) > maxConfigBody {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "settings document too large")
		return
	}

	var p settings.Partial
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid settings document")
		return
	}
	if p.Quality != nil && *p.Quality != "" && *p.Quality != "best" && *p.Quality != "worst" {
		writeError(w, http.StatusBadRequest, "bad_request", `quality must be "best" or "worst"`)
		return
	}

	st, err := s.settings.Set(p)
	if err != nil {
		s.logger.Error().Err(err).Msg("saving settings")
		writeError(w, http.StatusInternalServerError, "internal", "could not save settings")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type folderResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// handleChangeFolder opens the host's folder picker. Any failure, including
// a cancelled dialog, reports the current folder unchanged.
func (s *Server) handleChangeFolder(w http.ResponseWriter, r *http.Request) {
	current := s.settings.Get().DownloadPath

	path, err := s.folders.PickFolder(r.Context(), current)
	if err != nil {
		s.logger.Warn().Err(err).Msg("error opening folder dialog")
	}
	if err != nil || path == "" {
		writeJSON(w, http.StatusOK, folderResponse{Status: "cancelled", Path: current})
		return
	}

	if _, err := s.settings.Set(settings.Partial{DownloadPath: &path}); err != nil {
		s.logger.Error().Err(err).Msg("saving picked folder")
		writeJSON(w, http.StatusOK, folderResponse{Status: "cancelled", Path: current})
		return
	}
	writeJSON(w, http.StatusOK, folderResponse{Status: "success", Path: path})
}

func (s *Server) handleOpenFolder(w http.ResponseWriter, r *http.Request) {
	path, err := s.folders.OpenFolder(r.Context(), s.settings.Get().DownloadPath)
	if err != nil && path == "" {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	// Reveal failures are fire-and-forget; the folder exists either way.
	writeJSON(w, http.StatusOK, folderResponse{Status: "opened", Path: path})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.Active())
}
