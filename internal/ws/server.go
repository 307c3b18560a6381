package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/amilaanjanab/voidstream/internal/config"
	"github.com/amilaanjanab/voidstream/internal/log"
	"github.com/amilaanjanab/voidstream/internal/metrics"
	"github.com/amilaanjanab/voidstream/internal/settings"
	"github.com/amilaanjanab/voidstream/internal/supervisor"
)

// Supervisor is what the server needs from the process supervisor.
type Supervisor interface {
	Launcher
	Active() []supervisor.Info
}

// SettingsStore reads and updates the settings document.
type SettingsStore interface {
	SettingsReader
	Set(p settings.Partial) (settings.Settings, error)
}

// FolderActions are the host dialogs behind the folder endpoints.
type FolderActions interface {
	OpenFolder(ctx context.Context, path string) (string, error)
	PickFolder(ctx context.Context, initial string) (string, error)
}

type Server struct {
	cfg      *config.Config
	sup      Supervisor
	settings SettingsStore
	caps     Capability
	folders  FolderActions
	logger   zerolog.Logger

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string

	// base is cancelled by Close to end every open channel.
	base   context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
}

func NewServer(cfg *config.Config, sup Supervisor, st SettingsStore, caps Capability, folders FolderActions) *Server {
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		sup:            sup,
		settings:       st,
		caps:           caps,
		folders:        folders,
		logger:         log.WithComponent("ws"),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.Server.AuthToken,
		base:           base,
		cancel:         cancel,
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(securityHeaders)
	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/ws", s.handleWS)
		r.Get("/ws/{clientID}", s.handleWS)

		r.Get("/config", s.handleGetConfig)
		r.Post("/config", s.handleSetConfig)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(s.cfg.RateLimit))
			r.Post("/change_folder", s.handleChangeFolder)
			r.Post("/open_folder", s.handleOpenFolder)
		})

		r.Get("/api/sessions", s.handleSessions)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	})

	if dir := s.cfg.Server.StaticDir; dir != "" {
		s.logger.Info().Str("dir", dir).Msg("serving frontend from filesystem")
		r.Handle("/*", http.FileServer(http.Dir(dir)))
	}
	return r
}

// Close ends every open channel, which stops their downloads, and waits
// for them to finish.
func (s *Server) Close() {
	s.cancel()
	s.conns.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "clientID")
	if id == "" {
		id = uuid.NewString()
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws upgrade failed")
		return
	}

	if s.base.Err() != nil {
		_ = conn.Close()
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	s.logger.Info().Str("session_id", id).Str("remote", r.RemoteAddr).Msg("client connected")
	ch := NewChannel(id, conn, s.sup, s.settings, s.caps, s.cfg.Channel, s.cfg.Supervisor.EventBuffer, s.logger)
	ch.Serve(s.base)
	s.logger.Info().Str("session_id", id).Msg("client disconnected")
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Voidstream-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.originAllowed(origin) {
		return true
	}
	parsed, err := url.Parse(origin)
	return err == nil && parsed.Host != "" && parsed.Host == r.Host
}

// originAllowed applies the configured allow-list, or loopback origins when
// none is configured.
func (s *Server) originAllowed(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	if len(s.allowedOrigins) > 0 {
		return s.allowedOrigins[origin] || s.allowedHosts[parsed.Host]
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func (s *Server) corsOptions() cors.Options {
	return cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return s.originAllowed(origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Voidstream-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", path).
			Int("status", ww.Status()).
			Msg("http request")
	})
}
