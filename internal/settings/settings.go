// Package settings holds the user-facing settings document: where
// downloads go and which quality to request by default. The document is a
// small JSON file merged over defaults; anything unreadable falls back to
// the defaults without surfacing an error.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amilaanjanab/voidstream/internal/log"
)

const (
	DefaultDownloadPath = "downloads"
	DefaultQuality      = "best"
)

type Settings struct {
	DownloadPath string `json:"download_path"`
	Quality      string `json:"quality"`
}

// Partial is an update to the document; nil fields are left unchanged.
type Partial struct {
	DownloadPath *string `json:"download_path,omitempty"`
	Quality      *string `json:"quality,omitempty"`
}

func Defaults() Settings {
	return Settings{
		DownloadPath: DefaultDownloadPath,
		Quality:      DefaultQuality,
	}
}

// apply merges p into s. Empty strings count as unset.
func (s Settings) apply(p Partial) Settings {
	if p.DownloadPath != nil && *p.DownloadPath != "" {
		s.DownloadPath = *p.DownloadPath
	}
	if p.Quality != nil && *p.Quality != "" {
		s.Quality = *p.Quality
	}
	return s
}

// Store reads and writes the settings document at a fixed path. Reads are
// served from a cache that Set refreshes and Watch invalidates.
type Store struct {
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	cached *Settings
}

func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: log.WithComponent("settings"),
	}
}

// Path returns the location of the settings document.
func (s *Store) Path() string {
	return s.path
}

// Get returns the current settings.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		st := s.load()
		s.cached = &st
	}
	return *s.cached
}

// Set merges p into the stored document and writes it back atomically.
func (s *Store) Set(p Partial) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.load().apply(p)
	if err := s.save(next); err != nil {
		return Settings{}, err
	}
	s.cached = &next
	s.logger.Info().
		Str("download_path", next.DownloadPath).
		Str("quality", next.Quality).
		Msg("settings saved")
	return next, nil
}

// Invalidate drops the cached document so the next Get re-reads the file.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Store) load() Settings {
	st := Defaults()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug().Err(err).Msg("reading settings, using defaults")
		}
		return st
	}

	var p Partial
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Debug().Err(err).Msg("malformed settings document, using defaults")
		return st
	}
	return st.apply(p)
}

func (s *Store) save(st Settings) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	data = append(data, '\n')

	if err := writeFile(s.path, data); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}
