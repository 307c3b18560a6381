package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins:
    - "http://localhost:5173"
downloader:
  command: ["python3", "-m", "yt_dlp"]
  extra_args: ["--newline"]
supervisor:
  kill_grace: 2s
log:
  format: console
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if got := strings.Join(cfg.Downloader.Command, " "); got != "python3 -m yt_dlp" {
		t.Errorf("Downloader.Command = %q", got)
	}
	if len(cfg.Downloader.ExtraArgs) != 1 || cfg.Downloader.ExtraArgs[0] != "--newline" {
		t.Errorf("Downloader.ExtraArgs = %v", cfg.Downloader.ExtraArgs)
	}
	if cfg.Supervisor.KillGrace != 2*time.Second {
		t.Errorf("Supervisor.KillGrace = %v, want 2s", cfg.Supervisor.KillGrace)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("Log.Format = %q, want console", cfg.Log.Format)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Downloader.MergeTool != DefaultMergeTool {
		t.Errorf("Downloader.MergeTool = %q, want default %q", cfg.Downloader.MergeTool, DefaultMergeTool)
	}
	if cfg.Supervisor.EventBuffer != 256 {
		t.Errorf("Supervisor.EventBuffer = %d, want default 256", cfg.Supervisor.EventBuffer)
	}
	if cfg.Settings.Path != DefaultSettingsDoc {
		t.Errorf("Settings.Path = %q, want default %q", cfg.Settings.Path, DefaultSettingsDoc)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Server.Host = %q, want default %q", cfg.Server.Host, DefaultHost)
	}
	if cfg.Downloader.Command[0] != "yt-dlp" {
		t.Errorf("Downloader.Command = %v, want [yt-dlp]", cfg.Downloader.Command)
	}
}

func TestLoadOrDefaultInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := LoadOrDefault(path); err == nil {
		t.Fatal("LoadOrDefault() on malformed YAML should return error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }},
		{"empty command", func(c *Config) { c.Downloader.Command = nil }},
		{"blank executable", func(c *Config) { c.Downloader.Command = []string{""} }},
		{"zero grace", func(c *Config) { c.Supervisor.KillGrace = 0 }},
		{"zero buffer", func(c *Config) { c.Supervisor.EventBuffer = 0 }},
		{"pong before ping", func(c *Config) { c.Channel.PongTimeout = c.Channel.PingInterval }},
		{"empty settings path", func(c *Config) { c.Settings.Path = "" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	if got := cfg.Addr(); got != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8000", got)
	}
}
