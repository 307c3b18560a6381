package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Downloader DownloaderConfig `yaml:"downloader"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Channel    ChannelConfig    `yaml:"channel"`
	Settings   SettingsConfig   `yaml:"settings"`
	Log        LogConfig        `yaml:"log"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// StaticDir, when set, is served at "/" (e.g. a built web frontend).
	StaticDir string `yaml:"static_dir"`
}

// DownloaderConfig describes the external capture command. Command is the
// argv prefix, so "python -m yt_dlp" installs work as well as a yt-dlp binary.
type DownloaderConfig struct {
	Command   []string `yaml:"command"`
	ExtraArgs []string `yaml:"extra_args"`
	MergeTool string   `yaml:"merge_tool"`
}

type SupervisorConfig struct {
	KillGrace   time.Duration `yaml:"kill_grace"`
	EventBuffer int           `yaml:"event_buffer"`
	TailLines   int           `yaml:"tail_lines"`
}

type ChannelConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
}

type SettingsConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig bounds the folder actions, which spawn host processes.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

const (
	DefaultPort        = 8000
	DefaultHost        = "127.0.0.1"
	DefaultMergeTool   = "ffmpeg"
	DefaultSettingsDoc = "config.json"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultPort,
			Host: DefaultHost,
		},
		Downloader: DownloaderConfig{
			Command:   []string{"yt-dlp"},
			MergeTool: DefaultMergeTool,
		},
		Supervisor: SupervisorConfig{
			KillGrace:   5 * time.Second,
			EventBuffer: 256,
			TailLines:   50,
		},
		Channel: ChannelConfig{
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
			PongTimeout:  60 * time.Second,
		},
		Settings: SettingsConfig{
			Path:  DefaultSettingsDoc,
			Watch: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Requests: 10,
			Window:   time.Minute,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads the YAML file at path over the defaults. Fields absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Downloader.Command) == 0 || c.Downloader.Command[0] == "" {
		return errors.New("downloader.command must name an executable")
	}
	if c.Supervisor.KillGrace <= 0 {
		return errors.New("supervisor.kill_grace must be positive")
	}
	if c.Supervisor.EventBuffer < 1 {
		return errors.New("supervisor.event_buffer must be at least 1")
	}
	if c.Channel.PingInterval <= 0 || c.Channel.PongTimeout <= c.Channel.PingInterval {
		return errors.New("channel.pong_timeout must exceed a positive channel.ping_interval")
	}
	if c.Settings.Path == "" {
		return errors.New("settings.path must not be empty")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format %q must be json or console", c.Log.Format)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
