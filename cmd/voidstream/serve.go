package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amilaanjanab/voidstream/internal/config"
	"github.com/amilaanjanab/voidstream/internal/log"
	"github.com/amilaanjanab/voidstream/internal/platform"
	"github.com/amilaanjanab/voidstream/internal/settings"
	"github.com/amilaanjanab/voidstream/internal/supervisor"
	"github.com/amilaanjanab/voidstream/internal/ws"
)

type serveOptions struct {
	configPath string
	port       int
	host       string
	logLevel   string
	logFormat  string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket and HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log.Configure(log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

			ln, err := net.Listen("tcp", cfg.Addr())
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, ln)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "config.yaml", "path to the server config file")
	f.IntVar(&opts.port, "port", 0, "override server port")
	f.StringVar(&opts.host, "host", "", "override listen host")
	f.StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "", "override log format (json, console)")
	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts *serveOptions) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// run serves on ln until ctx is cancelled, then closes every connection
// and waits for the downloads they owned to be terminated.
func run(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	logger := log.WithComponent("daemon")

	registry := supervisor.NewRegistry()
	sup := supervisor.New(cfg, registry)
	store := settings.NewStore(cfg.Settings.Path)
	tools := platform.NewToolCheck(cfg.Downloader.MergeTool)
	srv := ws.NewServer(cfg, sup, store, tools, platform.New())

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("addr", ln.Addr().String()).
		Strs("downloader", cfg.Downloader.Command).
		Bool("merge_tool", tools.HasMergeTool()).
		Str("settings", store.Path()).
		Msg("server listening")

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Settings.Watch {
		g.Go(func() error {
			err := store.Watch(ctx, func(st settings.Settings) {
				logger.Info().
					Str("download_path", st.DownloadPath).
					Str("quality", st.Quality).
					Msg("settings reloaded")
			})
			if err != nil {
				// Best effort: the server works without live reload.
				logger.Warn().Err(err).Msg("settings watcher unavailable")
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Supervisor.KillGrace+5*time.Second)
		defer cancel()

		err := httpSrv.Shutdown(shutdownCtx)
		srv.Close()
		if n := sup.StopAll(); n > 0 {
			logger.Info().Int("count", n).Msg("stopped remaining downloads")
		}
		if werr := sup.Wait(shutdownCtx); werr != nil {
			logger.Warn().Err(werr).Msg("timed out waiting for downloads to exit")
		}
		return err
	})

	return g.Wait()
}
