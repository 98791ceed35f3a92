// Package ui serves the QC operations dashboard.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/metrics"
	"github.com/leapstack-labs/qcops/internal/ui/features/common"
	"github.com/leapstack-labs/qcops/internal/ui/notifier"
	"github.com/leapstack-labs/qcops/internal/ui/router"
)

const (
	configDebounce  = 100 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Server is the dashboard server.
type Server struct {
	cfg          Config
	sessionStore *sessions.CookieStore
	logger       *slog.Logger
	notifier     *notifier.Notifier
}

// Config holds configuration for the dashboard server.
type Config struct {
	Provider *dataset.Provider
	// Metrics is optional; nil disables /metrics and request instrumentation.
	Metrics *metrics.Metrics
	Port    int
	// RefreshInterval rebuilds the snapshot periodically; zero disables it.
	RefreshInterval time.Duration
	// Watch re-reads ConfigFile through OnConfigChange when it is saved.
	Watch          bool
	ConfigFile     string
	OnConfigChange func(ctx context.Context) error
	SessionSecret  string
	Logger         *slog.Logger
	IsDev          bool
}

// NewServer creates a new dashboard server. Every snapshot refresh updates
// the gauges and pings open streams.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	s := &Server{
		cfg:          cfg,
		sessionStore: sessionStore,
		logger:       cfg.Logger,
		notifier:     notifier.New(),
	}
	if cfg.Metrics != nil {
		cfg.Metrics.ObserveSnapshot(cfg.Provider.Current())
	}
	cfg.Provider.OnRefresh(func(snap *dataset.Snapshot) {
		if cfg.Metrics != nil {
			cfg.Metrics.ObserveSnapshot(snap)
		}
		s.notifier.Broadcast()
	})
	return s
}

// Handler builds the routed handler with middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	if s.cfg.Metrics != nil {
		r.Use(s.cfg.Metrics.Middleware)
	}

	router.SetupRoutes(r, &common.Deps{
		Provider: s.cfg.Provider,
		Sessions: s.sessionStore,
		Notifier: s.notifier,
		Logger:   s.logger,
		IsDev:    s.cfg.IsDev,
	}, s.cfg.Metrics)
	return r
}

// Serve listens on the configured port and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, running the refresh
// loop and config watcher alongside.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting dashboard", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		return s.cfg.Provider.Run(egctx, s.cfg.RefreshInterval)
	})

	if s.cfg.Watch && s.cfg.ConfigFile != "" && s.cfg.OnConfigChange != nil {
		eg.Go(func() error {
			return s.watchConfig(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		s.notifier.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down dashboard...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// watchConfig calls OnConfigChange after the config file is written. The
// parent directory is watched because editors often replace the file.
func (s *Server) watchConfig(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(s.cfg.ConfigFile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		s.logger.Error("failed to watch config file", "path", target, "error", err)
		// Keep serving without reloads.
		<-ctx.Done()
		return nil
	}

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(configDebounce)
			} else {
				debounce.Reset(configDebounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			s.logger.Info("config changed, rebuilding snapshot", "file", target)
			if err := s.cfg.OnConfigChange(ctx); err != nil {
				s.logger.Error("config reload failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}
