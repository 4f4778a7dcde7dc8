// Package server assembles the proxy: translator, upstream forwarder,
// model map, telemetry, usage accounting, and the HTTP server itself.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/modelmap"
	"mercator-hq/callisto/pkg/proxy/handlers"
	"mercator-hq/callisto/pkg/proxy/middleware"
	"mercator-hq/callisto/pkg/telemetry/metrics"
	"mercator-hq/callisto/pkg/translate"
	"mercator-hq/callisto/pkg/upstream"
	"mercator-hq/callisto/pkg/usage"
)

// Server is the assembled translation proxy.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string

	httpServer *http.Server
	client     *upstream.Client
	models     *modelmap.Table
	watcher    *modelmap.Watcher
	store      *usage.Store
	recorder   *usage.Recorder
	retention  *usage.Scheduler

	shutdownOnce sync.Once
	mu           sync.Mutex
	running      bool
}

// New wires up all components from the configuration.
func New(cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger, version: version}

	// Model mapping, optionally hot-reloaded.
	if cfg.ModelMap.Path != "" {
		table, err := modelmap.Load(cfg.ModelMap.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load model map: %w", err)
		}
		s.models = table
		logger.Info("model map loaded", "path", cfg.ModelMap.Path, "models", table.Len())

		if cfg.ModelMap.Watch {
			watcher, err := modelmap.NewWatcher(cfg.ModelMap.Path, table, cfg.ModelMap.DebounceInterval, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create model map watcher: %w", err)
			}
			s.watcher = watcher
		}
	}

	// Usage accounting.
	if cfg.Usage.Enabled {
		store, err := usage.NewStore(cfg.Usage.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open usage store: %w", err)
		}
		s.store = store
		s.recorder = usage.NewRecorder(store, 0, logger)
		s.retention = usage.NewScheduler(store, cfg.Usage.Retention.Days, cfg.Usage.Retention.Schedule, logger)
	}

	// Upstream transport with breaker and retry.
	s.client = upstream.NewClient(upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		APIKey:         cfg.Upstream.APIKey,
		Timeout:        cfg.Upstream.Timeout,
		MaxConnections: cfg.Upstream.MaxConnections,
	}, logger)

	breaker := upstream.NewBreaker(
		cfg.Breaker.FailureThreshold,
		cfg.Breaker.RecoveryTimeout,
		cfg.Breaker.HalfOpenProbes,
	)

	m := metrics.New()
	m.ObserveBreaker(breaker)

	forwarder := upstream.NewForwarder(s.client, breaker, upstream.RetryPolicy{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		JitterMax:    cfg.Retry.JitterMax,
	}, logger)
	forwarder.OnRetry(m.RecordRetry)

	var resolver translate.ModelResolver
	if s.models != nil {
		resolver = s.models
	}

	api := handlers.New(handlers.Options{
		Translator: translate.NewRequestTranslator(resolver),
		Forwarder:  forwarder,
		Models:     s.models,
		Metrics:    m,
		Recorder:   s.recorder,
		Logger:     logger,
		Version:    version,
	})

	mux := http.NewServeMux()
	api.Register(mux)
	if cfg.Telemetry.Metrics.Enabled {
		mux.Handle("GET "+cfg.Telemetry.Metrics.Path, m.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(logger)(handler)

	s.httpServer = &http.Server{
		Addr:           cfg.Server.ListenAddress,
		Handler:        handler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return s, nil
}

// Handler returns the fully assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the server and blocks until a shutdown signal, context
// cancellation, or a listen error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.watcher != nil {
		go func() {
			if err := s.watcher.Watch(ctx); err != nil {
				s.logger.Error("model map watcher stopped", "error", err)
			}
		}()
	}

	if s.retention != nil {
		if err := s.retention.Start(ctx); err != nil {
			return fmt.Errorf("failed to start usage retention: %w", err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("proxy server listening",
			"address", s.cfg.Server.ListenAddress,
			"upstream", s.cfg.Upstream.BaseURL,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown drains in-flight requests, then stops the background
// components in dependency order.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		if s.watcher != nil {
			if err := s.watcher.Close(); err != nil {
				s.logger.Error("error closing model map watcher", "error", err)
			}
		}
		if s.retention != nil {
			s.retention.Stop()
		}
		if s.recorder != nil {
			s.recorder.Close()
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				s.logger.Error("error closing usage store", "error", err)
			}
		}
		s.client.Close()

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.logger.Info("proxy server stopped")
	})

	return shutdownErr
}
