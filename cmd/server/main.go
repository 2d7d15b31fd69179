// Package main provides the unified safety service:
// - HTTP API and Prometheus metrics
// - Ingestion (continuous): WebSocket and MQTT location feeds
// - Zone hot-reload, model retraining and idle-state eviction (scheduled)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tourist-safety-engine/internal/app"
	"tourist-safety-engine/internal/config"
	"tourist-safety-engine/internal/logging"
)

// evictionInterval is how often idle entity state is swept.
const evictionInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", os.Getenv("SAFETY_CONFIG"), "YAML config file")
	envFile := flag.String("env-file", ".env", "Environment file loaded before SAFETY_* variables are read")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	flag.Parse()

	config.LoadEnvFile(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := app.New(ctx, cfg, stores, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Handle shutdown signals; a second signal exits immediately.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		sig = <-sigCh
		logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	// Reload zones before serving so the first assessments see them.
	if _, err := svc.Reloader.Reload(ctx); err != nil {
		logger.Warn("initial zone load failed, assessing without zones", zap.Error(err))
	}
	spawn("zone reloader", svc.Reloader.Run)
	spawn("trainer", svc.Trainer.Run)
	spawn("eviction", func(ctx context.Context) error {
		svc.RunEviction(ctx, evictionInterval)
		return nil
	})

	if sources := svc.Sources(); len(sources) > 0 {
		runner := svc.Runner(sources)
		spawn("ingestion", runner.Run)
		logger.Info("ingestion started", zap.Int("sources", len(sources)))
	} else {
		logger.Info("no live feeds configured, accepting samples over HTTP only")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("background workers did not stop before the shutdown timeout")
	}
	return runErr
}
