package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"wayfinder.transitlab.org/internal/app"
	"wayfinder.transitlab.org/internal/appconf"
	"wayfinder.transitlab.org/internal/clock"
	"wayfinder.transitlab.org/internal/logging"
	"wayfinder.transitlab.org/internal/metrics"
	"wayfinder.transitlab.org/internal/restapi"
	"wayfinder.transitlab.org/internal/transit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		addr       string
		envName    string
		rateLimit  int
	)
	flag.StringVar(&configPath, "config", "wayfinder.yaml", "path to YAML config file")
	flag.StringVar(&addr, "addr", ":4000", "HTTP listen address")
	flag.StringVar(&envName, "env", "", "environment override (development|test|production)")
	flag.IntVar(&rateLimit, "rate-limit", 100, "requests per second per API key (0 disables all, <0 disables limiting)")
	flag.Parse()

	cfg, err := transit.LoadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if envName != "" {
		cfg.Env = appconf.EnvFromString(envName)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	m := metrics.NewWithLogger(logger)
	clk := clock.RealClock{}

	engine := transit.NewEngine(cfg, clk, m, logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer engine.Shutdown()

	application := &app.Application{
		Config:  cfg,
		Logger:  logger,
		Engine:  engine,
		Clock:   clk,
		Metrics: m,
	}
	api := &restapi.RestAPI{Application: application}

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	limiter := restapi.NewRateLimitMiddleware(rateLimit, time.Second, nil, clk)
	defer limiter.Stop()

	var handler http.Handler = mux
	handler = restapi.CompressionMiddleware(handler)
	handler = limiter.Handler()(handler)
	handler = restapi.MetricsHandler(m)(handler)
	handler = restapi.NewRequestLoggingMiddleware(logger)(handler)
	handler = restapi.RequestIDMiddleware(handler)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "server_starting",
			slog.String("addr", addr),
			slog.String("env", cfg.Env.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.LogOperation(logger, "server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	m.Shutdown()
	return nil
}

func newLogger(cfg transit.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Env == appconf.Production {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
