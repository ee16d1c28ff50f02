package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/subwatch/dashboard/internal/api"
	"github.com/subwatch/dashboard/internal/config"
	"github.com/subwatch/dashboard/internal/connection"
	"github.com/subwatch/dashboard/internal/router"
	"github.com/subwatch/dashboard/internal/status"
	"github.com/subwatch/dashboard/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/dashboard.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting dashboard agent",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"base_url", cfg.Server.BaseURL,
		"realtime_disabled", cfg.Realtime.Disabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create API client
	apiClient := api.NewClient(
		cfg.Server.BaseURL,
		cfg.Auth.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Server.Timeout),
		api.WithRetries(cfg.Server.MaxRetries, time.Second),
	)

	if apiClient.Token() == "" {
		logger.Info("no token configured, logging in", "email", cfg.Auth.Email)
		if _, err := apiClient.Login(ctx, cfg.Auth.Email, cfg.Auth.Password); err != nil {
			logger.Error("login failed", "error", err)
			os.Exit(1)
		}
		logger.Info("logged in")
	}

	// Check the backend is reachable before going interactive
	summary, err := apiClient.AnalyticsSummary(ctx)
	if err != nil {
		logger.Error("failed to reach backend", "error", err)
		os.Exit(1)
	}
	logger.Info("backend reachable",
		"posts", summary.Posts,
		"responses", summary.Responses,
	)

	// Wire the realtime channel
	rt := router.New(logger)
	mgr := connection.NewManager(connection.ManagerConfig{
		BaseURL: cfg.Server.BaseURL,
		Enabled: !cfg.Realtime.Disabled,
		Policy: connection.Policy{
			MaxAttempts: cfg.Realtime.MaxAttempts,
			BaseDelay:   cfg.Realtime.BaseDelay,
			Factor:      2,
			MaxDelay:    cfg.Realtime.MaxDelay,
		},
		PingInterval:   cfg.Realtime.PingInterval,
		PongTimeout:    cfg.Realtime.PongTimeout,
		StatusInterval: cfg.Realtime.StatusInterval,
		DialTimeout:    10 * time.Second,
	}, rt, logger)

	reporter := status.NewReporter(mgr, rt, os.Stdout, logger)

	result := mgr.Connect(apiClient.Token())
	logger.Info("realtime connect", "result", result.String())

	g, gctx := errgroup.WithContext(ctx)

	// Poll the backend on a fixed cadence. With the realtime channel
	// down this is the only data path, so poll faster.
	g.Go(func() error {
		interval := 60 * time.Second
		if cfg.Realtime.Disabled {
			interval = 15 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				summary, err := apiClient.AnalyticsSummary(gctx)
				if err != nil {
					logger.Warn("analytics poll failed", "error", err)
					continue
				}
				logger.Info("analytics",
					"posts", summary.Posts,
					"responses", summary.Responses,
				)
			}
		}
	})

	// Periodic realtime health report
	g.Go(func() error {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				health := mgr.Health()
				logger.Info("realtime health",
					"state", mgr.State().String(),
					"latency_ms", health.LatencyMillis,
					"degraded", health.PingTimeout,
				)
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent stopped", "error", err)
	}

	mgr.Disconnect()
	logger.Info("shutdown complete", "events_seen", reporter.Feed().Recorded())
}
