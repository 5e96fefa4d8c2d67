package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ecogateway/internal/config"
	"ecogateway/internal/ecosystem"
	"ecogateway/internal/server"
	"ecogateway/internal/telemetry"
	"ecogateway/pkg/metrics"
)

var version = "dev"

var (
	configFile = flag.String("config", "", "config file path (embedded default when empty)")
	logLevel   = flag.String("log-level", "info", "log level")
	once       = flag.Bool("once", false, "print ecosystem health and metrics as JSON and exit")
)

func main() {
	flag.Parse()

	// Setup logging
	setupLogging(*logLevel)

	// Load config
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Telemetry.Version == "" {
		cfg.Telemetry.Version = version
	}

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	client, err := newClient(cfg, tel, m)
	if err != nil {
		slog.Error("failed to create ecosystem client", "error", err)
		os.Exit(1)
	}

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *once {
		err := printSnapshot(ctx, client)
		shutdownTelemetry(tel, cfg)
		if err != nil {
			slog.Error("failed to write snapshot", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := server.New(cfg.Server, client, slog.Default()).WithMetrics(m)

	if *configFile != "" {
		watcher, err := config.NewWatcher(*configFile, &config.WatcherConfig{
			DebounceDuration: config.DefaultWatcherConfig().DebounceDuration,
			OnChange: func(next *config.Config) error {
				c, err := newClient(next, tel, m)
				if err != nil {
					return err
				}
				srv.SetClient(c)
				return nil
			},
		}, slog.Default())
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	// Start server
	if err := srv.Start(ctx); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("failed to stop server", "error", err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to flush telemetry", "error", err)
	}
}

// newClient builds an immutable ecosystem client for cfg
func newClient(cfg *config.Config, tel *telemetry.Telemetry, m *metrics.Metrics) (*ecosystem.Client, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	client, err := ecosystem.New(cfg.Client, reg, slog.Default())
	if err != nil {
		return nil, err
	}
	return client.WithMetrics(m).WithTracer(tel.Tracer()), nil
}

// printSnapshot writes one health and metrics reading to stdout
func printSnapshot(ctx context.Context, client *ecosystem.Client) error {
	out := struct {
		Health  ecosystem.AggregateHealth `json:"health"`
		Metrics ecosystem.MetricsSnapshot `json:"metrics"`
	}{
		Health:  client.CheckHealth(ctx),
		Metrics: client.Metrics(ctx),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func shutdownTelemetry(tel *telemetry.Telemetry, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		slog.Error("failed to flush telemetry", "error", err)
	}
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func setupLogging(level string) {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}

	// Logs go to stderr so -once output stays clean JSON
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})))
}
