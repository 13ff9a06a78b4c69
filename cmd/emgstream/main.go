// Package main implements the entry point for the emgstream service: a TCP
// acquisition client for a Delsys Trigno base station, a per-channel signal
// conditioning pipeline, live view buffers and trial recording, all driven
// over an HTTP control surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/emgstream/app"
	"github.com/c360/emgstream/config"
	"github.com/c360/emgstream/gateway/httpapi"
	"github.com/c360/emgstream/health"
	"github.com/c360/emgstream/metric"
	"github.com/c360/emgstream/output/natspub"
	"github.com/c360/emgstream/stream"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "emgstream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return err
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	registry := metric.NewRegistry()
	healthMon := health.NewMonitor()

	// Optional NATS egress
	var publisher stream.Publisher
	var natsPub *natspub.Publisher
	if cfg.NATS.URL != "" {
		natsPub, err = natspub.NewPublisher(cfg.NATS.URL, cfg.NATS.Subject,
			logger.With("component", "natspub"), registry)
		if err != nil {
			return err
		}
		if err := natsPub.Connect(context.Background()); err != nil {
			return err
		}
		defer func() { _ = natsPub.Stop(cliCfg.ShutdownTimeout) }()
		publisher = natsPub
	}

	application, err := app.New(app.Deps{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Health:    healthMon,
		Publisher: publisher,
	})
	if err != nil {
		return err
	}

	metricServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	if err := metricServer.Start(); err != nil {
		return err
	}
	defer func() { _ = metricServer.Stop(cliCfg.ShutdownTimeout) }()

	apiServer, err := httpapi.NewServer(cfg.HTTP.Addr, application,
		logger.With("component", "httpapi"))
	if err != nil {
		return err
	}
	if err := apiServer.Start(); err != nil {
		return err
	}
	defer func() { _ = apiServer.Stop(cliCfg.ShutdownTimeout) }()

	logger.Info("Service ready",
		"http_addr", cfg.HTTP.Addr,
		"metrics_port", cfg.Metrics.Port,
		"device", fmt.Sprintf("%s:%d/%d", cfg.Device.Host, cfg.Device.CommandPort, cfg.Device.DataPort),
		"session_id", application.Session().ID())

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutdown signal received", "signal", sig.String())

	application.Shutdown(cliCfg.ShutdownTimeout)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}
