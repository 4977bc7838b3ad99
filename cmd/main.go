package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/fifopipe/internal/config"
	"github.com/jittakal/fifopipe/internal/device"
	"github.com/jittakal/fifopipe/internal/kafka"
	"github.com/jittakal/fifopipe/internal/observability"
	"github.com/jittakal/fifopipe/internal/server"
	"github.com/jittakal/fifopipe/internal/sink"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Load configuration
	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize observability
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	})
	logger.Info("starting fifo pipe service",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	// Track cleanup functions
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, fn)
		logger.Debug("registered cleanup", "component", name)
	}

	// Initialize the device registry and the configured pipe device
	registry := device.NewRegistry(cfg.Device.Capacity, cfg.Device.ElementSize, logger, metrics)
	dev, err := registry.Create(cfg.Device.Name)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	addCleanup("device-registry", registry.CloseAll)

	healthChecker := &deviceHealthChecker{device: dev}

	// Start HTTP servers
	httpServer := server.NewServer(
		cfg.Server.Data.Port,
		cfg.Observability.Health.Port,
		cfg.Observability.Metrics.Port,
		server.NewDataMux(registry, logger),
		healthChecker,
		promRegistry,
		logger,
	)

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP servers: %w", err)
	}
	addCleanup("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrChan := make(chan error, 2)

	// Optional Kafka ingest bridge
	if cfg.Kafka.Enabled {
		ingestConfig := kafka.IngestConfig{
			BootstrapServers:    cfg.Kafka.BootstrapServers,
			GroupID:             cfg.Kafka.Consumer.GroupID,
			Topics:              cfg.Kafka.Consumer.Topics,
			SecurityProtocol:    cfg.Kafka.SecurityProtocol,
			SASLMechanism:       cfg.Kafka.SASLMechanism,
			SASLUsername:        cfg.Kafka.SASLUsername,
			SASLPassword:        cfg.Kafka.SASLPassword,
			AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
			MaxPollIntervalMS:   cfg.Kafka.Consumer.MaxPollIntervalMS,
			SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
			HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
		}
		ingest, err := kafka.NewIngest(ingestConfig, dev, logger, metrics)
		if err != nil {
			return fmt.Errorf("failed to create kafka ingest: %w", err)
		}
		addCleanup("kafka-ingest", ingest.Close)

		go func() {
			runErrChan <- ingest.Run(ctx)
		}()
	}

	// Optional file drain
	if cfg.Sink.Enabled {
		drain, err := sink.NewFileDrain(sink.FileConfig{
			BasePath:  cfg.Sink.BasePath,
			FileName:  cfg.Sink.FileName,
			ChunkSize: cfg.Sink.ChunkSize,
		}, dev, logger, metrics)
		if err != nil {
			return fmt.Errorf("failed to create file drain: %w", err)
		}
		addCleanup("file-drain", drain.Close)

		go func() {
			runErrChan <- drain.Run(ctx)
		}()
	}

	logger.Info("application started successfully",
		"device", cfg.Device.Name,
		"capacity", cfg.Device.Capacity,
		"element_size", cfg.Device.ElementSize,
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("received termination signal")
	case err := <-runErrChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("background pump error", "error", err)
			cancel()
			runCleanup(cleanupFuncs, logger)
			return err
		}
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	cancel()

	// Allow time for in-flight transfers to complete
	time.Sleep(cfg.Shutdown.GracePeriod())

	runCleanup(cleanupFuncs, logger)

	logger.Info("application stopped successfully")
	return nil
}

// runCleanup runs registered cleanup functions in reverse order.
func runCleanup(cleanupFuncs []func() error, logger *slog.Logger) {
	for i := len(cleanupFuncs) - 1; i >= 0; i-- {
		if err := cleanupFuncs[i](); err != nil {
			logger.Error("cleanup error", "error", err)
		}
	}
}

// deviceHealthChecker reports health based on the pipe device state.
type deviceHealthChecker struct {
	device *device.Device
}

func (c *deviceHealthChecker) Liveness() bool {
	return true
}

func (c *deviceHealthChecker) Readiness(ctx context.Context) bool {
	return c.device != nil
}

func (c *deviceHealthChecker) GetStatus() map[string]string {
	status := map[string]string{}
	if c.device != nil {
		state := "ready"
		if c.device.Full() {
			state = "full"
		} else if c.device.Empty() {
			state = "empty"
		}
		status[c.device.Name()] = state
	}
	return status
}
