// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/absmach/framestream/capture"
	"github.com/absmach/framestream/client"
	"github.com/absmach/framestream/codec"
	"github.com/absmach/framestream/config"
	"github.com/absmach/framestream/producer"
	"github.com/absmach/framestream/server/health"
	"github.com/absmach/framestream/server/otel"
	"github.com/absmach/framestream/supervisor"
)

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logging
	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	sourceID := cfg.Capture.SourceID
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	slog.Info("Starting frame streamer", "version", "0.1.0", "source_id", sourceID)
	slog.Info("Configuration loaded",
		"broker_addr", cfg.Broker.Address,
		"frames_queue", cfg.Broker.FramesQueue,
		"queue_capacity", cfg.Producer.QueueCapacity,
		"compression", cfg.Producer.Compression,
		"log_level", cfg.Log.Level)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry metrics
	var metrics *otel.Metrics
	if cfg.Otel.Enabled {
		shutdown, err := otel.InitProvider(cfg.Otel, sourceID)
		if err != nil {
			slog.Error("Failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())

		metrics, err = otel.NewMetrics()
		if err != nil {
			slog.Error("Failed to create metrics", "error", err)
			os.Exit(1)
		}
		slog.Info("Telemetry enabled", "endpoint", cfg.Otel.Endpoint)
	}

	// Connect to the broker
	opts := client.NewOptions().
		SetAddress(cfg.Broker.Address).
		SetCredentials(cfg.Broker.Username, cfg.Broker.Password).
		SetVhost(cfg.Broker.Vhost).
		SetDialTimeout(cfg.Broker.DialTimeout).
		SetHeartbeat(cfg.Broker.Heartbeat).
		SetAutoReconnect(true).
		SetReconnectBackoff(cfg.Broker.ReconnectBackoff, cfg.Broker.MaxReconnectWait).
		SetOnConnectionLost(func(err error) {
			slog.Warn("Broker connection lost", "error", err)
		}).
		SetOnReconnected(func(attempt int) {
			slog.Info("Broker connection restored", "attempt", attempt)
		})

	if cfg.Broker.TLSEnabled {
		cert, err := tls.LoadX509KeyPair(cfg.Broker.TLSCertFile, cfg.Broker.TLSKeyFile)
		if err != nil {
			slog.Error("Failed to load TLS key pair", "error", err)
			os.Exit(1)
		}
		opts.SetTLSConfig(&tls.Config{Certificates: []tls.Certificate{cert}})
	}

	c, err := client.New(opts, logger)
	if err != nil {
		slog.Error("Failed to create broker client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := supervisor.ConnectWithBackoff(ctx, c, cfg.Broker.ReconnectBackoff, cfg.Broker.MaxReconnectWait, logger); err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to broker", "address", cfg.Broker.Address)

	if err := c.DeclareWorkQueue(cfg.Broker.FramesQueue, cfg.Broker.DeadLetterQueue); err != nil {
		slog.Error("Failed to declare frames queue", "error", err)
		os.Exit(1)
	}

	// Wire the producer pipeline
	var compression codec.CompressionType
	switch cfg.Producer.Compression {
	case "s2":
		compression = codec.CompressionS2
	case "zstd":
		compression = codec.CompressionZstd
	default:
		compression = codec.CompressionNone
	}

	source := capture.NewSynthetic(capture.SyntheticConfig{
		Width:      cfg.Capture.FrameWidth,
		Height:     cfg.Capture.FrameHeight,
		FrameRate:  cfg.Capture.FrameRate,
		FrameCount: cfg.Capture.FrameCount,
	})

	pipe := producer.New(producer.Config{
		SourceID:          sourceID,
		Queue:             cfg.Broker.FramesQueue,
		QueueCapacity:     cfg.Producer.QueueCapacity,
		MaxPublishRetries: cfg.Producer.MaxPublishRetries,
		PublishBackoff:    cfg.Producer.PublishBackoff,
		MaxPublishWait:    cfg.Producer.MaxPublishWait,
		PublishTimeout:    cfg.Producer.PublishTimeout,
		DrainTimeout:      cfg.Producer.DrainTimeout,
		RestartBackoff:    cfg.Capture.RestartBackoff,
		BreakerFailures:   uint32(cfg.Producer.BreakerFailures),
		BreakerReset:      cfg.Producer.BreakerReset,
	}, source, codec.New(compression), c, logger, metrics)

	sup := supervisor.New(logger)
	sup.Add("producer", pipe)

	var wg sync.WaitGroup
	serverErr := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sup.Run(ctx); err != nil {
			serverErr <- err
		}
	}()

	// Start health check server if enabled
	if cfg.Health.Enabled {
		healthServer := health.New(health.Config{
			Address:         cfg.Health.Address,
			ShutdownTimeout: cfg.Health.ShutdownTimeout,
		}, sup, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthServer.Listen(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	slog.Info("Frame streamer started successfully")

	// Wait for shutdown signal or pipeline error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
		cancel()
	}

	wg.Wait()

	stats := pipe.Stats()
	slog.Info("Frame streamer stopped",
		"captured", stats.Captured,
		"published", stats.Published,
		"dropped", stats.Dropped+stats.PublishDropped)
}
