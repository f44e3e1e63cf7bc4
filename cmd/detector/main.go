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

	"github.com/absmach/framestream/client"
	"github.com/absmach/framestream/codec"
	"github.com/absmach/framestream/config"
	"github.com/absmach/framestream/consumer"
	"github.com/absmach/framestream/detect"
	"github.com/absmach/framestream/server/health"
	"github.com/absmach/framestream/server/otel"
	"github.com/absmach/framestream/sink"
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

	instanceID := uuid.NewString()

	slog.Info("Starting motion detector", "version", "0.1.0", "instance_id", instanceID)
	slog.Info("Configuration loaded",
		"broker_addr", cfg.Broker.Address,
		"frames_queue", cfg.Broker.FramesQueue,
		"detections_queue", cfg.Broker.DetectionsQueue,
		"prefetch_limit", cfg.Consumer.PrefetchLimit,
		"max_attempts", cfg.Consumer.MaxAttempts,
		"log_level", cfg.Log.Level)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry metrics
	var metrics *otel.Metrics
	if cfg.Otel.Enabled {
		shutdown, err := otel.InitProvider(cfg.Otel, instanceID)
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
		SetPrefetch(cfg.Consumer.PrefetchLimit).
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
	if err := c.DeclareQueue(cfg.Broker.DetectionsQueue); err != nil {
		slog.Error("Failed to declare detections queue", "error", err)
		os.Exit(1)
	}

	// Wire the consumer pipeline: decode, detect, publish detections with
	// duplicate suppression.
	frameCodec := codec.New(codec.CompressionNone)
	detector := detect.NewMotion(detect.MotionConfig{
		DiffThreshold:    cfg.Detect.DiffThreshold,
		MinChangedPixels: cfg.Detect.MinChangedPixels,
	})
	results := sink.NewDedup(
		sink.NewPublish(c, frameCodec, cfg.Broker.DetectionsQueue),
		cfg.Consumer.DedupCapacity,
	)

	pipe := consumer.New(consumer.Config{
		Queue:           cfg.Broker.FramesQueue,
		PrefetchLimit:   cfg.Consumer.PrefetchLimit,
		MaxAttempts:     cfg.Consumer.MaxAttempts,
		ShutdownTimeout: cfg.Consumer.ShutdownTimeout,
	}, consumer.NewClientSubscriber(c), frameCodec, detector, results, logger, metrics)

	sup := supervisor.New(logger)
	sup.Add("consumer", pipe)

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

	slog.Info("Motion detector started successfully")

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
	slog.Info("Motion detector stopped",
		"received", stats.Received,
		"acked", stats.Acked,
		"requeued", stats.Requeued,
		"dead_lettered", stats.DeadLettered,
		"detections", stats.DetectionsEmitted)
}
