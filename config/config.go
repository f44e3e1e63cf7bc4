// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the frame pipeline services.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Producer ProducerConfig `yaml:"producer"`
	Consumer ConsumerConfig `yaml:"consumer"`
	Capture  CaptureConfig  `yaml:"capture"`
	Detect   DetectConfig   `yaml:"detect"`
	Health   HealthConfig   `yaml:"health"`
	Otel     OtelConfig     `yaml:"otel"`
	Log      LogConfig      `yaml:"log"`
}

// BrokerConfig holds broker connection and queue settings.
type BrokerConfig struct {
	Address     string        `yaml:"address"`      // Broker address (host:port)
	Username    string        `yaml:"username"`     // Username for PLAIN auth
	Password    string        `yaml:"password"`     // Password for PLAIN auth
	Vhost       string        `yaml:"vhost"`        // Virtual host (default "/")
	TLSEnabled  bool          `yaml:"tls_enabled"`  // Dial with TLS
	TLSCertFile string        `yaml:"tls_cert_file"`
	TLSKeyFile  string        `yaml:"tls_key_file"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Heartbeat   time.Duration `yaml:"heartbeat"`

	FramesQueue     string `yaml:"frames_queue"`     // Frame delivery queue
	DetectionsQueue string `yaml:"detections_queue"` // Detection results queue
	DeadLetterQueue string `yaml:"dead_letter_queue"`

	// Reconnect backoff
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"` // Initial delay
	MaxReconnectWait time.Duration `yaml:"max_reconnect_wait"`
}

// ProducerConfig holds producer pipeline settings.
type ProducerConfig struct {
	// QueueCapacity bounds buffered, unpublished frames before
	// drop-oldest eviction kicks in.
	QueueCapacity int `yaml:"queue_capacity"`

	// MaxPublishRetries bounds redelivery attempts for one frame before
	// it is dropped.
	MaxPublishRetries int           `yaml:"max_publish_retries"`
	PublishBackoff    time.Duration `yaml:"publish_backoff"`
	MaxPublishWait    time.Duration `yaml:"max_publish_wait"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`

	// DrainTimeout bounds how long shutdown waits for buffered frames.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// Compression for encoded frame payloads: none, s2, zstd.
	Compression string `yaml:"compression"`

	// Circuit breaker over broker publishes
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
}

// ConsumerConfig holds consumer pipeline settings.
type ConsumerConfig struct {
	// PrefetchLimit bounds unacked in-flight deliveries and local worker
	// concurrency.
	PrefetchLimit int `yaml:"prefetch_limit"`

	// MaxAttempts bounds redelivery before dead-lettering.
	MaxAttempts int `yaml:"max_attempts"`

	// DedupCapacity bounds the sink deduplication window.
	DedupCapacity int `yaml:"dedup_capacity"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CaptureConfig holds capture source settings.
type CaptureConfig struct {
	SourceID string `yaml:"source_id"` // Empty means generated

	// Synthetic source settings
	FrameRate   float64 `yaml:"frame_rate"` // Frames per second
	FrameWidth  int     `yaml:"frame_width"`
	FrameHeight int     `yaml:"frame_height"`
	FrameCount  int     `yaml:"frame_count"` // 0 means unbounded

	RestartBackoff time.Duration `yaml:"restart_backoff"`
}

// DetectConfig holds motion detector settings.
type DetectConfig struct {
	// DiffThreshold is the per-pixel luminance delta counted as changed.
	DiffThreshold uint8 `yaml:"diff_threshold"`

	// MinChangedPixels is the changed-pixel count above which motion is
	// reported.
	MinChangedPixels int `yaml:"min_changed_pixels"`
}

// HealthConfig holds health endpoint settings.
type HealthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OtelConfig holds OpenTelemetry settings.
type OtelConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"` // OTLP gRPC endpoint
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Address:          "localhost:5672",
			Username:         "guest",
			Password:         "guest",
			Vhost:            "/",
			DialTimeout:      10 * time.Second,
			Heartbeat:        60 * time.Second,
			FramesQueue:      "frames",
			DetectionsQueue:  "detections",
			DeadLetterQueue:  "frames.dead",
			ReconnectBackoff: 1 * time.Second,
			MaxReconnectWait: 2 * time.Minute,
		},
		Producer: ProducerConfig{
			QueueCapacity:     64,
			MaxPublishRetries: 3,
			PublishBackoff:    250 * time.Millisecond,
			MaxPublishWait:    5 * time.Second,
			PublishTimeout:    10 * time.Second,
			DrainTimeout:      10 * time.Second,
			Compression:       "s2",
			BreakerFailures:   5,
			BreakerReset:      30 * time.Second,
		},
		Consumer: ConsumerConfig{
			PrefetchLimit:   4,
			MaxAttempts:     3,
			DedupCapacity:   4096,
			ShutdownTimeout: 30 * time.Second,
		},
		Capture: CaptureConfig{
			FrameRate:      15,
			FrameWidth:     320,
			FrameHeight:    240,
			RestartBackoff: 1 * time.Second,
		},
		Detect: DetectConfig{
			DiffThreshold:    25,
			MinChangedPixels: 500,
		},
		Health: HealthConfig{
			Enabled:         true,
			Address:         ":8081",
			ShutdownTimeout: 5 * time.Second,
		},
		Otel: OtelConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			ServiceName:    "framestream",
			ServiceVersion: "0.1.0",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Broker.Address == "" {
		return fmt.Errorf("broker.address cannot be empty")
	}
	if c.Broker.FramesQueue == "" {
		return fmt.Errorf("broker.frames_queue cannot be empty")
	}
	if c.Broker.TLSEnabled {
		if c.Broker.TLSCertFile == "" {
			return fmt.Errorf("broker.tls_cert_file required when TLS is enabled")
		}
		if c.Broker.TLSKeyFile == "" {
			return fmt.Errorf("broker.tls_key_file required when TLS is enabled")
		}
	}
	if c.Broker.ReconnectBackoff <= 0 {
		return fmt.Errorf("broker.reconnect_backoff must be positive")
	}

	if c.Producer.QueueCapacity < 1 {
		return fmt.Errorf("producer.queue_capacity must be at least 1")
	}
	if c.Producer.MaxPublishRetries < 0 {
		return fmt.Errorf("producer.max_publish_retries cannot be negative")
	}
	validCompression := map[string]bool{"none": true, "s2": true, "zstd": true}
	if !validCompression[c.Producer.Compression] {
		return fmt.Errorf("producer.compression must be one of: none, s2, zstd")
	}

	if c.Consumer.PrefetchLimit < 1 {
		return fmt.Errorf("consumer.prefetch_limit must be at least 1")
	}
	if c.Consumer.MaxAttempts < 1 {
		return fmt.Errorf("consumer.max_attempts must be at least 1")
	}

	if c.Capture.FrameRate <= 0 {
		return fmt.Errorf("capture.frame_rate must be positive")
	}
	if c.Capture.FrameWidth < 1 || c.Capture.FrameHeight < 1 {
		return fmt.Errorf("capture frame dimensions must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
