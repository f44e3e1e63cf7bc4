// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Broker.Address != "localhost:5672" {
		t.Errorf("expected default broker address localhost:5672, got %s", cfg.Broker.Address)
	}
	if cfg.Broker.FramesQueue != "frames" {
		t.Errorf("expected default frames queue, got %s", cfg.Broker.FramesQueue)
	}
	if cfg.Producer.QueueCapacity != 64 {
		t.Errorf("expected queue capacity 64, got %d", cfg.Producer.QueueCapacity)
	}
	if cfg.Consumer.PrefetchLimit != 4 {
		t.Errorf("expected prefetch limit 4, got %d", cfg.Consumer.PrefetchLimit)
	}
	if cfg.Consumer.MaxAttempts != 3 {
		t.Errorf("expected max attempts 3, got %d", cfg.Consumer.MaxAttempts)
	}
	if cfg.Broker.ReconnectBackoff != time.Second {
		t.Errorf("expected reconnect backoff 1s, got %v", cfg.Broker.ReconnectBackoff)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty broker address",
			modify: func(c *Config) {
				c.Broker.Address = ""
			},
			wantErr: true,
		},
		{
			name: "empty frames queue",
			modify: func(c *Config) {
				c.Broker.FramesQueue = ""
			},
			wantErr: true,
		},
		{
			name: "TLS without cert",
			modify: func(c *Config) {
				c.Broker.TLSEnabled = true
			},
			wantErr: true,
		},
		{
			name: "zero queue capacity",
			modify: func(c *Config) {
				c.Producer.QueueCapacity = 0
			},
			wantErr: true,
		},
		{
			name: "zero prefetch limit",
			modify: func(c *Config) {
				c.Consumer.PrefetchLimit = 0
			},
			wantErr: true,
		},
		{
			name: "zero max attempts",
			modify: func(c *Config) {
				c.Consumer.MaxAttempts = 0
			},
			wantErr: true,
		},
		{
			name: "unknown compression",
			modify: func(c *Config) {
				c.Producer.Compression = "lzma"
			},
			wantErr: true,
		},
		{
			name: "negative frame rate",
			modify: func(c *Config) {
				c.Capture.FrameRate = -1
			},
			wantErr: true,
		},
		{
			name: "bad log level",
			modify: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Broker.Address != Default().Broker.Address {
		t.Errorf("expected defaults for missing file")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	data := []byte(`
broker:
  address: rabbit:5672
  frames_queue: cam-frames
consumer:
  prefetch_limit: 8
`)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Broker.Address != "rabbit:5672" {
		t.Errorf("expected overridden address, got %s", cfg.Broker.Address)
	}
	if cfg.Broker.FramesQueue != "cam-frames" {
		t.Errorf("expected overridden queue, got %s", cfg.Broker.FramesQueue)
	}
	if cfg.Consumer.PrefetchLimit != 8 {
		t.Errorf("expected overridden prefetch, got %d", cfg.Consumer.PrefetchLimit)
	}
	// Untouched fields keep defaults.
	if cfg.Consumer.MaxAttempts != 3 {
		t.Errorf("expected default max attempts, got %d", cfg.Consumer.MaxAttempts)
	}
}

func TestLoadInvalidConfigRejected(t *testing.T) {
	data := []byte(`
consumer:
  prefetch_limit: 0
`)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}
