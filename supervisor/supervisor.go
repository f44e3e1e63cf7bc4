// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package supervisor owns pipeline lifecycles: it starts pipelines
// independently, exposes a liveness signal for the health server, and
// stops pipelines in registration order so producers drain before
// consumers release their deliveries.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pipeline is anything the supervisor can run: producer and consumer
// pipelines both satisfy it.
type Pipeline interface {
	// Run blocks until ctx is cancelled or the pipeline fails.
	Run(ctx context.Context) error
	// Connected reports whether the pipeline holds a live broker
	// connection.
	Connected() bool
}

type member struct {
	name     string
	pipeline Pipeline
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// Supervisor runs registered pipelines and reports their collective
// health.
type Supervisor struct {
	logger *slog.Logger

	mu      sync.Mutex
	members []*member

	running atomic.Bool
	failed  atomic.Bool
}

// New creates an empty supervisor. Register pipelines with Add before
// calling Run.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{logger: logger}
}

// Add registers a pipeline. Registration order is shutdown order: add
// the producer before the consumer so capture stops and the ring drains
// before in-flight deliveries are released.
func (s *Supervisor) Add(name string, p Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append(s.members, &member{name: name, pipeline: p})
}

// Run starts every registered pipeline and blocks until ctx is
// cancelled or a pipeline fails. On cancellation it stops pipelines one
// at a time in registration order, waiting for each to finish before
// stopping the next. A pipeline failure stops the remaining pipelines
// and is returned to the caller.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.running.Swap(true) {
		return errors.New("supervisor already running")
	}
	defer s.running.Store(false)

	s.mu.Lock()
	members := append([]*member(nil), s.members...)
	s.mu.Unlock()

	if len(members) == 0 {
		return errors.New("no pipelines registered")
	}

	failure := make(chan *member, len(members))
	for _, m := range members {
		runCtx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.done = make(chan struct{})

		go func(m *member) {
			defer close(m.done)
			s.logger.Info("pipeline started", "pipeline", m.name)
			if err := m.pipeline.Run(runCtx); err != nil {
				m.err = err
				s.failed.Store(true)
				s.logger.Error("pipeline failed", "pipeline", m.name, "error", err)
				failure <- m
				return
			}
			s.logger.Info("pipeline stopped", "pipeline", m.name)
		}(m)
	}

	var firstErr error
	select {
	case <-ctx.Done():
	case m := <-failure:
		firstErr = m.err
	}

	for _, m := range members {
		m.cancel()
		<-m.done
		if firstErr == nil {
			firstErr = m.err
		}
	}
	return firstErr
}

// Healthy reports liveness: the supervisor is running and no pipeline
// has failed.
func (s *Supervisor) Healthy() bool {
	return s.running.Load() && !s.failed.Load()
}

// Ready reports readiness: every registered pipeline holds a live
// broker connection.
func (s *Supervisor) Ready() bool {
	if !s.Healthy() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if !m.pipeline.Connected() {
			return false
		}
	}
	return len(s.members) > 0
}

// Connector abstracts the broker client's connect call so startup
// retries can be tested without a broker.
type Connector interface {
	Connect() error
}

// ConnectWithBackoff dials the broker, retrying with exponential
// backoff until the connection succeeds or ctx is cancelled. The broker
// being down at process start is an operational condition, not an
// error.
func ConnectWithBackoff(ctx context.Context, c Connector, backoff, maxWait time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	if maxWait < backoff {
		maxWait = backoff
	}

	delay := backoff
	for {
		err := c.Connect()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("broker connect failed, retrying", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxWait {
			delay = maxWait
		}
	}
}
