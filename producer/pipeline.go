// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package producer pulls frames from a capture source, encodes them, and
// publishes them to the frame queue with confirmed delivery. Backpressure
// is deliberately lossy: a bounded ring between capture and publish drops
// the oldest unpublished frame when full, valuing freshness over
// completeness. Sequence numbers are assigned at capture time and never
// renumbered, so consumers see drops as sequence gaps, not errors.
package producer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/absmach/framestream/capture"
	"github.com/absmach/framestream/codec"
	otelmetrics "github.com/absmach/framestream/server/otel"
)

// Publisher is the confirmed-publish capability the pipeline needs; the
// channel client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload []byte) error
	IsConnected() bool
}

// Config holds producer pipeline settings.
type Config struct {
	SourceID string
	Queue    string

	// QueueCapacity bounds buffered, unpublished frames.
	QueueCapacity int

	// MaxPublishRetries bounds publish attempts per frame beyond the
	// first one.
	MaxPublishRetries int
	PublishBackoff    time.Duration
	MaxPublishWait    time.Duration
	PublishTimeout    time.Duration

	// DrainTimeout bounds how long shutdown waits for buffered frames.
	DrainTimeout time.Duration

	// RestartBackoff is the delay before retrying a failed capture source.
	RestartBackoff time.Duration

	// Circuit breaker over broker publishes.
	BreakerFailures uint32
	BreakerReset    time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueCapacity < 1 {
		c.QueueCapacity = 64
	}
	if c.PublishBackoff <= 0 {
		c.PublishBackoff = 250 * time.Millisecond
	}
	if c.MaxPublishWait <= 0 {
		c.MaxPublishWait = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = 30 * time.Second
	}
}

// Stats exposes producer counters.
type Stats struct {
	Captured        uint64
	Published       uint64
	Dropped         uint64 // backpressure evictions
	PublishDropped  uint64 // retries exhausted
	PublishFailures uint64 // individual failed attempts
	CaptureFailures uint64
}

// Pipeline is the producer pipeline. Capture and publish run as
// independent flows joined only by the drop-oldest ring, so a broker stall
// never blocks the capture device.
type Pipeline struct {
	cfg       Config
	source    capture.Source
	codec     *codec.Codec
	publisher Publisher
	logger    *slog.Logger
	metrics   *otelmetrics.Metrics // nil if metrics disabled

	ring    *ring
	breaker *gobreaker.CircuitBreaker

	sequence uint64

	captured        atomic.Uint64
	published       atomic.Uint64
	dropped         atomic.Uint64
	publishDropped  atomic.Uint64
	publishFailures atomic.Uint64
	captureFailures atomic.Uint64

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a producer pipeline.
func New(cfg Config, source capture.Source, c *codec.Codec, publisher Publisher, logger *slog.Logger, metrics *otelmetrics.Metrics) *Pipeline {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "publish-" + cfg.Queue,
		Timeout: cfg.BreakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
	})

	return &Pipeline{
		cfg:       cfg,
		source:    source,
		codec:     c,
		publisher: publisher,
		logger:    logger.With("source", cfg.SourceID),
		metrics:   metrics,
		ring:      newRing(cfg.QueueCapacity),
		breaker:   breaker,
	}
}

// Run drives the pipeline until ctx is cancelled or the source ends. On
// cancellation capture stops first, then buffered frames are drained within
// DrainTimeout; whatever remains is dropped and counted.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.running.Swap(true) {
		return errors.New("producer already running")
	}
	defer p.running.Store(false)

	captureDone := make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(captureDone)
		p.captureLoop(ctx)
	}()

	p.publishLoop(ctx, captureDone)
	p.wg.Wait()
	return nil
}

// Connected reports whether the pipeline holds a live broker connection.
func (p *Pipeline) Connected() bool {
	return p.publisher.IsConnected()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Captured:        p.captured.Load(),
		Published:       p.published.Load(),
		Dropped:         p.dropped.Load(),
		PublishDropped:  p.publishDropped.Load(),
		PublishFailures: p.publishFailures.Load(),
		CaptureFailures: p.captureFailures.Load(),
	}
}

// captureLoop pulls frames one at a time, assigns sequence numbers, encodes
// and buffers them. A capture failure backs off and retries; it never
// crashes the pipeline.
func (p *Pipeline) captureLoop(ctx context.Context) {
	for {
		raw, err := p.source.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, capture.EndOfStream):
			p.logger.Info("capture source ended", "frames", p.captured.Load())
			return
		case ctx.Err() != nil:
			return
		default:
			p.captureFailures.Add(1)
			p.metrics.RecordCaptureError(p.cfg.SourceID)
			p.logger.Warn("capture failed, restarting", "error", err)
			if !sleepCtx(ctx, p.cfg.RestartBackoff) {
				return
			}
			continue
		}

		p.sequence++
		frame := codec.Frame{
			SourceID:   p.cfg.SourceID,
			Sequence:   p.sequence,
			CapturedAt: raw.CapturedAt,
			Payload:    capture.EncodePayload(raw),
		}

		data, err := p.codec.EncodeFrame(frame)
		if err != nil {
			// Encode failures mean a bug in frame construction; the
			// sequence number stays consumed.
			p.logger.Error("frame encode failed", "sequence", frame.Sequence, "error", err)
			continue
		}

		p.captured.Add(1)
		p.metrics.RecordFrameCaptured(p.cfg.SourceID)

		if evicted, dropped := p.ring.offer(entry{sequence: frame.Sequence, data: data}); dropped {
			p.dropped.Add(1)
			p.metrics.RecordFrameDropped(p.cfg.SourceID, "backpressure")
			p.logger.Debug("dropped oldest buffered frame", "sequence", evicted.sequence)
		}
	}
}

// publishLoop drains the ring. It keeps publishing while the context is
// live, then hands everything still buffered to the drain pass, which runs
// under its own deadline.
func (p *Pipeline) publishLoop(ctx context.Context, captureDone <-chan struct{}) {
	capCh := captureDone
	for {
		if ctx.Err() != nil {
			p.drain(captureDone)
			return
		}
		if e, ok := p.ring.take(); ok {
			if !p.publishWithRetry(ctx, e) && ctx.Err() != nil {
				// Interrupted mid-retry, not exhausted: back into the
				// ring for the drain pass.
				if evicted, dropped := p.ring.offer(e); dropped {
					p.dropped.Add(1)
					p.metrics.RecordFrameDropped(p.cfg.SourceID, "backpressure")
					p.logger.Debug("dropped oldest buffered frame", "sequence", evicted.sequence)
				}
			}
			continue
		}
		if capCh == nil {
			// Source ended and the ring is empty.
			return
		}

		select {
		case <-ctx.Done():
			p.drain(captureDone)
			return
		case <-capCh:
			capCh = nil
		case <-p.ring.wait():
		}
	}
}

// drain publishes buffered frames after cancellation, bounded by
// DrainTimeout. Frames still buffered at the deadline are dropped and
// counted.
func (p *Pipeline) drain(captureDone <-chan struct{}) {
	<-captureDone

	drainCtx, cancel := context.WithTimeout(context.Background(), p.cfg.DrainTimeout)
	defer cancel()

	for {
		e, ok := p.ring.take()
		if !ok {
			return
		}
		if drainCtx.Err() != nil {
			p.publishDropped.Add(1)
			p.metrics.RecordFrameDropped(p.cfg.SourceID, "drain_deadline")
			continue
		}
		if !p.publishWithRetry(drainCtx, e) && drainCtx.Err() != nil {
			// The deadline cut this frame's retries short.
			p.publishDropped.Add(1)
			p.metrics.RecordFrameDropped(p.cfg.SourceID, "drain_deadline")
		}
	}
}

// publishWithRetry publishes one frame with bounded retries and exponential
// backoff, reporting whether it was delivered. The circuit breaker fails
// fast while the broker is down so the retry budget is not burned per
// frame. Exhausting the retry budget drops the frame; a cancelled context
// leaves it uncounted so the caller can hand it to the drain pass. A
// dropped frame's sequence number is never reused.
func (p *Pipeline) publishWithRetry(ctx context.Context, e entry) bool {
	delay := p.cfg.PublishBackoff

	for attempt := 0; attempt <= p.cfg.MaxPublishRetries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, delay) {
				return false
			}
			delay *= 2
			if delay > p.cfg.MaxPublishWait {
				delay = p.cfg.MaxPublishWait
			}
		}

		start := time.Now()
		_, err := p.breaker.Execute(func() (any, error) {
			pubCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
			defer cancel()
			return nil, p.publisher.Publish(pubCtx, p.cfg.Queue, e.data)
		})
		if err == nil {
			p.published.Add(1)
			p.metrics.RecordFramePublished(p.cfg.SourceID, float64(time.Since(start).Milliseconds()))
			return true
		}

		p.publishFailures.Add(1)
		p.metrics.RecordPublishFailure(p.cfg.SourceID)
		p.logger.Warn("publish failed", "sequence", e.sequence, "attempt", attempt+1, "error", err)

		if ctx.Err() != nil {
			return false
		}
	}

	p.publishDropped.Add(1)
	p.metrics.RecordFrameDropped(p.cfg.SourceID, "retries_exhausted")
	p.logger.Error("frame dropped after exhausting publish retries", "sequence", e.sequence)
	return false
}

// sleepCtx sleeps for d unless ctx ends first; it reports whether the full
// sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
