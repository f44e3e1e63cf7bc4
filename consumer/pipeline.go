// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package consumer subscribes to the frame queue, decodes and runs
// detection over each delivery, and finalizes it with exactly one ack or
// nack. Processing is at-least-once: the frame is acked only after its
// detection is durably handed to the result sink, so a crash between
// detect and ack costs a recomputation, never a lost result. Failure
// isolation is per delivery: decode failures dead-letter immediately,
// transient detection failures requeue until the attempt budget runs out.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/framestream/codec"
	"github.com/absmach/framestream/detect"
	otelmetrics "github.com/absmach/framestream/server/otel"
	"github.com/absmach/framestream/sink"
)

// Config holds consumer pipeline settings.
type Config struct {
	Queue string

	// PrefetchLimit bounds both broker in-flight count and local worker
	// concurrency; it must match the channel client's prefetch.
	PrefetchLimit int

	// MaxAttempts bounds redelivery before dead-lettering.
	MaxAttempts int

	// ShutdownTimeout bounds how long shutdown waits for in-flight
	// deliveries; past the deadline they are abandoned to the broker for
	// redelivery.
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.PrefetchLimit < 1 {
		c.PrefetchLimit = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Stats exposes consumer counters.
type Stats struct {
	Received           uint64
	Acked              uint64
	Requeued           uint64
	DeadLettered       uint64
	DecodeFailures     uint64
	DetectionFailures  uint64
	DetectionsEmitted  uint64
	ProtocolViolations uint64
}

// Pipeline is the consumer pipeline. Each delivery runs end-to-end
// (decode, detect, finalize) on one of PrefetchLimit worker slots; one
// slot's blocking detect never stalls a sibling.
type Pipeline struct {
	cfg        Config
	subscriber Subscriber
	codec      *codec.Codec
	detector   detect.Detector
	sink       sink.Sink
	logger     *slog.Logger
	metrics    *otelmetrics.Metrics // nil if metrics disabled

	slots chan struct{}
	wg    sync.WaitGroup

	// workCtx governs in-flight processing; it outlives the run context
	// so the current batch can drain, and is cancelled at the shutdown
	// deadline.
	workCtx    context.Context
	workCancel context.CancelFunc

	seqMu   sync.Mutex
	lastSeq map[string]uint64

	received           atomic.Uint64
	acked              atomic.Uint64
	requeued           atomic.Uint64
	deadLettered       atomic.Uint64
	decodeFailures     atomic.Uint64
	detectionFailures  atomic.Uint64
	detectionsEmitted  atomic.Uint64
	protocolViolations atomic.Uint64

	running atomic.Bool
}

// New creates a consumer pipeline.
func New(cfg Config, subscriber Subscriber, c *codec.Codec, detector detect.Detector, s sink.Sink, logger *slog.Logger, metrics *otelmetrics.Metrics) *Pipeline {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:        cfg,
		subscriber: subscriber,
		codec:      c,
		detector:   detector,
		sink:       s,
		logger:     logger.With("queue", cfg.Queue),
		metrics:    metrics,
		slots:      make(chan struct{}, cfg.PrefetchLimit),
		lastSeq:    make(map[string]uint64),
	}
}

// Run subscribes and processes deliveries until ctx is cancelled, then
// drains in-flight work within ShutdownTimeout. Deliveries still in flight
// at the deadline are cancelled; their workers nack with requeue so the
// broker redelivers them to a future instance.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.running.Swap(true) {
		return errors.New("consumer already running")
	}
	defer p.running.Store(false)

	p.workCtx, p.workCancel = context.WithCancel(context.Background())
	defer p.workCancel()

	if err := p.subscriber.Subscribe(p.cfg.Queue, p.handle); err != nil {
		return err
	}

	<-ctx.Done()

	if err := p.subscriber.Unsubscribe(p.cfg.Queue); err != nil {
		p.logger.Warn("unsubscribe failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownTimeout):
		p.logger.Warn("shutdown deadline elapsed, abandoning in-flight deliveries")
		p.workCancel()
		<-done
	}
	return nil
}

// Connected reports whether the pipeline holds a live broker connection.
func (p *Pipeline) Connected() bool {
	return p.subscriber.IsConnected()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:           p.received.Load(),
		Acked:              p.acked.Load(),
		Requeued:           p.requeued.Load(),
		DeadLettered:       p.deadLettered.Load(),
		DecodeFailures:     p.decodeFailures.Load(),
		DetectionFailures:  p.detectionFailures.Load(),
		DetectionsEmitted:  p.detectionsEmitted.Load(),
		ProtocolViolations: p.protocolViolations.Load(),
	}
}

// handle admits one delivery into a worker slot. The broker already bounds
// in-flight deliveries to the prefetch limit; the slot semaphore keeps
// local concurrency at the same bound.
func (p *Pipeline) handle(d Delivery) {
	p.slots <- struct{}{}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		p.process(p.workCtx, d)
	}()
}

// process runs one delivery end-to-end: decode, detect, emit, finalize.
func (p *Pipeline) process(ctx context.Context, d Delivery) {
	p.received.Add(1)

	attempt := d.Attempt()
	if attempt > 1 {
		p.metrics.RecordRedelivery()
	}

	frame, err := p.codec.DecodeFrame(d.Body())
	if err != nil {
		// Permanent: the payload will never decode. Dead-letter, never
		// requeue.
		p.decodeFailures.Add(1)
		p.deadLettered.Add(1)
		p.metrics.RecordDeadLetter("decode")
		p.logger.Error("frame decode failed, dead-lettering", "error", err)
		p.finalize(d.Nack(false))
		return
	}

	p.checkSequence(frame, d.Redelivered())

	start := time.Now()
	boxes, err := p.detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown abandoned this delivery before detection could run
			// to completion. That is not a detection attempt; hand the
			// frame back to the broker whatever the attempt budget says.
			p.requeued.Add(1)
			p.metrics.RecordRequeue()
			p.logger.Info("abandoning in-flight delivery at shutdown",
				"source", frame.SourceID, "sequence", frame.Sequence, "attempt", attempt)
			p.finalize(d.Nack(true))
			return
		}

		p.detectionFailures.Add(1)
		if detect.IsTransient(err) && attempt < p.cfg.MaxAttempts {
			p.requeued.Add(1)
			p.metrics.RecordRequeue()
			p.logger.Warn("detection failed, requeueing",
				"source", frame.SourceID, "sequence", frame.Sequence,
				"attempt", attempt, "error", err)
			p.finalize(d.Nack(true))
			return
		}

		reason := "detection"
		if detect.IsTransient(err) {
			reason = "attempts_exhausted"
		}
		p.deadLettered.Add(1)
		p.metrics.RecordDeadLetter(reason)
		p.logger.Error("detection failed, dead-lettering",
			"source", frame.SourceID, "sequence", frame.Sequence,
			"attempt", attempt, "reason", reason, "error", err)
		p.finalize(d.Nack(false))
		return
	}

	det := codec.Detection{
		SourceID:      frame.SourceID,
		FrameSequence: frame.Sequence,
		Attempt:       attempt,
		Boxes:         boxes,
		ProcessedAt:   time.Now().UTC(),
	}

	// Ack strictly after the sink accepts the detection. A sink failure
	// requeues the frame: recomputation is cheaper than a lost result.
	if err := p.sink.Emit(ctx, det); err != nil {
		p.requeued.Add(1)
		p.metrics.RecordRequeue()
		p.logger.Warn("sink rejected detection, requeueing",
			"source", frame.SourceID, "sequence", frame.Sequence, "error", err)
		p.finalize(d.Nack(true))
		return
	}

	p.detectionsEmitted.Add(1)
	p.metrics.RecordDetectionEmitted(frame.SourceID, len(det.Boxes), float64(time.Since(start).Milliseconds()))
	p.acked.Add(1)
	p.finalize(d.Ack())
}

// checkSequence flags per-source sequence regressions on first deliveries.
// Redeliveries legitimately arrive out of order and are filtered out; gaps
// are expected lossy backpressure and pass silently.
func (p *Pipeline) checkSequence(f codec.Frame, redelivered bool) {
	if redelivered {
		return
	}

	p.seqMu.Lock()
	last, ok := p.lastSeq[f.SourceID]
	if !ok || f.Sequence > last {
		p.lastSeq[f.SourceID] = f.Sequence
	}
	p.seqMu.Unlock()

	if ok && f.Sequence < last {
		p.protocolViolations.Add(1)
		p.logger.Warn("sequence regression on first delivery",
			"source", f.SourceID, "sequence", f.Sequence, "last", last)
	}
}

// finalize logs a failed ack/nack; the broker will redeliver on connection
// loss, so there is nothing else to do.
func (p *Pipeline) finalize(err error) {
	if err != nil {
		p.logger.Warn("delivery finalization failed", "error", err)
	}
}
