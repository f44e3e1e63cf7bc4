// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the frame pipeline.
// All record methods are safe on a nil receiver so callers need no guards
// when metrics are disabled.
type Metrics struct {
	meter metric.Meter

	// Counters
	framesCaptured     metric.Int64Counter
	framesPublished    metric.Int64Counter
	framesDropped      metric.Int64Counter
	publishFailures    metric.Int64Counter
	framesDeadLettered metric.Int64Counter
	framesRequeued     metric.Int64Counter
	redeliveries       metric.Int64Counter
	detectionsEmitted  metric.Int64Counter
	captureErrors      metric.Int64Counter

	// Histograms
	publishDuration metric.Float64Histogram
	detectDuration  metric.Float64Histogram
}

// NewMetrics creates a Metrics instance with all instruments initialized.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("framestream"),
	}

	var err error

	m.framesCaptured, err = m.meter.Int64Counter(
		"framestream.frames.captured.total",
		metric.WithDescription("Total frames pulled from capture sources"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create framesCaptured counter: %w", err)
	}

	m.framesPublished, err = m.meter.Int64Counter(
		"framestream.frames.published.total",
		metric.WithDescription("Total frames confirmed into the broker"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create framesPublished counter: %w", err)
	}

	m.framesDropped, err = m.meter.Int64Counter(
		"framestream.frames.dropped.total",
		metric.WithDescription("Total frames dropped by backpressure or exhausted publish retries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create framesDropped counter: %w", err)
	}

	m.publishFailures, err = m.meter.Int64Counter(
		"framestream.publish.failures.total",
		metric.WithDescription("Total failed publish attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publishFailures counter: %w", err)
	}

	m.framesDeadLettered, err = m.meter.Int64Counter(
		"framestream.frames.deadlettered.total",
		metric.WithDescription("Total frames removed from processing after permanent failure"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create framesDeadLettered counter: %w", err)
	}

	m.framesRequeued, err = m.meter.Int64Counter(
		"framestream.frames.requeued.total",
		metric.WithDescription("Total frames returned to the broker for redelivery"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create framesRequeued counter: %w", err)
	}

	m.redeliveries, err = m.meter.Int64Counter(
		"framestream.frames.redelivered.total",
		metric.WithDescription("Total deliveries seen with attempt count above one"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redeliveries counter: %w", err)
	}

	m.detectionsEmitted, err = m.meter.Int64Counter(
		"framestream.detections.emitted.total",
		metric.WithDescription("Total detections handed to the result sink"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create detectionsEmitted counter: %w", err)
	}

	m.captureErrors, err = m.meter.Int64Counter(
		"framestream.capture.errors.total",
		metric.WithDescription("Total capture source failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create captureErrors counter: %w", err)
	}

	m.publishDuration, err = m.meter.Float64Histogram(
		"framestream.publish.duration.ms",
		metric.WithDescription("Confirmed publish duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publishDuration histogram: %w", err)
	}

	m.detectDuration, err = m.meter.Float64Histogram(
		"framestream.detect.duration.ms",
		metric.WithDescription("Detection duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create detectDuration histogram: %w", err)
	}

	return m, nil
}

// RecordFrameCaptured records one frame pulled from a source.
func (m *Metrics) RecordFrameCaptured(source string) {
	if m == nil {
		return
	}
	m.framesCaptured.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}

// RecordFramePublished records one confirmed publish and its duration.
func (m *Metrics) RecordFramePublished(source string, durationMs float64) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.framesPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
	m.publishDuration.Record(ctx, durationMs)
}

// RecordFrameDropped records a dropped frame by reason
// (backpressure, retries_exhausted, drain_deadline).
func (m *Metrics) RecordFrameDropped(source, reason string) {
	if m == nil {
		return
	}
	m.framesDropped.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("reason", reason),
	))
}

// RecordPublishFailure records one failed publish attempt.
func (m *Metrics) RecordPublishFailure(source string) {
	if m == nil {
		return
	}
	m.publishFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}

// RecordDeadLetter records a message removed from processing by reason
// (decode, detection, attempts_exhausted).
func (m *Metrics) RecordDeadLetter(reason string) {
	if m == nil {
		return
	}
	m.framesDeadLettered.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordRequeue records a message returned to the broker for another attempt.
func (m *Metrics) RecordRequeue() {
	if m == nil {
		return
	}
	m.framesRequeued.Add(context.Background(), 1)
}

// RecordRedelivery records a delivery whose attempt count is above one.
func (m *Metrics) RecordRedelivery() {
	if m == nil {
		return
	}
	m.redeliveries.Add(context.Background(), 1)
}

// RecordDetectionEmitted records a detection handed to the sink and the
// detect duration.
func (m *Metrics) RecordDetectionEmitted(source string, boxes int, durationMs float64) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.detectionsEmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Int("boxes", boxes),
	))
	m.detectDuration.Record(ctx, durationMs)
}

// RecordCaptureError records a capture source failure.
func (m *Metrics) RecordCaptureError(source string) {
	if m == nil {
		return
	}
	m.captureErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}
