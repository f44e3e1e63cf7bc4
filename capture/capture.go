// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package capture defines the frame acquisition contract consumed by the
// producer pipeline. Capture devices are real-time sources that cannot be
// paused; the pipeline must never hold one up for more than a frame's worth
// of latency.
package capture

import (
	"context"
	"errors"
	"time"
)

// EndOfStream is returned by Next when the source has no more frames.
// It marks normal termination, not a failure.
var EndOfStream = errors.New("end of stream")

// RawFrame is one frame as delivered by a capture device: 8-bit grayscale
// pixels in row-major order.
type RawFrame struct {
	Pixels     []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Source delivers frames from one capture stream.
type Source interface {
	// Next blocks until the next frame is available, the source ends
	// (EndOfStream), or ctx is cancelled. Any other error is a capture
	// failure; the caller may retry after a restart backoff.
	Next(ctx context.Context) (RawFrame, error)

	// Close releases the underlying device.
	Close() error
}
