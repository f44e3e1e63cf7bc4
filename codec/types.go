// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import "time"

// Frame is one unit of captured video data plus identifying metadata.
// Frames are immutable value records: once created they are never mutated,
// only copied.
type Frame struct {
	// SourceID identifies the originating capture stream.
	SourceID string

	// Sequence is monotonically increasing per source, assigned at capture
	// time and never reused. Gaps signal lossy backpressure, not corruption;
	// a decrease signals a protocol violation.
	Sequence uint64

	// CapturedAt is the acquisition timestamp on the producer clock.
	CapturedAt time.Time

	// Payload holds encoded image bytes, opaque to the transport layer.
	Payload []byte
}

// Box is a single bounding region produced by a detector.
type Box struct {
	Label      string
	Confidence float64 // in [0, 1]
	X, Y       uint32
	Width      uint32
	Height     uint32
}

// Detection is the result of running a detector over one frame. A Detection
// with zero boxes is valid (no objects found) and distinct from a failed
// detection, which never produces a Detection record.
type Detection struct {
	// SourceID and FrameSequence back-reference the originating Frame.
	// They are used for correlation only.
	SourceID      string
	FrameSequence uint64

	// Attempt is the delivery attempt that produced this detection. Sinks
	// may use (SourceID, FrameSequence, Attempt) for deduplication.
	Attempt int

	Boxes       []Box
	ProcessedAt time.Time
}

// CompressionType selects payload compression on the wire.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota // No compression
	CompressionS2                          // S2 (Snappy-compatible, fastest)
	CompressionZstd                        // Zstd (best compression ratio)
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionS2:
		return "s2"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}
