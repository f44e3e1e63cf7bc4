// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package detect

import (
	"context"
	"sync"

	"github.com/absmach/framestream/capture"
	"github.com/absmach/framestream/codec"
)

// Motion detection defaults.
const (
	DefaultDiffThreshold    = 25
	DefaultMinChangedPixels = 500
)

// MotionConfig configures the frame-differencing detector.
type MotionConfig struct {
	// DiffThreshold is the per-pixel luminance delta counted as changed.
	DiffThreshold uint8

	// MinChangedPixels is the changed-pixel count above which motion is
	// reported.
	MinChangedPixels int
}

// Motion detects movement by differencing each frame against the previous
// frame of the same source. The first frame of a source establishes the
// baseline and reports no motion. The previous-frame state makes results
// order-sensitive under redelivery; sinks deduplicate on
// (source, sequence, attempt), so a recomputed detection is harmless.
type Motion struct {
	cfg MotionConfig

	mu   sync.Mutex
	prev map[string]capture.RawFrame
}

// NewMotion creates a motion detector.
func NewMotion(cfg MotionConfig) *Motion {
	if cfg.DiffThreshold == 0 {
		cfg.DiffThreshold = DefaultDiffThreshold
	}
	if cfg.MinChangedPixels == 0 {
		cfg.MinChangedPixels = DefaultMinChangedPixels
	}

	return &Motion{
		cfg:  cfg,
		prev: make(map[string]capture.RawFrame),
	}
}

// Detect compares the frame against the previous frame of its source and
// reports a single bounding box around the changed region when enough
// pixels moved. A malformed pixel payload is a permanent failure.
func (m *Motion) Detect(ctx context.Context, f codec.Frame) ([]codec.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, TransientError(err)
	}

	cur, err := capture.DecodePayload(f.Payload)
	if err != nil {
		return nil, PermanentError(err)
	}

	m.mu.Lock()
	prev, ok := m.prev[f.SourceID]
	m.prev[f.SourceID] = cur
	m.mu.Unlock()

	if !ok || prev.Width != cur.Width || prev.Height != cur.Height {
		// No comparable baseline yet.
		return nil, nil
	}

	changed := 0
	minX, minY := cur.Width, cur.Height
	maxX, maxY := -1, -1

	for y := 0; y < cur.Height; y++ {
		row := y * cur.Width
		for x := 0; x < cur.Width; x++ {
			d := absDiff(cur.Pixels[row+x], prev.Pixels[row+x])
			if d <= m.cfg.DiffThreshold {
				continue
			}
			changed++
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if changed <= m.cfg.MinChangedPixels {
		return nil, nil
	}

	box := codec.Box{
		Label:      "motion",
		Confidence: confidence(changed, m.cfg.MinChangedPixels),
		X:          uint32(minX),
		Y:          uint32(minY),
		Width:      uint32(maxX - minX + 1),
		Height:     uint32(maxY - minY + 1),
	}
	return []codec.Box{box}, nil
}

func absDiff(a, b byte) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// confidence maps changed-pixel intensity onto [0, 1]: the threshold maps
// to 0.5 and four times the threshold saturates at 1.
func confidence(changed, minPixels int) float64 {
	c := 0.5 + 0.5*float64(changed-minPixels)/float64(3*minPixels)
	if c > 1 {
		return 1
	}
	return c
}
