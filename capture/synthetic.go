// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// SyntheticConfig configures a synthetic test-pattern source.
type SyntheticConfig struct {
	Width      int
	Height     int
	FrameRate  float64 // Frames per second
	FrameCount int     // 0 means unbounded
}

// Synthetic emits a moving-block test pattern at a fixed frame rate,
// emulating a camera that produces frames whether or not anyone is ready
// for them. The block shifts every frame so consecutive frames always
// differ, which gives motion detectors something to find.
type Synthetic struct {
	cfg     SyntheticConfig
	limiter *rate.Limiter
	emitted int
	closed  bool
}

// NewSynthetic creates a synthetic source.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.Width <= 0 {
		cfg.Width = 320
	}
	if cfg.Height <= 0 {
		cfg.Height = 240
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 15
	}

	return &Synthetic{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.FrameRate), 1),
	}
}

// Next blocks until the frame-rate limiter releases the next frame.
func (s *Synthetic) Next(ctx context.Context) (RawFrame, error) {
	if s.closed {
		return RawFrame{}, EndOfStream
	}
	if s.cfg.FrameCount > 0 && s.emitted >= s.cfg.FrameCount {
		return RawFrame{}, EndOfStream
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return RawFrame{}, ctx.Err()
	}

	f := RawFrame{
		Pixels:     s.render(s.emitted),
		Width:      s.cfg.Width,
		Height:     s.cfg.Height,
		CapturedAt: time.Now(),
	}
	s.emitted++
	return f, nil
}

// Close stops the source; subsequent Next calls return EndOfStream.
func (s *Synthetic) Close() error {
	s.closed = true
	return nil
}

// render draws a bright 32x32 block on a dark background, shifted by frame
// index so consecutive frames differ.
func (s *Synthetic) render(n int) []byte {
	const block = 32
	w, h := s.cfg.Width, s.cfg.Height
	pixels := make([]byte, w*h)

	x0 := (n * 8) % max(w-block, 1)
	y0 := (n * 4) % max(h-block, 1)

	for y := y0; y < y0+block && y < h; y++ {
		for x := x0; x < x0+block && x < w; x++ {
			pixels[y*w+x] = 0xFF
		}
	}
	return pixels
}
