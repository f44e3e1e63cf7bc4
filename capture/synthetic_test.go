// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticBoundedStream(t *testing.T) {
	src := NewSynthetic(SyntheticConfig{
		Width:      64,
		Height:     48,
		FrameRate:  1000,
		FrameCount: 3,
	})
	defer src.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Len(t, f.Pixels, 64*48)
		assert.Equal(t, 64, f.Width)
		assert.Equal(t, 48, f.Height)
		assert.False(t, f.CapturedAt.IsZero())
	}

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, EndOfStream)
}

func TestSyntheticConsecutiveFramesDiffer(t *testing.T) {
	src := NewSynthetic(SyntheticConfig{Width: 64, Height: 48, FrameRate: 1000})
	defer src.Close()

	a, err := src.Next(context.Background())
	require.NoError(t, err)
	b, err := src.Next(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, a.Pixels, b.Pixels)
}

func TestSyntheticRespectsCancellation(t *testing.T) {
	// 1 fps: after the first immediate frame, the next would block ~1s.
	src := NewSynthetic(SyntheticConfig{Width: 8, Height: 8, FrameRate: 1})
	defer src.Close()

	_, err := src.Next(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSyntheticClosed(t *testing.T) {
	src := NewSynthetic(SyntheticConfig{Width: 8, Height: 8, FrameRate: 1000})
	require.NoError(t, src.Close())

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, EndOfStream)
}
