// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/framestream/capture"
	"github.com/absmach/framestream/codec"
)

func frameWithBlock(t *testing.T, seq uint64, w, h, x0, y0, size int) codec.Frame {
	t.Helper()
	pixels := make([]byte, w*h)
	for y := y0; y < y0+size && y < h; y++ {
		for x := x0; x < x0+size && x < w; x++ {
			pixels[y*w+x] = 0xFF
		}
	}
	return codec.Frame{
		SourceID:   "cam0",
		Sequence:   seq,
		CapturedAt: time.Now(),
		Payload:    capture.EncodePayload(capture.RawFrame{Pixels: pixels, Width: w, Height: h}),
	}
}

func TestMotionFirstFrameIsBaseline(t *testing.T) {
	m := NewMotion(MotionConfig{})

	boxes, err := m.Detect(context.Background(), frameWithBlock(t, 1, 64, 64, 0, 0, 32))
	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestMotionDetectsMovedBlock(t *testing.T) {
	m := NewMotion(MotionConfig{DiffThreshold: 25, MinChangedPixels: 500})

	_, err := m.Detect(context.Background(), frameWithBlock(t, 1, 64, 64, 0, 0, 32))
	require.NoError(t, err)

	// 32x32 block moved fully out of overlap: 2048 changed pixels.
	boxes, err := m.Detect(context.Background(), frameWithBlock(t, 2, 64, 64, 32, 32, 32))
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	box := boxes[0]
	assert.Equal(t, "motion", box.Label)
	assert.GreaterOrEqual(t, box.Confidence, 0.5)
	assert.LessOrEqual(t, box.Confidence, 1.0)
	// Changed region spans both block positions.
	assert.Equal(t, uint32(0), box.X)
	assert.Equal(t, uint32(0), box.Y)
	assert.Equal(t, uint32(64), box.Width)
	assert.Equal(t, uint32(64), box.Height)
}

func TestMotionIgnoresSmallChange(t *testing.T) {
	m := NewMotion(MotionConfig{DiffThreshold: 25, MinChangedPixels: 500})

	_, err := m.Detect(context.Background(), frameWithBlock(t, 1, 64, 64, 0, 0, 8))
	require.NoError(t, err)

	// 8x8 block moved: at most 128 changed pixels, under the floor.
	boxes, err := m.Detect(context.Background(), frameWithBlock(t, 2, 64, 64, 8, 8, 8))
	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestMotionSourcesAreIndependent(t *testing.T) {
	m := NewMotion(MotionConfig{})

	f := frameWithBlock(t, 1, 64, 64, 0, 0, 32)
	_, err := m.Detect(context.Background(), f)
	require.NoError(t, err)

	other := frameWithBlock(t, 1, 64, 64, 32, 32, 32)
	other.SourceID = "cam1"

	// First frame of cam1 is its own baseline regardless of cam0 state.
	boxes, err := m.Detect(context.Background(), other)
	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestMotionMalformedPayloadIsPermanent(t *testing.T) {
	m := NewMotion(MotionConfig{})

	f := codec.Frame{SourceID: "cam0", Sequence: 1, Payload: []byte{0x01}}
	_, err := m.Detect(context.Background(), f)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.ErrorIs(t, err, capture.ErrBadPayload)
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsTransient(TransientError(base)))
	assert.False(t, IsTransient(PermanentError(base)))
	assert.True(t, IsTransient(base), "unclassified errors default to transient")
	assert.ErrorIs(t, TransientError(base), base)
}
