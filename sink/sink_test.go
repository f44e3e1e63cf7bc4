// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/framestream/codec"
)

type capturingSink struct {
	emitted []codec.Detection
}

func (s *capturingSink) Emit(_ context.Context, d codec.Detection) error {
	s.emitted = append(s.emitted, d)
	return nil
}

func det(source string, seq uint64, attempt int) codec.Detection {
	return codec.Detection{
		SourceID:      source,
		FrameSequence: seq,
		Attempt:       attempt,
		ProcessedAt:   time.Unix(0, 1700000000000000000).UTC(),
	}
}

func TestDedupPassesFirstSeen(t *testing.T) {
	inner := &capturingSink{}
	d := NewDedup(inner, 16)

	require.NoError(t, d.Emit(context.Background(), det("cam0", 1, 1)))
	require.NoError(t, d.Emit(context.Background(), det("cam0", 2, 1)))
	assert.Len(t, inner.emitted, 2)
}

func TestDedupDropsDuplicateKey(t *testing.T) {
	inner := &capturingSink{}
	d := NewDedup(inner, 16)

	require.NoError(t, d.Emit(context.Background(), det("cam0", 1, 1)))
	require.NoError(t, d.Emit(context.Background(), det("cam0", 1, 1)))
	assert.Len(t, inner.emitted, 1)
}

func TestDedupDistinguishesAttempts(t *testing.T) {
	// Redelivery reprocessing carries a new attempt count; the sink key
	// includes it, so the recomputed detection passes through.
	inner := &capturingSink{}
	d := NewDedup(inner, 16)

	require.NoError(t, d.Emit(context.Background(), det("cam0", 1, 1)))
	require.NoError(t, d.Emit(context.Background(), det("cam0", 1, 2)))
	assert.Len(t, inner.emitted, 2)
}

type flakySink struct {
	capturingSink
	failFirst int
	calls     int
}

func (s *flakySink) Emit(ctx context.Context, d codec.Detection) error {
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("results queue down")
	}
	return s.capturingSink.Emit(ctx, d)
}

func TestDedupRetriesAfterFailedEmit(t *testing.T) {
	// A detection the wrapped sink rejected was never delivered, so its
	// key must not count as seen: the retried emission goes through.
	inner := &flakySink{failFirst: 1}
	d := NewDedup(inner, 16)

	require.Error(t, d.Emit(context.Background(), det("cam0", 1, 1)))
	assert.Empty(t, inner.emitted)

	require.NoError(t, d.Emit(context.Background(), det("cam0", 1, 1)))
	require.Len(t, inner.emitted, 1)

	// Now delivered; the same key is a duplicate again.
	require.NoError(t, d.Emit(context.Background(), det("cam0", 1, 1)))
	assert.Len(t, inner.emitted, 1)
}

func TestDedupBoundedMemory(t *testing.T) {
	inner := &capturingSink{}
	d := NewDedup(inner, 2)

	for seq := uint64(1); seq <= 10; seq++ {
		require.NoError(t, d.Emit(context.Background(), det("cam0", seq, 1)))
	}
	assert.Len(t, inner.emitted, 10)
	assert.LessOrEqual(t, len(d.seen), 2)
	assert.LessOrEqual(t, len(d.order), 2)
}

type fakePublisher struct {
	queue    string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, queue string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.queue = queue
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestPublishEmitRoundTrips(t *testing.T) {
	pub := &fakePublisher{}
	c := codec.New(codec.CompressionNone)
	s := NewPublish(pub, c, "detections")

	want := codec.Detection{
		SourceID:      "cam0",
		FrameSequence: 5,
		Attempt:       1,
		ProcessedAt:   time.Unix(0, 1700000000000000000).UTC(),
		Boxes:         []codec.Box{{Label: "motion", Confidence: 0.75, Width: 10, Height: 10}},
	}
	require.NoError(t, s.Emit(context.Background(), want))
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "detections", pub.queue)

	got, err := c.DecodeDetection(pub.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPublishEmitPropagatesError(t *testing.T) {
	wantErr := errors.New("broker down")
	s := NewPublish(&fakePublisher{err: wantErr}, codec.New(codec.CompressionNone), "detections")

	err := s.Emit(context.Background(), det("cam0", 1, 1))
	assert.ErrorIs(t, err, wantErr)
}
