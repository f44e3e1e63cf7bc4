// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingFIFO(t *testing.T) {
	r := newRing(4)

	for seq := uint64(1); seq <= 3; seq++ {
		_, dropped := r.offer(entry{sequence: seq})
		assert.False(t, dropped)
	}

	for seq := uint64(1); seq <= 3; seq++ {
		e, ok := r.take()
		require.True(t, ok)
		assert.Equal(t, seq, e.sequence)
	}

	_, ok := r.take()
	assert.False(t, ok)
}

func TestRingDropOldest(t *testing.T) {
	// Capacity 2, five offers with no takes: the three oldest are evicted
	// and the two most recent survive.
	r := newRing(2)

	drops := 0
	for seq := uint64(1); seq <= 5; seq++ {
		evicted, dropped := r.offer(entry{sequence: seq})
		if dropped {
			drops++
			assert.Equal(t, uint64(drops), evicted.sequence)
		}
	}

	assert.Equal(t, 3, drops)
	assert.Equal(t, 2, r.len())

	e, ok := r.take()
	require.True(t, ok)
	assert.Equal(t, uint64(4), e.sequence)
	e, ok = r.take()
	require.True(t, ok)
	assert.Equal(t, uint64(5), e.sequence)
}

func TestRingNeverExceedsCapacity(t *testing.T) {
	r := newRing(3)

	for seq := uint64(1); seq <= 100; seq++ {
		r.offer(entry{sequence: seq})
		assert.LessOrEqual(t, r.len(), 3)
	}
}

func TestRingWrapAround(t *testing.T) {
	r := newRing(2)

	r.offer(entry{sequence: 1})
	r.offer(entry{sequence: 2})
	e, _ := r.take()
	assert.Equal(t, uint64(1), e.sequence)

	r.offer(entry{sequence: 3})
	e, _ = r.take()
	assert.Equal(t, uint64(2), e.sequence)
	e, _ = r.take()
	assert.Equal(t, uint64(3), e.sequence)
}

func TestRingSignalsNotEmpty(t *testing.T) {
	r := newRing(2)
	r.offer(entry{sequence: 1})

	select {
	case <-r.wait():
	default:
		t.Fatal("expected a pending not-empty signal")
	}
}
