// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/absmach/framestream/codec"
)

// DefaultDedupCapacity bounds the deduplication window.
const DefaultDedupCapacity = 4096

// Dedup wraps a sink and drops detections already seen under the same
// (source, sequence, attempt) key. Memory is bounded: when the window is
// full the oldest tracked keys are evicted, so a very old duplicate may
// pass through; downstream consumers remain idempotent by contract.
type Dedup struct {
	next Sink

	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

// NewDedup creates a deduplicating sink in front of next.
func NewDedup(next Sink, capacity int) *Dedup {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &Dedup{
		next:     next,
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// Emit forwards first-seen detections and swallows duplicates. A key is
// recorded only once the wrapped sink accepts the detection: a failed
// emission stays unseen, so the retried delivery gets another chance
// instead of being silently swallowed.
func (d *Dedup) Emit(ctx context.Context, det codec.Detection) error {
	key := fmt.Sprintf("%s/%d/%d", det.SourceID, det.FrameSequence, det.Attempt)

	d.mu.Lock()
	if _, dup := d.seen[key]; dup {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := d.next.Emit(ctx, det); err != nil {
		return err
	}

	d.mu.Lock()
	if _, dup := d.seen[key]; !dup {
		if len(d.order) >= d.capacity {
			evict := d.order[0]
			d.order = d.order[1:]
			delete(d.seen, evict)
		}
		d.seen[key] = struct{}{}
		d.order = append(d.order, key)
	}
	d.mu.Unlock()
	return nil
}
