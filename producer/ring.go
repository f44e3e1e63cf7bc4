// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import "sync"

// entry is one encoded frame waiting to be published.
type entry struct {
	sequence uint64
	data     []byte
}

// ring is a fixed-capacity buffer between capture and publish with
// drop-oldest eviction: when full, the oldest unpublished entry is
// overwritten in place. Memory never grows past capacity regardless of
// publish latency.
type ring struct {
	mu       sync.Mutex
	slots    []entry
	head     int
	count    int
	notEmpty chan struct{}
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{
		slots:    make([]entry, capacity),
		notEmpty: make(chan struct{}, 1),
	}
}

// offer appends an entry, evicting the oldest when full. It reports the
// evicted entry, if any, and never blocks: capture must not wait on a slow
// publisher.
func (r *ring) offer(e entry) (evicted entry, dropped bool) {
	r.mu.Lock()
	if r.count == len(r.slots) {
		evicted = r.slots[r.head]
		r.slots[r.head] = entry{}
		r.head = (r.head + 1) % len(r.slots)
		r.count--
		dropped = true
	}
	tail := (r.head + r.count) % len(r.slots)
	r.slots[tail] = e
	r.count++
	r.mu.Unlock()

	select {
	case r.notEmpty <- struct{}{}:
	default:
	}
	return evicted, dropped
}

// take removes and returns the oldest entry if one is buffered.
func (r *ring) take() (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return entry{}, false
	}
	e := r.slots[r.head]
	r.slots[r.head] = entry{}
	r.head = (r.head + 1) % len(r.slots)
	r.count--
	return e, true
}

// wait returns a channel that fires when an entry may be available.
func (r *ring) wait() <-chan struct{} {
	return r.notEmpty
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
