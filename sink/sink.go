// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package sink receives detection records from the consumer pipeline. The
// transport is at-least-once, so sinks must tolerate duplicate delivery;
// Dedup provides the standard (source, sequence, attempt) keyed filter.
package sink

import (
	"context"

	"github.com/absmach/framestream/codec"
)

// Sink accepts one detection record. Emit must return only after the
// detection is durably handed off: the pipeline acks the originating frame
// immediately afterwards.
type Sink interface {
	Emit(ctx context.Context, d codec.Detection) error
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, d codec.Detection) error

func (f Func) Emit(ctx context.Context, d codec.Detection) error {
	return f(ctx, d)
}
