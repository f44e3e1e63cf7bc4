// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package detect defines the detection contract consumed by the consumer
// pipeline, plus a pure-Go motion detector. Failures are classified as
// transient (worth a redelivery) or permanent (dead-letter material); the
// pipeline never sees an unclassified detection failure.
package detect

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/framestream/codec"
)

// Detector runs inference over one frame. A nil box slice with a nil error
// means "no objects found" and is a valid result.
type Detector interface {
	Detect(ctx context.Context, f codec.Frame) ([]codec.Box, error)
}

// Error classifies a detection failure.
type Error struct {
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("detection (%s): %v", kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TransientError wraps a failure that may succeed on redelivery.
func TransientError(err error) error {
	return &Error{Transient: true, Err: err}
}

// PermanentError wraps a failure that no redelivery will fix.
func PermanentError(err error) error {
	return &Error{Transient: false, Err: err}
}

// IsTransient reports whether err is a transient detection failure.
// Unclassified errors are treated as transient so a flaky detector gets its
// bounded redeliveries before dead-lettering.
func IsTransient(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Transient
	}
	return true
}
