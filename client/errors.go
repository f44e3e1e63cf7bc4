// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
)

// Client errors.
var (
	ErrNoAddress         = errors.New("no broker address configured")
	ErrNotConnected      = errors.New("client not connected")
	ErrAlreadyConnected  = errors.New("client already connected")
	ErrAlreadySubscribed = errors.New("already subscribed to queue")
	ErrInvalidQueueName  = errors.New("queue name cannot be empty")
	ErrNilHandler        = errors.New("handler cannot be nil")
	ErrClosed            = errors.New("client closed")
	ErrPublishNacked     = errors.New("broker refused the publish")
)

// PublishError wraps any failure to get a confirmed publish. Publish
// failures are retryable: the caller must not assume the message was stored
// and may publish the same payload again.
type PublishError struct {
	Queue string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %q: %v", e.Queue, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func publishErr(queue string, err error) error {
	return &PublishError{Queue: queue, Err: err}
}
