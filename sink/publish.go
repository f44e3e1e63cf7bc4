// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"

	"github.com/absmach/framestream/codec"
)

// Publisher is the confirmed-publish capability Publish needs; the channel
// client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload []byte) error
}

// Publish encodes detections and publishes them to the results queue with
// broker confirmation, mirroring how the producer publishes frames.
type Publish struct {
	publisher Publisher
	codec     *codec.Codec
	queue     string
}

// NewPublish creates a publishing sink.
func NewPublish(publisher Publisher, c *codec.Codec, queue string) *Publish {
	return &Publish{
		publisher: publisher,
		codec:     c,
		queue:     queue,
	}
}

// Emit publishes one detection; it returns only after broker confirmation,
// so an ack that follows it is safe.
func (p *Publish) Emit(ctx context.Context, d codec.Detection) error {
	data, err := p.codec.EncodeDetection(d)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, p.queue, data)
}
