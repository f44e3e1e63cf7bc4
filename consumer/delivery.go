// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"github.com/absmach/framestream/client"
)

// Delivery is one frame delivery owned by the pipeline for exactly one
// processing attempt. Exactly one of Ack or Nack must be called; leaving a
// delivery unfinalized parks it at the broker until the connection drops.
type Delivery interface {
	// Body returns the wire payload.
	Body() []byte

	// Attempt reports the delivery attempt count, starting at 1.
	Attempt() int

	// Redelivered reports whether the broker has delivered this message
	// before.
	Redelivered() bool

	// Ack finalizes the delivery as processed.
	Ack() error

	// Nack finalizes the delivery as failed: requeued for another attempt
	// or dead-lettered.
	Nack(requeue bool) error
}

// Subscriber is the consume capability the pipeline needs; the channel
// client satisfies it through NewClientSubscriber.
type Subscriber interface {
	Subscribe(queue string, handler func(Delivery)) error
	Unsubscribe(queue string) error
	IsConnected() bool
}

// NewClientSubscriber adapts the channel client to the Subscriber seam.
func NewClientSubscriber(c *client.Client) Subscriber {
	return clientSubscriber{c: c}
}

type clientSubscriber struct {
	c *client.Client
}

func (s clientSubscriber) Subscribe(queue string, handler func(Delivery)) error {
	return s.c.Subscribe(queue, func(msg *client.Message) {
		handler(clientDelivery{msg: msg})
	})
}

func (s clientSubscriber) Unsubscribe(queue string) error {
	return s.c.Unsubscribe(queue)
}

func (s clientSubscriber) IsConnected() bool {
	return s.c.IsConnected()
}

type clientDelivery struct {
	msg *client.Message
}

func (d clientDelivery) Body() []byte      { return d.msg.Body }
func (d clientDelivery) Attempt() int      { return d.msg.Attempt() }
func (d clientDelivery) Redelivered() bool { return d.msg.Redelivered }
func (d clientDelivery) Ack() error        { return d.msg.Ack() }
func (d clientDelivery) Nack(requeue bool) error {
	return d.msg.Nack(requeue)
}
