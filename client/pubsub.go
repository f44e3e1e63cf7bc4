// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// MessageHandler is called for each delivery received from a queue. The
// handler owns the delivery for exactly one processing attempt and must
// finalize it with exactly one of Ack, Nack, or Reject.
type MessageHandler func(msg *Message)

// Message wraps one broker delivery. DeliveryTag identifies the delivery
// for acknowledgment; it is broker-assigned and never persisted.
type Message struct {
	amqp091.Delivery
	Queue  string
	client *Client
}

// Ack acknowledges successful processing. The broker removes the message
// from its durable store.
func (m *Message) Ack() error {
	return m.withChannelLock(func() error {
		return m.Delivery.Ack(false)
	})
}

// Nack negatively acknowledges the message. With requeue the broker
// redelivers it (possibly interleaved with newer messages); without requeue
// it is routed to the dead-letter exchange, if one is configured.
func (m *Message) Nack(requeue bool) error {
	return m.withChannelLock(func() error {
		return m.Delivery.Nack(false, requeue)
	})
}

// Reject dead-letters the message without requeue.
func (m *Message) Reject() error {
	return m.withChannelLock(func() error {
		return m.Delivery.Reject(false)
	})
}

// Attempt reports the delivery attempt count, starting at 1. Quorum queues
// carry an exact count in the x-delivery-count header; for classic queues
// only the redelivered flag survives, so a redelivery reads as attempt 2.
func (m *Message) Attempt() int {
	if v, ok := m.Headers["x-delivery-count"]; ok {
		switch n := v.(type) {
		case int32:
			return int(n) + 1
		case int64:
			return int(n) + 1
		case int:
			return n + 1
		}
	}
	if m.Redelivered {
		return 2
	}
	return 1
}

func (m *Message) withChannelLock(fn func() error) error {
	if m.client == nil {
		return fn()
	}
	m.client.chMu.Lock()
	defer m.client.chMu.Unlock()
	return fn()
}

// Publish sends a persistent message to a queue and waits for the broker to
// confirm it into its durable store. On error the caller must not assume
// the message was stored.
func (c *Client) Publish(ctx context.Context, queue string, payload []byte) error {
	if queue == "" {
		return ErrInvalidQueueName
	}

	ch, err := c.channel()
	if err != nil {
		return publishErr(queue, err)
	}

	publishing := amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	}

	c.chMu.Lock()
	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, publishing)
	c.chMu.Unlock()
	if err != nil {
		return publishErr(queue, err)
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return publishErr(queue, err)
	}
	if !acked {
		return publishErr(queue, ErrPublishNacked)
	}
	return nil
}

type subscription struct {
	queue       string
	consumerTag string
	handler     MessageHandler
	done        chan struct{}
}

func (s *subscription) close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
}

// reset prepares the subscription for a fresh consume after reconnect.
func (s *subscription) reset() {
	select {
	case <-s.done:
		s.done = make(chan struct{})
	default:
	}
}

// Subscribe registers an acknowledged consumer on a queue. Deliveries are
// dispatched to the handler one at a time per subscription; the broker
// keeps at most PrefetchCount of them unacknowledged. The subscription
// survives reconnects.
func (c *Client) Subscribe(queue string, handler MessageHandler) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	if queue == "" {
		return ErrInvalidQueueName
	}
	if handler == nil {
		return ErrNilHandler
	}

	c.subsMu.Lock()
	if _, exists := c.subs[queue]; exists {
		c.subsMu.Unlock()
		return ErrAlreadySubscribed
	}

	sub := &subscription{
		queue:       queue,
		consumerTag: "ctag-" + queue + "-" + uuid.NewString(),
		handler:     handler,
		done:        make(chan struct{}),
	}
	c.subs[queue] = sub
	c.subsMu.Unlock()

	if err := c.consume(sub); err != nil {
		c.subsMu.Lock()
		delete(c.subs, queue)
		c.subsMu.Unlock()
		return err
	}

	return nil
}

// Unsubscribe cancels the consumer on a queue.
func (c *Client) Unsubscribe(queue string) error {
	c.subsMu.Lock()
	sub, ok := c.subs[queue]
	if ok {
		delete(c.subs, queue)
	}
	c.subsMu.Unlock()

	if !ok {
		return nil
	}

	sub.close()

	ch, err := c.channel()
	if err != nil {
		return err
	}

	c.chMu.Lock()
	defer c.chMu.Unlock()
	return ch.Cancel(sub.consumerTag, false)
}

func (c *Client) consume(sub *subscription) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}

	c.chMu.Lock()
	deliveries, err := ch.Consume(
		sub.queue,
		sub.consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	c.chMu.Unlock()
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				sub.handler(&Message{
					Delivery: d,
					Queue:    sub.queue,
					client:   c,
				})
			}
		}
	}()

	return nil
}
