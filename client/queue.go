// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// DeadLetterExchange is the direct exchange dead-lettered frames are routed
// through. Messages nacked without requeue on a queue declared with
// DeclareWorkQueue land on the bound dead-letter queue.
const DeadLetterExchange = "framestream.dlx"

// DeclareWorkQueue declares a durable queue whose rejected messages are
// routed to deadLetterQueue via the dead-letter exchange. Declaration is
// idempotent; producer and consumer may both declare.
func (c *Client) DeclareWorkQueue(queue, deadLetterQueue string) error {
	if queue == "" {
		return ErrInvalidQueueName
	}

	ch, err := c.channel()
	if err != nil {
		return err
	}

	c.chMu.Lock()
	defer c.chMu.Unlock()

	if err := ch.ExchangeDeclare(DeadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	if deadLetterQueue != "" {
		if _, err := ch.QueueDeclare(deadLetterQueue, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(deadLetterQueue, queue, DeadLetterExchange, false, nil); err != nil {
			return err
		}
	}

	args := amqp091.Table{}
	if deadLetterQueue != "" {
		args["x-dead-letter-exchange"] = DeadLetterExchange
		args["x-dead-letter-routing-key"] = queue
	}

	_, err = ch.QueueDeclare(queue, true, false, false, false, args)
	return err
}

// DeclareQueue declares a plain durable queue with no dead-letter routing,
// used for the detections results queue.
func (c *Client) DeclareQueue(queue string) error {
	if queue == "" {
		return ErrInvalidQueueName
	}

	ch, err := c.channel()
	if err != nil {
		return err
	}

	c.chMu.Lock()
	defer c.chMu.Unlock()

	_, err = ch.QueueDeclare(queue, true, false, false, false, nil)
	return err
}
