// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client is a thin AMQP 0.9.1 channel client used by both pipeline
// services. It hides reconnect mechanics: on connection loss it redials with
// exponential backoff and jitter and restores active subscriptions. One
// Client is safe for concurrent publish and subscribe; channel access is
// serialized internally, callers never need external locking.
package client

import (
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

// Client is a minimal AMQP 0.9.1 client with confirmed publishes and
// acknowledged queue subscriptions.
type Client struct {
	opts   *Options
	logger *slog.Logger

	conn *amqp091.Connection
	ch   *amqp091.Channel

	chMu sync.Mutex

	subsMu sync.Mutex
	subs   map[string]*subscription

	connected atomic.Bool
	closed    atomic.Bool

	reconnMu sync.Mutex
}

// New creates a new channel client with the given options.
func New(opts *Options, logger *slog.Logger) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		opts:   opts,
		logger: logger,
		subs:   make(map[string]*subscription),
	}, nil
}

// Connect establishes a connection to the broker. It fails fast on an
// unreachable broker; retry policy belongs to the caller (or to the
// reconnect loop once a first connection existed).
func (c *Client) Connect() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	url, err := c.opts.dialURL()
	if err != nil {
		return err
	}

	dialer := &net.Dialer{Timeout: c.opts.DialTimeout}
	cfg := amqp091.Config{
		TLSClientConfig: c.opts.TLSConfig,
		Heartbeat:       c.opts.Heartbeat,
		Dial:            dialer.Dial,
	}

	conn, err := amqp091.DialConfig(url, cfg)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	// Confirm mode: Publish blocks until the broker acks the message into
	// its durable store.
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	if c.opts.PrefetchCount > 0 {
		if err := ch.Qos(c.opts.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return err
		}
	}

	c.chMu.Lock()
	c.conn = conn
	c.ch = ch
	c.chMu.Unlock()
	c.connected.Store(true)

	go c.monitor(conn)

	if err := c.resubscribeAll(); err != nil {
		c.logger.Warn("failed to restore subscriptions", "error", err)
	}

	return nil
}

// Close closes the client and all active subscriptions. A closed client
// never reconnects.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.subsMu.Lock()
	for _, sub := range c.subs {
		sub.close()
	}
	c.subs = make(map[string]*subscription)
	c.subsMu.Unlock()

	c.chMu.Lock()
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.chMu.Unlock()

	c.connected.Store(false)
	return nil
}

// IsConnected reports whether the client holds a live broker connection.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// channel reads the current channel under chMu: the reconnect goroutine
// and Close both swap it.
func (c *Client) channel() (*amqp091.Channel, error) {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	if !c.connected.Load() || c.ch == nil {
		return nil, ErrNotConnected
	}
	return c.ch, nil
}

// monitor watches one connection for broker-side closure and drives the
// reconnect loop. Any deliveries unacked at the moment of loss are returned
// to the broker and will be redelivered, so consumers see them again.
func (c *Client) monitor(conn *amqp091.Connection) {
	closeErr, ok := <-conn.NotifyClose(make(chan *amqp091.Error, 1))
	if !ok || c.closed.Load() {
		// Deliberate Close.
		return
	}

	c.connected.Store(false)
	c.logger.Warn("broker connection lost", "error", closeErr)

	if c.opts.OnConnectionLost != nil {
		go c.opts.OnConnectionLost(closeErr)
	}

	if c.opts.AutoReconnect {
		go c.reconnect()
	}
}

// reconnect redials with exponential backoff, capped and jittered so a herd
// of clients does not stampede a recovering broker.
func (c *Client) reconnect() {
	c.reconnMu.Lock()
	defer c.reconnMu.Unlock()

	if c.connected.Load() {
		return
	}

	delay := c.opts.ReconnectBackoff
	attempt := 0

	for !c.closed.Load() {
		attempt++

		if c.opts.OnReconnecting != nil {
			c.opts.OnReconnecting(attempt)
		}

		err := c.Connect()
		if err == nil {
			c.logger.Info("reconnected to broker", "attempt", attempt)
			if c.opts.OnReconnected != nil {
				c.opts.OnReconnected(attempt)
			}
			return
		}
		c.logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)

		time.Sleep(jitter(delay))
		delay *= 2
		if delay > c.opts.MaxReconnectWait {
			delay = c.opts.MaxReconnectWait
		}
	}
}

// jitter spreads a delay over [d/2, d).
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}

func (c *Client) resubscribeAll() error {
	c.subsMu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subsMu.Unlock()

	for _, sub := range subs {
		sub.reset()
		if err := c.consume(sub); err != nil {
			return err
		}
	}
	return nil
}
