// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Client exchanges datagrams with a single server.
type Client struct {
	serverAddr net.UDPAddr
	conn       *net.UDPConn
	durBreak   time.Duration
}

func NewClient(serverAddr net.UDPAddr, opts ...func(*Client)) *Client {
	c := &Client{
		serverAddr: serverAddr,
		durBreak:   durBreakDefault,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func WithClientBreakPeriod(durBreak time.Duration) func(*Client) {
	return func(c *Client) {
		if durBreak > 0 {
			c.durBreak = durBreak
		}
	}
}

func (c *Client) Connect() error {
	conn, err := net.DialUDP("udp", nil, &c.serverAddr)
	if err != nil {
		return fmt.Errorf("udp client: failed to dial: %w", err)
	}

	c.conn = conn

	return nil
}

// Listen receives datagrams until the context is done. The data passed to processFn
// is valid only until processFn returns. The connection is closed when Listen returns.
// A refused connection means the server is not listening yet or has gone away,
// so the client keeps waiting.
func (c *Client) Listen(ctx context.Context, processFn func(data []byte)) (err error) {
	defer func() {
		if errClose := c.conn.Close(); errClose != nil && err == nil {
			err = fmt.Errorf("udp client: failed to close connection: %w", errClose)
		}
	}()

	err = readLoop(ctx, c.conn, c.durBreak, func(data []byte, _ *net.UDPAddr, err error) error {
		if isConnRefused(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read udp message: %w", err)
		}
		processFn(data)
		return nil
	})
	if errors.Is(err, ctx.Err()) {
		return err
	}

	return fmt.Errorf("udp client: %w", err)
}

func (c *Client) Send(data []byte) error {
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("udp client: failed to send message: %w", err)
	}
	return nil
}
