// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package ws provides a transport over WebSocket binary messages.
// WebSocket runs over TCP, so every packet is delivered reliably and in order.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/marko-gacesa/udpstate/transport"
)

const (
	readLimit       = 64 << 10
	writeTimeout    = 2 * time.Second
	shutdownTimeout = time.Second
)

type Listener struct {
	addr  string
	log   *slog.Logger
	ready chan struct{}
	bound net.Addr
}

var _ transport.Listener = (*Listener)(nil)

func NewListener(addr string, log *slog.Logger) *Listener {
	return &Listener{
		addr:  addr,
		log:   log,
		ready: make(chan struct{}),
	}
}

// Ready is closed when the listener is bound to its address.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr returns the bound address. It is valid after Ready is closed.
func (l *Listener) Addr() net.Addr {
	return l.bound
}

// Listen runs an HTTP server that upgrades every request to a WebSocket connection.
func (l *Listener) Listen(ctx context.Context, handler func(data []byte, peer transport.Peer)) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("ws listener: failed to listen: %w", err)
	}

	l.bound = ln.Addr()
	close(l.ready)

	srv := &http.Server{
		Handler:           l.Handler(ctx, handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}

	return fmt.Errorf("ws listener: failed to serve: %w", err)
}

// Handler returns an http.Handler that can be mounted on an existing HTTP server.
// Connections are served until the context is done.
func (l *Listener) Handler(ctx context.Context, handler func(data []byte, peer transport.Peer)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			l.log.Warn("ws listener: failed to accept", "remote", r.RemoteAddr, "err", err)
			return
		}

		c.SetReadLimit(readLimit)

		peer := &Peer{ctx: ctx, conn: c, remote: r.RemoteAddr}

		l.log.Debug("ws connection accepted", "peer", peer)

		err = read(ctx, c, func(data []byte) {
			handler(data, peer)
		})
		if err != nil && ctx.Err() == nil {
			l.log.Debug("ws connection closed", "peer", peer, "err", err)
		}
	})
}

type Peer struct {
	ctx    context.Context
	conn   *websocket.Conn
	remote string
}

func (p *Peer) Send(data []byte, _ transport.Mode) error {
	return write(p.ctx, p.conn, data)
}

func (p *Peer) String() string {
	return p.remote
}

type Conn struct {
	conn *websocket.Conn
}

var _ transport.Conn = (*Conn)(nil)

// Dial opens a WebSocket connection to the URL, for example "ws://127.0.0.1:8080/".
func Dial(ctx context.Context, url string) (*Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws conn: failed to dial: %w", err)
	}

	c.SetReadLimit(readLimit)

	return &Conn{conn: c}, nil
}

func (c *Conn) Listen(ctx context.Context, handler func(data []byte)) error {
	return read(ctx, c.conn, handler)
}

func (c *Conn) Send(data []byte, _ transport.Mode) error {
	return write(context.Background(), c.conn, data)
}

func read(ctx context.Context, c *websocket.Conn, handler func(data []byte)) error {
	defer c.CloseNow()

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = c.Close(websocket.StatusGoingAway, "")
				return ctx.Err()
			}
			return fmt.Errorf("ws: failed to read: %w", err)
		}

		if typ != websocket.MessageBinary {
			continue
		}

		handler(data)
	}
}

func write(ctx context.Context, c *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := c.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("ws: failed to write: %w", err)
	}

	return nil
}
