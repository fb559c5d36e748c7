// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package kcp provides a transport over KCP sessions. KCP delivers every packet
// reliably and in order, so both delivery modes are satisfied.
package kcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/xtaci/kcp-go"
	"golang.org/x/sync/errgroup"

	"github.com/marko-gacesa/udpstate/transport"
)

const (
	bufferSize  = 64 << 10
	durBreak    = 500 * time.Millisecond
	windowSize  = 256
	readTimeout = 30 * time.Second
)

func configure(s *kcp.UDPSession) {
	s.SetNoDelay(1, 10, 2, 1)
	s.SetStreamMode(false)
	s.SetWindowSize(windowSize, windowSize)
	s.SetACKNoDelay(true)
}

type Listener struct {
	addr string
	log  *slog.Logger

	mx       sync.Mutex
	listener *kcp.Listener
	ready    chan struct{}
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

func (l *Listener) Addr() net.Addr {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

func (l *Listener) Listen(ctx context.Context, handler func(data []byte, peer transport.Peer)) error {
	listener, err := kcp.ListenWithOptions(l.addr, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("kcp listener: failed to listen: %w", err)
	}

	l.mx.Lock()
	l.listener = listener
	l.mx.Unlock()

	close(l.ready)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		_ = listener.Close()
		return ctx.Err()
	})

	g.Go(func() error {
		for {
			session, err := listener.AcceptKCP()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("kcp listener: failed to accept: %w", err)
			}

			configure(session)

			peer := &Peer{session: session}

			l.log.Debug("kcp session accepted", "peer", peer)

			g.Go(func() error {
				err := readSession(ctx, session, func(data []byte) {
					handler(data, peer)
				})
				if err != nil && ctx.Err() == nil {
					l.log.Debug("kcp session closed", "peer", peer, "err", err)
				}
				return nil
			})
		}
	})

	return g.Wait()
}

type Peer struct {
	session *kcp.UDPSession
}

func (p *Peer) Send(data []byte, _ transport.Mode) error {
	if _, err := p.session.Write(data); err != nil {
		return fmt.Errorf("kcp peer: failed to send: %w", err)
	}
	return nil
}

func (p *Peer) String() string {
	return p.session.RemoteAddr().String()
}

type Conn struct {
	session *kcp.UDPSession
}

var _ transport.Conn = (*Conn)(nil)

func Dial(addr string) (*Conn, error) {
	session, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("kcp conn: failed to dial: %w", err)
	}

	configure(session)

	return &Conn{session: session}, nil
}

func (c *Conn) Listen(ctx context.Context, handler func(data []byte)) error {
	return readSession(ctx, c.session, handler)
}

func (c *Conn) Send(data []byte, _ transport.Mode) error {
	if _, err := c.session.Write(data); err != nil {
		return fmt.Errorf("kcp conn: failed to send: %w", err)
	}
	return nil
}

// readSession reads messages until the context is done or the session has been
// idle for too long. The session is closed when it returns.
func readSession(ctx context.Context, session *kcp.UDPSession, handler func(data []byte)) error {
	defer session.Close()

	buffer := make([]byte, bufferSize)
	lastRead := time.Now()

	for {
		if err := session.SetReadDeadline(time.Now().Add(durBreak)); err != nil {
			return fmt.Errorf("kcp: failed to set read deadline: %w", err)
		}

		n, err := session.Read(buffer)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var errNet net.Error
		if errors.As(err, &errNet) && errNet.Timeout() {
			if time.Since(lastRead) > readTimeout {
				return errors.New("kcp: session idle")
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("kcp: failed to read: %w", err)
		}

		lastRead = time.Now()

		handler(buffer[:n])
	}
}
