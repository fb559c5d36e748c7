// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

var ErrNotRunning = errors.New("server not running")

// Server receives datagrams from any address and sends datagrams to known addresses.
type Server struct {
	durBreak time.Duration
	log      *slog.Logger
	ready    chan struct{}

	mx   sync.Mutex
	conn *net.UDPConn
}

func NewServer(opts ...func(*Server)) *Server {
	s := &Server{
		durBreak: durBreakDefault,
		log:      slog.Default(),
		ready:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func WithLogger(log *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.log = log
	}
}

// WithBreakPeriod sets how often the listener checks whether its context is done.
func WithBreakPeriod(durBreak time.Duration) func(*Server) {
	return func(s *Server) {
		if durBreak > 0 {
			s.durBreak = durBreak
		}
	}
}

// Ready is closed when the server starts listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// LocalAddr returns the address the server listens on, or nil if it is not listening.
func (s *Server) LocalAddr() *net.UDPAddr {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.conn == nil {
		return nil
	}

	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Listen binds to the port on all interfaces, zero picks a free port, and receives
// datagrams until the context is done. The data passed to processFn is valid only
// until processFn returns. Read errors are logged and do not stop the server.
func (s *Server) Listen(ctx context.Context, port int, processFn func(data []byte, addr net.UDPAddr)) (err error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("udp server: failed to listen: %w", err)
	}

	s.mx.Lock()
	s.conn = conn
	s.mx.Unlock()

	close(s.ready)

	defer func() {
		s.mx.Lock()
		s.conn = nil
		s.mx.Unlock()

		if errClose := conn.Close(); errClose != nil && err == nil {
			err = fmt.Errorf("udp server: failed to close listener: %w", errClose)
		}
	}()

	err = readLoop(ctx, conn, s.durBreak, func(data []byte, addr *net.UDPAddr, err error) error {
		if err != nil {
			s.log.Error("udp server: failed to read", "err", err)
			return nil
		}
		processFn(data, *addr)
		return nil
	})
	if errors.Is(err, ctx.Err()) {
		return err
	}

	return fmt.Errorf("udp server: %w", err)
}

func (s *Server) Send(data []byte, addr net.UDPAddr) error {
	s.mx.Lock()
	conn := s.conn
	s.mx.Unlock()

	if conn == nil {
		return fmt.Errorf("udp server: %w", ErrNotRunning)
	}

	if _, err := conn.WriteToUDP(data, &addr); err != nil {
		return fmt.Errorf("udp server: failed to send message to %s: %w", addr.String(), err)
	}

	return nil
}
