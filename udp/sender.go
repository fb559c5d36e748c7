// Copyright (c) 2024, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package udp

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

const defaultMulticastTTL = 1

// Sender sends datagrams to a single address, usually a multicast group.
type Sender struct {
	conn *net.UDPConn

	ttl      int
	loopback bool
}

// NewSender opens a socket for sending to addr. For IPv4 multicast groups the TTL
// limits how many routers the datagrams cross and loopback controls whether
// listeners on the sending host receive them.
func NewSender(addr net.UDPAddr, opts ...func(*Sender)) (*Sender, error) {
	s := &Sender{
		ttl:      defaultMulticastTTL,
		loopback: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	conn, err := net.DialUDP("udp", nil, &addr)
	if err != nil {
		return nil, fmt.Errorf("udp sender: failed to dial: %w", err)
	}

	if addr.IP.IsMulticast() && addr.IP.To4() != nil {
		p := ipv4.NewPacketConn(conn)
		if err := p.SetMulticastTTL(s.ttl); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("udp sender: failed to set multicast TTL: %w", err)
		}
		if err := p.SetMulticastLoopback(s.loopback); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("udp sender: failed to set multicast loopback: %w", err)
		}
	}

	s.conn = conn

	return s, nil
}

func WithTTL(ttl int) func(*Sender) {
	return func(s *Sender) {
		s.ttl = ttl
	}
}

func WithLoopback(loopback bool) func(*Sender) {
	return func(s *Sender) {
		s.loopback = loopback
	}
}

func (s *Sender) Send(data []byte) error {
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("udp sender: failed to send message: %w", err)
	}
	return nil
}

func (s *Sender) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("udp sender: failed to close connection: %w", err)
	}
	return nil
}
