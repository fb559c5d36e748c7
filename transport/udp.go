// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/marko-gacesa/udpstate/udp"
)

// UDPListener receives plain UDP datagrams. It ignores the delivery mode:
// reliability is provided by the engine on top of it.
type UDPListener struct {
	port   int
	server *udp.Server

	mx    sync.Mutex
	peers map[string]*udpPeer
}

var _ Listener = (*UDPListener)(nil)

func NewUDPListener(port int, log *slog.Logger) *UDPListener {
	return &UDPListener{
		port:   port,
		server: udp.NewServer(udp.WithLogger(log)),
		peers:  make(map[string]*udpPeer),
	}
}

func (l *UDPListener) Listen(ctx context.Context, handler func(data []byte, peer Peer)) error {
	return l.server.Listen(ctx, l.port, func(data []byte, addr net.UDPAddr) {
		handler(data, l.peer(addr))
	})
}

// Ready is closed when the listener is bound to its port.
func (l *UDPListener) Ready() <-chan struct{} {
	return l.server.Ready()
}

func (l *UDPListener) Addr() *net.UDPAddr {
	return l.server.LocalAddr()
}

// Forget releases the peer with the address.
func (l *UDPListener) Forget(peer Peer) {
	l.mx.Lock()
	delete(l.peers, peer.String())
	l.mx.Unlock()
}

func (l *UDPListener) peer(addr net.UDPAddr) *udpPeer {
	key := addr.String()

	l.mx.Lock()
	defer l.mx.Unlock()

	p, ok := l.peers[key]
	if !ok {
		p = &udpPeer{server: l.server, addr: addr, key: key}
		l.peers[key] = p
	}

	return p
}

type udpPeer struct {
	server *udp.Server
	addr   net.UDPAddr
	key    string
}

func (p *udpPeer) Send(data []byte, _ Mode) error {
	return p.server.Send(data, p.addr)
}

func (p *udpPeer) String() string {
	return p.key
}

// UDPConn is a client side plain UDP connection.
type UDPConn struct {
	client *udp.Client
}

var _ Conn = (*UDPConn)(nil)

func DialUDP(serverAddr net.UDPAddr) (*UDPConn, error) {
	c := udp.NewClient(serverAddr)
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return &UDPConn{client: c}, nil
}

func (c *UDPConn) Listen(ctx context.Context, handler func(data []byte)) error {
	return c.client.Listen(ctx, handler)
}

func (c *UDPConn) Send(data []byte, _ Mode) error {
	return c.client.Send(data)
}
