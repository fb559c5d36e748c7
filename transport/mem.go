// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// MemNetwork is an in-process transport. It can drop a fraction of unreliable packets.
type MemNetwork struct {
	mx      sync.Mutex
	rnd     *rand.Rand
	loss    float64
	handler func(data []byte, peer Peer)
	ready   chan struct{}
	peers   int
}

func NewMemNetwork(seed int64, loss float64) *MemNetwork {
	return &MemNetwork{
		rnd:   rand.New(rand.NewSource(seed)),
		loss:  loss,
		ready: make(chan struct{}),
	}
}

func (n *MemNetwork) SetLoss(loss float64) {
	n.mx.Lock()
	n.loss = loss
	n.mx.Unlock()
}

// Listen installs the server handler and blocks until the context is done.
func (n *MemNetwork) Listen(ctx context.Context, handler func(data []byte, peer Peer)) error {
	n.mx.Lock()
	n.handler = handler
	n.mx.Unlock()

	close(n.ready)

	<-ctx.Done()

	n.mx.Lock()
	n.handler = nil
	n.mx.Unlock()

	return ctx.Err()
}

// Dial creates a client connection. Packets from the client reach the server only
// while the server is listening.
func (n *MemNetwork) Dial() *MemConn {
	n.mx.Lock()
	n.peers++
	id := n.peers
	n.mx.Unlock()

	c := &MemConn{
		network: n,
		inbox:   make(chan []byte, 1024),
	}
	c.peer = &memPeer{conn: c, name: fmt.Sprintf("mem-%d", id)}

	return c
}

func (n *MemNetwork) drop(mode Mode) bool {
	n.mx.Lock()
	defer n.mx.Unlock()
	return mode == ModeUnreliableSequenced && n.rnd.Float64() < n.loss
}

func (n *MemNetwork) deliver(data []byte, peer Peer) {
	<-n.ready

	n.mx.Lock()
	handler := n.handler
	n.mx.Unlock()

	if handler != nil {
		handler(data, peer)
	}
}

type MemConn struct {
	network *MemNetwork
	peer    *memPeer
	inbox   chan []byte
}

var _ Conn = (*MemConn)(nil)

func (c *MemConn) Listen(ctx context.Context, handler func(data []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.inbox:
			handler(data)
		}
	}
}

func (c *MemConn) Send(data []byte, mode Mode) error {
	if c.network.drop(mode) {
		return nil
	}
	c.network.deliver(data, c.peer)
	return nil
}

type memPeer struct {
	conn *MemConn
	name string
}

func (p *memPeer) Send(data []byte, mode Mode) error {
	if p.conn.network.drop(mode) {
		return nil
	}

	select {
	case p.conn.inbox <- append([]byte(nil), data...):
		return nil
	default:
		return fmt.Errorf("%s: inbox full", p.name)
	}
}

func (p *memPeer) String() string {
	return p.name
}
