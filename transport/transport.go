// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package transport defines how the replication engine sends and receives packets.
package transport

import (
	"context"
	"errors"
)

// Mode is the delivery guarantee requested for a packet. A transport may provide
// a stronger guarantee than requested.
type Mode byte

const (
	ModeUnreliableSequenced Mode = iota
	ModeReliableOrdered
)

func (m Mode) String() string {
	switch m {
	case ModeUnreliableSequenced:
		return "unreliable-sequenced"
	case ModeReliableOrdered:
		return "reliable-ordered"
	}
	return "unknown"
}

var ErrClosed = errors.New("transport closed")

// Peer is a remote client as seen by the server.
type Peer interface {
	Send(data []byte, mode Mode) error
	String() string
}

// Listener accepts packets from clients. Listen blocks until the context is done.
// The handler may be called concurrently. The data is valid only during the call.
type Listener interface {
	Listen(ctx context.Context, handler func(data []byte, peer Peer)) error
}

// Conn is a client connection to the server. Listen blocks until the context is done.
// The data passed to the handler is valid only during the call.
type Conn interface {
	Listen(ctx context.Context, handler func(data []byte)) error
	Send(data []byte, mode Mode) error
}
