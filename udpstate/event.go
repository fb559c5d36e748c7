// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package udpstate

type EventKind byte

const (
	EventConnected EventKind = iota
	EventConnectionLost
	EventOwnershipChanged
	EventResync
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectionLost:
		return "connection-lost"
	case EventOwnershipChanged:
		return "ownership-changed"
	case EventResync:
		return "resync"
	}
	return "unknown"
}

// Event is reported to the user of the server or the client.
type Event struct {
	Kind  EventKind
	Token Token
	ID    NetworkID
	Owner Token
	Err   error
}
