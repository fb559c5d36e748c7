// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

type Category byte

const (
	CategoryReplication Category = 4
	CategoryBeacon      Category = 5
)

type Type byte

const (
	TypeHello Type = iota
	TypeUpdate
	TypeBye
	TypeSnapshot
	TypeEvents
	TypeBeacon
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "hello"
	case TypeUpdate:
		return "update"
	case TypeBye:
		return "bye"
	case TypeSnapshot:
		return "snapshot"
	case TypeEvents:
		return "events"
	case TypeBeacon:
		return "beacon"
	}
	return "unknown"
}

type Flags byte

const (
	// FlagResync marks a snapshot encoded against an empty baseline.
	FlagResync Flags = 1 << iota

	// FlagResyncRequest is set by a client that can't apply snapshots and needs a full one.
	FlagResyncRequest
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

const (
	// LenMissing is the maximum number of missing ranges in an update message.
	LenMissing = 32

	// LenInputs is the maximum number of input commands in an update message.
	LenInputs = 32

	// LenEvents is the maximum number of event entries in an events message.
	LenEvents = 64
)
