// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import (
	"encoding/binary"
	"io"

	"github.com/marko-gacesa/udpstate/udpstate"
)

type EventKind byte

const (
	// EventWelcome is the first event sent to a client. Value holds the server tick rate.
	EventWelcome EventKind = iota + 1

	// EventOwnership tells the new owner of an entity.
	EventOwnership
)

func (k EventKind) String() string {
	switch k {
	case EventWelcome:
		return "welcome"
	case EventOwnership:
		return "ownership"
	}
	return "unknown"
}

// Event is a payload of an entry in the reliable event channel.
type Event struct {
	Kind  EventKind
	ID    udpstate.NetworkID
	Owner udpstate.Token
	Value uint32
}

const SizeOfEvent = 1 + 4 + udpstate.SizeOfToken + 4

func (m *Event) Put(buf []byte) []byte {
	buf = append(buf, byte(m.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.ID))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Owner))
	buf = binary.LittleEndian.AppendUint32(buf, m.Value)
	return buf
}

func (m *Event) Get(buf []byte) ([]byte, error) {
	if len(buf) < SizeOfEvent {
		return nil, io.ErrUnexpectedEOF
	}
	m.Kind = EventKind(buf[0])
	m.ID = udpstate.NetworkID(binary.LittleEndian.Uint32(buf[1:5]))
	m.Owner = udpstate.Token(binary.LittleEndian.Uint32(buf[5:9]))
	m.Value = binary.LittleEndian.Uint32(buf[9:13])
	return buf[SizeOfEvent:], nil
}
