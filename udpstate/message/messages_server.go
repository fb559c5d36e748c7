// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import (
	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/udpstate"
)

// Snapshot carries a bit packed delta against the baseline snapshot.
// With FlagResync the baseline is empty.
type Snapshot struct {
	Token  udpstate.Token
	Header Header

	Baseline sequence.Sequence
	Tick     uint32

	// InputAck is the sequence of the last client input the server simulated.
	InputAck sequence.Sequence

	Body []byte
}

var _ ServerMessage = (*Snapshot)(nil)

func (m *Snapshot) GetToken() udpstate.Token { return m.Token }
func (*Snapshot) Type() Type                  { return TypeSnapshot }

func (m *Snapshot) Size() int {
	return sizeBase + sizeOfHeader + 4 + 4 + 4 + 2 + len(m.Body)
}

func (m *Snapshot) Put(buf []byte) []byte {
	s := NewSerializer(buf)
	putBase(&s, m.Type(), m.Token)
	s.Put(&m.Header)
	s.PutSequence(m.Baseline)
	s.Put32(m.Tick)
	s.PutSequence(m.InputAck)
	s.PutBytes16(m.Body)
	return s.Bytes()
}

func (m *Snapshot) Get(buf []byte) ([]byte, error) {
	s := NewDeserializer(buf)
	if !getBase(&s, m.Type(), &m.Token) {
		return nil, invalid(&s, m.Type())
	}
	s.Get(&m.Header)
	s.GetSequence(&m.Baseline)
	s.Get32(&m.Tick)
	s.GetSequence(&m.InputAck)
	s.GetBytes16(&m.Body)
	return s.Bytes(), s.Error()
}

// Events carries unconfirmed entries of the reliable event channel.
type Events struct {
	Token   udpstate.Token
	Entries []sequence.Entry
}

var _ ServerMessage = (*Events)(nil)

func (m *Events) GetToken() udpstate.Token { return m.Token }
func (*Events) Type() Type                  { return TypeEvents }

func (m *Events) Size() int {
	size := sizeBase + 1
	for i := range m.Entries {
		size += sizeOfEntryBase + len(m.Entries[i].Payload)
	}
	return size
}

func (m *Events) Put(buf []byte) []byte {
	s := NewSerializer(buf)
	putBase(&s, m.Type(), m.Token)
	s.PutEntries(m.Entries)
	return s.Bytes()
}

func (m *Events) Get(buf []byte) ([]byte, error) {
	s := NewDeserializer(buf)
	if !getBase(&s, m.Type(), &m.Token) {
		return nil, invalid(&s, m.Type())
	}
	s.GetEntries(&m.Entries)
	return s.Bytes(), s.Error()
}
