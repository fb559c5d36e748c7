// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import (
	"fmt"

	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/udpstate"
)

const sizeBase = SizeOfPrefix +
	1 + // category
	1 + // type
	udpstate.SizeOfToken

// Hello is sent by a client to join the server.
type Hello struct {
	Token udpstate.Token
}

var _ ClientMessage = (*Hello)(nil)

func (m *Hello) GetToken() udpstate.Token { return m.Token }
func (*Hello) Type() Type                  { return TypeHello }
func (*Hello) Size() int                   { return sizeBase }

func (m *Hello) Put(buf []byte) []byte {
	s := NewSerializer(buf)
	putBase(&s, m.Type(), m.Token)
	return s.Bytes()
}

func (m *Hello) Get(buf []byte) ([]byte, error) {
	s := NewDeserializer(buf)
	if !getBase(&s, m.Type(), &m.Token) {
		return nil, invalid(&s, m.Type())
	}
	return s.Bytes(), s.Error()
}

// Input is a client input command sent to the server.
type Input struct {
	Seq     sequence.Sequence
	Tick    uint32
	Payload []byte
}

// Update is sent by a client every tick. It acknowledges received snapshots in the header,
// confirms received events and carries recent unconfirmed inputs.
type Update struct {
	Token  udpstate.Token
	Header Header

	EventsLast    sequence.Sequence
	EventsMissing []sequence.Range

	Inputs []Input
}

var _ ClientMessage = (*Update)(nil)

func (m *Update) GetToken() udpstate.Token { return m.Token }
func (*Update) Type() Type                  { return TypeUpdate }

func (m *Update) Size() int {
	size := sizeBase + sizeOfHeader + 4 + 1 + len(m.EventsMissing)*sizeOfRange + 1
	for i := range m.Inputs {
		size += 4 + 4 + 1 + len(m.Inputs[i].Payload)
	}
	return size
}

func (m *Update) Put(buf []byte) []byte {
	s := NewSerializer(buf)
	putBase(&s, m.Type(), m.Token)
	s.Put(&m.Header)
	s.PutSequence(m.EventsLast)
	s.PutRanges(m.EventsMissing)
	s.Put8(uint8(len(m.Inputs)))
	for i := range m.Inputs {
		s.PutSequence(m.Inputs[i].Seq)
		s.Put32(m.Inputs[i].Tick)
		s.PutBytes(m.Inputs[i].Payload)
	}
	return s.Bytes()
}

func (m *Update) Get(buf []byte) ([]byte, error) {
	s := NewDeserializer(buf)
	if !getBase(&s, m.Type(), &m.Token) {
		return nil, invalid(&s, m.Type())
	}
	s.Get(&m.Header)
	s.GetSequence(&m.EventsLast)
	s.GetRanges(&m.EventsMissing)

	var l uint8
	s.Get8(&l)
	m.Inputs = nil
	if l > 0 && s.Error() == nil {
		m.Inputs = make([]Input, l)
		for i := range m.Inputs {
			s.GetSequence(&m.Inputs[i].Seq)
			s.Get32(&m.Inputs[i].Tick)
			s.GetBytes(&m.Inputs[i].Payload)
		}
	}

	return s.Bytes(), s.Error()
}

// Bye is sent by a client leaving the server.
type Bye struct {
	Token udpstate.Token
}

var _ ClientMessage = (*Bye)(nil)

func (m *Bye) GetToken() udpstate.Token { return m.Token }
func (*Bye) Type() Type                  { return TypeBye }
func (*Bye) Size() int                   { return sizeBase }

func (m *Bye) Put(buf []byte) []byte {
	s := NewSerializer(buf)
	putBase(&s, m.Type(), m.Token)
	return s.Bytes()
}

func (m *Bye) Get(buf []byte) ([]byte, error) {
	s := NewDeserializer(buf)
	if !getBase(&s, m.Type(), &m.Token) {
		return nil, invalid(&s, m.Type())
	}
	return s.Bytes(), s.Error()
}

func putBase(s *Serializer, t Type, token udpstate.Token) {
	s.PutPrefix()
	s.PutCategory(CategoryReplication)
	s.PutType(t)
	s.PutToken(token)
}

func getBase(s *Deserializer, t Type, token *udpstate.Token) bool {
	if !(s.CheckPrefix() && s.CheckCategory(CategoryReplication) && s.CheckType(t)) {
		return false
	}
	s.GetToken(token)
	return s.Error() == nil
}

func invalid(s *Deserializer, t Type) error {
	if err := s.Error(); err != nil {
		return fmt.Errorf("%s message: %w", t, err)
	}
	return fmt.Errorf("%s message: %w", t, ErrInvalidMessage)
}
