// Copyright (c) 2024, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import "github.com/marko-gacesa/udpstate/udpstate"

// Beacon is periodically multicast by a server to announce itself on the local network.
type Beacon struct {
	Server  udpstate.Token
	Port    uint16
	Clients uint8
	Name    string
}

var _ Message = (*Beacon)(nil)

func (*Beacon) Type() Type { return TypeBeacon }

func (m *Beacon) Size() int {
	return sizeBase + 2 + 1 + 1 + len(m.Name)
}

func (m *Beacon) Put(buf []byte) []byte {
	s := NewSerializer(buf)
	s.PutPrefix()
	s.PutCategory(CategoryBeacon)
	s.PutType(TypeBeacon)
	s.PutToken(m.Server)
	s.Put16(m.Port)
	s.Put8(m.Clients)
	s.PutStr(m.Name)
	return s.Bytes()
}

func (m *Beacon) Get(buf []byte) ([]byte, error) {
	s := NewDeserializer(buf)
	if !(s.CheckPrefix() && s.CheckCategory(CategoryBeacon) && s.CheckType(TypeBeacon)) {
		return nil, invalid(&s, TypeBeacon)
	}
	s.GetToken(&m.Server)
	s.Get16(&m.Port)
	s.Get8(&m.Clients)
	s.GetStr(&m.Name)
	return s.Bytes(), s.Error()
}
