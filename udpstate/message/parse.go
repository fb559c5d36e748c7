// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import "github.com/marko-gacesa/udpstate/udpstate"

const offsetType = SizeOfPrefix + 1

func ParseClient(buf []byte) (m ClientMessage) {
	if len(buf) < sizeBase {
		return nil
	}

	switch Type(buf[offsetType]) {
	case TypeHello:
		m = &Hello{}
	case TypeUpdate:
		m = &Update{}
	case TypeBye:
		m = &Bye{}
	default:
		return nil
	}

	if _, err := m.Get(buf); err != nil {
		return nil
	}

	return m
}

func ParseServer(buf []byte) (m ServerMessage) {
	if len(buf) < sizeBase {
		return nil
	}

	switch Type(buf[offsetType]) {
	case TypeSnapshot:
		m = &Snapshot{}
	case TypeEvents:
		m = &Events{}
	default:
		return nil
	}

	if _, err := m.Get(buf); err != nil {
		return nil
	}

	return m
}

func ParseBeacon(buf []byte) *Beacon {
	m := &Beacon{}
	if _, err := m.Get(buf); err != nil {
		return nil
	}
	return m
}

// ParseToken returns the token of a replication message without parsing the rest of it.
func ParseToken(buf []byte) (udpstate.Token, bool) {
	s := NewDeserializer(buf)
	if !(s.CheckPrefix() && s.CheckCategory(CategoryReplication)) {
		return 0, false
	}
	var t uint8
	var token udpstate.Token
	s.Get8(&t)
	s.GetToken(&token)
	return token, s.Error() == nil
}
