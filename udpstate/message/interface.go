// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import "github.com/marko-gacesa/udpstate/udpstate"

type Putter interface {
	Put([]byte) []byte
}

type Getter interface {
	Get([]byte) ([]byte, error)
}

type Message interface {
	Getter
	Putter
	Size() int
	Type() Type
}

type ClientMessage interface {
	Message
	GetToken() udpstate.Token
}

type ServerMessage interface {
	Message
	GetToken() udpstate.Token
}
