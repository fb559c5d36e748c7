// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package udpstate

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// NetworkID identifies a replicated entity across all peers. Zero is never assigned.
type NetworkID uint32

const NetworkIDNone NetworkID = 0

func (id NetworkID) String() string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// Token identifies a client connection. It is also used as the owner of entities.
// The zero token means the server.
type Token uint32

const (
	TokenServer Token = 0
	SizeOfToken       = 4
)

func (t Token) String() string {
	var buff [SizeOfToken]byte
	binary.BigEndian.PutUint32(buff[:], uint32(t))
	return hex.EncodeToString(buff[:])
}

func RandomToken() Token {
	var buffer [SizeOfToken]byte
	for {
		_, _ = rand.Read(buffer[:])
		if t := Token(binary.LittleEndian.Uint32(buffer[:])); t != TokenServer {
			return t
		}
	}
}
