// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import (
	"encoding/binary"
	"io"

	"github.com/marko-gacesa/udpstate/sequence"
)

// Header is carried by every replication packet. Seq is the sequence of the packet itself,
// Ack is the newest sequence received from the other side and AckBits marks which of the
// 32 sequences before Ack were received too.
type Header struct {
	Seq     sequence.Sequence
	Ack     sequence.Sequence
	AckBits uint32
	Flags   Flags
}

const sizeOfHeader = 4 + 4 + 4 + 1

func (m *Header) Put(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Seq))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Ack))
	buf = binary.LittleEndian.AppendUint32(buf, m.AckBits)
	buf = append(buf, byte(m.Flags))
	return buf
}

func (m *Header) Get(buf []byte) ([]byte, error) {
	if len(buf) < sizeOfHeader {
		return nil, io.ErrUnexpectedEOF
	}
	m.Seq = sequence.Sequence(binary.LittleEndian.Uint32(buf[0:4]))
	m.Ack = sequence.Sequence(binary.LittleEndian.Uint32(buf[4:8]))
	m.AckBits = binary.LittleEndian.Uint32(buf[8:12])
	m.Flags = Flags(buf[12])
	return buf[sizeOfHeader:], nil
}
