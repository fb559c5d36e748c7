// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/udpstate"
)

// Serializer appends little endian encoded values to a byte slice.
type Serializer struct {
	buf []byte
}

func NewSerializer(buf []byte) Serializer {
	return Serializer{buf: buf[:0]}
}

func (s *Serializer) Bytes() []byte {
	return s.buf
}

func (s *Serializer) Len() int {
	return len(s.buf)
}

func (s *Serializer) PutPrefix() {
	s.Put32(Prefix)
}

func (s *Serializer) PutCategory(v Category) {
	s.buf = append(s.buf, byte(v))
}

func (s *Serializer) PutType(v Type) {
	s.buf = append(s.buf, byte(v))
}

func (s *Serializer) PutToken(v udpstate.Token) {
	s.Put32(uint32(v))
}

func (s *Serializer) Put8(v uint8) {
	s.buf = append(s.buf, v)
}

func (s *Serializer) Put16(v uint16) {
	s.buf = binary.LittleEndian.AppendUint16(s.buf, v)
}

func (s *Serializer) Put32(v uint32) {
	s.buf = binary.LittleEndian.AppendUint32(s.buf, v)
}

func (s *Serializer) Put64(v uint64) {
	s.buf = binary.LittleEndian.AppendUint64(s.buf, v)
}

func (s *Serializer) PutBytes(v []byte) {
	if len(v) > math.MaxUint8 {
		panic("max len of array is 255")
	}
	s.Put8(uint8(len(v)))
	s.buf = append(s.buf, v...)
}

// PutBytes16 writes a byte array with a 16-bit length.
func (s *Serializer) PutBytes16(v []byte) {
	if len(v) > math.MaxUint16 {
		panic("max len of array is 65535")
	}
	s.Put16(uint16(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *Serializer) PutStr(v string) {
	if len(v) > math.MaxUint8 {
		panic("max len of string is 255")
	}
	s.Put8(uint8(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *Serializer) Put(v Putter) {
	s.buf = v.Put(s.buf)
}

func (s *Serializer) PutSequence(v sequence.Sequence) {
	s.Put32(uint32(v))
}

func (s *Serializer) PutEntry(v sequence.Entry) {
	s.PutSequence(v.Seq)
	s.PutBytes(v.Payload)
}

func (s *Serializer) PutEntries(v []sequence.Entry) {
	if len(v) > math.MaxUint8 {
		panic("max len of sequence entry array is 255")
	}
	s.Put8(uint8(len(v)))
	for i := range v {
		s.PutEntry(v[i])
	}
}

func (s *Serializer) PutRange(v sequence.Range) {
	s.PutSequence(v.From())
	s.PutSequence(v.To())
}

func (s *Serializer) PutRanges(v []sequence.Range) {
	if len(v) > math.MaxUint8 {
		panic("max len of sequence range array is 255")
	}
	s.Put8(uint8(len(v)))
	for i := range v {
		s.PutRange(v[i])
	}
}

const (
	sizeOfEntryBase = 4 + 1
	sizeOfRange     = 8
)

// Deserializer reads little endian encoded values. The first error is sticky:
// once a read fails all subsequent reads are no-ops and Error returns the error.
type Deserializer struct {
	buf []byte
	err error
}

func NewDeserializer(buf []byte) Deserializer {
	return Deserializer{buf: buf}
}

// Bytes returns the unread part of the buffer.
func (s *Deserializer) Bytes() []byte {
	if s.err != nil {
		return nil
	}
	return s.buf
}

func (s *Deserializer) Error() error {
	return s.err
}

func (s *Deserializer) take(n int) []byte {
	if s.err != nil {
		return nil
	}
	if len(s.buf) < n {
		s.err = io.ErrUnexpectedEOF
		return nil
	}
	b := s.buf[:n]
	s.buf = s.buf[n:]
	return b
}

func (s *Deserializer) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *Deserializer) CheckPrefix() bool {
	var v uint32
	s.Get32(&v)
	return s.err == nil && v == Prefix
}

func (s *Deserializer) CheckCategory(category Category) bool {
	var v uint8
	s.Get8(&v)
	return s.err == nil && Category(v) == category
}

func (s *Deserializer) CheckType(t Type) bool {
	var v uint8
	s.Get8(&v)
	return s.err == nil && Type(v) == t
}

func (s *Deserializer) GetToken(v *udpstate.Token) {
	var t uint32
	s.Get32(&t)
	*v = udpstate.Token(t)
}

func (s *Deserializer) Get8(v *uint8) {
	if b := s.take(1); b != nil {
		*v = b[0]
	}
}

func (s *Deserializer) Get16(v *uint16) {
	if b := s.take(2); b != nil {
		*v = binary.LittleEndian.Uint16(b)
	}
}

func (s *Deserializer) Get32(v *uint32) {
	if b := s.take(4); b != nil {
		*v = binary.LittleEndian.Uint32(b)
	}
}

func (s *Deserializer) Get64(v *uint64) {
	if b := s.take(8); b != nil {
		*v = binary.LittleEndian.Uint64(b)
	}
}

func (s *Deserializer) GetBytes(v *[]byte) {
	var l uint8
	s.Get8(&l)
	s.getBytes(v, int(l))
}

func (s *Deserializer) GetBytes16(v *[]byte) {
	var l uint16
	s.Get16(&l)
	s.getBytes(v, int(l))
}

func (s *Deserializer) getBytes(v *[]byte, l int) {
	if s.err != nil {
		return
	}
	if l == 0 {
		*v = nil
		return
	}
	if b := s.take(l); b != nil {
		*v = make([]byte, l)
		copy(*v, b)
	}
}

func (s *Deserializer) GetStr(v *string) {
	var l uint8
	s.Get8(&l)
	if b := s.take(int(l)); b != nil {
		*v = string(b)
	}
}

func (s *Deserializer) Get(v Getter) {
	if s.err != nil {
		return
	}
	s.buf, s.err = v.Get(s.buf)
}

func (s *Deserializer) GetSequence(v *sequence.Sequence) {
	var seq uint32
	s.Get32(&seq)
	*v = sequence.Sequence(seq)
}

func (s *Deserializer) GetEntry(v *sequence.Entry) {
	s.GetSequence(&v.Seq)
	s.GetBytes(&v.Payload)
}

func (s *Deserializer) GetEntries(v *[]sequence.Entry) {
	var l uint8
	s.Get8(&l)
	if s.err != nil || l == 0 {
		*v = nil
		return
	}
	if len(s.buf) < int(l)*sizeOfEntryBase {
		s.fail(io.ErrUnexpectedEOF)
		return
	}
	*v = make([]sequence.Entry, l)
	for i := range *v {
		s.GetEntry(&(*v)[i])
	}
}

func (s *Deserializer) GetRange(v *sequence.Range) {
	var from, to sequence.Sequence
	s.GetSequence(&from)
	s.GetSequence(&to)
	if s.err != nil {
		return
	}
	if from == sequence.SequenceNone || to < from {
		s.fail(ErrInvalidRange)
		return
	}
	*v = sequence.RangeInclusive(from, to)
}

func (s *Deserializer) GetRanges(v *[]sequence.Range) {
	var l uint8
	s.Get8(&l)
	if s.err != nil || l == 0 {
		*v = nil
		return
	}
	if len(s.buf) < int(l)*sizeOfRange {
		s.fail(io.ErrUnexpectedEOF)
		return
	}
	*v = make([]sequence.Range, l)
	for i := range *v {
		s.GetRange(&(*v)[i])
	}
}
