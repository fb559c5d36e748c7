// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package bitpack packs unsigned integers of arbitrary bit width into a byte slice.
// Bits are written least significant first. The last byte is zero padded.
package bitpack

import "io"

const maxVarintGroups = 10

type Writer struct {
	buf   []byte
	cur   byte
	used  uint
	count int
}

// NewWriter creates a Writer that appends to buf.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) WriteBits(v uint64, bits uint) {
	if bits < 64 {
		v &= (1 << bits) - 1
	}

	for bits > 0 {
		take := min(8-w.used, bits)
		w.cur |= byte(v&((1<<take)-1)) << w.used
		w.used += take
		w.count += int(take)
		v >>= take
		bits -= take

		if w.used == 8 {
			w.buf = append(w.buf, w.cur)
			w.cur = 0
			w.used = 0
		}
	}
}

func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// WriteVarint writes v in groups of seven bits, each followed by a continuation bit.
func (w *Writer) WriteVarint(v uint64) {
	for {
		group := v & 0x7f
		v >>= 7
		w.WriteBits(group, 7)
		w.WriteBool(v != 0)
		if v == 0 {
			return
		}
	}
}

// Bits returns the number of bits written so far.
func (w *Writer) Bits() int {
	return w.count
}

// Bytes returns the packed data. The Writer remains usable.
func (w *Writer) Bytes() []byte {
	if w.used == 0 {
		return w.buf
	}
	out := w.buf[:len(w.buf):len(w.buf)]
	return append(out, w.cur)
}

type Reader struct {
	buf []byte
	pos uint
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) ReadBits(bits uint) (uint64, error) {
	if bits > 64 || r.remaining() < bits {
		return 0, io.ErrUnexpectedEOF
	}

	var v uint64
	var shift uint

	for bits > 0 {
		off := r.pos % 8
		take := min(8-off, bits)
		b := uint64(r.buf[r.pos/8]>>off) & ((1 << take) - 1)
		v |= b << shift
		shift += take
		r.pos += take
		bits -= take
	}

	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

func (r *Reader) ReadVarint() (uint64, error) {
	var v uint64
	for i := range maxVarintGroups {
		group, err := r.ReadBits(7)
		if err != nil {
			return 0, err
		}
		v |= group << (7 * uint(i))

		more, err := r.ReadBool()
		if err != nil {
			return 0, err
		}
		if !more {
			return v, nil
		}
	}
	return 0, errVarintOverflow
}

// Remaining returns the number of unread bits, including padding.
func (r *Reader) Remaining() int {
	return int(r.remaining())
}

func (r *Reader) remaining() uint {
	return uint(len(r.buf))*8 - r.pos
}
