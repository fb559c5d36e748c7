// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package sequence

import "math/bits"

const AckWindowSize = 32

// AckWindow tracks received sequence numbers as the newest received sequence
// plus a bit mask of the AckWindowSize sequences preceding it.
// Bit n of the mask is set if sequence ack-n-1 has been received.
type AckWindow struct {
	ack  Sequence
	bits uint32
}

func (w *AckWindow) Received(seq Sequence) {
	if seq == SequenceNone {
		return
	}

	if w.ack == SequenceNone {
		w.ack = seq
		w.bits = 0
		return
	}

	d := seq.Diff(w.ack)
	switch {
	case d > 0:
		if d > AckWindowSize {
			w.bits = 0
		} else {
			w.bits = w.bits<<d | 1<<(d-1)
		}
		w.ack = seq
	case d < 0 && d >= -AckWindowSize:
		w.bits |= 1 << (-d - 1)
	}
}

func (w *AckWindow) Ack() Sequence {
	return w.ack
}

func (w *AckWindow) Bits() uint32 {
	return w.bits
}

func (w *AckWindow) Reset() {
	w.ack = SequenceNone
	w.bits = 0
}

// Acked reports whether the sequence is acknowledged by the pair ack, ackBits.
func Acked(ack Sequence, ackBits uint32, seq Sequence) bool {
	if ack == SequenceNone {
		return false
	}
	if seq == ack {
		return true
	}
	d := ack.Diff(seq)
	if d <= 0 || d > AckWindowSize {
		return false
	}
	return ackBits&(1<<(d-1)) != 0
}

// Loss returns the fraction of sequences missing from the window described by ackBits.
// Only the part of the window following the first received sequence is counted.
func Loss(ackBits uint32) float64 {
	if ackBits == 0 {
		return 0
	}
	span := AckWindowSize - bits.LeadingZeros32(ackBits)
	received := bits.OnesCount32(ackBits)
	return float64(span-received) / float64(span)
}
