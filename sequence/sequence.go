// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package sequence

// Sequence is a 32-bit packet or entry sequence number.
// Comparisons with Less and Diff handle wraparound: a sequence is considered
// newer than another if it is ahead by less than half of the number space.
type Sequence uint32

const (
	SequenceNone Sequence = iota
	SequenceFirst
)

// Next returns the sequence following s. The value SequenceNone is skipped on wraparound.
func (s Sequence) Next() Sequence {
	s++
	if s == SequenceNone {
		s++
	}
	return s
}

// Less reports whether s is older than q.
func (s Sequence) Less(q Sequence) bool {
	return s.Diff(q) < 0
}

// Diff returns s-q as a signed distance.
func (s Sequence) Diff(q Sequence) int32 {
	return int32(s - q)
}

// Newer returns the newer of the two sequences.
func Newer(a, b Sequence) Sequence {
	if a.Less(b) {
		return b
	}
	return a
}
