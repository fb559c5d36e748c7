// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package sequence

import "fmt"

// Range is a run of consecutive sequences.
type Range struct {
	seq    Sequence
	length int
}

func RangeLen(seq Sequence, length int) Range {
	if seq == SequenceNone {
		panic("range: seq zero is disallowed")
	}
	if length <= 0 {
		panic("range: must have length greater than zero")
	}
	return Range{seq: seq, length: length}
}

func RangeInclusive(from, to Sequence) Range {
	return RangeLen(from, int(to.Diff(from))+1)
}

func (r Range) From() Sequence {
	return r.seq
}

func (r Range) To() Sequence {
	return r.seq + Sequence(r.length) - 1
}

func (r Range) Len() int {
	return r.length
}

func (r Range) In(seq Sequence) bool {
	d := seq.Diff(r.seq)
	return d >= 0 && int(d) < r.length
}

func (r Range) String() string {
	if r.length == 1 {
		return fmt.Sprintf("[%d]", r.seq)
	}
	return fmt.Sprintf("[%d..%d]", r.From(), r.To())
}

// gap returns the range of sequences strictly between after and before.
func gap(after, before Sequence) (Range, bool) {
	n := int(before.Diff(after)) - 1
	if after != SequenceNone && before < after {
		n-- // SequenceNone is never used
	}
	if n <= 0 {
		return Range{}, false
	}
	return Range{seq: after.Next(), length: n}, true
}
