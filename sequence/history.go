// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package sequence

import "slices"

// History keeps sent entries until they are confirmed, oldest first.
// With a max count set, the oldest entries are dropped when exceeded.
type History struct {
	entries  []Entry
	lastSeq  Sequence
	maxCount int
}

func NewHistory(maxCount int) *History {
	return &History{maxCount: max(maxCount, 0)}
}

// SetMaxCount changes the limit. A zero limit means no limit.
func (h *History) SetMaxCount(n int) {
	h.maxCount = max(n, 0)
	h.limit()
}

// Push appends the entry. Entries not newer than the last one are ignored.
func (h *History) Push(e Entry) {
	if h.lastSeq != SequenceNone && !h.lastSeq.Less(e.Seq) {
		return
	}

	h.entries = append(h.entries, e)
	h.lastSeq = e.Seq
	h.limit()
}

// Trim removes all entries up to and including seq and returns the number of removed entries.
func (h *History) Trim(seq Sequence) int {
	n := 0
	for n < len(h.entries) && !seq.Less(h.entries[n].Seq) {
		n++
	}
	h.drop(n)
	return n
}

func (h *History) FirstSeq() Sequence {
	if len(h.entries) == 0 {
		return SequenceNone
	}
	return h.entries[0].Seq
}

func (h *History) LastSeq() Sequence {
	return h.lastSeq
}

func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) Iterate(fn func(Entry) bool) {
	for _, e := range h.entries {
		if !fn(e) {
			return
		}
	}
}

// IterateRange calls fn for the kept entries within the range, in sequence order.
func (h *History) IterateRange(r Range, fn func(Entry) bool) {
	idx, _ := slices.BinarySearchFunc(h.entries, r.From(), func(e Entry, seq Sequence) int {
		return int(e.Seq.Diff(seq))
	})

	for _, e := range h.entries[idx:] {
		if !r.In(e.Seq) || !fn(e) {
			return
		}
	}
}

func (h *History) limit() {
	if h.maxCount > 0 && len(h.entries) > h.maxCount {
		h.drop(len(h.entries) - h.maxCount)
	}
}

func (h *History) drop(n int) {
	h.entries = slices.Delete(h.entries, 0, n)
}
