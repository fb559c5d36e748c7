// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package sequence

// Recent keeps values for the most recent sequence numbers in a ring buffer
// indexed by sequence modulo capacity. Capacity is always a power of two.
// Only sequences inside the window [newest-capacity+1, newest] are retained.
type Recent[T any] struct {
	slots  []recentSlot[T]
	mask   Sequence
	newest Sequence
	count  int
}

type recentSlot[T any] struct {
	seq   Sequence
	value T
	used  bool
}

func NewRecent[T any](capacity int) *Recent[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}

	return &Recent[T]{
		slots: make([]recentSlot[T], size),
		mask:  Sequence(size - 1),
	}
}

func (r *Recent[T]) Cap() int {
	return len(r.slots)
}

func (r *Recent[T]) Len() int {
	return r.count
}

// Newest returns the newest sequence number stored.
func (r *Recent[T]) Newest() (Sequence, bool) {
	return r.newest, r.count > 0
}

// Oldest returns the oldest sequence number stored.
func (r *Recent[T]) Oldest() (Sequence, bool) {
	var oldest Sequence
	var found bool
	r.Iterate(func(seq Sequence, _ T) bool {
		oldest = seq
		found = true
		return false
	})
	return oldest, found
}

// Put stores the value for the sequence. Values older than the window are rejected.
// Putting a sequence newer than the newest one slides the window forward evicting old values.
func (r *Recent[T]) Put(seq Sequence, value T) bool {
	if r.count > 0 {
		d := seq.Diff(r.newest)
		if d <= -int32(len(r.slots)) {
			return false
		}

		if d > 0 {
			skip := min(int(d)-1, len(r.slots))
			for i := 1; i <= skip; i++ {
				r.clear(r.newest + Sequence(i))
			}
			r.newest = seq
		}
	} else {
		r.newest = seq
	}

	slot := &r.slots[seq&r.mask]
	if !slot.used {
		r.count++
	}

	*slot = recentSlot[T]{seq: seq, value: value, used: true}

	return true
}

func (r *Recent[T]) Get(seq Sequence) (value T, found bool) {
	slot := &r.slots[seq&r.mask]
	if !slot.used || slot.seq != seq {
		return
	}
	return slot.value, true
}

func (r *Recent[T]) Remove(seq Sequence) (value T, found bool) {
	slot := &r.slots[seq&r.mask]
	if !slot.used || slot.seq != seq {
		return
	}

	value = slot.value
	found = true

	r.clear(seq)

	return
}

// RemoveBefore removes all values with sequence older than seq.
func (r *Recent[T]) RemoveBefore(seq Sequence) {
	for i := range r.slots {
		if r.slots[i].used && r.slots[i].seq.Less(seq) {
			r.slots[i] = recentSlot[T]{}
			r.count--
		}
	}
}

// Iterate calls fn for each stored value in increasing sequence order.
func (r *Recent[T]) Iterate(fn func(Sequence, T) bool) {
	if r.count == 0 {
		return
	}

	start := r.newest - Sequence(len(r.slots)-1)
	for i := range len(r.slots) {
		seq := start + Sequence(i)
		slot := &r.slots[seq&r.mask]
		if !slot.used || slot.seq != seq {
			continue
		}
		if !fn(seq, slot.value) {
			return
		}
	}
}

// IterateAfter calls fn for each stored value newer than seq in increasing sequence order.
func (r *Recent[T]) IterateAfter(seq Sequence, fn func(Sequence, T) bool) {
	r.Iterate(func(s Sequence, v T) bool {
		if !seq.Less(s) {
			return true
		}
		return fn(s, v)
	})
}

func (r *Recent[T]) Clear() {
	clear(r.slots)
	r.count = 0
	r.newest = SequenceNone
}

func (r *Recent[T]) clear(seq Sequence) {
	slot := &r.slots[seq&r.mask]
	if slot.used {
		*slot = recentSlot[T]{}
		r.count--
	}
}
