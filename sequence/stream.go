// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package sequence

import (
	"slices"
	"time"
)

// Entry is a sequenced payload.
type Entry struct {
	Seq     Sequence
	Payload []byte
}

// Stream releases entries in sequence order. Entries that arrive ahead of the
// next expected sequence wait in the ahead queue. With a max wait time set, the
// stream stops waiting for a missing sequence once the oldest entry in the ahead
// queue has waited longer than the max wait time.
type Stream struct {
	lastSeq  Sequence
	lastTime time.Time

	ahead []waiting

	maxWait time.Duration
}

type waiting struct {
	Entry
	since time.Time
}

func NewStream(opts ...func(*Stream)) *Stream {
	s := &Stream{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithMaxWait(d time.Duration) func(*Stream) {
	return func(s *Stream) {
		s.maxWait = d
	}
}

// Sequence returns the sequence of the last released entry.
func (s *Stream) Sequence() Sequence {
	return s.lastSeq
}

// Push accepts entries in increasing sequence order and returns the entries that can be released.
// Old and duplicate entries are ignored.
func (s *Stream) Push(entries ...Entry) []Entry {
	return s.push(time.Now(), entries...)
}

func (s *Stream) push(now time.Time, entries ...Entry) []Entry {
	var r []Entry

	if s.lastTime.IsZero() {
		s.lastTime = now
	}

	expired := s.maxWait != 0 && now.Sub(s.lastTime) > s.maxWait
	prev := SequenceNone

	for _, entry := range entries {
		if prev != SequenceNone && entry.Seq.Less(prev) {
			continue
		}
		prev = entry.Seq

		if !s.lastSeq.Less(entry.Seq) {
			continue
		}

		if entry.Seq == s.lastSeq.Next() || expired {
			r = append(r, entry)
			s.lastSeq = entry.Seq
			expired = false
			continue
		}

		s.wait(entry, now)
	}

	if len(r) > 0 {
		s.lastTime = now
	}

	return s.drain(r)
}

// SkipExpired gives up waiting for the missing sequences before the oldest entry
// in the ahead queue if it has waited longer than the max wait time.
// It returns the released entries.
func (s *Stream) SkipExpired(now time.Time) []Entry {
	if s.maxWait == 0 || len(s.ahead) == 0 || now.Sub(s.ahead[0].since) <= s.maxWait {
		return nil
	}

	first := s.ahead[0].Entry
	s.ahead = slices.Delete(s.ahead, 0, 1)

	s.lastSeq = first.Seq
	s.lastTime = now

	return s.drain([]Entry{first})
}

// Waiting returns the number of entries in the ahead queue.
func (s *Stream) Waiting() int {
	return len(s.ahead)
}

// Reset drops the ahead queue and sets the sequence of the last released entry.
func (s *Stream) Reset(seq Sequence) {
	clear(s.ahead)
	s.ahead = s.ahead[:0]
	s.lastSeq = seq
}

// Missing returns the gaps before the entries in the ahead queue, oldest first.
// With a positive limit only the first limit ranges are returned.
func (s *Stream) Missing(limit int) []Range {
	var r []Range

	seq := s.lastSeq
	for i := range s.ahead {
		if limit > 0 && len(r) == limit {
			break
		}
		if g, ok := gap(seq, s.ahead[i].Seq); ok {
			r = append(r, g)
		}
		seq = s.ahead[i].Seq
	}

	return r
}

func (s *Stream) drain(r []Entry) []Entry {
	var n int

	for _, w := range s.ahead {
		next := s.lastSeq.Next()
		if next.Less(w.Seq) {
			break
		}
		if w.Seq == next {
			r = append(r, w.Entry)
			s.lastSeq = w.Seq
		}
		n++
	}

	s.ahead = slices.Delete(s.ahead, 0, n)

	return r
}

func (s *Stream) wait(entry Entry, now time.Time) {
	idx, found := slices.BinarySearchFunc(s.ahead, entry.Seq, func(w waiting, seq Sequence) int {
		return int(w.Seq.Diff(seq))
	})
	if found {
		return
	}

	s.ahead = slices.Insert(s.ahead, idx, waiting{Entry: entry, since: now})
}
