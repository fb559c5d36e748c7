// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package reliable implements a reliable ordered channel over unreliable datagrams.
// The sender keeps every entry until the receiver confirms it. The receiver confirms
// the last entry received in order and reports ranges of missing entries.
package reliable

import (
	"slices"

	"github.com/marko-gacesa/udpstate/sequence"
)

const (
	DefaultMaxPending  = 1024
	DefaultMaxPackSize = 400
	DefaultMaxMissing  = 32
)

type Sender struct {
	lastSeq sequence.Sequence
	history *sequence.History

	maxPackSize int
}

func NewSender(opts ...func(*Sender)) *Sender {
	s := &Sender{
		history:     sequence.NewHistory(DefaultMaxPending),
		maxPackSize: DefaultMaxPackSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithMaxPending limits the number of unconfirmed entries. The oldest entries are dropped when exceeded.
func WithMaxPending(n int) func(*Sender) {
	return func(s *Sender) {
		s.history.SetMaxCount(n)
	}
}

// WithMaxPackSize limits the total payload size of entries returned by Pack.
func WithMaxPackSize(n int) func(*Sender) {
	return func(s *Sender) {
		s.maxPackSize = n
	}
}

// Push assigns the next sequence to the payload and keeps it until confirmed.
func (s *Sender) Push(payload []byte) sequence.Entry {
	s.lastSeq = s.lastSeq.Next()
	entry := sequence.Entry{Seq: s.lastSeq, Payload: payload}
	s.history.Push(entry)
	return entry
}

// Pack returns the oldest unconfirmed entries that fit into the pack size.
// At least one entry is returned if any is pending.
func (s *Sender) Pack() []sequence.Entry {
	var entries []sequence.Entry
	var size int

	s.history.Iterate(func(entry sequence.Entry) bool {
		size += len(entry.Payload)
		if len(entries) > 0 && size > s.maxPackSize {
			return false
		}
		entries = append(entries, entry)
		return true
	})

	return entries
}

// Confirm discards all entries up to and including last
// and returns the pending entries that the receiver reported missing.
func (s *Sender) Confirm(last sequence.Sequence, missing []sequence.Range) []sequence.Entry {
	s.history.Trim(last)

	var resend []sequence.Entry
	for _, r := range missing {
		s.history.IterateRange(r, func(entry sequence.Entry) bool {
			resend = append(resend, entry)
			return true
		})
	}

	return resend
}

func (s *Sender) Pending() int {
	return s.history.Len()
}

func (s *Sender) LastSeq() sequence.Sequence {
	return s.history.LastSeq()
}

type Receiver struct {
	stream *sequence.Stream

	maxMissing int
}

func NewReceiver(opts ...func(*Receiver)) *Receiver {
	r := &Receiver{
		stream:     sequence.NewStream(),
		maxMissing: DefaultMaxMissing,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// WithMaxMissing limits the number of missing ranges reported by Missing.
func WithMaxMissing(n int) func(*Receiver) {
	return func(r *Receiver) {
		r.maxMissing = n
	}
}

// Receive accepts entries in any order and returns the entries that can be delivered in order.
// Duplicates are ignored.
func (r *Receiver) Receive(entries []sequence.Entry) []sequence.Entry {
	entries = slices.Clone(entries)
	slices.SortFunc(entries, func(a, b sequence.Entry) int {
		return int(a.Seq.Diff(b.Seq))
	})
	return r.stream.Push(entries...)
}

// Last returns the sequence of the last entry delivered in order.
func (r *Receiver) Last() sequence.Sequence {
	return r.stream.Sequence()
}

// Missing returns the newest ranges of missing entries.
func (r *Receiver) Missing() []sequence.Range {
	missing := r.stream.Missing(0)
	if len(missing) > r.maxMissing {
		missing = missing[len(missing)-r.maxMissing:]
	}
	return missing
}
