// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package delta

import (
	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/snapshot"
)

const (
	DefaultHistoryDepth = 64
)

// Session is the server side delta state of one connection. It numbers outgoing snapshots,
// keeps the ones not yet acknowledged and always encodes against the most recently
// acknowledged snapshot, the baseline.
type Session struct {
	history   *sequence.Recent[*snapshot.Snapshot]
	last      sequence.Sequence
	latest    *snapshot.Snapshot
	baseline  *snapshot.Snapshot
	threshold int
	resync    bool
}

func NewSession(opts ...func(*Session)) *Session {
	s := &Session{}

	for _, opt := range opts {
		opt(s)
	}

	if s.history == nil {
		s.history = sequence.NewRecent[*snapshot.Snapshot](DefaultHistoryDepth)
	}
	if s.threshold <= 0 || s.threshold > s.history.Cap() {
		s.threshold = s.history.Cap()
	}

	return s
}

// WithHistoryDepth sets how many sent snapshots are retained waiting for acknowledgment.
func WithHistoryDepth(n int) func(*Session) {
	return func(s *Session) {
		if n <= 0 {
			n = DefaultHistoryDepth
		}
		s.history = sequence.NewRecent[*snapshot.Snapshot](n)
	}
}

// WithResyncThreshold sets how many snapshots the baseline may lag behind before a full
// snapshot is sent instead of a delta. It defaults to, and can't exceed, the history depth.
func WithResyncThreshold(n int) func(*Session) {
	return func(s *Session) {
		s.threshold = n
	}
}

// Encode assigns the next sequence number to the snapshot and returns its delta
// against the baseline. A resync delta, against an empty snapshot, is returned
// if there is no baseline, if the baseline is too old or if a resync was requested.
func (s *Session) Encode(snap *snapshot.Snapshot) *Delta {
	s.last = s.last.Next()
	snap.Seq = s.last

	d := &Delta{
		Seq:  snap.Seq,
		Tick: snap.Tick,
	}

	if s.resync || s.baseline == nil || int(snap.Seq.Diff(s.baseline.Seq)) > s.threshold {
		d.Resync = true
		d.Changes = Encode(nil, snap)
	} else {
		d.Baseline = s.baseline.Seq
		d.Changes = Encode(s.baseline, snap)
	}

	s.resync = false
	s.latest = snap
	s.history.Put(snap.Seq, snap)

	return d
}

// Ack moves the baseline to the acknowledged snapshot. Stale, duplicate and unknown
// acknowledgments are ignored. It returns true if the baseline moved.
func (s *Session) Ack(seq sequence.Sequence) bool {
	if seq == sequence.SequenceNone {
		return false
	}
	if s.baseline != nil && !s.baseline.Seq.Less(seq) {
		return false
	}
	if s.last.Less(seq) {
		return false
	}

	snap, ok := s.history.Get(seq)
	if !ok {
		return false
	}

	s.baseline = snap
	s.history.RemoveBefore(seq)

	return true
}

// AckAll applies acknowledgment of the newest sequence and the ones marked in ackBits.
// Only the newest one found in history matters, because baselines only move forward.
func (s *Session) AckAll(ack sequence.Sequence, ackBits uint32) bool {
	if s.Ack(ack) {
		return true
	}
	for i := range sequence.AckWindowSize {
		if ackBits&(1<<i) == 0 {
			continue
		}
		if s.Ack(ack - sequence.Sequence(i+1)) {
			return true
		}
	}
	return false
}

// RequestResync makes the next Encode produce a full snapshot.
func (s *Session) RequestResync() {
	s.resync = true
}

func (s *Session) Baseline() *snapshot.Snapshot {
	return s.baseline
}

// Latest returns the most recently encoded snapshot, or nil.
func (s *Session) Latest() *snapshot.Snapshot {
	return s.latest
}

func (s *Session) LastSeq() sequence.Sequence {
	return s.last
}

// Pending returns the number of snapshots sent after the baseline.
func (s *Session) Pending() int {
	if s.baseline == nil {
		return s.history.Len()
	}
	if _, ok := s.history.Get(s.baseline.Seq); ok {
		return s.history.Len() - 1
	}
	return s.history.Len()
}
