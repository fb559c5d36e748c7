// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package server

import (
	"log/slog"
	"slices"
	"time"

	"github.com/marko-gacesa/udpstate/bitpack"
	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/delta"
	"github.com/marko-gacesa/udpstate/priority"
	"github.com/marko-gacesa/udpstate/reliable"
	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/snapshot"
	"github.com/marko-gacesa/udpstate/transport"
	"github.com/marko-gacesa/udpstate/udpstate"
	"github.com/marko-gacesa/udpstate/udpstate/message"
)

// destroyCostBits is the estimated size of a destroy change: opcode and network ID.
const destroyCostBits = 2 + 16

// connection is the server side state of one client. It's discarded on disconnect.
type connection struct {
	token    udpstate.Token
	peer     transport.Peer
	lastSeen time.Time

	// established is set with the first update, the client has received the welcome by then
	established bool

	session  *delta.Session
	priority *priority.Accumulator

	// updates received from the client, echoed in snapshot headers
	updates sequence.AckWindow

	lastInput sequence.Sequence

	events *reliable.Sender
	resend []sequence.Entry

	candidates []priority.Candidate
	buffer     []byte

	loss float64

	log *slog.Logger
}

type Stats struct {
	Token    udpstate.Token
	Peer     string
	LastSeen time.Time

	// LastSeq is the sequence of the last snapshot sent and Baseline of the last one acknowledged.
	LastSeq          sequence.Sequence
	Baseline         sequence.Sequence
	PendingSnapshots int

	PendingEvents int
	InputAck      sequence.Sequence

	// Loss is the fraction of snapshots not acknowledged, estimated from the last update.
	Loss float64
}

func newConnection(
	token udpstate.Token,
	peer transport.Peer,
	now time.Time,
	historyDepth, resyncThreshold int,
	log *slog.Logger,
) *connection {
	return &connection{
		token:    token,
		peer:     peer,
		lastSeen: now,
		session: delta.NewSession(
			delta.WithHistoryDepth(historyDepth),
			delta.WithResyncThreshold(resyncThreshold)),
		priority: priority.NewAccumulator(),
		events:   reliable.NewSender(),
		log:      log.With("client", token),
	}
}

// handleUpdate applies acknowledgments, event confirmations and inputs from a client update.
// It returns true if the client requested a resync.
func (c *connection) handleUpdate(msg *message.Update, inputFn func(Input)) bool {
	c.updates.Received(msg.Header.Seq)

	c.session.AckAll(msg.Header.Ack, msg.Header.AckBits)
	c.loss = sequence.Loss(msg.Header.AckBits)

	resend := c.events.Confirm(msg.EventsLast, msg.EventsMissing)
	c.resend = mergeEntries(c.resend, resend, msg.EventsLast)

	// inputs are sent redundantly, the ones already seen are skipped
	inputs := slices.Clone(msg.Inputs)
	slices.SortFunc(inputs, func(a, b message.Input) int {
		return int(a.Seq.Diff(b.Seq))
	})
	for _, input := range inputs {
		if !c.lastInput.Less(input.Seq) && c.lastInput != sequence.SequenceNone {
			continue
		}
		c.lastInput = input.Seq
		if inputFn != nil {
			inputFn(Input{
				Token:   c.token,
				Seq:     input.Seq,
				Tick:    input.Tick,
				Payload: input.Payload,
			})
		}
	}

	if msg.Header.Flags.Has(message.FlagResyncRequest) {
		c.log.Warn("client requested resync", "err", udpstate.ErrProtocolDesync)
		c.session.RequestResync()
		return true
	}

	return false
}

func (c *connection) pushEvent(event message.Event) {
	var buf [message.SizeOfEvent]byte
	c.events.Push(event.Put(buf[:0]))
}

func (c *connection) snapshotMessage(d *delta.Delta, registry *component.Registry) ([]byte, error) {
	w := bitpack.NewWriter(nil)
	if err := delta.Write(w, registry, d.Changes); err != nil {
		return nil, err
	}

	var flags message.Flags
	if d.Resync {
		flags |= message.FlagResync
	}

	msg := message.Snapshot{
		Token: c.token,
		Header: message.Header{
			Seq:     d.Seq,
			Ack:     c.updates.Ack(),
			AckBits: c.updates.Bits(),
			Flags:   flags,
		},
		Baseline: d.Baseline,
		Tick:     d.Tick,
		InputAck: c.lastInput,
		Body:     w.Bytes(),
	}

	c.buffer = msg.Put(c.buffer[:0])

	return c.buffer, nil
}

// eventsMessage returns the packet with the entries the client reported missing followed
// by the oldest unconfirmed entries, or nil if everything is confirmed.
func (c *connection) eventsMessage() []byte {
	if c.events.Pending() == 0 {
		c.resend = c.resend[:0]
		return nil
	}

	entries := mergeEntries(c.resend, c.events.Pack(), sequence.SequenceNone)
	c.resend = c.resend[:0]

	if len(entries) > message.LenEvents {
		entries = entries[:message.LenEvents]
	}

	msg := message.Events{
		Token:   c.token,
		Entries: entries,
	}

	c.buffer = msg.Put(c.buffer[:0])

	return c.buffer
}

func (c *connection) stats() Stats {
	var baseline sequence.Sequence
	if b := c.session.Baseline(); b != nil {
		baseline = b.Seq
	}

	return Stats{
		Token:            c.token,
		Peer:             c.peer.String(),
		LastSeen:         c.lastSeen,
		LastSeq:          c.session.LastSeq(),
		Baseline:         baseline,
		PendingSnapshots: c.session.Pending(),
		PendingEvents:    c.events.Pending(),
		InputAck:         c.lastInput,
		Loss:             c.loss,
	}
}

// mergeEntries returns entries of both lists newer than confirmed, sorted by sequence, without duplicates.
func mergeEntries(a, b []sequence.Entry, confirmed sequence.Sequence) []sequence.Entry {
	result := make([]sequence.Entry, 0, len(a)+len(b))
	for _, list := range [][]sequence.Entry{a, b} {
		for _, e := range list {
			if confirmed != sequence.SequenceNone && !confirmed.Less(e.Seq) {
				continue
			}
			result = append(result, e)
		}
	}

	slices.SortFunc(result, func(x, y sequence.Entry) int {
		return int(x.Seq.Diff(y.Seq))
	})

	return slices.CompactFunc(result, func(x, y sequence.Entry) bool {
		return x.Seq == y.Seq
	})
}

func priorityCandidate(item snapshot.Item, base, distance float64, cost int) priority.Candidate {
	return priority.Candidate{
		ID:       item.ID,
		Base:     base,
		Distance: distance,
		Cost:     cost,
	}
}
