// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package client

import (
	"fmt"
	"time"

	"github.com/marko-gacesa/udpstate/bitpack"
	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/delta"
	"github.com/marko-gacesa/udpstate/geom"
	"github.com/marko-gacesa/udpstate/interp"
	"github.com/marko-gacesa/udpstate/predict"
	"github.com/marko-gacesa/udpstate/replication"
	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/snapshot"
	"github.com/marko-gacesa/udpstate/udpstate"
	"github.com/marko-gacesa/udpstate/udpstate/message"
)

func (c *Client) receive(now time.Time) {
	for {
		select {
		case msg := <-c.inbound:
			c.lastHeard = now

			switch msg := msg.(type) {
			case *message.Events:
				c.handleEvents(msg, now)
			case *message.Snapshot:
				c.handleSnapshot(msg, now)
			}
		default:
			return
		}
	}
}

func (c *Client) handleEvents(msg *message.Events, now time.Time) {
	for _, entry := range c.eventsRx.Receive(msg.Entries) {
		var event message.Event
		if _, err := event.Get(entry.Payload); err != nil {
			c.log.Warn("invalid event", "seq", entry.Seq, "err", err)
			continue
		}

		switch event.Kind {
		case message.EventWelcome:
			if event.Value > 0 {
				c.interval = time.Second / time.Duration(event.Value)
			}
			c.connected = true
			c.lastHeard = now
			c.log.Info("connected to server", "tick_rate", event.Value)
			c.emit(udpstate.Event{Kind: udpstate.EventConnected, Token: c.token})

		case message.EventOwnership:
			c.manager.TransferOwnership(event.ID, event.Owner)
		}
	}
}

func (c *Client) handleSnapshot(msg *message.Snapshot, now time.Time) {
	if !c.connected {
		// the welcome event hasn't arrived yet, the server will send a full snapshot later
		return
	}

	seq := msg.Header.Seq

	if c.current == nil && msg.Header.Flags.Has(message.FlagResync) {
		// nothing to wait for before the first full snapshot
		c.stream.Reset(seq - 1)
	}

	if !c.stream.Sequence().Less(seq) {
		c.log.Debug("stale snapshot dropped", "seq", seq, "last", c.stream.Sequence())
		return
	}

	c.pending[seq] = msg

	c.deliver(c.stream.Push(sequence.Entry{Seq: seq}), now)
}

// deliver applies snapshots released by the stream in order of sequence.
func (c *Client) deliver(entries []sequence.Entry, now time.Time) {
	for _, entry := range entries {
		msg, ok := c.pending[entry.Seq]
		if !ok {
			continue
		}
		delete(c.pending, entry.Seq)

		if entry.Seq != c.acks.Ack().Next() && c.acks.Ack() != sequence.SequenceNone {
			c.log.Debug("snapshots skipped",
				"from", c.acks.Ack().Next(),
				"to", entry.Seq,
				"err", udpstate.ErrSequenceGap)
		}

		if err := c.applySnapshot(msg, now); err != nil {
			c.desync(err)
		}
	}
}

func (c *Client) applySnapshot(msg *message.Snapshot, now time.Time) error {
	changes, err := delta.Read(bitpack.NewReader(msg.Body), c.registry)
	if err != nil {
		return fmt.Errorf("snapshot %d: %w: %w", msg.Header.Seq, err, udpstate.ErrProtocolDesync)
	}

	isResync := msg.Header.Flags.Has(message.FlagResync)

	var baseline *snapshot.Snapshot
	if !isResync {
		var ok bool
		baseline, ok = c.history.Get(msg.Baseline)
		if !ok {
			return fmt.Errorf("snapshot %d: unknown baseline %d: %w",
				msg.Header.Seq, msg.Baseline, udpstate.ErrProtocolDesync)
		}
	}

	snap, err := delta.Decode(baseline, changes)
	if err != nil {
		return fmt.Errorf("snapshot %d: %w", msg.Header.Seq, err)
	}

	snap.Seq = msg.Header.Seq
	snap.Tick = msg.Tick

	c.history.Put(snap.Seq, snap)
	c.acks.Received(snap.Seq)

	if c.serverTickAt.IsZero() || snap.Tick > c.serverTick {
		c.serverTick = snap.Tick
		c.serverTickAt = now
	}

	c.inputAck = msg.InputAck

	if isResync {
		c.manager.Sync(snap)
		if c.resync {
			c.log.Info("resync completed", "seq", snap.Seq)
		}
		c.resync = false
	} else if err := c.manager.Apply(delta.Encode(c.current, snap)); err != nil {
		c.current = snap
		return err
	}

	c.current = snap

	c.refresh(snap.Tick)
	c.predictor.Confirm(msg.InputAck)

	return nil
}

// refresh feeds every remote entity with the values of the applied snapshot, changed or not.
// Owned entities always carry the state after the acknowledged input.
func (c *Client) refresh(tick uint32) {
	for _, id := range c.manager.IDs() {
		r, _ := c.manager.Get(id)

		switch r.Mode {
		case replication.ModePredicted:
			p, ok := c.predictor.Predictor(id)
			if !ok {
				c.predictor.Add(id, c.state(r))
				continue
			}
			if c.inputAck == sequence.SequenceNone || p.Reconciled() == c.inputAck {
				continue
			}
			outcome, replayed := c.predictor.Reconcile(id, c.inputAck, c.state(r))
			c.metrics.Reconciled(outcome.String(), replayed)

		default:
			b, ok := c.buffers[id]
			if !ok {
				b = c.newBuffer()
				c.buffers[id] = b
			}
			b.Push(c.sampleAt(r, tick))
		}
	}
}

// desync makes the client ask for a full snapshot.
func (c *Client) desync(err error) {
	c.metrics.Desync()

	if c.resync {
		c.log.Debug("snapshot not applied, resync pending", "err", err)
		return
	}

	c.log.Warn("snapshot not applied, requesting resync", "err", err)

	c.resync = true
	c.manager.ClearResync()
	c.metrics.Resync()

	c.emit(udpstate.Event{Kind: udpstate.EventResync, Token: c.token, Err: err})
}

func (c *Client) onSpawn(r *replication.Remote) {
	switch r.Mode {
	case replication.ModePredicted:
		c.predictor.Add(r.ID, c.state(r))
	default:
		b := c.newBuffer()
		b.Push(c.sample(r))
		c.buffers[r.ID] = b
	}
}

func (c *Client) onDespawn(r *replication.Remote) {
	delete(c.buffers, r.ID)
	c.predictor.Cancel(r.ID)
}

// onOwner switches the entity between prediction and interpolation.
// Predicted state is discarded when the ownership is lost.
func (c *Client) onOwner(r *replication.Remote, old replication.Mode) {
	if r.Mode != old {
		switch r.Mode {
		case replication.ModePredicted:
			delete(c.buffers, r.ID)
			c.predictor.Add(r.ID, c.state(r))
		default:
			c.predictor.Cancel(r.ID)
			b := c.newBuffer()
			b.Push(c.sample(r))
			c.buffers[r.ID] = b
		}
	}

	c.emit(udpstate.Event{Kind: udpstate.EventOwnershipChanged, Token: c.token, ID: r.ID, Owner: r.Owner})
}

func (c *Client) newBuffer() *interp.Buffer {
	return interp.NewBuffer(c.registry,
		interp.WithDelay(c.interpDelay),
		interp.WithTickInterval(c.interval))
}

// sample reads the entity's current values from the store, timestamped with the server tick.
func (c *Client) sample(r *replication.Remote) interp.Sample {
	return c.sampleAt(r, c.serverTick)
}

func (c *Client) sampleAt(r *replication.Remote, tick uint32) interp.Sample {
	s := interp.Sample{
		At: time.Duration(tick) * c.interval,
	}

	for _, kind := range c.registry.Kinds() {
		if v, ok := c.store.Get(r.Entity, kind); ok {
			s.Fields = append(s.Fields, interp.Field{Kind: kind, Value: v})
		}
	}

	return s
}

func (c *Client) state(r *replication.Remote) predict.State {
	state := predict.State{Rotation: geom.Identity()}

	if v, ok := c.store.Get(r.Entity, component.KindPosition); ok {
		state.Position = v.Vec
	}
	if v, ok := c.store.Get(r.Entity, component.KindRotation); ok {
		state.Rotation = v.Quat
	}
	if v, ok := c.store.Get(r.Entity, component.KindVelocity); ok {
		state.Velocity = v.Vec
	}

	return state
}
