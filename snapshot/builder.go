// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package snapshot

import (
	"log/slog"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/store"
	"github.com/marko-gacesa/udpstate/udpstate"
)

// Index enumerates replicated entities.
type Index interface {
	// Iterate calls fn for each replicated entity in increasing network ID order.
	Iterate(fn func(id udpstate.NetworkID, e store.Entity) bool)
}

// Visibility decides whether an entity is replicated to a connection. Nil means everything is visible.
type Visibility func(id udpstate.NetworkID, e store.Entity) bool

type Plan struct {
	Created   []Item
	Changed   []Item
	Destroyed []udpstate.NetworkID
}

// Item is an entity with pending changes. For created entities Mask holds all components.
type Item struct {
	ID     udpstate.NetworkID
	Entity store.Entity
	Mask   component.Mask
}

func (p *Plan) Len() int {
	return len(p.Created) + len(p.Changed) + len(p.Destroyed)
}

const (
	costOverheadBits = 2 + 16 // opcode and the average size of network ID
)

type Builder struct {
	store    store.Store
	registry *component.Registry
	tracker  *Tracker
	index    Index
	onClamp  func(id udpstate.NetworkID, kind component.Kind)
	log      *slog.Logger
}

func NewBuilder(
	s store.Store,
	registry *component.Registry,
	tracker *Tracker,
	index Index,
	opts ...func(*Builder),
) *Builder {
	b := &Builder{
		store:    s,
		registry: registry,
		tracker:  tracker,
		index:    index,
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func WithLogger(log *slog.Logger) func(*Builder) {
	return func(b *Builder) {
		b.log = log
	}
}

// WithClampHook sets a function called every time a value is clamped during quantization.
func WithClampHook(fn func(id udpstate.NetworkID, kind component.Kind)) func(*Builder) {
	return func(b *Builder) {
		b.onClamp = fn
	}
}

// Plan compares the replicated entities with the previous snapshot sent to a connection.
// Entities absent from prev are created, entities in prev that are no longer replicated or visible
// are destroyed and entities with components changed since they were synced are changed.
func (b *Builder) Plan(prev *Snapshot, visible Visibility) Plan {
	var plan Plan

	var prevEntities []Entity
	if prev != nil {
		prevEntities = prev.Entities
	}

	i := 0

	b.index.Iterate(func(id udpstate.NetworkID, e store.Entity) bool {
		for i < len(prevEntities) && prevEntities[i].ID < id {
			plan.Destroyed = append(plan.Destroyed, prevEntities[i].ID)
			i++
		}

		var old *Entity
		if i < len(prevEntities) && prevEntities[i].ID == id {
			old = &prevEntities[i]
			i++
		}

		if visible != nil && !visible(id, e) {
			if old != nil {
				plan.Destroyed = append(plan.Destroyed, id)
			}
			return true
		}

		if old == nil {
			mask := b.store.Components(e) & b.registry.Mask()
			plan.Created = append(plan.Created, Item{ID: id, Entity: e, Mask: mask})
			return true
		}

		mask, ok := b.tracker.Changed(e, old.Synced)
		if !ok {
			mask = (b.store.Components(e) | old.Mask()) & b.registry.Mask()
		}
		if mask != 0 {
			plan.Changed = append(plan.Changed, Item{ID: id, Entity: e, Mask: mask})
		}

		return true
	})

	for ; i < len(prevEntities); i++ {
		plan.Destroyed = append(plan.Destroyed, prevEntities[i].ID)
	}

	return plan
}

// Cost estimates the number of bits needed to transmit the item.
func (b *Builder) Cost(item Item) int {
	bits := costOverheadBits + int(b.registry.MaskBits())
	item.Mask.Iterate(func(k component.Kind) bool {
		if c, ok := b.registry.Codec(k); ok {
			bits += int(c.Bits())
		}
		return true
	})
	return bits
}

// Build creates a new snapshot from the previous one. Selected created and changed entities
// get fresh values from the store. Changed entities that are not selected keep the values
// from prev and created entities that are not selected are left out. Destroyed entities are
// always left out. Build does not modify the store and does not clear dirty flags.
func (b *Builder) Build(prev *Snapshot, plan Plan, selected func(id udpstate.NetworkID) bool, tick uint32) *Snapshot {
	fresh := make(map[udpstate.NetworkID]Entity, len(plan.Created)+len(plan.Changed))

	for _, item := range plan.Created {
		if selected != nil && !selected(item.ID) {
			continue
		}
		fresh[item.ID] = b.read(item, nil, tick)
	}

	for _, item := range plan.Changed {
		if selected != nil && !selected(item.ID) {
			continue
		}
		old, _ := prev.Find(item.ID)
		fresh[item.ID] = b.read(item, old, tick)
	}

	destroyed := make(map[udpstate.NetworkID]struct{}, len(plan.Destroyed))
	for _, id := range plan.Destroyed {
		destroyed[id] = struct{}{}
	}

	snap := &Snapshot{
		Tick:     tick,
		Entities: make([]Entity, 0, prev.Len()+len(plan.Created)),
	}

	appendFresh := func(limit udpstate.NetworkID, inclusive bool) {
		// created entities are not in prev, they are merged in network ID order
		for len(plan.Created) > 0 {
			id := plan.Created[0].ID
			if id > limit || (id == limit && !inclusive) {
				return
			}
			if e, ok := fresh[id]; ok {
				snap.Entities = append(snap.Entities, e)
			}
			plan.Created = plan.Created[1:]
		}
	}

	for i := range prev.Len() {
		old := &prev.Entities[i]

		appendFresh(old.ID, false)

		if _, ok := destroyed[old.ID]; ok {
			continue
		}

		if e, ok := fresh[old.ID]; ok {
			snap.Entities = append(snap.Entities, e)
		} else {
			snap.Entities = append(snap.Entities, *old)
		}
	}

	appendFresh(^udpstate.NetworkID(0), true)

	return snap
}

// read returns the entity state for the components in the item mask taken from the store,
// and the remaining components taken from old.
func (b *Builder) read(item Item, old *Entity, tick uint32) Entity {
	e := Entity{
		ID:     item.ID,
		Synced: tick,
	}

	present := b.store.Components(item.Entity)

	b.registry.Mask().Iterate(func(k component.Kind) bool {
		if !item.Mask.Has(k) {
			if old != nil {
				if v, ok := old.Get(k); ok {
					e.Components = append(e.Components, Component{Kind: k, Value: v})
				}
			}
			return true
		}

		if !present.Has(k) {
			return true
		}

		v, _ := b.store.Get(item.Entity, k)
		codec, _ := b.registry.Codec(k)

		q, clamped := codec.Quantize(v)
		if clamped {
			b.log.Warn("value clamped",
				"id", item.ID,
				"component", codec.Name,
				"err", udpstate.ErrQuantizationOverflow)
			if b.onClamp != nil {
				b.onClamp(item.ID, k)
			}
		}

		e.Components = append(e.Components, Component{Kind: k, Value: q})

		return true
	})

	return e
}
