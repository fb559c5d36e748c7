// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package snapshot

import (
	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/store"
)

const trackerPruneInterval = 64

// Tracker reads dirty flags from the store once per tick and remembers for each entity
// and component kind the tick of the last change. It is the only user of ClearDirty.
type Tracker struct {
	store    store.Store
	registry *component.Registry
	changed  map[store.Entity]*[component.MaxKinds]uint32
	tick     uint32
	collects int
}

func NewTracker(s store.Store, registry *component.Registry) *Tracker {
	return &Tracker{
		store:    s,
		registry: registry,
		changed:  make(map[store.Entity]*[component.MaxKinds]uint32),
	}
}

// Collect records the dirty components as changed at the tick and clears the dirty flags.
// Ticks passed to successive calls must be increasing and greater than zero.
func (t *Tracker) Collect(tick uint32) {
	t.tick = tick

	for _, kind := range t.registry.Kinds() {
		for e := range t.store.GetDirty(kind) {
			rec := t.changed[e]
			if rec == nil {
				rec = &[component.MaxKinds]uint32{}
				t.changed[e] = rec
			}
			rec[kind] = tick
		}
		t.store.ClearDirty(kind)
	}

	t.collects++
	if t.collects%trackerPruneInterval == 0 {
		for e := range t.changed {
			if !t.store.Exists(e) {
				delete(t.changed, e)
			}
		}
	}
}

// Tick returns the tick of the last Collect call.
func (t *Tracker) Tick() uint32 {
	return t.tick
}

// Changed returns the set of component kinds of the entity changed after the since tick.
// If the tracker has never seen a change of the entity, ok is false and the caller
// should treat all components as changed.
func (t *Tracker) Changed(e store.Entity, since uint32) (mask component.Mask, ok bool) {
	rec := t.changed[e]
	if rec == nil {
		return 0, false
	}

	t.registry.Mask().Iterate(func(k component.Kind) bool {
		if rec[k] > since {
			mask = mask.With(k)
		}
		return true
	})

	return mask, true
}

func (t *Tracker) Forget(e store.Entity) {
	delete(t.changed, e)
}
