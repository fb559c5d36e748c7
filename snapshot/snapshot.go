// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package snapshot builds quantized per-tick snapshots of the replicated entities.
// Snapshots are immutable once built: a new snapshot may share entity component slices with an older one.
package snapshot

import (
	"slices"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/udpstate"
)

type Snapshot struct {
	Seq      sequence.Sequence
	Tick     uint32
	Entities []Entity // sorted by ID
}

type Entity struct {
	ID         udpstate.NetworkID
	Components []Component // sorted by Kind

	// Synced is the tick at which the component values were last read from the store.
	// It is used only by the server and it is not a part of the replicated state.
	Synced uint32
}

type Component struct {
	Kind  component.Kind
	Value component.Quantized
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entities)
}

// Find returns the entity with the network ID.
func (s *Snapshot) Find(id udpstate.NetworkID) (*Entity, bool) {
	if s == nil {
		return nil, false
	}
	idx, ok := slices.BinarySearchFunc(s.Entities, id, func(e Entity, id udpstate.NetworkID) int {
		return cmpID(e.ID, id)
	})
	if !ok {
		return nil, false
	}
	return &s.Entities[idx], true
}

// Equal compares replicated state of two snapshots. Sequence, tick and sync ticks are ignored.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := range s.Len() {
		if !s.Entities[i].Equal(&o.Entities[i]) {
			return false
		}
	}
	return true
}

func (e *Entity) Get(kind component.Kind) (component.Quantized, bool) {
	for i := range e.Components {
		if e.Components[i].Kind == kind {
			return e.Components[i].Value, true
		}
	}
	return component.Quantized{}, false
}

func (e *Entity) Mask() component.Mask {
	var m component.Mask
	for i := range e.Components {
		m = m.With(e.Components[i].Kind)
	}
	return m
}

func (e *Entity) Equal(o *Entity) bool {
	return e.ID == o.ID && slices.Equal(e.Components, o.Components)
}

func cmpID(a, b udpstate.NetworkID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
