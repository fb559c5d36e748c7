// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package store

import (
	"iter"
	"maps"
	"slices"

	"github.com/marko-gacesa/udpstate/component"
)

// MemStore is an in-memory Store with per-kind dirty tracking.
type MemStore struct {
	entities map[Entity]*memEntity
	dirty    [component.MaxKinds]map[Entity]struct{}
	last     Entity
}

type memEntity struct {
	mask   component.Mask
	values [component.MaxKinds]component.Value
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		entities: make(map[Entity]*memEntity),
	}
}

// GetDirty iterates over dirty entities in increasing order.
func (s *MemStore) GetDirty(kind component.Kind) iter.Seq[Entity] {
	dirty := s.dirty[kind]
	return func(yield func(Entity) bool) {
		for _, e := range slices.Sorted(maps.Keys(dirty)) {
			if !yield(e) {
				return
			}
		}
	}
}

func (s *MemStore) ClearDirty(kind component.Kind) {
	clear(s.dirty[kind])
}

func (s *MemStore) Get(e Entity, kind component.Kind) (component.Value, bool) {
	ent := s.entities[e]
	if ent == nil || !ent.mask.Has(kind) {
		return component.Value{}, false
	}
	return ent.values[kind], true
}

func (s *MemStore) Set(e Entity, kind component.Kind, v component.Value) {
	ent := s.entities[e]
	if ent == nil {
		return
	}
	ent.mask = ent.mask.With(kind)
	ent.values[kind] = v
	s.markDirty(e, kind)
}

func (s *MemStore) Remove(e Entity, kind component.Kind) {
	ent := s.entities[e]
	if ent == nil || !ent.mask.Has(kind) {
		return
	}
	ent.mask = ent.mask.Without(kind)
	ent.values[kind] = component.Value{}
	s.markDirty(e, kind)
}

func (s *MemStore) Components(e Entity) component.Mask {
	ent := s.entities[e]
	if ent == nil {
		return 0
	}
	return ent.mask
}

func (s *MemStore) Spawn() Entity {
	s.last++
	s.entities[s.last] = &memEntity{}
	return s.last
}

func (s *MemStore) Despawn(e Entity) {
	if _, ok := s.entities[e]; !ok {
		return
	}
	delete(s.entities, e)
	for kind := range s.dirty {
		delete(s.dirty[kind], e)
	}
}

func (s *MemStore) Exists(e Entity) bool {
	_, ok := s.entities[e]
	return ok
}

func (s *MemStore) Len() int {
	return len(s.entities)
}

func (s *MemStore) markDirty(e Entity, kind component.Kind) {
	if s.dirty[kind] == nil {
		s.dirty[kind] = make(map[Entity]struct{})
	}
	s.dirty[kind][e] = struct{}{}
}
