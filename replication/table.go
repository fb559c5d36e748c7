// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package replication maps local entities to network entities on the server and on the client.
package replication

import (
	"slices"

	"github.com/marko-gacesa/udpstate/store"
	"github.com/marko-gacesa/udpstate/udpstate"
)

const DefaultPriority = 1.0

// IDAllocator hands out network IDs in increasing order. Zero is never returned.
type IDAllocator struct {
	last udpstate.NetworkID
}

// Next returns the next network ID for which inUse returns false.
func (a *IDAllocator) Next(inUse func(udpstate.NetworkID) bool) (udpstate.NetworkID, error) {
	id := a.last
	for range uint64(1) << 32 {
		id++
		if id == udpstate.NetworkIDNone {
			continue
		}
		if inUse == nil || !inUse(id) {
			a.last = id
			return id, nil
		}
	}
	return udpstate.NetworkIDNone, ErrIDsExhausted
}

type Entry struct {
	ID       udpstate.NetworkID
	Entity   store.Entity
	Owner    udpstate.Token
	Priority float64
}

// Table holds server side replicated entities. It implements snapshot.Index.
// It is not safe for concurrent use.
type Table struct {
	alloc    IDAllocator
	entries  map[udpstate.NetworkID]*Entry
	byEntity map[store.Entity]udpstate.NetworkID
	ids      []udpstate.NetworkID // sorted
}

func NewTable() *Table {
	return &Table{
		entries:  make(map[udpstate.NetworkID]*Entry),
		byEntity: make(map[store.Entity]udpstate.NetworkID),
	}
}

// Register starts replicating the entity. Registering an entity twice returns the existing ID.
func (t *Table) Register(e store.Entity, owner udpstate.Token, priority float64) (udpstate.NetworkID, error) {
	if id, ok := t.byEntity[e]; ok {
		return id, nil
	}

	id, err := t.alloc.Next(func(id udpstate.NetworkID) bool {
		_, ok := t.entries[id]
		return ok
	})
	if err != nil {
		return udpstate.NetworkIDNone, err
	}

	t.entries[id] = &Entry{
		ID:       id,
		Entity:   e,
		Owner:    owner,
		Priority: priority,
	}
	t.byEntity[e] = id

	pos, _ := slices.BinarySearch(t.ids, id)
	t.ids = slices.Insert(t.ids, pos, id)

	return id, nil
}

func (t *Table) Unregister(id udpstate.NetworkID) (Entry, bool) {
	entry, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}

	delete(t.entries, id)
	delete(t.byEntity, entry.Entity)

	if pos, found := slices.BinarySearch(t.ids, id); found {
		t.ids = slices.Delete(t.ids, pos, pos+1)
	}

	return *entry, true
}

func (t *Table) UnregisterEntity(e store.Entity) (Entry, bool) {
	id, ok := t.byEntity[e]
	if !ok {
		return Entry{}, false
	}
	return t.Unregister(id)
}

func (t *Table) SetOwner(id udpstate.NetworkID, owner udpstate.Token) bool {
	entry, ok := t.entries[id]
	if !ok {
		return false
	}
	entry.Owner = owner
	return true
}

func (t *Table) SetPriority(id udpstate.NetworkID, priority float64) bool {
	entry, ok := t.entries[id]
	if !ok {
		return false
	}
	entry.Priority = priority
	return true
}

// ReleaseOwner gives all entities owned by the owner back to the server.
func (t *Table) ReleaseOwner(owner udpstate.Token) []udpstate.NetworkID {
	var released []udpstate.NetworkID
	for _, id := range t.ids {
		if entry := t.entries[id]; entry.Owner == owner {
			entry.Owner = udpstate.TokenServer
			released = append(released, id)
		}
	}
	return released
}

func (t *Table) Get(id udpstate.NetworkID) (Entry, bool) {
	entry, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

func (t *Table) Lookup(e store.Entity) (udpstate.NetworkID, bool) {
	id, ok := t.byEntity[e]
	return id, ok
}

func (t *Table) Len() int {
	return len(t.ids)
}

// Iterate calls fn for each registered entity in increasing network ID order.
func (t *Table) Iterate(fn func(id udpstate.NetworkID, e store.Entity) bool) {
	for _, id := range t.ids {
		if !fn(id, t.entries[id].Entity) {
			return
		}
	}
}

// Owned returns IDs of entities owned by the owner.
func (t *Table) Owned(owner udpstate.Token) []udpstate.NetworkID {
	var ids []udpstate.NetworkID
	for _, id := range t.ids {
		if t.entries[id].Owner == owner {
			ids = append(ids, id)
		}
	}
	return ids
}
