// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package replication

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/delta"
	"github.com/marko-gacesa/udpstate/snapshot"
	"github.com/marko-gacesa/udpstate/store"
	"github.com/marko-gacesa/udpstate/udpstate"
)

type Mode byte

const (
	ModeInterpolated Mode = iota
	ModePredicted
)

func (m Mode) String() string {
	switch m {
	case ModeInterpolated:
		return "interpolated"
	case ModePredicted:
		return "predicted"
	}
	return "unknown"
}

// Remote is a local shadow of a server entity.
type Remote struct {
	ID     udpstate.NetworkID
	Entity store.Entity
	Owner  udpstate.Token
	Mode   Mode
}

// Manager applies received changes to the client's entity store.
// It is not safe for concurrent use.
type Manager struct {
	store    store.Store
	registry *component.Registry
	local    udpstate.Token

	remotes  map[udpstate.NetworkID]*Remote
	byEntity map[store.Entity]udpstate.NetworkID

	// owners received for entities not spawned yet
	pendingOwners map[udpstate.NetworkID]udpstate.Token

	resync bool

	onSpawn   func(r *Remote)
	onDespawn func(r *Remote)
	onOwner   func(r *Remote, old Mode)

	log *slog.Logger
}

func NewManager(s store.Store, registry *component.Registry, local udpstate.Token, opts ...func(*Manager)) *Manager {
	m := &Manager{
		store:         s,
		registry:      registry,
		local:         local,
		remotes:       make(map[udpstate.NetworkID]*Remote),
		byEntity:      make(map[store.Entity]udpstate.NetworkID),
		pendingOwners: make(map[udpstate.NetworkID]udpstate.Token),
		log:           slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func WithLogger(log *slog.Logger) func(*Manager) {
	return func(m *Manager) {
		m.log = log
	}
}

func WithSpawnHook(fn func(r *Remote)) func(*Manager) {
	return func(m *Manager) {
		m.onSpawn = fn
	}
}

// WithDespawnHook sets a function called before the shadow entity is removed from the store.
func WithDespawnHook(fn func(r *Remote)) func(*Manager) {
	return func(m *Manager) {
		m.onDespawn = fn
	}
}

// WithOwnerHook sets a function called when the owner of a remote entity changes.
// When the local client loses an entity the hook must discard its predicted state.
func WithOwnerHook(fn func(r *Remote, old Mode)) func(*Manager) {
	return func(m *Manager) {
		m.onOwner = fn
	}
}

// SpawnRemote creates a local shadow entity from the initial state.
func (m *Manager) SpawnRemote(id udpstate.NetworkID, initial *snapshot.Entity) (*Remote, error) {
	if _, ok := m.remotes[id]; ok {
		m.resync = true
		return nil, fmt.Errorf("spawn %s: %w: %w", id, ErrEntityExists, udpstate.ErrProtocolDesync)
	}

	e := m.store.Spawn()

	r := &Remote{
		ID:     id,
		Entity: e,
		Owner:  udpstate.TokenServer,
		Mode:   ModeInterpolated,
	}

	if owner, ok := m.pendingOwners[id]; ok {
		delete(m.pendingOwners, id)
		r.Owner = owner
		r.Mode = m.modeOf(owner)
	}

	m.remotes[id] = r
	m.byEntity[e] = id

	for _, c := range initial.Components {
		m.set(e, c.Kind, c.Value)
	}

	if m.onSpawn != nil {
		m.onSpawn(r)
	}

	return r, nil
}

// ApplyDelta writes changed component values to the shadow entity and removes removed components.
func (m *Manager) ApplyDelta(id udpstate.NetworkID, records []delta.Record, removed component.Mask) error {
	r, ok := m.remotes[id]
	if !ok {
		m.resync = true
		return fmt.Errorf("update %s: %w: %w", id, ErrUnknownEntity, udpstate.ErrProtocolDesync)
	}

	for _, rec := range records {
		m.set(r.Entity, rec.Kind, rec.New)
	}

	removed.Iterate(func(kind component.Kind) bool {
		m.store.Remove(r.Entity, kind)
		return true
	})

	return nil
}

// DespawnRemote removes the shadow entity and its mapping.
func (m *Manager) DespawnRemote(id udpstate.NetworkID) error {
	r, ok := m.remotes[id]
	if !ok {
		m.resync = true
		return fmt.Errorf("despawn %s: %w: %w", id, ErrUnknownEntity, udpstate.ErrProtocolDesync)
	}

	m.despawn(r)

	return nil
}

// TransferOwnership changes the owner of the entity. If the entity is not spawned yet
// the owner is remembered and applied when it is spawned.
func (m *Manager) TransferOwnership(id udpstate.NetworkID, owner udpstate.Token) {
	r, ok := m.remotes[id]
	if !ok {
		m.pendingOwners[id] = owner
		return
	}

	if r.Owner == owner {
		return
	}

	old := r.Mode

	r.Owner = owner
	r.Mode = m.modeOf(owner)

	m.log.Debug("ownership changed",
		"id", id,
		"owner", owner,
		"mode", r.Mode)

	if m.onOwner != nil {
		m.onOwner(r, old)
	}
}

// Apply applies decoded changes in order. All changes are applied even if some fail.
// The first error is returned.
func (m *Manager) Apply(changes []delta.Change) error {
	var first error

	for i := range changes {
		ch := &changes[i]

		var err error
		switch ch.Op {
		case delta.OpCreate:
			_, err = m.SpawnRemote(ch.ID, entityOf(ch))
		case delta.OpUpdate:
			err = m.ApplyDelta(ch.ID, ch.Records, ch.Removed)
		case delta.OpDestroy:
			err = m.DespawnRemote(ch.ID)
		default:
			m.resync = true
			err = fmt.Errorf("change %s: invalid op %d: %w", ch.ID, ch.Op, udpstate.ErrProtocolDesync)
		}

		if err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Sync makes the shadow entities match the full snapshot. It is used after a resync.
func (m *Manager) Sync(full *snapshot.Snapshot) {
	for _, id := range m.IDs() {
		if _, ok := full.Find(id); !ok {
			m.despawn(m.remotes[id])
		}
	}

	for i := range full.Entities {
		ent := &full.Entities[i]

		r, ok := m.remotes[ent.ID]
		if !ok {
			_, _ = m.SpawnRemote(ent.ID, ent)
			continue
		}

		(m.store.Components(r.Entity) &^ ent.Mask()).Iterate(func(kind component.Kind) bool {
			m.store.Remove(r.Entity, kind)
			return true
		})

		for _, c := range ent.Components {
			m.set(r.Entity, c.Kind, c.Value)
		}
	}

	m.resync = false
}

// DespawnAll removes all shadow entities. It is used when the connection is lost.
func (m *Manager) DespawnAll() int {
	n := len(m.remotes)

	for _, id := range m.IDs() {
		m.despawn(m.remotes[id])
	}

	clear(m.pendingOwners)
	m.resync = false

	return n
}

// NeedsResync reports whether a protocol desync was detected since the last ClearResync.
func (m *Manager) NeedsResync() bool {
	return m.resync
}

func (m *Manager) ClearResync() {
	m.resync = false
}

func (m *Manager) Get(id udpstate.NetworkID) (*Remote, bool) {
	r, ok := m.remotes[id]
	return r, ok
}

func (m *Manager) Lookup(e store.Entity) (udpstate.NetworkID, bool) {
	id, ok := m.byEntity[e]
	return id, ok
}

func (m *Manager) Len() int {
	return len(m.remotes)
}

// IDs returns network IDs of all shadow entities in increasing order.
func (m *Manager) IDs() []udpstate.NetworkID {
	return slices.Sorted(maps.Keys(m.remotes))
}

func (m *Manager) despawn(r *Remote) {
	if m.onDespawn != nil {
		m.onDespawn(r)
	}

	delete(m.remotes, r.ID)
	delete(m.byEntity, r.Entity)
	delete(m.pendingOwners, r.ID)

	m.store.Despawn(r.Entity)
}

func (m *Manager) set(e store.Entity, kind component.Kind, q component.Quantized) {
	codec, ok := m.registry.Codec(kind)
	if !ok {
		m.log.Warn("unregistered component kind", "kind", kind)
		return
	}
	m.store.Set(e, kind, codec.Dequantize(q))
}

func (m *Manager) modeOf(owner udpstate.Token) Mode {
	if owner == m.local {
		return ModePredicted
	}
	return ModeInterpolated
}

func entityOf(ch *delta.Change) *snapshot.Entity {
	e := &snapshot.Entity{
		ID:         ch.ID,
		Components: make([]snapshot.Component, len(ch.Records)),
	}
	for i, rec := range ch.Records {
		e.Components[i] = snapshot.Component{Kind: rec.Kind, Value: rec.New}
	}
	return e
}
