// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package replication

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/delta"
	"github.com/marko-gacesa/udpstate/geom"
	"github.com/marko-gacesa/udpstate/snapshot"
	"github.com/marko-gacesa/udpstate/store"
	"github.com/marko-gacesa/udpstate/udpstate"
)

const local udpstate.Token = 42

type fixture struct {
	reg   *component.Registry
	store *store.MemStore
	m     *Manager

	owners []string
}

func newFixture() *fixture {
	f := &fixture{
		reg:   component.DefaultRegistry(),
		store: store.NewMemStore(),
	}
	f.m = NewManager(f.store, f.reg, local, WithOwnerHook(func(r *Remote, old Mode) {
		f.owners = append(f.owners, old.String()+">"+r.Mode.String())
	}))
	return f
}

func (f *fixture) pos(x float64) component.Quantized {
	codec, _ := f.reg.Codec(component.KindPosition)
	q, _ := codec.Quantize(component.Vec(geom.V(x, 0, 0)))
	return q
}

func (f *fixture) entity(id udpstate.NetworkID, x float64) *snapshot.Entity {
	return &snapshot.Entity{
		ID: id,
		Components: []snapshot.Component{
			{Kind: component.KindPosition, Value: f.pos(x)},
		},
	}
}

func (f *fixture) x(t *testing.T, id udpstate.NetworkID) float64 {
	t.Helper()
	r, ok := f.m.Get(id)
	if !ok {
		t.Fatalf("entity %s not found", id)
	}
	v, ok := f.store.Get(r.Entity, component.KindPosition)
	if !ok {
		t.Fatalf("entity %s has no position", id)
	}
	return v.Vec.X
}

func TestManager_Apply(t *testing.T) {
	f := newFixture()

	err := f.m.Apply([]delta.Change{
		{ID: 1, Op: delta.OpCreate, Records: []delta.Record{{ID: 1, Kind: component.KindPosition, New: f.pos(1)}}},
		{ID: 2, Op: delta.OpCreate, Records: []delta.Record{{ID: 2, Kind: component.KindPosition, New: f.pos(2)}}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	err = f.m.Apply([]delta.Change{
		{ID: 1, Op: delta.OpUpdate, Records: []delta.Record{{ID: 1, Kind: component.KindPosition, New: f.pos(5)}}},
		{ID: 2, Op: delta.OpDestroy},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if want, got := 5.0, f.x(t, 1); math.Abs(want-got) > 1e-6 {
		t.Errorf("position: want=%v got=%v", want, got)
	}
	if want, got := []udpstate.NetworkID{1}, f.m.IDs(); !reflect.DeepEqual(want, got) {
		t.Errorf("ids: want=%v got=%v", want, got)
	}
	if want, got := 1, f.store.Len(); want != got {
		t.Errorf("store len: want=%d got=%d", want, got)
	}

	err = f.m.Apply([]delta.Change{
		{ID: 1, Op: delta.OpUpdate, Removed: component.MaskOf(component.KindPosition)},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	r, _ := f.m.Get(1)
	if f.store.Components(r.Entity).Has(component.KindPosition) {
		t.Errorf("removed component still present")
	}
}

func TestManager_Desync(t *testing.T) {
	tests := []struct {
		name   string
		change delta.Change
	}{
		{name: "update-unknown", change: delta.Change{ID: 9, Op: delta.OpUpdate}},
		{name: "destroy-unknown", change: delta.Change{ID: 9, Op: delta.OpDestroy}},
		{name: "create-existing", change: delta.Change{ID: 1, Op: delta.OpCreate}},
		{name: "invalid-op", change: delta.Change{ID: 1, Op: 3}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture()
			_, _ = f.m.SpawnRemote(1, f.entity(1, 0))

			err := f.m.Apply([]delta.Change{test.change})
			if !errors.Is(err, udpstate.ErrProtocolDesync) {
				t.Errorf("want=%v got=%v", udpstate.ErrProtocolDesync, err)
			}
			if !f.m.NeedsResync() {
				t.Errorf("resync not requested")
			}
			if want, got := 1, f.m.Len(); want != got {
				t.Errorf("partial entity created: want=%d got=%d", want, got)
			}

			f.m.ClearResync()
			if f.m.NeedsResync() {
				t.Errorf("resync not cleared")
			}
		})
	}
}

func TestManager_TransferOwnership(t *testing.T) {
	f := newFixture()

	// ownership arrives before the entity
	f.m.TransferOwnership(1, local)

	r, _ := f.m.SpawnRemote(1, f.entity(1, 0))
	if want, got := ModePredicted, r.Mode; want != got {
		t.Errorf("mode after spawn: want=%v got=%v", want, got)
	}

	f.m.TransferOwnership(1, local) // no change
	f.m.TransferOwnership(1, 99)

	if want, got := ModeInterpolated, r.Mode; want != got {
		t.Errorf("mode after losing: want=%v got=%v", want, got)
	}

	f.m.TransferOwnership(1, local)

	if want, got := []string{"predicted>interpolated", "interpolated>predicted"}, f.owners; !reflect.DeepEqual(want, got) {
		t.Errorf("hook: want=%v got=%v", want, got)
	}
}

func TestManager_Sync(t *testing.T) {
	f := newFixture()

	_, _ = f.m.SpawnRemote(1, f.entity(1, 1))
	_, _ = f.m.SpawnRemote(2, f.entity(2, 2))
	f.m.resync = true

	full := &snapshot.Snapshot{
		Entities: []snapshot.Entity{
			*f.entity(2, 20),
			*f.entity(3, 30),
		},
	}

	f.m.Sync(full)

	if want, got := []udpstate.NetworkID{2, 3}, f.m.IDs(); !reflect.DeepEqual(want, got) {
		t.Errorf("ids: want=%v got=%v", want, got)
	}
	if want, got := 20.0, f.x(t, 2); math.Abs(want-got) > 1e-6 {
		t.Errorf("entity 2: want=%v got=%v", want, got)
	}
	if want, got := 30.0, f.x(t, 3); math.Abs(want-got) > 1e-6 {
		t.Errorf("entity 3: want=%v got=%v", want, got)
	}
	if f.m.NeedsResync() {
		t.Errorf("resync flag not cleared")
	}
}

func TestManager_DespawnAll(t *testing.T) {
	f := newFixture()

	var despawned []udpstate.NetworkID
	f.m.onDespawn = func(r *Remote) {
		despawned = append(despawned, r.ID)
	}

	for id := udpstate.NetworkID(1); id <= 3; id++ {
		_, _ = f.m.SpawnRemote(id, f.entity(id, float64(id)))
	}
	f.m.TransferOwnership(8, local)

	if want, got := 3, f.m.DespawnAll(); want != got {
		t.Errorf("despawned: want=%d got=%d", want, got)
	}
	if want, got := []udpstate.NetworkID{1, 2, 3}, despawned; !reflect.DeepEqual(want, got) {
		t.Errorf("hook: want=%v got=%v", want, got)
	}
	if want, got := 0, f.store.Len(); want != got {
		t.Errorf("store len: want=%d got=%d", want, got)
	}

	r, _ := f.m.SpawnRemote(8, f.entity(8, 0))
	if want, got := ModeInterpolated, r.Mode; want != got {
		t.Errorf("pending owner survived despawn all: want=%v got=%v", want, got)
	}
}
