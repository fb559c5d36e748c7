// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package delta computes, encodes and applies differences between two snapshots.
package delta

import (
	"fmt"
	"slices"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/snapshot"
	"github.com/marko-gacesa/udpstate/udpstate"
)

type Op byte

const (
	OpCreate Op = iota
	OpUpdate
	OpDestroy
)

const opBits = 2

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDestroy:
		return "destroy"
	}
	return "unknown"
}

// Record is a single changed component value.
type Record struct {
	ID     udpstate.NetworkID
	Kind   component.Kind
	Old    component.Quantized
	HasOld bool
	New    component.Quantized
}

// Change holds all changes of one entity.
type Change struct {
	ID      udpstate.NetworkID
	Op      Op
	Records []Record       // Create and Update only
	Removed component.Mask // Update only
}

type Delta struct {
	Baseline sequence.Sequence
	Seq      sequence.Sequence
	Tick     uint32
	Resync   bool
	Changes  []Change // sorted by ID
}

// Encode returns changes needed to turn baseline into current. Unchanged entities are left out.
// A nil baseline is treated as empty.
func Encode(baseline, current *snapshot.Snapshot) []Change {
	var changes []Change

	var base, curr []snapshot.Entity
	if baseline != nil {
		base = baseline.Entities
	}
	if current != nil {
		curr = current.Entities
	}

	i, j := 0, 0
	for i < len(base) || j < len(curr) {
		switch {
		case j == len(curr) || (i < len(base) && base[i].ID < curr[j].ID):
			changes = append(changes, Change{ID: base[i].ID, Op: OpDestroy})
			i++

		case i == len(base) || curr[j].ID < base[i].ID:
			e := &curr[j]
			ch := Change{ID: e.ID, Op: OpCreate, Records: make([]Record, len(e.Components))}
			for k, c := range e.Components {
				ch.Records[k] = Record{ID: e.ID, Kind: c.Kind, New: c.Value}
			}
			changes = append(changes, ch)
			j++

		default:
			if ch, ok := diff(&base[i], &curr[j]); ok {
				changes = append(changes, ch)
			}
			i++
			j++
		}
	}

	return changes
}

func diff(old, curr *snapshot.Entity) (Change, bool) {
	ch := Change{ID: curr.ID, Op: OpUpdate}

	a, b := old.Components, curr.Components
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i].Kind < b[j].Kind):
			ch.Removed = ch.Removed.With(a[i].Kind)
			i++
		case i == len(a) || b[j].Kind < a[i].Kind:
			ch.Records = append(ch.Records, Record{ID: curr.ID, Kind: b[j].Kind, New: b[j].Value})
			j++
		default:
			if a[i].Value != b[j].Value {
				ch.Records = append(ch.Records, Record{
					ID:     curr.ID,
					Kind:   b[j].Kind,
					Old:    a[i].Value,
					HasOld: true,
					New:    b[j].Value,
				})
			}
			i++
			j++
		}
	}

	return ch, len(ch.Records) > 0 || ch.Removed != 0
}

// Decode applies the changes to the baseline and returns the reconstructed snapshot.
// The baseline is not modified. A change that does not match the baseline
// (update or destroy of an unknown entity, create of an existing one) is a protocol desync.
func Decode(baseline *snapshot.Snapshot, changes []Change) (*snapshot.Snapshot, error) {
	var base []snapshot.Entity
	if baseline != nil {
		base = baseline.Entities
	}

	result := &snapshot.Snapshot{
		Entities: make([]snapshot.Entity, 0, len(base)+len(changes)),
	}

	i := 0
	for n := range changes {
		ch := &changes[n]

		if n > 0 && changes[n-1].ID >= ch.ID {
			return nil, fmt.Errorf("%w: changes not ordered at %v", udpstate.ErrProtocolDesync, ch.ID)
		}

		for i < len(base) && base[i].ID < ch.ID {
			result.Entities = append(result.Entities, base[i])
			i++
		}

		exists := i < len(base) && base[i].ID == ch.ID

		switch ch.Op {
		case OpCreate:
			if exists {
				return nil, fmt.Errorf("%w: create of existing entity %v", udpstate.ErrProtocolDesync, ch.ID)
			}
			e := snapshot.Entity{ID: ch.ID, Components: make([]snapshot.Component, 0, len(ch.Records))}
			for _, r := range ch.Records {
				e.Components = append(e.Components, snapshot.Component{Kind: r.Kind, Value: r.New})
			}
			sortComponents(e.Components)
			result.Entities = append(result.Entities, e)

		case OpUpdate:
			if !exists {
				return nil, fmt.Errorf("%w: update of unknown entity %v", udpstate.ErrProtocolDesync, ch.ID)
			}
			result.Entities = append(result.Entities, apply(&base[i], ch))
			i++

		case OpDestroy:
			if !exists {
				return nil, fmt.Errorf("%w: destroy of unknown entity %v", udpstate.ErrProtocolDesync, ch.ID)
			}
			i++

		default:
			return nil, fmt.Errorf("%w: invalid op %d", udpstate.ErrProtocolDesync, ch.Op)
		}
	}

	result.Entities = append(result.Entities, base[i:]...)

	return result, nil
}

func apply(old *snapshot.Entity, ch *Change) snapshot.Entity {
	e := snapshot.Entity{
		ID:         old.ID,
		Components: make([]snapshot.Component, 0, len(old.Components)+len(ch.Records)),
	}

	for _, c := range old.Components {
		if ch.Removed.Has(c.Kind) {
			continue
		}
		e.Components = append(e.Components, c)
	}

	for _, r := range ch.Records {
		idx := slices.IndexFunc(e.Components, func(c snapshot.Component) bool { return c.Kind == r.Kind })
		if idx >= 0 {
			e.Components[idx].Value = r.New
		} else {
			e.Components = append(e.Components, snapshot.Component{Kind: r.Kind, Value: r.New})
		}
	}

	sortComponents(e.Components)

	return e
}

func sortComponents(c []snapshot.Component) {
	slices.SortFunc(c, func(a, b snapshot.Component) int {
		return int(a.Kind) - int(b.Kind)
	})
}
