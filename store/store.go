// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package store defines the entity/component store the replication engine works with.
// A store is not safe for concurrent use. It must be mutated only on the simulation tick boundary.
package store

import (
	"iter"

	"github.com/marko-gacesa/udpstate/component"
)

// Entity is a local entity handle. Zero is never a valid entity.
type Entity uint64

type Store interface {
	// GetDirty iterates over entities whose component of the kind changed since the last ClearDirty.
	GetDirty(kind component.Kind) iter.Seq[Entity]
	ClearDirty(kind component.Kind)

	Get(e Entity, kind component.Kind) (component.Value, bool)
	Set(e Entity, kind component.Kind, v component.Value)
	Remove(e Entity, kind component.Kind)
	Components(e Entity) component.Mask

	Spawn() Entity
	Despawn(e Entity)
	Exists(e Entity) bool
}
