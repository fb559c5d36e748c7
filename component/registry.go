// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package component

import (
	"fmt"
	"math/bits"

	"github.com/marko-gacesa/udpstate/quant"
)

// Registry holds codecs indexed by component kind. Codecs are registered once at startup
// and the registry must not be modified after it is handed to the engine.
type Registry struct {
	codecs [MaxKinds]*Codec
	mask   Mask
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(kind Kind, c Codec) {
	if kind >= MaxKinds {
		panic(fmt.Sprintf("component: kind %d out of range", kind))
	}
	if r.codecs[kind] != nil {
		panic(fmt.Sprintf("component: kind %d already registered as %q", kind, r.codecs[kind].Name))
	}
	if !c.validate() {
		panic(fmt.Sprintf("component: invalid codec for kind %d", kind))
	}

	r.codecs[kind] = &c
	r.mask = r.mask.With(kind)
}

func (r *Registry) Codec(kind Kind) (*Codec, bool) {
	if kind >= MaxKinds || r.codecs[kind] == nil {
		return nil, false
	}
	return r.codecs[kind], true
}

// Mask returns the set of registered kinds.
func (r *Registry) Mask() Mask {
	return r.mask
}

// MaskBits returns the number of bits needed to encode a component mask on the wire.
func (r *Registry) MaskBits() uint {
	return uint(bits.Len32(uint32(r.mask)))
}

func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, r.mask.Count())
	r.mask.Iterate(func(k Kind) bool {
		kinds = append(kinds, k)
		return true
	})
	return kinds
}

const (
	KindPosition Kind = iota
	KindRotation
	KindVelocity
	KindHealth
	KindState
)

// DefaultRegistry returns a registry with the common set of components: position
// (±1000 m at 1 cm), rotation (smallest-three, 10 bits per component), velocity
// (±100 m/s at 1 cm/s), health (0..1000) and state (enumeration 0..15, not interpolated).
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindPosition, Vec3Codec("position", quant.NewVec3(-1000, 1000, 0.01)))
	r.Register(KindRotation, RotationCodec("rotation", quant.NewRotation(10)))
	r.Register(KindVelocity, Vec3Codec("velocity", quant.NewVec3(-100, 100, 0.01)))
	r.Register(KindHealth, IntCodec("health", quant.NewInt(0, 1000), false))
	r.Register(KindState, IntCodec("state", quant.NewInt(0, 15), true))
	return r
}
