// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package component

import (
	"math/bits"

	"github.com/marko-gacesa/udpstate/geom"
)

// Kind identifies a replicated component type.
type Kind uint8

const MaxKinds = 32

// Mask is a set of component kinds.
type Mask uint32

const MaskAll = Mask(1<<MaxKinds - 1)

func MaskOf(kinds ...Kind) Mask {
	var m Mask
	for _, k := range kinds {
		m = m.With(k)
	}
	return m
}

func (m Mask) Has(k Kind) bool {
	return m&(1<<k) != 0
}

func (m Mask) With(k Kind) Mask {
	return m | 1<<k
}

func (m Mask) Without(k Kind) Mask {
	return m &^ (1 << k)
}

func (m Mask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// Iterate calls fn for each kind in the mask in increasing order.
func (m Mask) Iterate(fn func(Kind) bool) {
	for m != 0 {
		k := Kind(bits.TrailingZeros32(uint32(m)))
		if !fn(k) {
			return
		}
		m = m.Without(k)
	}
}

// Value is a decoded component value. Which field is meaningful depends on the component kind.
type Value struct {
	Vec  geom.Vec3
	Quat geom.Quat
	Int  int64
}

func Vec(v geom.Vec3) Value {
	return Value{Vec: v}
}

func Rot(q geom.Quat) Value {
	return Value{Quat: q}
}

func Int(i int64) Value {
	return Value{Int: i}
}

// Quantized is a component value in its wire form: up to four fixed-width words.
type Quantized [4]uint32
