// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package quant

import (
	"math"

	"github.com/marko-gacesa/udpstate/geom"
)

const rotationIndexBits = 2

// Rotation quantizes unit quaternions with the smallest-three technique.
// The largest component is omitted and its index stored in two bits.
// The remaining three components lie in [-1/sqrt2, 1/sqrt2] and are quantized
// with the given number of bits each. The omitted component is made positive
// before encoding since q and -q describe the same rotation.
type Rotation struct {
	f Float
}

func NewRotation(componentBits uint) Rotation {
	return Rotation{f: NewFloatBits(-math.Sqrt2/2, math.Sqrt2/2, componentBits)}
}

func (r Rotation) ComponentBits() uint {
	return r.f.Bits()
}

func (r Rotation) Bits() uint {
	return rotationIndexBits + 3*r.f.Bits()
}

// Quantize returns the index of the omitted component followed by the three quantized components.
func (r Rotation) Quantize(q geom.Quat) [4]uint32 {
	q = q.Normalize()
	c := [4]float64{q.X, q.Y, q.Z, q.W}

	largest := 0
	for i := 1; i < 4; i++ {
		if math.Abs(c[i]) > math.Abs(c[largest]) {
			largest = i
		}
	}

	if c[largest] < 0 {
		for i := range c {
			c[i] = -c[i]
		}
	}

	result := [4]uint32{uint32(largest)}
	j := 1
	for i := range 4 {
		if i == largest {
			continue
		}
		result[j], _ = r.f.Quantize(c[i])
		j++
	}

	return result
}

func (r Rotation) Dequantize(v [4]uint32) geom.Quat {
	largest := int(v[0] & 3)

	var c [4]float64
	var sum float64

	j := 1
	for i := range 4 {
		if i == largest {
			continue
		}
		c[i] = r.f.Dequantize(v[j])
		sum += c[i] * c[i]
		j++
	}

	c[largest] = math.Sqrt(math.Max(0, 1-sum))

	return geom.Quat{X: c[0], Y: c[1], Z: c[2], W: c[3]}.Normalize()
}
