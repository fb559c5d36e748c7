// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package quant

import "math/bits"

// Int quantizes integers and enumerations in range [Min, Max].
type Int struct {
	Min int64
	Max int64
}

func NewInt(min, max int64) Int {
	if max <= min || uint64(max-min) > 1<<32-1 {
		panic("quant: invalid int range")
	}
	return Int{Min: min, Max: max}
}

func (i Int) Bits() uint {
	return uint(bits.Len64(uint64(i.Max - i.Min)))
}

func (i Int) Quantize(v int64) (q uint32, clamped bool) {
	switch {
	case v < i.Min:
		return 0, true
	case v > i.Max:
		return uint32(i.Max - i.Min), true
	}
	return uint32(v - i.Min), false
}

func (i Int) Dequantize(q uint32) int64 {
	v := i.Min + int64(q)
	if v > i.Max {
		return i.Max
	}
	return v
}
