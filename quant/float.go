// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package quant maps bounded numeric values to fixed-width unsigned integers and back.
// Values outside the declared range are clamped, and the clamping is reported to the caller.
package quant

import (
	"math"
	"math/bits"
)

// Float quantizes values in range [Min, Max] in steps of Resolution.
type Float struct {
	Min        float64
	Max        float64
	Resolution float64

	steps uint32
	bits  uint
}

func NewFloat(min, max, resolution float64) Float {
	if !(max > min) || !(resolution > 0) {
		panic("quant: invalid float range")
	}

	steps := (max - min) / resolution
	if r := math.Round(steps); math.Abs(steps-r) < 1e-6 {
		steps = r
	} else {
		steps = math.Ceil(steps)
	}
	if steps > math.MaxUint32 {
		panic("quant: float range requires more than 32 bits")
	}

	return Float{
		Min:        min,
		Max:        max,
		Resolution: resolution,
		steps:      uint32(steps),
		bits:       uint(bits.Len32(uint32(steps))),
	}
}

// NewFloatBits creates a quantizer that spreads the range evenly over the given number of bits.
func NewFloatBits(min, max float64, n uint) Float {
	if !(max > min) || n == 0 || n > 32 {
		panic("quant: invalid float range")
	}

	steps := uint32(math.MaxUint32 >> (32 - n))

	return Float{
		Min:        min,
		Max:        max,
		Resolution: (max - min) / float64(steps),
		steps:      steps,
		bits:       n,
	}
}

// Bits returns the number of bits a quantized value occupies.
func (f Float) Bits() uint {
	return f.bits
}

func (f Float) Steps() uint32 {
	return f.steps
}

func (f Float) Quantize(v float64) (q uint32, clamped bool) {
	switch {
	case math.IsNaN(v):
		return 0, true
	case v < f.Min:
		return 0, true
	case v > f.Max:
		return f.steps, true
	}

	s := math.Round((v - f.Min) / f.Resolution)
	if s > float64(f.steps) {
		return f.steps, false
	}

	return uint32(s), false
}

func (f Float) Dequantize(q uint32) float64 {
	if q >= f.steps {
		return f.Max
	}
	return f.Min + float64(q)*f.Resolution
}
