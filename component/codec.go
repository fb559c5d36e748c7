// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package component

import (
	"math"

	"github.com/marko-gacesa/udpstate/bitpack"
	"github.com/marko-gacesa/udpstate/geom"
	"github.com/marko-gacesa/udpstate/quant"
)

// Codec converts values of one component kind to the quantized wire form and back.
type Codec struct {
	Name string

	// Widths holds the bit width of each quantized word. Zero width words are not used.
	Widths [4]uint8

	Quantize    func(Value) (q Quantized, clamped bool)
	Dequantize  func(Quantized) Value
	Interpolate func(a, b Value, t float64) Value
}

func (c *Codec) Bits() uint {
	var n uint
	for _, w := range c.Widths {
		n += uint(w)
	}
	return n
}

func (c *Codec) Write(w *bitpack.Writer, q Quantized) {
	for i, width := range c.Widths {
		if width > 0 {
			w.WriteBits(uint64(q[i]), uint(width))
		}
	}
}

func (c *Codec) Read(r *bitpack.Reader) (q Quantized, err error) {
	for i, width := range c.Widths {
		if width == 0 {
			continue
		}
		var v uint64
		v, err = r.ReadBits(uint(width))
		if err != nil {
			return
		}
		q[i] = uint32(v)
	}
	return
}

func (c *Codec) validate() bool {
	return c.Name != "" && c.Quantize != nil && c.Dequantize != nil && c.Interpolate != nil && c.Bits() > 0
}

func Vec3Codec(name string, v quant.Vec3) Codec {
	w := uint8(v.Float.Bits())
	return Codec{
		Name:   name,
		Widths: [4]uint8{w, w, w},
		Quantize: func(value Value) (q Quantized, clamped bool) {
			var r [3]uint32
			r, clamped = v.Quantize(value.Vec)
			copy(q[:], r[:])
			return
		},
		Dequantize: func(q Quantized) Value {
			return Vec(v.Dequantize([3]uint32{q[0], q[1], q[2]}))
		},
		Interpolate: func(a, b Value, t float64) Value {
			return Vec(geom.Lerp(a.Vec, b.Vec, t))
		},
	}
}

func RotationCodec(name string, r quant.Rotation) Codec {
	w := uint8(r.ComponentBits())
	return Codec{
		Name:   name,
		Widths: [4]uint8{2, w, w, w},
		Quantize: func(value Value) (Quantized, bool) {
			return r.Quantize(value.Quat), false
		},
		Dequantize: func(q Quantized) Value {
			return Rot(r.Dequantize(q))
		},
		Interpolate: func(a, b Value, t float64) Value {
			return Rot(geom.Nlerp(a.Quat, b.Quat, t))
		},
	}
}

// IntCodec returns a codec for integer values. If step is set the value is not
// interpolated but switches from a to b half way between samples.
func IntCodec(name string, i quant.Int, step bool) Codec {
	interpolate := func(a, b Value, t float64) Value {
		return Int(a.Int + int64(math.Round(float64(b.Int-a.Int)*t)))
	}
	if step {
		interpolate = func(a, b Value, t float64) Value {
			if t < 0.5 {
				return a
			}
			return b
		}
	}

	return Codec{
		Name:   name,
		Widths: [4]uint8{uint8(i.Bits())},
		Quantize: func(value Value) (q Quantized, clamped bool) {
			q[0], clamped = i.Quantize(value.Int)
			return
		},
		Dequantize: func(q Quantized) Value {
			return Int(i.Dequantize(q[0]))
		},
		Interpolate: interpolate,
	}
}
