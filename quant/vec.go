// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package quant

import "github.com/marko-gacesa/udpstate/geom"

// Vec3 quantizes each coordinate of a vector with the same Float quantizer.
type Vec3 struct {
	Float
}

func NewVec3(min, max, resolution float64) Vec3 {
	return Vec3{Float: NewFloat(min, max, resolution)}
}

func (q Vec3) Bits() uint {
	return 3 * q.Float.Bits()
}

func (q Vec3) Quantize(v geom.Vec3) (r [3]uint32, clamped bool) {
	var cx, cy, cz bool
	r[0], cx = q.Float.Quantize(v.X)
	r[1], cy = q.Float.Quantize(v.Y)
	r[2], cz = q.Float.Quantize(v.Z)
	return r, cx || cy || cz
}

func (q Vec3) Dequantize(r [3]uint32) geom.Vec3 {
	return geom.Vec3{
		X: q.Float.Dequantize(r[0]),
		Y: q.Float.Dequantize(r[1]),
		Z: q.Float.Dequantize(r[2]),
	}
}
