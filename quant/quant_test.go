// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package quant

import (
	"math"
	"math/rand"
	"testing"

	"github.com/marko-gacesa/udpstate/geom"
)

func TestFloat_Bits(t *testing.T) {
	tests := []struct {
		name string
		f    Float
		exp  uint
	}{
		{name: "position", f: NewFloat(-1000, 1000, 0.01), exp: 18},
		{name: "velocity", f: NewFloat(-100, 100, 0.01), exp: 15},
		{name: "unit", f: NewFloat(0, 1, 0.5), exp: 2},
		{name: "bits", f: NewFloatBits(-1, 1, 10), exp: 10},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if want, got := test.exp, test.f.Bits(); want != got {
				t.Errorf("want=%d got=%d", want, got)
			}
		})
	}
}

func TestFloat_Quantize(t *testing.T) {
	f := NewFloat(-1000, 1000, 0.01)

	tests := []struct {
		name       string
		v          float64
		expQ       uint32
		expClamped bool
	}{
		{name: "min", v: -1000, expQ: 0},
		{name: "max", v: 1000, expQ: 200000},
		{name: "zero", v: 0, expQ: 100000},
		{name: "rounding", v: 0.014, expQ: 100001},
		{name: "below", v: -1500, expQ: 0, expClamped: true},
		{name: "above", v: 1500, expQ: 200000, expClamped: true},
		{name: "nan", v: math.NaN(), expQ: 0, expClamped: true},
		{name: "inf", v: math.Inf(1), expQ: 200000, expClamped: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			q, clamped := f.Quantize(test.v)
			if want, got := test.expQ, q; want != got {
				t.Errorf("q: want=%d got=%d", want, got)
			}
			if want, got := test.expClamped, clamped; want != got {
				t.Errorf("clamped: want=%t got=%t", want, got)
			}
		})
	}
}

func TestFloat_RoundTrip(t *testing.T) {
	quantizers := []Float{
		NewFloat(-1000, 1000, 0.01),
		NewFloat(-100, 100, 0.01),
		NewFloat(0, 1, 1.0/255),
		NewFloatBits(-5, 5, 12),
	}

	rnd := rand.New(rand.NewSource(42))

	for _, f := range quantizers {
		for range 10000 {
			q := uint32(rnd.Int63n(int64(f.Steps()) + 1))
			v := f.Dequantize(q)
			if q2, clamped := f.Quantize(v); q2 != q || clamped {
				t.Fatalf("quantizer %v: q=%d v=%v: got=%d clamped=%t", f, q, v, q2, clamped)
			}

			x := f.Min + rnd.Float64()*(f.Max-f.Min)
			q, clamped := f.Quantize(x)
			if clamped {
				t.Fatalf("quantizer %v: value %v in range reported as clamped", f, x)
			}
			if d := math.Abs(f.Dequantize(q) - x); d > f.Resolution/2+1e-9 {
				t.Fatalf("quantizer %v: value %v error %v exceeds half resolution", f, x, d)
			}
		}
	}
}

func TestInt(t *testing.T) {
	i := NewInt(0, 1000)

	if want, got := uint(10), i.Bits(); want != got {
		t.Errorf("bits: want=%d got=%d", want, got)
	}

	for v := int64(0); v <= 1000; v++ {
		q, clamped := i.Quantize(v)
		if clamped || i.Dequantize(q) != v {
			t.Fatalf("round trip of %d failed", v)
		}
	}

	if q, clamped := i.Quantize(-5); q != 0 || !clamped {
		t.Errorf("below: got q=%d clamped=%t", q, clamped)
	}
	if q, clamped := i.Quantize(5000); q != 1000 || !clamped {
		t.Errorf("above: got q=%d clamped=%t", q, clamped)
	}

	e := NewInt(-8, 7)
	if want, got := uint(4), e.Bits(); want != got {
		t.Errorf("enum bits: want=%d got=%d", want, got)
	}
	if want, got := int64(-8), e.Dequantize(0); want != got {
		t.Errorf("enum min: want=%d got=%d", want, got)
	}
}

func TestVec3(t *testing.T) {
	v := NewVec3(-1000, 1000, 0.01)

	if want, got := uint(54), v.Bits(); want != got {
		t.Errorf("bits: want=%d got=%d", want, got)
	}

	q, clamped := v.Quantize(geom.V(1.5, -2.25, 999.99))
	if clamped {
		t.Errorf("unexpected clamping")
	}

	if d := v.Dequantize(q).Dist(geom.V(1.5, -2.25, 999.99)); d > 0.01 {
		t.Errorf("distance too big: %v", d)
	}

	if _, clamped := v.Quantize(geom.V(0, 1001, 0)); !clamped {
		t.Errorf("expected clamping")
	}
}

func TestRotation_RoundTrip(t *testing.T) {
	r := NewRotation(10)

	if want, got := uint(32), r.Bits(); want != got {
		t.Errorf("bits: want=%d got=%d", want, got)
	}

	rnd := rand.New(rand.NewSource(7))

	// the worst case error for 10 bits per component is well below one degree
	const maxAngle = math.Pi / 180

	for range 10000 {
		q := geom.Quat{
			X: rnd.NormFloat64(),
			Y: rnd.NormFloat64(),
			Z: rnd.NormFloat64(),
			W: rnd.NormFloat64(),
		}.Normalize()

		words := r.Quantize(q)
		if words[0] > 3 {
			t.Fatalf("invalid index %d", words[0])
		}

		for _, w := range words[1:] {
			if w>>r.ComponentBits() != 0 {
				t.Fatalf("component %d does not fit into %d bits", w, r.ComponentBits())
			}
		}

		d := r.Dequantize(words)
		if a := q.Angle(d); a > maxAngle {
			t.Fatalf("rotation %v: decoded %v: angle error %v", q, d, a)
		}
	}
}

func TestRotation_Negative(t *testing.T) {
	r := NewRotation(10)

	q := geom.FromAxisAngle(geom.V(0, 1, 0), math.Pi/3)

	a := r.Quantize(q)
	b := r.Quantize(q.Neg())

	if a != b {
		t.Errorf("q and -q must quantize to the same words: %v %v", a, b)
	}
}
