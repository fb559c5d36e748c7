// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package component

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/marko-gacesa/udpstate/bitpack"
	"github.com/marko-gacesa/udpstate/geom"
)

func TestMask(t *testing.T) {
	m := MaskOf(KindPosition, KindHealth, 31)

	if !m.Has(KindPosition) || !m.Has(KindHealth) || !m.Has(31) || m.Has(KindRotation) {
		t.Errorf("unexpected mask content: %b", m)
	}

	if want, got := 3, m.Count(); want != got {
		t.Errorf("count: want=%d got=%d", want, got)
	}

	var kinds []Kind
	m.Iterate(func(k Kind) bool {
		kinds = append(kinds, k)
		return true
	})
	if want, got := []Kind{KindPosition, KindHealth, 31}, kinds; !reflect.DeepEqual(want, got) {
		t.Errorf("iterate: want=%v got=%v", want, got)
	}

	if want, got := MaskOf(KindHealth, 31), m.Without(KindPosition); want != got {
		t.Errorf("without: want=%b got=%b", want, got)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	if want, got := []Kind{KindPosition, KindRotation, KindVelocity, KindHealth, KindState}, r.Kinds(); !reflect.DeepEqual(want, got) {
		t.Errorf("kinds: want=%v got=%v", want, got)
	}

	if want, got := uint(5), r.MaskBits(); want != got {
		t.Errorf("mask bits: want=%d got=%d", want, got)
	}

	tests := []struct {
		kind    Kind
		name    string
		expBits uint
	}{
		{kind: KindPosition, name: "position", expBits: 54},
		{kind: KindRotation, name: "rotation", expBits: 32},
		{kind: KindVelocity, name: "velocity", expBits: 45},
		{kind: KindHealth, name: "health", expBits: 10},
		{kind: KindState, name: "state", expBits: 4},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, ok := r.Codec(test.kind)
			if !ok {
				t.Fatalf("codec not found")
			}
			if want, got := test.name, c.Name; want != got {
				t.Errorf("name: want=%s got=%s", want, got)
			}
			if want, got := test.expBits, c.Bits(); want != got {
				t.Errorf("bits: want=%d got=%d", want, got)
			}
		})
	}

	if _, ok := r.Codec(20); ok {
		t.Errorf("unregistered kind found")
	}
}

func TestRegistry_RegisterTwice(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic")
		}
	}()

	r := DefaultRegistry()
	r.Register(KindPosition, *r.codecs[KindVelocity])
}

func TestCodec_WireRoundTrip(t *testing.T) {
	r := DefaultRegistry()
	rnd := rand.New(rand.NewSource(3))

	randomValue := func(kind Kind) Value {
		switch kind {
		case KindPosition:
			return Vec(geom.V(rnd.Float64()*2000-1000, rnd.Float64()*2000-1000, rnd.Float64()*2000-1000))
		case KindVelocity:
			return Vec(geom.V(rnd.Float64()*200-100, rnd.Float64()*200-100, rnd.Float64()*200-100))
		case KindRotation:
			return Rot(geom.FromAxisAngle(geom.V(rnd.Float64(), rnd.Float64(), rnd.Float64()), rnd.Float64()*2*math.Pi))
		case KindHealth:
			return Int(rnd.Int63n(1001))
		default:
			return Int(rnd.Int63n(16))
		}
	}

	for range 1000 {
		kinds := r.Kinds()
		quantized := make([]Quantized, len(kinds))

		w := bitpack.NewWriter(nil)
		for i, kind := range kinds {
			c, _ := r.Codec(kind)
			q, clamped := c.Quantize(randomValue(kind))
			if clamped {
				t.Fatalf("kind %d: in-range value clamped", kind)
			}
			quantized[i] = q
			c.Write(w, q)
		}

		reader := bitpack.NewReader(w.Bytes())
		for i, kind := range kinds {
			c, _ := r.Codec(kind)
			q, err := c.Read(reader)
			if err != nil {
				t.Fatalf("kind %d: unexpected error: %s", kind, err)
			}
			if want, got := quantized[i], q; want != got {
				t.Fatalf("kind %d: want=%v got=%v", kind, want, got)
			}

			// Positions, velocities and integers are stable under a second quantization.
			if kind != KindRotation {
				if q2, _ := c.Quantize(c.Dequantize(q)); q2 != q {
					t.Fatalf("kind %d: requantization: want=%v got=%v", kind, q, q2)
				}
			}
		}
	}
}

func TestCodec_Interpolate(t *testing.T) {
	r := DefaultRegistry()

	pos, _ := r.Codec(KindPosition)
	if want, got := geom.V(5, 0, -5), pos.Interpolate(Vec(geom.V(0, 0, 0)), Vec(geom.V(10, 0, -10)), 0.5).Vec; want != got {
		t.Errorf("position: want=%v got=%v", want, got)
	}

	health, _ := r.Codec(KindHealth)
	if want, got := int64(75), health.Interpolate(Int(50), Int(100), 0.5).Int; want != got {
		t.Errorf("health: want=%d got=%d", want, got)
	}

	state, _ := r.Codec(KindState)
	if want, got := int64(1), state.Interpolate(Int(1), Int(7), 0.4).Int; want != got {
		t.Errorf("state before half: want=%d got=%d", want, got)
	}
	if want, got := int64(7), state.Interpolate(Int(1), Int(7), 0.6).Int; want != got {
		t.Errorf("state after half: want=%d got=%d", want, got)
	}

	rot, _ := r.Codec(KindRotation)
	a := geom.Identity()
	b := geom.FromAxisAngle(geom.V(0, 0, 1), math.Pi/2)
	mid := rot.Interpolate(Rot(a), Rot(b), 0.5).Quat
	if d := mid.Angle(geom.FromAxisAngle(geom.V(0, 0, 1), math.Pi/4)); d > 1e-6 {
		t.Errorf("rotation: angle error %v", d)
	}
}
