// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package geom

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestLerp(t *testing.T) {
	a := V(0, 0, 0)
	b := V(10, -20, 4)

	tests := []struct {
		name string
		t    float64
		exp  Vec3
	}{
		{name: "start", t: 0, exp: a},
		{name: "end", t: 1, exp: b},
		{name: "middle", t: 0.5, exp: V(5, -10, 2)},
		{name: "extrapolate", t: 1.5, exp: V(15, -30, 6)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Lerp(a, b, test.t); got.Dist(test.exp) > epsilon {
				t.Errorf("want=%v got=%v", test.exp, got)
			}
		})
	}
}

func TestVec3_Len(t *testing.T) {
	if want, got := 5.0, V(3, 0, 4).Len(); math.Abs(want-got) > epsilon {
		t.Errorf("want=%v got=%v", want, got)
	}
	if want, got := 3.0, V(1, 2, 2).Dist(V(0, 0, 0)); math.Abs(want-got) > epsilon {
		t.Errorf("want=%v got=%v", want, got)
	}
}

func TestQuat_Angle(t *testing.T) {
	axis := V(0, 1, 0)

	tests := []struct {
		name string
		a, b Quat
		exp  float64
	}{
		{name: "same", a: Identity(), b: Identity(), exp: 0},
		{name: "quarter", a: Identity(), b: FromAxisAngle(axis, math.Pi/2), exp: math.Pi / 2},
		{name: "negated", a: FromAxisAngle(axis, 1), b: FromAxisAngle(axis, 1).Neg(), exp: 0},
		{name: "zero-axis", a: Identity(), b: FromAxisAngle(V(0, 0, 0), 1), exp: 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.a.Angle(test.b); math.Abs(test.exp-got) > 1e-6 {
				t.Errorf("want=%v got=%v", test.exp, got)
			}
		})
	}
}

func TestQuat_Mul(t *testing.T) {
	axis := V(1, 0, 0)
	q := FromAxisAngle(axis, 0.3).Mul(FromAxisAngle(axis, 0.5))

	if got := q.Angle(FromAxisAngle(axis, 0.8)); got > 1e-6 {
		t.Errorf("rotations must compose, angle=%v", got)
	}

	if got := q.Mul(q.Conjugate()).Angle(Identity()); got > 1e-6 {
		t.Errorf("conjugate must invert, angle=%v", got)
	}
}

func TestNlerp(t *testing.T) {
	axis := V(0, 0, 1)
	a := FromAxisAngle(axis, 0)
	b := FromAxisAngle(axis, math.Pi/2)

	mid := Nlerp(a, b, 0.5)
	if got := mid.Angle(FromAxisAngle(axis, math.Pi/4)); got > 1e-6 {
		t.Errorf("middle: angle=%v", got)
	}

	// the negated quaternion is the same rotation, the result must take the short arc
	mid = Nlerp(a, b.Neg(), 0.5)
	if got := mid.Angle(FromAxisAngle(axis, math.Pi/4)); got > 1e-6 {
		t.Errorf("shortest arc: angle=%v", got)
	}

	if got := math.Sqrt(mid.Dot(mid)); math.Abs(got-1) > epsilon {
		t.Errorf("must be normalized, len=%v", got)
	}
}
