// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package interp smooths remote entity state by rendering it slightly in the past,
// between two received samples.
package interp

import (
	"time"

	"github.com/marko-gacesa/udpstate/component"
)

const (
	DefaultCapacity     = 3
	DefaultDelay        = 100 * time.Millisecond
	DefaultTickInterval = time.Second / 30
)

type Field struct {
	Kind  component.Kind
	Value component.Value
}

type Sample struct {
	At     time.Duration
	Fields []Field // sorted by Kind
}

func (s *Sample) Get(kind component.Kind) (component.Value, bool) {
	for i := range s.Fields {
		if s.Fields[i].Kind == kind {
			return s.Fields[i].Value, true
		}
	}
	return component.Value{}, false
}

// Buffer holds the most recent samples of one remote entity.
type Buffer struct {
	registry *component.Registry
	samples  []Sample
	capacity int
	delay    time.Duration
	interval time.Duration
}

func NewBuffer(registry *component.Registry, opts ...func(*Buffer)) *Buffer {
	b := &Buffer{
		registry: registry,
		capacity: DefaultCapacity,
		delay:    DefaultDelay,
		interval: DefaultTickInterval,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.samples = make([]Sample, 0, b.capacity+1)

	return b
}

func WithCapacity(n int) func(*Buffer) {
	return func(b *Buffer) {
		b.capacity = max(n, 2)
	}
}

// WithDelay sets how far in the past SampleAt renders.
func WithDelay(d time.Duration) func(*Buffer) {
	return func(b *Buffer) {
		b.delay = max(d, 0)
	}
}

// WithTickInterval sets the maximum time the buffer extrapolates past the newest sample.
func WithTickInterval(d time.Duration) func(*Buffer) {
	return func(b *Buffer) {
		b.interval = max(d, 0)
	}
}

// Push adds a sample. Samples not newer than the newest one are dropped.
func (b *Buffer) Push(s Sample) bool {
	if n := len(b.samples); n > 0 && s.At <= b.samples[n-1].At {
		return false
	}

	b.samples = append(b.samples, s)
	if len(b.samples) > b.capacity {
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:b.capacity]
	}

	return true
}

func (b *Buffer) Len() int {
	return len(b.samples)
}

func (b *Buffer) Reset() {
	b.samples = b.samples[:0]
}

// SampleAt returns the state at now minus the interpolation delay.
func (b *Buffer) SampleAt(now time.Duration) (Sample, bool) {
	return b.Sample(now - b.delay)
}

// Sample returns the state at the render time. Between two samples the state is
// interpolated. Past the newest sample it is extrapolated from the last two samples
// for at most one tick interval and then frozen. Before the oldest sample the oldest is returned.
func (b *Buffer) Sample(t time.Duration) (Sample, bool) {
	n := len(b.samples)
	switch {
	case n == 0:
		return Sample{}, false
	case n == 1 || t <= b.samples[0].At:
		return b.samples[0].withAt(t), true
	}

	for i := 1; i < n; i++ {
		from, to := &b.samples[i-1], &b.samples[i]
		if t <= to.At {
			alpha := float64(t-from.At) / float64(to.At-from.At)
			return b.blend(from, to, alpha, t), true
		}
	}

	from, to := &b.samples[n-2], &b.samples[n-1]
	over := min(t-to.At, b.interval)
	alpha := 1 + float64(over)/float64(to.At-from.At)

	return b.blend(from, to, alpha, t), true
}

func (b *Buffer) blend(from, to *Sample, alpha float64, t time.Duration) Sample {
	r := Sample{
		At:     t,
		Fields: make([]Field, 0, len(to.Fields)),
	}

	for _, f := range to.Fields {
		v := f.Value
		if old, ok := from.Get(f.Kind); ok {
			if codec, ok := b.registry.Codec(f.Kind); ok {
				v = codec.Interpolate(old, f.Value, alpha)
			}
		}
		r.Fields = append(r.Fields, Field{Kind: f.Kind, Value: v})
	}

	return r
}

func (s Sample) withAt(t time.Duration) Sample {
	s.At = t
	return s
}
