// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package metrics holds Prometheus collectors of the replication engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "udpstate"

type Metrics struct {
	snapshotsSent   prometheus.Counter
	snapshotBytes   prometheus.Histogram
	bytesSent       prometheus.Counter
	resyncs         prometheus.Counter
	desyncs         prometheus.Counter
	clamps          prometheus.Counter
	reconciliations *prometheus.CounterVec
	replayedInputs  prometheus.Counter
	connections     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// The subsystem distinguishes server and client instances, for example "server".
func New(reg prometheus.Registerer, subsystem string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		snapshotsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshots_sent_total",
			Help:      "Number of snapshot packets sent.",
		}),
		snapshotBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshot_bytes",
			Help:      "Size of snapshot packets in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 8),
		}),
		bytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Number of bytes sent.",
		}),
		resyncs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resyncs_total",
			Help:      "Number of full snapshots sent or requested because no usable baseline existed.",
		}),
		desyncs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "desyncs_total",
			Help:      "Number of deltas that could not be applied.",
		}),
		clamps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "quantization_clamps_total",
			Help:      "Number of component values clamped to the quantization range.",
		}),
		reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconciliations_total",
			Help:      "Number of server states compared with the prediction, by outcome.",
		}, []string{"outcome"}),
		replayedInputs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "replayed_inputs_total",
			Help:      "Number of inputs re-simulated after a misprediction.",
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of connected peers.",
		}),
	}
}

func (m *Metrics) SnapshotSent(size int) {
	if m == nil {
		return
	}
	m.snapshotsSent.Inc()
	m.snapshotBytes.Observe(float64(size))
	m.bytesSent.Add(float64(size))
}

func (m *Metrics) BytesSent(size int) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(size))
}

func (m *Metrics) Resync() {
	if m == nil {
		return
	}
	m.resyncs.Inc()
}

func (m *Metrics) Desync() {
	if m == nil {
		return
	}
	m.desyncs.Inc()
}

func (m *Metrics) Clamped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.clamps.Add(float64(n))
}

func (m *Metrics) Reconciled(outcome string, replayed int) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(outcome).Inc()
	if replayed > 0 {
		m.replayedInputs.Add(float64(replayed))
	}
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}
