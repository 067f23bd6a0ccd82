// Copyright 2024 The Jadwal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jadwalprom exports jadwal.Table activity as Prometheus metrics.
//
// Attach an Observer to each table that should be tracked and register the
// collectors once:
//
//	jadwalprom.MustRegister(prometheus.DefaultRegisterer)
//	t, err := jadwal.New[string, int](0, jadwal.StringHash, jadwal.Equal[string],
//		jadwal.WithObserver[string, int](jadwalprom.NewObserver("sessions")))
//
// The observer is called from inside table operations, so it only ever
// touches the metrics, which are safe for concurrent scrapes.
package jadwalprom

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jadwal"

var (
	// Resizes counts bucket array rebuilds by table and direction (grow,
	// shrink or rehash).
	Resizes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resizes_total",
		Help:      "Total number of bucket array rebuilds by table and direction",
	}, []string{"table", "direction"})

	// Inserts counts new keys added by table.
	Inserts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inserts_total",
		Help:      "Total number of keys inserted by table",
	}, []string{"table"})

	// Deletes counts keys removed by table.
	Deletes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deletes_total",
		Help:      "Total number of keys deleted by table",
	}, []string{"table"})

	// Entries is the current number of entries by table.
	Entries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "entries",
		Help:      "Current number of entries by table",
	}, []string{"table"})

	// Buckets is the current bucket count by table.
	Buckets = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buckets",
		Help:      "Current bucket array size by table",
	}, []string{"table"})
)

// Collectors returns every collector exported by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{Resizes, Inserts, Deletes, Entries, Buckets}
}

// MustRegister registers the collectors with reg, panicking on failure.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(Collectors()...)
}

// Observer implements jadwal.Observer by updating the package metrics under
// a fixed table label.
type Observer struct {
	grows    prometheus.Counter
	shrinks  prometheus.Counter
	rehashes prometheus.Counter
	inserts  prometheus.Counter
	deletes  prometheus.Counter
	entries  prometheus.Gauge
	buckets  prometheus.Gauge
}

// NewObserver returns an Observer reporting under the given table label.
func NewObserver(table string) *Observer {
	return &Observer{
		grows:    Resizes.WithLabelValues(table, "grow"),
		shrinks:  Resizes.WithLabelValues(table, "shrink"),
		rehashes: Resizes.WithLabelValues(table, "rehash"),
		inserts:  Inserts.WithLabelValues(table),
		deletes:  Deletes.WithLabelValues(table),
		entries:  Entries.WithLabelValues(table),
		buckets:  Buckets.WithLabelValues(table),
	}
}

// Resized implements jadwal.Observer.
func (o *Observer) Resized(oldBuckets, newBuckets int) {
	switch {
	case newBuckets > oldBuckets:
		o.grows.Inc()
	case newBuckets < oldBuckets:
		o.shrinks.Inc()
	default:
		o.rehashes.Inc()
	}
	o.buckets.Set(float64(newBuckets))
}

// Inserted implements jadwal.Observer.
func (o *Observer) Inserted(n int) {
	o.inserts.Inc()
	o.entries.Set(float64(n))
}

// Deleted implements jadwal.Observer.
func (o *Observer) Deleted(n int) {
	o.deletes.Inc()
	o.entries.Set(float64(n))
}

// Reset implements jadwal.Observer.
func (o *Observer) Reset(n, buckets int) {
	o.entries.Set(float64(n))
	o.buckets.Set(float64(buckets))
}
