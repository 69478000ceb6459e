// Copyright 2020 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the outcome of aggregating a coverage run as
// Prometheus metrics, for collection by the node exporter's textfile
// collector.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "procov"
)

// Metrics is a set of aggregation metrics on its own registry. A nil
// *Metrics is valid and discards all observations.
type Metrics struct {
	registry       *prometheus.Registry
	recordsMerged  prometheus.Counter
	recordsAbsent  prometheus.Counter
	recordsCorrupt prometheus.Counter
	failedWorkers  prometheus.Gauge
	coverage       prometheus.Gauge
}

// New returns a new set of metrics, registered with a new private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		recordsMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "records_merged_total",
			Help:      "Number of raw coverage data records merged",
		}),
		recordsAbsent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "records_absent_total",
			Help:      "Number of listed raw coverage data records that were gone when read",
		}),
		recordsCorrupt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "records_corrupt_total",
			Help:      "Number of undecodable raw coverage data records",
		}),
		failedWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "failed_workers",
			Help:      "Number of workers that contributed no coverage data",
		}),
		coverage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "coverage_percent",
			Help:      "Total statement coverage in percent",
		}),
	}
}

// Registry returns the private registry of these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordMerged counts a merged record.
func (m *Metrics) RecordMerged() {
	if m != nil {
		m.recordsMerged.Inc()
	}
}

// RecordAbsent counts a record gone missing.
func (m *Metrics) RecordAbsent() {
	if m != nil {
		m.recordsAbsent.Inc()
	}
}

// RecordCorrupt counts an undecodable record.
func (m *Metrics) RecordCorrupt() {
	if m != nil {
		m.recordsCorrupt.Inc()
	}
}

// SetFailedWorkers sets the number of failed workers.
func (m *Metrics) SetFailedWorkers(n int) {
	if m != nil {
		m.failedWorkers.Set(float64(n))
	}
}

// SetCoverage sets the total coverage percentage.
func (m *Metrics) SetCoverage(percent float64) {
	if m != nil {
		m.coverage.Set(percent)
	}
}

// WriteTextfile writes the current metrics in the text exposition format to
// the specified file, atomically replacing it.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry),
		"cannot write metrics to %q", path)
}
