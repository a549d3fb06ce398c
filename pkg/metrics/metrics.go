// Copyright 2020 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics defines label-aware metric interfaces. Components accept
// these interfaces so that tests can substitute the fakes in this package
// for the prometheus-backed implementations.
package metrics

// Counter describes a metric that accumulates values monotonically.
type Counter interface {
	With(labelValues ...string) Counter
	Add(delta float64)
}

// Gauge describes a metric that takes specific values over time.
type Gauge interface {
	With(labelValues ...string) Gauge
	Set(value float64)
	Add(delta float64)
}

// Histogram describes a metric that takes repeated observations of the same
// kind of thing, and produces a statistical summary of those observations.
type Histogram interface {
	With(labelValues ...string) Histogram
	Observe(value float64)
}

// CounterInc increases the passed in counter by 1. A nil counter is ignored.
func CounterInc(c Counter) {
	if c == nil {
		return
	}
	c.Add(1)
}

// CounterAdd increases the passed in counter by the amount specified. A nil
// counter is ignored.
func CounterAdd(c Counter, v float64) {
	if c == nil {
		return
	}
	c.Add(v)
}

// CounterWith returns the counter with the additional labels. A nil counter
// stays nil.
func CounterWith(c Counter, labelValues ...string) Counter {
	if c == nil {
		return nil
	}
	return c.With(labelValues...)
}

// GaugeSet sets the passed in gauge to the value specified. A nil gauge is
// ignored.
func GaugeSet(g Gauge, v float64) {
	if g == nil {
		return
	}
	g.Set(v)
}

// GaugeAdd increases the passed in gauge by the amount specified. A nil gauge
// is ignored.
func GaugeAdd(g Gauge, v float64) {
	if g == nil {
		return
	}
	g.Add(v)
}

// GaugeWith returns the gauge with the additional labels. A nil gauge stays
// nil.
func GaugeWith(g Gauge, labelValues ...string) Gauge {
	if g == nil {
		return nil
	}
	return g.With(labelValues...)
}

// HistogramObserve adds an observation to the histogram. A nil histogram is
// ignored.
func HistogramObserve(h Histogram, v float64) {
	if h == nil {
		return
	}
	h.Observe(v)
}

// HistogramWith returns the histogram with the additional labels. A nil
// histogram stays nil.
func HistogramWith(h Histogram, labelValues ...string) Histogram {
	if h == nil {
		return nil
	}
	return h.With(labelValues...)
}
