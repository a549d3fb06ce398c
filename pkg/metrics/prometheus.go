// Copyright 2024 Anapaya Systems
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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewPromGauge wraps a prometheus gauge vector as a gauge.
// Returns nil, if gv is nil.
func NewPromGauge(gv *prometheus.GaugeVec) Gauge {
	if gv == nil {
		return nil
	}
	return &gauge{vec: vec[prometheus.Gauge]{get: gv.With}}
}

// NewPromCounter wraps a prometheus counter vector as a counter.
// Returns nil if cv is nil.
func NewPromCounter(cv *prometheus.CounterVec) Counter {
	if cv == nil {
		return nil
	}
	return &counter{vec: vec[prometheus.Counter]{get: cv.With}}
}

// NewPromHistogram wraps a prometheus histogram vector as a histogram.
// Returns nil if hv is nil.
func NewPromHistogram(hv *prometheus.HistogramVec) Histogram {
	if hv == nil {
		return nil
	}
	return &histogram{vec: vec[prometheus.Observer]{get: hv.With}}
}

// labelValuesSlice holds alternating label names and values.
type labelValuesSlice []string

// With returns a copy of lvs extended by labelValues. A trailing name without
// value gets the value "unknown".
func (lvs labelValuesSlice) With(labelValues ...string) labelValuesSlice {
	if len(labelValues)%2 != 0 {
		labelValues = append(labelValues, "unknown")
	}
	result := make(labelValuesSlice, 0, len(lvs)+len(labelValues))
	result = append(result, lvs...)
	return append(result, labelValues...)
}

func (lvs labelValuesSlice) labels() prometheus.Labels {
	labels := make(prometheus.Labels, len(lvs)/2)
	for i := 0; i+1 < len(lvs); i += 2 {
		labels[lvs[i]] = lvs[i+1]
	}
	return labels
}

// vec resolves the metric of a prometheus vector for a set of label values.
type vec[M any] struct {
	get func(prometheus.Labels) M
	lvs labelValuesSlice
}

func (v vec[M]) with(labelValues ...string) vec[M] {
	return vec[M]{get: v.get, lvs: v.lvs.With(labelValues...)}
}

func (v vec[M]) metric() M {
	return v.get(v.lvs.labels())
}

type gauge struct {
	vec vec[prometheus.Gauge]
}

func (g *gauge) With(labelValues ...string) Gauge {
	return &gauge{vec: g.vec.with(labelValues...)}
}

func (g *gauge) Set(value float64) { g.vec.metric().Set(value) }
func (g *gauge) Add(delta float64) { g.vec.metric().Add(delta) }

type counter struct {
	vec vec[prometheus.Counter]
}

func (c *counter) With(labelValues ...string) Counter {
	return &counter{vec: c.vec.with(labelValues...)}
}

func (c *counter) Add(delta float64) { c.vec.metric().Add(delta) }

type histogram struct {
	vec vec[prometheus.Observer]
}

func (h *histogram) With(labelValues ...string) Histogram {
	return &histogram{vec: h.vec.with(labelValues...)}
}

func (h *histogram) Observe(value float64) { h.vec.metric().Observe(value) }
