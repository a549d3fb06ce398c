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

package update

import (
	"time"

	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/pkg/private/prom"
)

const (
	resultOk       = prom.Success
	resultNoop     = "ok_noop"
	resultMutation = "err_update"
	resultPanic    = "err_panic"
	resultHardware = "err_hardware"
	resultCanceled = prom.ErrTimeout
	resultClosed   = prom.ErrUnavailable
)

// Metrics are the metrics of the update pipeline. Nil fields are not
// recorded.
type Metrics struct {
	// Updates counts processed updates by "result".
	Updates metrics.Counter
	// Duration observes the processing time of updates by "result".
	Duration metrics.Histogram
	// QueueDepth is the number of queued updates.
	QueueDepth metrics.Gauge
	// Generation is the generation of the committed state.
	Generation metrics.Gauge
	// ObserverPanics counts recovered observer panics by "observer".
	ObserverPanics metrics.Counter
}

// NewMetrics creates prometheus backed pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Updates: metrics.NewPromCounter(prom.NewCounterVec("switchd", "state",
			"updates_total", "Total number of processed state updates.",
			[]string{prom.LabelResult})),
		Duration: metrics.NewPromHistogram(prom.NewHistogramVec("switchd", "state",
			"update_duration_seconds", "Processing time of state updates.",
			[]string{prom.LabelResult}, prom.DefaultLatencyBuckets)),
		QueueDepth: metrics.NewPromGauge(prom.NewGaugeVec("switchd", "state",
			"update_queue_depth", "Number of queued state updates.", []string{})),
		Generation: metrics.NewPromGauge(prom.NewGaugeVec("switchd", "state",
			"committed_generation", "Generation of the committed state.", []string{})),
		ObserverPanics: metrics.NewPromCounter(prom.NewCounterVec("switchd", "state",
			"observer_panics_total", "Total number of recovered observer panics.",
			[]string{"observer"})),
	}
}

func (m *Metrics) observe(result string, d time.Duration) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.Updates, prom.LabelResult, result))
	metrics.HistogramObserve(
		metrics.HistogramWith(m.Duration, prom.LabelResult, result), d.Seconds())
}

func (m *Metrics) setQueueDepth(depth int) {
	if m == nil {
		return
	}
	metrics.GaugeSet(m.QueueDepth, float64(depth))
}

func (m *Metrics) setGeneration(gen uint64) {
	if m == nil {
		return
	}
	metrics.GaugeSet(m.Generation, float64(gen))
}

func (m *Metrics) observerPanics() metrics.Counter {
	if m == nil {
		return nil
	}
	return m.ObserverPanics
}
