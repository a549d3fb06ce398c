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

package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netfab/switchd/pkg/metrics"
)

func TestTestCounterLabels(t *testing.T) {
	c := metrics.NewTestCounter()
	ok := c.With("category", "port", "result", "ok")
	failed := c.With("result", "err", "category", "port")
	metrics.CounterInc(ok)
	metrics.CounterAdd(ok, 2)
	metrics.CounterInc(failed)

	assert.Equal(t, float64(3), metrics.CounterValue(ok))
	assert.Equal(t, float64(3),
		metrics.CounterValue(c.With("result", "ok", "category", "port")))
	assert.Equal(t, float64(1), metrics.CounterValue(failed))
	assert.Panics(t, func() { ok.Add(-1) })
}

func TestTestGauge(t *testing.T) {
	g := metrics.NewTestGauge()
	metrics.GaugeSet(g, 4)
	metrics.GaugeAdd(g, -1)
	assert.Equal(t, float64(3), metrics.GaugeValue(g))
}

func TestNilHelpers(t *testing.T) {
	metrics.CounterInc(nil)
	metrics.GaugeSet(nil, 1)
	metrics.HistogramObserve(nil, 1)
	assert.Nil(t, metrics.CounterWith(nil, "a", "b"))
}
