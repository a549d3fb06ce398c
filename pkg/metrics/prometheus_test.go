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

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/netfab/switchd/pkg/metrics"
)

func TestPromCounter(t *testing.T) {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "updates_total"},
		[]string{"result", "stage"})
	c := metrics.NewPromCounter(cv)
	ok := c.With("result", "ok_success")
	ok.With("stage", "hw").Add(2)
	metrics.CounterInc(ok.With("stage", "hw"))
	metrics.CounterInc(c.With("stage", "sw", "result"))

	assert.Equal(t, 3.0, testutil.ToFloat64(cv.WithLabelValues("ok_success", "hw")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cv.WithLabelValues("unknown", "sw")))
}

func TestPromGauge(t *testing.T) {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "queue_depth"}, []string{"queue"})
	g := metrics.NewPromGauge(gv).With("queue", "state")
	g.Set(5)
	g.Add(-2)
	assert.Equal(t, 3.0, testutil.ToFloat64(gv.WithLabelValues("state")))
}

func TestPromNil(t *testing.T) {
	assert.Nil(t, metrics.NewPromCounter(nil))
	assert.Nil(t, metrics.NewPromGauge(nil))
	assert.Nil(t, metrics.NewPromHistogram(nil))
}
