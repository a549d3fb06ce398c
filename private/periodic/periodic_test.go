// Copyright 2018 Anapaya Systems
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

package periodic_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/pkg/private/xtest"
	"github.com/netfab/switchd/private/periodic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testMetrics() *periodic.Metrics {
	events := metrics.NewTestCounter()
	return &periodic.Metrics{
		Events: func(s string) metrics.Counter {
			return events.With("event_type", s)
		},
		Period:    metrics.NewTestGauge(),
		Runtime:   metrics.NewTestGauge(),
		StartTime: metrics.NewTestGauge(),
	}
}

func TestPeriodicExecution(t *testing.T) {
	m := testMetrics()
	cnt := make(chan struct{}, 10)
	fn := periodic.Func{
		TaskName: "test_task",
		Task: func(ctx context.Context) {
			cnt <- struct{}{}
		},
	}
	p := 20 * time.Millisecond
	r := periodic.StartWithMetrics(fn, m, p, time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			<-cnt
		}
	}()
	xtest.AssertReadReturnsBefore(t, done, time.Second)
	r.Stop()

	assert.Equal(t, float64(1), metrics.CounterValue(m.Events(periodic.EventStop)))
	assert.Equal(t, float64(0), metrics.CounterValue(m.Events(periodic.EventKill)))
	assert.Equal(t, p.Seconds(), metrics.GaugeValue(m.Period))
}

func TestKillCancelsContext(t *testing.T) {
	m := testMetrics()
	started := make(chan struct{})
	cancelled := make(chan struct{})
	fn := periodic.Func{
		TaskName: "blocking_task",
		Task: func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			close(cancelled)
		},
	}
	r := periodic.StartWithMetrics(fn, m, 10*time.Millisecond, time.Hour)
	xtest.AssertReadReturnsBefore(t, started, time.Second)
	r.Kill()
	xtest.AssertReadReturnsBefore(t, cancelled, time.Second)
	assert.Equal(t, float64(1), metrics.CounterValue(m.Events(periodic.EventKill)))
}

func TestTriggerRun(t *testing.T) {
	m := testMetrics()
	ran := make(chan struct{}, 1)
	fn := periodic.Func{
		TaskName: "triggered_task",
		Task: func(ctx context.Context) {
			select {
			case ran <- struct{}{}:
			default:
			}
		},
	}
	r := periodic.StartWithMetrics(fn, m, time.Hour, time.Second)
	defer r.Stop()
	r.TriggerRun()
	xtest.AssertReadReturnsBefore(t, ran, time.Second)
	xtest.AssertReadDoesNotReturnBefore(t, ran, 50*time.Millisecond)
	assert.Equal(t, float64(1), metrics.CounterValue(m.Events(periodic.EventTrigger)))
}
