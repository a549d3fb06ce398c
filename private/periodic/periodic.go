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

// Package periodic runs tasks at a fixed period. The transceiver refresh
// loop and the warm-boot persistence are driven by it.
package periodic

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/pkg/private/prom"
)

// Event types reported by the Events metric.
const (
	EventStop    = "stop"
	EventKill    = "kill"
	EventTrigger = "triggered"
)

// A Task that has to be periodically executed.
type Task interface {
	// Run executes the task once, it should return within the context's timeout.
	Run(context.Context)
	// Name returns the task's name for use in metrics and tracing.
	// It must only contain characters allowed in prometheus metric names.
	Name() string
}

// Func implements the Task interface.
type Func struct {
	// Task is the function that is executed.
	Task func(context.Context)
	// TaskName is the name returned by Name.
	TaskName string
}

// Run runs the task function.
func (f Func) Run(ctx context.Context) {
	f.Task(ctx)
}

// Name returns the task name.
func (f Func) Name() string {
	return f.TaskName
}

// Metrics contains the relevant metrics for a periodic task.
type Metrics struct {
	// Events tracks the amount of occurrences of Events defined above.
	Events func(string) metrics.Counter
	// Runtime tracks how long the task has been running.
	Runtime metrics.Gauge
	// StartTime is the start time of the current run.
	StartTime metrics.Gauge
	// Period is the period with which the task is executed.
	Period metrics.Gauge
}

func (m *Metrics) event(s string) {
	if m == nil || m.Events == nil {
		return
	}
	metrics.CounterInc(m.Events(s))
}

// NewMetrics creates prometheus backed metrics for the task with the given
// prefix.
func NewMetrics(prefix string) *Metrics {
	prefix = strings.ReplaceAll(prefix, ".", "_")
	events := metrics.NewPromCounter(prom.SafeRegister(
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_periodic_events_total",
			Help: "Total number of events.",
		}, []string{"event_type"}),
	).(*prometheus.CounterVec))
	newGauge := func(name, help string) metrics.Gauge {
		return metrics.NewPromGauge(prom.SafeRegister(
			prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: prefix + "_" + name,
				Help: help,
			}, []string{}),
		).(*prometheus.GaugeVec))
	}
	return &Metrics{
		Events: func(s string) metrics.Counter {
			return events.With("event_type", s)
		},
		Runtime:   newGauge("periodic_runtime_duration_seconds", "Duration of the last run."),
		StartTime: newGauge("periodic_runtime_timestamp_seconds", "Start time of the last run."),
		Period:    newGauge("periodic_period_duration_seconds", "Period of the task."),
	}
}

// Runner runs a task periodically.
type Runner struct {
	task         Task
	ticker       *time.Ticker
	timeout      time.Duration
	stop         chan struct{}
	loopFinished chan struct{}
	ctx          context.Context
	cancelF      context.CancelFunc
	trigger      chan struct{}
	metrics      *Metrics
}

// Start creates and starts a new Runner to run the given task periodically.
// The timeout is used for the context timeout of the task. The timeout can be
// larger than the period. That means if a task takes a long time it will be
// immediately retriggered.
func Start(task Task, period, timeout time.Duration) *Runner {
	return StartWithMetrics(task, NewMetrics(task.Name()), period, timeout)
}

// StartWithMetrics is identical to Start but allows the caller to specify the
// metrics in use. A nil metrics disables reporting.
func StartWithMetrics(task Task, m *Metrics, period, timeout time.Duration) *Runner {
	ctx, cancelF := context.WithCancel(context.Background())
	logger := log.New("debug_id", task.Name())
	ctx = log.CtxWith(ctx, logger)
	runner := &Runner{
		task:         task,
		ticker:       time.NewTicker(period),
		timeout:      timeout,
		stop:         make(chan struct{}),
		loopFinished: make(chan struct{}),
		ctx:          ctx,
		cancelF:      cancelF,
		trigger:      make(chan struct{}),
		metrics:      m,
	}
	logger.Info("Starting periodic task", "task", task.Name())
	if m != nil {
		metrics.GaugeSet(m.Period, period.Seconds())
	}
	go func() {
		defer log.HandlePanic()
		runner.runLoop()
	}()
	return runner
}

// Stop stops the periodic execution of the Runner.
// If the task is currently running this method will block until it is done.
func (r *Runner) Stop() {
	if r == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	<-r.loopFinished
	r.metrics.event(EventStop)
}

// Kill is like stop but it also cancels the context of the current running method.
func (r *Runner) Kill() {
	if r == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	r.cancelF()
	<-r.loopFinished
	r.metrics.event(EventKill)
}

// TriggerRun triggers the periodic task to run now.
// This does not impact the normal periodicity of this task.
// That means if the periodicity is 5m and you call TriggerRun() after 2 minutes,
// the next execution will be in 3 minutes.
//
// The method blocks until either the triggered run was started or the runner was stopped,
// in which case the triggered run will not be executed.
func (r *Runner) TriggerRun() {
	select {
	case <-r.stop:
	case r.trigger <- struct{}{}:
		r.metrics.event(EventTrigger)
	}
}

func (r *Runner) runLoop() {
	defer close(r.loopFinished)
	defer r.cancelF()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.C:
			r.onTick()
		case <-r.trigger:
			r.onTick()
		}
	}
}

func (r *Runner) onTick() {
	select {
	// Stop must win when both channels are ready.
	case <-r.stop:
		return
	default:
		ctx, cancelF := context.WithTimeout(r.ctx, r.timeout)
		start := time.Now()
		if r.metrics != nil {
			metrics.GaugeSet(r.metrics.StartTime, float64(start.UnixNano())/1e9)
		}
		r.task.Run(ctx)
		if r.metrics != nil {
			metrics.GaugeSet(r.metrics.Runtime, time.Since(start).Seconds())
		}
		cancelF()
	}
}
