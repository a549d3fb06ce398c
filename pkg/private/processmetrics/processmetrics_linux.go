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

//go:build linux

// Package processmetrics exports the scheduling times of the process threads.
// The running time is the CPU time the process used. The runnable time is the
// CPU time the process was ready to run but was denied by the scheduler. A
// growing runnable time indicates that periodic work such as the transceiver
// refresh is starved.
package processmetrics

import (
	"os"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/netfab/switchd/pkg/private/serrors"
)

var (
	runningTime = prometheus.NewDesc(
		"process_running_seconds_total",
		"CPU time the process used since it started (all threads summed).",
		nil, nil,
	)
	runnableTime = prometheus.NewDesc(
		"process_runnable_seconds_total",
		"CPU time the process was denied since it started (all threads summed).",
		nil, nil,
	)
	goCores = prometheus.NewDesc(
		"go_sched_maxprocs_threads",
		"The current runtime.GOMAXPROCS setting.",
		nil, nil,
	)
)

type collector struct {
	pid int

	mtx       sync.Mutex
	threads   procfs.Procs
	lastCount int
}

// Init registers the collector with the default prometheus registry. Errors
// can be ignored, the metrics are then missing.
func Init() error {
	c := &collector{pid: os.Getpid()}
	if _, _, err := c.schedTimes(); err != nil {
		return serrors.Wrap("reading scheduling statistics", err, "pid", c.pid)
	}
	if err := prometheus.Register(c); err != nil {
		return serrors.Wrap("registering process metrics", err)
	}
	return nil
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	running, runnable, _ := c.schedTimes()
	ch <- prometheus.MustNewConstMetric(runningTime, prometheus.CounterValue, running)
	ch <- prometheus.MustNewConstMetric(runnableTime, prometheus.CounterValue, runnable)
	ch <- prometheus.MustNewConstMetric(goCores, prometheus.GaugeValue,
		float64(runtime.GOMAXPROCS(-1)))
}

// schedTimes returns the summed running and runnable seconds of all threads.
// The thread list is only re-read if the number of OS threads changed. The Go
// runtime never terminates threads.
func (c *collector) schedTimes() (float64, float64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	var count int
	if n, _ := runtime.ThreadCreateProfile(nil); n != c.lastCount || c.threads == nil {
		threads, err := procfs.AllThreads(c.pid)
		if err != nil {
			return 0, 0, err
		}
		c.threads, c.lastCount = threads, n
	}
	var running, runnable uint64
	var firstErr error
	for _, t := range c.threads {
		st, err := t.Schedstat()
		if err != nil {
			// The thread might be gone, the others are still valid.
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		count++
		running += st.RunningNanoseconds
		runnable += st.WaitingNanoseconds
	}
	if count == 0 && firstErr != nil {
		return 0, 0, firstErr
	}
	return float64(running) / 1e9, float64(runnable) / 1e9, nil
}
