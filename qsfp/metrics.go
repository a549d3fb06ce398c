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

package qsfp

import (
	"context"
	"errors"
	"strconv"

	"github.com/iancoleman/strcase"

	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/pkg/private/prom"
	"github.com/netfab/switchd/qsfp/fsm"
)

const (
	errValidation = prom.ErrValidate
	errHardwareIO = "err_hardware_io"
	errCanceled   = prom.ErrTimeout
	errInternal   = prom.ErrInternal
)

// Metrics are the transceiver manager metrics. Nil fields are not recorded.
type Metrics struct {
	// Transitions counts state transitions by "from" and "to".
	Transitions metrics.Counter
	// TransitionFailures counts rejected transitions by "event" and "error".
	TransitionFailures metrics.Counter
	// Stuck is the number of consecutive rejected transitions by
	// "transceiver".
	Stuck metrics.Gauge
	// Remediations counts remediation attempts by "result".
	Remediations metrics.Counter
}

// NewMetrics creates prometheus backed manager metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: metrics.NewPromCounter(prom.NewCounterVec("switchd", "qsfp",
			"state_transitions_total", "Total number of transceiver state transitions.",
			[]string{"from", "to"})),
		TransitionFailures: metrics.NewPromCounter(prom.NewCounterVec("switchd", "qsfp",
			"state_transition_failures_total",
			"Total number of rejected transceiver state transitions.",
			[]string{"event", "error"})),
		Stuck: metrics.NewPromGauge(prom.NewGaugeVec("switchd", "qsfp",
			"consecutive_rejected_transitions",
			"Number of consecutive rejected state transitions of a transceiver.",
			[]string{"transceiver"})),
		Remediations: metrics.NewPromCounter(prom.NewCounterVec("switchd", "qsfp",
			"remediations_total", "Total number of transceiver remediation attempts.",
			[]string{prom.LabelResult})),
	}
}

// label renders state and event names as metric label values.
func label(s fsm.State) string { return strcase.ToSnake(s.String()) }

func eventLabel(e fsm.Event) string { return strcase.ToSnake(e.String()) }

func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return errValidation
	case errors.Is(err, ErrHardwareIO):
		return errHardwareIO
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errCanceled
	default:
		return errInternal
	}
}

func (m *Metrics) transitioned(id TransceiverID, res fsm.Result) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.Transitions,
		"from", label(res.From), "to", label(res.To)))
	metrics.GaugeSet(metrics.GaugeWith(m.Stuck, "transceiver", idLabel(id)), 0)
}

func (m *Metrics) transitionFailed(id TransceiverID, ev fsm.Event, err error, rejected int) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.TransitionFailures,
		"event", eventLabel(ev), "error", errorClass(err)))
	metrics.GaugeSet(metrics.GaugeWith(m.Stuck, "transceiver", idLabel(id)),
		float64(rejected))
}

func (m *Metrics) remediation(result string) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.Remediations, prom.LabelResult, result))
}

func idLabel(id TransceiverID) string {
	return strconv.FormatUint(uint64(id), 10)
}
