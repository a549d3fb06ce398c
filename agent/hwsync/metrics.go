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

package hwsync

import (
	"errors"

	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/pkg/private/prom"
)

const resultTableFull = "err_table_full"

// Metrics are the metrics of the Synchronizer.
type Metrics struct {
	// Entries counts programmed entries by "category", "op" and "result".
	Entries metrics.Counter
}

// NewMetrics creates prometheus backed synchronizer metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Entries: metrics.NewPromCounter(prom.NewCounterVec("switchd", "hwsync",
			"entries_total", "Total number of entries processed by the dataplane.",
			[]string{"category", prom.LabelOperation, prom.LabelResult})),
	}
}

func (m *Metrics) observe(cat Category, op Op, err error) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.Entries,
		"category", string(cat), prom.LabelOperation, string(op), prom.LabelResult, result(err)))
}

func result(err error) string {
	switch {
	case err == nil:
		return prom.Success
	case errors.Is(err, ErrTableFull):
		return resultTableFull
	default:
		return prom.ErrInternal
	}
}
