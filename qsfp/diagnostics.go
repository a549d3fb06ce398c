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
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/netfab/switchd/qsfp/module"
)

// Status is the state of a transceiver as reported by the manager.
type Status struct {
	ID                  TransceiverID `json:"id"`
	State               string        `json:"state"`
	Present             bool          `json:"present"`
	RejectedTransitions int           `json:"rejectedTransitions"`
	Info                *module.Info  `json:"info,omitempty"`
}

// Statuses returns the status of all transceivers in ascending id order.
func (m *Manager) Statuses() []Status {
	ids := m.IDs()
	statuses := make([]Status, 0, len(ids))
	for _, id := range ids {
		statuses = append(statuses, m.status(m.tcvrs[id]))
	}
	return statuses
}

// Status returns the status of transceiver id.
func (m *Manager) Status(id TransceiverID) (Status, error) {
	t, err := m.transceiver(id)
	if err != nil {
		return Status{}, err
	}
	return m.status(t), nil
}

func (m *Manager) status(t *transceiver) Status {
	state, rejected, _ := t.snapshot()
	s := Status{
		ID:                  t.id,
		State:               state.String(),
		Present:             t.mod.Present(),
		RejectedTransitions: rejected,
	}
	if info, err := t.mod.Info(); err == nil {
		s.Info = &info
	}
	return s
}

// Diagnostics writes a table with the state of all transceivers.
func (m *Manager) Diagnostics(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "State", "Present", "Vendor", "Part Number",
		"Remediations", "Rejected", "Collected"})
	for _, s := range m.Statuses() {
		var vendor, pn, remediations, collected string
		if s.Info != nil && s.Info.Present {
			vendor = s.Info.Vendor.Name
			pn = s.Info.Vendor.PartNumber
			remediations = strconv.Itoa(s.Info.RemediationCounter)
			if !s.Info.TimeCollected.IsZero() {
				collected = s.Info.TimeCollected.Format(time.RFC3339)
			}
		}
		table.Append([]string{
			idLabel(s.ID), s.State, strconv.FormatBool(s.Present), vendor, pn,
			remediations, strconv.Itoa(s.RejectedTransitions), collected,
		})
	}
	table.Render()
}
