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

// Package portsync keeps the transceiver manager informed about the ports
// the agent attached to each transceiver.
package portsync

import (
	"context"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/qsfp"
)

// Syncer receives the port status per transceiver.
type Syncer interface {
	SyncAgentPorts(ports map[qsfp.TransceiverID][]qsfp.PortStatus)
}

// Observer is an update.Observer that syncs the ports to a Syncer whenever
// the ports or transceivers of the switch state change.
type Observer struct {
	Syncer Syncer
	Logger log.Logger
}

func (o *Observer) StateUpdated(ctx context.Context, delta *state.StateDelta) {
	if delta.PortsDelta().IsEmpty() && delta.TransceiversDelta().IsEmpty() {
		return
	}
	ports := Ports(delta.NewState())
	o.Syncer.SyncAgentPorts(ports)
	if logger := o.logger(ctx); logger.Enabled(log.DebugLevel) {
		logger.Debug("Synced agent ports", "transceivers", len(ports))
	}
}

func (o *Observer) logger(ctx context.Context) log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.FromCtx(ctx)
}

// Ports returns the status of all ports attached to a transceiver, grouped
// by transceiver and ordered by port id.
func Ports(s *state.SwitchState) map[qsfp.TransceiverID][]qsfp.PortStatus {
	ports := make(map[qsfp.TransceiverID][]qsfp.PortStatus)
	if s == nil {
		return ports
	}
	for p := range s.Ports().All() {
		f := p.Fields()
		if f.Transceiver == nil {
			continue
		}
		id := qsfp.TransceiverID(*f.Transceiver)
		ports[id] = append(ports[id], qsfp.PortStatus{
			Port:    qsfp.PortID(f.ID),
			Profile: f.Profile,
			Speed:   uint32(f.Speed),
			Enabled: f.AdminState == state.PortEnabled,
			Up:      f.IsUp(),
		})
	}
	return ports
}
