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

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/netfab/switchd/pkg/private/prom"
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/qsfp/fsm"
)

// RefreshStateMachines polls all modules and drives their state machines.
// Errors of individual transceivers do not stop the refresh of the others.
// They are returned together.
func (m *Manager) RefreshStateMachines(ctx context.Context) error {
	ids := m.IDs()
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(max(m.parallelism, 1))
	for i, id := range ids {
		t := m.tcvrs[id]
		g.Go(func() error {
			errs[i] = m.refreshTransceiver(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	var list serrors.List
	for _, err := range errs {
		if err != nil {
			list = append(list, err)
		}
	}
	return list.ToError()
}

// Name makes the manager usable as a periodic task.
func (m *Manager) Name() string {
	return "qsfp_refresh"
}

// Run runs a refresh cycle and logs the errors.
func (m *Manager) Run(ctx context.Context) {
	if err := m.RefreshStateMachines(ctx); err != nil {
		m.logger.Info("Transceiver refresh completed with errors", "err", err)
	}
}

func (m *Manager) refreshTransceiver(ctx context.Context, t *transceiver) error {
	res, refreshErr := t.mod.Refresh(ctx)
	// A presence change is reported even if reading the module failed.
	if res.StatusChanged {
		if res.Present {
			// A module inserted into a slot that was programmed without one.
			if t.state() != fsm.NotPresent {
				if _, err := t.process(ctx, fsm.ResetToNotPresent); err != nil {
					return err
				}
			}
			if _, err := t.process(ctx, fsm.DetectTransceiver); err != nil {
				return err
			}
		} else {
			if _, err := t.process(ctx, fsm.RemoveTransceiver); err != nil {
				return err
			}
		}
	}
	if refreshErr != nil {
		return refreshErr
	}
	// PRESENT is retried until READ_EEPROM succeeds.
	if res.NeedReadEeprom || (res.Present && t.state() == fsm.Present) {
		if _, err := t.process(ctx, fsm.ReadEeprom); err != nil {
			return err
		}
	}
	if err := m.program(ctx, t); err != nil {
		return err
	}
	if err := m.syncPortStatus(ctx, t); err != nil {
		return err
	}
	if err := m.customize(ctx, t); err != nil {
		return err
	}
	return m.remediate(ctx, t)
}

// program drives the programming events as far as the state allows.
func (m *Manager) program(ctx context.Context, t *transceiver) error {
	for {
		var event fsm.Event
		switch t.state() {
		case fsm.NotPresent, fsm.Discovered:
			if len(m.portsFor(t.id)) == 0 {
				return nil
			}
			event = fsm.ProgramIphy
		case fsm.IphyPortsProgrammed:
			event = fsm.ProgramXphy
		case fsm.XphyPortsProgrammed:
			event = fsm.ProgramTransceiver
		default:
			return nil
		}
		res, err := t.process(ctx, event)
		if err != nil {
			return err
		}
		if !res.Changed() {
			return nil
		}
	}
}

// syncPortStatus maps the agent port status to PORT_UP and ALL_PORTS_DOWN.
func (m *Manager) syncPortStatus(ctx context.Context, t *transceiver) error {
	switch t.state() {
	case fsm.TransceiverProgrammed, fsm.Active, fsm.Inactive:
	default:
		return nil
	}
	ports := m.AgentPorts(t.id)
	if len(ports) == 0 {
		return nil
	}
	event := fsm.AllPortsDown
	for _, p := range ports {
		if p.Enabled && p.Up {
			event = fsm.PortUp
			break
		}
	}
	_, err := t.process(ctx, event)
	return err
}

// customize re-applies the module settings at most once per customize
// interval.
func (m *Manager) customize(ctx context.Context, t *transceiver) error {
	state, _, speed := t.snapshot()
	switch state {
	case fsm.TransceiverProgrammed, fsm.Active, fsm.Inactive:
	default:
		return nil
	}
	if !t.mod.Present() {
		return nil
	}
	if err := m.customized.Add(idLabel(t.id), speed, cache.DefaultExpiration); err != nil {
		// Customized within the interval.
		return nil
	}
	return t.mod.CustomizeTransceiver(ctx, speed)
}

// remediate tries to remediate INACTIVE transceivers.
func (m *Manager) remediate(ctx context.Context, t *transceiver) error {
	if t.state() != fsm.Inactive {
		return nil
	}
	ok, err := t.mod.TryRemediate(ctx, m.PauseRemediationUntil())
	if err != nil {
		m.metrics.remediation(errHardwareIO)
		return err
	}
	if !ok {
		return nil
	}
	m.metrics.remediation(prom.Success)
	_, err = t.process(ctx, fsm.RemediateDone)
	return err
}
