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
	"maps"
	"sync"

	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/qsfp/fsm"
	"github.com/netfab/switchd/qsfp/module"
)

// transceiver is a slot with its state machine. It implements fsm.Actions,
// which are always invoked with mtx held.
type transceiver struct {
	id  TransceiverID
	mod *module.Module
	mgr *Manager

	mtx            sync.Mutex
	machine        *fsm.Machine
	programmedIphy map[PortID]PortInfo
	// rejected counts consecutive rejected transitions.
	rejected int
}

func (t *transceiver) process(ctx context.Context, event fsm.Event) (fsm.Result, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	res, err := t.machine.Process(ctx, event)
	logger := t.mgr.logger.New("transceiver", t.id, "event", event)
	if err != nil {
		t.rejected++
		t.mgr.metrics.transitionFailed(t.id, event, err, t.rejected)
		logger.Info("State transition rejected", "state", res.From, "err", err)
		return res, serrors.Wrap("updating transceiver state", err,
			"transceiver", t.id, "event", event)
	}
	if res.Handled {
		t.rejected = 0
		t.mgr.metrics.transitioned(t.id, res)
		logger.Debug("State transition", "from", res.From, "to", res.To)
	}
	return res, nil
}

func (t *transceiver) DiscoverTransceiver(ctx context.Context) error {
	valid, err := t.mod.VerifyEepromChecksums(ctx)
	if err != nil {
		return err
	}
	if !valid {
		t.mgr.logger.Info("Transceiver EEPROM checksums invalid", "transceiver", t.id)
	}
	return nil
}

func (t *transceiver) ProgramIphyPorts(context.Context) error {
	ports := t.mgr.portsFor(t.id)
	if len(ports) == 0 {
		return serrors.Wrap("programming iphy ports", ErrValidation,
			"reason", "no port and profile mapping")
	}
	t.programmedIphy = ports
	return nil
}

func (t *transceiver) ProgramXphyPorts(ctx context.Context) error {
	if t.mgr.phy == nil {
		return nil
	}
	if err := t.mgr.phy.ProgramXphyPorts(ctx, t.id, maps.Clone(t.programmedIphy)); err != nil {
		return serrors.Wrap("programming xphy ports", ErrHardwareIO, "err", err)
	}
	return nil
}

func (t *transceiver) ProgramTransceiver(ctx context.Context, needResetDataPath bool) error {
	return t.mod.ProgramTransceiver(ctx, t.speed(), needResetDataPath)
}

func (t *transceiver) MarkLastDownTime() {
	t.mod.MarkLastDownTime()
}

func (t *transceiver) ResetProgrammed() {
	t.programmedIphy = nil
}

// speed returns the highest speed of the programmed ports.
func (t *transceiver) speed() uint32 {
	var speed uint32
	for _, p := range t.programmedIphy {
		speed = max(speed, p.Speed)
	}
	return speed
}

func (t *transceiver) state() fsm.State {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.machine.State()
}

func (t *transceiver) snapshot() (fsm.State, int, uint32) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.machine.State(), t.rejected, t.speed()
}
