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

package portsync_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfab/switchd/agent/portsync"
	"github.com/netfab/switchd/agent/portsync/mock_portsync"
	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/agent/update"
	"github.com/netfab/switchd/pkg/log/testlog"
	"github.com/netfab/switchd/qsfp"
	"github.com/netfab/switchd/qsfp/fsm"
	"github.com/netfab/switchd/qsfp/module"
	"github.com/netfab/switchd/qsfp/module/moduletest"
)

func tcvr(id state.TransceiverID) *state.TransceiverID {
	return &id
}

func port(id state.PortID, t *state.TransceiverID, admin state.PortAdminState,
	oper state.PortOperState) *state.Port {

	return state.NewPort(state.PortFields{
		ID:          id,
		Name:        fmt.Sprintf("eth1/%d/1", id),
		AdminState:  admin,
		OperState:   oper,
		Speed:       state.Speed100G,
		Profile:     "PROFILE_100G_4_NRZ_CL91_OPTICAL",
		Transceiver: t,
	})
}

func TestPorts(t *testing.T) {
	s := state.NewSwitchState()
	ports := state.ModifyPorts(&s)
	ports.Add(port(1, tcvr(0), state.PortEnabled, state.PortOperUp))
	ports.Add(port(2, tcvr(0), state.PortDisabled, state.PortOperUp))
	ports.Add(port(3, tcvr(4), state.PortEnabled, state.PortOperDown))
	ports.Add(port(4, nil, state.PortEnabled, state.PortOperUp))

	got := portsync.Ports(s)
	want := map[qsfp.TransceiverID][]qsfp.PortStatus{
		0: {
			{Port: 1, Profile: "PROFILE_100G_4_NRZ_CL91_OPTICAL", Speed: 100000,
				Enabled: true, Up: true},
			{Port: 2, Profile: "PROFILE_100G_4_NRZ_CL91_OPTICAL", Speed: 100000},
		},
		4: {
			{Port: 3, Profile: "PROFILE_100G_4_NRZ_CL91_OPTICAL", Speed: 100000,
				Enabled: true},
		},
	}
	assert.Equal(t, want, got)
	assert.Empty(t, portsync.Ports(nil))
}

func TestObserverSkipsUnrelatedDeltas(t *testing.T) {
	ctrl := gomock.NewController(t)
	syncer := mock_portsync.NewMockSyncer(ctrl)
	obs := &portsync.Observer{Syncer: syncer, Logger: testlog.NewLogger(t)}

	old := state.NewSwitchState()
	old.Publish()
	s := old
	state.ModifyVlans(&s).Add(state.NewVlan(state.VlanFields{ID: 10, Name: "ten"}))
	obs.StateUpdated(context.Background(), state.NewStateDelta(old, s))

	s = old
	state.ModifyPorts(&s).Add(port(1, tcvr(2), state.PortEnabled, state.PortOperUp))
	syncer.EXPECT().SyncAgentPorts(map[qsfp.TransceiverID][]qsfp.PortStatus{
		2: {{Port: 1, Profile: "PROFILE_100G_4_NRZ_CL91_OPTICAL", Speed: 100000,
			Enabled: true, Up: true}},
	})
	obs.StateUpdated(context.Background(), state.NewStateDelta(old, s))
}

// TestSyncDrivesTransceiverManager runs the observer in the update pipeline
// and checks that port changes move the transceiver state machine.
func TestSyncDrivesTransceiverManager(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	io := moduletest.New(moduletest.Optical())
	io.SetPresent(true)
	mgr, err := qsfp.NewManager(map[qsfp.TransceiverID]module.IO{0: io},
		qsfp.WithClock(func() time.Time { return now }),
		qsfp.WithLogger(testlog.NewLogger(t)),
	)
	require.NoError(t, err)

	u := update.New(nil, update.WithLogger(testlog.NewLogger(t)))
	u.Register("portsync", &portsync.Observer{Syncer: mgr})
	done := make(chan error, 1)
	go func() { done <- u.Run(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, u.Close())
		require.NoError(t, <-done)
	})

	setOper := func(oper state.PortOperState) update.StateUpdateFn {
		return func(s *state.SwitchState) (*state.SwitchState, error) {
			state.ModifyPorts(&s).AddOrUpdate(port(1, tcvr(0), state.PortEnabled, oper))
			return s, nil
		}
	}
	ctx := context.Background()
	require.NoError(t, u.Update(ctx, "port down", setOper(state.PortOperDown)))
	require.NoError(t, mgr.RefreshStateMachines(ctx))
	s, err := mgr.CurrentState(0)
	require.NoError(t, err)
	assert.Equal(t, fsm.Inactive, s)

	require.NoError(t, u.Update(ctx, "port up", setOper(state.PortOperUp)))
	require.NoError(t, mgr.RefreshStateMachines(ctx))
	s, err = mgr.CurrentState(0)
	require.NoError(t, err)
	assert.Equal(t, fsm.Active, s)
}
