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

package fsm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfab/switchd/qsfp/fsm"
)

type fakeActions struct {
	discoverErr error
	iphyErr     error
	xphyErr     error
	tcvrErr     error

	calls          []string
	resetDataPaths []bool
}

func (a *fakeActions) DiscoverTransceiver(context.Context) error {
	a.calls = append(a.calls, "discover")
	return a.discoverErr
}

func (a *fakeActions) ProgramIphyPorts(context.Context) error {
	a.calls = append(a.calls, "iphy")
	return a.iphyErr
}

func (a *fakeActions) ProgramXphyPorts(context.Context) error {
	a.calls = append(a.calls, "xphy")
	return a.xphyErr
}

func (a *fakeActions) ProgramTransceiver(_ context.Context, resetDataPath bool) error {
	a.calls = append(a.calls, "transceiver")
	a.resetDataPaths = append(a.resetDataPaths, resetDataPath)
	return a.tcvrErr
}

func (a *fakeActions) MarkLastDownTime() { a.calls = append(a.calls, "down") }

func (a *fakeActions) ResetProgrammed() { a.calls = append(a.calls, "reset") }

// pathTo lists the events that bring a fresh machine to each state.
var pathTo = map[fsm.State][]fsm.Event{
	fsm.NotPresent:          nil,
	fsm.Present:             {fsm.DetectTransceiver},
	fsm.Discovered:          {fsm.DetectTransceiver, fsm.ReadEeprom},
	fsm.IphyPortsProgrammed: {fsm.DetectTransceiver, fsm.ReadEeprom, fsm.ProgramIphy},
	fsm.XphyPortsProgrammed: {fsm.DetectTransceiver, fsm.ReadEeprom, fsm.ProgramIphy,
		fsm.ProgramXphy},
	fsm.TransceiverProgrammed: {fsm.DetectTransceiver, fsm.ReadEeprom, fsm.ProgramIphy,
		fsm.ProgramXphy, fsm.ProgramTransceiver},
	fsm.Active: {fsm.DetectTransceiver, fsm.ReadEeprom, fsm.ProgramIphy,
		fsm.ProgramXphy, fsm.ProgramTransceiver, fsm.PortUp},
	fsm.Inactive: {fsm.DetectTransceiver, fsm.ReadEeprom, fsm.ProgramIphy,
		fsm.ProgramXphy, fsm.ProgramTransceiver, fsm.AllPortsDown},
	fsm.Upgrading: {fsm.DetectTransceiver, fsm.PrepareUpgrade},
}

func machineIn(t *testing.T, s fsm.State) (*fsm.Machine, *fakeActions) {
	t.Helper()
	a := &fakeActions{}
	m := fsm.New(a)
	for _, ev := range pathTo[s] {
		_, err := m.Process(context.Background(), ev)
		require.NoError(t, err)
	}
	require.Equal(t, s, m.State())
	a.calls = nil
	return m, a
}

func TestDefaultState(t *testing.T) {
	m := fsm.New(&fakeActions{})
	assert.Equal(t, fsm.NotPresent, m.State())
	assert.Equal(t, fsm.Attributes{NeedMarkLastDownTime: true}, m.Attributes())
}

func TestTransition(t *testing.T) {
	accepted := map[fsm.Event]map[fsm.State]fsm.State{
		fsm.DetectTransceiver: {fsm.NotPresent: fsm.Present},
		fsm.ReadEeprom:        {fsm.Present: fsm.Discovered},
		fsm.ProgramIphy: {
			fsm.NotPresent: fsm.IphyPortsProgrammed,
			fsm.Discovered: fsm.IphyPortsProgrammed,
		},
		fsm.ProgramXphy:        {fsm.IphyPortsProgrammed: fsm.XphyPortsProgrammed},
		fsm.ProgramTransceiver: {fsm.XphyPortsProgrammed: fsm.TransceiverProgrammed},
		fsm.PortUp: {
			fsm.TransceiverProgrammed: fsm.Active,
			fsm.Inactive:              fsm.Active,
		},
		fsm.AllPortsDown: {
			fsm.TransceiverProgrammed: fsm.Inactive,
			fsm.Active:                fsm.Inactive,
		},
		fsm.RemediateDone: {fsm.Inactive: fsm.XphyPortsProgrammed},
		fsm.ResetToDiscovered: {
			fsm.IphyPortsProgrammed:   fsm.Discovered,
			fsm.XphyPortsProgrammed:   fsm.Discovered,
			fsm.TransceiverProgrammed: fsm.Discovered,
			fsm.Active:                fsm.Discovered,
			fsm.Inactive:              fsm.Discovered,
		},
		fsm.UpgradeDone: {fsm.Upgrading: fsm.NotPresent},
	}
	accepted[fsm.ResetToNotPresent] = map[fsm.State]fsm.State{}
	accepted[fsm.RemoveTransceiver] = map[fsm.State]fsm.State{}
	accepted[fsm.PrepareUpgrade] = map[fsm.State]fsm.State{}
	for _, s := range fsm.States() {
		accepted[fsm.ResetToNotPresent][s] = fsm.NotPresent
		accepted[fsm.RemoveTransceiver][s] = fsm.NotPresent
		if s != fsm.NotPresent {
			accepted[fsm.PrepareUpgrade][s] = fsm.Upgrading
		}
	}

	for _, ev := range fsm.Events() {
		for _, from := range fsm.States() {
			t.Run(fmt.Sprintf("%s in %s", ev, from), func(t *testing.T) {
				m, _ := machineIn(t, from)
				want, ok := accepted[ev][from]
				if !ok {
					want = from
				}
				res, err := m.Process(context.Background(), ev)
				require.NoError(t, err)
				assert.Equal(t, ok, res.Handled)
				assert.Equal(t, ok, fsm.Accepts(from, ev))
				assert.Equal(t, from, res.From)
				assert.Equal(t, want, res.To)
				assert.Equal(t, want, m.State())
			})
		}
	}
}

func TestReadEepromResetsAttributes(t *testing.T) {
	m, a := machineIn(t, fsm.Present)
	_, err := m.Process(context.Background(), fsm.ReadEeprom)
	require.NoError(t, err)
	assert.Equal(t, []string{"discover", "reset"}, a.calls)
	assert.Equal(t, fsm.DefaultAttributes(), m.Attributes())
}

func TestProgramIphyRejected(t *testing.T) {
	m, a := machineIn(t, fsm.Discovered)
	a.iphyErr = errors.New("no port mapping")

	res, err := m.Process(context.Background(), fsm.ProgramIphy)
	assert.ErrorIs(t, err, a.iphyErr)
	assert.True(t, res.From == res.To)
	assert.False(t, res.Handled)
	assert.Equal(t, fsm.Discovered, m.State())
	assert.False(t, m.Attributes().IphyProgrammed)

	a.iphyErr = nil
	res, err = m.Process(context.Background(), fsm.ProgramIphy)
	require.NoError(t, err)
	assert.True(t, res.Changed())
	assert.Equal(t, fsm.IphyPortsProgrammed, m.State())
	assert.True(t, m.Attributes().IphyProgrammed)
}

func TestProgramXphyRetry(t *testing.T) {
	m, a := machineIn(t, fsm.IphyPortsProgrammed)
	a.xphyErr = errors.New("mdio timeout")

	_, err := m.Process(context.Background(), fsm.ProgramXphy)
	assert.Error(t, err)
	assert.Equal(t, fsm.IphyPortsProgrammed, m.State())
	assert.Equal(t, fsm.Attributes{IphyProgrammed: true, NeedMarkLastDownTime: true},
		m.Attributes())

	a.xphyErr = nil
	_, err = m.Process(context.Background(), fsm.ProgramXphy)
	require.NoError(t, err)
	assert.Equal(t, fsm.XphyPortsProgrammed, m.State())
	assert.True(t, m.Attributes().XphyProgrammed)
	assert.Equal(t, []string{"xphy", "xphy"}, a.calls)
}

func TestLastDownTimeMarkedOncePerDownPeriod(t *testing.T) {
	m, a := machineIn(t, fsm.TransceiverProgrammed)
	ctx := context.Background()
	events := []fsm.Event{
		fsm.AllPortsDown, fsm.PortUp, fsm.AllPortsDown,
		fsm.RemediateDone, fsm.ProgramTransceiver, fsm.AllPortsDown,
	}
	for _, ev := range events {
		_, err := m.Process(ctx, ev)
		require.NoError(t, err)
	}
	assert.Equal(t, fsm.Inactive, m.State())
	assert.Equal(t, []string{"down", "down", "transceiver"}, a.calls)
	assert.False(t, m.Attributes().NeedMarkLastDownTime)
}

func TestRemediateDone(t *testing.T) {
	m, _ := machineIn(t, fsm.Inactive)
	_, err := m.Process(context.Background(), fsm.RemediateDone)
	require.NoError(t, err)
	assert.Equal(t, fsm.XphyPortsProgrammed, m.State())
	attrs := m.Attributes()
	assert.False(t, attrs.TransceiverProgrammed)
	assert.True(t, attrs.XphyProgrammed)
}

func TestRemoveResetsAttributes(t *testing.T) {
	m, a := machineIn(t, fsm.Active)
	_, err := m.Process(context.Background(), fsm.RemoveTransceiver)
	require.NoError(t, err)
	assert.Equal(t, fsm.NotPresent, m.State())
	assert.Equal(t, fsm.DefaultAttributes(), m.Attributes())
	assert.Equal(t, []string{"reset"}, a.calls)
}

func TestParseEvent(t *testing.T) {
	for _, ev := range fsm.Events() {
		got, err := fsm.ParseEvent(ev.String())
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}
	got, err := fsm.ParseEvent("read_eeprom")
	require.NoError(t, err)
	assert.Equal(t, fsm.ReadEeprom, got)
	_, err = fsm.ParseEvent("JUMP")
	assert.Error(t, err)
	assert.Equal(t, "UNKNOWN", fsm.State(42).String())
}
