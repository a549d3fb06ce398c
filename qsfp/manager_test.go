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

package qsfp_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/netfab/switchd/pkg/log/testlog"
	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/qsfp"
	"github.com/netfab/switchd/qsfp/fsm"
	"github.com/netfab/switchd/qsfp/mock_qsfp"
	"github.com/netfab/switchd/qsfp/module"
	"github.com/netfab/switchd/qsfp/module/moduletest"
	"github.com/netfab/switchd/qsfp/sff"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const profile100G = "PROFILE_100G_4_NRZ_CL91_OPTICAL"

type fakeClock struct {
	mtx sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = c.now.Add(d)
}

type testMetrics struct {
	*qsfp.Metrics
	transitions  *metrics.TestCounter
	failures     *metrics.TestCounter
	stuck        *metrics.TestGauge
	remediations *metrics.TestCounter
}

func newTestMetrics() testMetrics {
	m := testMetrics{
		transitions:  metrics.NewTestCounter(),
		failures:     metrics.NewTestCounter(),
		stuck:        metrics.NewTestGauge(),
		remediations: metrics.NewTestCounter(),
	}
	m.Metrics = &qsfp.Metrics{
		Transitions:        m.transitions,
		TransitionFailures: m.failures,
		Stuck:              m.stuck,
		Remediations:       m.remediations,
	}
	return m
}

type env struct {
	mgr     *qsfp.Manager
	ios     map[qsfp.TransceiverID]*moduletest.IO
	clock   *fakeClock
	metrics testMetrics
}

func newEnv(t *testing.T, slots int, opts ...qsfp.Option) *env {
	t.Helper()
	e := &env{
		ios:     make(map[qsfp.TransceiverID]*moduletest.IO),
		clock:   &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		metrics: newTestMetrics(),
	}
	ios := make(map[qsfp.TransceiverID]module.IO)
	for i := 0; i < slots; i++ {
		io := moduletest.New(moduletest.Optical())
		e.ios[qsfp.TransceiverID(i)] = io
		ios[qsfp.TransceiverID(i)] = io
	}
	opts = append([]qsfp.Option{
		qsfp.WithClock(e.clock.Now),
		qsfp.WithLogger(testlog.NewLogger(t)),
		qsfp.WithMetrics(e.metrics.Metrics),
	}, opts...)
	mgr, err := qsfp.NewManager(ios, opts...)
	require.NoError(t, err)
	e.mgr = mgr
	return e
}

func (e *env) state(t *testing.T, id qsfp.TransceiverID) fsm.State {
	t.Helper()
	s, err := e.mgr.CurrentState(id)
	require.NoError(t, err)
	return s
}

func (e *env) send(t *testing.T, id qsfp.TransceiverID, ev fsm.Event) fsm.Result {
	t.Helper()
	res, err := e.mgr.UpdateStateBlocking(context.Background(), id, ev)
	require.NoError(t, err)
	return res
}

func (e *env) refresh(t *testing.T) {
	t.Helper()
	require.NoError(t, e.mgr.RefreshStateMachines(context.Background()))
}

// discovered brings transceiver id to DISCOVERED by firing the events
// manually.
func (e *env) discovered(t *testing.T, id qsfp.TransceiverID) {
	t.Helper()
	e.ios[id].SetPresent(true)
	mod, err := e.mgr.Module(id)
	require.NoError(t, err)
	_, err = mod.Refresh(context.Background())
	require.NoError(t, err)
	e.send(t, id, fsm.DetectTransceiver)
	e.send(t, id, fsm.ReadEeprom)
	require.Equal(t, fsm.Discovered, e.state(t, id))
}

func TestDefaultState(t *testing.T) {
	e := newEnv(t, 2)
	assert.Equal(t, []qsfp.TransceiverID{0, 1}, e.mgr.IDs())
	assert.Equal(t, fsm.NotPresent, e.state(t, 0))
	attrs, err := e.mgr.Attributes(0)
	require.NoError(t, err)
	assert.Equal(t, fsm.DefaultAttributes(), attrs)

	_, err = e.mgr.CurrentState(5)
	assert.ErrorIs(t, err, qsfp.ErrUnknownTransceiver)
	_, err = e.mgr.UpdateStateBlocking(context.Background(), 5, fsm.DetectTransceiver)
	assert.ErrorIs(t, err, qsfp.ErrUnknownTransceiver)
	_, err = e.mgr.TransceiverInfo(5)
	assert.ErrorIs(t, err, qsfp.ErrUnknownTransceiver)
}

func TestProgramIphyNeedsPortMapping(t *testing.T) {
	e := newEnv(t, 1)
	e.ios[0].SetPresent(true)
	mod, err := e.mgr.Module(0)
	require.NoError(t, err)
	_, err = mod.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fsm.Result{From: fsm.NotPresent, To: fsm.Present, Handled: true},
		e.send(t, 0, fsm.DetectTransceiver))
	e.send(t, 0, fsm.ReadEeprom)
	assert.Equal(t, fsm.Discovered, e.state(t, 0))
	attrs, err := e.mgr.Attributes(0)
	require.NoError(t, err)
	assert.Equal(t, fsm.DefaultAttributes(), attrs)

	res, err := e.mgr.UpdateStateBlocking(context.Background(), 0, fsm.ProgramIphy)
	assert.ErrorIs(t, err, qsfp.ErrValidation)
	assert.False(t, res.Handled)
	assert.Equal(t, fsm.Discovered, e.state(t, 0))
	ports, err := e.mgr.ProgrammedIphyPorts(0)
	require.NoError(t, err)
	assert.Empty(t, ports)
	assert.Equal(t, 1.0, metrics.GaugeValue(e.metrics.stuck.With("transceiver", "0")))
	assert.Equal(t, 1.0, metrics.CounterValue(e.metrics.failures.With(
		"event", "program_iphy", "error", "err_validate")))

	e.mgr.SetOverrideTcvrToPortAndProfile(map[qsfp.TransceiverID]map[qsfp.PortID]string{
		0: {1: profile100G},
	})
	e.send(t, 0, fsm.ProgramIphy)
	assert.Equal(t, fsm.IphyPortsProgrammed, e.state(t, 0))
	attrs, err = e.mgr.Attributes(0)
	require.NoError(t, err)
	assert.Equal(t, fsm.Attributes{IphyProgrammed: true, NeedMarkLastDownTime: true}, attrs)
	ports, err = e.mgr.ProgrammedIphyPorts(0)
	require.NoError(t, err)
	assert.Equal(t, map[qsfp.PortID]qsfp.PortInfo{1: {Profile: profile100G}}, ports)
	assert.Zero(t, metrics.GaugeValue(e.metrics.stuck.With("transceiver", "0")))
	assert.Equal(t, 1.0, metrics.CounterValue(e.metrics.transitions.With(
		"from", "discovered", "to", "iphy_ports_programmed")))
}

func TestProgramXphyRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	phy := mock_qsfp.NewMockPhyManager(ctrl)
	e := newEnv(t, 1, qsfp.WithPhyManager(phy))
	e.mgr.SetOverrideTcvrToPortAndProfile(map[qsfp.TransceiverID]map[qsfp.PortID]string{
		0: {1: profile100G},
	})
	e.discovered(t, 0)
	e.send(t, 0, fsm.ProgramIphy)

	want := map[qsfp.PortID]qsfp.PortInfo{1: {Profile: profile100G}}
	gomock.InOrder(
		phy.EXPECT().ProgramXphyPorts(gomock.Any(), qsfp.TransceiverID(0), want).
			Return(errors.New("mdio timeout")),
		phy.EXPECT().ProgramXphyPorts(gomock.Any(), qsfp.TransceiverID(0), want),
	)
	_, err := e.mgr.UpdateStateBlocking(context.Background(), 0, fsm.ProgramXphy)
	assert.ErrorIs(t, err, qsfp.ErrHardwareIO)
	assert.Equal(t, fsm.IphyPortsProgrammed, e.state(t, 0))
	attrs, err := e.mgr.Attributes(0)
	require.NoError(t, err)
	assert.False(t, attrs.XphyProgrammed)
	assert.Equal(t, 1.0, metrics.CounterValue(e.metrics.failures.With(
		"event", "program_xphy", "error", "err_hardware_io")))

	e.send(t, 0, fsm.ProgramXphy)
	assert.Equal(t, fsm.XphyPortsProgrammed, e.state(t, 0))
	attrs, err = e.mgr.Attributes(0)
	require.NoError(t, err)
	assert.True(t, attrs.IphyProgrammed)
	assert.True(t, attrs.XphyProgrammed)
	assert.False(t, attrs.TransceiverProgrammed)
}

func TestRefreshStateMachines(t *testing.T) {
	e := newEnv(t, 2)
	e.ios[0].SetPresent(true)
	down := []qsfp.PortStatus{
		{Port: 1, Profile: profile100G, Speed: 100000, Enabled: true},
	}
	up := []qsfp.PortStatus{
		{Port: 1, Profile: profile100G, Speed: 100000, Enabled: true, Up: true},
	}
	e.mgr.SyncAgentPorts(map[qsfp.TransceiverID][]qsfp.PortStatus{0: down})

	e.refresh(t)
	assert.Equal(t, fsm.Inactive, e.state(t, 0))
	assert.Equal(t, fsm.NotPresent, e.state(t, 1), "no ports")
	attrs, err := e.mgr.Attributes(0)
	require.NoError(t, err)
	assert.Equal(t, fsm.Attributes{
		IphyProgrammed:        true,
		XphyProgrammed:        true,
		TransceiverProgrammed: true,
	}, attrs)
	info, err := e.mgr.TransceiverInfo(0)
	require.NoError(t, err)
	assert.EqualValues(t, 100000, info.Speed)

	e.mgr.SyncAgentPorts(map[qsfp.TransceiverID][]qsfp.PortStatus{0: up})
	e.refresh(t)
	assert.Equal(t, fsm.Active, e.state(t, 0))

	e.mgr.SyncAgentPorts(map[qsfp.TransceiverID][]qsfp.PortStatus{0: down})
	e.refresh(t)
	assert.Equal(t, fsm.Inactive, e.state(t, 0))

	// The initial remediate interval elapses.
	e.clock.Advance(121 * time.Second)
	e.refresh(t)
	assert.Equal(t, fsm.XphyPortsProgrammed, e.state(t, 0))
	assert.Equal(t, 1.0, metrics.CounterValue(e.metrics.remediations.With(
		"result", "ok_success")))

	// The module is reprogrammed and goes back to INACTIVE.
	e.refresh(t)
	assert.Equal(t, fsm.Inactive, e.state(t, 0))
	info, err = e.mgr.TransceiverInfo(0)
	require.NoError(t, err)
	assert.Equal(t, 1, info.RemediationCounter)

	// Remediation is paused globally.
	e.mgr.PauseRemediation(time.Hour)
	assert.Equal(t, e.clock.Now().Add(time.Hour), e.mgr.PauseRemediationUntil())
	e.clock.Advance(400 * time.Second)
	e.refresh(t)
	assert.Equal(t, fsm.Inactive, e.state(t, 0))
	e.clock.Advance(time.Hour)
	e.refresh(t)
	assert.Equal(t, fsm.XphyPortsProgrammed, e.state(t, 0))
}

func TestModulePauseRemediation(t *testing.T) {
	e := newEnv(t, 1)
	e.ios[0].SetPresent(true)
	e.mgr.SyncAgentPorts(map[qsfp.TransceiverID][]qsfp.PortStatus{
		0: {{Port: 1, Profile: profile100G, Enabled: true}},
	})
	e.refresh(t)
	require.Equal(t, fsm.Inactive, e.state(t, 0))

	require.NoError(t, e.mgr.ModulePauseRemediation(0, time.Hour))
	e.clock.Advance(10 * time.Minute)
	e.refresh(t)
	assert.Equal(t, fsm.Inactive, e.state(t, 0))
	assert.ErrorIs(t, e.mgr.ModulePauseRemediation(3, time.Hour), qsfp.ErrUnknownTransceiver)
}

func TestRemoveAndReinsert(t *testing.T) {
	e := newEnv(t, 1)
	e.mgr.SetOverrideTcvrToPortAndProfile(map[qsfp.TransceiverID]map[qsfp.PortID]string{
		0: {1: profile100G},
	})
	// Ports without a module are programmed as well.
	e.refresh(t)
	assert.Equal(t, fsm.TransceiverProgrammed, e.state(t, 0))

	e.ios[0].SetPresent(true)
	e.refresh(t)
	assert.Equal(t, fsm.TransceiverProgrammed, e.state(t, 0))
	assert.Equal(t, 1.0, metrics.CounterValue(e.metrics.transitions.With(
		"from", "transceiver_programmed", "to", "not_present")))
	assert.Equal(t, 1.0, metrics.CounterValue(e.metrics.transitions.With(
		"from", "present", "to", "discovered")))
	info, err := e.mgr.TransceiverInfo(0)
	require.NoError(t, err)
	assert.True(t, info.Present)

	e.ios[0].SetPresent(false)
	e.refresh(t)
	assert.Equal(t, 2.0, metrics.CounterValue(e.metrics.transitions.With(
		"from", "transceiver_programmed", "to", "not_present")))
	info, err = e.mgr.TransceiverInfo(0)
	require.NoError(t, err)
	assert.False(t, info.Present)
}

func TestRefreshCollectsErrors(t *testing.T) {
	e := newEnv(t, 3)
	for _, io := range e.ios {
		io.SetPresent(true)
	}
	e.ios[1].ReadErr = errors.New("nack")
	err := e.mgr.RefreshStateMachines(context.Background())
	assert.ErrorIs(t, err, qsfp.ErrHardwareIO)
	assert.Equal(t, fsm.Discovered, e.state(t, 0))
	assert.Equal(t, fsm.Present, e.state(t, 1))
	assert.Equal(t, fsm.Discovered, e.state(t, 2))

	e.ios[1].ReadErr = nil
	e.refresh(t)
	assert.Equal(t, fsm.Discovered, e.state(t, 1))
}

func TestCustomizeRateLimit(t *testing.T) {
	cfg := module.DefaultConfig()
	cfg.CustomizeInterval = time.Hour
	e := newEnv(t, 1, qsfp.WithModuleConfig(cfg))
	e.ios[0].SetPresent(true)
	e.mgr.SetOverrideTcvrToPortAndProfile(map[qsfp.TransceiverID]map[qsfp.PortID]string{
		0: {1: profile100G},
	})
	e.refresh(t)
	require.Equal(t, fsm.TransceiverProgrammed, e.state(t, 0))

	e.ios[0].ResetStats()
	for i := 0; i < 3; i++ {
		e.clock.Advance(time.Minute)
		e.refresh(t)
	}
	for _, w := range e.ios[0].Writes() {
		assert.NotEqual(t, uint8(sff.OffsetPowerCtrl), w.Offset)
	}
}

func TestNewManagerStartsNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	cfg := module.DefaultConfig()
	cfg.CustomizeInterval = time.Minute
	_, err := qsfp.NewManager(map[qsfp.TransceiverID]module.IO{
		0: moduletest.New(moduletest.Optical()),
	}, qsfp.WithModuleConfig(cfg))
	require.NoError(t, err)
}

func TestUpdateStateBlockingWithoutWait(t *testing.T) {
	e := newEnv(t, 1)
	res := <-e.mgr.UpdateStateBlockingWithoutWait(context.Background(), 0,
		fsm.DetectTransceiver)
	require.NoError(t, res.Err)
	assert.Equal(t, fsm.Present, res.Result.To)

	res = <-e.mgr.UpdateStateBlockingWithoutWait(context.Background(), 9,
		fsm.DetectTransceiver)
	assert.ErrorIs(t, res.Err, qsfp.ErrUnknownTransceiver)
}

// TestConcurrentEvents checks that concurrent events for the same
// transceiver are applied one at a time. The transitions observed by the
// callers must form a single path from NOT_PRESENT to the final state.
func TestConcurrentEvents(t *testing.T) {
	e := newEnv(t, 2)
	e.mgr.SetOverrideTcvrToPortAndProfile(map[qsfp.TransceiverID]map[qsfp.PortID]string{
		0: {1: profile100G},
		1: {2: profile100G},
	})
	for id := range e.ios {
		e.ios[id].SetPresent(true)
		mod, err := e.mgr.Module(id)
		require.NoError(t, err)
		_, err = mod.Refresh(context.Background())
		require.NoError(t, err)
	}

	type update struct {
		event fsm.Event
		res   fsm.Result
	}
	events := fsm.Events()
	var mtx sync.Mutex
	results := make(map[qsfp.TransceiverID][]update)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(g)))
			for i := 0; i < 200; i++ {
				id := qsfp.TransceiverID(r.Intn(2))
				ev := events[r.Intn(len(events))]
				res, err := e.mgr.UpdateStateBlocking(context.Background(), id, ev)
				assert.NoError(t, err)
				mtx.Lock()
				results[id] = append(results[id], update{event: ev, res: res})
				mtx.Unlock()
			}
		}()
	}
	wg.Wait()

	for id, updates := range results {
		// in-degree minus out-degree of every state along the path.
		balance := make(map[fsm.State]int)
		for _, u := range updates {
			res := u.res
			assert.Equal(t, fsm.Accepts(res.From, u.event), res.Handled,
				"%s in %s", u.event, res.From)
			if !res.Handled {
				continue
			}
			balance[res.From]--
			balance[res.To]++
		}
		balance[fsm.NotPresent]++
		balance[e.state(t, id)]--
		for s, b := range balance {
			assert.Zero(t, b, "transceiver %d state %s", id, s)
		}
	}
}

func TestDiagnostics(t *testing.T) {
	e := newEnv(t, 2)
	e.ios[1].SetPresent(true)
	e.refresh(t)

	var buf bytes.Buffer
	e.mgr.Diagnostics(&buf)
	out := buf.String()
	assert.Contains(t, out, "PART NUMBER")
	assert.Contains(t, out, "NOT_PRESENT")
	assert.Contains(t, out, "DISCOVERED")
	assert.Contains(t, out, "FAKE OPTICS")

	statuses := e.mgr.Statuses()
	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].Present)
	assert.Nil(t, statuses[0].Info)
	require.NotNil(t, statuses[1].Info)
	assert.Equal(t, "FO-100G-CWDM4", statuses[1].Info.Vendor.PartNumber)
}
