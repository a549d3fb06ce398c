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

package update_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/agent/update"
	"github.com/netfab/switchd/agent/update/mock_update"
	"github.com/netfab/switchd/pkg/log/testlog"
	"github.com/netfab/switchd/pkg/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func addPort(id state.PortID, name string) update.StateUpdateFn {
	return func(s *state.SwitchState) (*state.SwitchState, error) {
		state.ModifyPorts(&s).Add(state.NewPort(state.PortFields{ID: id, Name: name}))
		return s, nil
	}
}

// start runs u and stops it at the end of the test.
func start(t *testing.T, u *update.Updater) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- u.Run(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, u.Close())
		require.NoError(t, <-done)
	})
}

func testMetrics() (*update.Metrics, *metrics.TestCounter) {
	updates := metrics.NewTestCounter()
	return &update.Metrics{
		Updates:        updates,
		Duration:       metrics.NewTestHistogram(),
		QueueDepth:     metrics.NewTestGauge(),
		Generation:     metrics.NewTestGauge(),
		ObserverPanics: metrics.NewTestCounter(),
	}, updates
}

func TestUpdateCommits(t *testing.T) {
	ctrl := gomock.NewController(t)
	obs := mock_update.NewMockObserver(ctrl)
	m, updates := testMetrics()
	u := update.New(nil, update.WithLogger(testlog.NewLogger(t)), update.WithMetrics(m))
	u.Register("obs", obs)
	start(t, u)

	initial := u.State()
	assert.True(t, initial.IsPublished())

	obs.EXPECT().StateUpdated(gomock.Any(), gomock.Any()).Do(
		func(_ context.Context, d *state.StateDelta) {
			assert.Same(t, initial, d.OldState())
			var added []state.PortID
			for e := range d.PortsDelta().All() {
				require.True(t, e.IsAdded())
				added = append(added, e.New.ID())
			}
			assert.Equal(t, []state.PortID{5}, added)
			assert.True(t, d.VlansDelta().IsEmpty())
		},
	)
	require.NoError(t, u.Update(context.Background(), "add port", addPort(5, "eth1/5/1")))

	s := u.State()
	assert.True(t, s.IsPublished())
	assert.Greater(t, s.Generation(), initial.Generation())
	assert.Equal(t, "eth1/5/1", s.Ports().Get(5).Name())
	assert.Equal(t, float64(s.Generation()), metrics.GaugeValue(m.Generation))
	assert.Equal(t, 1.0, metrics.CounterValue(updates.With("result", "ok_success")))
}

func TestUpdateNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	obs := mock_update.NewMockObserver(ctrl)
	m, updates := testMetrics()
	u := update.New(nil, update.WithLogger(testlog.NewLogger(t)), update.WithMetrics(m))
	u.Register("obs", obs)
	start(t, u)

	before := u.State()
	err := u.Update(context.Background(), "noop",
		func(*state.SwitchState) (*state.SwitchState, error) { return nil, nil })
	require.NoError(t, err)
	err = u.Update(context.Background(), "same",
		func(s *state.SwitchState) (*state.SwitchState, error) { return s, nil })
	require.NoError(t, err)
	assert.Same(t, before, u.State())
	assert.Equal(t, 2.0, metrics.CounterValue(updates.With("result", "ok_noop")))
}

func TestUpdateFailure(t *testing.T) {
	errBoom := errors.New("boom")
	testCases := map[string]struct {
		Fn         update.StateUpdateFn
		ErrIs      error
		ResultName string
	}{
		"error": {
			Fn: func(s *state.SwitchState) (*state.SwitchState, error) {
				state.ModifyPorts(&s).Add(state.NewPort(state.PortFields{ID: 9}))
				return nil, errBoom
			},
			ErrIs:      errBoom,
			ResultName: "err_update",
		},
		"programming error": {
			Fn: func(s *state.SwitchState) (*state.SwitchState, error) {
				s.Ports().Get(42)
				return s, nil
			},
			ErrIs:      state.ErrProgramming,
			ResultName: "err_panic",
		},
		"plain panic": {
			Fn: func(*state.SwitchState) (*state.SwitchState, error) {
				panic("unexpected")
			},
			ErrIs:      state.ErrProgramming,
			ResultName: "err_panic",
		},
		"stale generation": {
			Fn: func(*state.SwitchState) (*state.SwitchState, error) {
				return state.NewSwitchState(), nil
			},
			ErrIs:      state.ErrProgramming,
			ResultName: "err_update",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			obs := mock_update.NewMockObserver(ctrl)
			m, updates := testMetrics()
			u := update.New(nil, update.WithLogger(testlog.NewLogger(t)),
				update.WithMetrics(m))
			start(t, u)
			require.NoError(t, u.Update(context.Background(), "seed", addPort(1, "p1")))
			u.Register("obs", obs)
			before := u.State()

			err := u.Update(context.Background(), "failing", tc.Fn)
			assert.ErrorIs(t, err, tc.ErrIs)
			assert.ErrorContains(t, err, "failing")
			assert.Same(t, before, u.State())
			assert.Equal(t, 1.0,
				metrics.CounterValue(updates.With("result", tc.ResultName)))
		})
	}
}

func TestUpdateOrdering(t *testing.T) {
	u := update.New(nil, update.WithLogger(testlog.NewLogger(t)))
	var mtx sync.Mutex
	var deltas []*state.StateDelta
	u.Register("recorder", update.ObserverFunc(func(_ context.Context, d *state.StateDelta) {
		mtx.Lock()
		defer mtx.Unlock()
		deltas = append(deltas, d)
	}))
	start(t, u)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := state.PortID(i + 1)
			assert.NoError(t, u.Update(context.Background(), fmt.Sprintf("port %d", id),
				addPort(id, fmt.Sprintf("eth1/%d/1", id))))
		}()
	}
	wg.Wait()

	assert.Equal(t, n, u.State().Ports().Len())
	mtx.Lock()
	defer mtx.Unlock()
	require.Len(t, deltas, n)
	for i := 1; i < n; i++ {
		assert.Same(t, deltas[i-1].NewState(), deltas[i].OldState(), "delta %d", i)
	}
	assert.Same(t, u.State(), deltas[n-1].NewState())
}

func TestUpdateHardwareRollback(t *testing.T) {
	ctrl := gomock.NewController(t)
	applier := mock_update.NewMockApplier(ctrl)
	obs := mock_update.NewMockObserver(ctrl)
	m, updates := testMetrics()
	u := update.New(nil, update.WithLogger(testlog.NewLogger(t)),
		update.WithApplier(applier), update.WithMetrics(m))
	u.Register("obs", obs)
	start(t, u)

	errFull := errors.New("table full")
	before := u.State()
	var applied *state.StateDelta
	gomock.InOrder(
		applier.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, d *state.StateDelta) error {
				applied = d
				assert.Same(t, before, d.OldState())
				assert.True(t, d.NewState().IsPublished())
				return errFull
			},
		),
		applier.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, d *state.StateDelta) error {
				assert.Same(t, applied.NewState(), d.OldState())
				assert.Same(t, applied.OldState(), d.NewState())
				return nil
			},
		),
	)
	err := u.Update(context.Background(), "add port", addPort(5, "eth1/5/1"))
	assert.ErrorIs(t, err, errFull)
	assert.Same(t, before, u.State())
	assert.Equal(t, 1.0, metrics.CounterValue(updates.With("result", "err_hardware")))

	applier.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(nil)
	obs.EXPECT().StateUpdated(gomock.Any(), gomock.Any())
	require.NoError(t, u.Update(context.Background(), "add port", addPort(5, "eth1/5/1")))
	_, ok := u.State().Ports().GetIf(5)
	assert.True(t, ok)
}

func TestUpdateObserverResubmits(t *testing.T) {
	u := update.New(nil, update.WithLogger(testlog.NewLogger(t)))
	u.Register("intf", update.ObserverFunc(func(_ context.Context, d *state.StateDelta) {
		_ = d.PortsDelta().ForEachAdded(func(p *state.Port) error {
			id := state.InterfaceID(p.ID())
			u.UpdateAsync("add interface", func(s *state.SwitchState) (*state.SwitchState, error) {
				if _, ok := s.Interfaces().GetIf(id); ok {
					return nil, nil
				}
				state.ModifyInterfaces(&s).Add(
					state.NewInterface(state.InterfaceFields{ID: id}))
				return s, nil
			})
			return nil
		})
	}))
	start(t, u)

	require.NoError(t, u.Update(context.Background(), "add port", addPort(7, "eth1/7/1")))
	assert.Eventually(t, func() bool {
		_, ok := u.State().Interfaces().GetIf(7)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestUpdateObserverPanic(t *testing.T) {
	m, _ := testMetrics()
	u := update.New(nil, update.WithLogger(testlog.NewLogger(t)), update.WithMetrics(m))
	u.Register("broken", update.ObserverFunc(func(context.Context, *state.StateDelta) {
		panic("observer bug")
	}))
	called := false
	u.Register("next", update.ObserverFunc(func(context.Context, *state.StateDelta) {
		called = true
	}))
	start(t, u)

	require.NoError(t, u.Update(context.Background(), "add port", addPort(1, "p1")))
	assert.True(t, called)
	assert.Equal(t, 1.0,
		metrics.CounterValue(m.ObserverPanics.With("observer", "broken")))
}

func TestUpdateClosed(t *testing.T) {
	u := update.New(nil, update.WithLogger(testlog.NewLogger(t)))
	done := make(chan error, 1)
	go func() { done <- u.Run(context.Background()) }()
	require.NoError(t, u.Update(context.Background(), "add port", addPort(1, "p1")))
	require.NoError(t, u.Close())
	require.NoError(t, <-done)

	err := u.Update(context.Background(), "late", addPort(2, "p2"))
	assert.ErrorIs(t, err, update.ErrClosed)
	u.UpdateAsync("late async", addPort(3, "p3"))
	assert.Equal(t, 1, u.State().Ports().Len())
}

func TestUpdateContextCanceled(t *testing.T) {
	u := update.New(nil, update.WithLogger(testlog.NewLogger(t)))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// The writer loop is not running, so the update cannot complete.
	err := u.Update(ctx, "stuck", addPort(1, "p1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Once running, the expired update is skipped.
	start(t, u)
	require.NoError(t, u.Update(context.Background(), "add port", addPort(2, "p2")))
	_, ok := u.State().Ports().GetIf(1)
	assert.False(t, ok)
	_, ok = u.State().Ports().GetIf(2)
	assert.True(t, ok)
}
