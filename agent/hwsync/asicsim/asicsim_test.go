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

package asicsim_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfab/switchd/agent/hwsync"
	"github.com/netfab/switchd/agent/hwsync/asicsim"
	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/agent/update"
	"github.com/netfab/switchd/pkg/log/testlog"
)

func port(id state.PortID) *state.Port {
	return state.NewPort(state.PortFields{ID: id})
}

func TestASIC(t *testing.T) {
	a := asicsim.New(map[hwsync.Category]int{hwsync.CategoryPorts: 2})
	p1, p2 := port(1), port(2)

	require.NoError(t, a.ProcessAdded(hwsync.CategoryPorts, "1", p1))
	require.NoError(t, a.ProcessAdded(hwsync.CategoryPorts, "1", p1), "same node is a no-op")
	assert.ErrorIs(t, a.ProcessAdded(hwsync.CategoryPorts, "1", p2), asicsim.ErrExists)
	require.NoError(t, a.ProcessAdded(hwsync.CategoryPorts, "2", p2))
	assert.ErrorIs(t, a.ProcessAdded(hwsync.CategoryPorts, "3", port(3)), hwsync.ErrTableFull)
	assert.Equal(t, []string{"1", "2"}, a.Keys(hwsync.CategoryPorts))

	p1b := port(1)
	require.NoError(t, a.ProcessChanged(hwsync.CategoryPorts, "1", p1, p1b))
	got, ok := a.Get(hwsync.CategoryPorts, "1")
	require.True(t, ok)
	assert.Same(t, p1b, got)
	assert.ErrorIs(t, a.ProcessChanged(hwsync.CategoryPorts, "9", nil, port(9)),
		asicsim.ErrNotProgrammed)

	require.NoError(t, a.ProcessRemoved(hwsync.CategoryPorts, "2", p2))
	require.NoError(t, a.ProcessRemoved(hwsync.CategoryPorts, "2", p2))
	assert.Equal(t, 1, a.Len(hwsync.CategoryPorts))

	a.SetCapacity(hwsync.CategoryPorts, -1)
	require.NoError(t, a.ProcessAdded(hwsync.CategoryPorts, "3", port(3)))
	require.NoError(t, a.ProcessAdded(hwsync.CategoryPorts, "4", port(4)))
	assert.Equal(t, []asicsim.TableUsage{
		{Category: hwsync.CategoryPorts, Entries: 3, Capacity: -1},
	}, a.Usage())
}

func TestASICFaults(t *testing.T) {
	a := asicsim.New(nil)
	errSDK := errors.New("sdk failure")
	a.InjectFault(asicsim.Fault{
		Category: hwsync.CategoryRoutes,
		Key:      "0/10.0.0.0/24",
		Op:       hwsync.OpAdd,
		Err:      errSDK,
	})
	r := state.NewRoute(state.RouteFields{})
	assert.ErrorIs(t, a.ProcessAdded(hwsync.CategoryRoutes, "0/10.0.0.0/24", r), errSDK)
	require.NoError(t, a.ProcessAdded(hwsync.CategoryRoutes, "0/10.1.0.0/24", r))
	a.ClearFaults()
	require.NoError(t, a.ProcessAdded(hwsync.CategoryRoutes, "0/10.0.0.0/24", r))
	assert.Equal(t, 2, a.Len(hwsync.CategoryRoutes))
}

func TestASICDump(t *testing.T) {
	a := asicsim.New(map[hwsync.Category]int{hwsync.CategoryAclEntries: 128})
	require.NoError(t, a.ProcessAdded(hwsync.CategoryPorts, "1", port(1)))
	var buf bytes.Buffer
	a.Dump(&buf)
	out := buf.String()
	assert.Contains(t, out, "acl_entries")
	assert.Contains(t, out, "CAPACITY")
	assert.Contains(t, out, "128")
	assert.Contains(t, out, "*state.Port")
}

// TestPipelineRollback checks that a delta rejected by the hardware leaves
// neither the hardware nor the committed state modified.
func TestPipelineRollback(t *testing.T) {
	asic := asicsim.New(map[hwsync.Category]int{hwsync.CategoryPorts: 2})
	u := update.New(nil,
		update.WithLogger(testlog.NewLogger(t)),
		update.WithApplier(&hwsync.Synchronizer{Dataplane: asic}),
	)
	done := make(chan error, 1)
	go func() { done <- u.Run(context.Background()) }()
	defer func() {
		require.NoError(t, u.Close())
		require.NoError(t, <-done)
	}()

	addPorts := func(ids ...state.PortID) update.StateUpdateFn {
		return func(s *state.SwitchState) (*state.SwitchState, error) {
			for _, id := range ids {
				state.ModifyPorts(&s).Add(port(id))
			}
			return s, nil
		}
	}
	err := u.Update(context.Background(), "three ports", addPorts(1, 2, 3))
	assert.ErrorIs(t, err, hwsync.ErrTableFull)
	assert.Equal(t, 0, asic.Len(hwsync.CategoryPorts))
	assert.Equal(t, 0, u.State().Ports().Len())

	require.NoError(t, u.Update(context.Background(), "two ports", addPorts(1, 2)))
	assert.Equal(t, []string{"1", "2"}, asic.Keys(hwsync.CategoryPorts))
	assert.Equal(t, 2, u.State().Ports().Len())
}
