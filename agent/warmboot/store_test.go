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

package warmboot_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/agent/warmboot"
	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/private/storage/cleaner"
	"github.com/netfab/switchd/private/storage/db"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// The sqlite driver keeps a connection opener goroutine per pool
		// until the pool is garbage collected.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func newStore(t *testing.T) (*warmboot.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warmboot.db")
	s, err := warmboot.New(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

// states returns n published states with increasing generations.
func states(t *testing.T, n int) []*state.SwitchState {
	t.Helper()
	s := state.NewSwitchState()
	var out []*state.SwitchState
	for i := range n {
		state.ModifyPorts(&s).Add(state.NewPort(state.PortFields{
			ID:   state.PortID(i + 1),
			Name: fmt.Sprintf("eth1/%d/1", i+1),
		}))
		s.Publish()
		out = append(out, s)
	}
	return out
}

type source struct {
	s *state.SwitchState
}

func (s *source) State() *state.SwitchState { return s.s }

func TestLatestEmpty(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Latest(context.Background())
	assert.ErrorIs(t, err, warmboot.ErrNotFound)
}

func TestSaveLatest(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	sts := states(t, 3)
	for _, st := range sts {
		require.NoError(t, s.Save(ctx, st))
	}

	snap, err := s.Latest(ctx)
	require.NoError(t, err)
	last := sts[len(sts)-1]
	assert.Equal(t, last.Generation(), snap.Generation)
	assert.False(t, snap.State.IsPublished())
	assert.Equal(t, 3, snap.State.Ports().Len())

	want, err := state.EncodeTyped(last)
	require.NoError(t, err)
	got, err := state.EncodeTyped(snap.State)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveSameGenerationReplaces(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	st := states(t, 1)[0]
	require.NoError(t, s.Save(ctx, st))
	require.NoError(t, s.Save(ctx, st))
	gens, err := s.Generations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{st.Generation()}, gens)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t)
	st := states(t, 2)[1]
	require.NoError(t, s.Save(ctx, st))
	require.NoError(t, s.Close())

	s, err := warmboot.New(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	snap, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, st.Generation(), snap.Generation)
}

func TestSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warmboot.db")
	raw, err := db.NewSqlite(path, nil)
	require.NoError(t, err)
	_, err = raw.Full.Exec("PRAGMA user_version = 42")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = warmboot.New(ctx, path, nil)
	assert.ErrorIs(t, err, db.ErrSchemaMismatch)
}

func TestImportLegacy(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	st := states(t, 2)[1]
	legacy, err := state.EncodeLegacy(st)
	require.NoError(t, err)

	gen, err := s.ImportLegacy(ctx, legacy)
	require.NoError(t, err)
	assert.Equal(t, st.Generation(), gen)
	snap, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.State.Ports().Len())

	_, err = s.ImportLegacy(ctx, []byte("{"))
	assert.ErrorIs(t, err, db.ErrInvalidInputData)
}

func TestCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t)
	require.NoError(t, s.Close())

	raw, err := db.NewSqlite(path, nil)
	require.NoError(t, err)
	_, err = raw.Full.Exec(
		"INSERT INTO Snapshots (Generation, Written, Data) VALUES (7, 0, x'ff00')")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err = warmboot.New(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, db.ErrDataInvalid)
	assert.ErrorIs(t, err, state.ErrMalformed)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	sts := states(t, 4)
	for _, st := range sts {
		require.NoError(t, s.Save(ctx, st))
	}

	deleted := metrics.NewTestCounter()
	task := cleaner.New(func(ctx context.Context) (int, error) {
		return s.Prune(ctx, 2)
	}, "warmboot", cleaner.Metrics{DeletedTotal: deleted})
	assert.Equal(t, "warmboot_cleaner", task.Name())
	task.Run(ctx)
	assert.Equal(t, float64(2), metrics.CounterValue(deleted))

	gens, err := s.Generations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{sts[2].Generation(), sts[3].Generation()}, gens)

	n, err := s.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, warmboot.ErrNotFound)
}

func TestPersister(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	sts := states(t, 2)
	src := &source{}
	saved := metrics.NewTestCounter()
	p := &warmboot.Persister{Store: s, Source: src, Saved: saved}

	// Nothing committed yet.
	require.NoError(t, p.Persist(ctx))

	src.s = sts[0]
	p.Run(ctx)
	p.Run(ctx)
	src.s = sts[1]
	p.Run(ctx)

	gens, err := s.Generations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{sts[0].Generation(), sts[1].Generation()}, gens)
	assert.Equal(t, float64(2),
		metrics.CounterValue(saved.With("result", "ok_success")))
}

func TestPersisterWriteError(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Close())

	saved := metrics.NewTestCounter()
	p := &warmboot.Persister{
		Store:  s,
		Source: &source{s: states(t, 1)[0]},
		Saved:  saved,
	}
	assert.ErrorIs(t, p.Persist(ctx), db.ErrWriteFailed)
	assert.Equal(t, float64(1),
		metrics.CounterValue(saved.With("result", "err_db")))
}

func TestOpenMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "warmboot.db")
	_, err := warmboot.New(context.Background(), path, nil)
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
