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

package executor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/netfab/switchd/qsfp/executor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInline(t *testing.T) {
	boom := errors.New("boom")
	var e executor.Executor = executor.Inline{}
	assert.ErrorIs(t, e.Do(context.Background(), func() error { return boom }), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := e.Do(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func runSerialized(t *testing.T, s *executor.Serialized) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, s.Close())
		require.NoError(t, <-done)
	})
}

func TestSerializedNoOverlap(t *testing.T) {
	s := executor.NewSerialized(4)
	runSerialized(t, s)

	var active, maxActive, total atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(context.Background(), func() error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				active.Add(-1)
				total.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 50, total.Load())
	assert.EqualValues(t, 1, maxActive.Load())
}

func TestSerializedOrder(t *testing.T) {
	s := executor.NewSerialized(10)
	var order []int
	var wg sync.WaitGroup
	// Submissions are queued before the executor runs.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Do(context.Background(), func() error {
				order = append(order, i)
				return nil
			}))
		}()
		// Wait until the job is queued to keep submission order.
		time.Sleep(5 * time.Millisecond)
	}
	runSerialized(t, s)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSerializedPanic(t *testing.T) {
	s := executor.NewSerialized(1)
	runSerialized(t, s)
	err := s.Do(context.Background(), func() error { panic("bus fault") })
	assert.ErrorContains(t, err, "panic in executor")
	assert.NoError(t, s.Do(context.Background(), func() error { return nil }))
}

func TestSerializedClosed(t *testing.T) {
	s := executor.NewSerialized(0)
	require.NoError(t, s.Close())
	err := s.Do(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, executor.ErrClosed)
	assert.NoError(t, s.Run(context.Background()))
}

func TestSerializedCanceled(t *testing.T) {
	s := executor.NewSerialized(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, s.Close())
}
