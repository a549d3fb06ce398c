// Copyright 2020 Anapaya Systems
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

// Package worker contains helpers for components that are started with Run
// and stopped with Close from another goroutine.
package worker

import (
	"context"
	"sync"

	"github.com/netfab/switchd/pkg/private/serrors"
)

// Base is meant to be embedded in long-running components. It keeps track of
// the Run and Close calls and provides a channel that is closed on Close.
//
// Run can be called at most once. Close can be called multiple times; only
// the first call has an effect. If Close is called before Run, Run returns
// immediately without error.
type Base struct {
	mtx       sync.Mutex
	running   bool
	closed    bool
	runCalled bool
	doneChan  chan struct{}
}

// RunWrapper calls setupF and then runF, unless the worker was closed. It
// returns an error if the worker is already running.
func (wb *Base) RunWrapper(ctx context.Context, setupF, runF func(context.Context) error) error {
	wb.mtx.Lock()
	if wb.runCalled {
		wb.mtx.Unlock()
		return serrors.New("function invoked multiple times")
	}
	wb.runCalled = true
	if wb.closed {
		wb.mtx.Unlock()
		return nil
	}
	wb.initDoneChan()
	if setupF != nil {
		if err := setupF(ctx); err != nil {
			wb.mtx.Unlock()
			return err
		}
	}
	wb.running = true
	wb.mtx.Unlock()

	if runF == nil {
		<-wb.doneChan
		return nil
	}
	return runF(ctx)
}

// CloseWrapper closes the done channel and calls closeF. Subsequent calls
// are no-ops.
func (wb *Base) CloseWrapper(ctx context.Context, closeF func(context.Context) error) error {
	wb.mtx.Lock()
	defer wb.mtx.Unlock()
	if wb.closed {
		return nil
	}
	wb.closed = true
	wb.initDoneChan()
	close(wb.doneChan)
	if closeF != nil {
		return closeF(ctx)
	}
	return nil
}

// GetDoneChan returns a channel that is closed when Close is called.
func (wb *Base) GetDoneChan() chan struct{} {
	wb.mtx.Lock()
	defer wb.mtx.Unlock()
	wb.initDoneChan()
	return wb.doneChan
}

// IsRunning returns whether Run has been called and Close has not.
func (wb *Base) IsRunning() bool {
	wb.mtx.Lock()
	defer wb.mtx.Unlock()
	return wb.running && !wb.closed
}

func (wb *Base) initDoneChan() {
	if wb.doneChan == nil {
		wb.doneChan = make(chan struct{})
	}
}
