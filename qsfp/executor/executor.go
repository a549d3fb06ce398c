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

// Package executor provides the strategies used to run transceiver I/O.
//
// Platforms whose I2C controllers cannot run transactions in parallel use a
// Serialized executor shared by all transceivers on the bus. The others run
// I/O inline on the calling goroutine.
package executor

import (
	"context"
	"fmt"

	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/private/worker"
)

// ErrClosed is returned for work submitted to a closed executor.
var ErrClosed = serrors.New("executor closed")

// Executor runs a function and returns its error.
type Executor interface {
	Do(ctx context.Context, fn func() error) error
}

// Inline runs functions on the calling goroutine.
type Inline struct{}

func (Inline) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

type job struct {
	fn   func() error
	done chan error
}

// Serialized runs functions one at a time, in submission order, on a
// dedicated goroutine. It is started with Run and stopped with Close.
// Functions submitted before Run are queued.
type Serialized struct {
	jobs chan job

	workerBase worker.Base
}

// NewSerialized creates a serialized executor with the given queue capacity.
func NewSerialized(queue int) *Serialized {
	return &Serialized{jobs: make(chan job, queue)}
}

// Do submits fn and waits for it to complete. If ctx is done before fn was
// started, fn is not run. Once started, fn runs to completion. I2C
// transactions cannot be preempted.
func (s *Serialized) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case s.jobs <- j:
	case <-s.workerBase.GetDoneChan():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-s.workerBase.GetDoneChan():
		// Closed concurrently, the job might not be picked up anymore.
		s.drain()
	default:
	}
	return <-j.done
}

// Run processes submitted functions until Close is called. Functions still
// queued at that point complete with ErrClosed.
func (s *Serialized) Run(ctx context.Context) error {
	return s.workerBase.RunWrapper(ctx, nil, s.run)
}

func (s *Serialized) run(ctx context.Context) error {
	done := s.workerBase.GetDoneChan()
	for {
		select {
		case j := <-s.jobs:
			j.done <- s.exec(ctx, j.fn)
		case <-done:
			s.drain()
			return nil
		}
	}
}

func (s *Serialized) exec(ctx context.Context, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = serrors.New("panic in executor", "panic", fmt.Sprint(r))
			log.FromCtx(ctx).Error("Recovered panic in serialized executor", "err", err)
		}
	}()
	return fn()
}

func (s *Serialized) drain() {
	for {
		select {
		case j := <-s.jobs:
			j.done <- ErrClosed
		default:
			return
		}
	}
}

// Close stops the executor.
func (s *Serialized) Close() error {
	return s.workerBase.CloseWrapper(context.Background(), func(context.Context) error {
		s.drain()
		return nil
	})
}
