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

// Package update implements the single-writer pipeline that turns named
// mutations into committed switch states.
//
// Mutations are queued in FIFO order and applied one at a time against the
// latest committed state. A mutation that returns a new tree is published,
// optionally pushed to hardware through an Applier and then committed.
// Registered observers receive the delta of every commit in commit order.
// Observers that want to change the state again submit a new mutation with
// UpdateAsync.
package update

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/private/worker"
)

// ErrClosed is returned for updates submitted to, or still queued in, a
// closed Updater.
var ErrClosed = errors.New("updater closed")

// StateUpdateFn computes a new state from the committed one. Returning a nil
// state means that nothing changed.
type StateUpdateFn func(*state.SwitchState) (*state.SwitchState, error)

// Observer is notified after every commit.
type Observer interface {
	StateUpdated(ctx context.Context, delta *state.StateDelta)
}

// ObserverFunc is a function adapter for Observer.
type ObserverFunc func(ctx context.Context, delta *state.StateDelta)

func (f ObserverFunc) StateUpdated(ctx context.Context, delta *state.StateDelta) {
	f(ctx, delta)
}

// Applier pushes a delta to hardware before it is committed. If Apply
// returns an error, the pipeline applies the reverse delta and drops the
// update.
type Applier interface {
	Apply(ctx context.Context, delta *state.StateDelta) error
}

type request struct {
	ctx    context.Context
	name   string
	fn     StateUpdateFn
	result chan error
}

type namedObserver struct {
	name string
	obs  Observer
}

// Option configures an Updater.
type Option func(*Updater)

// WithApplier sets the hardware stage of the pipeline.
func WithApplier(a Applier) Option {
	return func(u *Updater) { u.applier = a }
}

// WithMetrics sets the metrics of the pipeline.
func WithMetrics(m *Metrics) Option {
	return func(u *Updater) { u.metrics = m }
}

// WithLogger sets the logger used by the writer loop.
func WithLogger(l log.Logger) Option {
	return func(u *Updater) { u.logger = l }
}

// Updater serializes state mutations. It must be started with Run.
type Updater struct {
	applier Applier
	metrics *Metrics
	logger  log.Logger

	current atomic.Pointer[state.SwitchState]

	obsMtx    sync.Mutex
	observers []namedObserver

	queueMtx sync.Mutex
	queue    []*request
	closed   bool
	wakeup   chan struct{}

	workerBase worker.Base
}

// New creates an Updater with initial as the committed state. initial is
// published.
func New(initial *state.SwitchState, opts ...Option) *Updater {
	if initial == nil {
		initial = state.NewSwitchState()
	}
	initial.Publish()
	u := &Updater{
		wakeup: make(chan struct{}, 1),
		logger: log.Root(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.current.Store(initial)
	u.metrics.setGeneration(initial.Generation())
	return u
}

// State returns the committed state. It never blocks.
func (u *Updater) State() *state.SwitchState {
	return u.current.Load()
}

// Register adds an observer. Observers are called in registration order.
func (u *Updater) Register(name string, obs Observer) {
	u.obsMtx.Lock()
	defer u.obsMtx.Unlock()
	u.observers = append(u.observers, namedObserver{name: name, obs: obs})
}

// Update submits fn and waits until it was committed and all observers ran,
// or until ctx is done. The returned error names the update.
func (u *Updater) Update(ctx context.Context, name string, fn StateUpdateFn) error {
	req := &request{ctx: ctx, name: name, fn: fn, result: make(chan error, 1)}
	if err := u.enqueue(req); err != nil {
		return err
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return serrors.Wrap("waiting for state update", ctx.Err(), "update", name)
	}
}

// UpdateAsync submits fn without waiting for it. Failures are logged.
func (u *Updater) UpdateAsync(name string, fn StateUpdateFn) {
	req := &request{ctx: context.Background(), name: name, fn: fn}
	if err := u.enqueue(req); err != nil {
		u.logger.Info("Dropping state update", "update", name, "err", err)
	}
}

func (u *Updater) enqueue(req *request) error {
	u.queueMtx.Lock()
	if u.closed {
		u.queueMtx.Unlock()
		return serrors.Wrap("submitting state update", ErrClosed, "update", req.name)
	}
	u.queue = append(u.queue, req)
	depth := len(u.queue)
	u.queueMtx.Unlock()
	u.metrics.setQueueDepth(depth)
	select {
	case u.wakeup <- struct{}{}:
	default:
	}
	return nil
}

func (u *Updater) dequeue() (*request, bool) {
	u.queueMtx.Lock()
	defer u.queueMtx.Unlock()
	if len(u.queue) == 0 {
		return nil, false
	}
	req := u.queue[0]
	u.queue[0] = nil
	u.queue = u.queue[1:]
	u.metrics.setQueueDepth(len(u.queue))
	return req, true
}

// Run runs the writer loop until Close is called.
func (u *Updater) Run(ctx context.Context) error {
	return u.workerBase.RunWrapper(ctx, nil, u.run)
}

// Close stops the writer loop. Queued updates fail with ErrClosed.
func (u *Updater) Close() error {
	return u.workerBase.CloseWrapper(context.Background(), func(context.Context) error {
		u.queueMtx.Lock()
		defer u.queueMtx.Unlock()
		u.closed = true
		return nil
	})
}

func (u *Updater) run(ctx context.Context) error {
	done := u.workerBase.GetDoneChan()
	for {
		select {
		case <-done:
			u.drain()
			return nil
		case <-ctx.Done():
			u.drain()
			return nil
		case <-u.wakeup:
		}
		for {
			select {
			case <-done:
				u.drain()
				return nil
			default:
			}
			req, ok := u.dequeue()
			if !ok {
				break
			}
			u.handle(ctx, req)
		}
	}
}

func (u *Updater) drain() {
	u.queueMtx.Lock()
	u.closed = true
	pending := u.queue
	u.queue = nil
	u.queueMtx.Unlock()
	u.metrics.setQueueDepth(0)
	for _, req := range pending {
		u.metrics.observe(resultClosed, 0)
		req.reply(serrors.Wrap("state update not applied", ErrClosed, "update", req.name))
	}
}

func (r *request) reply(err error) {
	if r.result != nil {
		r.result <- err
	}
}

func (u *Updater) handle(ctx context.Context, req *request) {
	start := time.Now()
	if err := req.ctx.Err(); err != nil {
		u.metrics.observe(resultCanceled, time.Since(start))
		req.reply(serrors.Wrap("state update canceled", err, "update", req.name))
		return
	}
	result, err := u.apply(ctx, req)
	u.metrics.observe(result, time.Since(start))
	if err != nil && req.result == nil {
		u.logger.Error("Asynchronous state update failed", "update", req.name, "err", err)
	}
	req.reply(err)
}

// apply runs one update end to end and returns the metrics result label.
func (u *Updater) apply(ctx context.Context, req *request) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "state.update")
	defer span.Finish()
	span.SetTag("update.name", req.name)
	logger := u.logger.New("update", req.name)

	old := u.current.Load()
	next, err := u.runMutation(req, old)
	if err != nil {
		span.SetTag("error", true)
		if errors.Is(err, state.ErrProgramming) {
			logger.Error("State update panicked", "err", err)
			return resultPanic, err
		}
		return resultMutation, serrors.Wrap("state update failed", err, "update", req.name)
	}
	if next == nil || next == old {
		return resultNoop, nil
	}
	if next.Generation() <= old.Generation() {
		return resultMutation, serrors.Join(state.ErrProgramming, nil,
			"update", req.name, "generation", next.Generation(),
			"committed_generation", old.Generation())
	}
	next.Publish()
	delta := state.NewStateDelta(old, next)

	if u.applier != nil {
		if err := u.applier.Apply(ctx, delta); err != nil {
			span.SetTag("error", true)
			logger.Info("Hardware rejected state update, rolling back", "err", err)
			if rerr := u.applier.Apply(ctx, delta.Reverse()); rerr != nil {
				logger.Error("Rolling back hardware failed", "err", rerr)
			}
			return resultHardware, serrors.Wrap("applying state update to hardware", err,
				"update", req.name)
		}
	}

	u.current.Store(next)
	u.metrics.setGeneration(next.Generation())
	logger.Debug("Committed state", "generation", next.Generation())
	u.notify(ctx, delta)
	return resultOk, nil
}

func (u *Updater) runMutation(
	req *request,
	old *state.SwitchState,
) (next *state.SwitchState, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r, req.name)
		}
	}()
	return req.fn(old)
}

func recoveredError(r any, name string) error {
	if err, ok := r.(error); ok && errors.Is(err, state.ErrProgramming) {
		return serrors.Wrap("state update panicked", err, "update", name)
	}
	return serrors.Join(state.ErrProgramming, nil,
		"update", name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
}

func (u *Updater) notify(ctx context.Context, delta *state.StateDelta) {
	u.obsMtx.Lock()
	observers := append([]namedObserver(nil), u.observers...)
	u.obsMtx.Unlock()
	for _, o := range observers {
		u.notifyOne(ctx, o, delta)
	}
}

func (u *Updater) notifyOne(ctx context.Context, o namedObserver, delta *state.StateDelta) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("Observer panicked", "observer", o.name,
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			metrics.CounterInc(metrics.CounterWith(u.metrics.observerPanics(), "observer", o.name))
		}
	}()
	o.obs.StateUpdated(ctx, delta)
}
