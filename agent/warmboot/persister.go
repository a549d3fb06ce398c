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

package warmboot

import (
	"context"
	"sync"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/pkg/private/prom"
	"github.com/netfab/switchd/private/periodic"
)

// Source provides the committed state.
type Source interface {
	State() *state.SwitchState
}

var _ periodic.Task = (*Persister)(nil)

// Persister is a periodic.Task that saves the committed state whenever its
// generation advanced since the last successful save.
type Persister struct {
	Store  *Store
	Source Source
	// Saved counts successful saves, labeled by result. Optional.
	Saved metrics.Counter

	mu    sync.Mutex
	saved bool
	last  uint64
}

// Name returns the tasks name.
func (p *Persister) Name() string {
	return "warmboot_persister"
}

// Run saves the committed state if it changed.
func (p *Persister) Run(ctx context.Context) {
	if err := p.Persist(ctx); err != nil {
		log.FromCtx(ctx).Error("Failed to persist state", "err", err)
	}
}

// Persist saves the committed state if its generation differs from the last
// saved one. It is safe to call concurrently with Run.
func (p *Persister) Persist(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.Source.State()
	if s == nil || (p.saved && s.Generation() == p.last) {
		return nil
	}
	if err := p.Store.Save(ctx, s); err != nil {
		metrics.CounterInc(metrics.CounterWith(p.Saved, prom.LabelResult, prom.ErrDB))
		return err
	}
	metrics.CounterInc(metrics.CounterWith(p.Saved, prom.LabelResult, prom.Success))
	p.saved, p.last = true, s.Generation()
	log.FromCtx(ctx).Debug("Persisted state", "generation", s.Generation())
	return nil
}
