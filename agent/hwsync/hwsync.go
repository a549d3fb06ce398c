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

// Package hwsync pushes state deltas to the hardware dataplane.
//
// A delta is applied in dependency order. Removals are processed first, in
// reverse dependency order, so that no entry is removed while another entry
// still refers to it. Changes and additions are processed afterwards in
// forward order. Every entry is applied independently; a failing entry does
// not prevent the remaining entries from being programmed.
package hwsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/private/serrors"
)

// ErrTableFull indicates that a hardware table has no space left for an
// entry.
var ErrTableFull = errors.New("hardware table full")

// Category identifies a hardware table.
type Category string

const (
	CategoryPorts            Category = "ports"
	CategoryAggregatePorts   Category = "aggregate_ports"
	CategoryVlans            Category = "vlans"
	CategoryMacTable         Category = "mac_table"
	CategoryArpTable         Category = "arp_table"
	CategoryNdpTable         Category = "ndp_table"
	CategoryInterfaces       Category = "interfaces"
	CategoryBufferPools      Category = "buffer_pools"
	CategoryQosPolicies      Category = "qos_policies"
	CategoryDefaultQosPolicy Category = "default_qos_policy"
	CategoryMirrors          Category = "mirrors"
	CategoryLoadBalancers    Category = "load_balancers"
	CategoryRoutes           Category = "routes"
	CategoryLabelFib         Category = "label_fib"
	CategoryAclTables        Category = "acl_tables"
	CategoryAclEntries       Category = "acl_entries"
	CategorySflowCollectors  Category = "sflow_collectors"
	CategoryTransceivers     Category = "transceivers"
	CategoryControlPlane     Category = "control_plane"
	CategorySwitchSettings   Category = "switch_settings"
)

// Op is the kind of change applied to an entry.
type Op string

const (
	OpAdd    Op = "add"
	OpChange Op = "change"
	OpRemove Op = "remove"
)

// Dataplane programs individual entries. Keys are unique per category.
type Dataplane interface {
	ProcessAdded(cat Category, key string, added state.Node) error
	ProcessChanged(cat Category, key string, old, changed state.Node) error
	ProcessRemoved(cat Category, key string, removed state.Node) error
}

// EntryError is the failure to program a single entry.
type EntryError struct {
	Category Category
	Key      string
	Op       Op
	Err      error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("%s %s %s: %s", e.Op, e.Category, e.Key, e.Err)
}

func (e EntryError) Unwrap() error {
	return e.Err
}

// ApplyError collects the entries that failed while applying a delta.
type ApplyError struct {
	Entries []EntryError
}

func (e *ApplyError) Error() string {
	msgs := make([]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		msgs = append(msgs, entry.Error())
	}
	return fmt.Sprintf("%d entries failed: [ %s ]", len(e.Entries), strings.Join(msgs, "; "))
}

// Unwrap exposes the entry errors to errors.Is and errors.As.
func (e *ApplyError) Unwrap() []error {
	errs := make([]error, 0, len(e.Entries))
	for _, entry := range e.Entries {
		errs = append(errs, entry)
	}
	return errs
}

// Synchronizer applies deltas to a Dataplane. It implements the hardware
// stage of the update pipeline.
type Synchronizer struct {
	Dataplane Dataplane
	Metrics   *Metrics
}

// Apply applies d. Failed entries are returned as *ApplyError. Apply returns
// early only if ctx is done.
func (s *Synchronizer) Apply(ctx context.Context, d *state.StateDelta) error {
	logger := log.FromCtx(ctx)
	var failed []EntryError
	process := func(c change) {
		err := s.processOne(c)
		s.Metrics.observe(c.cat, c.op, err)
		if err != nil {
			failed = append(failed, EntryError{Category: c.cat, Key: c.key, Op: c.op, Err: err})
		}
	}
	for i := len(stages) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return serrors.Wrap("applying delta", err, "stage", stages[i].cat)
		}
		stages[i].walk(d, func(c change) {
			if c.op == OpRemove {
				process(c)
			}
		})
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return serrors.Wrap("applying delta", err, "stage", st.cat)
		}
		st.walk(d, func(c change) {
			if c.op != OpRemove {
				process(c)
			}
		})
	}
	if len(failed) == 0 {
		return nil
	}
	logger.Info("Hardware rejected entries", "failed", len(failed))
	return &ApplyError{Entries: failed}
}

func (s *Synchronizer) processOne(c change) error {
	switch c.op {
	case OpAdd:
		return s.Dataplane.ProcessAdded(c.cat, c.key, c.new)
	case OpChange:
		return s.Dataplane.ProcessChanged(c.cat, c.key, c.old, c.new)
	default:
		return s.Dataplane.ProcessRemoved(c.cat, c.key, c.old)
	}
}
