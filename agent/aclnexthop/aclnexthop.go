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

// Package aclnexthop resolves the next hops of ACL entries that redirect
// traffic to IP next hops.
package aclnexthop

import (
	"context"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/agent/update"
	"github.com/netfab/switchd/pkg/log"
)

// UpdateName is the name of the updates submitted by the Handler.
const UpdateName = "Updating ACLs"

// Submitter queues state updates.
type Submitter interface {
	UpdateAsync(name string, fn update.StateUpdateFn)
}

// Handler observes the state and re-resolves redirect next hops whenever the
// ACLs or the forwarding tables change. Redirect targets are looked up in
// the default VRF.
type Handler struct {
	Submitter Submitter
	Logger    log.Logger
}

func (h *Handler) StateUpdated(_ context.Context, d *state.StateDelta) {
	if !HasAclChanges(d) {
		return
	}
	h.Submitter.UpdateAsync(UpdateName, h.Resolve)
}

// HasAclChanges returns whether d may affect resolved redirect next hops.
func HasAclChanges(d *state.StateDelta) bool {
	if state.AclCount(d.NewState()) > 0 && d.AclsChanged() {
		return true
	}
	return !d.FibsDelta().IsEmpty() || !d.LabelFibDelta().IsEmpty()
}

// Resolve updates the resolved next hops of all redirect ACL entries in s.
// Entries without any resolved next hop are disabled. It returns nil if no
// entry changed.
func (h *Handler) Resolve(s *state.SwitchState) (*state.SwitchState, error) {
	fib, _ := s.Fibs().GetIf(0)
	changed := false
	for ref := range state.AllAclEntries(s) {
		f := ref.Entry.Fields()
		redirect, ok := f.Redirect()
		if !ok {
			continue
		}
		resolved := resolveNextHops(fib, redirect.NextHops)
		disabled := len(resolved) == 0
		if state.NextHopsEqual(resolved, redirect.Resolved) && disabled == f.Disabled {
			continue
		}
		if disabled && h.Logger != nil {
			h.Logger.Debug("Disabling ACL entry without resolved next hops",
				"stage", ref.Stage, "table", ref.Table, "entry", ref.Entry.ID())
		}
		redirect.Resolved = resolved
		f.Disabled = disabled
		ref.Entry.Modify(&s, ref.Stage, ref.Table).SetFields(f)
		changed = true
	}
	if !changed {
		return nil, nil
	}
	return s, nil
}

func resolveNextHops(fib *state.FibContainer, targets []state.RedirectNextHop) []state.NextHop {
	if fib == nil {
		return nil
	}
	var hops []state.NextHop
	for _, t := range targets {
		r, ok := fib.LongestMatch(t.IP)
		if !ok {
			continue
		}
		rf := r.Fields()
		if !rf.Resolved {
			continue
		}
		for _, nh := range rf.Forward.NextHops {
			if t.Interface != nil && nh.Interface != *t.Interface {
				continue
			}
			hops = append(hops, nh)
		}
	}
	if len(hops) == 0 {
		return nil
	}
	return state.NormalizeNextHops(hops)
}
