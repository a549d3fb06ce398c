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

package swconfig

import (
	"maps"
	"net/netip"
	"reflect"
	"slices"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/agent/update"
)

// Apply returns a state update that makes the switch state match cfg. Only
// nodes whose value differs are replaced, so the resulting delta is minimal.
// Runtime state is kept: port oper state, learned MAC and neighbor entries,
// routes of other clients and resolved redirect and mirror targets.
//
// The updater passes the published committed state. If nothing changed, the
// update returns a nil state.
func Apply(cfg *Config) update.StateUpdateFn {
	return func(s *state.SwitchState) (*state.SwitchState, error) {
		d, err := cfg.build()
		if err != nil {
			return nil, err
		}
		orig := s
		applyPorts(&s, d.ports)
		syncMap(s.AggregatePorts(), d.aggregatePorts,
			sameFields[state.AggregatePortFields, *state.AggregatePort],
			func() *state.AggregatePortMap { return state.ModifyAggregatePorts(&s) })
		applyVlans(&s, d.vlans)
		syncMap(s.Interfaces(), d.interfaces,
			sameFields[state.InterfaceFields, *state.Interface],
			func() *state.InterfaceMap { return state.ModifyInterfaces(&s) })
		applyRoutes(&s, d.routes)
		applyAcls(&s, d.acls)
		syncMap(s.QosPolicies(), d.qosPolicies,
			sameFields[state.QosPolicyFields, *state.QosPolicy],
			func() *state.QosPolicyMap { return state.ModifyQosPolicies(&s) })
		applyDefaultQos(&s, d.defaultQos)
		applyMirrors(&s, d.mirrors)
		syncMap(s.SflowCollectors(), d.sflowCollectors,
			sameFields[state.SflowCollectorFields, *state.SflowCollector],
			func() *state.SflowCollectorMap { return state.ModifySflowCollectors(&s) })
		syncMap(s.LoadBalancers(), d.loadBalancers,
			sameFields[state.LoadBalancerFields, *state.LoadBalancer],
			func() *state.LoadBalancerMap { return state.ModifyLoadBalancers(&s) })
		syncMap(s.BufferPools(), d.bufferPools,
			sameFields[state.BufferPoolFields, *state.BufferPoolConfig],
			func() *state.BufferPoolMap { return state.ModifyBufferPools(&s) })
		if !reflect.DeepEqual(s.SwitchSettings().Fields(), d.switchSettings) {
			s.SwitchSettings().Modify(&s).SetFields(d.switchSettings)
		}
		if !reflect.DeepEqual(s.ControlPlane().Fields(), d.controlPlane) {
			s.ControlPlane().Modify(&s).SetFields(d.controlPlane)
		}
		if s == orig && orig.IsPublished() {
			return nil, nil
		}
		return s, nil
	}
}

func sameFields[F any, V interface{ Fields() F }](a, b V) bool {
	return reflect.DeepEqual(a.Fields(), b.Fields())
}

// syncMap makes cur hold exactly the nodes in want. Nodes that are equal to
// the current ones are not replaced. modify is only called if cur changes.
func syncMap[K comparable, V state.Entry[K]](
	cur *state.NodeMap[K, V],
	want []V,
	equal func(a, b V) bool,
	modify func() *state.NodeMap[K, V],
) {

	var m *state.NodeMap[K, V]
	writable := func() *state.NodeMap[K, V] {
		if m == nil {
			m = modify()
		}
		return m
	}
	wanted := make(map[K]bool, len(want))
	for _, v := range want {
		wanted[v.ID()] = true
		if old, ok := cur.GetIf(v.ID()); ok && equal(old, v) {
			continue
		}
		writable().AddOrUpdate(v)
	}
	for _, k := range cur.Keys() {
		if !wanted[k] {
			writable().Remove(k)
		}
	}
}

func applyPorts(s **state.SwitchState, want []state.PortFields) {
	ports := make([]*state.Port, 0, len(want))
	for _, f := range want {
		if cur, ok := (*s).Ports().GetIf(f.ID); ok {
			f.OperState = cur.Fields().OperState
		}
		ports = append(ports, state.NewPort(f))
	}
	syncMap((*s).Ports(), ports, sameFields[state.PortFields, *state.Port],
		func() *state.PortMap { return state.ModifyPorts(s) })
}

// applyVlans updates the VLANs in place to keep their MAC and neighbor
// tables.
func applyVlans(s **state.SwitchState, want []state.VlanFields) {
	wanted := make(map[state.VlanID]bool, len(want))
	for _, f := range want {
		wanted[f.ID] = true
		cur, ok := (*s).Vlans().GetIf(f.ID)
		switch {
		case !ok:
			state.ModifyVlans(s).Add(state.NewVlan(f))
		case !reflect.DeepEqual(cur.Fields(), f):
			cur.Modify(s).SetFields(f)
		}
	}
	for _, id := range (*s).Vlans().Keys() {
		if !wanted[id] {
			state.ModifyVlans(s).Remove(id)
		}
	}
}

// configClients are the route clients owned by the configuration.
var configClients = []state.ClientID{state.ClientStaticRoute, state.ClientInterfaceRoute}

func applyRoutes(s **state.SwitchState, want map[state.RouterID][]state.RouteFields) {
	vrfs := make(map[state.RouterID]bool)
	for _, id := range (*s).Fibs().Keys() {
		vrfs[id] = true
	}
	for id := range want {
		vrfs[id] = true
	}
	for _, vrf := range slices.Sorted(maps.Keys(vrfs)) {
		applyVrfRoutes(s, vrf, want[vrf])
	}
}

func applyVrfRoutes(s **state.SwitchState, vrf state.RouterID, want []state.RouteFields) {
	desired := make(map[netip.Prefix]*state.RouteFields)
	var connected []state.RouteFields
	for _, r := range want {
		d, ok := desired[r.Prefix]
		if !ok {
			d = &state.RouteFields{Prefix: r.Prefix}
			desired[r.Prefix] = d
		}
		for _, c := range r.Clients {
			d.SetClientEntry(c.Client, c.Entry)
		}
		d.Connected = d.Connected || r.Connected
		if r.Connected {
			connected = append(connected, r)
		}
	}
	if _, ok := (*s).Fibs().GetIf(vrf); !ok {
		if len(desired) == 0 {
			return
		}
		state.ModifyFibs(s).Add(state.NewFibContainer(vrf))
	}
	cur := (*s).Fibs().Get(vrf).Routes()
	prefixes := cur.Keys()
	for p := range desired {
		if _, ok := cur.GetIf(p); !ok {
			prefixes = append(prefixes, p)
		}
	}

	var routes *state.RouteMap
	writable := func() *state.RouteMap {
		if routes == nil {
			routes = (*s).Fibs().Get(vrf).ModifyRoutes(s)
		}
		return routes
	}
	for _, p := range prefixes {
		old, exists := cur.GetIf(p)
		f := state.RouteFields{Prefix: p}
		if exists {
			f = old.Fields()
		}
		for _, c := range configClients {
			f.RemoveClientEntry(c)
		}
		f.Connected = false
		if d, ok := desired[p]; ok {
			for _, c := range d.Clients {
				f.SetClientEntry(c.Client, c.Entry)
			}
			f.Connected = d.Connected
		}
		if len(f.Clients) == 0 {
			if exists {
				writable().Remove(p)
			}
			continue
		}
		resolveRoute(&f, connected)
		if exists && reflect.DeepEqual(old.Fields(), f) {
			continue
		}
		writable().AddOrUpdate(state.NewRoute(f))
	}
}

// resolveRoute sets the forwarding decision of f from its best client
// entry. Next hops are resolved over the connected subnets.
func resolveRoute(f *state.RouteFields, connected []state.RouteFields) {
	best, _ := f.BestEntry()
	fwd := best.Entry
	fwd.NextHops = slices.Clone(fwd.NextHops)
	resolved := true
	for i, nh := range fwd.NextHops {
		if nh.IsResolved() {
			continue
		}
		intf, ok := connectedInterface(connected, nh.Addr)
		if !ok {
			resolved = false
			continue
		}
		fwd.NextHops[i].Interface = intf
	}
	if len(fwd.NextHops) > 0 {
		fwd.NextHops = state.NormalizeNextHops(fwd.NextHops)
	}
	f.Forward = fwd
	f.Resolved = resolved
}

// connectedInterface returns the interface of the most specific connected
// subnet that contains addr.
func connectedInterface(connected []state.RouteFields, addr netip.Addr) (state.InterfaceID, bool) {
	var (
		intf state.InterfaceID
		bits = -1
	)
	for _, r := range connected {
		if !r.Prefix.Contains(addr) || r.Prefix.Bits() <= bits {
			continue
		}
		for _, c := range r.Clients {
			if len(c.Entry.NextHops) > 0 {
				intf, bits = c.Entry.NextHops[0].Interface, r.Prefix.Bits()
			}
		}
	}
	return intf, bits >= 0
}

func applyAcls(s **state.SwitchState, want []aclTable) {
	byStage := make(map[state.AclStage][]aclTable)
	for _, t := range want {
		byStage[t.stage] = append(byStage[t.stage], t)
	}
	for _, stage := range []state.AclStage{state.AclStageIngress, state.AclStageEgress} {
		tables := byStage[stage]
		_, ok := (*s).AclTableGroups().GetIf(stage)
		if len(tables) == 0 {
			if ok {
				state.ModifyAclTableGroups(s).Remove(stage)
			}
			continue
		}
		if !ok {
			state.ModifyAclTableGroups(s).Add(
				state.NewAclTableGroup(stage, "acl-"+string(stage)))
		}
		wanted := make(map[string]bool, len(tables))
		for _, t := range tables {
			wanted[t.fields.Name] = true
			applyAclTable(s, stage, t)
		}
		for _, name := range (*s).AclTableGroups().Get(stage).Tables().Keys() {
			if !wanted[name] {
				(*s).AclTableGroups().Get(stage).ModifyTables(s).Remove(name)
			}
		}
	}
}

func applyAclTable(s **state.SwitchState, stage state.AclStage, want aclTable) {
	name := want.fields.Name
	table := func() *state.AclTable {
		t, _ := (*s).AclTableGroups().Get(stage).Tables().GetIf(name)
		return t
	}
	cur := table()
	if cur == nil {
		t := state.NewAclTable(want.fields)
		for _, e := range want.entries {
			t.Entries().Add(e)
		}
		(*s).AclTableGroups().Get(stage).ModifyTables(s).Add(t)
		return
	}
	if !reflect.DeepEqual(cur.Fields(), want.fields) {
		cur.Modify(s, stage).SetFields(want.fields)
	}
	entries := make([]*state.AclEntry, 0, len(want.entries))
	for _, e := range want.entries {
		entries = append(entries, keepResolvedRedirect(table().Entries(), e))
	}
	syncMap(table().Entries(), entries, sameFields[state.AclEntryFields, *state.AclEntry],
		func() *state.AclEntryMap { return table().ModifyEntries(s, stage) })
}

// keepResolvedRedirect copies the resolved next hops of the current entry
// into e if both redirect to the same targets.
func keepResolvedRedirect(cur *state.AclEntryMap, e *state.AclEntry) *state.AclEntry {
	old, ok := cur.GetIf(e.ID())
	if !ok {
		return e
	}
	f, of := e.Fields(), old.Fields()
	want, ok := f.Redirect()
	if !ok {
		return e
	}
	have, ok := of.Redirect()
	if !ok || !reflect.DeepEqual(want.NextHops, have.NextHops) {
		return e
	}
	want.Resolved = have.Resolved
	f.Disabled = of.Disabled
	return state.NewAclEntry(f)
}

func applyDefaultQos(s **state.SwitchState, want *state.QosPolicy) {
	cur := (*s).DefaultDataPlaneQosPolicy()
	switch {
	case cur == nil && want == nil:
		return
	case cur != nil && want != nil && reflect.DeepEqual(cur.Fields(), want.Fields()):
		return
	}
	(*s).Modify(s).SetDefaultDataPlaneQosPolicy(want)
}

// applyMirrors keeps the current mirror if its configured part is
// unchanged, which preserves the resolved egress port and tunnel.
func applyMirrors(s **state.SwitchState, want []state.MirrorFields) {
	mirrors := make([]*state.Mirror, 0, len(want))
	for _, f := range want {
		cur, ok := (*s).Mirrors().GetIf(f.Name)
		if ok && reflect.DeepEqual(mirrorConfig(cur.Fields()), mirrorConfig(f)) {
			mirrors = append(mirrors, cur)
			continue
		}
		mirrors = append(mirrors, state.NewMirror(f))
	}
	syncMap((*s).Mirrors(), mirrors, func(a, b *state.Mirror) bool { return a == b },
		func() *state.MirrorMap { return state.ModifyMirrors(s) })
}

func mirrorConfig(f state.MirrorFields) state.MirrorFields {
	f.ResolvedTunnel = nil
	if !f.ConfigHasEgressPort {
		f.EgressPort = nil
	}
	return f
}
