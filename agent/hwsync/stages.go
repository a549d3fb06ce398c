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

package hwsync

import (
	"fmt"

	"github.com/netfab/switchd/agent/state"
)

type change struct {
	cat      Category
	key      string
	op       Op
	old, new state.Node
}

type node interface {
	comparable
	state.Node
}

type stage struct {
	cat  Category
	walk func(d *state.StateDelta, emit func(change))
}

// stages lists the categories in dependency order.
var stages = []stage{
	{CategoryPorts, mapStage(CategoryPorts, (*state.StateDelta).PortsDelta)},
	{CategoryAggregatePorts,
		mapStage(CategoryAggregatePorts, (*state.StateDelta).AggregatePortsDelta)},
	{CategoryVlans, mapStage(CategoryVlans, (*state.StateDelta).VlansDelta)},
	{CategoryMacTable, vlanStage(CategoryMacTable, state.MacDelta)},
	{CategoryArpTable, vlanStage(CategoryArpTable, state.ArpDelta)},
	{CategoryNdpTable, vlanStage(CategoryNdpTable, state.NdpDelta)},
	{CategoryInterfaces, mapStage(CategoryInterfaces, (*state.StateDelta).InterfacesDelta)},
	{CategoryBufferPools, mapStage(CategoryBufferPools, (*state.StateDelta).BufferPoolsDelta)},
	{CategoryQosPolicies, mapStage(CategoryQosPolicies, (*state.StateDelta).QosPoliciesDelta)},
	{CategoryDefaultQosPolicy, singletonStage(CategoryDefaultQosPolicy,
		(*state.StateDelta).DefaultDataPlaneQosPolicyDelta)},
	{CategoryMirrors, mapStage(CategoryMirrors, (*state.StateDelta).MirrorsDelta)},
	{CategoryLoadBalancers,
		mapStage(CategoryLoadBalancers, (*state.StateDelta).LoadBalancersDelta)},
	{CategoryRoutes, walkRoutes},
	{CategoryLabelFib, mapStage(CategoryLabelFib, (*state.StateDelta).LabelFibDelta)},
	{CategoryAclTables, walkAclTables},
	{CategoryAclEntries, walkAclEntries},
	{CategorySflowCollectors,
		mapStage(CategorySflowCollectors, (*state.StateDelta).SflowCollectorsDelta)},
	{CategoryTransceivers, mapStage(CategoryTransceivers, (*state.StateDelta).TransceiversDelta)},
	{CategoryControlPlane,
		singletonStage(CategoryControlPlane, (*state.StateDelta).ControlPlaneDelta)},
	{CategorySwitchSettings,
		singletonStage(CategorySwitchSettings, (*state.StateDelta).SwitchSettingsDelta)},
}

// Categories returns all categories in the order they are applied.
func Categories() []Category {
	cats := make([]Category, 0, len(stages))
	for _, s := range stages {
		cats = append(cats, s.cat)
	}
	return cats
}

// toChange converts a delta entry. Typed nil pointers must not end up in the
// state.Node fields, hence the explicit cases.
func toChange[V node](cat Category, prefix string, e state.DeltaEntry[V],
	key func(V) string) change {

	var zero V
	c := change{cat: cat}
	switch {
	case e.New == zero:
		c.op, c.key, c.old = OpRemove, key(e.Old), e.Old
	case e.Old == zero:
		c.op, c.key, c.new = OpAdd, key(e.New), e.New
	default:
		c.op, c.key, c.old, c.new = OpChange, key(e.New), e.Old, e.New
	}
	if prefix != "" {
		c.key = prefix + "/" + c.key
	}
	return c
}

func idKey[K any, V state.Entry[K]](v V) string {
	return fmt.Sprint(v.ID())
}

func emitMap[K any, V state.Entry[K]](cat Category, prefix string, md state.MapDelta[K, V],
	emit func(change)) {

	for e := range md.All() {
		emit(toChange(cat, prefix, e, idKey[K, V]))
	}
}

func mapStage[K any, V state.Entry[K]](
	cat Category,
	get func(*state.StateDelta) state.MapDelta[K, V],
) func(*state.StateDelta, func(change)) {

	return func(d *state.StateDelta, emit func(change)) {
		emitMap(cat, "", get(d), emit)
	}
}

func vlanStage[K any, V state.Entry[K]](
	cat Category,
	get func(state.DeltaEntry[*state.Vlan]) state.MapDelta[K, V],
) func(*state.StateDelta, func(change)) {

	return func(d *state.StateDelta, emit func(change)) {
		for ve := range d.VlansDelta().All() {
			vlan := ve.New
			if vlan == nil {
				vlan = ve.Old
			}
			emitMap(cat, fmt.Sprint(vlan.ID()), get(ve), emit)
		}
	}
}

func singletonStage[T node](
	cat Category,
	get func(*state.StateDelta) state.DeltaValue[T],
) func(*state.StateDelta, func(change)) {

	return func(d *state.StateDelta, emit func(change)) {
		dv := get(d)
		if !dv.IsChanged() {
			return
		}
		emit(toChange(cat, "", state.DeltaEntry[T]{Old: dv.Old, New: dv.New},
			func(T) string { return string(cat) }))
	}
}

func walkRoutes(d *state.StateDelta, emit func(change)) {
	_ = d.ForEachRouteChange(func(rid state.RouterID, e state.DeltaEntry[*state.Route]) error {
		emit(toChange(CategoryRoutes, fmt.Sprint(rid), e,
			func(r *state.Route) string { return r.ID().String() }))
		return nil
	})
}

func walkAclTables(d *state.StateDelta, emit func(change)) {
	for ge := range d.AclTableGroupsDelta().All() {
		g := ge.New
		if g == nil {
			g = ge.Old
		}
		emitMap(CategoryAclTables, string(g.ID()), state.AclTablesDeltaOf(ge), emit)
	}
}

func walkAclEntries(d *state.StateDelta, emit func(change)) {
	_ = d.ForEachAclChange(func(stage state.AclStage, table string,
		e state.DeltaEntry[*state.AclEntry]) error {

		emit(toChange(CategoryAclEntries, string(stage)+"/"+table, e, idKey[string, *state.AclEntry]))
		return nil
	})
}
