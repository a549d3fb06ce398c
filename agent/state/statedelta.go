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

package state

import (
	"net/netip"
)

type (
	PortsDelta           = MapDelta[PortID, *Port]
	AggregatePortsDelta  = MapDelta[AggregatePortID, *AggregatePort]
	VlansDelta           = MapDelta[VlanID, *Vlan]
	MacTableDelta        = MapDelta[MacAddr, *MacEntry]
	NeighborTableDelta   = MapDelta[netip.Addr, *NeighborEntry]
	InterfacesDelta      = MapDelta[InterfaceID, *Interface]
	FibsDelta            = MapDelta[RouterID, *FibContainer]
	RoutesDelta          = MapDelta[netip.Prefix, *Route]
	LabelFibDelta        = MapDelta[Label, *LabelForwardingEntry]
	AclTableGroupsDelta  = MapDelta[AclStage, *AclTableGroup]
	AclTablesDelta       = MapDelta[string, *AclTable]
	AclEntriesDelta      = MapDelta[string, *AclEntry]
	QosPoliciesDelta     = MapDelta[string, *QosPolicy]
	MirrorsDelta         = MapDelta[string, *Mirror]
	SflowCollectorsDelta = MapDelta[string, *SflowCollector]
	LoadBalancersDelta   = MapDelta[LoadBalancerID, *LoadBalancer]
	TransceiversDelta    = MapDelta[TransceiverID, *TransceiverSpec]
	BufferPoolsDelta     = MapDelta[string, *BufferPoolConfig]
)

// StateDelta is the difference between two versions of the switch state. It
// only holds the two roots. All per category deltas are computed on demand.
type StateDelta struct {
	old *SwitchState
	new *SwitchState
}

// NewStateDelta creates the delta from old to new. A nil root is treated as
// the empty state.
func NewStateDelta(old, new *SwitchState) *StateDelta {
	return &StateDelta{old: old, new: new}
}

func (d *StateDelta) OldState() *SwitchState { return d.old }
func (d *StateDelta) NewState() *SwitchState { return d.new }

// Reverse returns the delta from new to old.
func (d *StateDelta) Reverse() *StateDelta {
	return &StateDelta{old: d.new, new: d.old}
}

// category returns the child of p selected by get, or nil if p is nil.
func category[P, T any](p *P, get func(*P) *T) *T {
	if p == nil {
		return nil
	}
	return get(p)
}

func categoryDelta[K any, V Entry[K]](
	d *StateDelta,
	get func(*SwitchState) *NodeMap[K, V],
) MapDelta[K, V] {

	return NewMapDelta(category(d.old, get), category(d.new, get))
}

func (d *StateDelta) PortsDelta() PortsDelta {
	return categoryDelta(d, (*SwitchState).Ports)
}

func (d *StateDelta) AggregatePortsDelta() AggregatePortsDelta {
	return categoryDelta(d, (*SwitchState).AggregatePorts)
}

func (d *StateDelta) VlansDelta() VlansDelta {
	return categoryDelta(d, (*SwitchState).Vlans)
}

func (d *StateDelta) InterfacesDelta() InterfacesDelta {
	return categoryDelta(d, (*SwitchState).Interfaces)
}

func (d *StateDelta) FibsDelta() FibsDelta {
	return categoryDelta(d, (*SwitchState).Fibs)
}

func (d *StateDelta) LabelFibDelta() LabelFibDelta {
	return categoryDelta(d, (*SwitchState).LabelFib)
}

func (d *StateDelta) AclTableGroupsDelta() AclTableGroupsDelta {
	return categoryDelta(d, (*SwitchState).AclTableGroups)
}

func (d *StateDelta) QosPoliciesDelta() QosPoliciesDelta {
	return categoryDelta(d, (*SwitchState).QosPolicies)
}

func (d *StateDelta) MirrorsDelta() MirrorsDelta {
	return categoryDelta(d, (*SwitchState).Mirrors)
}

func (d *StateDelta) SflowCollectorsDelta() SflowCollectorsDelta {
	return categoryDelta(d, (*SwitchState).SflowCollectors)
}

func (d *StateDelta) LoadBalancersDelta() LoadBalancersDelta {
	return categoryDelta(d, (*SwitchState).LoadBalancers)
}

func (d *StateDelta) TransceiversDelta() TransceiversDelta {
	return categoryDelta(d, (*SwitchState).Transceivers)
}

func (d *StateDelta) BufferPoolsDelta() BufferPoolsDelta {
	return categoryDelta(d, (*SwitchState).BufferPools)
}

func singletonDelta[T comparable](d *StateDelta, get func(*SwitchState) T) DeltaValue[T] {
	var v DeltaValue[T]
	if d.old != nil {
		v.Old = get(d.old)
	}
	if d.new != nil {
		v.New = get(d.new)
	}
	return v
}

func (d *StateDelta) SwitchSettingsDelta() DeltaValue[*SwitchSettings] {
	return singletonDelta(d, (*SwitchState).SwitchSettings)
}

func (d *StateDelta) ControlPlaneDelta() DeltaValue[*ControlPlane] {
	return singletonDelta(d, (*SwitchState).ControlPlane)
}

func (d *StateDelta) DefaultDataPlaneQosPolicyDelta() DeltaValue[*QosPolicy] {
	return singletonDelta(d, (*SwitchState).DefaultDataPlaneQosPolicy)
}

// MacDelta is the MAC table delta of one VLAN delta entry.
func MacDelta(e DeltaEntry[*Vlan]) MacTableDelta {
	return NewMapDelta(category(e.Old, (*Vlan).MacTable), category(e.New, (*Vlan).MacTable))
}

// ArpDelta is the ARP table delta of one VLAN delta entry.
func ArpDelta(e DeltaEntry[*Vlan]) NeighborTableDelta {
	return NewMapDelta(category(e.Old, (*Vlan).ArpTable), category(e.New, (*Vlan).ArpTable))
}

// NdpDelta is the NDP table delta of one VLAN delta entry.
func NdpDelta(e DeltaEntry[*Vlan]) NeighborTableDelta {
	return NewMapDelta(category(e.Old, (*Vlan).NdpTable), category(e.New, (*Vlan).NdpTable))
}

// RoutesDeltaOf is the route delta of one FIB delta entry.
func RoutesDeltaOf(e DeltaEntry[*FibContainer]) RoutesDelta {
	return NewMapDelta(
		category(e.Old, (*FibContainer).Routes),
		category(e.New, (*FibContainer).Routes),
	)
}

// RoutesDelta is the route delta of VRF rid.
func (d *StateDelta) RoutesDelta(rid RouterID) RoutesDelta {
	return RoutesDeltaOf(DeltaEntry[*FibContainer]{
		Old: fibOf(d.old, rid),
		New: fibOf(d.new, rid),
	})
}

func fibOf(s *SwitchState, rid RouterID) *FibContainer {
	if s == nil {
		return nil
	}
	f, _ := s.Fibs().GetIf(rid)
	return f
}

// ForEachRouteChange calls fn for every route difference in all VRFs. It
// stops at the first error and returns it.
func (d *StateDelta) ForEachRouteChange(fn func(RouterID, DeltaEntry[*Route]) error) error {
	for fe := range d.FibsDelta().All() {
		rid := fe.New.ID()
		if fe.IsRemoved() {
			rid = fe.Old.ID()
		}
		for re := range RoutesDeltaOf(fe).All() {
			if err := fn(rid, re); err != nil {
				return err
			}
		}
	}
	return nil
}

// AclTablesDeltaOf is the table delta of one ACL table group delta entry.
func AclTablesDeltaOf(e DeltaEntry[*AclTableGroup]) AclTablesDelta {
	return NewMapDelta(
		category(e.Old, (*AclTableGroup).Tables),
		category(e.New, (*AclTableGroup).Tables),
	)
}

// AclEntriesDeltaOf is the entry delta of one ACL table delta entry.
func AclEntriesDeltaOf(e DeltaEntry[*AclTable]) AclEntriesDelta {
	return NewMapDelta(
		category(e.Old, (*AclTable).Entries),
		category(e.New, (*AclTable).Entries),
	)
}

// AclTablesDelta is the table delta of the group at stage.
func (d *StateDelta) AclTablesDelta(stage AclStage) AclTablesDelta {
	return AclTablesDeltaOf(DeltaEntry[*AclTableGroup]{
		Old: aclGroupOf(d.old, stage),
		New: aclGroupOf(d.new, stage),
	})
}

// AclEntriesDelta is the entry delta of table in the group at stage.
func (d *StateDelta) AclEntriesDelta(stage AclStage, table string) AclEntriesDelta {
	return AclEntriesDeltaOf(DeltaEntry[*AclTable]{
		Old: aclTableOf(d.old, stage, table),
		New: aclTableOf(d.new, stage, table),
	})
}

func aclGroupOf(s *SwitchState, stage AclStage) *AclTableGroup {
	if s == nil {
		return nil
	}
	g, _ := s.AclTableGroups().GetIf(stage)
	return g
}

func aclTableOf(s *SwitchState, stage AclStage, table string) *AclTable {
	g := aclGroupOf(s, stage)
	if g == nil {
		return nil
	}
	t, _ := g.Tables().GetIf(table)
	return t
}

// ForEachAclChange calls fn for every ACL entry difference in all stages and
// tables. It stops at the first error and returns it.
func (d *StateDelta) ForEachAclChange(
	fn func(stage AclStage, table string, e DeltaEntry[*AclEntry]) error,
) error {

	for ge := range d.AclTableGroupsDelta().All() {
		stage := groupStage(ge)
		for te := range AclTablesDeltaOf(ge).All() {
			table := tableName(te)
			for ee := range AclEntriesDeltaOf(te).All() {
				if err := fn(stage, table, ee); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// AclsChanged returns whether any ACL entry differs.
func (d *StateDelta) AclsChanged() bool {
	changed := false
	_ = d.ForEachAclChange(func(AclStage, string, DeltaEntry[*AclEntry]) error {
		changed = true
		return errStop
	})
	return changed
}

func groupStage(e DeltaEntry[*AclTableGroup]) AclStage {
	if e.IsRemoved() {
		return e.Old.ID()
	}
	return e.New.ID()
}

func tableName(e DeltaEntry[*AclTable]) string {
	if e.IsRemoved() {
		return e.Old.ID()
	}
	return e.New.ID()
}

// IsEmpty returns whether the two states are identical. It compares every
// category and singleton.
func (d *StateDelta) IsEmpty() bool {
	if d.old == d.new {
		return true
	}
	return d.PortsDelta().IsEmpty() &&
		d.AggregatePortsDelta().IsEmpty() &&
		d.VlansDelta().IsEmpty() &&
		d.InterfacesDelta().IsEmpty() &&
		d.FibsDelta().IsEmpty() &&
		d.LabelFibDelta().IsEmpty() &&
		d.AclTableGroupsDelta().IsEmpty() &&
		d.QosPoliciesDelta().IsEmpty() &&
		d.MirrorsDelta().IsEmpty() &&
		d.SflowCollectorsDelta().IsEmpty() &&
		d.LoadBalancersDelta().IsEmpty() &&
		d.TransceiversDelta().IsEmpty() &&
		d.BufferPoolsDelta().IsEmpty() &&
		!d.SwitchSettingsDelta().IsChanged() &&
		!d.ControlPlaneDelta().IsChanged() &&
		!d.DefaultDataPlaneQosPolicyDelta().IsChanged()
}

// CategoryChanges counts the differences of one category.
type CategoryChanges struct {
	Category string
	Added    int
	Changed  int
	Removed  int
}

// Summary counts the top level differences per category. Categories without
// differences are omitted. Nested tables are counted in their parent
// category.
func (d *StateDelta) Summary() []CategoryChanges {
	var res []CategoryChanges
	add := func(name string, seq func(yield func(kind int) bool)) {
		c := CategoryChanges{Category: name}
		for kind := range seq {
			switch kind {
			case kindAdded:
				c.Added++
			case kindRemoved:
				c.Removed++
			default:
				c.Changed++
			}
		}
		if c.Added+c.Changed+c.Removed > 0 {
			res = append(res, c)
		}
	}
	add("ports", kinds(d.PortsDelta()))
	add("aggregatePorts", kinds(d.AggregatePortsDelta()))
	add("vlans", kinds(d.VlansDelta()))
	add("interfaces", kinds(d.InterfacesDelta()))
	add("routes", func(yield func(int) bool) {
		_ = d.ForEachRouteChange(func(_ RouterID, e DeltaEntry[*Route]) error {
			if !yield(entryKind(e)) {
				return errStop
			}
			return nil
		})
	})
	add("labelFib", kinds(d.LabelFibDelta()))
	add("acls", func(yield func(int) bool) {
		_ = d.ForEachAclChange(func(_ AclStage, _ string, e DeltaEntry[*AclEntry]) error {
			if !yield(entryKind(e)) {
				return errStop
			}
			return nil
		})
	})
	add("qosPolicies", kinds(d.QosPoliciesDelta()))
	add("mirrors", kinds(d.MirrorsDelta()))
	add("sflowCollectors", kinds(d.SflowCollectorsDelta()))
	add("loadBalancers", kinds(d.LoadBalancersDelta()))
	add("transceivers", kinds(d.TransceiversDelta()))
	add("bufferPools", kinds(d.BufferPoolsDelta()))
	return res
}

const (
	kindChanged = iota
	kindAdded
	kindRemoved
)

func entryKind[V comparable](e DeltaEntry[V]) int {
	switch {
	case e.IsAdded():
		return kindAdded
	case e.IsRemoved():
		return kindRemoved
	default:
		return kindChanged
	}
}

func kinds[K any, V Entry[K]](d MapDelta[K, V]) func(yield func(int) bool) {
	return func(yield func(int) bool) {
		for e := range d.All() {
			if !yield(entryKind(e)) {
				return
			}
		}
	}
}

var errStop = stopIteration{}

type stopIteration struct{}

func (stopIteration) Error() string { return "stop iteration" }
