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

	"go4.org/netipx"
)

type (
	PortMap           = NodeMap[PortID, *Port]
	AggregatePortMap  = NodeMap[AggregatePortID, *AggregatePort]
	VlanMap           = NodeMap[VlanID, *Vlan]
	MacTable          = NodeMap[MacAddr, *MacEntry]
	NeighborTable     = NodeMap[netip.Addr, *NeighborEntry]
	InterfaceMap      = NodeMap[InterfaceID, *Interface]
	FibMap            = NodeMap[RouterID, *FibContainer]
	RouteMap          = NodeMap[netip.Prefix, *Route]
	LabelFib          = NodeMap[Label, *LabelForwardingEntry]
	AclTableGroupMap  = NodeMap[AclStage, *AclTableGroup]
	AclTableMap       = NodeMap[string, *AclTable]
	AclEntryMap       = NodeMap[string, *AclEntry]
	QosPolicyMap      = NodeMap[string, *QosPolicy]
	MirrorMap         = NodeMap[string, *Mirror]
	SflowCollectorMap = NodeMap[string, *SflowCollector]
	LoadBalancerMap   = NodeMap[LoadBalancerID, *LoadBalancer]
	TransceiverMap    = NodeMap[TransceiverID, *TransceiverSpec]
	BufferPoolMap     = NodeMap[string, *BufferPoolConfig]
)

func newMacTable() *MacTable {
	return NewNodeMap[MacAddr, *MacEntry](compareMac)
}

func newNeighborTable() *NeighborTable {
	return NewNodeMap[netip.Addr, *NeighborEntry](netip.Addr.Compare)
}

func newRouteMap() *RouteMap {
	return NewNodeMap[netip.Prefix, *Route](netipx.ComparePrefix)
}

// SwitchState is the root of the state tree.
type SwitchState struct {
	nodeBase

	ports           *PortMap
	aggregatePorts  *AggregatePortMap
	vlans           *VlanMap
	interfaces      *InterfaceMap
	fibs            *FibMap
	labelFib        *LabelFib
	aclTableGroups  *AclTableGroupMap
	qosPolicies     *QosPolicyMap
	mirrors         *MirrorMap
	sflowCollectors *SflowCollectorMap
	loadBalancers   *LoadBalancerMap
	transceivers    *TransceiverMap
	bufferPools     *BufferPoolMap

	switchSettings   *SwitchSettings
	controlPlane     *ControlPlane
	defaultQosPolicy *QosPolicy
}

// NewSwitchState creates an empty, unpublished state.
func NewSwitchState() *SwitchState {
	return &SwitchState{
		ports:           newOrderedMap[PortID, *Port](),
		aggregatePorts:  newOrderedMap[AggregatePortID, *AggregatePort](),
		vlans:           newOrderedMap[VlanID, *Vlan](),
		interfaces:      newOrderedMap[InterfaceID, *Interface](),
		fibs:            newOrderedMap[RouterID, *FibContainer](),
		labelFib:        newOrderedMap[Label, *LabelForwardingEntry](),
		aclTableGroups:  newOrderedMap[AclStage, *AclTableGroup](),
		qosPolicies:     newOrderedMap[string, *QosPolicy](),
		mirrors:         newOrderedMap[string, *Mirror](),
		sflowCollectors: newOrderedMap[string, *SflowCollector](),
		loadBalancers:   newOrderedMap[LoadBalancerID, *LoadBalancer](),
		transceivers:    newOrderedMap[TransceiverID, *TransceiverSpec](),
		bufferPools:     newOrderedMap[string, *BufferPoolConfig](),
		switchSettings:  NewSwitchSettings(SwitchSettingsFields{}),
		controlPlane:    NewControlPlane(ControlPlaneFields{}),
	}
}

func (s *SwitchState) Ports() *PortMap                       { return s.ports }
func (s *SwitchState) AggregatePorts() *AggregatePortMap     { return s.aggregatePorts }
func (s *SwitchState) Vlans() *VlanMap                       { return s.vlans }
func (s *SwitchState) Interfaces() *InterfaceMap             { return s.interfaces }
func (s *SwitchState) Fibs() *FibMap                         { return s.fibs }
func (s *SwitchState) LabelFib() *LabelFib                   { return s.labelFib }
func (s *SwitchState) AclTableGroups() *AclTableGroupMap     { return s.aclTableGroups }
func (s *SwitchState) QosPolicies() *QosPolicyMap            { return s.qosPolicies }
func (s *SwitchState) Mirrors() *MirrorMap                   { return s.mirrors }
func (s *SwitchState) SflowCollectors() *SflowCollectorMap   { return s.sflowCollectors }
func (s *SwitchState) LoadBalancers() *LoadBalancerMap       { return s.loadBalancers }
func (s *SwitchState) Transceivers() *TransceiverMap         { return s.transceivers }
func (s *SwitchState) BufferPools() *BufferPoolMap           { return s.bufferPools }
func (s *SwitchState) SwitchSettings() *SwitchSettings       { return s.switchSettings }
func (s *SwitchState) ControlPlane() *ControlPlane           { return s.controlPlane }
func (s *SwitchState) DefaultDataPlaneQosPolicy() *QosPolicy { return s.defaultQosPolicy }

// Clone returns an unpublished shallow copy of the root. All categories are
// shared with s.
func (s *SwitchState) Clone() *SwitchState {
	c := *s
	c.nodeBase = s.next()
	return &c
}

// Modify returns a writable root. s must be *state. If s is published, *state
// is replaced with a clone.
func (s *SwitchState) Modify(state **SwitchState) *SwitchState {
	if s != *state {
		programmingError("modifying a root that is not the current state")
	}
	if !s.IsPublished() {
		return s
	}
	c := s.Clone()
	*state = c
	return c
}

// Publish publishes the whole tree. Published subtrees are not walked.
func (s *SwitchState) Publish() {
	if s.published {
		return
	}
	s.ports.Publish()
	s.aggregatePorts.Publish()
	s.vlans.Publish()
	s.interfaces.Publish()
	s.fibs.Publish()
	s.labelFib.Publish()
	s.aclTableGroups.Publish()
	s.qosPolicies.Publish()
	s.mirrors.Publish()
	s.sflowCollectors.Publish()
	s.loadBalancers.Publish()
	s.transceivers.Publish()
	s.bufferPools.Publish()
	s.switchSettings.Publish()
	s.controlPlane.Publish()
	if s.defaultQosPolicy != nil {
		s.defaultQosPolicy.Publish()
	}
	s.markPublished()
}

// SetDefaultDataPlaneQosPolicy sets or clears (nil) the default QoS policy.
func (s *SwitchState) SetDefaultDataPlaneQosPolicy(p *QosPolicy) {
	s.checkWritable("switch state")
	s.defaultQosPolicy = p
}

// modifyCategory returns the writable version of the category selected by
// field inside a writable root.
func modifyCategory[K any, V Entry[K]](
	state **SwitchState,
	field func(*SwitchState) **NodeMap[K, V],
) *NodeMap[K, V] {

	s := (*state).Modify(state)
	m := field(s)
	*m = (*m).writable()
	return *m
}

func ModifyPorts(state **SwitchState) *PortMap {
	return modifyCategory(state, func(s *SwitchState) **PortMap { return &s.ports })
}

func ModifyAggregatePorts(state **SwitchState) *AggregatePortMap {
	return modifyCategory(state,
		func(s *SwitchState) **AggregatePortMap { return &s.aggregatePorts })
}

func ModifyVlans(state **SwitchState) *VlanMap {
	return modifyCategory(state, func(s *SwitchState) **VlanMap { return &s.vlans })
}

func ModifyInterfaces(state **SwitchState) *InterfaceMap {
	return modifyCategory(state, func(s *SwitchState) **InterfaceMap { return &s.interfaces })
}

func ModifyFibs(state **SwitchState) *FibMap {
	return modifyCategory(state, func(s *SwitchState) **FibMap { return &s.fibs })
}

func ModifyLabelFib(state **SwitchState) *LabelFib {
	return modifyCategory(state, func(s *SwitchState) **LabelFib { return &s.labelFib })
}

func ModifyAclTableGroups(state **SwitchState) *AclTableGroupMap {
	return modifyCategory(state,
		func(s *SwitchState) **AclTableGroupMap { return &s.aclTableGroups })
}

func ModifyQosPolicies(state **SwitchState) *QosPolicyMap {
	return modifyCategory(state, func(s *SwitchState) **QosPolicyMap { return &s.qosPolicies })
}

func ModifyMirrors(state **SwitchState) *MirrorMap {
	return modifyCategory(state, func(s *SwitchState) **MirrorMap { return &s.mirrors })
}

func ModifySflowCollectors(state **SwitchState) *SflowCollectorMap {
	return modifyCategory(state,
		func(s *SwitchState) **SflowCollectorMap { return &s.sflowCollectors })
}

func ModifyLoadBalancers(state **SwitchState) *LoadBalancerMap {
	return modifyCategory(state,
		func(s *SwitchState) **LoadBalancerMap { return &s.loadBalancers })
}

func ModifyTransceivers(state **SwitchState) *TransceiverMap {
	return modifyCategory(state,
		func(s *SwitchState) **TransceiverMap { return &s.transceivers })
}

func ModifyBufferPools(state **SwitchState) *BufferPoolMap {
	return modifyCategory(state, func(s *SwitchState) **BufferPoolMap { return &s.bufferPools })
}
