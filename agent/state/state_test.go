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
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireProgrammingError asserts that fn panics with ErrProgramming.
func requireProgrammingError(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.ErrorIs(t, err, ErrProgramming)
	}()
	fn()
}

func mustPrefix(s string) netip.Prefix {
	return netip.MustParsePrefix(s).Masked()
}

func mustAddr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

// testState builds a published state with a few entries in most
// categories.
func testState(t *testing.T) *SwitchState {
	t.Helper()
	s := NewSwitchState()
	tcvr := TransceiverID(1)
	for i := PortID(1); i <= 4; i++ {
		f := PortFields{
			ID:          i,
			Name:        fmt.Sprintf("eth1/%d/1", i),
			AdminState:  PortEnabled,
			OperState:   PortOperDown,
			Speed:       Speed100G,
			Profile:     "PROFILE_100G_4_NRZ_RS528",
			IngressVlan: 10,
			Vlans:       []VlanMembership{{Vlan: 10}},
		}
		if i <= 2 {
			f.Transceiver = &tcvr
		}
		s.ports.Add(NewPort(f))
	}
	s.aggregatePorts.Add(NewAggregatePort(AggregatePortFields{
		ID:      1,
		Name:    "po1",
		Members: []AggregateMember{{Port: 3, Enabled: true}, {Port: 4, Enabled: true}},
	}))
	v := NewVlan(VlanFields{
		ID:          10,
		Name:        "vlan10",
		Ports:       []VlanPort{{Port: 1}, {Port: 2}},
		InterfaceID: 10,
	})
	v.macTable.Add(NewMacEntry(MacEntryFields{
		Mac:  MustParseMac("02:00:00:00:00:01"),
		Port: PhysicalPort(1),
		Type: MacEntryDynamic,
	}))
	v.arpTable.Add(NewNeighborEntry(NeighborEntryFields{
		IP:        mustAddr("10.0.0.2"),
		Mac:       MustParseMac("02:00:00:00:00:01"),
		Port:      PhysicalPort(1),
		Interface: 10,
		State:     NeighborReachable,
	}))
	v.ndpTable.Add(NewNeighborEntry(NeighborEntryFields{
		IP:        mustAddr("2001:db8::2"),
		Mac:       MustParseMac("02:00:00:00:00:01"),
		Port:      PhysicalPort(1),
		Interface: 10,
		State:     NeighborReachable,
	}))
	s.vlans.Add(v)
	s.vlans.Add(NewVlan(VlanFields{ID: 20, Name: "vlan20"}))
	s.interfaces.Add(NewInterface(InterfaceFields{
		ID:        10,
		Name:      "intf10",
		VlanID:    10,
		Mac:       MustParseMac("02:00:00:00:00:aa"),
		Addresses: []netip.Prefix{netip.MustParsePrefix("10.0.0.1/24")},
		MTU:       9000,
	}))
	fib := NewFibContainer(0)
	fib.routes.Add(NewRoute(RouteFields{
		Prefix:    mustPrefix("10.0.0.0/24"),
		Forward:   NewNextHopsEntry(DistanceDirectlyConnected, NextHop{Addr: mustAddr("10.0.0.1"), Interface: 10}),
		Resolved:  true,
		Connected: true,
	}))
	fib.routes.Add(NewRoute(RouteFields{
		Prefix:   mustPrefix("192.168.0.0/16"),
		Forward:  NewNextHopsEntry(DistanceStaticRoute, NextHop{Addr: mustAddr("10.0.0.2"), Interface: 10}),
		Resolved: true,
	}))
	s.fibs.Add(fib)
	s.fibs.Add(NewFibContainer(1))
	g := NewAclTableGroup(AclStageIngress, "ingress-group")
	tbl := NewAclTable(AclTableFields{Name: "table1", Priority: 1})
	proto := uint8(6)
	tbl.entries.Add(NewAclEntry(AclEntryFields{
		Name:       "deny-ssh",
		Priority:   10,
		ActionType: AclDeny,
		Proto:      &proto,
	}))
	g.tables.Add(tbl)
	s.aclTableGroups.Add(g)
	s.qosPolicies.Add(NewQosPolicy(QosPolicyFields{
		Name:                  "qp1",
		DscpMap:               QosAttributeMap{From: []QosMapEntry{{TrafficClass: 1, Attr: 10}}},
		TrafficClassToQueueID: map[TrafficClass]uint8{1: 1},
	}))
	egress := PortID(3)
	s.mirrors.Add(NewMirror(MirrorFields{Name: "span", EgressPort: &egress, ConfigHasEgressPort: true}))
	s.transceivers.Add(NewTransceiverSpec(TransceiverSpecFields{ID: 1, Technology: TechnologyOptical}))
	s.Publish()
	return s
}
