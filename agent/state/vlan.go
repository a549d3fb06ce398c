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
	"slices"
)

// PortDescriptor references either a physical or an aggregate port.
type PortDescriptor struct {
	Aggregate bool   `json:"aggregate,omitempty"`
	ID        uint32 `json:"id"`
}

func PhysicalPort(id PortID) PortDescriptor {
	return PortDescriptor{ID: uint32(id)}
}

func AggregatePortDesc(id AggregatePortID) PortDescriptor {
	return PortDescriptor{Aggregate: true, ID: uint32(id)}
}

func (d PortDescriptor) String() string {
	if d.Aggregate {
		return fmt.Sprintf("agg%d", d.ID)
	}
	return fmt.Sprintf("port%d", d.ID)
}

// VlanFields is the value of a Vlan. The L2 tables are child nodes of the
// Vlan and are not part of the value.
type VlanFields struct {
	ID   VlanID `json:"id"`
	Name string `json:"name"`
	// Ports maps member ports to whether they are tagged.
	Ports       []VlanPort  `json:"ports,omitempty"`
	InterfaceID InterfaceID `json:"interfaceId,omitempty"`
	DhcpV4Relay netip.Addr  `json:"dhcpV4Relay,omitzero"`
	DhcpV6Relay netip.Addr  `json:"dhcpV6Relay,omitzero"`
}

type VlanPort struct {
	Port   PortID `json:"port"`
	Tagged bool   `json:"tagged"`
}

func (f VlanFields) clone() VlanFields {
	f.Ports = slices.Clone(f.Ports)
	return f
}

func (f VlanFields) key() any { return f.ID }

// Vlan is a VLAN with its MAC, ARP and NDP tables.
type Vlan struct {
	nodeBase
	fields   VlanFields
	macTable *MacTable
	arpTable *NeighborTable
	ndpTable *NeighborTable
}

func NewVlan(f VlanFields) *Vlan {
	return &Vlan{
		fields:   f.clone(),
		macTable: newMacTable(),
		arpTable: newNeighborTable(),
		ndpTable: newNeighborTable(),
	}
}

func (v *Vlan) ID() VlanID               { return v.fields.ID }
func (v *Vlan) Name() string             { return v.fields.Name }
func (v *Vlan) MacTable() *MacTable      { return v.macTable }
func (v *Vlan) ArpTable() *NeighborTable { return v.arpTable }
func (v *Vlan) NdpTable() *NeighborTable { return v.ndpTable }

// NeighborTable returns the ARP table for IPv4 and the NDP table for IPv6.
func (v *Vlan) NeighborTable(ip netip.Addr) *NeighborTable {
	if ip.Unmap().Is4() {
		return v.arpTable
	}
	return v.ndpTable
}

func (v *Vlan) Fields() VlanFields {
	return v.fields.clone()
}

func (v *Vlan) SetFields(f VlanFields) {
	v.checkWritable(v.fields.ID)
	if f.ID != v.fields.ID {
		programmingError("changing resource key", "old", v.fields.ID, "new", f.ID)
	}
	v.fields = f.clone()
}

func (v *Vlan) Publish() {
	if v.published {
		return
	}
	v.macTable.Publish()
	v.arpTable.Publish()
	v.ndpTable.Publish()
	v.markPublished()
}

func (v *Vlan) clone() *Vlan {
	c := *v
	c.nodeBase = v.next()
	c.fields = v.fields.clone()
	return &c
}

func (v *Vlan) Modify(state **SwitchState) *Vlan {
	if !v.IsPublished() {
		return v
	}
	vlans := ModifyVlans(state)
	c := v.clone()
	replaceEntry(vlans, v, c)
	return c
}

// ModifyMacTable returns the writable MAC table of the VLAN within *state.
func (v *Vlan) ModifyMacTable(state **SwitchState) *MacTable {
	w := v.Modify(state)
	w.macTable = w.macTable.writable()
	return w.macTable
}

// ModifyNeighborTable returns the writable ARP or NDP table, depending on the
// family of ip, within *state.
func (v *Vlan) ModifyNeighborTable(state **SwitchState, ip netip.Addr) *NeighborTable {
	w := v.Modify(state)
	if ip.Unmap().Is4() {
		w.arpTable = w.arpTable.writable()
		return w.arpTable
	}
	w.ndpTable = w.ndpTable.writable()
	return w.ndpTable
}

type MacEntryType string

const (
	MacEntryDynamic MacEntryType = "dynamic"
	MacEntryStatic  MacEntryType = "static"
)

// MacEntryFields is the value of a MacEntry.
type MacEntryFields struct {
	Mac     MacAddr        `json:"mac"`
	Port    PortDescriptor `json:"port"`
	ClassID uint32         `json:"classId,omitempty"`
	Type    MacEntryType   `json:"type"`
}

func (f MacEntryFields) clone() MacEntryFields { return f }

func (f MacEntryFields) key() any { return f.Mac }

// MacEntry is a learned or configured L2 entry.
type MacEntry struct {
	leaf[MacEntryFields]
}

func NewMacEntry(f MacEntryFields) *MacEntry {
	return &MacEntry{leaf: newLeaf(f)}
}

func (e *MacEntry) ID() MacAddr { return e.fields.Mac }

// Modify returns a writable version of e, which is stored in the MAC table of
// VLAN vlan.
func (e *MacEntry) Modify(state **SwitchState, vlan VlanID) *MacEntry {
	if !e.IsPublished() {
		return e
	}
	table := (*state).Vlans().Get(vlan).ModifyMacTable(state)
	c := &MacEntry{leaf: e.cloneLeaf()}
	replaceEntry(table, e, c)
	return c
}

type NeighborState string

const (
	NeighborPending   NeighborState = "pending"
	NeighborReachable NeighborState = "reachable"
)

// NeighborEntryFields is the value of an ARP or NDP entry.
type NeighborEntryFields struct {
	IP        netip.Addr     `json:"ip"`
	Mac       MacAddr        `json:"mac"`
	Port      PortDescriptor `json:"port"`
	Interface InterfaceID    `json:"interfaceId"`
	State     NeighborState  `json:"state"`
	ClassID   uint32         `json:"classId,omitempty"`
}

func (f NeighborEntryFields) clone() NeighborEntryFields { return f }

func (f NeighborEntryFields) key() any { return f.IP }

// IsPending returns whether the entry is unresolved.
func (f NeighborEntryFields) IsPending() bool {
	return f.State == NeighborPending
}

// NeighborEntry is an ARP or NDP entry.
type NeighborEntry struct {
	leaf[NeighborEntryFields]
}

func NewNeighborEntry(f NeighborEntryFields) *NeighborEntry {
	return &NeighborEntry{leaf: newLeaf(f)}
}

func (e *NeighborEntry) ID() netip.Addr { return e.fields.IP }

// Modify returns a writable version of e, which is stored in VLAN vlan.
func (e *NeighborEntry) Modify(state **SwitchState, vlan VlanID) *NeighborEntry {
	if !e.IsPublished() {
		return e
	}
	table := (*state).Vlans().Get(vlan).ModifyNeighborTable(state, e.fields.IP)
	c := &NeighborEntry{leaf: e.cloneLeaf()}
	replaceEntry(table, e, c)
	return c
}
