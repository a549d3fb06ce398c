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
	"slices"
)

// InterfaceFields is the value of an Interface.
type InterfaceFields struct {
	ID        InterfaceID    `json:"id"`
	Name      string         `json:"name"`
	RouterID  RouterID       `json:"routerId"`
	VlanID    VlanID         `json:"vlanId"`
	Mac       MacAddr        `json:"mac"`
	Addresses []netip.Prefix `json:"addresses,omitempty"`
	MTU       uint32         `json:"mtu"`
	// NdpRouterAdvertisement enables router advertisements with the given
	// interval in seconds. Zero disables them.
	NdpRouterAdvertisement uint32 `json:"ndpRouterAdvertisement,omitempty"`
}

func (f InterfaceFields) clone() InterfaceFields {
	f.Addresses = slices.Clone(f.Addresses)
	return f
}

func (f InterfaceFields) key() any { return f.ID }

// HasAddress returns whether ip is one of the interface addresses.
func (f InterfaceFields) HasAddress(ip netip.Addr) bool {
	return slices.ContainsFunc(f.Addresses, func(p netip.Prefix) bool {
		return p.Addr() == ip
	})
}

// CanReach returns whether ip is in one of the subnets of the interface.
func (f InterfaceFields) CanReach(ip netip.Addr) bool {
	return slices.ContainsFunc(f.Addresses, func(p netip.Prefix) bool {
		return p.Contains(ip)
	})
}

// Interface is a routed L3 interface.
type Interface struct {
	leaf[InterfaceFields]
}

func NewInterface(f InterfaceFields) *Interface {
	return &Interface{leaf: newLeaf(f)}
}

func (i *Interface) ID() InterfaceID { return i.fields.ID }

func (i *Interface) Modify(state **SwitchState) *Interface {
	if !i.IsPublished() {
		return i
	}
	intfs := ModifyInterfaces(state)
	c := &Interface{leaf: i.cloneLeaf()}
	replaceEntry(intfs, i, c)
	return c
}
