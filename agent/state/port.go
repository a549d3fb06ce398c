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
	"slices"
)

type PortAdminState string

const (
	PortDisabled PortAdminState = "disabled"
	PortEnabled  PortAdminState = "enabled"
)

type PortOperState string

const (
	PortOperDown PortOperState = "down"
	PortOperUp   PortOperState = "up"
)

// PortSpeed is the port speed in Mbps.
type PortSpeed uint32

const (
	SpeedDefault PortSpeed = 0
	Speed10G     PortSpeed = 10000
	Speed25G     PortSpeed = 25000
	Speed40G     PortSpeed = 40000
	Speed50G     PortSpeed = 50000
	Speed100G    PortSpeed = 100000
	Speed200G    PortSpeed = 200000
	Speed400G    PortSpeed = 400000
)

type FecMode string

const (
	FecNone  FecMode = "none"
	FecCL74  FecMode = "cl74"
	FecCL91  FecMode = "cl91"
	FecRS528 FecMode = "rs528"
	FecRS544 FecMode = "rs544"
)

// VlanMembership is the membership of a port in a VLAN.
type VlanMembership struct {
	Vlan   VlanID `json:"vlan"`
	Tagged bool   `json:"tagged"`
}

// PortFields is the value of a Port.
type PortFields struct {
	ID          PortID         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	AdminState  PortAdminState `json:"adminState"`
	OperState   PortOperState  `json:"operState"`
	Speed       PortSpeed      `json:"speed"`
	// Profile is the name of the port profile, e.g., "PROFILE_100G_4_NRZ_RS528".
	Profile     string           `json:"profile,omitempty"`
	IngressVlan VlanID           `json:"ingressVlan"`
	Vlans       []VlanMembership `json:"vlans,omitempty"`
	// Transceiver is the transceiver slot the port is attached to, if any.
	Transceiver   *TransceiverID `json:"transceiver,omitempty"`
	QosPolicy     string         `json:"qosPolicy,omitempty"`
	SflowIngress  uint64         `json:"sflowIngressRate,omitempty"`
	SflowEgress   uint64         `json:"sflowEgressRate,omitempty"`
	IngressMirror string         `json:"ingressMirror,omitempty"`
	EgressMirror  string         `json:"egressMirror,omitempty"`
	Fec           FecMode        `json:"fec,omitempty"`
	MaxFrameSize  uint32         `json:"maxFrameSize,omitempty"`
	LoopbackMode  string         `json:"loopbackMode,omitempty"`
}

func (f PortFields) clone() PortFields {
	f.Vlans = slices.Clone(f.Vlans)
	if f.Transceiver != nil {
		t := *f.Transceiver
		f.Transceiver = &t
	}
	return f
}

func (f PortFields) key() any { return f.ID }

// IsUp returns whether the port is administratively enabled and operationally
// up.
func (f PortFields) IsUp() bool {
	return f.AdminState == PortEnabled && f.OperState == PortOperUp
}

// Port is a physical front panel port.
type Port struct {
	leaf[PortFields]
}

func NewPort(f PortFields) *Port {
	return &Port{leaf: newLeaf(f)}
}

func (p *Port) ID() PortID   { return p.fields.ID }
func (p *Port) Name() string { return p.fields.Name }

// Modify returns a writable version of p within *state.
func (p *Port) Modify(state **SwitchState) *Port {
	if !p.IsPublished() {
		return p
	}
	ports := ModifyPorts(state)
	c := &Port{leaf: p.cloneLeaf()}
	replaceEntry(ports, p, c)
	return c
}

// AggregateMember is a physical member port of an aggregate port.
type AggregateMember struct {
	Port     PortID `json:"port"`
	Priority uint16 `json:"priority"`
	Rate     string `json:"rate,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// AggregatePortFields is the value of an AggregatePort.
type AggregatePortFields struct {
	ID               AggregatePortID   `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	SystemPriority   uint16            `json:"systemPriority"`
	MinimumLinkCount uint8             `json:"minimumLinkCount"`
	Members          []AggregateMember `json:"members"`
	IngressVlan      VlanID            `json:"ingressVlan"`
}

func (f AggregatePortFields) clone() AggregatePortFields {
	f.Members = slices.Clone(f.Members)
	return f
}

func (f AggregatePortFields) key() any { return f.ID }

// HasMember returns whether p is a member of the aggregate.
func (f AggregatePortFields) HasMember(p PortID) bool {
	return slices.ContainsFunc(f.Members, func(m AggregateMember) bool {
		return m.Port == p
	})
}

// AggregatePort is a link aggregation group.
type AggregatePort struct {
	leaf[AggregatePortFields]
}

func NewAggregatePort(f AggregatePortFields) *AggregatePort {
	return &AggregatePort{leaf: newLeaf(f)}
}

func (a *AggregatePort) ID() AggregatePortID { return a.fields.ID }

func (a *AggregatePort) Modify(state **SwitchState) *AggregatePort {
	if !a.IsPublished() {
		return a
	}
	aggs := ModifyAggregatePorts(state)
	c := &AggregatePort{leaf: a.cloneLeaf()}
	replaceEntry(aggs, a, c)
	return c
}
