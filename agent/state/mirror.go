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

type MirrorType string

const (
	MirrorSpan   MirrorType = "SPAN"
	MirrorErspan MirrorType = "ERSPAN"
	MirrorSflow  MirrorType = "SFLOW"
)

const (
	// DefaultMirrorDscp is the DSCP of mirrored packets if not configured.
	DefaultMirrorDscp = 0
	// DefaultMirrorTunnelTTL is the TTL of the encapsulating header.
	DefaultMirrorTunnelTTL = 255
)

// TunnelUdpPorts are the UDP ports of an sFlow mirror tunnel.
type TunnelUdpPorts struct {
	Src uint32 `json:"udpSrcPort"`
	Dst uint32 `json:"udpDstPort"`
}

// MirrorTunnel is the resolved encapsulation of a remote mirror.
type MirrorTunnel struct {
	SrcIP    netip.Addr      `json:"srcIp"`
	DstIP    netip.Addr      `json:"dstIp"`
	SrcMac   MacAddr         `json:"srcMac"`
	DstMac   MacAddr         `json:"dstMac"`
	UdpPorts *TunnelUdpPorts `json:"udpPorts,omitempty"`
	TTL      uint8           `json:"ttl"`
}

// MirrorFields is the value of a Mirror.
type MirrorFields struct {
	Name          string          `json:"name"`
	EgressPort    *PortID         `json:"egressPort,omitempty"`
	DestinationIP *netip.Addr     `json:"destinationIp,omitempty"`
	SrcIP         *netip.Addr     `json:"srcIp,omitempty"`
	UdpPorts      *TunnelUdpPorts `json:"udpPorts,omitempty"`
	Dscp          uint8           `json:"dscp"`
	Truncate      bool            `json:"truncate"`
	// ConfigHasEgressPort is set if the egress port was configured rather
	// than resolved.
	ConfigHasEgressPort bool          `json:"configHasEgressPort"`
	ResolvedTunnel      *MirrorTunnel `json:"tunnel,omitempty"`
}

func (f MirrorFields) clone() MirrorFields {
	f.EgressPort = clonePtr(f.EgressPort)
	f.DestinationIP = clonePtr(f.DestinationIP)
	f.SrcIP = clonePtr(f.SrcIP)
	f.UdpPorts = clonePtr(f.UdpPorts)
	if f.ResolvedTunnel != nil {
		t := *f.ResolvedTunnel
		t.UdpPorts = clonePtr(t.UdpPorts)
		f.ResolvedTunnel = &t
	}
	return f
}

func (f MirrorFields) key() any { return f.Name }

// Type derives the mirror type. Local mirrors have no destination IP. Remote
// mirrors with UDP ports are sFlow mirrors, the others are ERSPAN.
func (f MirrorFields) Type() MirrorType {
	switch {
	case f.DestinationIP == nil:
		return MirrorSpan
	case f.UdpPorts == nil:
		return MirrorErspan
	default:
		return MirrorSflow
	}
}

// IsResolved returns whether the mirror can be programmed. Local mirrors are
// always resolved, remote mirrors once the tunnel is known.
func (f MirrorFields) IsResolved() bool {
	return f.ResolvedTunnel != nil || f.DestinationIP == nil
}

// Mirror is a port or ACL mirror session.
type Mirror struct {
	leaf[MirrorFields]
}

func NewMirror(f MirrorFields) *Mirror {
	return &Mirror{leaf: newLeaf(f)}
}

func (m *Mirror) ID() string       { return m.fields.Name }
func (m *Mirror) Type() MirrorType { return m.fields.Type() }
func (m *Mirror) IsResolved() bool { return m.fields.IsResolved() }

func (m *Mirror) Modify(state **SwitchState) *Mirror {
	if !m.IsPublished() {
		return m
	}
	mirrors := ModifyMirrors(state)
	c := &Mirror{leaf: m.cloneLeaf()}
	replaceEntry(mirrors, m, c)
	return c
}
