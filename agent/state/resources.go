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

// SflowCollectorFields is the value of an SflowCollector.
type SflowCollectorFields struct {
	// ID is "<ip>:<port>".
	ID   string         `json:"id"`
	Addr netip.AddrPort `json:"address"`
}

func (f SflowCollectorFields) clone() SflowCollectorFields { return f }

func (f SflowCollectorFields) key() any { return f.ID }

// SflowCollector is an sFlow sample destination.
type SflowCollector struct {
	leaf[SflowCollectorFields]
}

// NewSflowCollector creates a collector for addr. Its ID is derived from the
// address.
func NewSflowCollector(addr netip.AddrPort) *SflowCollector {
	return &SflowCollector{leaf: newLeaf(SflowCollectorFields{ID: addr.String(), Addr: addr})}
}

func (c *SflowCollector) ID() string { return c.fields.ID }

func (c *SflowCollector) Modify(state **SwitchState) *SflowCollector {
	if !c.IsPublished() {
		return c
	}
	collectors := ModifySflowCollectors(state)
	n := &SflowCollector{leaf: c.cloneLeaf()}
	replaceEntry(collectors, c, n)
	return n
}

const (
	LoadBalancerEcmp      LoadBalancerID = 1
	LoadBalancerAggregate LoadBalancerID = 2
)

type HashAlgorithm string

const (
	HashCRC16CCITT HashAlgorithm = "crc16ccitt"
	HashCRC32Lo    HashAlgorithm = "crc32lo"
	HashCRC32Hi    HashAlgorithm = "crc32hi"
)

// LoadBalancerFields is the value of a LoadBalancer.
type LoadBalancerFields struct {
	ID        LoadBalancerID `json:"id"`
	Algorithm HashAlgorithm  `json:"algorithm"`
	Seed      uint32         `json:"seed"`
	// Fields are the hashed header fields, e.g., "srcIp" or "l4DstPort".
	IPv4Fields      []string `json:"ipv4Fields,omitempty"`
	IPv6Fields      []string `json:"ipv6Fields,omitempty"`
	TransportFields []string `json:"transportFields,omitempty"`
	MplsFields      []string `json:"mplsFields,omitempty"`
}

func (f LoadBalancerFields) clone() LoadBalancerFields {
	f.IPv4Fields = slices.Clone(f.IPv4Fields)
	f.IPv6Fields = slices.Clone(f.IPv6Fields)
	f.TransportFields = slices.Clone(f.TransportFields)
	f.MplsFields = slices.Clone(f.MplsFields)
	return f
}

func (f LoadBalancerFields) key() any { return f.ID }

// LoadBalancer is the hashing configuration of ECMP or LAG member selection.
type LoadBalancer struct {
	leaf[LoadBalancerFields]
}

func NewLoadBalancer(f LoadBalancerFields) *LoadBalancer {
	return &LoadBalancer{leaf: newLeaf(f)}
}

func (l *LoadBalancer) ID() LoadBalancerID { return l.fields.ID }

func (l *LoadBalancer) Modify(state **SwitchState) *LoadBalancer {
	if !l.IsPublished() {
		return l
	}
	lbs := ModifyLoadBalancers(state)
	c := &LoadBalancer{leaf: l.cloneLeaf()}
	replaceEntry(lbs, l, c)
	return c
}

type MediaInterface string

type TransmitterTechnology string

const (
	TechnologyUnknown TransmitterTechnology = "unknown"
	TechnologyCopper  TransmitterTechnology = "copper"
	TechnologyOptical TransmitterTechnology = "optical"
)

// TransceiverSpecFields is the value of a TransceiverSpec.
type TransceiverSpecFields struct {
	ID         TransceiverID         `json:"id"`
	CableLenM  float64               `json:"cableLength,omitempty"`
	MediaIntf  MediaInterface        `json:"mediaInterface,omitempty"`
	Technology TransmitterTechnology `json:"transmitterTech,omitempty"`
	VendorName string                `json:"vendorName,omitempty"`
	PartNumber string                `json:"partNumber,omitempty"`
}

func (f TransceiverSpecFields) clone() TransceiverSpecFields { return f }

func (f TransceiverSpecFields) key() any { return f.ID }

// TransceiverSpec is what the agent knows about a present transceiver.
type TransceiverSpec struct {
	leaf[TransceiverSpecFields]
}

func NewTransceiverSpec(f TransceiverSpecFields) *TransceiverSpec {
	return &TransceiverSpec{leaf: newLeaf(f)}
}

func (t *TransceiverSpec) ID() TransceiverID { return t.fields.ID }

func (t *TransceiverSpec) Modify(state **SwitchState) *TransceiverSpec {
	if !t.IsPublished() {
		return t
	}
	tcvrs := ModifyTransceivers(state)
	c := &TransceiverSpec{leaf: t.cloneLeaf()}
	replaceEntry(tcvrs, t, c)
	return c
}

type BufferPoolFields struct {
	Name string `json:"name"`
	// SharedBytes is the size of the shared buffer.
	SharedBytes   uint32 `json:"sharedBytes"`
	HeadroomBytes uint32 `json:"headroomBytes"`
	ReservedBytes uint32 `json:"reservedBytes,omitempty"`
}

func (f BufferPoolFields) clone() BufferPoolFields { return f }

func (f BufferPoolFields) key() any { return f.Name }

// BufferPoolConfig is a named buffer pool.
type BufferPoolConfig struct {
	leaf[BufferPoolFields]
}

func NewBufferPoolConfig(f BufferPoolFields) *BufferPoolConfig {
	return &BufferPoolConfig{leaf: newLeaf(f)}
}

func (b *BufferPoolConfig) ID() string { return b.fields.Name }

func (b *BufferPoolConfig) Modify(state **SwitchState) *BufferPoolConfig {
	if !b.IsPublished() {
		return b
	}
	pools := ModifyBufferPools(state)
	c := &BufferPoolConfig{leaf: b.cloneLeaf()}
	replaceEntry(pools, b, c)
	return c
}
