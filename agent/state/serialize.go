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
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/netfab/switchd/pkg/private/serrors"
)

// DocumentVersion is the version of the persisted state document.
const DocumentVersion = 2

// Document is the serializable form of a SwitchState. Mirrors are kept in
// their dynamic form, which differs between the legacy and the typed
// encoding.
type Document struct {
	Version          int                          `json:"version"`
	Generation       uint64                       `json:"generation"`
	Ports            []PortFields                 `json:"ports,omitempty"`
	AggregatePorts   []AggregatePortFields        `json:"aggregatePorts,omitempty"`
	Vlans            []VlanDocument               `json:"vlans,omitempty"`
	Interfaces       []InterfaceFields            `json:"interfaces,omitempty"`
	Fibs             []FibDocument                `json:"fibs,omitempty"`
	LabelFib         []LabelForwardingEntryFields `json:"labelFib,omitempty"`
	AclTableGroups   []AclTableGroupDocument      `json:"aclTableGroups,omitempty"`
	QosPolicies      []QosPolicyFields            `json:"qosPolicies,omitempty"`
	Mirrors          []map[string]any             `json:"mirrors,omitempty"`
	SflowCollectors  []SflowCollectorFields       `json:"sflowCollectors,omitempty"`
	LoadBalancers    []LoadBalancerFields         `json:"loadBalancers,omitempty"`
	Transceivers     []TransceiverSpecFields      `json:"transceivers,omitempty"`
	BufferPools      []BufferPoolFields           `json:"bufferPools,omitempty"`
	SwitchSettings   SwitchSettingsFields         `json:"switchSettings"`
	ControlPlane     ControlPlaneFields           `json:"controlPlane"`
	DefaultQosPolicy *QosPolicyFields             `json:"defaultDataPlaneQosPolicy,omitempty"`
}

type VlanDocument struct {
	VlanFields
	MacTable []MacEntryFields      `json:"macTable,omitempty"`
	ArpTable []NeighborEntryFields `json:"arpTable,omitempty"`
	NdpTable []NeighborEntryFields `json:"ndpTable,omitempty"`
}

type FibDocument struct {
	RouterID RouterID      `json:"routerId"`
	Routes   []RouteFields `json:"routes,omitempty"`
}

type AclTableGroupDocument struct {
	Stage  AclStage           `json:"stage"`
	Name   string             `json:"name"`
	Tables []AclTableDocument `json:"tables,omitempty"`
}

type AclTableDocument struct {
	AclTableFields
	Entries []AclEntryFields `json:"entries,omitempty"`
}

var (
	typedEncMode cbor.EncMode
	typedDecMode cbor.DecMode
)

func init() {
	var err error
	if typedEncMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	typedDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeLegacy encodes s as legacy JSON document.
func EncodeLegacy(s *SwitchState) ([]byte, error) {
	return json.Marshal(ToDocument(s, MirrorToLegacy))
}

// DecodeLegacy decodes a legacy JSON document. The returned state is not
// published.
func DecodeLegacy(raw []byte) (*SwitchState, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, serrors.Join(ErrMalformed, err, "format", "legacy")
	}
	return FromDocument(&doc, MirrorFromLegacy)
}

// EncodeTyped encodes s as typed CBOR document.
func EncodeTyped(s *SwitchState) ([]byte, error) {
	return typedEncMode.Marshal(ToDocument(s, MirrorToTypedDynamic))
}

// DecodeTyped decodes a typed CBOR document. The returned state is not
// published.
func DecodeTyped(raw []byte) (*SwitchState, error) {
	var doc Document
	if err := typedDecMode.Unmarshal(raw, &doc); err != nil {
		return nil, serrors.Join(ErrMalformed, err, "format", "typed")
	}
	return FromDocument(&doc, MirrorFromTypedDynamic)
}

// MigrateLegacyToTyped converts a legacy JSON document to a typed CBOR
// document. Only the dynamic parts are translated, everything else is
// re-encoded as is.
func MigrateLegacyToTyped(raw []byte) ([]byte, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, serrors.Join(ErrMalformed, err, "format", "legacy")
	}
	for i, m := range doc.Mirrors {
		typed, err := MigrateMirrorToTyped(m)
		if err != nil {
			return nil, serrors.Wrap("migrating mirror", err, "index", i)
		}
		doc.Mirrors[i] = typed
	}
	doc.Version = DocumentVersion
	return typedEncMode.Marshal(&doc)
}

// MigrateTypedToLegacy converts a typed CBOR document to a legacy JSON
// document.
func MigrateTypedToLegacy(raw []byte) ([]byte, error) {
	var doc Document
	if err := typedDecMode.Unmarshal(raw, &doc); err != nil {
		return nil, serrors.Join(ErrMalformed, err, "format", "typed")
	}
	for i, m := range doc.Mirrors {
		legacy, err := MigrateMirrorFromTyped(m)
		if err != nil {
			return nil, serrors.Wrap("migrating mirror", err, "index", i)
		}
		doc.Mirrors[i] = legacy
	}
	return json.Marshal(&doc)
}

// ToDocument converts s to its serializable form. mirror encodes the
// mirrors.
func ToDocument(s *SwitchState, mirror func(MirrorFields) map[string]any) *Document {
	doc := &Document{
		Version:        DocumentVersion,
		Generation:     s.Generation(),
		Ports:          fieldsOf(s.Ports(), (*Port).Fields),
		AggregatePorts: fieldsOf(s.AggregatePorts(), (*AggregatePort).Fields),
		Interfaces:     fieldsOf(s.Interfaces(), (*Interface).Fields),
		LabelFib:       fieldsOf(s.LabelFib(), (*LabelForwardingEntry).Fields),
		QosPolicies:    fieldsOf(s.QosPolicies(), (*QosPolicy).Fields),
		SflowCollectors: fieldsOf(s.SflowCollectors(),
			(*SflowCollector).Fields),
		LoadBalancers:  fieldsOf(s.LoadBalancers(), (*LoadBalancer).Fields),
		Transceivers:   fieldsOf(s.Transceivers(), (*TransceiverSpec).Fields),
		BufferPools:    fieldsOf(s.BufferPools(), (*BufferPoolConfig).Fields),
		SwitchSettings: s.SwitchSettings().Fields(),
		ControlPlane:   s.ControlPlane().Fields(),
	}
	for v := range s.Vlans().All() {
		doc.Vlans = append(doc.Vlans, VlanDocument{
			VlanFields: v.Fields(),
			MacTable:   fieldsOf(v.MacTable(), (*MacEntry).Fields),
			ArpTable:   fieldsOf(v.ArpTable(), (*NeighborEntry).Fields),
			NdpTable:   fieldsOf(v.NdpTable(), (*NeighborEntry).Fields),
		})
	}
	for f := range s.Fibs().All() {
		doc.Fibs = append(doc.Fibs, FibDocument{
			RouterID: f.ID(),
			Routes:   fieldsOf(f.Routes(), (*Route).Fields),
		})
	}
	for g := range s.AclTableGroups().All() {
		gd := AclTableGroupDocument{Stage: g.ID(), Name: g.Name()}
		for t := range g.Tables().All() {
			gd.Tables = append(gd.Tables, AclTableDocument{
				AclTableFields: t.Fields(),
				Entries:        fieldsOf(t.Entries(), (*AclEntry).Fields),
			})
		}
		doc.AclTableGroups = append(doc.AclTableGroups, gd)
	}
	for m := range s.Mirrors().All() {
		doc.Mirrors = append(doc.Mirrors, mirror(m.Fields()))
	}
	if q := s.DefaultDataPlaneQosPolicy(); q != nil {
		f := q.Fields()
		doc.DefaultQosPolicy = &f
	}
	return doc
}

// FromDocument builds an unpublished state from doc. mirror decodes the
// mirrors.
func FromDocument(
	doc *Document,
	mirror func(map[string]any) (MirrorFields, error),
) (*SwitchState, error) {

	if doc.Version > DocumentVersion {
		return nil, serrors.JoinNoStack(ErrMalformed, nil,
			"version", doc.Version, "supported", DocumentVersion)
	}
	s := NewSwitchState()
	s.nodeBase.generation = doc.Generation
	var errs serrors.List
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	check(addAll(s.ports, doc.Ports, NewPort))
	check(addAll(s.aggregatePorts, doc.AggregatePorts, NewAggregatePort))
	check(addAll(s.interfaces, doc.Interfaces, NewInterface))
	check(addAll(s.labelFib, doc.LabelFib, NewLabelForwardingEntry))
	check(addAll(s.qosPolicies, doc.QosPolicies, NewQosPolicy))
	check(addAll(s.sflowCollectors, doc.SflowCollectors,
		func(f SflowCollectorFields) *SflowCollector { return NewSflowCollector(f.Addr) }))
	check(addAll(s.loadBalancers, doc.LoadBalancers, NewLoadBalancer))
	check(addAll(s.transceivers, doc.Transceivers, NewTransceiverSpec))
	check(addAll(s.bufferPools, doc.BufferPools, NewBufferPoolConfig))
	for _, vd := range doc.Vlans {
		v := NewVlan(vd.VlanFields)
		check(addAll(v.macTable, vd.MacTable, NewMacEntry))
		check(addAll(v.arpTable, vd.ArpTable, NewNeighborEntry))
		check(addAll(v.ndpTable, vd.NdpTable, NewNeighborEntry))
		check(addOne(s.vlans, v))
	}
	for _, fd := range doc.Fibs {
		f := NewFibContainer(fd.RouterID)
		check(addAll(f.routes, fd.Routes, NewRoute))
		check(addOne(s.fibs, f))
	}
	for _, gd := range doc.AclTableGroups {
		g := NewAclTableGroup(gd.Stage, gd.Name)
		for _, td := range gd.Tables {
			t := NewAclTable(td.AclTableFields)
			check(addAll(t.entries, td.Entries, NewAclEntry))
			check(addOne(g.tables, t))
		}
		check(addOne(s.aclTableGroups, g))
	}
	for i, m := range doc.Mirrors {
		f, err := mirror(m)
		if err != nil {
			check(serrors.Wrap("decoding mirror", err, "index", i))
			continue
		}
		check(addOne(s.mirrors, NewMirror(f)))
	}
	s.switchSettings = NewSwitchSettings(doc.SwitchSettings)
	s.controlPlane = NewControlPlane(doc.ControlPlane)
	if doc.DefaultQosPolicy != nil {
		s.defaultQosPolicy = NewQosPolicy(*doc.DefaultQosPolicy)
	}
	if err := errs.ToError(); err != nil {
		return nil, err
	}
	return s, nil
}

func fieldsOf[K any, V Entry[K], F any](m *NodeMap[K, V], get func(V) F) []F {
	if m.Len() == 0 {
		return nil
	}
	res := make([]F, 0, m.Len())
	for v := range m.All() {
		res = append(res, get(v))
	}
	return res
}

func addAll[K any, V Entry[K], F any](m *NodeMap[K, V], fields []F, mk func(F) V) error {
	for _, f := range fields {
		if err := addOne(m, mk(f)); err != nil {
			return err
		}
	}
	return nil
}

// addOne adds v to m and reports duplicates as errors instead of panicking.
func addOne[K any, V Entry[K]](m *NodeMap[K, V], v V) error {
	if _, ok := m.GetIf(v.ID()); ok {
		return serrors.JoinNoStack(ErrMalformed, nil, "duplicate", fmt.Sprint(v.ID()))
	}
	m.Add(v)
	return nil
}
