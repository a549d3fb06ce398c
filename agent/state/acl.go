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
	"cmp"
	"iter"
	"net/netip"
	"slices"
)

type AclActionType string

const (
	AclPermit AclActionType = "permit"
	AclDeny   AclActionType = "deny"
)

type IpFragMatch string

const (
	MatchNotFragmented    IpFragMatch = "notFragmented"
	MatchFirstFragment    IpFragMatch = "firstFragment"
	MatchNonFirstFragment IpFragMatch = "nonFirstFragment"
	MatchAnyFragment      IpFragMatch = "anyFragment"
)

// RedirectNextHop is a configured redirect target. If Interface is set, only
// resolved next hops egressing on that interface are used.
type RedirectNextHop struct {
	IP        netip.Addr   `json:"ip"`
	Interface *InterfaceID `json:"interface,omitempty"`
}

// RedirectToNextHop redirects matching packets to the next hops that the
// FIB resolves for the configured addresses.
type RedirectToNextHop struct {
	NextHops []RedirectNextHop `json:"nexthops"`
	// Resolved is sorted and deduplicated.
	Resolved []NextHop `json:"resolvedNexthops,omitempty"`
}

func (r *RedirectToNextHop) clone() *RedirectToNextHop {
	if r == nil {
		return nil
	}
	c := &RedirectToNextHop{
		NextHops: make([]RedirectNextHop, len(r.NextHops)),
		Resolved: slices.Clone(r.Resolved),
	}
	for i, n := range r.NextHops {
		if n.Interface != nil {
			id := *n.Interface
			n.Interface = &id
		}
		c.NextHops[i] = n
	}
	for i := range c.Resolved {
		c.Resolved[i] = c.Resolved[i].clone()
	}
	return c
}

// SendToQueue assigns matching packets to a queue.
type SendToQueue struct {
	Queue     uint8 `json:"queue"`
	SendToCPU bool  `json:"sendToCpu,omitempty"`
}

// MatchAction is the action of an ACL entry beyond permit or deny.
type MatchAction struct {
	SendToQueue       *SendToQueue       `json:"sendToQueue,omitempty"`
	CounterName       string             `json:"counter,omitempty"`
	SetDscp           *uint8             `json:"setDscp,omitempty"`
	IngressMirror     string             `json:"ingressMirror,omitempty"`
	EgressMirror      string             `json:"egressMirror,omitempty"`
	ToCPU             bool               `json:"toCpu,omitempty"`
	RedirectToNextHop *RedirectToNextHop `json:"redirectToNextHop,omitempty"`
}

func (a *MatchAction) clone() *MatchAction {
	if a == nil {
		return nil
	}
	c := *a
	if a.SendToQueue != nil {
		q := *a.SendToQueue
		c.SendToQueue = &q
	}
	if a.SetDscp != nil {
		d := *a.SetDscp
		c.SetDscp = &d
	}
	c.RedirectToNextHop = a.RedirectToNextHop.clone()
	return &c
}

// AclEntryFields is the value of an AclEntry. Unset matchers match
// everything.
type AclEntryFields struct {
	Name       string        `json:"name"`
	Priority   int32         `json:"priority"`
	ActionType AclActionType `json:"actionType"`
	Disabled   bool          `json:"disabled,omitempty"`

	SrcIP       netip.Prefix `json:"srcIp,omitzero"`
	DstIP       netip.Prefix `json:"dstIp,omitzero"`
	Proto       *uint8       `json:"proto,omitempty"`
	L4SrcPort   *uint16      `json:"l4SrcPort,omitempty"`
	L4DstPort   *uint16      `json:"l4DstPort,omitempty"`
	SrcPort     *PortID      `json:"srcPort,omitempty"`
	DstPort     *PortID      `json:"dstPort,omitempty"`
	IpFrag      IpFragMatch  `json:"ipFrag,omitempty"`
	IcmpType    *uint8       `json:"icmpType,omitempty"`
	IcmpCode    *uint8       `json:"icmpCode,omitempty"`
	Dscp        *uint8       `json:"dscp,omitempty"`
	Ttl         *uint8       `json:"ttl,omitempty"`
	DstMac      *MacAddr     `json:"dstMac,omitempty"`
	LookupClass *uint32      `json:"lookupClass,omitempty"`

	Action *MatchAction `json:"aclAction,omitempty"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (f AclEntryFields) clone() AclEntryFields {
	f.Proto = clonePtr(f.Proto)
	f.L4SrcPort = clonePtr(f.L4SrcPort)
	f.L4DstPort = clonePtr(f.L4DstPort)
	f.SrcPort = clonePtr(f.SrcPort)
	f.DstPort = clonePtr(f.DstPort)
	f.IcmpType = clonePtr(f.IcmpType)
	f.IcmpCode = clonePtr(f.IcmpCode)
	f.Dscp = clonePtr(f.Dscp)
	f.Ttl = clonePtr(f.Ttl)
	f.DstMac = clonePtr(f.DstMac)
	f.LookupClass = clonePtr(f.LookupClass)
	f.Action = f.Action.clone()
	return f
}

func (f AclEntryFields) key() any { return f.Name }

// Redirect returns the redirect-to-next-hop action, if any.
func (f AclEntryFields) Redirect() (*RedirectToNextHop, bool) {
	if f.Action == nil || f.Action.RedirectToNextHop == nil {
		return nil, false
	}
	return f.Action.RedirectToNextHop, true
}

// AclEntry is a single ACL rule.
type AclEntry struct {
	leaf[AclEntryFields]
}

func NewAclEntry(f AclEntryFields) *AclEntry {
	return &AclEntry{leaf: newLeaf(f)}
}

func (e *AclEntry) ID() string { return e.fields.Name }

// Priority returns the entry priority. Lower values match first.
func (e *AclEntry) Priority() int32 { return e.fields.Priority }

// Modify returns a writable version of e, which is stored in table of the
// group at stage.
func (e *AclEntry) Modify(state **SwitchState, stage AclStage, table string) *AclEntry {
	if !e.IsPublished() {
		return e
	}
	entries := (*state).AclTableGroups().Get(stage).Tables().Get(table).
		ModifyEntries(state, stage)
	c := &AclEntry{leaf: e.cloneLeaf()}
	replaceEntry(entries, e, c)
	return c
}

// AclTableFields is the value of an AclTable.
type AclTableFields struct {
	Name       string   `json:"name"`
	Priority   int32    `json:"priority"`
	Qualifiers []string `json:"qualifiers,omitempty"`
	Actions    []string `json:"actionTypes,omitempty"`
}

func (f AclTableFields) clone() AclTableFields {
	f.Qualifiers = slices.Clone(f.Qualifiers)
	f.Actions = slices.Clone(f.Actions)
	return f
}

// AclTable is a named, prioritized table of ACL entries.
type AclTable struct {
	nodeBase
	fields  AclTableFields
	entries *AclEntryMap
}

func NewAclTable(f AclTableFields) *AclTable {
	return &AclTable{fields: f.clone(), entries: newOrderedMap[string, *AclEntry]()}
}

func (t *AclTable) ID() string             { return t.fields.Name }
func (t *AclTable) Entries() *AclEntryMap  { return t.entries }
func (t *AclTable) Fields() AclTableFields { return t.fields.clone() }

func (t *AclTable) SetFields(f AclTableFields) {
	t.checkWritable(t.fields.Name)
	if f.Name != t.fields.Name {
		programmingError("changing resource key", "old", t.fields.Name, "new", f.Name)
	}
	t.fields = f.clone()
}

// SortedEntries returns the entries ordered by priority.
func (t *AclTable) SortedEntries() []*AclEntry {
	s := slices.Collect(t.entries.All())
	slices.SortStableFunc(s, func(a, b *AclEntry) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return s
}

func (t *AclTable) Publish() {
	if t.published {
		return
	}
	t.entries.Publish()
	t.markPublished()
}

// Modify returns a writable version of t, which is stored in the group at
// stage.
func (t *AclTable) Modify(state **SwitchState, stage AclStage) *AclTable {
	if !t.IsPublished() {
		return t
	}
	tables := (*state).AclTableGroups().Get(stage).ModifyTables(state)
	c := &AclTable{nodeBase: t.next(), fields: t.fields.clone(), entries: t.entries}
	replaceEntry(tables, t, c)
	return c
}

// ModifyEntries returns the writable entry map of t within *state.
func (t *AclTable) ModifyEntries(state **SwitchState, stage AclStage) *AclEntryMap {
	w := t.Modify(state, stage)
	w.entries = w.entries.writable()
	return w.entries
}

// AclTableGroup holds the ACL tables of one stage.
type AclTableGroup struct {
	nodeBase
	stage  AclStage
	name   string
	tables *AclTableMap
}

func NewAclTableGroup(stage AclStage, name string) *AclTableGroup {
	return &AclTableGroup{stage: stage, name: name, tables: newOrderedMap[string, *AclTable]()}
}

func (g *AclTableGroup) ID() AclStage         { return g.stage }
func (g *AclTableGroup) Name() string         { return g.name }
func (g *AclTableGroup) Tables() *AclTableMap { return g.tables }

func (g *AclTableGroup) Publish() {
	if g.published {
		return
	}
	for t := range g.tables.All() {
		t.Publish()
	}
	g.tables.Publish()
	g.markPublished()
}

func (g *AclTableGroup) Modify(state **SwitchState) *AclTableGroup {
	if !g.IsPublished() {
		return g
	}
	groups := ModifyAclTableGroups(state)
	c := &AclTableGroup{nodeBase: g.next(), stage: g.stage, name: g.name, tables: g.tables}
	replaceEntry(groups, g, c)
	return c
}

// ModifyTables returns the writable table map of g within *state.
func (g *AclTableGroup) ModifyTables(state **SwitchState) *AclTableMap {
	w := g.Modify(state)
	w.tables = w.tables.writable()
	return w.tables
}

// AclEntryRef locates an ACL entry in the state tree.
type AclEntryRef struct {
	Stage AclStage
	Table string
	Entry *AclEntry
}

// AllAclEntries iterates over all ACL entries of s, by stage and table.
func AllAclEntries(s *SwitchState) iter.Seq[AclEntryRef] {
	return func(yield func(AclEntryRef) bool) {
		for g := range s.AclTableGroups().All() {
			for t := range g.Tables().All() {
				for e := range t.Entries().All() {
					if !yield(AclEntryRef{Stage: g.ID(), Table: t.ID(), Entry: e}) {
						return
					}
				}
			}
		}
	}
}

// AclCount returns the number of ACL entries in s.
func AclCount(s *SwitchState) int {
	n := 0
	for g := range s.AclTableGroups().All() {
		for t := range g.Tables().All() {
			n += t.Entries().Len()
		}
	}
	return n
}
