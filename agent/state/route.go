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
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// AdminDistance ranks route sources. Lower is preferred.
type AdminDistance uint8

const (
	DistanceDirectlyConnected AdminDistance = 0
	DistanceStaticRoute       AdminDistance = 1
	DistanceOpenR             AdminDistance = 10
	DistanceEBGP              AdminDistance = 20
	DistanceIBGP              AdminDistance = 200
	DistanceMax               AdminDistance = 255
)

type ForwardAction string

const (
	ActionDrop     ForwardAction = "drop"
	ActionToCPU    ForwardAction = "toCPU"
	ActionNextHops ForwardAction = "nexthops"
)

// ClientID identifies the producer of a route.
type ClientID uint16

const (
	ClientBGP            ClientID = 0
	ClientStaticRoute    ClientID = 1
	ClientInterfaceRoute ClientID = 2
	ClientLinkLocal      ClientID = 3
	ClientStaticInternal ClientID = 700
	ClientOpenR          ClientID = 786
)

type LabelActionType string

const (
	LabelSwap LabelActionType = "swap"
	LabelPush LabelActionType = "push"
	LabelPop  LabelActionType = "popAndLookup"
	LabelPHP  LabelActionType = "php"
	LabelNoop LabelActionType = "noop"
)

// LabelAction is the MPLS label operation of a next hop.
type LabelAction struct {
	Type      LabelActionType `json:"type"`
	SwapWith  Label           `json:"swapWith,omitempty"`
	PushStack []Label         `json:"pushStack,omitempty"`
}

// NextHop is a single next hop. Interface is zero for unresolved next hops.
type NextHop struct {
	Addr        netip.Addr   `json:"addr"`
	Interface   InterfaceID  `json:"interface,omitempty"`
	Weight      uint64       `json:"weight,omitempty"`
	LabelAction *LabelAction `json:"labelAction,omitempty"`
}

// IsResolved returns whether the egress interface of the next hop is known.
func (n NextHop) IsResolved() bool {
	return n.Interface != 0
}

func (n NextHop) String() string {
	var b strings.Builder
	b.WriteString(n.Addr.String())
	if n.Interface != 0 {
		fmt.Fprintf(&b, "@I%d", n.Interface)
	}
	if n.Weight != 0 {
		fmt.Fprintf(&b, "x%d", n.Weight)
	}
	return b.String()
}

func compareNextHop(a, b NextHop) int {
	return cmp.Or(
		a.Addr.Compare(b.Addr),
		cmp.Compare(a.Interface, b.Interface),
		cmp.Compare(a.Weight, b.Weight),
	)
}

func (n NextHop) clone() NextHop {
	if n.LabelAction != nil {
		a := *n.LabelAction
		a.PushStack = slices.Clone(a.PushStack)
		n.LabelAction = &a
	}
	return n
}

func (n NextHop) equal(o NextHop) bool {
	if n.Addr != o.Addr || n.Interface != o.Interface || n.Weight != o.Weight {
		return false
	}
	if (n.LabelAction == nil) != (o.LabelAction == nil) {
		return false
	}
	if n.LabelAction == nil {
		return true
	}
	return n.LabelAction.Type == o.LabelAction.Type &&
		n.LabelAction.SwapWith == o.LabelAction.SwapWith &&
		slices.Equal(n.LabelAction.PushStack, o.LabelAction.PushStack)
}

// RouteNextHopEntry is the forwarding decision of a route.
type RouteNextHopEntry struct {
	Action        ForwardAction `json:"action"`
	AdminDistance AdminDistance `json:"adminDistance"`
	// NextHops is sorted and free of duplicates. It is empty unless Action is
	// ActionNextHops.
	NextHops  []NextHop `json:"nexthops,omitempty"`
	CounterID string    `json:"counterId,omitempty"`
	ClassID   uint32    `json:"classId,omitempty"`
}

// NewNextHopsEntry creates an ActionNextHops entry. The next hops are sorted
// and deduplicated.
func NewNextHopsEntry(distance AdminDistance, nhops ...NextHop) RouteNextHopEntry {
	return RouteNextHopEntry{
		Action:        ActionNextHops,
		AdminDistance: distance,
		NextHops:      NormalizeNextHops(nhops),
	}
}

// NormalizeNextHops returns a sorted and deduplicated copy of nhops.
func NormalizeNextHops(nhops []NextHop) []NextHop {
	s := make([]NextHop, 0, len(nhops))
	for _, n := range nhops {
		s = append(s, n.clone())
	}
	slices.SortFunc(s, compareNextHop)
	return slices.CompactFunc(s, func(a, b NextHop) bool { return compareNextHop(a, b) == 0 })
}

// NextHopsEqual reports whether a and b hold the same next hops in the same
// order.
func NextHopsEqual(a, b []NextHop) bool {
	return slices.EqualFunc(a, b, NextHop.equal)
}

func NewDropEntry(distance AdminDistance) RouteNextHopEntry {
	return RouteNextHopEntry{Action: ActionDrop, AdminDistance: distance}
}

func NewToCPUEntry(distance AdminDistance) RouteNextHopEntry {
	return RouteNextHopEntry{Action: ActionToCPU, AdminDistance: distance}
}

func (e RouteNextHopEntry) IsDrop() bool  { return e.Action == ActionDrop }
func (e RouteNextHopEntry) IsToCPU() bool { return e.Action == ActionToCPU }

// IsSame reports whether e and o have the same admin distance. It ignores
// the action and the next hops; use Equal for a full comparison.
func (e RouteNextHopEntry) IsSame(o RouteNextHopEntry) bool {
	return e.AdminDistance == o.AdminDistance
}

// Equal compares all attributes of the two entries.
func (e RouteNextHopEntry) Equal(o RouteNextHopEntry) bool {
	return e.Action == o.Action &&
		e.AdminDistance == o.AdminDistance &&
		e.CounterID == o.CounterID &&
		e.ClassID == o.ClassID &&
		slices.EqualFunc(e.NextHops, o.NextHops, NextHop.equal)
}

// TotalWeight is the sum of the next hop weights. Unweighted next hops count
// as one.
func (e RouteNextHopEntry) TotalWeight() uint64 {
	var total uint64
	for _, n := range e.NextHops {
		total += max(n.Weight, 1)
	}
	return total
}

// IsValid checks that the action and the next hop set agree.
func (e RouteNextHopEntry) IsValid() bool {
	if e.Action == ActionNextHops {
		return len(e.NextHops) > 0
	}
	return len(e.NextHops) == 0
}

func (e RouteNextHopEntry) String() string {
	if e.Action != ActionNextHops {
		return fmt.Sprintf("%s(ad=%d)", e.Action, e.AdminDistance)
	}
	hops := make([]string, 0, len(e.NextHops))
	for _, n := range e.NextHops {
		hops = append(hops, n.String())
	}
	return fmt.Sprintf("nexthops(ad=%d)[%s]", e.AdminDistance, strings.Join(hops, ","))
}

func (e RouteNextHopEntry) clone() RouteNextHopEntry {
	if e.NextHops != nil {
		hops := make([]NextHop, len(e.NextHops))
		for i, n := range e.NextHops {
			hops[i] = n.clone()
		}
		e.NextHops = hops
	}
	return e
}

// ClientEntry is the next hop entry announced by one route client.
type ClientEntry struct {
	Client ClientID          `json:"client"`
	Entry  RouteNextHopEntry `json:"entry"`
}

// RouteFields is the value of a Route.
type RouteFields struct {
	Prefix netip.Prefix `json:"prefix"`
	// Clients is sorted by client id.
	Clients []ClientEntry `json:"clients,omitempty"`
	// Forward is the resolved forwarding decision.
	Forward   RouteNextHopEntry `json:"forward"`
	Resolved  bool              `json:"resolved"`
	Connected bool              `json:"connected,omitempty"`
	ClassID   uint32            `json:"classId,omitempty"`
}

func (f RouteFields) clone() RouteFields {
	if f.Clients != nil {
		c := make([]ClientEntry, len(f.Clients))
		for i, e := range f.Clients {
			c[i] = ClientEntry{Client: e.Client, Entry: e.Entry.clone()}
		}
		f.Clients = c
	}
	f.Forward = f.Forward.clone()
	return f
}

func (f RouteFields) key() any { return f.Prefix }

// SetClientEntry adds or replaces the entry of client.
func (f *RouteFields) SetClientEntry(client ClientID, e RouteNextHopEntry) {
	i, ok := slices.BinarySearchFunc(f.Clients, client, func(c ClientEntry, id ClientID) int {
		return cmp.Compare(c.Client, id)
	})
	if ok {
		f.Clients[i].Entry = e.clone()
		return
	}
	f.Clients = slices.Insert(f.Clients, i, ClientEntry{Client: client, Entry: e.clone()})
}

// RemoveClientEntry removes the entry of client and reports whether it existed.
func (f *RouteFields) RemoveClientEntry(client ClientID) bool {
	n := len(f.Clients)
	f.Clients = slices.DeleteFunc(f.Clients, func(c ClientEntry) bool {
		return c.Client == client
	})
	return len(f.Clients) != n
}

// BestEntry returns the client entry with the lowest admin distance. Ties are
// broken by the lower client id.
func (f RouteFields) BestEntry() (ClientEntry, bool) {
	if len(f.Clients) == 0 {
		return ClientEntry{}, false
	}
	return slices.MinFunc(f.Clients, func(a, b ClientEntry) int {
		return cmp.Or(
			cmp.Compare(a.Entry.AdminDistance, b.Entry.AdminDistance),
			cmp.Compare(a.Client, b.Client),
		)
	}), true
}

// Route is a unicast route of one VRF.
type Route struct {
	leaf[RouteFields]
}

func NewRoute(f RouteFields) *Route {
	if f.Prefix.IsValid() {
		f.Prefix = f.Prefix.Masked()
	}
	return &Route{leaf: newLeaf(f)}
}

func (r *Route) ID() netip.Prefix { return r.fields.Prefix }

// Modify returns a writable version of r, which is stored in the FIB of
// router rid.
func (r *Route) Modify(state **SwitchState, rid RouterID) *Route {
	if !r.IsPublished() {
		return r
	}
	routes := (*state).Fibs().Get(rid).ModifyRoutes(state)
	c := &Route{leaf: r.cloneLeaf()}
	replaceEntry(routes, r, c)
	return c
}

// FibContainer holds the IPv4 and IPv6 routes of one VRF.
type FibContainer struct {
	nodeBase
	id     RouterID
	routes *RouteMap
}

func NewFibContainer(id RouterID) *FibContainer {
	return &FibContainer{id: id, routes: newRouteMap()}
}

func (f *FibContainer) ID() RouterID      { return f.id }
func (f *FibContainer) Routes() *RouteMap { return f.routes }

func (f *FibContainer) Publish() {
	if f.published {
		return
	}
	f.routes.Publish()
	f.markPublished()
}

func (f *FibContainer) Modify(state **SwitchState) *FibContainer {
	if !f.IsPublished() {
		return f
	}
	fibs := ModifyFibs(state)
	c := &FibContainer{nodeBase: f.next(), id: f.id, routes: f.routes}
	replaceEntry(fibs, f, c)
	return c
}

// ModifyRoutes returns the writable route map of the VRF within *state.
func (f *FibContainer) ModifyRoutes(state **SwitchState) *RouteMap {
	w := f.Modify(state)
	w.routes = w.routes.writable()
	return w.routes
}

// LongestMatch returns the most specific route that contains ip.
func (f *FibContainer) LongestMatch(ip netip.Addr) (*Route, bool) {
	ip = ip.Unmap()
	for bits := ip.BitLen(); bits >= 0; bits-- {
		p := netip.PrefixFrom(ip, bits).Masked()
		if r, ok := f.routes.GetIf(p); ok {
			return r, true
		}
	}
	return nil, false
}

// LabelForwardingEntryFields is the value of a LabelForwardingEntry.
type LabelForwardingEntryFields struct {
	Label   Label             `json:"label"`
	Client  ClientID          `json:"client"`
	Forward RouteNextHopEntry `json:"forward"`
}

func (f LabelForwardingEntryFields) clone() LabelForwardingEntryFields {
	f.Forward = f.Forward.clone()
	return f
}

func (f LabelForwardingEntryFields) key() any { return f.Label }

// LabelForwardingEntry is an MPLS forwarding entry.
type LabelForwardingEntry struct {
	leaf[LabelForwardingEntryFields]
}

func NewLabelForwardingEntry(f LabelForwardingEntryFields) *LabelForwardingEntry {
	return &LabelForwardingEntry{leaf: newLeaf(f)}
}

func (e *LabelForwardingEntry) ID() Label { return e.fields.Label }

func (e *LabelForwardingEntry) Modify(state **SwitchState) *LabelForwardingEntry {
	if !e.IsPublished() {
		return e
	}
	fib := ModifyLabelFib(state)
	c := &LabelForwardingEntry{leaf: e.cloneLeaf()}
	replaceEntry(fib, e, c)
	return c
}
