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

package swconfig

import (
	"cmp"
	"net/netip"
	"slices"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/private/serrors"
)

// aclTable is a desired ACL table with its entries.
type aclTable struct {
	stage   state.AclStage
	fields  state.AclTableFields
	entries []*state.AclEntry
}

// desired holds the state nodes described by a Config.
type desired struct {
	ports          []state.PortFields
	aggregatePorts []*state.AggregatePort
	vlans          []state.VlanFields
	interfaces     []*state.Interface
	// routes holds the static and interface routes per VRF.
	routes          map[state.RouterID][]state.RouteFields
	acls            []aclTable
	qosPolicies     []*state.QosPolicy
	defaultQos      *state.QosPolicy
	mirrors         []state.MirrorFields
	sflowCollectors []*state.SflowCollector
	loadBalancers   []*state.LoadBalancer
	bufferPools     []*state.BufferPoolConfig
	switchSettings  state.SwitchSettingsFields
	controlPlane    state.ControlPlaneFields
}

func (c *Config) build() (*desired, error) {
	d := &desired{routes: make(map[state.RouterID][]state.RouteFields)}
	memberships := make(map[state.PortID][]state.VlanMembership)
	for _, v := range c.Vlans {
		f := state.VlanFields{ID: v.ID, Name: v.Name, InterfaceID: v.Interface}
		for _, m := range v.Ports {
			f.Ports = append(f.Ports, state.VlanPort{Port: m.Port, Tagged: m.Tagged})
			memberships[m.Port] = append(memberships[m.Port],
				state.VlanMembership{Vlan: v.ID, Tagged: m.Tagged})
		}
		var err error
		if f.DhcpV4Relay, err = parseOptAddr("dhcpV4Relay", v.DhcpV4Relay); err != nil {
			return nil, serrors.Wrap("building vlan", err, "vlan", v.ID)
		}
		if f.DhcpV6Relay, err = parseOptAddr("dhcpV6Relay", v.DhcpV6Relay); err != nil {
			return nil, serrors.Wrap("building vlan", err, "vlan", v.ID)
		}
		d.vlans = append(d.vlans, f)
	}
	for _, p := range c.Ports {
		admin := state.PortDisabled
		if p.Enabled {
			admin = state.PortEnabled
		}
		vlans := memberships[p.ID]
		slices.SortFunc(vlans, func(a, b state.VlanMembership) int {
			return cmp.Compare(a.Vlan, b.Vlan)
		})
		d.ports = append(d.ports, state.PortFields{
			ID:            p.ID,
			Name:          p.Name,
			Description:   p.Description,
			AdminState:    admin,
			OperState:     state.PortOperDown,
			Speed:         p.Speed,
			Profile:       p.Profile,
			IngressVlan:   p.IngressVlan,
			Vlans:         vlans,
			Transceiver:   p.Transceiver,
			QosPolicy:     p.QosPolicy,
			SflowIngress:  p.SflowIngress,
			SflowEgress:   p.SflowEgress,
			IngressMirror: p.IngressMirror,
			EgressMirror:  p.EgressMirror,
			Fec:           p.Fec,
			MaxFrameSize:  p.MaxFrameSize,
			LoopbackMode:  p.Loopback,
		})
	}
	for _, a := range c.AggregatePorts {
		f := state.AggregatePortFields{
			ID:               a.ID,
			Name:             a.Name,
			Description:      a.Description,
			SystemPriority:   a.SystemPriority,
			MinimumLinkCount: a.MinimumLinkCount,
			IngressVlan:      a.IngressVlan,
		}
		for _, m := range a.Members {
			f.Members = append(f.Members, state.AggregateMember{
				Port:     m.Port,
				Priority: m.Priority,
				Rate:     m.Rate,
				Enabled:  m.Enabled == nil || *m.Enabled,
			})
		}
		d.aggregatePorts = append(d.aggregatePorts, state.NewAggregatePort(f))
	}
	if err := c.buildInterfaces(d); err != nil {
		return nil, err
	}
	if err := c.buildStaticRoutes(d); err != nil {
		return nil, err
	}
	if err := c.buildAcls(d); err != nil {
		return nil, err
	}
	for _, q := range c.QosPolicies {
		p := state.NewQosPolicy(buildQosPolicy(q))
		d.qosPolicies = append(d.qosPolicies, p)
		if q.Name == c.DefaultQosPolicy {
			d.defaultQos = state.NewQosPolicy(buildQosPolicy(q))
		}
	}
	if err := c.buildMirrors(d); err != nil {
		return nil, err
	}
	for _, s := range c.SflowCollectors {
		addr, err := netip.ParseAddrPort(s)
		if err != nil {
			return nil, serrors.Wrap("parsing sflow collector", ErrInvalid,
				"collector", s, "err", err)
		}
		d.sflowCollectors = append(d.sflowCollectors, state.NewSflowCollector(addr))
	}
	for _, lb := range c.LoadBalancers {
		d.loadBalancers = append(d.loadBalancers, state.NewLoadBalancer(state.LoadBalancerFields{
			ID:              lb.ID,
			Algorithm:       lb.Algorithm,
			Seed:            lb.Seed,
			IPv4Fields:      lb.IPv4Fields,
			IPv6Fields:      lb.IPv6Fields,
			TransportFields: lb.TransportFields,
			MplsFields:      lb.MplsFields,
		}))
	}
	for _, b := range c.BufferPools {
		d.bufferPools = append(d.bufferPools, state.NewBufferPoolConfig(state.BufferPoolFields{
			Name:          b.Name,
			SharedBytes:   b.SharedBytes,
			HeadroomBytes: b.HeadroomBytes,
			ReservedBytes: b.ReservedBytes,
		}))
	}
	ss := c.SwitchSettings
	d.switchSettings = state.SwitchSettingsFields{
		L2LearningMode:     ss.L2LearningMode,
		QcmEnable:          ss.QcmEnable,
		PtpTcEnable:        ss.PtpTcEnable,
		L2AgeTimer:         ss.L2AgeTimer,
		MaxRouteCounterIDs: ss.MaxRouteCounterIDs,
		ArpTimeout:         ss.ArpTimeout,
		NdpTimeout:         ss.NdpTimeout,
		MaxNeighborProbes:  ss.MaxNeighborProbes,
		StaleEntryInterval: ss.StaleEntryInterval,
	}
	for _, b := range ss.BlockedNeighbors {
		if _, err := parseAddr("blockedNeighbors", b.IP); err != nil {
			return nil, err
		}
		d.switchSettings.BlockedNeighbors = append(d.switchSettings.BlockedNeighbors,
			state.BlockedNeighbor{Vlan: b.Vlan, IP: b.IP})
	}
	cp := c.ControlPlane
	d.controlPlane = state.ControlPlaneFields{Queues: cp.Queues, QosPolicy: cp.QosPolicy}
	for _, reason := range sortedKeys(cp.RxReasonToQueue) {
		d.controlPlane.RxReasonToQueue = append(d.controlPlane.RxReasonToQueue,
			state.RxReasonToQueue{Reason: reason, Queue: cp.RxReasonToQueue[reason]})
	}
	return d, nil
}

func (c *Config) buildInterfaces(d *desired) error {
	for _, i := range c.Interfaces {
		var mac state.MacAddr
		if i.Mac != "" {
			var err error
			if mac, err = state.ParseMac(i.Mac); err != nil {
				return serrors.Wrap("parsing interface mac", ErrInvalid,
					"interface", i.ID, "mac", i.Mac, "err", err)
			}
		}
		f := state.InterfaceFields{
			ID:                     i.ID,
			Name:                   i.Name,
			RouterID:               i.Vrf,
			VlanID:                 i.Vlan,
			Mac:                    mac,
			MTU:                    i.MTU,
			NdpRouterAdvertisement: uint32(i.NdpRaInterval.Seconds()),
		}
		for _, a := range i.Addresses {
			p, err := parsePrefix("addresses", a)
			if err != nil {
				return serrors.Wrap("building interface", err, "interface", i.ID)
			}
			f.Addresses = append(f.Addresses, p)
			d.routes[i.Vrf] = append(d.routes[i.Vrf], state.RouteFields{
				Prefix: p.Masked(),
				Clients: []state.ClientEntry{{
					Client: state.ClientInterfaceRoute,
					Entry: state.NewNextHopsEntry(state.DistanceDirectlyConnected,
						state.NextHop{Addr: p.Addr(), Interface: i.ID}),
				}},
				Connected: true,
			})
		}
		d.interfaces = append(d.interfaces, state.NewInterface(f))
	}
	return nil
}

func (c *Config) buildStaticRoutes(d *desired) error {
	for _, r := range c.StaticRoutes {
		p, err := parsePrefix("prefix", r.Prefix)
		if err != nil {
			return err
		}
		var entry state.RouteNextHopEntry
		switch {
		case r.Drop:
			entry = state.NewDropEntry(state.DistanceStaticRoute)
		case r.ToCPU:
			entry = state.NewToCPUEntry(state.DistanceStaticRoute)
		default:
			if len(r.NextHops) == 0 {
				return serrors.Wrap("static route without action", ErrInvalid,
					"prefix", r.Prefix)
			}
			var hops []state.NextHop
			for _, nh := range r.NextHops {
				a, err := parseAddr("nexthops", nh)
				if err != nil {
					return serrors.Wrap("building static route", err, "prefix", r.Prefix)
				}
				hops = append(hops, state.NextHop{Addr: a})
			}
			entry = state.NewNextHopsEntry(state.DistanceStaticRoute, hops...)
		}
		d.routes[r.Vrf] = append(d.routes[r.Vrf], state.RouteFields{
			Prefix:  p.Masked(),
			Clients: []state.ClientEntry{{Client: state.ClientStaticRoute, Entry: entry}},
		})
	}
	return nil
}

func (c *Config) buildAcls(d *desired) error {
	for _, t := range c.Acls {
		table := aclTable{
			stage: t.Stage,
			fields: state.AclTableFields{
				Name:       t.Name,
				Priority:   t.Priority,
				Qualifiers: t.Qualifiers,
				Actions:    t.Actions,
			},
		}
		for _, e := range t.Entries {
			f, err := buildAclEntry(e)
			if err != nil {
				return serrors.Wrap("building acl entry", err, "table", t.Name)
			}
			table.entries = append(table.entries, state.NewAclEntry(f))
		}
		d.acls = append(d.acls, table)
	}
	return nil
}

func buildAclEntry(e AclEntry) (state.AclEntryFields, error) {
	f := state.AclEntryFields{
		Name:       e.Name,
		Priority:   e.Priority,
		ActionType: e.Action,
		Proto:      e.Proto,
		L4SrcPort:  e.L4SrcPort,
		L4DstPort:  e.L4DstPort,
		SrcPort:    e.SrcPort,
		DstPort:    e.DstPort,
		IpFrag:     e.IpFrag,
		IcmpType:   e.IcmpType,
		IcmpCode:   e.IcmpCode,
		Dscp:       e.Dscp,
		Ttl:        e.Ttl,
	}
	var err error
	if f.SrcIP, err = parseOptPrefix("srcIp", e.SrcIP); err != nil {
		return f, serrors.Wrap("building acl entry", err, "entry", e.Name)
	}
	if f.DstIP, err = parseOptPrefix("dstIp", e.DstIP); err != nil {
		return f, serrors.Wrap("building acl entry", err, "entry", e.Name)
	}
	if e.DstMac != "" {
		mac, err := state.ParseMac(e.DstMac)
		if err != nil {
			return f, serrors.Wrap("parsing acl dst mac", ErrInvalid,
				"entry", e.Name, "mac", e.DstMac, "err", err)
		}
		f.DstMac = &mac
	}
	action := state.MatchAction{
		CounterName:   e.Counter,
		SetDscp:       e.SetDscp,
		IngressMirror: e.IngressMirror,
		EgressMirror:  e.EgressMirror,
		ToCPU:         e.ToCPU,
	}
	if e.Queue != nil {
		action.SendToQueue = &state.SendToQueue{Queue: *e.Queue}
	}
	if len(e.Redirect) > 0 {
		r := &state.RedirectToNextHop{}
		for _, nh := range e.Redirect {
			ip, err := parseAddr("redirect", nh.IP)
			if err != nil {
				return f, serrors.Wrap("building acl entry", err, "entry", e.Name)
			}
			r.NextHops = append(r.NextHops, state.RedirectNextHop{IP: ip, Interface: nh.Interface})
		}
		action.RedirectToNextHop = r
	}
	if action != (state.MatchAction{}) {
		f.Action = &action
	}
	return f, nil
}

func buildQosPolicy(q QosPolicy) state.QosPolicyFields {
	f := state.QosPolicyFields{
		Name:                  q.Name,
		DscpMap:               buildAttributeMap(q.Dscp),
		ExpMap:                buildAttributeMap(q.Exp),
		TrafficClassToQueueID: q.TrafficClassToQueueID,
	}
	if len(f.TrafficClassToQueueID) == 0 {
		f.TrafficClassToQueueID = nil
	}
	return f
}

// buildAttributeMap builds the ingress classification from a traffic class
// to attribute values mapping. The egress mapping uses the lowest attribute
// value of each traffic class.
func buildAttributeMap(m map[state.TrafficClass][]uint8) state.QosAttributeMap {
	var am state.QosAttributeMap
	for _, tc := range sortedKeys(m) {
		attrs := slices.Sorted(slices.Values(m[tc]))
		for _, a := range attrs {
			am.From = append(am.From, state.QosMapEntry{TrafficClass: tc, Attr: a})
		}
		if len(attrs) > 0 {
			am.To = append(am.To, state.QosMapEntry{TrafficClass: tc, Attr: attrs[0]})
		}
	}
	return am
}

func (c *Config) buildMirrors(d *desired) error {
	for _, m := range c.Mirrors {
		f := state.MirrorFields{
			Name:                m.Name,
			EgressPort:          m.EgressPort,
			Dscp:                m.Dscp,
			Truncate:            m.Truncate,
			ConfigHasEgressPort: m.EgressPort != nil,
		}
		if m.DestinationIP != "" {
			ip, err := parseAddr("destinationIp", m.DestinationIP)
			if err != nil {
				return serrors.Wrap("building mirror", err, "mirror", m.Name)
			}
			f.DestinationIP = &ip
		}
		if m.SrcIP != "" {
			ip, err := parseAddr("srcIp", m.SrcIP)
			if err != nil {
				return serrors.Wrap("building mirror", err, "mirror", m.Name)
			}
			f.SrcIP = &ip
		}
		if m.UdpSrcPort != 0 || m.UdpDstPort != 0 {
			f.UdpPorts = &state.TunnelUdpPorts{Src: m.UdpSrcPort, Dst: m.UdpDstPort}
		}
		d.mirrors = append(d.mirrors, f)
	}
	return nil
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
