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

package swconfig_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfab/switchd/agent/aclnexthop"
	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/agent/swconfig"
)

func load(t *testing.T) *swconfig.Config {
	t.Helper()
	cfg, err := swconfig.Load("testdata/switch.yaml")
	require.NoError(t, err)
	return cfg
}

// apply applies cfg to s and publishes the result.
func apply(t *testing.T, cfg *swconfig.Config, s *state.SwitchState) *state.SwitchState {
	t.Helper()
	next, err := swconfig.Apply(cfg)(s)
	require.NoError(t, err)
	if next == nil {
		return nil
	}
	next.Publish()
	return next
}

func has[K any, V state.Entry[K]](m *state.NodeMap[K, V], k K) bool {
	_, ok := m.GetIf(k)
	return ok
}

func empty() *state.SwitchState {
	s := state.NewSwitchState()
	s.Publish()
	return s
}

func TestLoad(t *testing.T) {
	cfg := load(t)
	assert.Len(t, cfg.Ports, 3)
	assert.Equal(t, 30*time.Second, cfg.Interfaces[1].NdpRaInterval)
	assert.Equal(t, 5*time.Minute, cfg.SwitchSettings.L2AgeTimer)
	assert.Equal(t, []uint8{32, 34}, cfg.QosPolicies[0].Dscp[4])

	_, err := swconfig.Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := swconfig.Parse([]byte("ports:\n  - id: 1\n    colour: blue\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := map[string]string{
		"duplicate port": `
ports: [{id: 1}, {id: 1}]`,
		"unknown vlan member": `
vlans: [{id: 10, ports: [{port: 7}]}]`,
		"unknown ingress vlan": `
ports: [{id: 1, ingressVlan: 30}]`,
		"bad interface address": `
vlans: [{id: 10}]
interfaces: [{id: 10, vlan: 10, addresses: [10.0.0.1]}]`,
		"interface without vlan": `
interfaces: [{id: 10, vlan: 10}]`,
		"bad mac": `
vlans: [{id: 10}]
interfaces: [{id: 10, vlan: 10, mac: zz}]`,
		"route without action": `
staticRoutes: [{prefix: 10.0.0.0/8}]`,
		"unknown default qos": `
defaultQosPolicy: gold`,
		"unknown mirror": `
ports: [{id: 1, ingressMirror: span}]`,
		"mirror without target": `
mirrors: [{name: span}]`,
		"bad acl stage": `
acls: [{stage: middle, name: t}]`,
		"bad acl action": `
acls: [{stage: ingress, name: t, entries: [{name: e, action: maybe}]}]`,
		"bad sflow collector": `
sflowCollectors: [192.0.2.1]`,
	}
	for name, raw := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := swconfig.Parse([]byte(raw))
			assert.ErrorIs(t, err, swconfig.ErrInvalid)
		})
	}
}

func TestApply(t *testing.T) {
	s := apply(t, load(t), empty())
	require.NotNil(t, s)

	p1 := s.Ports().Get(1).Fields()
	assert.Equal(t, state.PortEnabled, p1.AdminState)
	assert.Equal(t, state.PortOperDown, p1.OperState)
	assert.Equal(t, state.Speed100G, p1.Speed)
	require.NotNil(t, p1.Transceiver)
	assert.Equal(t, state.TransceiverID(0), *p1.Transceiver)
	assert.Equal(t, []state.VlanMembership{{Vlan: 10}}, p1.Vlans)
	assert.Equal(t, state.PortDisabled, s.Ports().Get(3).Fields().AdminState)

	assert.Equal(t, netip.MustParseAddr("192.0.2.53"), s.Vlans().Get(20).Fields().DhcpV4Relay)
	assert.Equal(t, uint32(30), s.Interfaces().Get(20).Fields().NdpRouterAdvertisement)
	assert.True(t, s.AggregatePorts().Get(100).Fields().HasMember(3))

	fib := s.Fibs().Get(0)
	connected := fib.Routes().Get(netip.MustParsePrefix("10.0.0.0/24")).Fields()
	assert.True(t, connected.Connected)
	assert.True(t, connected.Resolved)
	assert.True(t, has(fib.Routes(), netip.MustParsePrefix("2001:db8::/64")))

	def := fib.Routes().Get(netip.MustParsePrefix("0.0.0.0/0")).Fields()
	assert.True(t, def.Resolved)
	assert.Equal(t, []state.NextHop{{Addr: netip.MustParseAddr("192.0.2.2"), Interface: 20}},
		def.Forward.NextHops)
	drop := fib.Routes().Get(netip.MustParsePrefix("198.51.100.0/24")).Fields()
	assert.True(t, drop.Forward.IsDrop())

	assert.Equal(t, 2, state.AclCount(s))
	assert.Equal(t, "default", s.DefaultDataPlaneQosPolicy().ID())
	tc, ok := s.QosPolicies().Get("default").Fields().DscpMap.TrafficClassFor(34)
	assert.True(t, ok)
	assert.Equal(t, state.TrafficClass(4), tc)
	assert.True(t, s.Mirrors().Get("span0").Fields().ConfigHasEgressPort)
	assert.Equal(t, 1, s.SflowCollectors().Len())
	assert.Equal(t, state.HashCRC16CCITT, s.LoadBalancers().Get(1).Fields().Algorithm)
	assert.Equal(t, uint32(65536), s.BufferPools().Get("lossless").Fields().HeadroomBytes)
	assert.Equal(t, 5*time.Minute, s.SwitchSettings().Fields().L2AgeTimer)
	assert.Equal(t, []state.RxReasonToQueue{{Reason: "arp"}},
		s.ControlPlane().Fields().RxReasonToQueue)

	// Applying the same config again changes nothing.
	assert.Nil(t, apply(t, load(t), s))
}

func TestApplyMinimalDelta(t *testing.T) {
	cfg := load(t)
	s := apply(t, cfg, empty())

	cfg.Ports[2].Enabled = true
	next := apply(t, cfg, s)
	require.NotNil(t, next)
	d := state.NewStateDelta(s, next)
	var changed []state.PortID
	for e := range d.PortsDelta().All() {
		require.True(t, e.IsChanged())
		changed = append(changed, e.New.ID())
	}
	assert.Equal(t, []state.PortID{3}, changed)
	assert.True(t, d.VlansDelta().IsEmpty())
	assert.True(t, d.FibsDelta().IsEmpty())
	assert.False(t, d.AclsChanged())
	assert.Same(t, s.Interfaces(), next.Interfaces())
	assert.Same(t, s.Mirrors(), next.Mirrors())
}

func TestApplyKeepsRuntimeState(t *testing.T) {
	cfg := load(t)
	s := apply(t, cfg, empty())

	// Runtime changes made by other components.
	next := s
	p := s.Ports().Get(1).Modify(&next)
	f := p.Fields()
	f.OperState = state.PortOperUp
	p.SetFields(f)
	mac := state.MacAddr{0x02, 0, 0, 0, 0, 0x10}
	next.Vlans().Get(10).ModifyMacTable(&next).Add(state.NewMacEntry(state.MacEntryFields{
		Mac:  mac,
		Port: state.PhysicalPort(1),
	}))
	bgp := netip.MustParsePrefix("203.0.113.0/24")
	next.Fibs().Get(0).ModifyRoutes(&next).Add(state.NewRoute(state.RouteFields{
		Prefix: bgp,
		Clients: []state.ClientEntry{{
			Client: state.ClientBGP,
			Entry: state.NewNextHopsEntry(state.DistanceEBGP,
				state.NextHop{Addr: netip.MustParseAddr("192.0.2.2"), Interface: 20}),
		}},
		Forward: state.NewNextHopsEntry(state.DistanceEBGP,
			state.NextHop{Addr: netip.MustParseAddr("192.0.2.2"), Interface: 20}),
		Resolved: true,
	}))
	next.Publish()
	resolved, err := (&aclnexthop.Handler{}).Resolve(next)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	resolved.Publish()

	assert.Nil(t, apply(t, cfg, resolved), "runtime state must be kept")

	// A config change keeps the runtime state of unrelated nodes.
	cfg.StaticRoutes = cfg.StaticRoutes[:1]
	after := apply(t, cfg, resolved)
	require.NotNil(t, after)
	assert.Equal(t, state.PortOperUp, after.Ports().Get(1).Fields().OperState)
	assert.True(t, has(after.Vlans().Get(10).MacTable(), mac))
	assert.True(t, has(after.Fibs().Get(0).Routes(), bgp))
	assert.False(t, has(after.Fibs().Get(0).Routes(), netip.MustParsePrefix("198.51.100.0/24")))
	for ref := range state.AllAclEntries(after) {
		if r, ok := ref.Entry.Fields().Redirect(); ok {
			assert.NotEmpty(t, r.Resolved)
		}
	}
}

func TestApplyRemovesEverything(t *testing.T) {
	s := apply(t, load(t), empty())
	next := apply(t, &swconfig.Config{}, s)
	require.NotNil(t, next)
	assert.Zero(t, next.Ports().Len())
	assert.Zero(t, next.Vlans().Len())
	assert.Zero(t, next.Fibs().Get(0).Routes().Len())
	assert.Zero(t, next.AclTableGroups().Len())
	assert.Nil(t, next.DefaultDataPlaneQosPolicy())
}
