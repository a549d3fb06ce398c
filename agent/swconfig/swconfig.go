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

// Package swconfig loads the declarative switch configuration and applies it
// to the switch state.
//
// The configuration is a YAML document:
//
//	ports:
//	  - id: 1
//	    name: eth1/1/1
//	    enabled: true
//	    speed: 100000
//	    profile: PROFILE_100G_4_NRZ_CL91_OPTICAL
//	    transceiver: 0
//	    ingressVlan: 10
//	vlans:
//	  - id: 10
//	    name: servers
//	    interface: 10
//	    ports: [{port: 1}]
//	interfaces:
//	  - id: 10
//	    vlan: 10
//	    mac: 02:00:00:00:00:01
//	    addresses: [10.0.0.1/24]
//	staticRoutes:
//	  - prefix: 0.0.0.0/0
//	    nexthops: [10.0.0.254]
package swconfig

import (
	"errors"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/private/serrors"
)

// ErrInvalid indicates an invalid configuration.
var ErrInvalid = errors.New("invalid switch configuration")

// Config is the desired switch configuration.
type Config struct {
	Ports            []Port          `yaml:"ports"`
	AggregatePorts   []AggregatePort `yaml:"aggregatePorts"`
	Vlans            []Vlan          `yaml:"vlans"`
	Interfaces       []Interface     `yaml:"interfaces"`
	StaticRoutes     []StaticRoute   `yaml:"staticRoutes"`
	Acls             []AclTable      `yaml:"acls"`
	QosPolicies      []QosPolicy     `yaml:"qosPolicies"`
	DefaultQosPolicy string          `yaml:"defaultQosPolicy"`
	Mirrors          []Mirror        `yaml:"mirrors"`
	SflowCollectors  []string        `yaml:"sflowCollectors"`
	LoadBalancers    []LoadBalancer  `yaml:"loadBalancers"`
	BufferPools      []BufferPool    `yaml:"bufferPools"`
	SwitchSettings   SwitchSettings  `yaml:"switchSettings"`
	ControlPlane     ControlPlane    `yaml:"controlPlane"`
}

type Port struct {
	ID            state.PortID         `yaml:"id"`
	Name          string               `yaml:"name"`
	Description   string               `yaml:"description"`
	Enabled       bool                 `yaml:"enabled"`
	Speed         state.PortSpeed      `yaml:"speed"`
	Profile       string               `yaml:"profile"`
	Transceiver   *state.TransceiverID `yaml:"transceiver"`
	IngressVlan   state.VlanID         `yaml:"ingressVlan"`
	QosPolicy     string               `yaml:"qosPolicy"`
	SflowIngress  uint64               `yaml:"sflowIngressRate"`
	SflowEgress   uint64               `yaml:"sflowEgressRate"`
	IngressMirror string               `yaml:"ingressMirror"`
	EgressMirror  string               `yaml:"egressMirror"`
	Fec           state.FecMode        `yaml:"fec"`
	MaxFrameSize  uint32               `yaml:"maxFrameSize"`
	Loopback      string               `yaml:"loopback"`
}

type AggregatePort struct {
	ID               state.AggregatePortID `yaml:"id"`
	Name             string                `yaml:"name"`
	Description      string                `yaml:"description"`
	SystemPriority   uint16                `yaml:"systemPriority"`
	MinimumLinkCount uint8                 `yaml:"minimumLinkCount"`
	Members          []AggregateMember     `yaml:"members"`
	IngressVlan      state.VlanID          `yaml:"ingressVlan"`
}

type AggregateMember struct {
	Port     state.PortID `yaml:"port"`
	Priority uint16       `yaml:"priority"`
	Rate     string       `yaml:"rate"`
	Enabled  *bool        `yaml:"enabled"`
}

type Vlan struct {
	ID          state.VlanID      `yaml:"id"`
	Name        string            `yaml:"name"`
	Interface   state.InterfaceID `yaml:"interface"`
	Ports       []VlanPort        `yaml:"ports"`
	DhcpV4Relay string            `yaml:"dhcpV4Relay"`
	DhcpV6Relay string            `yaml:"dhcpV6Relay"`
}

type VlanPort struct {
	Port   state.PortID `yaml:"port"`
	Tagged bool         `yaml:"tagged"`
}

type Interface struct {
	ID        state.InterfaceID `yaml:"id"`
	Name      string            `yaml:"name"`
	Vrf       state.RouterID    `yaml:"vrf"`
	Vlan      state.VlanID      `yaml:"vlan"`
	Mac       string            `yaml:"mac"`
	Addresses []string          `yaml:"addresses"`
	MTU       uint32            `yaml:"mtu"`
	// NdpRaInterval enables router advertisements.
	NdpRaInterval time.Duration `yaml:"ndpRaInterval"`
}

type StaticRoute struct {
	Vrf      state.RouterID `yaml:"vrf"`
	Prefix   string         `yaml:"prefix"`
	NextHops []string       `yaml:"nexthops"`
	Drop     bool           `yaml:"drop"`
	ToCPU    bool           `yaml:"toCpu"`
}

type AclTable struct {
	Stage      state.AclStage `yaml:"stage"`
	Name       string         `yaml:"name"`
	Priority   int32          `yaml:"priority"`
	Qualifiers []string       `yaml:"qualifiers"`
	Actions    []string       `yaml:"actions"`
	Entries    []AclEntry     `yaml:"entries"`
}

type AclEntry struct {
	Name      string              `yaml:"name"`
	Priority  int32               `yaml:"priority"`
	Action    state.AclActionType `yaml:"action"`
	SrcIP     string              `yaml:"srcIp"`
	DstIP     string              `yaml:"dstIp"`
	Proto     *uint8              `yaml:"proto"`
	L4SrcPort *uint16             `yaml:"l4SrcPort"`
	L4DstPort *uint16             `yaml:"l4DstPort"`
	SrcPort   *state.PortID       `yaml:"srcPort"`
	DstPort   *state.PortID       `yaml:"dstPort"`
	IpFrag    state.IpFragMatch   `yaml:"ipFrag"`
	IcmpType  *uint8              `yaml:"icmpType"`
	IcmpCode  *uint8              `yaml:"icmpCode"`
	Dscp      *uint8              `yaml:"dscp"`
	Ttl       *uint8              `yaml:"ttl"`
	DstMac    string              `yaml:"dstMac"`

	Counter       string            `yaml:"counter"`
	Queue         *uint8            `yaml:"queue"`
	SetDscp       *uint8            `yaml:"setDscp"`
	IngressMirror string            `yaml:"ingressMirror"`
	EgressMirror  string            `yaml:"egressMirror"`
	ToCPU         bool              `yaml:"toCpu"`
	Redirect      []RedirectNextHop `yaml:"redirect"`
}

type RedirectNextHop struct {
	IP        string             `yaml:"ip"`
	Interface *state.InterfaceID `yaml:"interface"`
}

type QosPolicy struct {
	Name string `yaml:"name"`
	// Dscp maps traffic classes to the DSCP values classified into them.
	Dscp map[state.TrafficClass][]uint8 `yaml:"dscp"`
	// Exp maps traffic classes to the MPLS EXP values classified into them.
	Exp                   map[state.TrafficClass][]uint8 `yaml:"exp"`
	TrafficClassToQueueID map[state.TrafficClass]uint8   `yaml:"trafficClassToQueue"`
}

type Mirror struct {
	Name          string        `yaml:"name"`
	EgressPort    *state.PortID `yaml:"egressPort"`
	DestinationIP string        `yaml:"destinationIp"`
	SrcIP         string        `yaml:"srcIp"`
	UdpSrcPort    uint32        `yaml:"udpSrcPort"`
	UdpDstPort    uint32        `yaml:"udpDstPort"`
	Dscp          uint8         `yaml:"dscp"`
	Truncate      bool          `yaml:"truncate"`
}

type LoadBalancer struct {
	ID              state.LoadBalancerID `yaml:"id"`
	Algorithm       state.HashAlgorithm  `yaml:"algorithm"`
	Seed            uint32               `yaml:"seed"`
	IPv4Fields      []string             `yaml:"ipv4Fields"`
	IPv6Fields      []string             `yaml:"ipv6Fields"`
	TransportFields []string             `yaml:"transportFields"`
	MplsFields      []string             `yaml:"mplsFields"`
}

type BufferPool struct {
	Name          string `yaml:"name"`
	SharedBytes   uint32 `yaml:"sharedBytes"`
	HeadroomBytes uint32 `yaml:"headroomBytes"`
	ReservedBytes uint32 `yaml:"reservedBytes"`
}

type SwitchSettings struct {
	L2LearningMode     state.L2LearningMode `yaml:"l2LearningMode"`
	QcmEnable          bool                 `yaml:"qcmEnable"`
	PtpTcEnable        bool                 `yaml:"ptpTcEnable"`
	L2AgeTimer         time.Duration        `yaml:"l2AgeTimer"`
	MaxRouteCounterIDs uint32               `yaml:"maxRouteCounterIds"`
	ArpTimeout         time.Duration        `yaml:"arpTimeout"`
	NdpTimeout         time.Duration        `yaml:"ndpTimeout"`
	MaxNeighborProbes  uint32               `yaml:"maxNeighborProbes"`
	StaleEntryInterval time.Duration        `yaml:"staleEntryInterval"`
	BlockedNeighbors   []BlockedNeighbor    `yaml:"blockedNeighbors"`
}

type BlockedNeighbor struct {
	Vlan state.VlanID `yaml:"vlan"`
	IP   string       `yaml:"ip"`
}

type ControlPlane struct {
	Queues          []state.CPUQueue `yaml:"queues"`
	RxReasonToQueue map[string]uint8 `yaml:"rxReasonToQueue"`
	QosPolicy       string           `yaml:"qosPolicy"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.Wrap("reading switch config", err, "path", path)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, serrors.Wrap("loading switch config", err, "path", path)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, serrors.Wrap("parsing switch config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for duplicate keys, malformed addresses
// and dangling references.
func (c *Config) Validate() error {
	// Building the nodes parses every address.
	if _, err := c.build(); err != nil {
		return err
	}
	ports := make(map[state.PortID]bool, len(c.Ports))
	for _, p := range c.Ports {
		if ports[p.ID] {
			return invalid("duplicate port", "port", p.ID)
		}
		ports[p.ID] = true
	}
	vlans := make(map[state.VlanID]bool, len(c.Vlans))
	for _, v := range c.Vlans {
		if vlans[v.ID] {
			return invalid("duplicate vlan", "vlan", v.ID)
		}
		vlans[v.ID] = true
		for _, m := range v.Ports {
			if !ports[m.Port] {
				return invalid("vlan member is not a configured port",
					"vlan", v.ID, "port", m.Port)
			}
		}
	}
	qos := make(map[string]bool, len(c.QosPolicies))
	for _, q := range c.QosPolicies {
		if qos[q.Name] {
			return invalid("duplicate qos policy", "policy", q.Name)
		}
		qos[q.Name] = true
	}
	if c.DefaultQosPolicy != "" && !qos[c.DefaultQosPolicy] {
		return invalid("unknown default qos policy", "policy", c.DefaultQosPolicy)
	}
	mirrors := make(map[string]bool, len(c.Mirrors))
	for _, m := range c.Mirrors {
		if mirrors[m.Name] {
			return invalid("duplicate mirror", "mirror", m.Name)
		}
		mirrors[m.Name] = true
		if m.EgressPort != nil && !ports[*m.EgressPort] {
			return invalid("mirror egress port is not a configured port",
				"mirror", m.Name, "port", *m.EgressPort)
		}
		if m.EgressPort == nil && m.DestinationIP == "" {
			return invalid("mirror needs an egress port or a destination",
				"mirror", m.Name)
		}
	}
	for _, p := range c.Ports {
		if p.IngressVlan != 0 && !vlans[p.IngressVlan] {
			return invalid("unknown ingress vlan", "port", p.ID, "vlan", p.IngressVlan)
		}
		if p.QosPolicy != "" && !qos[p.QosPolicy] {
			return invalid("unknown qos policy", "port", p.ID, "policy", p.QosPolicy)
		}
		for _, m := range []string{p.IngressMirror, p.EgressMirror} {
			if m != "" && !mirrors[m] {
				return invalid("unknown mirror", "port", p.ID, "mirror", m)
			}
		}
	}
	intfs := make(map[state.InterfaceID]bool, len(c.Interfaces))
	for _, i := range c.Interfaces {
		if intfs[i.ID] {
			return invalid("duplicate interface", "interface", i.ID)
		}
		intfs[i.ID] = true
		if !vlans[i.Vlan] {
			return invalid("unknown interface vlan", "interface", i.ID, "vlan", i.Vlan)
		}
	}
	for _, a := range c.AggregatePorts {
		for _, m := range a.Members {
			if !ports[m.Port] {
				return invalid("aggregate member is not a configured port",
					"aggregate", a.ID, "port", m.Port)
			}
		}
	}
	for _, t := range c.Acls {
		if t.Stage != state.AclStageIngress && t.Stage != state.AclStageEgress {
			return invalid("unknown acl stage", "table", t.Name, "stage", t.Stage)
		}
		for _, e := range t.Entries {
			if e.Action != state.AclPermit && e.Action != state.AclDeny {
				return invalid("unknown acl action", "entry", e.Name, "action", e.Action)
			}
		}
	}
	return nil
}

func invalid(msg string, errCtx ...any) error {
	return serrors.Wrap(msg, ErrInvalid, errCtx...)
}

func parseAddr(what, s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, serrors.Wrap("parsing address", ErrInvalid,
			"field", what, "value", s, "err", err)
	}
	return a, nil
}

func parseOptAddr(what, s string) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, nil
	}
	return parseAddr(what, s)
}

func parsePrefix(what, s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, serrors.Wrap("parsing prefix", ErrInvalid,
			"field", what, "value", s, "err", err)
	}
	return p, nil
}

func parseOptPrefix(what, s string) (netip.Prefix, error) {
	if s == "" {
		return netip.Prefix{}, nil
	}
	return parsePrefix(what, s)
}
