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
	"bytes"
	"net"

	"github.com/netfab/switchd/pkg/private/serrors"
)

type (
	PortID          uint32
	AggregatePortID uint32
	VlanID          uint16
	InterfaceID     uint32
	RouterID        uint32
	TransceiverID   uint32
	Label           uint32
	LoadBalancerID  uint8
)

// AclStage is the pipeline stage at which an ACL table group is applied.
type AclStage string

const (
	AclStageIngress AclStage = "ingress"
	AclStageEgress  AclStage = "egress"
)

// MacAddr is a 48-bit MAC address. Unlike net.HardwareAddr it is comparable
// and can be used as a map key.
type MacAddr [6]byte

// ParseMac parses s in any of the formats accepted by net.ParseMAC.
func ParseMac(s string) (MacAddr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MacAddr{}, err
	}
	if len(hw) != 6 {
		return MacAddr{}, serrors.New("unsupported MAC length", "mac", s, "len", len(hw))
	}
	var m MacAddr
	copy(m[:], hw)
	return m, nil
}

// MustParseMac is like ParseMac but panics on error.
func MustParseMac(s string) MacAddr {
	m, err := ParseMac(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m MacAddr) String() string {
	return net.HardwareAddr(m[:]).String()
}

func (m MacAddr) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MacAddr) UnmarshalText(b []byte) error {
	v, err := ParseMac(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func compareMac(a, b MacAddr) int {
	return bytes.Compare(a[:], b[:])
}
