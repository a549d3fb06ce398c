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
	"errors"
	"fmt"
	"maps"
	"math"
	"net/netip"
	"strconv"

	"github.com/netfab/switchd/pkg/private/serrors"
)

// Dynamic mirrors exist in two encodings. The legacy one stores addresses as
// strings, the egress port as a decimal string and uses empty objects for
// absent values. The typed one stores addresses as {"addr": bytes}, the
// egress port as an integer and omits absent values.
const (
	mirrorName                = "name"
	mirrorEgressPort          = "egressPort"
	mirrorDestinationIP       = "destinationIp"
	mirrorSrcIP               = "srcIp"
	mirrorDstIP               = "dstIp"
	mirrorSrcMac              = "srcMac"
	mirrorDstMac              = "dstMac"
	mirrorTunnel              = "tunnel"
	mirrorConfigHasEgressPort = "configHasEgressPort"
	mirrorIsResolved          = "isResolved"
	mirrorDscp                = "dscp"
	mirrorUdpSrcPort          = "udpSrcPort"
	mirrorUdpDstPort          = "udpDstPort"
	mirrorTruncate            = "truncate"
	mirrorTTL                 = "ttl"
	binaryAddr                = "addr"
)

// ErrMalformed indicates a persisted state document that cannot be decoded.
var ErrMalformed = errors.New("malformed state document")

// MirrorToLegacy returns the legacy dynamic encoding of f.
func MirrorToLegacy(f MirrorFields) map[string]any {
	m := map[string]any{
		mirrorName:                f.Name,
		mirrorConfigHasEgressPort: f.ConfigHasEgressPort,
		mirrorDscp:                int64(f.Dscp),
		mirrorTruncate:            f.Truncate,
		mirrorIsResolved:          f.IsResolved(),
	}
	if f.EgressPort != nil {
		m[mirrorEgressPort] = strconv.FormatUint(uint64(*f.EgressPort), 10)
	} else {
		m[mirrorEgressPort] = map[string]any{}
	}
	if f.DestinationIP != nil {
		m[mirrorDestinationIP] = f.DestinationIP.String()
	} else {
		m[mirrorDestinationIP] = map[string]any{}
	}
	if f.SrcIP != nil {
		m[mirrorSrcIP] = f.SrcIP.String()
	}
	if f.ResolvedTunnel != nil {
		m[mirrorTunnel] = tunnelToDynamic(*f.ResolvedTunnel, addrToString)
	} else {
		m[mirrorTunnel] = map[string]any{}
	}
	if f.UdpPorts != nil {
		m[mirrorUdpSrcPort] = int64(f.UdpPorts.Src)
		m[mirrorUdpDstPort] = int64(f.UdpPorts.Dst)
	}
	return m
}

// MirrorFromLegacy decodes the legacy dynamic encoding.
func MirrorFromLegacy(m map[string]any) (MirrorFields, error) {
	f, err := mirrorCommonFromDynamic(m)
	if err != nil {
		return MirrorFields{}, err
	}
	if v := m[mirrorEgressPort]; !isEmptyDynamic(v) {
		p, err := asInt(v)
		if err != nil {
			return MirrorFields{}, malformed(mirrorEgressPort, err)
		}
		id := PortID(p)
		f.EgressPort = &id
	}
	if v := m[mirrorDestinationIP]; !isEmptyDynamic(v) {
		a, err := addrFromString(v)
		if err != nil {
			return MirrorFields{}, malformed(mirrorDestinationIP, err)
		}
		f.DestinationIP = &a
	}
	if v, ok := m[mirrorSrcIP]; ok {
		a, err := addrFromString(v)
		if err != nil {
			return MirrorFields{}, malformed(mirrorSrcIP, err)
		}
		f.SrcIP = &a
	}
	if v := m[mirrorTunnel]; !isEmptyDynamic(v) {
		t, err := tunnelFromDynamic(v, addrFromString)
		if err != nil {
			return MirrorFields{}, err
		}
		f.ResolvedTunnel = &t
	}
	// Without a resolved tunnel the UDP ports are only stored on the mirror
	// itself.
	if f.ResolvedTunnel != nil {
		f.UdpPorts = clonePtr(f.ResolvedTunnel.UdpPorts)
	} else if f.UdpPorts, err = udpPortsFromDynamic(m); err != nil {
		return MirrorFields{}, err
	}
	return f, nil
}

// MirrorToTypedDynamic returns the typed dynamic encoding of f.
func MirrorToTypedDynamic(f MirrorFields) map[string]any {
	m := map[string]any{
		mirrorName:                f.Name,
		mirrorConfigHasEgressPort: f.ConfigHasEgressPort,
		mirrorDscp:                int64(f.Dscp),
		mirrorTruncate:            f.Truncate,
		mirrorIsResolved:          f.IsResolved(),
	}
	if f.EgressPort != nil {
		m[mirrorEgressPort] = int64(*f.EgressPort)
	}
	if f.DestinationIP != nil {
		m[mirrorDestinationIP] = addrToBinary(*f.DestinationIP)
	}
	if f.SrcIP != nil {
		m[mirrorSrcIP] = addrToBinary(*f.SrcIP)
	}
	if f.UdpPorts != nil {
		m[mirrorUdpSrcPort] = int64(f.UdpPorts.Src)
		m[mirrorUdpDstPort] = int64(f.UdpPorts.Dst)
	}
	if f.ResolvedTunnel != nil {
		m[mirrorTunnel] = tunnelToDynamic(*f.ResolvedTunnel, addrToBinary)
	}
	return m
}

// MirrorFromTypedDynamic decodes the typed dynamic encoding.
func MirrorFromTypedDynamic(m map[string]any) (MirrorFields, error) {
	f, err := mirrorCommonFromDynamic(m)
	if err != nil {
		return MirrorFields{}, err
	}
	if v, ok := m[mirrorEgressPort]; ok {
		p, err := asInt(v)
		if err != nil {
			return MirrorFields{}, malformed(mirrorEgressPort, err)
		}
		id := PortID(p)
		f.EgressPort = &id
	}
	if v, ok := m[mirrorDestinationIP]; ok {
		a, err := addrFromBinary(v)
		if err != nil {
			return MirrorFields{}, malformed(mirrorDestinationIP, err)
		}
		f.DestinationIP = &a
	}
	if v, ok := m[mirrorSrcIP]; ok {
		a, err := addrFromBinary(v)
		if err != nil {
			return MirrorFields{}, malformed(mirrorSrcIP, err)
		}
		f.SrcIP = &a
	}
	if f.UdpPorts, err = udpPortsFromDynamic(m); err != nil {
		return MirrorFields{}, err
	}
	if v, ok := m[mirrorTunnel]; ok {
		t, err := tunnelFromDynamic(v, addrFromBinary)
		if err != nil {
			return MirrorFields{}, err
		}
		f.ResolvedTunnel = &t
	}
	return f, nil
}

// MigrateMirrorToTyped translates a mirror from the legacy to the typed
// dynamic encoding. The input is not modified.
func MigrateMirrorToTyped(legacy map[string]any) (map[string]any, error) {
	m := maps.Clone(legacy)
	if v, ok := m[mirrorSrcIP]; ok {
		b, err := translateToBinary(v)
		if err != nil {
			return nil, malformed(mirrorSrcIP, err)
		}
		m[mirrorSrcIP] = b
	}
	if v, ok := m[mirrorDestinationIP]; ok {
		if isEmptyDynamic(v) {
			delete(m, mirrorDestinationIP)
		} else {
			b, err := translateToBinary(v)
			if err != nil {
				return nil, malformed(mirrorDestinationIP, err)
			}
			m[mirrorDestinationIP] = b
		}
	}
	if v, ok := m[mirrorEgressPort]; ok {
		if isEmptyDynamic(v) {
			delete(m, mirrorEgressPort)
		} else {
			p, err := asInt(v)
			if err != nil {
				return nil, malformed(mirrorEgressPort, err)
			}
			m[mirrorEgressPort] = p
		}
	}
	if v, ok := m[mirrorTunnel]; ok {
		if isEmptyDynamic(v) {
			delete(m, mirrorTunnel)
		} else {
			t, err := translateTunnel(v, translateToBinary)
			if err != nil {
				return nil, err
			}
			m[mirrorTunnel] = t
		}
	}
	if err := normalizeInts(m, mirrorDscp, mirrorUdpSrcPort, mirrorUdpDstPort); err != nil {
		return nil, err
	}
	return m, nil
}

// MigrateMirrorFromTyped translates a mirror from the typed to the legacy
// dynamic encoding. The input is not modified.
func MigrateMirrorFromTyped(typed map[string]any) (map[string]any, error) {
	m := maps.Clone(typed)
	// Local mirrors are always resolved.
	isResolved := true
	if v, ok := m[mirrorSrcIP]; ok {
		s, err := translateToString(v)
		if err != nil {
			return nil, malformed(mirrorSrcIP, err)
		}
		m[mirrorSrcIP] = s
	}
	if v, ok := m[mirrorDestinationIP]; ok {
		isResolved = false
		s, err := translateToString(v)
		if err != nil {
			return nil, malformed(mirrorDestinationIP, err)
		}
		m[mirrorDestinationIP] = s
	} else {
		m[mirrorDestinationIP] = map[string]any{}
	}
	if v, ok := m[mirrorTunnel]; ok {
		t, err := translateTunnel(v, translateToString)
		if err != nil {
			return nil, err
		}
		m[mirrorTunnel] = t
		isResolved = true
	} else {
		m[mirrorTunnel] = map[string]any{}
	}
	if v, ok := m[mirrorEgressPort]; ok {
		p, err := asInt(v)
		if err != nil {
			return nil, malformed(mirrorEgressPort, err)
		}
		m[mirrorEgressPort] = strconv.FormatInt(p, 10)
	} else {
		m[mirrorEgressPort] = map[string]any{}
	}
	m[mirrorIsResolved] = isResolved
	return m, nil
}

func mirrorCommonFromDynamic(m map[string]any) (MirrorFields, error) {
	name, ok := m[mirrorName].(string)
	if !ok {
		return MirrorFields{}, malformed(mirrorName, nil)
	}
	f := MirrorFields{Name: name, Dscp: DefaultMirrorDscp}
	if v, ok := m[mirrorConfigHasEgressPort]; ok {
		if f.ConfigHasEgressPort, ok = v.(bool); !ok {
			return MirrorFields{}, malformed(mirrorConfigHasEgressPort, nil)
		}
	}
	if v, ok := m[mirrorDscp]; ok {
		d, err := asInt(v)
		if err != nil || d < 0 || d > math.MaxUint8 {
			return MirrorFields{}, malformed(mirrorDscp, err)
		}
		f.Dscp = uint8(d)
	}
	if v, ok := m[mirrorTruncate]; ok {
		if f.Truncate, ok = v.(bool); !ok {
			return MirrorFields{}, malformed(mirrorTruncate, nil)
		}
	}
	return f, nil
}

func udpPortsFromDynamic(m map[string]any) (*TunnelUdpPorts, error) {
	src, okSrc := m[mirrorUdpSrcPort]
	dst, okDst := m[mirrorUdpDstPort]
	if !okSrc || !okDst {
		return nil, nil
	}
	s, err := asInt(src)
	if err != nil {
		return nil, malformed(mirrorUdpSrcPort, err)
	}
	d, err := asInt(dst)
	if err != nil {
		return nil, malformed(mirrorUdpDstPort, err)
	}
	return &TunnelUdpPorts{Src: uint32(s), Dst: uint32(d)}, nil
}

func tunnelToDynamic(t MirrorTunnel, addr func(netip.Addr) any) map[string]any {
	m := map[string]any{
		mirrorSrcIP:  addr(t.SrcIP),
		mirrorDstIP:  addr(t.DstIP),
		mirrorSrcMac: t.SrcMac.String(),
		mirrorDstMac: t.DstMac.String(),
		mirrorTTL:    int64(t.TTL),
	}
	if t.UdpPorts != nil {
		m[mirrorUdpSrcPort] = int64(t.UdpPorts.Src)
		m[mirrorUdpDstPort] = int64(t.UdpPorts.Dst)
	}
	return m
}

func tunnelFromDynamic(v any, addr func(any) (netip.Addr, error)) (MirrorTunnel, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return MirrorTunnel{}, malformed(mirrorTunnel, nil)
	}
	var t MirrorTunnel
	var err error
	if t.SrcIP, err = addr(m[mirrorSrcIP]); err != nil {
		return MirrorTunnel{}, malformed(mirrorTunnel+"."+mirrorSrcIP, err)
	}
	if t.DstIP, err = addr(m[mirrorDstIP]); err != nil {
		return MirrorTunnel{}, malformed(mirrorTunnel+"."+mirrorDstIP, err)
	}
	if t.SrcMac, err = macFromDynamic(m[mirrorSrcMac]); err != nil {
		return MirrorTunnel{}, malformed(mirrorTunnel+"."+mirrorSrcMac, err)
	}
	if t.DstMac, err = macFromDynamic(m[mirrorDstMac]); err != nil {
		return MirrorTunnel{}, malformed(mirrorTunnel+"."+mirrorDstMac, err)
	}
	t.TTL = DefaultMirrorTunnelTTL
	if v, ok := m[mirrorTTL]; ok {
		ttl, err := asInt(v)
		if err != nil || ttl < 0 || ttl > math.MaxUint8 {
			return MirrorTunnel{}, malformed(mirrorTunnel+"."+mirrorTTL, err)
		}
		t.TTL = uint8(ttl)
	}
	if t.UdpPorts, err = udpPortsFromDynamic(m); err != nil {
		return MirrorTunnel{}, err
	}
	return t, nil
}

func translateTunnel(v any, translate func(any) (any, error)) (map[string]any, error) {
	t, ok := v.(map[string]any)
	if !ok {
		return nil, malformed(mirrorTunnel, nil)
	}
	t = maps.Clone(t)
	for _, k := range []string{mirrorSrcIP, mirrorDstIP} {
		a, err := translate(t[k])
		if err != nil {
			return nil, malformed(mirrorTunnel+"."+k, err)
		}
		t[k] = a
	}
	if err := normalizeInts(t, mirrorTTL, mirrorUdpSrcPort, mirrorUdpDstPort); err != nil {
		return nil, err
	}
	return t, nil
}

func translateToBinary(v any) (any, error) {
	a, err := addrFromString(v)
	if err != nil {
		return nil, err
	}
	return addrToBinary(a), nil
}

func translateToString(v any) (any, error) {
	a, err := addrFromBinary(v)
	if err != nil {
		return nil, err
	}
	return a.String(), nil
}

func addrToString(a netip.Addr) any {
	return a.String()
}

func addrToBinary(a netip.Addr) any {
	return map[string]any{binaryAddr: a.AsSlice()}
}

func addrFromString(v any) (netip.Addr, error) {
	s, ok := v.(string)
	if !ok {
		return netip.Addr{}, serrors.New("address is not a string", "type", typeName(v))
	}
	return netip.ParseAddr(s)
}

func addrFromBinary(v any) (netip.Addr, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return netip.Addr{}, serrors.New("address is not an object", "type", typeName(v))
	}
	b, ok := m[binaryAddr].([]byte)
	if !ok {
		return netip.Addr{}, serrors.New("address bytes missing", "type", typeName(m[binaryAddr]))
	}
	a, ok := netip.AddrFromSlice(b)
	if !ok {
		return netip.Addr{}, serrors.New("invalid address length", "len", len(b))
	}
	return a, nil
}

func macFromDynamic(v any) (MacAddr, error) {
	s, ok := v.(string)
	if !ok {
		return MacAddr{}, serrors.New("MAC is not a string", "type", typeName(v))
	}
	return ParseMac(s)
}

// isEmptyDynamic mirrors the emptiness of dynamic values: absent values,
// empty objects, empty arrays and empty strings are empty.
func isEmptyDynamic(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case string:
		return v == ""
	default:
		return false
	}
}

// asInt converts the numeric representations produced by the JSON and CBOR
// decoders to int64. Decimal strings are accepted as well.
func asInt(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, serrors.New("integer overflow", "value", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, serrors.New("not an integer", "value", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, serrors.New("not a number", "type", typeName(v))
	}
}

func normalizeInts(m map[string]any, keys ...string) error {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		i, err := asInt(v)
		if err != nil {
			return malformed(k, err)
		}
		m[k] = i
	}
	return nil
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

func malformed(field string, cause error) error {
	return serrors.Join(ErrMalformed, cause, "field", field)
}
