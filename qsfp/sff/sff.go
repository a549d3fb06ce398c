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

// Package sff decodes the SFF-8636 memory map of QSFP transceivers.
//
// The memory map consists of a lower page (bytes 0-127) that is always
// accessible and an upper page (bytes 128-255) selected by writing the page
// number to PageSelect.
package sff

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/netfab/switchd/pkg/private/serrors"
)

// Address is the I2C address of the transceiver memory map.
const Address = 0x50

// Offsets in the lower page.
const (
	OffsetIdentifier  = 0
	OffsetStatus      = 2
	OffsetTemperature = 22
	OffsetVcc         = 26
	OffsetTxDisable   = 86
	OffsetPowerCtrl   = 93
	// PageSelect selects the upper page.
	PageSelect = 127
)

// Offsets in upper page 0.
const (
	UpperPageOffset = 128
	PageSize        = 128

	offsetExtIdentifier = 129
	offsetConnector     = 130
	offsetCompliance    = 131
	offsetEncoding      = 139
	offsetBitRate       = 140
	offsetCopperLength  = 146
	offsetDeviceTech    = 147
	offsetVendorName    = 148
	offsetVendorOUI     = 165
	offsetVendorPN      = 168
	offsetVendorRev     = 184
	offsetCCBase        = 191
	offsetOptions       = 192
	offsetVendorSN      = 196
	offsetDateCode      = 212
	offsetCCExt         = 223
)

const (
	statusDataNotReady = 1 << 0
	statusFlatMem      = 1 << 2

	// copperTechnologyMin is the first transmitter technology code denoting
	// a copper cable.
	copperTechnologyMin = 0xA
)

// ErrChecksum indicates an EEPROM checksum mismatch.
var ErrChecksum = serrors.New("checksum mismatch")

// Identifier is the module identifier (SFF-8024).
type Identifier uint8

const (
	IdentifierUnknown Identifier = 0x00
	IdentifierSFP     Identifier = 0x03
	IdentifierQSFP    Identifier = 0x0C
	IdentifierQSFPP   Identifier = 0x0D
	IdentifierQSFP28  Identifier = 0x11
	IdentifierQSFPDD  Identifier = 0x18
)

func (id Identifier) String() string {
	switch id {
	case IdentifierSFP:
		return "SFP"
	case IdentifierQSFP:
		return "QSFP"
	case IdentifierQSFPP:
		return "QSFP+"
	case IdentifierQSFP28:
		return "QSFP28"
	case IdentifierQSFPDD:
		return "QSFP-DD"
	default:
		return fmt.Sprintf("0x%02x", uint8(id))
	}
}

// LowerPage is the decoded lower page.
type LowerPage struct {
	Identifier   Identifier
	DataNotReady bool
	FlatMem      bool
	// Temperature in degrees Celsius.
	Temperature float64
	// Vcc is the supply voltage in volts.
	Vcc float64
	// TxDisable holds the per lane TX disable bits.
	TxDisable uint8
}

// DecodeLowerPage decodes bytes 0-127.
func DecodeLowerPage(b []byte) (LowerPage, error) {
	if len(b) < PageSize {
		return LowerPage{}, serrors.New("lower page too short", "len", len(b))
	}
	return LowerPage{
		Identifier:   Identifier(b[OffsetIdentifier]),
		DataNotReady: b[OffsetStatus]&statusDataNotReady != 0,
		FlatMem:      b[OffsetStatus]&statusFlatMem != 0,
		// signed 16 bit, units of 1/256 degrees Celsius
		Temperature: float64(int16(binary.BigEndian.Uint16(b[OffsetTemperature:]))) / 256,
		// unsigned 16 bit, units of 100 uV
		Vcc:       float64(binary.BigEndian.Uint16(b[OffsetVcc:])) * 100e-6,
		TxDisable: b[OffsetTxDisable] & 0x0f,
	}, nil
}

// Vendor identifies the vendor of a module.
type Vendor struct {
	Name       string
	OUI        [3]byte
	PartNumber string
	Revision   string
	Serial     string
	DateCode   string
}

// UpperPage0 is the decoded upper page 0.
type UpperPage0 struct {
	Identifier    Identifier
	ExtIdentifier uint8
	Connector     uint8
	Compliance    [8]byte
	Encoding      uint8
	// NominalBitRate in units of 100 Mbps.
	NominalBitRate uint8
	// CopperLength is the length of a copper cable in meters.
	CopperLength uint8
	// DeviceTechnology holds the transmitter technology in the upper nibble.
	DeviceTechnology uint8
	Options          [4]byte
	Vendor           Vendor
	CCBase           uint8
	CCExt            uint8
}

// DecodeUpperPage0 decodes upper page 0. b holds bytes 128-255.
func DecodeUpperPage0(b []byte) (UpperPage0, error) {
	if len(b) < PageSize {
		return UpperPage0{}, serrors.New("upper page too short", "len", len(b))
	}
	at := func(off int) byte { return b[off-UpperPageOffset] }
	str := func(off, n int) string {
		return string(bytes.TrimRight(b[off-UpperPageOffset:off-UpperPageOffset+n], " \x00"))
	}
	p := UpperPage0{
		Identifier:       Identifier(at(UpperPageOffset)),
		ExtIdentifier:    at(offsetExtIdentifier),
		Connector:        at(offsetConnector),
		Encoding:         at(offsetEncoding),
		NominalBitRate:   at(offsetBitRate),
		CopperLength:     at(offsetCopperLength),
		DeviceTechnology: at(offsetDeviceTech),
		Vendor: Vendor{
			Name:       str(offsetVendorName, 16),
			PartNumber: str(offsetVendorPN, 16),
			Revision:   str(offsetVendorRev, 2),
			Serial:     str(offsetVendorSN, 16),
			DateCode:   str(offsetDateCode, 8),
		},
		CCBase: at(offsetCCBase),
		CCExt:  at(offsetCCExt),
	}
	copy(p.Compliance[:], b[offsetCompliance-UpperPageOffset:])
	copy(p.Options[:], b[offsetOptions-UpperPageOffset:])
	copy(p.Vendor.OUI[:], b[offsetVendorOUI-UpperPageOffset:])
	return p, nil
}

// TransmitterTechnology returns the transmitter technology code.
func (p UpperPage0) TransmitterTechnology() uint8 {
	return p.DeviceTechnology >> 4
}

// IsCopper returns whether the module is a copper cable.
func (p UpperPage0) IsCopper() bool {
	return p.TransmitterTechnology() >= copperTechnologyMin
}

// Encode returns the 128 byte image of the page with valid checksums.
func (p UpperPage0) Encode() []byte {
	b := make([]byte, PageSize)
	set := func(off int, v byte) { b[off-UpperPageOffset] = v }
	str := func(off, n int, s string) {
		field := b[off-UpperPageOffset : off-UpperPageOffset+n]
		for i := range field {
			field[i] = ' '
		}
		copy(field, s)
	}
	set(UpperPageOffset, byte(p.Identifier))
	set(offsetExtIdentifier, p.ExtIdentifier)
	set(offsetConnector, p.Connector)
	copy(b[offsetCompliance-UpperPageOffset:], p.Compliance[:])
	set(offsetEncoding, p.Encoding)
	set(offsetBitRate, p.NominalBitRate)
	set(offsetCopperLength, p.CopperLength)
	set(offsetDeviceTech, p.DeviceTechnology)
	str(offsetVendorName, 16, p.Vendor.Name)
	copy(b[offsetVendorOUI-UpperPageOffset:], p.Vendor.OUI[:])
	str(offsetVendorPN, 16, p.Vendor.PartNumber)
	str(offsetVendorRev, 2, p.Vendor.Revision)
	copy(b[offsetOptions-UpperPageOffset:], p.Options[:])
	str(offsetVendorSN, 16, p.Vendor.Serial)
	str(offsetDateCode, 8, p.Vendor.DateCode)
	set(offsetCCBase, Checksum(b[:offsetCCBase-UpperPageOffset]))
	set(offsetCCExt, Checksum(b[offsetOptions-UpperPageOffset:offsetCCExt-UpperPageOffset]))
	return b
}

// Checksum returns the low order 8 bits of the sum of b.
func Checksum(b []byte) uint8 {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return sum
}

// VerifyChecksums verifies CC_BASE (bytes 128-190) and CC_EXT (bytes
// 192-222) of upper page 0.
func VerifyChecksums(upper []byte) error {
	if len(upper) < PageSize {
		return serrors.New("upper page too short", "len", len(upper))
	}
	var errs serrors.List
	base := Checksum(upper[:offsetCCBase-UpperPageOffset])
	if want := upper[offsetCCBase-UpperPageOffset]; base != want {
		errs = append(errs, serrors.Wrap("CC_BASE", ErrChecksum,
			"expected", want, "actual", base))
	}
	ext := Checksum(upper[offsetOptions-UpperPageOffset : offsetCCExt-UpperPageOffset])
	if want := upper[offsetCCExt-UpperPageOffset]; ext != want {
		errs = append(errs, serrors.Wrap("CC_EXT", ErrChecksum,
			"expected", want, "actual", ext))
	}
	return errs.ToError()
}
