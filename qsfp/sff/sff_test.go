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

package sff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfab/switchd/qsfp/sff"
)

func testPage() sff.UpperPage0 {
	return sff.UpperPage0{
		Identifier:       sff.IdentifierQSFP28,
		ExtIdentifier:    0x10,
		Connector:        0x0c,
		Compliance:       [8]byte{0x80},
		NominalBitRate:   0xff,
		DeviceTechnology: 0x00,
		Options:          [4]byte{0, 0, 0x07, 0xd0},
		Vendor: sff.Vendor{
			Name:       "FINISAR CORP",
			OUI:        [3]byte{0x00, 0x90, 0x65},
			PartNumber: "FTLC9558REPM",
			Revision:   "A0",
			Serial:     "X7AA1234",
			DateCode:   "220315",
		},
	}
}

func TestUpperPage0(t *testing.T) {
	page := testPage()
	img := page.Encode()
	require.Len(t, img, sff.PageSize)
	require.NoError(t, sff.VerifyChecksums(img))

	got, err := sff.DecodeUpperPage0(img)
	require.NoError(t, err)
	page.CCBase, page.CCExt = got.CCBase, got.CCExt
	assert.Equal(t, page, got)
	assert.Equal(t, "QSFP28", got.Identifier.String())
	assert.False(t, got.IsCopper())
}

func TestIsCopper(t *testing.T) {
	testCases := map[uint8]bool{
		0x00: false,
		0x90: false,
		0xa0: true,
		0xb5: true,
		0xf0: true,
	}
	for tech, copper := range testCases {
		p := sff.UpperPage0{DeviceTechnology: tech}
		assert.Equal(t, copper, p.IsCopper(), "tech 0x%02x", tech)
	}
}

func TestVerifyChecksums(t *testing.T) {
	t.Run("base corrupted", func(t *testing.T) {
		img := testPage().Encode()
		img[148-sff.UpperPageOffset] ^= 0xff
		err := sff.VerifyChecksums(img)
		assert.ErrorIs(t, err, sff.ErrChecksum)
		assert.ErrorContains(t, err, "CC_BASE")
		assert.NotContains(t, err.Error(), "CC_EXT")
	})
	t.Run("ext corrupted", func(t *testing.T) {
		img := testPage().Encode()
		img[200-sff.UpperPageOffset]++
		err := sff.VerifyChecksums(img)
		assert.ErrorIs(t, err, sff.ErrChecksum)
		assert.ErrorContains(t, err, "CC_EXT")
	})
	t.Run("short", func(t *testing.T) {
		assert.Error(t, sff.VerifyChecksums(make([]byte, 10)))
	})
}

func TestChecksumWraps(t *testing.T) {
	assert.Equal(t, uint8(0x2c), sff.Checksum([]byte{0xff, 0xff, 0x2e}))
}

func TestDecodeLowerPage(t *testing.T) {
	b := make([]byte, sff.PageSize)
	b[sff.OffsetIdentifier] = byte(sff.IdentifierQSFPP)
	b[sff.OffsetStatus] = 0x05
	// -1.5 degrees
	b[sff.OffsetTemperature], b[sff.OffsetTemperature+1] = 0xfe, 0x80
	// 3.3 V
	b[sff.OffsetVcc], b[sff.OffsetVcc+1] = 0x80, 0xe8
	b[sff.OffsetTxDisable] = 0xf3

	p, err := sff.DecodeLowerPage(b)
	require.NoError(t, err)
	assert.Equal(t, sff.IdentifierQSFPP, p.Identifier)
	assert.True(t, p.DataNotReady)
	assert.True(t, p.FlatMem)
	assert.InDelta(t, -1.5, p.Temperature, 1e-9)
	assert.InDelta(t, 3.3, p.Vcc, 1e-9)
	assert.Equal(t, uint8(0x03), p.TxDisable)

	_, err = sff.DecodeLowerPage(b[:10])
	assert.Error(t, err)
}
