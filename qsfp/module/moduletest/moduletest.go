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

// Package moduletest provides an in-memory transceiver for tests and for the
// simulated platform.
package moduletest

import (
	"sync"

	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/qsfp/sff"
)

// Write is a recorded register write.
type Write struct {
	Page   uint8
	Offset uint8
	Data   byte
}

// IO is a simulated transceiver memory map. It implements module.IO.
type IO struct {
	mtx     sync.Mutex
	present bool
	page    uint8
	lower   [sff.PageSize]byte
	upper   map[uint8][]byte
	writes  []Write
	reads   int

	// PresenceErr, ReadErr and WriteErr are returned by the respective
	// operations if set.
	PresenceErr error
	ReadErr     error
	WriteErr    error
}

// Optical returns the upper page 0 of a 100G optical module.
func Optical() sff.UpperPage0 {
	return sff.UpperPage0{
		Identifier:     sff.IdentifierQSFP28,
		Connector:      0x07,
		Compliance:     [8]byte{0x80},
		NominalBitRate: 0xff,
		Vendor: sff.Vendor{
			Name:       "FAKE OPTICS",
			OUI:        [3]byte{0x00, 0x11, 0x22},
			PartNumber: "FO-100G-CWDM4",
			Revision:   "01",
			Serial:     "SN0001",
			DateCode:   "240101",
		},
	}
}

// Copper returns the upper page 0 of a passive copper cable.
func Copper() sff.UpperPage0 {
	p := Optical()
	p.Connector = 0x23
	p.DeviceTechnology = 0xa0
	p.CopperLength = 2
	p.Vendor.PartNumber = "FC-100G-DAC2M"
	return p
}

// New creates a module with the given upper page 0. It is absent until
// SetPresent is called.
func New(page0 sff.UpperPage0) *IO {
	io := &IO{upper: map[uint8][]byte{0: page0.Encode()}}
	io.lower[sff.OffsetIdentifier] = byte(page0.Identifier)
	// 25 degrees, 3.3 V
	io.lower[sff.OffsetTemperature] = 25
	io.lower[sff.OffsetVcc], io.lower[sff.OffsetVcc+1] = 0x80, 0xe8
	return io
}

// SetPresent inserts or removes the module.
func (io *IO) SetPresent(present bool) {
	io.mtx.Lock()
	defer io.mtx.Unlock()
	io.present = present
}

// Poke sets a byte in the memory map without recording a write.
func (io *IO) Poke(page uint8, offset uint8, v byte) {
	io.mtx.Lock()
	defer io.mtx.Unlock()
	if offset < sff.UpperPageOffset {
		io.lower[offset] = v
		return
	}
	io.pageLocked(page)[offset-sff.UpperPageOffset] = v
}

// Writes returns the recorded writes.
func (io *IO) Writes() []Write {
	io.mtx.Lock()
	defer io.mtx.Unlock()
	return append([]Write(nil), io.writes...)
}

// Reads returns the number of read operations.
func (io *IO) Reads() int {
	io.mtx.Lock()
	defer io.mtx.Unlock()
	return io.reads
}

// ResetStats clears the recorded writes and the read counter.
func (io *IO) ResetStats() {
	io.mtx.Lock()
	defer io.mtx.Unlock()
	io.writes = nil
	io.reads = 0
}

func (io *IO) DetectPresence() (bool, error) {
	io.mtx.Lock()
	defer io.mtx.Unlock()
	if io.PresenceErr != nil {
		return false, io.PresenceErr
	}
	return io.present, nil
}

func (io *IO) Read(offset uint8, buf []byte) error {
	io.mtx.Lock()
	defer io.mtx.Unlock()
	if err := io.checkLocked(offset, len(buf)); err != nil {
		return err
	}
	if io.ReadErr != nil {
		return io.ReadErr
	}
	io.reads++
	for i := range buf {
		buf[i] = io.byteLocked(int(offset) + i)
	}
	return nil
}

func (io *IO) Write(offset uint8, data []byte) error {
	io.mtx.Lock()
	defer io.mtx.Unlock()
	if err := io.checkLocked(offset, len(data)); err != nil {
		return err
	}
	if io.WriteErr != nil {
		return io.WriteErr
	}
	for i, v := range data {
		off := int(offset) + i
		io.writes = append(io.writes, Write{Page: io.page, Offset: uint8(off), Data: v})
		switch {
		case off == sff.PageSelect:
			io.page = v
			io.lower[off] = v
		case off < sff.UpperPageOffset:
			io.lower[off] = v
		default:
			io.pageLocked(io.page)[off-sff.UpperPageOffset] = v
		}
	}
	return nil
}

func (io *IO) checkLocked(offset uint8, n int) error {
	if !io.present {
		return serrors.New("no ack from device", "address", sff.Address)
	}
	if int(offset)+n > 2*sff.PageSize {
		return serrors.New("access beyond memory map", "offset", offset, "len", n)
	}
	return nil
}

func (io *IO) byteLocked(off int) byte {
	if off < sff.UpperPageOffset {
		return io.lower[off]
	}
	return io.pageLocked(io.page)[off-sff.UpperPageOffset]
}

func (io *IO) pageLocked(page uint8) []byte {
	p, ok := io.upper[page]
	if !ok {
		p = make([]byte, sff.PageSize)
		io.upper[page] = p
	}
	return p
}
