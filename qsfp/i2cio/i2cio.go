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

//go:build linux

// Package i2cio accesses transceiver memory maps over Linux I2C adapters.
package i2cio

import (
	"sync"

	"github.com/platinasystems/i2c"

	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/qsfp/sff"
)

// Transceiver is the memory map of a transceiver behind an I2C adapter. It
// implements module.IO.
type Transceiver struct {
	// Bus is the index of the I2C adapter (/dev/i2c-<Bus>).
	Bus int
	// Address is the device address. Zero means sff.Address.
	Address int

	// mtx serializes the transfers of this transceiver. Transceivers that
	// share a controller must additionally share a serialized executor.
	mtx sync.Mutex
}

// New returns the transceiver on the given bus.
func New(bus int) *Transceiver {
	return &Transceiver{Bus: bus, Address: sff.Address}
}

// DetectPresence reports a module as present if it acknowledges a read of
// the identifier byte.
func (t *Transceiver) DetectPresence() (bool, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	bus, err := t.open()
	if err != nil {
		return false, err
	}
	defer bus.Close()
	var sd i2c.SMBusData
	if err := bus.Do(i2c.Read, sff.OffsetIdentifier, i2c.ByteData, &sd); err != nil {
		return false, nil
	}
	return true, nil
}

// Read reads len(buf) bytes starting at offset.
func (t *Transceiver) Read(offset uint8, buf []byte) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	bus, err := t.open()
	if err != nil {
		return err
	}
	defer bus.Close()
	var sd i2c.SMBusData
	for i := range buf {
		reg := offset + uint8(i)
		if err := bus.Do(i2c.Read, reg, i2c.ByteData, &sd); err != nil {
			return serrors.Wrap("reading register", err, "bus", t.Bus, "offset", reg)
		}
		buf[i] = sd[0]
	}
	return nil
}

// Write writes data starting at offset.
func (t *Transceiver) Write(offset uint8, data []byte) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	bus, err := t.open()
	if err != nil {
		return err
	}
	defer bus.Close()
	var sd i2c.SMBusData
	for i, v := range data {
		reg := offset + uint8(i)
		sd[0] = v
		if err := bus.Do(i2c.Write, reg, i2c.ByteData, &sd); err != nil {
			return serrors.Wrap("writing register", err, "bus", t.Bus, "offset", reg)
		}
	}
	return nil
}

func (t *Transceiver) open() (*i2c.Bus, error) {
	addr := t.Address
	if addr == 0 {
		addr = sff.Address
	}
	bus := &i2c.Bus{}
	if err := bus.Open(t.Bus); err != nil {
		return nil, serrors.Wrap("opening i2c bus", err, "bus", t.Bus)
	}
	if err := bus.ForceSlaveAddress(addr); err != nil {
		bus.Close()
		return nil, serrors.Wrap("setting i2c address", err, "bus", t.Bus, "address", addr)
	}
	return bus, nil
}
