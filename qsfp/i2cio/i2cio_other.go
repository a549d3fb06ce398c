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

//go:build !linux

package i2cio

import (
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/qsfp/sff"
)

// ErrUnsupported is returned by all transfers on platforms without I2C
// adapters.
var ErrUnsupported = serrors.New("i2c is only supported on linux")

// Transceiver is the memory map of a transceiver behind an I2C adapter.
type Transceiver struct {
	Bus     int
	Address int
}

// New returns the transceiver on the given bus.
func New(bus int) *Transceiver {
	return &Transceiver{Bus: bus, Address: sff.Address}
}

func (t *Transceiver) DetectPresence() (bool, error)         { return false, ErrUnsupported }
func (t *Transceiver) Read(offset uint8, buf []byte) error   { return ErrUnsupported }
func (t *Transceiver) Write(offset uint8, data []byte) error { return ErrUnsupported }
