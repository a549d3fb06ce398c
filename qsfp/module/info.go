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

package module

import (
	"time"

	"github.com/netfab/switchd/qsfp/sff"
)

// Technology is the transmitter technology class.
type Technology string

const (
	TechnologyUnknown Technology = "unknown"
	TechnologyOptical Technology = "optical"
	TechnologyCopper  Technology = "copper"
)

// Info is a snapshot of the module data.
type Info struct {
	ID      ID   `json:"id"`
	Present bool `json:"present"`

	Identifier  sff.Identifier `json:"identifier,omitempty"`
	Technology  Technology     `json:"technology,omitempty"`
	Vendor      sff.Vendor     `json:"vendor"`
	Temperature float64        `json:"temperature,omitempty"`
	Vcc         float64        `json:"vcc,omitempty"`
	// CableLength is the length of copper cables in meters.
	CableLength int `json:"cableLength,omitempty"`
	// Speed is the last customized speed in Mbps.
	Speed               uint32    `json:"speed,omitempty"`
	EepromChecksumValid bool      `json:"eepromChecksumValid"`
	RemediationCounter  int       `json:"remediationCounter"`
	TimeCollected       time.Time `json:"timeCollected"`
}

func (m *Module) buildInfoLocked() *Info {
	info := &Info{
		ID:                 m.id,
		Present:            m.present,
		Identifier:         m.upper.Identifier,
		Vendor:             m.upper.Vendor,
		Temperature:        m.lower.Temperature,
		Vcc:                m.lower.Vcc,
		Speed:              m.speed,
		RemediationCounter: m.numRemediation,
		TimeCollected:      m.now(),
		Technology:         TechnologyOptical,
	}
	if m.upper.IsCopper() {
		info.Technology = TechnologyCopper
		info.CableLength = int(m.upper.CopperLength)
	}
	if upper, ok := m.pages.Get(0); ok {
		info.EepromChecksumValid = sff.VerifyChecksums(upper) == nil
	}
	return info
}
