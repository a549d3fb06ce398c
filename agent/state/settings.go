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
	"slices"
	"time"
)

type L2LearningMode string

const (
	L2LearningHardware L2LearningMode = "hardware"
	L2LearningSoftware L2LearningMode = "software"
)

// singletonKey is the key of nodes of which only one instance exists.
type singletonKey struct{}

// SwitchSettingsFields is the value of SwitchSettings.
type SwitchSettingsFields struct {
	L2LearningMode     L2LearningMode `json:"l2LearningMode,omitempty"`
	QcmEnable          bool           `json:"qcmEnable,omitempty"`
	PtpTcEnable        bool           `json:"ptpTcEnable,omitempty"`
	L2AgeTimer         time.Duration  `json:"l2AgeTimerNs,omitempty"`
	MaxRouteCounterIDs uint32         `json:"maxRouteCounterIDs,omitempty"`
	ArpTimeout         time.Duration  `json:"arpTimeoutNs,omitempty"`
	NdpTimeout         time.Duration  `json:"ndpTimeoutNs,omitempty"`
	MaxNeighborProbes  uint32         `json:"maxNeighborProbes,omitempty"`
	StaleEntryInterval time.Duration  `json:"staleEntryIntervalNs,omitempty"`
	// BlockedNeighbors are (vlan, ip) pairs for which neighbor entries are
	// not programmed.
	BlockedNeighbors []BlockedNeighbor `json:"blockedNeighbors,omitempty"`
}

type BlockedNeighbor struct {
	Vlan VlanID `json:"vlan"`
	IP   string `json:"ip"`
}

func (f SwitchSettingsFields) clone() SwitchSettingsFields {
	f.BlockedNeighbors = slices.Clone(f.BlockedNeighbors)
	return f
}

func (f SwitchSettingsFields) key() any { return singletonKey{} }

// SwitchSettings holds the global switch settings.
type SwitchSettings struct {
	leaf[SwitchSettingsFields]
}

func NewSwitchSettings(f SwitchSettingsFields) *SwitchSettings {
	return &SwitchSettings{leaf: newLeaf(f)}
}

func (s *SwitchSettings) Modify(state **SwitchState) *SwitchSettings {
	if !s.IsPublished() {
		return s
	}
	if (*state).SwitchSettings() != s {
		programmingError("modifying node that is not reachable from the root",
			"node", "switch settings")
	}
	root := (*state).Modify(state)
	c := &SwitchSettings{leaf: s.cloneLeaf()}
	root.switchSettings = c
	return c
}

// CPUQueue is the configuration of one CPU port queue.
type CPUQueue struct {
	ID     uint8  `json:"id"`
	Name   string `json:"name"`
	Weight uint32 `json:"weight,omitempty"`
	// PPS limits the packet rate. Zero disables the limit.
	PPS uint32 `json:"pps,omitempty"`
}

// RxReasonToQueue maps a packet trap reason to a CPU queue.
type RxReasonToQueue struct {
	Reason string `json:"rxReason"`
	Queue  uint8  `json:"queueId"`
}

// ControlPlaneFields is the value of ControlPlane.
type ControlPlaneFields struct {
	Queues          []CPUQueue        `json:"queues,omitempty"`
	RxReasonToQueue []RxReasonToQueue `json:"rxReasonToQueue,omitempty"`
	QosPolicy       string            `json:"qosPolicy,omitempty"`
}

func (f ControlPlaneFields) clone() ControlPlaneFields {
	f.Queues = slices.Clone(f.Queues)
	f.RxReasonToQueue = slices.Clone(f.RxReasonToQueue)
	return f
}

func (f ControlPlaneFields) key() any { return singletonKey{} }

// ControlPlane holds the CPU port configuration.
type ControlPlane struct {
	leaf[ControlPlaneFields]
}

func NewControlPlane(f ControlPlaneFields) *ControlPlane {
	return &ControlPlane{leaf: newLeaf(f)}
}

func (c *ControlPlane) Modify(state **SwitchState) *ControlPlane {
	if !c.IsPublished() {
		return c
	}
	if (*state).ControlPlane() != c {
		programmingError("modifying node that is not reachable from the root",
			"node", "control plane")
	}
	root := (*state).Modify(state)
	n := &ControlPlane{leaf: c.cloneLeaf()}
	root.controlPlane = n
	return n
}
