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
	"maps"
	"slices"
)

// TrafficClass is the internal traffic class of a packet.
type TrafficClass uint8

// QosMapEntry maps a packet attribute value (DSCP or EXP) to and from a
// traffic class.
type QosMapEntry struct {
	TrafficClass TrafficClass `json:"trafficClass"`
	Attr         uint8        `json:"attr"`
}

// QosAttributeMap holds the ingress (from) and egress (to) mappings between
// an attribute and traffic classes.
type QosAttributeMap struct {
	From []QosMapEntry `json:"from,omitempty"`
	To   []QosMapEntry `json:"to,omitempty"`
}

func (m QosAttributeMap) clone() QosAttributeMap {
	return QosAttributeMap{From: slices.Clone(m.From), To: slices.Clone(m.To)}
}

// TrafficClassFor returns the traffic class assigned to attribute value
// attr on ingress.
func (m QosAttributeMap) TrafficClassFor(attr uint8) (TrafficClass, bool) {
	for _, e := range m.From {
		if e.Attr == attr {
			return e.TrafficClass, true
		}
	}
	return 0, false
}

// QosPolicyFields is the value of a QosPolicy.
type QosPolicyFields struct {
	Name                  string                 `json:"name"`
	DscpMap               QosAttributeMap        `json:"dscpMap"`
	ExpMap                QosAttributeMap        `json:"expMap"`
	TrafficClassToQueueID map[TrafficClass]uint8 `json:"trafficClassToQueueId,omitempty"`
	PfcPriorityToQueueID  map[uint8]uint8        `json:"pfcPriorityToQueueId,omitempty"`
	TrafficClassToPgID    map[TrafficClass]uint8 `json:"trafficClassToPgId,omitempty"`
	PfcPriorityToPgID     map[uint8]uint8        `json:"pfcPriorityToPgId,omitempty"`
}

func (f QosPolicyFields) clone() QosPolicyFields {
	f.DscpMap = f.DscpMap.clone()
	f.ExpMap = f.ExpMap.clone()
	f.TrafficClassToQueueID = maps.Clone(f.TrafficClassToQueueID)
	f.PfcPriorityToQueueID = maps.Clone(f.PfcPriorityToQueueID)
	f.TrafficClassToPgID = maps.Clone(f.TrafficClassToPgID)
	f.PfcPriorityToPgID = maps.Clone(f.PfcPriorityToPgID)
	return f
}

func (f QosPolicyFields) key() any { return f.Name }

// QosPolicy is a named QoS policy.
type QosPolicy struct {
	leaf[QosPolicyFields]
}

func NewQosPolicy(f QosPolicyFields) *QosPolicy {
	return &QosPolicy{leaf: newLeaf(f)}
}

func (q *QosPolicy) ID() string { return q.fields.Name }

// Modify returns a writable version of q within *state. q may either be an
// entry of the policy map or the default data plane policy.
func (q *QosPolicy) Modify(state **SwitchState) *QosPolicy {
	if !q.IsPublished() {
		return q
	}
	c := &QosPolicy{leaf: q.cloneLeaf()}
	if (*state).DefaultDataPlaneQosPolicy() == q {
		s := (*state).Modify(state)
		s.defaultQosPolicy = c
		return c
	}
	policies := ModifyQosPolicies(state)
	replaceEntry(policies, q, c)
	return c
}
