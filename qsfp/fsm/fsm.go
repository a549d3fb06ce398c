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

// Package fsm implements the transceiver lifecycle state machine.
//
// A Machine is not safe for concurrent use. The transceiver manager owns one
// Machine per transceiver and serializes events with a per-transceiver mutex.
package fsm

import (
	"context"
	"strings"

	"github.com/netfab/switchd/pkg/private/serrors"
)

// State is the state of a transceiver.
type State int

const (
	NotPresent State = iota
	Present
	Discovered
	IphyPortsProgrammed
	XphyPortsProgrammed
	TransceiverProgrammed
	Active
	Inactive
	Upgrading
)

var stateNames = [...]string{
	NotPresent:            "NOT_PRESENT",
	Present:               "PRESENT",
	Discovered:            "DISCOVERED",
	IphyPortsProgrammed:   "IPHY_PORTS_PROGRAMMED",
	XphyPortsProgrammed:   "XPHY_PORTS_PROGRAMMED",
	TransceiverProgrammed: "TRANSCEIVER_PROGRAMMED",
	Active:                "ACTIVE",
	Inactive:              "INACTIVE",
	Upgrading:             "UPGRADING",
}

// States returns all states in lifecycle order.
func States() []State {
	return []State{NotPresent, Present, Discovered, IphyPortsProgrammed,
		XphyPortsProgrammed, TransceiverProgrammed, Active, Inactive, Upgrading}
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Event drives a transition of the state machine.
type Event int

const (
	DetectTransceiver Event = iota
	ReadEeprom
	ProgramIphy
	ProgramXphy
	ProgramTransceiver
	PortUp
	AllPortsDown
	RemediateDone
	ResetToDiscovered
	ResetToNotPresent
	PrepareUpgrade
	UpgradeDone
	RemoveTransceiver
)

var eventNames = [...]string{
	DetectTransceiver:  "DETECT_TRANSCEIVER",
	ReadEeprom:         "READ_EEPROM",
	ProgramIphy:        "PROGRAM_IPHY",
	ProgramXphy:        "PROGRAM_XPHY",
	ProgramTransceiver: "PROGRAM_TRANSCEIVER",
	PortUp:             "PORT_UP",
	AllPortsDown:       "ALL_PORTS_DOWN",
	RemediateDone:      "REMEDIATE_DONE",
	ResetToDiscovered:  "RESET_TO_DISCOVERED",
	ResetToNotPresent:  "RESET_TO_NOT_PRESENT",
	PrepareUpgrade:     "PREPARE_UPGRADE",
	UpgradeDone:        "UPGRADE_DONE",
	RemoveTransceiver:  "REMOVE_TRANSCEIVER",
}

// Events returns all events.
func Events() []Event {
	events := make([]Event, len(eventNames))
	for i := range eventNames {
		events[i] = Event(i)
	}
	return events
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "UNKNOWN"
	}
	return eventNames[e]
}

// ParseEvent parses the name of an event. The match is case insensitive.
func ParseEvent(s string) (Event, error) {
	for i, name := range eventNames {
		if strings.EqualFold(s, name) {
			return Event(i), nil
		}
	}
	return 0, serrors.New("unknown event", "event", s)
}

// Attributes are the attributes a transceiver carries next to its state.
type Attributes struct {
	IphyProgrammed        bool
	XphyProgrammed        bool
	TransceiverProgrammed bool
	// NeedMarkLastDownTime is set while the ports are up, so that the first
	// ALL_PORTS_DOWN of a down period records the down time.
	NeedMarkLastDownTime bool
	NeedResetDataPath    bool
}

// DefaultAttributes returns the attributes of a fresh transceiver.
func DefaultAttributes() Attributes {
	return Attributes{NeedMarkLastDownTime: true}
}

// resetProgramming clears the programmed flags.
func (a *Attributes) resetProgramming() {
	a.IphyProgrammed = false
	a.XphyProgrammed = false
	a.TransceiverProgrammed = false
	a.NeedMarkLastDownTime = true
}

// Actions are the side effects the state machine triggers. Methods that
// return an error guard their transition: on error the state and the
// attributes are left unchanged.
type Actions interface {
	// DiscoverTransceiver is run on READ_EEPROM.
	DiscoverTransceiver(ctx context.Context) error
	// ProgramIphyPorts is run on PROGRAM_IPHY.
	ProgramIphyPorts(ctx context.Context) error
	// ProgramXphyPorts is run on PROGRAM_XPHY.
	ProgramXphyPorts(ctx context.Context) error
	// ProgramTransceiver is run on PROGRAM_TRANSCEIVER.
	ProgramTransceiver(ctx context.Context, needResetDataPath bool) error
	// MarkLastDownTime is run on the first ALL_PORTS_DOWN of a down period.
	MarkLastDownTime()
	// ResetProgrammed is run whenever the programmed attributes are reset.
	ResetProgrammed()
}

// Result describes the outcome of processing an event.
type Result struct {
	From State
	To   State
	// Handled is false if the event is not accepted in the From state.
	Handled bool
}

// Changed returns whether the state changed.
func (r Result) Changed() bool {
	return r.From != r.To
}

type transition struct {
	to State
	// guard is run before the transition. An error rejects it.
	guard func(ctx context.Context, m *Machine) error
	// effect is run after the state changed.
	effect func(m *Machine)
}

var anyState = States()

var programmedStates = []State{IphyPortsProgrammed, XphyPortsProgrammed,
	TransceiverProgrammed, Active, Inactive}

// transitions maps the accepted (state, event) pairs.
var transitions = buildTransitions()

func buildTransitions() map[State]map[Event]transition {
	t := make(map[State]map[Event]transition)
	add := func(from []State, ev Event, tr transition) {
		for _, s := range from {
			if t[s] == nil {
				t[s] = make(map[Event]transition)
			}
			t[s][ev] = tr
		}
	}
	toNotPresent := transition{to: NotPresent, effect: (*Machine).resetAll}

	add([]State{NotPresent}, DetectTransceiver, transition{to: Present})
	add([]State{Present}, ReadEeprom, transition{
		to: Discovered,
		guard: func(ctx context.Context, m *Machine) error {
			return m.actions.DiscoverTransceiver(ctx)
		},
		effect: (*Machine).resetProgramming,
	})
	add([]State{NotPresent, Discovered}, ProgramIphy, transition{
		to: IphyPortsProgrammed,
		guard: func(ctx context.Context, m *Machine) error {
			return m.actions.ProgramIphyPorts(ctx)
		},
		effect: func(m *Machine) { m.attrs.IphyProgrammed = true },
	})
	add([]State{IphyPortsProgrammed}, ProgramXphy, transition{
		to: XphyPortsProgrammed,
		guard: func(ctx context.Context, m *Machine) error {
			return m.actions.ProgramXphyPorts(ctx)
		},
		effect: func(m *Machine) { m.attrs.XphyProgrammed = true },
	})
	add([]State{XphyPortsProgrammed}, ProgramTransceiver, transition{
		to: TransceiverProgrammed,
		guard: func(ctx context.Context, m *Machine) error {
			return m.actions.ProgramTransceiver(ctx, m.attrs.NeedResetDataPath)
		},
		effect: func(m *Machine) {
			m.attrs.TransceiverProgrammed = true
			m.attrs.NeedResetDataPath = false
		},
	})
	add([]State{TransceiverProgrammed, Inactive}, PortUp, transition{
		to:     Active,
		effect: func(m *Machine) { m.attrs.NeedMarkLastDownTime = true },
	})
	add([]State{TransceiverProgrammed, Active}, AllPortsDown, transition{
		to: Inactive,
		effect: func(m *Machine) {
			if m.attrs.NeedMarkLastDownTime {
				m.actions.MarkLastDownTime()
				m.attrs.NeedMarkLastDownTime = false
			}
		},
	})
	add([]State{Inactive}, RemediateDone, transition{
		to:     XphyPortsProgrammed,
		effect: func(m *Machine) { m.attrs.TransceiverProgrammed = false },
	})
	add(programmedStates, ResetToDiscovered, transition{
		to:     Discovered,
		effect: (*Machine).resetProgramming,
	})
	add(anyState, ResetToNotPresent, toNotPresent)
	add(anyState[1:], PrepareUpgrade, transition{to: Upgrading})
	add([]State{Upgrading}, UpgradeDone, toNotPresent)
	add(anyState, RemoveTransceiver, toNotPresent)
	return t
}

// Accepts returns whether event is accepted in state s.
func Accepts(s State, ev Event) bool {
	_, ok := transitions[s][ev]
	return ok
}

// Machine is the state machine of a single transceiver.
type Machine struct {
	state   State
	attrs   Attributes
	actions Actions
}

// New creates a machine in NOT_PRESENT with default attributes.
func New(actions Actions) *Machine {
	return &Machine{
		state:   NotPresent,
		attrs:   DefaultAttributes(),
		actions: actions,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Attributes returns a copy of the current attributes.
func (m *Machine) Attributes() Attributes {
	return m.attrs
}

// Process processes a single event. Events that are not accepted in the
// current state are ignored and reported with Handled set to false. If the
// guard of the transition fails, the error is returned and neither the state
// nor the attributes change.
func (m *Machine) Process(ctx context.Context, ev Event) (Result, error) {
	res := Result{From: m.state, To: m.state}
	tr, ok := transitions[m.state][ev]
	if !ok {
		return res, nil
	}
	if tr.guard != nil {
		if err := tr.guard(ctx, m); err != nil {
			return res, serrors.Wrap("transition rejected", err,
				"state", m.state, "event", ev)
		}
	}
	m.state = tr.to
	if tr.effect != nil {
		tr.effect(m)
	}
	res.To = m.state
	res.Handled = true
	return res, nil
}

func (m *Machine) resetProgramming() {
	m.attrs.resetProgramming()
	m.actions.ResetProgrammed()
}

func (m *Machine) resetAll() {
	m.attrs = DefaultAttributes()
	m.actions.ResetProgrammed()
}
