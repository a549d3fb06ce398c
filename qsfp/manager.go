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

// Package qsfp manages the pluggable transceivers of the switch.
//
// The Manager owns one state machine per transceiver slot. Events for the
// same transceiver are serialized by a per-transceiver mutex, events for
// different transceivers run concurrently. RefreshStateMachines is run
// periodically to poll the modules and to drive the state machines towards
// ACTIVE.
package qsfp

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/qsfp/executor"
	"github.com/netfab/switchd/qsfp/fsm"
	"github.com/netfab/switchd/qsfp/module"
)

var (
	// ErrValidation indicates a transition that is not valid with the
	// current configuration, e.g., programming ports without a port mapping.
	ErrValidation = serrors.New("validation error")
	// ErrHardwareIO indicates a failure talking to the hardware.
	ErrHardwareIO = module.ErrHardwareIO
	// ErrUnknownTransceiver is returned for ids without a transceiver slot.
	ErrUnknownTransceiver = serrors.New("unknown transceiver")
)

// TransceiverID identifies a transceiver slot.
type TransceiverID = module.ID

// PortID identifies a switch port.
type PortID uint32

// PortStatus is the agent view of a port attached to a transceiver.
type PortStatus struct {
	Port    PortID
	Profile string
	// Speed in Mbps.
	Speed   uint32
	Enabled bool
	Up      bool
}

// PortInfo is what is programmed for an iphy port.
type PortInfo struct {
	Profile string
	Speed   uint32
}

// PhyManager programs the external PHYs in front of the transceivers.
type PhyManager interface {
	ProgramXphyPorts(ctx context.Context, id TransceiverID, ports map[PortID]PortInfo) error
}

// UpdateResult is the outcome of an asynchronous state update.
type UpdateResult struct {
	Result fsm.Result
	Err    error
}

// Option configures a Manager.
type Option func(*Manager)

// WithExecutor sets the executor all module I/O runs on.
func WithExecutor(e executor.Executor) Option {
	return func(m *Manager) { m.exec = e }
}

// WithClock sets the clock of the manager and the modules.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithModuleConfig sets the timing configuration of the modules.
func WithModuleConfig(cfg module.Config) Option {
	return func(m *Manager) { m.moduleCfg = cfg }
}

// WithPhyManager sets the external PHY manager. Without it, PROGRAM_XPHY
// succeeds without programming anything.
func WithPhyManager(p PhyManager) Option {
	return func(m *Manager) { m.phy = p }
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithParallelism bounds the number of transceivers refreshed concurrently.
func WithParallelism(n int) Option {
	return func(m *Manager) { m.parallelism = n }
}

// Manager manages the transceivers.
type Manager struct {
	exec        executor.Executor
	now         func() time.Time
	moduleCfg   module.Config
	phy         PhyManager
	metrics     *Metrics
	logger      log.Logger
	parallelism int

	tcvrs map[TransceiverID]*transceiver
	// customized rate limits the customization of modules.
	customized *cache.Cache

	mtx        sync.RWMutex
	pauseUntil time.Time
	overrides  map[TransceiverID]map[PortID]string
	agentPorts map[TransceiverID][]PortStatus
}

// NewManager creates a manager for the given transceiver slots.
func NewManager(slots map[TransceiverID]module.IO, opts ...Option) (*Manager, error) {
	m := &Manager{
		exec:        executor.Inline{},
		now:         time.Now,
		moduleCfg:   module.DefaultConfig(),
		logger:      log.Root(),
		parallelism: 8,
		tcvrs:       make(map[TransceiverID]*transceiver, len(slots)),
	}
	for _, opt := range opts {
		opt(m)
	}
	// No janitor goroutine. Add treats expired items as absent.
	m.customized = cache.New(m.moduleCfg.CustomizeInterval, 0)
	for id, io := range slots {
		mod, err := module.New(id, io,
			module.WithConfig(m.moduleCfg),
			module.WithClock(m.now),
			module.WithExecutor(m.exec),
			module.WithLogger(m.logger),
		)
		if err != nil {
			return nil, serrors.Wrap("creating module", err, "transceiver", id)
		}
		t := &transceiver{id: id, mod: mod, mgr: m}
		t.machine = fsm.New(t)
		m.tcvrs[id] = t
	}
	return m, nil
}

// IDs returns the ids of all transceiver slots in ascending order.
func (m *Manager) IDs() []TransceiverID {
	return slices.Sorted(maps.Keys(m.tcvrs))
}

func (m *Manager) transceiver(id TransceiverID) (*transceiver, error) {
	t, ok := m.tcvrs[id]
	if !ok {
		return nil, serrors.Wrap("looking up transceiver", ErrUnknownTransceiver,
			"transceiver", id)
	}
	return t, nil
}

// Module returns the module in slot id.
func (m *Manager) Module(id TransceiverID) (*module.Module, error) {
	t, err := m.transceiver(id)
	if err != nil {
		return nil, err
	}
	return t.mod, nil
}

// UpdateStateBlocking processes event on the state machine of transceiver
// id and waits for the result.
func (m *Manager) UpdateStateBlocking(ctx context.Context, id TransceiverID,
	event fsm.Event) (fsm.Result, error) {

	t, err := m.transceiver(id)
	if err != nil {
		return fsm.Result{}, err
	}
	return t.process(ctx, event)
}

// UpdateStateBlockingWithoutWait processes event asynchronously. The
// returned channel receives the result.
func (m *Manager) UpdateStateBlockingWithoutWait(ctx context.Context, id TransceiverID,
	event fsm.Event) <-chan UpdateResult {

	ch := make(chan UpdateResult, 1)
	t, err := m.transceiver(id)
	if err != nil {
		ch <- UpdateResult{Err: err}
		return ch
	}
	go func() {
		defer log.HandlePanic()
		res, err := t.process(ctx, event)
		ch <- UpdateResult{Result: res, Err: err}
	}()
	return ch
}

// CurrentState returns the state of transceiver id.
func (m *Manager) CurrentState(id TransceiverID) (fsm.State, error) {
	t, err := m.transceiver(id)
	if err != nil {
		return fsm.NotPresent, err
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.machine.State(), nil
}

// Attributes returns the state machine attributes of transceiver id.
func (m *Manager) Attributes(id TransceiverID) (fsm.Attributes, error) {
	t, err := m.transceiver(id)
	if err != nil {
		return fsm.Attributes{}, err
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.machine.Attributes(), nil
}

// ProgrammedIphyPorts returns the iphy ports programmed for transceiver id.
func (m *Manager) ProgrammedIphyPorts(id TransceiverID) (map[PortID]PortInfo, error) {
	t, err := m.transceiver(id)
	if err != nil {
		return nil, err
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return maps.Clone(t.programmedIphy), nil
}

// SetOverrideTcvrToPortAndProfile sets a port to profile mapping per
// transceiver that takes precedence over the ports synced from the agent. A
// nil map removes the override.
func (m *Manager) SetOverrideTcvrToPortAndProfile(overrides map[TransceiverID]map[PortID]string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.overrides = make(map[TransceiverID]map[PortID]string, len(overrides))
	for id, ports := range overrides {
		m.overrides[id] = maps.Clone(ports)
	}
}

// SyncAgentPorts replaces the port status known from the agent.
func (m *Manager) SyncAgentPorts(ports map[TransceiverID][]PortStatus) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.agentPorts = make(map[TransceiverID][]PortStatus, len(ports))
	for id, p := range ports {
		m.agentPorts[id] = slices.Clone(p)
	}
}

// AgentPorts returns the port status synced from the agent for id.
func (m *Manager) AgentPorts(id TransceiverID) []PortStatus {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return slices.Clone(m.agentPorts[id])
}

// portsFor returns the ports to program for transceiver id.
func (m *Manager) portsFor(id TransceiverID) map[PortID]PortInfo {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if override, ok := m.overrides[id]; ok && len(override) > 0 {
		ports := make(map[PortID]PortInfo, len(override))
		for port, profile := range override {
			ports[port] = PortInfo{Profile: profile}
		}
		return ports
	}
	var ports map[PortID]PortInfo
	for _, p := range m.agentPorts[id] {
		if p.Profile == "" {
			continue
		}
		if ports == nil {
			ports = make(map[PortID]PortInfo)
		}
		ports[p.Port] = PortInfo{Profile: p.Profile, Speed: p.Speed}
	}
	return ports
}

// PauseRemediation pauses the remediation of all transceivers for timeout.
func (m *Manager) PauseRemediation(timeout time.Duration) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.pauseUntil = m.now().Add(timeout)
}

// PauseRemediationUntil returns the end of the global pause window.
func (m *Manager) PauseRemediationUntil() time.Time {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.pauseUntil
}

// ModulePauseRemediation pauses the remediation of transceiver id for
// timeout.
func (m *Manager) ModulePauseRemediation(id TransceiverID, timeout time.Duration) error {
	t, err := m.transceiver(id)
	if err != nil {
		return err
	}
	t.mod.SetModulePauseRemediation(timeout)
	return nil
}

// TransceiverInfo returns the cached info of transceiver id.
func (m *Manager) TransceiverInfo(id TransceiverID) (module.Info, error) {
	t, err := m.transceiver(id)
	if err != nil {
		return module.Info{}, err
	}
	return t.mod.Info()
}
