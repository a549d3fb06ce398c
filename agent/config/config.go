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

// Package config contains the TOML configuration of the switch agent.
package config

import (
	"io"
	"slices"
	"time"

	"github.com/netfab/switchd/agent/hwsync"
	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/pkg/private/util"
	"github.com/netfab/switchd/private/config"
	"github.com/netfab/switchd/private/env"
	api "github.com/netfab/switchd/private/mgmtapi"
	"github.com/netfab/switchd/qsfp/module"
)

// Defaults.
const (
	DefaultWarmBootDB      = "/var/lib/switchd/warmboot.db"
	DefaultPersistInterval = 10 * time.Second
	DefaultKeepSnapshots   = 5

	DefaultRefreshInterval = 10 * time.Second
	DefaultExecutor        = ExecutorSerialized
	DefaultParallelism     = 8
)

// Executor modes of the transceiver I/O.
const (
	ExecutorSerialized = "serialized"
	ExecutorInline     = "inline"
)

// Transceiver media of simulated transceivers.
const (
	MediaOptical = "optical"
	MediaCopper  = "copper"
)

var _ config.Config = (*Config)(nil)

// Config is the configuration of the switch agent.
type Config struct {
	General  env.General `toml:"general,omitempty"`
	Logging  log.Config  `toml:"log,omitempty"`
	Metrics  env.Metrics `toml:"metrics,omitempty"`
	Tracing  env.Tracing `toml:"tracing,omitempty"`
	API      api.Config  `toml:"api,omitempty"`
	State    State       `toml:"state,omitempty"`
	Hardware Hardware    `toml:"hardware,omitempty"`
	QSFP     QSFP        `toml:"qsfp,omitempty"`
}

func (cfg *Config) InitDefaults() {
	config.InitAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.Tracing,
		&cfg.API,
		&cfg.State,
		&cfg.Hardware,
		&cfg.QSFP,
	)
}

func (cfg *Config) Validate() error {
	return config.ValidateAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.Tracing,
		&cfg.API,
		&cfg.State,
		&cfg.Hardware,
		&cfg.QSFP,
	)
}

func (cfg *Config) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteSample(dst, path, config.CtxMap{config.ID: "switchd"},
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.Tracing,
		&cfg.API,
		&cfg.State,
		&cfg.Hardware,
		&cfg.QSFP,
	)
}

func (cfg *Config) ConfigName() string {
	return "switchd_config"
}

// SwitchConfig returns the path of the declarative switch configuration.
func (cfg *Config) SwitchConfig() string {
	if cfg.State.SwitchConfig != "" {
		return cfg.State.SwitchConfig
	}
	return cfg.General.SwitchConfig()
}

// State configures the switch state handling.
type State struct {
	config.NoValidator
	// SwitchConfig is the declarative switch configuration file. If empty,
	// switch.yml in the general config directory is used.
	SwitchConfig string `toml:"switch_config,omitempty"`
	// WarmBootDB is the database the committed state is persisted to.
	WarmBootDB string `toml:"warm_boot_db,omitempty"`
	// ColdBoot discards persisted state on startup.
	ColdBoot bool `toml:"cold_boot,omitempty"`
	// PersistInterval is the interval in which the committed state is
	// persisted if it changed.
	PersistInterval util.DurWrap `toml:"persist_interval,omitempty"`
	// KeepSnapshots is the number of snapshots kept in the database.
	KeepSnapshots int `toml:"keep_snapshots,omitempty"`
}

func (cfg *State) InitDefaults() {
	if cfg.WarmBootDB == "" {
		cfg.WarmBootDB = DefaultWarmBootDB
	}
	if cfg.PersistInterval.Duration == 0 {
		cfg.PersistInterval.Duration = DefaultPersistInterval
	}
	if cfg.KeepSnapshots == 0 {
		cfg.KeepSnapshots = DefaultKeepSnapshots
	}
}

func (cfg *State) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, stateSample)
}

func (cfg *State) ConfigName() string {
	return "state"
}

// Hardware configures the simulated switch ASIC.
type Hardware struct {
	config.NoDefaulter
	// Capacities limits the number of entries per hardware table. Tables
	// without a limit are unbounded.
	Capacities map[string]int `toml:"capacities,omitempty"`
}

func (cfg *Hardware) Validate() error {
	known := hwsync.Categories()
	for name, capacity := range cfg.Capacities {
		if !slices.Contains(known, hwsync.Category(name)) {
			return serrors.New("unknown hardware table", "table", name)
		}
		if capacity < 0 {
			return serrors.New("negative table capacity", "table", name, "capacity", capacity)
		}
	}
	return nil
}

// TableCapacities returns the capacities keyed by category.
func (cfg *Hardware) TableCapacities() map[hwsync.Category]int {
	caps := make(map[hwsync.Category]int, len(cfg.Capacities))
	for name, capacity := range cfg.Capacities {
		caps[hwsync.Category(name)] = capacity
	}
	return caps
}

func (cfg *Hardware) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, hardwareSample)
}

func (cfg *Hardware) ConfigName() string {
	return "hardware"
}

// QSFP configures the transceiver manager.
type QSFP struct {
	// RefreshInterval is the interval of the state machine refresh.
	RefreshInterval util.DurWrap `toml:"refresh_interval,omitempty"`
	// InitialRemediateInterval is the cooldown after ports went down before
	// the first remediation.
	InitialRemediateInterval util.DurWrap `toml:"initial_remediate_interval,omitempty"`
	// RemediateInterval is the cooldown between remediations.
	RemediateInterval util.DurWrap `toml:"remediate_interval,omitempty"`
	// CustomizeInterval is the minimum time between two customizations of
	// a module.
	CustomizeInterval util.DurWrap `toml:"customize_interval,omitempty"`
	// DataRefreshInterval is the minimum time between two refreshes of the
	// module data.
	DataRefreshInterval util.DurWrap `toml:"data_refresh_interval,omitempty"`
	// Executor is the execution mode of the transceiver I/O (serialized or
	// inline).
	Executor string `toml:"executor,omitempty"`
	// Parallelism bounds the number of transceivers refreshed concurrently.
	Parallelism int `toml:"parallelism,omitempty"`
	// Simulated replaces the I2C buses with simulated transceivers.
	Simulated bool `toml:"simulated,omitempty"`
	// Transceivers lists the transceiver slots.
	Transceivers []Transceiver `toml:"transceivers,omitempty"`
}

// Transceiver is a transceiver slot.
type Transceiver struct {
	ID uint32 `toml:"id"`
	// Bus is the I2C bus of the slot.
	Bus int `toml:"bus,omitempty"`
	// Media of a simulated transceiver (optical or copper).
	Media string `toml:"media,omitempty"`
	// Absent starts a simulated slot without transceiver.
	Absent bool `toml:"absent,omitempty"`
}

func (cfg *QSFP) InitDefaults() {
	defaults := module.DefaultConfig()
	if cfg.RefreshInterval.Duration == 0 {
		cfg.RefreshInterval.Duration = DefaultRefreshInterval
	}
	if cfg.InitialRemediateInterval.Duration == 0 {
		cfg.InitialRemediateInterval.Duration = defaults.InitialRemediateInterval
	}
	if cfg.RemediateInterval.Duration == 0 {
		cfg.RemediateInterval.Duration = defaults.RemediateInterval
	}
	if cfg.CustomizeInterval.Duration == 0 {
		cfg.CustomizeInterval.Duration = defaults.CustomizeInterval
	}
	if cfg.DataRefreshInterval.Duration == 0 {
		cfg.DataRefreshInterval.Duration = defaults.RefreshInterval
	}
	if cfg.Executor == "" {
		cfg.Executor = DefaultExecutor
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = DefaultParallelism
	}
	for i := range cfg.Transceivers {
		if cfg.Transceivers[i].Media == "" {
			cfg.Transceivers[i].Media = MediaOptical
		}
	}
}

func (cfg *QSFP) Validate() error {
	switch cfg.Executor {
	case ExecutorSerialized, ExecutorInline:
	default:
		return serrors.New("unknown executor", "executor", cfg.Executor)
	}
	if cfg.Parallelism < 0 {
		return serrors.New("negative parallelism", "parallelism", cfg.Parallelism)
	}
	seen := make(map[uint32]struct{}, len(cfg.Transceivers))
	for _, t := range cfg.Transceivers {
		if _, ok := seen[t.ID]; ok {
			return serrors.New("duplicate transceiver", "id", t.ID)
		}
		seen[t.ID] = struct{}{}
		switch t.Media {
		case MediaOptical, MediaCopper:
		default:
			return serrors.New("unknown transceiver media", "id", t.ID, "media", t.Media)
		}
		if !cfg.Simulated && t.Bus <= 0 {
			return serrors.New("transceiver without i2c bus", "id", t.ID)
		}
	}
	return nil
}

// ModuleConfig returns the timing configuration of the modules.
func (cfg *QSFP) ModuleConfig() module.Config {
	return module.Config{
		InitialRemediateInterval: cfg.InitialRemediateInterval.Duration,
		RemediateInterval:        cfg.RemediateInterval.Duration,
		CustomizeInterval:        cfg.CustomizeInterval.Duration,
		RefreshInterval:          cfg.DataRefreshInterval.Duration,
	}
}

func (cfg *QSFP) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, qsfpSample)
}

func (cfg *QSFP) ConfigName() string {
	return "qsfp"
}
