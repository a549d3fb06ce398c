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

// Package module manages the data and the remediation policy of a single
// transceiver module.
//
// All hardware access of a Module is run through its executor while holding
// the module mutex. The module does not drive the transceiver state machine.
// Refresh reports what changed and the caller fires the events.
package module

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/arc/v2"

	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/qsfp/executor"
	"github.com/netfab/switchd/qsfp/sff"
)

var (
	// ErrHardwareIO wraps transport failures talking to the module.
	ErrHardwareIO = serrors.New("hardware I/O error")
	// ErrNotPresent is returned for I/O on an absent module.
	ErrNotPresent = serrors.New("transceiver not present")
	// ErrCacheInvalid is returned when the module must be refreshed before
	// it can be programmed.
	ErrCacheInvalid = serrors.New("transceiver data cache is not valid")
	// ErrNoInfo is returned while the module info is not populated yet.
	ErrNoInfo = serrors.New("transceiver info not populated")
)

// ID identifies a transceiver slot.
type ID uint32

// IO is the raw register access to a module. Offsets address the lower page
// (0-127) and the currently selected upper page (128-255). Operations cannot
// be preempted.
type IO interface {
	DetectPresence() (bool, error)
	Read(offset uint8, buf []byte) error
	Write(offset uint8, data []byte) error
}

// Config holds the timing parameters of a module.
type Config struct {
	// InitialRemediateInterval is the cooldown after a port went down
	// before the first remediation.
	InitialRemediateInterval time.Duration
	// RemediateInterval is the cooldown between remediations.
	RemediateInterval time.Duration
	// CustomizeInterval is the minimum time between two customizations.
	CustomizeInterval time.Duration
	// RefreshInterval is the minimum time between two data refreshes.
	RefreshInterval time.Duration
}

// DefaultConfig returns the default module configuration.
func DefaultConfig() Config {
	return Config{
		InitialRemediateInterval: 120 * time.Second,
		RemediateInterval:        360 * time.Second,
		CustomizeInterval:        30 * time.Second,
		RefreshInterval:          10 * time.Second,
	}
}

// Side is a side of the PRBS test pattern generator and checker.
type Side int

const (
	SideSystem Side = iota
	SideLine
)

func (s Side) String() string {
	if s == SideLine {
		return "line"
	}
	return "system"
}

// PrbsState is the PRBS configuration of one side.
type PrbsState struct {
	Generator bool
	Checker   bool
}

// Enabled returns whether PRBS is active.
func (p PrbsState) Enabled() bool {
	return p.Generator || p.Checker
}

// Param addresses a register range.
type Param struct {
	// Page is written to the page select register before the access if set.
	Page   *uint8
	Offset uint8
	// Length of a read. Zero reads a single byte.
	Length int
}

// RefreshResult describes what a refresh observed.
type RefreshResult struct {
	Present       bool
	StatusChanged bool
	// NeedReadEeprom is set when the EEPROM of a present module was re-read.
	NeedReadEeprom bool
}

// Option configures a Module.
type Option func(*Module)

// WithConfig sets the timing configuration.
func WithConfig(cfg Config) Option {
	return func(m *Module) { m.cfg = cfg }
}

// WithClock sets the clock. It defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Module) { m.now = now }
}

// WithExecutor sets the executor hardware access runs on. It defaults to
// executor.Inline.
func WithExecutor(e executor.Executor) Option {
	return func(m *Module) { m.exec = e }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(m *Module) { m.logger = l }
}

// pageCacheSize bounds the cached upper pages.
const pageCacheSize = 8

// Module is a single transceiver module.
type Module struct {
	id     ID
	io     IO
	exec   executor.Executor
	cfg    Config
	now    func() time.Time
	logger log.Logger

	mtx     sync.Mutex
	present bool
	dirty   bool
	info    *Info
	lower   sff.LowerPage
	upper   sff.UpperPage0
	// pages caches upper pages by page number.
	pages *arc.ARCCache[uint8, []byte]

	lastRefresh    time.Time
	lastDown       time.Time
	lastRemediate  time.Time
	pauseUntil     time.Time
	numRemediation int
	prbs           [2]PrbsState
	speed          uint32
}

// New creates a module that is not present until the first Refresh.
func New(id ID, io IO, opts ...Option) (*Module, error) {
	pages, err := arc.NewARC[uint8, []byte](pageCacheSize)
	if err != nil {
		return nil, serrors.Wrap("creating page cache", err)
	}
	m := &Module{
		id:     id,
		io:     io,
		exec:   executor.Inline{},
		cfg:    DefaultConfig(),
		now:    time.Now,
		logger: log.Root(),
		dirty:  true,
		pages:  pages,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.New("transceiver", id)
	return m, nil
}

// ID returns the transceiver id.
func (m *Module) ID() ID {
	return m.id
}

// do runs fn on the executor while holding the module mutex.
func (m *Module) do(ctx context.Context, fn func() error) error {
	return m.exec.Do(ctx, func() error {
		m.mtx.Lock()
		defer m.mtx.Unlock()
		return fn()
	})
}

// Refresh detects the presence of the module and refreshes the cached data
// if it is dirty or the refresh interval elapsed.
func (m *Module) Refresh(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult
	err := m.do(ctx, func() error {
		var err error
		res, err = m.refreshLocked()
		return err
	})
	return res, err
}

func (m *Module) refreshLocked() (RefreshResult, error) {
	present, err := m.io.DetectPresence()
	if err != nil {
		return RefreshResult{}, serrors.Wrap("detecting presence", ErrHardwareIO,
			"transceiver", m.id, "err", err)
	}
	res := RefreshResult{Present: present}
	if present != m.present {
		m.logger.Debug("Transceiver presence changed", "present", present)
		res.StatusChanged = true
		m.present = present
		m.dirty = true
		m.pages.Purge()
		m.info = &Info{ID: m.id, Present: present}
	}
	willRefresh := !m.dirty && m.now().Sub(m.lastRefresh) >= m.cfg.RefreshInterval
	if !m.dirty && !willRefresh {
		return res, nil
	}
	if !m.present {
		m.dirty = false
		m.lastRefresh = m.now()
		return res, nil
	}
	if err := m.updateDataLocked(m.dirty); err != nil {
		return res, err
	}
	res.NeedReadEeprom = m.dirty
	m.dirty = false
	m.lastRefresh = m.now()
	m.info = m.buildInfoLocked()
	return res, nil
}

// updateDataLocked reads the lower page and upper page 0. Upper page 0 is
// static and served from the page cache unless allPages is set.
func (m *Module) updateDataLocked(allPages bool) error {
	lower := make([]byte, sff.PageSize)
	if err := m.io.Read(0, lower); err != nil {
		return m.ioError("reading lower page", err)
	}
	lp, err := sff.DecodeLowerPage(lower)
	if err != nil {
		return err
	}
	upper, err := m.upperPageLocked(0, allPages)
	if err != nil {
		return err
	}
	up, err := sff.DecodeUpperPage0(upper)
	if err != nil {
		return err
	}
	m.lower, m.upper = lp, up
	return nil
}

func (m *Module) upperPageLocked(page uint8, reload bool) ([]byte, error) {
	if !reload {
		if b, ok := m.pages.Get(page); ok {
			return b, nil
		}
	}
	if err := m.io.Write(sff.PageSelect, []byte{page}); err != nil {
		return nil, m.ioError("selecting page", err, "page", page)
	}
	b := make([]byte, sff.PageSize)
	if err := m.io.Read(sff.UpperPageOffset, b); err != nil {
		return nil, m.ioError("reading upper page", err, "page", page)
	}
	m.pages.Add(page, b)
	return b, nil
}

func (m *Module) ioError(msg string, err error, errCtx ...any) error {
	errCtx = append([]any{"transceiver", m.id, "err", err}, errCtx...)
	return serrors.Wrap(msg, ErrHardwareIO, errCtx...)
}

// Present returns whether the module was present at the last refresh.
func (m *Module) Present() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.present
}

// Info returns the cached transceiver info.
func (m *Module) Info() (Info, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.info == nil {
		return Info{}, serrors.Wrap("still populating data", ErrNoInfo, "transceiver", m.id)
	}
	return *m.info, nil
}

// supportsRemediationLocked returns whether remediating the module can help.
// Copper cables have no laser to reset.
func (m *Module) supportsRemediationLocked() bool {
	return m.present && !m.upper.IsCopper()
}

// ShouldRemediate returns whether the module may be remediated now.
// globalPauseUntil is the remediation pause of the whole system.
func (m *Module) ShouldRemediate(globalPauseUntil time.Time) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.shouldRemediateLocked(globalPauseUntil)
}

func (m *Module) shouldRemediateLocked(globalPauseUntil time.Time) bool {
	if !m.supportsRemediationLocked() {
		return false
	}
	sys, line := m.prbs[SideSystem].Enabled(), m.prbs[SideLine].Enabled()
	if sys || line {
		m.logger.Info("Skipping remediation because PRBS is enabled",
			"system", sys, "line", line)
		return false
	}
	now := m.now()
	if !now.After(globalPauseUntil) || !now.After(m.pauseUntil) {
		return false
	}
	// The first remediation after a port went down only waits for the
	// initial interval.
	if m.lastDown.After(m.lastRemediate) {
		return now.Sub(m.lastDown) > m.cfg.InitialRemediateInterval
	}
	return now.Sub(m.lastRemediate) > m.cfg.RemediateInterval
}

// TryRemediate remediates the module if ShouldRemediate allows it. It
// returns whether the module was remediated.
func (m *Module) TryRemediate(ctx context.Context, globalPauseUntil time.Time) (bool, error) {
	var remediated bool
	err := m.do(ctx, func() error {
		if !m.shouldRemediateLocked(globalPauseUntil) {
			return nil
		}
		if err := m.toggleTxDisableLocked(); err != nil {
			return err
		}
		m.numRemediation++
		m.lastRemediate = m.now()
		// The module was touched, all pages are re-read on the next refresh.
		m.dirty = true
		remediated = true
		m.logger.Info("Remediated transceiver", "count", m.numRemediation)
		return nil
	})
	return remediated, err
}

func (m *Module) toggleTxDisableLocked() error {
	if err := m.io.Write(sff.OffsetTxDisable, []byte{0x0f}); err != nil {
		return m.ioError("disabling tx", err)
	}
	if err := m.io.Write(sff.OffsetTxDisable, []byte{0x00}); err != nil {
		return m.ioError("enabling tx", err)
	}
	return nil
}

// SetModulePauseRemediation pauses the remediation of this module for
// timeout.
func (m *Module) SetModulePauseRemediation(timeout time.Duration) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.pauseUntil = m.now().Add(timeout)
}

// ModulePauseRemediationUntil returns the end of the module pause window.
func (m *Module) ModulePauseRemediationUntil() time.Time {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.pauseUntil
}

// MarkLastDownTime records that the ports of the module went down now.
func (m *Module) MarkLastDownTime() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.lastDown = m.now()
}

// SetPortPrbs sets the PRBS state of one side.
func (m *Module) SetPortPrbs(side Side, s PrbsState) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.prbs[side] = s
}

// PortPrbsState returns the PRBS state of one side.
func (m *Module) PortPrbsState(side Side) PrbsState {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.prbs[side]
}

// ReadTransceiver reads a register range.
func (m *Module) ReadTransceiver(ctx context.Context, p Param) ([]byte, error) {
	length := p.Length
	if length == 0 {
		length = 1
	}
	if int(p.Offset)+length > 2*sff.PageSize {
		return nil, serrors.New("read beyond memory map",
			"offset", p.Offset, "length", length)
	}
	buf := make([]byte, length)
	err := m.do(ctx, func() error {
		if !m.present {
			return serrors.Wrap("reading transceiver", ErrNotPresent, "transceiver", m.id)
		}
		if p.Page != nil {
			if err := m.io.Write(sff.PageSelect, []byte{*p.Page}); err != nil {
				return m.ioError("selecting page", err, "page", *p.Page)
			}
		}
		if err := m.io.Read(p.Offset, buf); err != nil {
			return m.ioError("reading transceiver", err, "offset", p.Offset)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteTransceiver writes a single register.
func (m *Module) WriteTransceiver(ctx context.Context, p Param, data byte) error {
	return m.do(ctx, func() error {
		if !m.present {
			return serrors.Wrap("writing transceiver", ErrNotPresent, "transceiver", m.id)
		}
		if p.Page != nil {
			if err := m.io.Write(sff.PageSelect, []byte{*p.Page}); err != nil {
				return m.ioError("selecting page", err, "page", *p.Page)
			}
		}
		if err := m.io.Write(p.Offset, []byte{data}); err != nil {
			return m.ioError("writing transceiver", err, "offset", p.Offset)
		}
		if p.Offset >= sff.UpperPageOffset {
			if p.Page != nil {
				m.pages.Remove(*p.Page)
			} else {
				m.pages.Purge()
			}
		}
		return nil
	})
}

// VerifyEepromChecksums verifies the checksums of upper page 0. It returns
// false with a nil error on a mismatch.
func (m *Module) VerifyEepromChecksums(ctx context.Context) (bool, error) {
	var valid bool
	err := m.do(ctx, func() error {
		if !m.present {
			return serrors.Wrap("verifying checksums", ErrNotPresent, "transceiver", m.id)
		}
		upper, err := m.upperPageLocked(0, false)
		if err != nil {
			return err
		}
		if err := sff.VerifyChecksums(upper); err != nil {
			m.logger.Info("EEPROM checksum verification failed", "err", err)
			return nil
		}
		valid = true
		return nil
	})
	return valid, err
}

// CustomizeTransceiver applies the settings for speed (in Mbps, 0 for the
// default). Copper cables are not customized.
func (m *Module) CustomizeTransceiver(ctx context.Context, speed uint32) error {
	return m.do(ctx, func() error {
		if !m.present {
			return nil
		}
		return m.customizeLocked(speed)
	})
}

const (
	// powerOverride overrides the LP_MODE signal and requests high power.
	powerOverride = 0x01
	offsetCdrCtrl = 98
	// cdrSpeedMin is the lowest speed that needs the CDRs enabled.
	cdrSpeedMin = 100000
)

func (m *Module) customizeLocked(speed uint32) error {
	if m.upper.IsCopper() {
		m.logger.Debug("Customization not supported")
		return nil
	}
	if err := m.io.Write(sff.OffsetPowerCtrl, []byte{powerOverride}); err != nil {
		return m.ioError("setting power override", err)
	}
	if speed != 0 {
		cdr := byte(0x00)
		if speed >= cdrSpeedMin {
			cdr = 0xff
		}
		if err := m.io.Write(offsetCdrCtrl, []byte{cdr}); err != nil {
			return m.ioError("setting cdr", err, "speed", speed)
		}
	}
	m.speed = speed
	return nil
}

// ProgramTransceiver customizes the module for speed and optionally resets
// its data path. The cached data must be valid.
func (m *Module) ProgramTransceiver(ctx context.Context, speed uint32, resetDataPath bool) error {
	return m.do(ctx, func() error {
		if !m.present {
			return nil
		}
		if m.dirty {
			return serrors.Wrap("programming transceiver", ErrCacheInvalid,
				"transceiver", m.id)
		}
		if err := m.customizeLocked(speed); err != nil {
			return err
		}
		if resetDataPath {
			if err := m.toggleTxDisableLocked(); err != nil {
				return err
			}
		}
		if err := m.updateDataLocked(false); err != nil {
			return err
		}
		m.info = m.buildInfoLocked()
		return nil
	})
}
