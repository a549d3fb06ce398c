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

// Package asicsim implements an in-memory switch ASIC. It programs state
// entries into per-category tables with optional capacity limits and can
// inject failures for individual entries.
package asicsim

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/olekukonko/tablewriter"

	"github.com/netfab/switchd/agent/hwsync"
	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/private/serrors"
)

var (
	// ErrNotProgrammed is returned when changing an entry that is not in
	// hardware.
	ErrNotProgrammed = errors.New("entry not programmed")
	// ErrExists is returned when adding an entry that is already programmed
	// with a different value.
	ErrExists = errors.New("entry already programmed")
)

// Fault makes operations on an entry fail. An empty Op matches all
// operations.
type Fault struct {
	Category hwsync.Category
	Key      string
	Op       hwsync.Op
	Err      error
}

// ASIC is a simulated switch ASIC. It implements hwsync.Dataplane and is
// safe for concurrent use.
type ASIC struct {
	mtx        sync.Mutex
	capacities map[hwsync.Category]int
	tables     map[hwsync.Category]map[string]state.Node
	faults     []Fault
}

// New creates an ASIC. Categories without a capacity are unlimited.
func New(capacities map[hwsync.Category]int) *ASIC {
	return &ASIC{
		capacities: maps.Clone(capacities),
		tables:     make(map[hwsync.Category]map[string]state.Node),
	}
}

func (a *ASIC) ProcessAdded(cat hwsync.Category, key string, added state.Node) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if err := a.fault(cat, key, hwsync.OpAdd); err != nil {
		return err
	}
	table := a.table(cat)
	if cur, ok := table[key]; ok {
		if cur == added {
			return nil
		}
		return serrors.JoinNoStack(ErrExists, nil, "category", cat, "key", key)
	}
	if limit, ok := a.capacities[cat]; ok && len(table) >= limit {
		return serrors.JoinNoStack(hwsync.ErrTableFull, nil,
			"category", cat, "key", key, "capacity", limit)
	}
	table[key] = added
	return nil
}

func (a *ASIC) ProcessChanged(cat hwsync.Category, key string, _, changed state.Node) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if err := a.fault(cat, key, hwsync.OpChange); err != nil {
		return err
	}
	table := a.table(cat)
	if _, ok := table[key]; !ok {
		return serrors.JoinNoStack(ErrNotProgrammed, nil, "category", cat, "key", key)
	}
	table[key] = changed
	return nil
}

// ProcessRemoved removes an entry. Removing an entry that is not programmed
// is not an error.
func (a *ASIC) ProcessRemoved(cat hwsync.Category, key string, _ state.Node) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if err := a.fault(cat, key, hwsync.OpRemove); err != nil {
		return err
	}
	delete(a.table(cat), key)
	return nil
}

func (a *ASIC) table(cat hwsync.Category) map[string]state.Node {
	t, ok := a.tables[cat]
	if !ok {
		t = make(map[string]state.Node)
		a.tables[cat] = t
	}
	return t
}

func (a *ASIC) fault(cat hwsync.Category, key string, op hwsync.Op) error {
	for _, f := range a.faults {
		if f.Category == cat && f.Key == key && (f.Op == "" || f.Op == op) {
			return f.Err
		}
	}
	return nil
}

// InjectFault adds a fault.
func (a *ASIC) InjectFault(f Fault) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.faults = append(a.faults, f)
}

// ClearFaults removes all faults.
func (a *ASIC) ClearFaults() {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.faults = nil
}

// SetCapacity sets the capacity of a category. A negative value removes the
// limit.
func (a *ASIC) SetCapacity(cat hwsync.Category, capacity int) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if capacity < 0 {
		delete(a.capacities, cat)
		return
	}
	if a.capacities == nil {
		a.capacities = make(map[hwsync.Category]int)
	}
	a.capacities[cat] = capacity
}

// Len returns the number of programmed entries of a category.
func (a *ASIC) Len(cat hwsync.Category) int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return len(a.tables[cat])
}

// Get returns the programmed entry.
func (a *ASIC) Get(cat hwsync.Category, key string) (state.Node, bool) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	n, ok := a.tables[cat][key]
	return n, ok
}

// Keys returns the sorted keys of a category.
func (a *ASIC) Keys(cat hwsync.Category) []string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return slices.Sorted(maps.Keys(a.tables[cat]))
}

// TableUsage is the occupancy of one table.
type TableUsage struct {
	Category hwsync.Category `json:"category"`
	Entries  int             `json:"entries"`
	// Capacity is -1 for unlimited tables.
	Capacity int `json:"capacity"`
}

// Usage returns the occupancy of all non-empty or limited tables, sorted by
// category.
func (a *ASIC) Usage() []TableUsage {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	cats := make(map[hwsync.Category]struct{})
	for c, t := range a.tables {
		if len(t) > 0 {
			cats[c] = struct{}{}
		}
	}
	for c := range a.capacities {
		cats[c] = struct{}{}
	}
	usage := make([]TableUsage, 0, len(cats))
	for _, c := range slices.Sorted(maps.Keys(cats)) {
		capacity, ok := a.capacities[c]
		if !ok {
			capacity = -1
		}
		usage = append(usage, TableUsage{Category: c, Entries: len(a.tables[c]), Capacity: capacity})
	}
	return usage
}

// Dump writes the table occupancy followed by all programmed entries.
func (a *ASIC) Dump(w io.Writer) {
	usage := tablewriter.NewWriter(w)
	usage.SetHeader([]string{"Table", "Entries", "Capacity"})
	for _, u := range a.Usage() {
		capacity := "-"
		if u.Capacity >= 0 {
			capacity = strconv.Itoa(u.Capacity)
		}
		usage.Append([]string{string(u.Category), strconv.Itoa(u.Entries), capacity})
	}
	usage.Render()

	a.mtx.Lock()
	defer a.mtx.Unlock()
	entries := tablewriter.NewWriter(w)
	entries.SetHeader([]string{"Table", "Key", "Generation", "Type"})
	for _, c := range slices.Sorted(maps.Keys(a.tables)) {
		t := a.tables[c]
		for _, k := range slices.Sorted(maps.Keys(t)) {
			n := t[k]
			entries.Append([]string{string(c), k, strconv.FormatUint(n.Generation(), 10),
				fmt.Sprintf("%T", n)})
		}
	}
	entries.Render()
}
