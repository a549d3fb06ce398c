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
	"iter"
)

// DeltaEntry is one difference between two maps. Old is nil for additions
// and New is nil for removals.
type DeltaEntry[V comparable] struct {
	Old V
	New V
}

func (e DeltaEntry[V]) IsAdded() bool {
	var zero V
	return e.Old == zero
}

func (e DeltaEntry[V]) IsRemoved() bool {
	var zero V
	return e.New == zero
}

func (e DeltaEntry[V]) IsChanged() bool {
	return !e.IsAdded() && !e.IsRemoved()
}

// MapDelta is the difference between two versions of a NodeMap. It is
// computed lazily on iteration. Both maps must use the same ordering.
type MapDelta[K any, V Entry[K]] struct {
	old *NodeMap[K, V]
	new *NodeMap[K, V]
}

// NewMapDelta creates the delta from old to new. Either map may be nil, which
// is treated as empty.
func NewMapDelta[K any, V Entry[K]](o, n *NodeMap[K, V]) MapDelta[K, V] {
	return MapDelta[K, V]{old: o, new: n}
}

func (d MapDelta[K, V]) Old() *NodeMap[K, V] { return d.old }
func (d MapDelta[K, V]) New() *NodeMap[K, V] { return d.new }

// All merge-joins the two maps in key order and yields every key at which
// they differ. Entries that are the same node in both maps are skipped
// without looking at their content, and two identical maps yield nothing
// without being walked.
func (d MapDelta[K, V]) All() iter.Seq[DeltaEntry[V]] {
	return func(yield func(DeltaEntry[V]) bool) {
		if d.old == d.new {
			return
		}
		var oldEntries, newEntries []V
		var compare func(a, b K) int
		if d.old != nil {
			oldEntries, compare = d.old.entries, d.old.cmp
		}
		if d.new != nil {
			newEntries, compare = d.new.entries, d.new.cmp
		}
		var zero V
		i, j := 0, 0
		for i < len(oldEntries) || j < len(newEntries) {
			var e DeltaEntry[V]
			switch {
			case j == len(newEntries):
				e = DeltaEntry[V]{Old: oldEntries[i], New: zero}
				i++
			case i == len(oldEntries):
				e = DeltaEntry[V]{Old: zero, New: newEntries[j]}
				j++
			default:
				o, n := oldEntries[i], newEntries[j]
				c := compare(o.ID(), n.ID())
				switch {
				case c < 0:
					e = DeltaEntry[V]{Old: o}
					i++
				case c > 0:
					e = DeltaEntry[V]{New: n}
					j++
				default:
					i++
					j++
					if o == n {
						continue
					}
					e = DeltaEntry[V]{Old: o, New: n}
				}
			}
			if !yield(e) {
				return
			}
		}
	}
}

// IsEmpty returns whether the maps have no differences.
func (d MapDelta[K, V]) IsEmpty() bool {
	for range d.All() {
		return false
	}
	return true
}

// ForEachChanged calls fn for every changed entry. It stops at the first
// error and returns it.
func (d MapDelta[K, V]) ForEachChanged(fn func(old, new V) error) error {
	for e := range d.All() {
		if e.IsChanged() {
			if err := fn(e.Old, e.New); err != nil {
				return err
			}
		}
	}
	return nil
}

// ForEachAdded calls fn for every added entry. It stops at the first error
// and returns it.
func (d MapDelta[K, V]) ForEachAdded(fn func(new V) error) error {
	for e := range d.All() {
		if e.IsAdded() {
			if err := fn(e.New); err != nil {
				return err
			}
		}
	}
	return nil
}

// ForEachRemoved calls fn for every removed entry. It stops at the first
// error and returns it.
func (d MapDelta[K, V]) ForEachRemoved(fn func(old V) error) error {
	for e := range d.All() {
		if e.IsRemoved() {
			if err := fn(e.Old); err != nil {
				return err
			}
		}
	}
	return nil
}

// ForEachChangedAddedRemoved visits the delta once and dispatches each entry
// to the matching callback. Nil callbacks are skipped.
func (d MapDelta[K, V]) ForEachChangedAddedRemoved(
	changed func(old, new V) error,
	added func(new V) error,
	removed func(old V) error,
) error {

	for e := range d.All() {
		var err error
		switch {
		case e.IsAdded():
			if added != nil {
				err = added(e.New)
			}
		case e.IsRemoved():
			if removed != nil {
				err = removed(e.Old)
			}
		default:
			if changed != nil {
				err = changed(e.Old, e.New)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DeltaValue is the difference of a singleton node.
type DeltaValue[T comparable] struct {
	Old T
	New T
}

// IsChanged returns whether Old and New are distinct nodes.
func (d DeltaValue[T]) IsChanged() bool {
	return d.Old != d.New
}
