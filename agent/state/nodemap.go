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
	"cmp"
	"fmt"
	"iter"
	"slices"
)

// NodeMap is a persistent map from keys to nodes. The entries are kept
// sorted by key, which allows the delta computation to merge-join two maps.
//
// A nil *NodeMap behaves like an empty, published map for all read
// operations.
type NodeMap[K any, V Entry[K]] struct {
	nodeBase
	cmp     func(a, b K) int
	entries []V
}

// NewNodeMap creates an empty map ordered by compare.
func NewNodeMap[K any, V Entry[K]](compare func(a, b K) int) *NodeMap[K, V] {
	return &NodeMap[K, V]{cmp: compare}
}

// newOrderedMap creates an empty map for naturally ordered keys.
func newOrderedMap[K cmp.Ordered, V Entry[K]]() *NodeMap[K, V] {
	return NewNodeMap[K, V](cmp.Compare[K])
}

func (m *NodeMap[K, V]) search(k K) (int, bool) {
	return slices.BinarySearchFunc(m.entries, k, func(e V, k K) int {
		return m.cmp(e.ID(), k)
	})
}

// Len returns the number of entries.
func (m *NodeMap[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Get returns the entry with key k. A missing key is a programming error.
func (m *NodeMap[K, V]) Get(k K) V {
	v, ok := m.GetIf(k)
	if !ok {
		programmingError("entry not found", "key", fmt.Sprint(k))
	}
	return v
}

// GetIf returns the entry with key k, if present.
func (m *NodeMap[K, V]) GetIf(k K) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	i, ok := m.search(k)
	if !ok {
		return zero, false
	}
	return m.entries[i], true
}

// Add inserts v. A duplicate key is a programming error.
func (m *NodeMap[K, V]) Add(v V) {
	m.checkWritable("map")
	i, ok := m.search(v.ID())
	if ok {
		programmingError("duplicate key", "key", fmt.Sprint(v.ID()))
	}
	m.entries = slices.Insert(m.entries, i, v)
}

// Update replaces the entry with the key of v. A missing key is a
// programming error.
func (m *NodeMap[K, V]) Update(v V) {
	m.checkWritable("map")
	i, ok := m.search(v.ID())
	if !ok {
		programmingError("updating missing entry", "key", fmt.Sprint(v.ID()))
	}
	m.entries[i] = v
}

// AddOrUpdate inserts v or replaces the entry with the same key.
func (m *NodeMap[K, V]) AddOrUpdate(v V) {
	m.checkWritable("map")
	i, ok := m.search(v.ID())
	if ok {
		m.entries[i] = v
		return
	}
	m.entries = slices.Insert(m.entries, i, v)
}

// Remove deletes and returns the entry with key k. A missing key is a
// programming error.
func (m *NodeMap[K, V]) Remove(k K) V {
	v, ok := m.RemoveIf(k)
	if !ok {
		programmingError("removing missing entry", "key", fmt.Sprint(k))
	}
	return v
}

// RemoveIf deletes and returns the entry with key k, if present.
func (m *NodeMap[K, V]) RemoveIf(k K) (V, bool) {
	m.checkWritable("map")
	var zero V
	i, ok := m.search(k)
	if !ok {
		return zero, false
	}
	v := m.entries[i]
	m.entries = slices.Delete(m.entries, i, i+1)
	return v, true
}

// All iterates over the entries in key order.
func (m *NodeMap[K, V]) All() iter.Seq[V] {
	return func(yield func(V) bool) {
		if m == nil {
			return
		}
		for _, v := range m.entries {
			if !yield(v) {
				return
			}
		}
	}
}

// Keys returns the keys in order.
func (m *NodeMap[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())
	for v := range m.All() {
		keys = append(keys, v.ID())
	}
	return keys
}

// Clone returns an unpublished shallow copy. The entries are shared with m.
func (m *NodeMap[K, V]) Clone() *NodeMap[K, V] {
	return &NodeMap[K, V]{
		nodeBase: m.next(),
		cmp:      m.cmp,
		entries:  slices.Clone(m.entries),
	}
}

// Publish publishes the map and every unpublished entry.
func (m *NodeMap[K, V]) Publish() {
	if m == nil || m.published {
		return
	}
	for _, v := range m.entries {
		if !v.IsPublished() {
			v.Publish()
		}
	}
	m.markPublished()
}

// IsPublished returns whether the map is immutable. A nil map counts as
// published.
func (m *NodeMap[K, V]) IsPublished() bool {
	return m == nil || m.published
}

// writable returns m if it is unpublished, or an unpublished clone of m
// otherwise.
func (m *NodeMap[K, V]) writable() *NodeMap[K, V] {
	if !m.IsPublished() {
		return m
	}
	return m.Clone()
}
