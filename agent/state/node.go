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

// Package state contains the switch state tree.
//
// The tree is a persistent copy-on-write structure. Every object in it is a
// node. A node is either published, in which case it is visible to readers
// and must never change again, or it is unpublished, in which case it was
// created by the transaction that is currently in progress and may be
// changed in place.
//
// Changes are made through Modify. Modify on a published node clones the node
// and all of its published ancestors up to the root, exactly once per
// transaction. Unchanged siblings are shared between the old and the new
// tree. Two nodes are considered equal by the delta computation if and only
// if they are the same pointer.
//
// Usage:
//
//	s := committed.Clone()
//	port := s.Ports().Get(5).Modify(&s)
//	f := port.Fields()
//	f.AdminState = state.PortEnabled
//	port.SetFields(f)
//	s.Publish()
package state

import (
	"errors"
	"fmt"

	"github.com/netfab/switchd/pkg/private/serrors"
)

// ErrProgramming indicates the violation of a state tree invariant, e.g.,
// modifying a node that is not reachable from the given root or adding a
// duplicate key. It is raised as a panic. The update pipeline recovers it and
// reports it to the submitter of the update.
var ErrProgramming = errors.New("programming error")

func programmingError(msg string, errCtx ...any) {
	panic(serrors.Wrap(msg, ErrProgramming, errCtx...))
}

// Node is implemented by every object in the state tree.
type Node interface {
	// IsPublished returns whether the node is visible to readers and thus
	// immutable.
	IsPublished() bool
	// Publish marks the node and all of its descendants as immutable.
	Publish()
	// Generation is the number of times the node was cloned.
	Generation() uint64
}

// Entry is a node that can be stored in a NodeMap under its ID.
type Entry[K any] interface {
	comparable
	Node
	ID() K
}

type nodeBase struct {
	published  bool
	generation uint64
}

func (n *nodeBase) IsPublished() bool {
	return n.published
}

func (n *nodeBase) Generation() uint64 {
	return n.generation
}

func (n *nodeBase) markPublished() {
	n.published = true
}

// next returns the base of a clone of n. Clones start unpublished.
func (n *nodeBase) next() nodeBase {
	return nodeBase{generation: n.generation + 1}
}

func (n *nodeBase) checkWritable(what any) {
	if n.published {
		programmingError("modifying published node", "node", fmt.Sprint(what))
	}
}

// fields is implemented by the value types stored in leaf nodes.
type fields[F any] interface {
	// clone returns a deep copy. Slices and maps are never shared between
	// two nodes.
	clone() F
	// key returns the identity of the resource. It must not change across
	// modifications.
	key() any
}

// leaf is a node that holds a plain value and no child nodes.
type leaf[F fields[F]] struct {
	nodeBase
	fields F
}

func newLeaf[F fields[F]](f F) leaf[F] {
	return leaf[F]{fields: f.clone()}
}

// Fields returns a copy of the node's value.
func (l *leaf[F]) Fields() F {
	return l.fields.clone()
}

// SetFields replaces the node's value. The node must be unpublished and the
// resource key must not change.
func (l *leaf[F]) SetFields(f F) {
	l.checkWritable(l.fields.key())
	if l.fields.key() != f.key() {
		programmingError("changing resource key",
			"old", fmt.Sprint(l.fields.key()), "new", fmt.Sprint(f.key()))
	}
	l.fields = f.clone()
}

// Publish marks the leaf immutable.
func (l *leaf[F]) Publish() {
	l.markPublished()
}

func (l *leaf[F]) cloneLeaf() leaf[F] {
	return leaf[F]{nodeBase: l.next(), fields: l.fields.clone()}
}

// replaceEntry swaps old for repl in the writable map m. old must be the
// node currently stored in m under its key.
func replaceEntry[K any, V Entry[K]](m *NodeMap[K, V], old, repl V) {
	cur, ok := m.GetIf(old.ID())
	if !ok || cur != old {
		programmingError("modifying node that is not reachable from the root",
			"key", fmt.Sprint(old.ID()))
	}
	m.Update(repl)
}
