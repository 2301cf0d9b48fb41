// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package model implements the ModelElement tree: hierarchical
// construction, per-lifecycle dispatch, warm-up/timed-update
// propagation, and pre-order traversal labels.
package model

import (
	"fmt"

	"github.com/descore/simkernel/event"
	"github.com/descore/simkernel/executive"
	"github.com/google/uuid"
)

// BeforeExperimenter, BeforeReplicationer, Initializer,
// ConditionalActionRegistrar, MonteCarloer, Updater, WarmUpper,
// TimedUpdater, ReplicationEnder, AfterReplicationer, and
// AfterExperimenter are the capability interfaces a concrete model
// element may satisfy. A Node participates in a lifecycle phase only
// when its Element implements the matching interface: Go interfaces
// replace virtual-base-class dispatch.
type BeforeExperimenter interface{ BeforeExperiment() }
type BeforeReplicationer interface{ BeforeReplication() }
type Initializer interface{ Initialize() }
type ConditionalActionRegistrar interface{ RegisterConditionalActions(*executive.Executive) }
type MonteCarloer interface{ MonteCarlo() }
type Updater interface{ Update() }
type WarmUpper interface{ WarmUp() }
type TimedUpdater interface {
	TimedUpdate()
	TimedUpdateInterval() float64
}
type ReplicationEnder interface{ ReplicationEnded() }
type AfterReplicationer interface{ AfterReplication() }
type AfterExperimenter interface{ AfterExperiment() }

// Element is the minimal identity every model element must supply. A
// concrete element embeds *Node and is passed back to Node via
// Model.Add's self parameter, the same "self" idiom the tree uses to
// let base-struct methods dispatch to the most-derived capability
// interfaces without a traditional base-class vtable.
type Element interface {
	event.Owner
}

// Node is the base embedded by every concrete model element. It holds
// identity, tree linkage, warm-up/timed-update bookkeeping, and the
// pre-order traversal labels.
type Node struct {
	id   uuid.UUID
	name string
	self Element

	model    *Model
	parent   *Node
	children []*Node

	warmUpLength float64
	warmUpOption bool // true: inherit nearest ancestor's warm-up; false: schedules (or scheduled) its own

	left, right int // pre-order traversal interval labels
}

// ElementName implements event.Owner.
func (n *Node) ElementName() string { return n.name }

// ID returns the node's identity, assigned once at construction.
func (n *Node) ID() uuid.UUID { return n.id }

// Name returns the node's registered name. Renaming after
// construction is not supported; names are stable for the node's
// lifetime.
func (n *Node) Name() string { return n.name }

// Parent returns the node's parent, or nil for the Model root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's direct children, in construction order.
// The returned slice must not be mutated by the caller.
func (n *Node) Children() []*Node { return n.children }

// Model returns the owning Model.
func (n *Node) Model() *Model { return n.model }

// SetWarmUpLength configures the node to schedule its own warm-up
// event, of the given simulated-time length, at the start of every
// replication. A length of 0 (the default) means the node has no
// warm-up of its own and defers to its nearest ancestor's.
func (n *Node) SetWarmUpLength(length float64) { n.warmUpLength = length }

// WarmUpLength returns the node's own warm-up length (0 if none).
func (n *Node) WarmUpLength() float64 { return n.warmUpLength }

// EffectiveWarmUp walks up from n, including n, and returns the
// warm-up length of the nearest node that owns its own schedule
// (warmUpOption == false), or 0 if no such ancestor exists.
func (n *Node) EffectiveWarmUp() float64 {
	for cur := n; cur != nil; cur = cur.parent {
		if !cur.warmUpOption {
			return cur.warmUpLength
		}
	}
	return 0
}

// TraversalLabels returns the pre-order (left, right) interval pair
// assigned by the Model's most recent AssignTraversalLabels call.
// right - left equals twice the number of descendants plus one, so "is n an
// ancestor of m" reduces to n.left < m.left && m.right < n.right.
func (n *Node) TraversalLabels() (left, right int) { return n.left, n.right }

func newNode(self Element, name string, parent *Node, m *Model) *Node {
	return &Node{
		id:           uuid.New(),
		name:         name,
		self:         self,
		model:        m,
		parent:       parent,
		warmUpOption: true,
	}
}

func defaultName(self Element, id uuid.UUID) string {
	return fmt.Sprintf("%T_%s", self, id.String()[:8])
}
