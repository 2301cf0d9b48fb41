// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"
	"sync"

	"github.com/caffix/stringset"
	"github.com/descore/simkernel/event"
	"github.com/descore/simkernel/executive"
	"github.com/descore/simkernel/kernelerr"
	"github.com/descore/simkernel/pubsub"
	multierror "github.com/hashicorp/go-multierror"
	bf "github.com/tylertreat/BoomFilters"
)

// Model is the root of the ModelElement tree. It owns the name
// registry, the set of nodes whose own self-scheduled warm-up event has
// fired in the current replication, and the pre-order traversal
// labeling.
type Model struct {
	*Node

	mu      sync.Mutex
	names   map[string]*Node
	filter  *bf.StableBloomFilter // fed every added name, mirroring plugins/dns/reverse.go's seen-address filter; its result never gates the names lookup
	running bool

	scaleToMillis float64 // per-Model simulated-time-unit scale factor

	hub *pubsub.Hub

	// warmedUp holds the names of nodes whose own self-scheduled
	// warm-up event has already fired during the in-progress
	// replication, queryable via IsWarmedUp.
	warmedUp map[string]struct{}
}

// New returns an empty Model. scaleToMillis converts one unit of this
// model's simulated time into milliseconds for reporting purposes;
// pass 0 to leave simulated time unitless.
func New(hub *pubsub.Hub, scaleToMillis float64) *Model {
	m := &Model{
		names:         make(map[string]*Node),
		filter:        bf.NewDefaultStableBloomFilter(10000, 0.01),
		hub:           hub,
		scaleToMillis: scaleToMillis,
		warmedUp:      make(map[string]struct{}),
	}
	m.Node = newNode(m, "Model", nil, m)
	m.names[m.Node.name] = m.Node
	return m
}

// ScaleToMillis returns the model's simulated-time-to-milliseconds
// scale factor.
func (m *Model) ScaleToMillis() float64 { return m.scaleToMillis }

// SetRunning marks whether a replication is in progress; Add/Remove
// reject mutation while true, since the tree shape is fixed once a
// replication is underway.
func (m *Model) SetRunning(running bool) { m.mu.Lock(); m.running = running; m.mu.Unlock() }

// Add attaches a newly constructed element as a child of parent (the
// Model root itself, if parent is nil), assigning it a unique name.
// If name is "", a default of the form "<Type>_<shortid>" is used.
func (m *Model) Add(self Element, name string, parent *Node) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil, kernelerr.New(kernelerr.IllegalState, "Model.Add",
			"cannot add a model element while a replication is running")
	}
	if parent == nil {
		parent = m.Node
	}
	if parent.model != m {
		return nil, kernelerr.New(kernelerr.InvalidArgument, "Model.Add", "parent belongs to a different Model")
	}

	n := newNode(self, "", parent, m)
	if name == "" {
		name = defaultName(self, n.id)
	}
	// The bloom filter is a fast-path hint only: a StableBloomFilter
	// decays over time and can false-negative on a long-lived model, so
	// the map lookup below is the authoritative uniqueness check
	// regardless of what TestAndAdd reports.
	m.filter.TestAndAdd([]byte(name))
	if _, exists := m.names[name]; exists {
		return nil, kernelerr.New(kernelerr.InvalidArgument, "Model.Add",
			fmt.Sprintf("name %q is already registered", name))
	}
	n.name = name
	m.names[name] = n
	parent.children = append(parent.children, n)

	if m.hub != nil {
		m.hub.Publish(pubsub.Notification{Element: name, Phase: pubsub.ModelElementAdded})
	}
	return n, nil
}

// Remove detaches n and its entire subtree from the tree and the name
// registry, publishing RemovedFromModel for each detached node.
func (m *Model) Remove(n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return kernelerr.New(kernelerr.IllegalState, "Model.Remove",
			"cannot remove a model element while a replication is running")
	}
	if n == m.Node {
		return kernelerr.New(kernelerr.InvalidArgument, "Model.Remove", "cannot remove the Model root")
	}
	if n.parent != nil {
		siblings := n.parent.children
		for i, c := range siblings {
			if c == n {
				n.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	m.removeSubtree(n)
	return nil
}

func (m *Model) removeSubtree(n *Node) {
	for _, c := range n.children {
		m.removeSubtree(c)
	}
	delete(m.names, n.name)
	delete(m.warmedUp, n.name)
	if m.hub != nil {
		m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.RemovedFromModel})
	}
}

// Lookup returns the node registered under name, or nil.
func (m *Model) Lookup(name string) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names[name]
}

// Names returns every registered element name, built with
// caffix/stringset the same way support.ScrapeSubdomainNames collects
// and deduplicates scraped results: insert into a set, then export it
// as a slice. The names are not sorted.
func (m *Model) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := stringset.New()
	for name := range m.names {
		set.Insert(name)
	}
	return set.Slice()
}

// AssignTraversalLabels walks the tree in pre-order and assigns
// (left, right) interval labels, so ancestry can later be tested in
// O(1) without walking parent pointers.
func (m *Model) AssignTraversalLabels() {
	counter := 0
	var walk func(n *Node)
	walk = func(n *Node) {
		counter++
		n.left = counter
		for _, c := range n.children {
			walk(c)
		}
		counter++
		n.right = counter
	}
	walk(m.Node)
}

// IsAncestor reports whether a is an ancestor of (or equal to) b,
// using the labels from the most recent AssignTraversalLabels.
func IsAncestor(a, b *Node) bool {
	return a.left <= b.left && b.right <= a.right
}

// dispatchPostOrder walks the subtree rooted at n in post-order,
// invoking visit on every node (visit itself checks whether the node's
// self implements the capability being dispatched) and not descending
// into any node for which skip returns true, aggregating per-node
// failures with
// hashicorp/go-multierror so one element's panic does not prevent its
// siblings from completing the phase.
func dispatchPostOrder(n *Node, skip func(*Node) bool, visit func(*Node)) error {
	var errs error
	var walk func(*Node)
	walk = func(cur *Node) {
		if skip != nil && skip(cur) {
			return
		}
		for _, c := range cur.children {
			walk(c)
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = multierror.Append(errs, kernelerr.New(kernelerr.InvalidArgument,
						"model.dispatchPostOrder", fmt.Sprintf("element %q panicked: %v", cur.name, r)).WithOwner(cur.name))
				}
			}()
			visit(cur)
		}()
	}
	walk(n)
	return errs
}

// dispatchAll runs dispatchPostOrder over the whole tree.
func (m *Model) dispatchAll(visit func(*Node)) error {
	return dispatchPostOrder(m.Node, nil, visit)
}

// BeforeExperiment dispatches the BeforeExperimenter capability over
// the whole tree, in post-order, then assigns fresh traversal labels.
func (m *Model) BeforeExperiment() error {
	err := m.dispatchAll(func(n *Node) {
		if be, ok := n.self.(BeforeExperimenter); ok {
			be.BeforeExperiment()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.BeforeExperiment})
		}
	})
	m.AssignTraversalLabels()
	return err
}

// BeforeReplication dispatches the BeforeReplicationer capability over
// the whole tree, after resetting the warmed-up tracking set. A node's
// warm-up ownership (set by ScheduleWarmUps) is not reset here.
func (m *Model) BeforeReplication() error {
	m.warmedUp = make(map[string]struct{})
	return m.dispatchAll(func(n *Node) {
		if br, ok := n.self.(BeforeReplicationer); ok {
			br.BeforeReplication()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.BeforeReplication})
		}
	})
}

// Initialize dispatches the Initializer capability over the whole
// tree.
func (m *Model) Initialize() error {
	return m.dispatchAll(func(n *Node) {
		if in, ok := n.self.(Initializer); ok {
			in.Initialize()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.Initialized})
		}
	})
}

// RegisterConditionalActions dispatches the ConditionalActionRegistrar
// capability, letting each element register against ex's
// ConditionalActionProcessor.
func (m *Model) RegisterConditionalActions(ex *executive.Executive) error {
	return m.dispatchAll(func(n *Node) {
		if car, ok := n.self.(ConditionalActionRegistrar); ok {
			car.RegisterConditionalActions(ex)
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.ConditionalActionRegistration})
		}
	})
}

// MonteCarlo dispatches the MonteCarloer capability over the whole
// tree, post-order.
func (m *Model) MonteCarlo() error {
	return m.dispatchAll(func(n *Node) {
		if mc, ok := n.self.(MonteCarloer); ok {
			mc.MonteCarlo()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.MonteCarlo})
		}
	})
}

// Update dispatches the Updater capability over the whole tree,
// post-order.
func (m *Model) Update() error {
	return m.dispatchAll(func(n *Node) {
		if u, ok := n.self.(Updater); ok {
			u.Update()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.Update})
		}
	})
}

// ReplicationEnded dispatches the ReplicationEnder capability over the
// whole tree, post-order, after the Executive's end-event fires.
func (m *Model) ReplicationEnded() error {
	return m.dispatchAll(func(n *Node) {
		if re, ok := n.self.(ReplicationEnder); ok {
			re.ReplicationEnded()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.ReplicationEnded})
		}
	})
}

// AfterReplication dispatches the AfterReplicationer capability over
// the whole tree, post-order.
func (m *Model) AfterReplication() error {
	return m.dispatchAll(func(n *Node) {
		if ar, ok := n.self.(AfterReplicationer); ok {
			ar.AfterReplication()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.AfterReplication})
		}
	})
}

// AfterExperiment dispatches the AfterExperimenter capability over the
// whole tree, post-order.
func (m *Model) AfterExperiment() error {
	return m.dispatchAll(func(n *Node) {
		if ae, ok := n.self.(AfterExperimenter); ok {
			ae.AfterExperiment()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: n.name, Phase: pubsub.AfterExperiment})
		}
	})
}

// IsWarmedUp reports whether the node registered under name has
// already had its own warm-up event fire during the current
// replication.
func (m *Model) IsWarmedUp(name string) bool {
	_, ok := m.warmedUp[name]
	return ok
}

// ScheduleWarmUps walks the tree once at replication start and
// schedules a warm-up event, via ex, for every node with a positive
// warm-up length, marking it as owning its own schedule so its
// parent's warm-up no longer propagates to it.
func (m *Model) ScheduleWarmUps(ex *executive.Executive) error {
	var errs error
	var walk func(*Node)
	walk = func(n *Node) {
		if n.warmUpLength > 0 {
			n.warmUpOption = false
			node := n
			if _, err := ex.Schedule(func(*event.Event) error {
				return m.fireWarmUp(node)
			}, n.warmUpLength, event.PriorityWarmUp, nil, "WarmUp:"+n.name, n); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(m.Node)
	return errs
}

// fireWarmUp dispatches the WarmUp capability over n and every
// descendant that does not own its own warm-up schedule, in
// post-order, then records n as warmed up.
func (m *Model) fireWarmUp(n *Node) error {
	err := dispatchPostOrder(n, func(c *Node) bool {
		return c != n && c.warmUpLength > 0
	}, func(cur *Node) {
		if wu, ok := cur.self.(WarmUpper); ok {
			wu.WarmUp()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: cur.name, Phase: pubsub.WarmUp})
		}
	})
	m.warmedUp[n.name] = struct{}{}
	return err
}

// ScheduleTimedUpdates walks the tree once at replication start and
// schedules the first recurring timed-update event, via ex, for every
// node implementing TimedUpdater with a positive interval. Each
// firing reschedules itself.
func (m *Model) ScheduleTimedUpdates(ex *executive.Executive) error {
	var errs error
	var walk func(*Node)
	walk = func(n *Node) {
		if tu, ok := n.self.(TimedUpdater); ok && tu.TimedUpdateInterval() > 0 {
			node := n
			if _, err := ex.Schedule(func(*event.Event) error {
				return m.fireTimedUpdate(ex, node)
			}, tu.TimedUpdateInterval(), event.PriorityTimedUpdate, nil, "TimedUpdate:"+n.name, n); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(m.Node)
	return errs
}

// fireTimedUpdate dispatches the TimedUpdate capability over n and
// every descendant lacking its own timed-update schedule, in
// post-order, then reschedules n's own next firing.
func (m *Model) fireTimedUpdate(ex *executive.Executive, n *Node) error {
	err := dispatchPostOrder(n, func(c *Node) bool {
		if c == n {
			return false
		}
		tu, ok := c.self.(TimedUpdater)
		return ok && tu.TimedUpdateInterval() > 0
	}, func(cur *Node) {
		if tu, ok := cur.self.(TimedUpdater); ok {
			tu.TimedUpdate()
		}
		if m.hub != nil {
			m.hub.Publish(pubsub.Notification{Element: cur.name, Phase: pubsub.TimedUpdate})
		}
	})

	if tu, ok := n.self.(TimedUpdater); ok && tu.TimedUpdateInterval() > 0 {
		if _, serr := ex.Schedule(func(*event.Event) error {
			return m.fireTimedUpdate(ex, n)
		}, tu.TimedUpdateInterval(), event.PriorityTimedUpdate, nil, "TimedUpdate:"+n.name, n); serr != nil {
			err = multierror.Append(err, serr)
		}
	}
	return err
}
