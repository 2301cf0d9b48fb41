// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package conditional implements the C-phase scanner: registered
// predicates are re-checked to a fixed point between event-time
// advances.
package conditional

import (
	"sort"
	"sync/atomic"

	"github.com/descore/simkernel/kernelerr"
	multierror "github.com/hashicorp/go-multierror"
)

// Action is a registered conditional action: an orderable predicate
// plus the work it performs when the predicate holds.
type Action interface {
	TestCondition() bool
	Fire()
}

// entry pairs a registered Action with its priority and assigned
// sequence id, the comparator key used to order the scan.
type entry struct {
	action   Action
	priority int
	id       uint64
}

// Processor holds the ordered set of registered conditional actions
// and drives performCPhase. The priority clamp is 1-9, default 5; see
// DESIGN.md for why that range was chosen.
type Processor struct {
	entries []*entry
	nextID  uint64

	maxScans    int
	enforceMax  bool
	lastScanLen int
}

const (
	minPriority     = 1
	maxPriority     = 9
	defaultPriority = 5
)

// NewProcessor returns an empty Processor with max-scan enforcement
// disabled.
func NewProcessor() *Processor {
	return &Processor{maxScans: 1000}
}

func clampPriority(p int) int {
	switch {
	case p == 0:
		return defaultPriority
	case p < minPriority:
		return minPriority
	case p > maxPriority:
		return maxPriority
	default:
		return p
	}
}

// Register adds a to the processor at the given priority (clamped to
// [1,9]; 0 means "use the default priority").
func (p *Processor) Register(a Action, priority int) {
	id := atomic.AddUint64(&p.nextID, 1)
	p.entries = append(p.entries, &entry{action: a, priority: clampPriority(priority), id: id})
	p.sort()
}

// Unregister removes a single registration of a, if present.
func (p *Processor) Unregister(a Action) {
	for i, e := range p.entries {
		if e.action == a {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}

// UnregisterAll clears the processor's registrations.
func (p *Processor) UnregisterAll() {
	p.entries = nil
}

// ChangePriority re-priorities every registration of a.
func (p *Processor) ChangePriority(a Action, priority int) {
	changed := false
	for _, e := range p.entries {
		if e.action == a {
			e.priority = clampPriority(priority)
			changed = true
		}
	}
	if changed {
		p.sort()
	}
}

// SetMaxScans sets the fixed-point scan cap checked when enforcement
// is enabled.
func (p *Processor) SetMaxScans(k int) { p.maxScans = k }

// SetMaxScanFlag toggles scan-cap enforcement.
func (p *Processor) SetMaxScanFlag(enforce bool) { p.enforceMax = enforce }

// Len reports the number of registered actions.
func (p *Processor) Len() int { return len(p.entries) }

func (p *Processor) sort() {
	sort.SliceStable(p.entries, func(i, j int) bool {
		a, b := p.entries[i], p.entries[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.id < b.id
	})
}

// PerformCPhase runs the fixed-point scan algorithm: repeatedly walk
// the registered actions in (priority, id) order,
// firing every action whose predicate currently holds, until a full
// pass fires nothing. Per-action panics are caught and aggregated with
// hashicorp/go-multierror so one misbehaving action does not abort the
// scan for its neighbors; the aggregated error (if any) is returned
// after the fixed point is reached.
func (p *Processor) PerformCPhase() error {
	var errs error
	scans := 0
	for {
		scans++
		firedAny := false
		for _, e := range p.entries {
			if fireOne(e.action, &errs) {
				firedAny = true
			}
		}
		if p.enforceMax && scans >= p.maxScans {
			return kernelerr.New(kernelerr.ScanLimitExceeded, "Processor.PerformCPhase",
				"conditional-action scan limit exceeded")
		}
		if !firedAny {
			break
		}
	}
	p.lastScanLen = scans
	return errs
}

// LastScanCount reports how many scans the most recent PerformCPhase
// needed to reach its fixed point: it terminates with no action firing
// on the final pass.
func (p *Processor) LastScanCount() int { return p.lastScanLen }

func fireOne(a Action, errs *error) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			*errs = multierror.Append(*errs, kernelerr.Wrap(kernelerr.InvalidArgument,
				"Processor.PerformCPhase", "conditional action panicked", asError(r)))
		}
	}()
	if a.TestCondition() {
		a.Fire()
		fired = true
	}
	return
}

func asError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return kernelerr.New(kernelerr.InvalidArgument, "conditional.fireOne", "non-error panic value")
}
