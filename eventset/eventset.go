// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package eventset implements the ordered container of Events that the
// Executive pops from on every step.
package eventset

import (
	"container/heap"

	"github.com/descore/simkernel/event"
	"github.com/descore/simkernel/kernelerr"
)

// EventSet is an ordered container over *event.Event, ordered
// lexicographically by (Time, Priority, id). insert/peek/pop/cancel
// are safe to call only from the Executive's driver goroutine: single-
// threaded cooperative scheduling, no internal locking.
type EventSet struct {
	h innerHeap
}

// New returns an empty EventSet.
func New() *EventSet {
	es := &EventSet{}
	heap.Init(&es.h)
	return es
}

// Insert adds e to the set. Precondition: e.Scheduled is false.
func (s *EventSet) Insert(e *event.Event) error {
	if e.Scheduled {
		return kernelerr.New(kernelerr.IllegalState, "EventSet.Insert",
			"event is already scheduled").WithOwner(e.OwnerName())
	}
	e.Scheduled = true
	heap.Push(&s.h, e)
	return nil
}

// Peek returns the earliest non-canceled event without removing it,
// discarding any canceled events found at the top along the way.
func (s *EventSet) Peek() *event.Event {
	s.dropCanceledTop()
	if s.h.Len() == 0 {
		return nil
	}
	return s.h[0]
}

// Pop removes and returns the earliest non-canceled event, discarding
// canceled ones encountered first. Returns nil if the set is empty.
func (s *EventSet) Pop() *event.Event {
	s.dropCanceledTop()
	if s.h.Len() == 0 {
		return nil
	}
	e := heap.Pop(&s.h).(*event.Event)
	e.Scheduled = false
	return e
}

// dropCanceledTop physically removes canceled events sitting at the
// root; the public effect of Cancel (mark-and-skip) is indistinguishable
// either way.
func (s *EventSet) dropCanceledTop() {
	for s.h.Len() > 0 && s.h[0].Canceled {
		e := heap.Pop(&s.h).(*event.Event)
		e.Scheduled = false
	}
}

// Cancel marks e canceled. Precondition: e.Scheduled is true. Physical
// removal is deferred to Pop/Peek.
func (s *EventSet) Cancel(e *event.Event) error {
	if !e.Scheduled {
		return kernelerr.New(kernelerr.IllegalState, "EventSet.Cancel",
			"event is not scheduled").WithOwner(e.OwnerName())
	}
	e.Canceled = true
	return nil
}

// Clear removes all events from the set.
func (s *EventSet) Clear() {
	for _, e := range s.h {
		e.Scheduled = false
	}
	s.h = s.h[:0]
}

// Len returns the number of events still held, including canceled ones
// not yet physically removed.
func (s *EventSet) Len() int { return s.h.Len() }

// Empty reports whether the set has no non-canceled events left.
func (s *EventSet) Empty() bool {
	return s.Peek() == nil
}

// innerHeap implements container/heap.Interface over *event.Event.
type innerHeap []*event.Event

func (h innerHeap) Len() int { return len(h) }

func (h innerHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.ID() == b.ID() && a != b {
		panic(kernelerr.New(kernelerr.OrderingViolation, "EventSet.Less",
			"two distinct events share a sequence id"))
	}
	return a.Less(b)
}

func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *innerHeap) Push(x interface{}) {
	*h = append(*h, x.(*event.Event))
}

func (h *innerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
