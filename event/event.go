// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package event defines the scheduled unit of work dispatched by the
// simulation kernel's Executive.
package event

// Reserved event priorities. Smaller values dispatch first at equal
// simulated time.
const (
	PriorityDefault     = 10
	PriorityTimedUpdate = 3
	PriorityBatch       = 8000
	PriorityWarmUp      = 9000
	PriorityEndRepl     = 10000
)

// Action is the handler invoked when an Event is dispatched.
type Action func(e *Event) error

// Owner identifies the model element (or other collaborator) that
// scheduled an Event. It is a narrow interface so the event package
// does not depend on the model package: a non-owning handle in place
// of an upward pointer.
type Owner interface {
	ElementName() string
}

// Event is a scheduled unit of work. Once inserted into an EventSet
// the tuple (Time, Priority, id) is immutable; Time and Priority must
// not be mutated while Scheduled is true.
type Event struct {
	Time     float64 // simulated time at which the event fires
	Priority int     // smaller dispatches first at equal Time
	id       uint64  // monotonically-assigned sequence id, tie-breaker
	Name     string
	Action   Action
	Payload  interface{}
	Owner    Owner

	Scheduled bool
	Canceled  bool
}

// ID returns the event's immutable sequence id.
func (e *Event) ID() uint64 { return e.id }

// New constructs an Event with its immutable sequence id assigned.
// id assignment is confined to the Executive (the only caller of New);
// everyone else receives read-only *Event values.
func New(id uint64, name string, t float64, priority int, action Action, payload interface{}, owner Owner) *Event {
	return &Event{
		id:       id,
		Name:     name,
		Time:     t,
		Priority: priority,
		Action:   action,
		Payload:  payload,
		Owner:    owner,
	}
}

// Less implements the EventSet total order: (Time, Priority, id)
// ascending. Equal ids imply identity; comparing two distinct events
// that happen to share an id is a fatal OrderingViolation, detected by
// the eventset package, not here (Less has no error channel).
func (e *Event) Less(other *Event) bool {
	if e.Time != other.Time {
		return e.Time < other.Time
	}
	if e.Priority != other.Priority {
		return e.Priority < other.Priority
	}
	return e.id < other.id
}

// OwnerName reports the scheduling owner's name, or "" if nil.
func (e *Event) OwnerName() string {
	if e.Owner == nil {
		return ""
	}
	return e.Owner.ElementName()
}
