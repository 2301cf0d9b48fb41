// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package executive implements the simulation driver: the time
// advancement, scheduling API, and end-of-run handling.
package executive

import (
	"fmt"
	"log/slog"

	"github.com/descore/simkernel/conditional"
	"github.com/descore/simkernel/event"
	"github.com/descore/simkernel/eventset"
	"github.com/descore/simkernel/iterproc"
	"github.com/descore/simkernel/kernelerr"
	"github.com/descore/simkernel/pubsub"
)

// Counters tracks the scheduling/execution tallies kept on the
// Executive.
type Counters struct {
	Scheduled           uint64
	ScheduledDuringExec uint64
	Executed            uint64
}

// Executive is the driver that advances simulated time by repeatedly
// dispatching the earliest pending Event. It embeds an
// iterproc.IterativeProcess whose Stepper is the Executive itself.
type Executive struct {
	*iterproc.IterativeProcess

	events *eventset.EventSet
	cond   *conditional.Processor
	hub    *pubsub.Hub
	log    *slog.Logger

	currentTime  float64
	lastExecuted *event.Event
	nextID       uint64

	endEvent    *event.Event
	hasEndEvent bool
	actualEnd   float64

	counters Counters

	dispatching bool // true while inside an action, used to reject mutation of the active event's time/priority
}

// New returns an Executive in the Created state.
func New(cond *conditional.Processor, hub *pubsub.Hub, log *slog.Logger) *Executive {
	if cond == nil {
		cond = conditional.NewProcessor()
	}
	if hub == nil {
		hub = pubsub.NewHub()
	}
	ex := &Executive{
		events: eventset.New(),
		cond:   cond,
		hub:    hub,
		log:    log,
	}
	ex.IterativeProcess = iterproc.New(ex)
	return ex
}

// CurrentTime returns the simulated time of the last dispatched
// non-canceled event, or 0 before any dispatch.
func (ex *Executive) CurrentTime() float64 { return ex.currentTime }

// LastExecuted returns the most recently dispatched event, or nil.
func (ex *Executive) LastExecuted() *event.Event { return ex.lastExecuted }

// Counters returns a snapshot of the Executive's scheduling/execution
// tallies.
func (ex *Executive) Counters() Counters { return ex.counters }

// ConditionalActions returns the embedded ConditionalActionProcessor.
func (ex *Executive) ConditionalActions() *conditional.Processor { return ex.cond }

// Hub returns the notification hub used for BeforeEvent/AfterEvent.
func (ex *Executive) Hub() *pubsub.Hub { return ex.hub }

// Initialize resets the Executive to a fresh run: clears the event
// set, counters, current time, and last-executed reference, then
// transitions the embedded IterativeProcess.
func (ex *Executive) Initialize() error {
	if err := ex.IterativeProcess.Initialize(); err != nil {
		return err
	}
	ex.events.Clear()
	ex.currentTime = 0
	ex.lastExecuted = nil
	ex.nextID = 0
	ex.endEvent = nil
	ex.hasEndEvent = false
	ex.actualEnd = 0
	ex.counters = Counters{}
	return nil
}

// Schedule builds an Event at currentTime+dt, assigns the next
// sequence id, inserts it, and increments the scheduled counter.
// Scheduling against a Created or Ended Executive is a no-op that
// returns the (unscheduled) event and logs a warning.
func (ex *Executive) Schedule(action event.Action, dt float64, priority int, payload interface{}, name string, owner event.Owner) (*event.Event, error) {
	if dt < 0 {
		return nil, kernelerr.New(kernelerr.InvalidArgument, "Executive.Schedule", "dt must be non-negative")
	}
	if owner == nil {
		return nil, kernelerr.New(kernelerr.InvalidArgument, "Executive.Schedule", "owner must not be nil")
	}

	t := ex.currentTime + dt
	ex.nextID++
	e := event.New(ex.nextID, name, t, priority, action, payload, owner)

	st := ex.State()
	if st == iterproc.Created || st == iterproc.Ended {
		ex.warn(fmt.Sprintf("Schedule called while Executive is %s; event %q was not scheduled", st, name))
		return e, nil
	}

	// silently drop events scheduled strictly beyond the end-time
	if ex.hasEndEvent && t > ex.endEvent.Time {
		return e, nil
	}

	if err := ex.events.Insert(e); err != nil {
		return nil, err
	}
	ex.counters.Scheduled++
	if ex.dispatching {
		ex.counters.ScheduledDuringExec++
	}
	return e, nil
}

// Reschedule re-inserts a previously dispatched event at
// currentTime+dt, clearing its canceled flag. Precondition: e was
// dispatched, not currently scheduled.
func (ex *Executive) Reschedule(e *event.Event, dt float64) error {
	if e.Scheduled {
		return kernelerr.New(kernelerr.IllegalState, "Executive.Reschedule",
			"event is still scheduled").WithOwner(e.OwnerName())
	}
	if dt < 0 {
		return kernelerr.New(kernelerr.InvalidArgument, "Executive.Reschedule", "dt must be non-negative")
	}
	e.Canceled = false
	e.Time = ex.currentTime + dt
	return ex.events.Insert(e)
}

// Cancel marks a scheduled event canceled.
func (ex *Executive) Cancel(e *event.Event) error {
	return ex.events.Cancel(e)
}

// ScheduleEnd schedules (or reschedules) the distinguished
// end-of-replication event at absolute time t, using the reserved
// END_REPLICATION priority so equal-time work with a smaller priority
// dispatches first.
func (ex *Executive) ScheduleEnd(t float64, owner event.Owner) (*event.Event, error) {
	if t <= 0 {
		return nil, kernelerr.New(kernelerr.InvalidArgument, "Executive.ScheduleEnd", "t must be > 0")
	}
	if ex.hasEndEvent {
		_ = ex.events.Cancel(ex.endEvent)
	}
	ex.nextID++
	e := event.New(ex.nextID, "EndReplication", t, event.PriorityEndRepl, func(ev *event.Event) error {
		ex.actualEnd = ev.Time
		// Request a cooperative stop rather than ending the
		// IterativeProcess directly: this action runs nested inside
		// RunNext's own call to RunStep, and RunNext applies its
		// post-step bookkeeping (state, ending indicator) right after
		// RunStep returns, which would otherwise clobber an End()
		// called from in here.
		ex.Stop("end-of-replication event fired")
		return nil
	}, nil, owner)
	if err := ex.events.Insert(e); err != nil {
		return nil, err
	}
	ex.endEvent = e
	ex.hasEndEvent = true
	ex.counters.Scheduled++
	return e, nil
}

// ActualEndingTime returns the simulated time the run actually ended
// at (set when the end-event fires; 0 otherwise).
func (ex *Executive) ActualEndingTime() float64 { return ex.actualEnd }

// ExecuteNext advances exactly one step.
func (ex *Executive) ExecuteNext() error { return ex.RunNext() }

// HasNext implements iterproc.Stepper: there is a next step as long as
// a non-canceled event remains.
func (ex *Executive) HasNext() bool { return !ex.events.Empty() }

// RunStep implements iterproc.Stepper: the per-step B-phase/C-phase
// algorithm.
func (ex *Executive) RunStep() error {
	e := ex.events.Pop()
	if e == nil {
		return nil
	}
	if e.Canceled {
		return nil
	}

	if e.Time < ex.currentTime {
		return kernelerr.New(kernelerr.OrderingViolation, "Executive.RunStep",
			fmt.Sprintf("popped event time %v precedes current time %v", e.Time, ex.currentTime)).WithOwner(e.OwnerName())
	}
	ex.currentTime = e.Time

	ex.hub.Publish(pubsub.Notification{Element: e.OwnerName(), Phase: pubsub.BeforeEvent, Event: e})

	ex.dispatching = true
	err := e.Action(e)
	ex.dispatching = false
	ex.counters.Executed++
	ex.lastExecuted = e

	ex.hub.Publish(pubsub.Notification{Element: e.OwnerName(), Phase: pubsub.AfterEvent, Event: e})

	if err != nil {
		return kernelerr.Wrap(kernelerr.InvalidArgument, "Executive.RunStep",
			fmt.Sprintf("event %q action failed", e.Name), err).WithOwner(e.OwnerName())
	}

	// C-phase: only when simulated time is about to advance.
	if next := ex.events.Peek(); next != nil && next.Time > ex.currentTime {
		if cerr := ex.cond.PerformCPhase(); cerr != nil {
			return cerr
		}
	}
	return nil
}

func (ex *Executive) warn(msg string) {
	if ex.log != nil {
		ex.log.Warn(msg)
	}
}
