// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package simulation implements the outer replication loop: an
// Experiment run over a Model, stepping one replication at a time,
// with antithetic stream pairing and per-replication/per-experiment
// setup and teardown.
package simulation

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/descore/simkernel/conditional"
	"github.com/descore/simkernel/executive"
	"github.com/descore/simkernel/iterproc"
	"github.com/descore/simkernel/kernelerr"
	"github.com/descore/simkernel/model"
	"github.com/descore/simkernel/pubsub"
	"github.com/descore/simkernel/streams"
	"github.com/google/uuid"
)

// Experiment holds the replication parameters for one run.
type Experiment struct {
	Replications       int
	ReplicationLength  float64 // 0 means "run until no events remain"
	WarmUpLength       float64
	Antithetic         bool
	ResetStreamEachRep bool
	AdvanceSubStream   bool
	GCAfterReplication bool
	StreamAdvanceCount int
	WallClockBudget    time.Duration // per-replication; 0 means unbounded
	Seed               uint64
	Controls           map[string]string
}

// Stats tracks run-wide counters, mirroring types/sessions.go's
// sync.Mutex-guarded SessionStats.
type Stats struct {
	sync.Mutex
	ReplicationsCompleted int    `json:"replicationsCompleted"`
	EventsExecutedTotal   uint64 `json:"eventsExecutedTotal"`
	EventsScheduledTotal  uint64 `json:"eventsScheduledTotal"`
}

func (s *Stats) addReplication(c executive.Counters) {
	s.Lock()
	defer s.Unlock()
	s.ReplicationsCompleted++
	s.EventsExecutedTotal += c.Executed
	s.EventsScheduledTotal += c.Scheduled
}

// ReplicationResult is handed to an optional observer after each
// replication completes, e.g. for persistence.
type ReplicationResult struct {
	Index           int
	AntitheticPair  bool
	EndingIndicator iterproc.EndingIndicator
	Counters        executive.Counters
	EndingTime      float64
	WallClock       time.Duration
	StartedAt       time.Time
	EndedAt         time.Time
}

// ReplicationObserver receives a ReplicationResult after every
// completed replication.
type ReplicationObserver func(ReplicationResult)

// Simulation drives Experiment over Model, embedding an
// IterativeProcess whose Stepper steps one replication at a time,
// reusing the same abstract state machine at the replication
// granularity instead of the event granularity the Executive uses it
// at.
type Simulation struct {
	*iterproc.IterativeProcess

	id    uuid.UUID
	exp   Experiment
	model *model.Model
	hub   *pubsub.Hub
	cond  *conditional.Processor
	ex    *executive.Executive

	baseStream streams.Stream
	pairBase   streams.Stream // snapshot of baseStream's position at the start of the current pair's base replication
	stream     streams.Stream

	stats *Stats
	obs   []ReplicationObserver

	replIndex int
	done      chan struct{}
}

// New returns a Simulation ready to run exp against m.
func New(exp Experiment, m *model.Model, hub *pubsub.Hub) *Simulation {
	if exp.Replications < 1 {
		exp.Replications = 1
	}
	cond := conditional.NewProcessor()
	s := &Simulation{
		id:         uuid.New(),
		exp:        exp,
		model:      m,
		hub:        hub,
		cond:       cond,
		baseStream: streams.New(exp.Seed),
		stats:      new(Stats),
		done:       make(chan struct{}),
	}
	s.stream = s.baseStream
	s.ex = executive.New(cond, hub, nil)
	s.IterativeProcess = iterproc.New(s)
	return s
}

// ID returns the Simulation's run identifier.
func (s *Simulation) ID() uuid.UUID { return s.id }

// Executive returns the underlying Executive, for collaborators that
// need to schedule their own events (e.g. tests driving a scripted
// model).
func (s *Simulation) Executive() *executive.Executive { return s.ex }

// Stream returns the current replication's random-number stream.
func (s *Simulation) Stream() streams.Stream { return s.stream }

// Stats returns the run-wide counters.
func (s *Simulation) Stats() *Stats { return s.stats }

// Hub returns the notification hub shared with the Executive and
// Model.
func (s *Simulation) Hub() *pubsub.Hub { return s.hub }

// Subscribe registers fn to be called after every completed
// replication, e.g. to persist a ReplicationRecord.
func (s *Simulation) Subscribe(fn ReplicationObserver) { s.obs = append(s.obs, fn) }

// Done reports whether Kill has been called.
func (s *Simulation) Done() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Kill stops the Simulation after its current replication completes.
func (s *Simulation) Kill() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// RunExperiment dispatches BeforeExperiment, steps every replication
// to completion, then dispatches AfterExperiment.
func (s *Simulation) RunExperiment() error {
	if err := s.model.BeforeExperiment(); err != nil {
		return kernelerr.Wrap(kernelerr.InvalidArgument, "Simulation.RunExperiment", "BeforeExperiment failed", err)
	}
	if err := s.IterativeProcess.Initialize(); err != nil {
		return err
	}
	if err := s.IterativeProcess.Run(); err != nil {
		return err
	}
	if err := s.model.AfterExperiment(); err != nil {
		return kernelerr.Wrap(kernelerr.InvalidArgument, "Simulation.RunExperiment", "AfterExperiment failed", err)
	}
	return nil
}

// HasNext implements iterproc.Stepper.
func (s *Simulation) HasNext() bool {
	return s.replIndex < s.exp.Replications && !s.Done()
}

// RunStep implements iterproc.Stepper: runs exactly one replication
// to completion.
func (s *Simulation) RunStep() error {
	idx := s.replIndex
	s.replIndex++

	antitheticPair := s.exp.Antithetic && idx%2 == 1
	if s.exp.Antithetic {
		if antitheticPair {
			// Replay from the sub-stream position the paired base
			// replication started at, not from wherever baseStream has
			// since advanced to, so the pair's draws are complementary.
			s.stream = s.pairBase.Antithetic()
		} else {
			s.stream = s.baseStream
		}
	}
	if s.exp.ResetStreamEachRep && !antitheticPair {
		s.stream.Reset()
	}
	if s.exp.AdvanceSubStream && s.exp.StreamAdvanceCount > 0 {
		s.stream.Advance(s.exp.StreamAdvanceCount)
	}
	if s.exp.Antithetic && !antitheticPair {
		// Snapshot the base replication's starting position, after any
		// reset/advance above, for the next replication's antithetic
		// pairing to replay.
		s.pairBase = s.stream.Antithetic().Antithetic()
	}

	started := time.Now()

	if err := s.ex.Initialize(); err != nil {
		return err
	}
	s.model.SetRunning(true)
	defer s.model.SetRunning(false)

	if err := s.model.BeforeReplication(); err != nil {
		return wrapRepl(idx, "BeforeReplication", err)
	}
	if err := s.model.Initialize(); err != nil {
		return wrapRepl(idx, "Initialize", err)
	}
	if err := s.model.RegisterConditionalActions(s.ex); err != nil {
		return wrapRepl(idx, "RegisterConditionalActions", err)
	}
	if err := s.model.MonteCarlo(); err != nil {
		return wrapRepl(idx, "MonteCarlo", err)
	}
	s.model.SetWarmUpLength(s.exp.WarmUpLength)
	if err := s.model.ScheduleWarmUps(s.ex); err != nil {
		return wrapRepl(idx, "ScheduleWarmUps", err)
	}
	if err := s.model.ScheduleTimedUpdates(s.ex); err != nil {
		return wrapRepl(idx, "ScheduleTimedUpdates", err)
	}

	if s.exp.ReplicationLength > 0 {
		if _, err := s.ex.ScheduleEnd(s.exp.ReplicationLength, s.model.Node); err != nil {
			return wrapRepl(idx, "ScheduleEnd", err)
		}
	}
	if s.exp.WallClockBudget > 0 {
		s.ex.SetMaxWallClock(s.exp.WallClockBudget)
	}

	if err := s.ex.Run(); err != nil {
		return wrapRepl(idx, "Run", err)
	}

	if err := s.model.Update(); err != nil {
		return wrapRepl(idx, "Update", err)
	}
	if err := s.model.ReplicationEnded(); err != nil {
		return wrapRepl(idx, "ReplicationEnded", err)
	}
	if err := s.model.AfterReplication(); err != nil {
		return wrapRepl(idx, "AfterReplication", err)
	}

	counters := s.ex.Counters()
	s.stats.addReplication(counters)

	result := ReplicationResult{
		Index:           idx,
		AntitheticPair:  antitheticPair,
		EndingIndicator: s.ex.EndingIndicator(),
		Counters:        counters,
		EndingTime:      s.ex.CurrentTime(),
		WallClock:       s.ex.Elapsed(),
		StartedAt:       started,
		EndedAt:         time.Now(),
	}
	for _, fn := range s.obs {
		fn(result)
	}

	if s.exp.GCAfterReplication {
		runtime.GC()
	}
	return nil
}

func wrapRepl(idx int, phase string, err error) error {
	return kernelerr.Wrap(kernelerr.InvalidArgument, "Simulation.RunStep",
		fmt.Sprintf("replication %d: %s failed", idx, phase), err)
}
