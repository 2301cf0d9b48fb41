// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package iterproc implements the abstract step-driven state machine
// that both the Executive (stepping over Events) and
// the Simulation (stepping over replications) embed.
package iterproc

import (
	"fmt"
	"time"

	"github.com/descore/simkernel/kernelerr"
	"go.uber.org/ratelimit"
)

// State is one of the four IterativeProcess states.
type State int

const (
	Created State = iota
	Initialized
	StepCompleted
	Ended
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Initialized:
		return "Initialized"
	case StepCompleted:
		return "StepCompleted"
	case Ended:
		return "Ended"
	default:
		return "Unknown"
	}
}

// EndingIndicator records exactly one reason a run terminated.
type EndingIndicator int

const (
	Unfinished EndingIndicator = iota
	NoStepsExecuted
	CompletedAllSteps
	ExceededExecutionTime
	MetStoppingCondition
)

func (e EndingIndicator) String() string {
	switch e {
	case NoStepsExecuted:
		return "NoStepsExecuted"
	case CompletedAllSteps:
		return "CompletedAllSteps"
	case ExceededExecutionTime:
		return "ExceededExecutionTime"
	case MetStoppingCondition:
		return "MetStoppingCondition"
	default:
		return "Unfinished"
	}
}

// Stepper is implemented by the concrete driver embedding an
// IterativeProcess (Executive, Simulation). Its hooks are called by
// IterativeProcess.RunNext/Run; base initialize/end wrappers always
// run first/last regardless of overrides.
type Stepper interface {
	HasNext() bool
	RunStep() error
}

// ProgressFunc receives a periodic progress notification, independent
// of simulated progress.
type ProgressFunc func(elapsed time.Duration, steps int)

// IterativeProcess is the Created/Initialized/StepCompleted/Ended
// state machine. It is embedded by pointer in Executive and Simulation;
// both supply a Stepper.
type IterativeProcess struct {
	state State

	stepper Stepper

	beginAt time.Time
	endAt   time.Time
	steps   int

	maxWallClock time.Duration // 0 means unbounded

	stopRequested bool
	stopMessage   string

	indicator EndingIndicator

	progressEvery time.Duration
	progressFn    ProgressFunc
	progressLimit ratelimit.Limiter
	progressStop  chan struct{}
}

// New builds an IterativeProcess in the Created state, bound to the
// given Stepper.
func New(stepper Stepper) *IterativeProcess {
	return &IterativeProcess{state: Created, stepper: stepper}
}

// State returns the current state.
func (p *IterativeProcess) State() State { return p.state }

// EndingIndicator reports why the last run ended.
func (p *IterativeProcess) EndingIndicator() EndingIndicator { return p.indicator }

// Steps reports the number of completed steps in this run.
func (p *IterativeProcess) Steps() int { return p.steps }

// Elapsed returns the wall-clock time spent since Initialize, frozen
// once Ended.
func (p *IterativeProcess) Elapsed() time.Duration {
	if p.state == Ended {
		return p.endAt.Sub(p.beginAt)
	}
	if p.beginAt.IsZero() {
		return 0
	}
	return time.Since(p.beginAt)
}

// SetMaxWallClock sets a positive wall-clock budget, checked only
// after a completed step.
func (p *IterativeProcess) SetMaxWallClock(d time.Duration) { p.maxWallClock = d }

// SetProgressTimer enables a periodic progress notification, paced by
// go.uber.org/ratelimit so the callback cannot fire faster than every
// interval even under a tight step loop.
func (p *IterativeProcess) SetProgressTimer(interval time.Duration, fn ProgressFunc) {
	p.progressEvery = interval
	p.progressFn = fn
	if interval > 0 {
		p.progressLimit = ratelimit.New(1, ratelimit.Per(interval))
	}
}

func (p *IterativeProcess) maybeNotifyProgress() {
	if p.progressFn == nil || p.progressLimit == nil {
		return
	}
	p.progressLimit.Take()
	p.progressFn(p.Elapsed(), p.steps)
}

// Initialize transitions Created→Initialized or Ended→Initialized.
func (p *IterativeProcess) Initialize() error {
	if p.state != Created && p.state != Ended {
		return illegal("Initialize", p.state)
	}
	p.state = Initialized
	p.beginAt = time.Now()
	p.endAt = time.Time{}
	p.steps = 0
	p.stopRequested = false
	p.stopMessage = ""
	p.indicator = Unfinished
	return nil
}

// Stop requests a cooperative stop after the next completed step.
func (p *IterativeProcess) Stop(msg string) {
	p.stopRequested = true
	p.stopMessage = msg
}

// StopMessage returns the message passed to Stop, if any.
func (p *IterativeProcess) StopMessage() string { return p.stopMessage }

// End transitions immediately to Ended. Legal from Created, Initialized,
// or StepCompleted.
func (p *IterativeProcess) End(msg string) error {
	if p.state != Created && p.state != Initialized && p.state != StepCompleted {
		return illegal("End", p.state)
	}
	p.stopMessage = msg
	p.indicator = MetStoppingCondition
	p.finish()
	return nil
}

// RunNext executes exactly one step. Legal from Initialized or
// StepCompleted.
func (p *IterativeProcess) RunNext() error {
	if p.state != Initialized && p.state != StepCompleted {
		return illegal("RunNext", p.state)
	}
	if !p.stepper.HasNext() {
		if p.steps == 0 {
			p.indicator = NoStepsExecuted
		} else {
			p.indicator = CompletedAllSteps
		}
		p.finish()
		return kernelerr.New(kernelerr.NoSuchStep, "IterativeProcess.RunNext", "no next step")
	}

	if err := p.runStepRecovered(); err != nil {
		return err
	}
	p.steps++
	p.state = StepCompleted
	p.maybeNotifyProgress()

	if p.stopRequested {
		p.indicator = MetStoppingCondition
		p.finish()
		return nil
	}
	if p.maxWallClock > 0 && time.Since(p.beginAt) >= p.maxWallClock {
		p.indicator = ExceededExecutionTime
		p.finish()
		return nil
	}
	if !p.stepper.HasNext() {
		p.indicator = CompletedAllSteps
		p.finish()
	}
	return nil
}

// Run steps to exhaustion: no more steps, wall-clock budget reached,
// or a stop condition observed.
func (p *IterativeProcess) Run() error {
	if p.state != Initialized && p.state != StepCompleted {
		return illegal("Run", p.state)
	}
	for p.state != Ended {
		if err := p.RunNext(); err != nil {
			if kerr, ok := err.(*kernelerr.Error); ok && kerr.Kind == kernelerr.NoSuchStep {
				return nil
			}
			return err
		}
	}
	return nil
}

// runStepRecovered calls the Stepper's RunStep, recovering a panic
// (e.g. eventset's id-collision check) and re-surfacing it as a
// *kernelerr.Error instead of crashing the run.
func (p *IterativeProcess) runStepRecovered() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if kerr, ok := r.(*kernelerr.Error); ok {
				err = kerr
				return
			}
			err = kernelerr.New(kernelerr.Panic, "IterativeProcess.RunNext",
				fmt.Sprintf("step panicked: %v", r))
		}
	}()
	return p.stepper.RunStep()
}

func (p *IterativeProcess) finish() {
	p.state = Ended
	p.endAt = time.Now()
}

func illegal(op string, s State) error {
	return kernelerr.New(kernelerr.IllegalState, "IterativeProcess."+op,
		"illegal transition from state "+s.String())
}
