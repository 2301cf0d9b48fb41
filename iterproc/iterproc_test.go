package iterproc_test

import (
	"testing"
	"time"

	"github.com/descore/simkernel/iterproc"
	"github.com/descore/simkernel/kernelerr"
)

type stepper struct {
	steps     int
	max       int
	stepErr   error
	panicWith interface{}
}

func (s *stepper) HasNext() bool { return s.steps < s.max }
func (s *stepper) RunStep() error {
	s.steps++
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.stepErr
}

func TestRunStepsToCompletedAllSteps(t *testing.T) {
	s := &stepper{max: 3}
	p := iterproc.New(s)

	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := p.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if p.State() != iterproc.Ended {
		t.Errorf("expected state Ended, got %v", p.State())
	}
	if p.EndingIndicator() != iterproc.CompletedAllSteps {
		t.Errorf("expected CompletedAllSteps, got %v", p.EndingIndicator())
	}
	if p.Steps() != 3 {
		t.Errorf("expected 3 steps recorded, got %d", p.Steps())
	}
}

func TestRunNextIllegalFromCreated(t *testing.T) {
	s := &stepper{max: 1}
	p := iterproc.New(s)
	if err := p.RunNext(); err == nil {
		t.Error("expected an error calling RunNext before Initialize")
	}
}

func TestNoStepsExecutedIndicator(t *testing.T) {
	s := &stepper{max: 0}
	p := iterproc.New(s)
	_ = p.Initialize()
	if err := p.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if p.EndingIndicator() != iterproc.NoStepsExecuted {
		t.Errorf("expected NoStepsExecuted, got %v", p.EndingIndicator())
	}
}

func TestStopRequestsCooperativeEnd(t *testing.T) {
	s := &stepper{max: 10}
	p := iterproc.New(s)
	_ = p.Initialize()

	if err := p.RunNext(); err != nil {
		t.Fatalf("RunNext failed: %v", err)
	}
	p.Stop("enough")
	if err := p.RunNext(); err != nil {
		t.Fatalf("RunNext failed: %v", err)
	}
	if p.State() != iterproc.Ended {
		t.Errorf("expected Ended after Stop took effect, got %v", p.State())
	}
	if p.EndingIndicator() != iterproc.MetStoppingCondition {
		t.Errorf("expected MetStoppingCondition, got %v", p.EndingIndicator())
	}
	if p.StopMessage() != "enough" {
		t.Errorf("expected stop message %q, got %q", "enough", p.StopMessage())
	}
}

func TestMaxWallClockEndsTheRun(t *testing.T) {
	s := &stepper{max: 1_000_000}
	p := iterproc.New(s)
	p.SetMaxWallClock(time.Millisecond)
	_ = p.Initialize()

	if err := p.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if p.EndingIndicator() != iterproc.ExceededExecutionTime {
		t.Errorf("expected ExceededExecutionTime, got %v", p.EndingIndicator())
	}
}

func TestInitializeAllowedFromEnded(t *testing.T) {
	s := &stepper{max: 1}
	p := iterproc.New(s)
	_ = p.Initialize()
	_ = p.Run()
	if p.State() != iterproc.Ended {
		t.Fatalf("expected Ended before re-Initialize, got %v", p.State())
	}
	if err := p.Initialize(); err != nil {
		t.Errorf("expected Initialize to succeed from Ended, got %v", err)
	}
	if p.State() != iterproc.Initialized {
		t.Errorf("expected Initialized, got %v", p.State())
	}
}

func TestRunNextRecoversAPlainPanicAsAKernelError(t *testing.T) {
	s := &stepper{max: 1, panicWith: "boom"}
	p := iterproc.New(s)
	_ = p.Initialize()

	err := p.RunNext()
	if err == nil {
		t.Fatal("expected RunNext to return an error instead of propagating the panic")
	}
	kerr, ok := err.(*kernelerr.Error)
	if !ok {
		t.Fatalf("expected a *kernelerr.Error, got %T: %v", err, err)
	}
	if kerr.Kind != kernelerr.Panic {
		t.Errorf("expected Kind Panic, got %v", kerr.Kind)
	}
}

func TestRunNextPreservesAKernelErrorPanickedByTheStepper(t *testing.T) {
	s := &stepper{max: 1, panicWith: kernelerr.New(kernelerr.OrderingViolation, "eventset", "id collision")}
	p := iterproc.New(s)
	_ = p.Initialize()

	err := p.RunNext()
	kerr, ok := err.(*kernelerr.Error)
	if !ok {
		t.Fatalf("expected a *kernelerr.Error, got %T: %v", err, err)
	}
	if kerr.Kind != kernelerr.OrderingViolation {
		t.Errorf("expected the original OrderingViolation kind to survive recovery, got %v", kerr.Kind)
	}
}

func TestEndTransitionsImmediately(t *testing.T) {
	s := &stepper{max: 10}
	p := iterproc.New(s)
	_ = p.Initialize()
	if err := p.End("done"); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if p.State() != iterproc.Ended {
		t.Errorf("expected Ended, got %v", p.State())
	}
	if p.EndingIndicator() != iterproc.MetStoppingCondition {
		t.Errorf("expected MetStoppingCondition, got %v", p.EndingIndicator())
	}
}
