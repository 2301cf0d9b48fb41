package conditional_test

import (
	"errors"
	"testing"

	"github.com/descore/simkernel/conditional"
)

type countingAction struct {
	limit int
	fired int
}

func (a *countingAction) TestCondition() bool { return a.fired < a.limit }
func (a *countingAction) Fire()               { a.fired++ }

func TestPerformCPhaseReachesFixedPoint(t *testing.T) {
	p := conditional.NewProcessor()
	a := &countingAction{limit: 3}
	p.Register(a, 5)

	if err := p.PerformCPhase(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.fired != 3 {
		t.Errorf("expected the action to fire 3 times, fired %d", a.fired)
	}
	if p.LastScanCount() < 2 {
		t.Errorf("expected more than one scan to reach the fixed point, got %d", p.LastScanCount())
	}
}

func TestPerformCPhaseOrdersByPriorityThenRegistrationOrder(t *testing.T) {
	p := conditional.NewProcessor()
	var order []string

	type recorder struct {
		name  string
		fired bool
	}
	r1 := &recorder{name: "low-priority"}
	r2 := &recorder{name: "high-priority"}
	r3 := &recorder{name: "second-registered-same-priority"}

	wrap := func(r *recorder) conditional.Action {
		return &actionFunc{
			test: func() bool { return !r.fired },
			fire: func() { r.fired = true; order = append(order, r.name) },
		}
	}

	p.Register(wrap(r1), 9)
	p.Register(wrap(r2), 1)
	p.Register(wrap(r3), 1)

	if err := p.PerformCPhase(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"high-priority", "second-registered-same-priority", "low-priority"}
	if len(order) != len(want) {
		t.Fatalf("expected %d firings, got %d: %v", len(want), len(order), order)
	}
	for i, name := range want {
		if order[i] != name {
			t.Errorf("position %d: expected %s, got %s", i, name, order[i])
		}
	}
}

func TestPerformCPhaseAggregatesPanics(t *testing.T) {
	p := conditional.NewProcessor()
	p.Register(&actionFunc{
		test: func() bool { return true },
		fire: func() { panic(errors.New("boom")) },
	}, 5)
	once := &countingAction{limit: 1}
	p.Register(once, 5)

	err := p.PerformCPhase()
	if err == nil {
		t.Fatal("expected an aggregated error from the panicking action")
	}
	if once.fired != 1 {
		t.Error("expected the non-panicking action to still fire despite its neighbor panicking")
	}
}

func TestSetMaxScanFlagEnforcesLimit(t *testing.T) {
	p := conditional.NewProcessor()
	p.SetMaxScans(2)
	p.SetMaxScanFlag(true)
	// Always-true predicate never reaches a fixed point.
	p.Register(&actionFunc{test: func() bool { return true }, fire: func() {}}, 5)

	if err := p.PerformCPhase(); err == nil {
		t.Error("expected a scan-limit error for a predicate that never settles")
	}
}

func TestUnregisterRemovesAction(t *testing.T) {
	p := conditional.NewProcessor()
	a := &countingAction{limit: 1}
	p.Register(a, 5)
	p.Unregister(a)
	if p.Len() != 0 {
		t.Errorf("expected 0 registered actions after Unregister, got %d", p.Len())
	}
}

// actionFunc adapts plain functions to conditional.Action. Every use
// below passes it by pointer, since a struct holding func fields is
// not comparable and Unregister/ChangePriority compare actions by ==.
type actionFunc struct {
	test func() bool
	fire func()
}

func (a *actionFunc) TestCondition() bool { return a.test() }
func (a *actionFunc) Fire()               { a.fire() }
