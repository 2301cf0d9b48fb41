package model_test

import (
	"fmt"
	"testing"

	"github.com/descore/simkernel/executive"
	"github.com/descore/simkernel/model"
)

// element is a minimal concrete model element embedding *model.Node and
// recording which lifecycle hooks fired, for asserting dispatch order
// and capability-gated participation.
type element struct {
	*model.Node
	calls *[]string

	warmUps          int
	timedUpdates     int
	timedUpdateEvery float64
}

func newElement(t *testing.T, m *model.Model, name string, parent *model.Node, calls *[]string) *element {
	t.Helper()
	el := &element{calls: calls}
	n, err := m.Add(el, name, parent)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	el.Node = n
	return el
}

func (e *element) BeforeExperiment()  { *e.calls = append(*e.calls, e.Name()+":BeforeExperiment") }
func (e *element) Initialize()        { *e.calls = append(*e.calls, e.Name()+":Initialize") }
func (e *element) WarmUp()            { e.warmUps++ }
func (e *element) TimedUpdate()       { e.timedUpdates++ }
func (e *element) TimedUpdateInterval() float64 { return e.timedUpdateEvery }

func TestAddRejectsDuplicateNames(t *testing.T) {
	m := model.New(nil, 0)
	var calls []string
	newElement(t, m, "dup", nil, &calls)
	el2 := &element{calls: &calls}
	if _, err := m.Add(el2, "dup", nil); err == nil {
		t.Error("expected an error registering a duplicate name")
	}
}

func TestAddRejectsDuplicateNameAfterManyInsertions(t *testing.T) {
	m := model.New(nil, 0)
	var calls []string
	for i := 0; i < 500; i++ {
		newElement(t, m, fmt.Sprintf("node_%d", i), nil, &calls)
	}
	el := &element{calls: &calls}
	if _, err := m.Add(el, "node_0", nil); err == nil {
		t.Error("expected an error registering a name already taken, even after many insertions into the bloom filter")
	}
}

func TestAddRejectsWhileRunning(t *testing.T) {
	m := model.New(nil, 0)
	m.SetRunning(true)
	var calls []string
	el := &element{calls: &calls}
	if _, err := m.Add(el, "", nil); err == nil {
		t.Error("expected an error adding an element while a replication is running")
	}
}

func TestDispatchPostOrderVisitsChildrenBeforeParent(t *testing.T) {
	m := model.New(nil, 0)
	var calls []string
	parent := newElement(t, m, "parent", nil, &calls)
	newElement(t, m, "child", parent.Node, &calls)

	if err := m.BeforeExperiment(); err != nil {
		t.Fatalf("BeforeExperiment failed: %v", err)
	}

	want := []string{"child:BeforeExperiment", "parent:BeforeExperiment"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
}

func TestLookupAndNames(t *testing.T) {
	m := model.New(nil, 0)
	var calls []string
	newElement(t, m, "alpha", nil, &calls)
	newElement(t, m, "beta", nil, &calls)

	if n := m.Lookup("alpha"); n == nil || n.Name() != "alpha" {
		t.Errorf("expected to find alpha, got %v", n)
	}
	if n := m.Lookup("missing"); n != nil {
		t.Errorf("expected nil looking up an unregistered name, got %v", n)
	}

	names := m.Names()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	for _, want := range []string{"Model", "alpha", "beta"} {
		if !found[want] {
			t.Errorf("expected Names() to include %q, got %v", want, names)
		}
	}
}

func TestRemoveDetachesSubtreeAndNames(t *testing.T) {
	m := model.New(nil, 0)
	var calls []string
	parent := newElement(t, m, "parent", nil, &calls)
	newElement(t, m, "child", parent.Node, &calls)

	if err := m.Remove(parent.Node); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if m.Lookup("parent") != nil || m.Lookup("child") != nil {
		t.Error("expected both parent and child to be removed from the name registry")
	}
}

func TestAssignTraversalLabelsAndIsAncestor(t *testing.T) {
	m := model.New(nil, 0)
	var calls []string
	parent := newElement(t, m, "parent", nil, &calls)
	child := newElement(t, m, "child", parent.Node, &calls)
	sibling := newElement(t, m, "sibling", nil, &calls)

	m.AssignTraversalLabels()

	if !model.IsAncestor(m.Node, child.Node) {
		t.Error("expected the root to be an ancestor of every node")
	}
	if !model.IsAncestor(parent.Node, child.Node) {
		t.Error("expected parent to be an ancestor of child")
	}
	if model.IsAncestor(sibling.Node, child.Node) {
		t.Error("expected sibling to not be an ancestor of child")
	}
}

func TestScheduleWarmUpsFiresOwnWarmUpAndPropagatesToDescendantWithoutOwnSchedule(t *testing.T) {
	m := model.New(nil, 0)
	var calls []string
	parent := newElement(t, m, "parent", nil, &calls)
	parent.SetWarmUpLength(10)
	child := newElement(t, m, "child", parent.Node, &calls)

	ex := executive.New(nil, nil, nil)
	if err := ex.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := m.ScheduleWarmUps(ex); err != nil {
		t.Fatalf("ScheduleWarmUps failed: %v", err)
	}
	if err := ex.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if parent.warmUps != 1 {
		t.Errorf("expected parent's WarmUp to fire once, fired %d times", parent.warmUps)
	}
	if child.warmUps != 1 {
		t.Errorf("expected child to warm up via its parent's schedule, fired %d times", child.warmUps)
	}
	if !m.IsWarmedUp("parent") {
		t.Error("expected parent to be recorded as warmed up")
	}
}

func TestScheduleTimedUpdatesReschedulesItself(t *testing.T) {
	m := model.New(nil, 0)
	var calls []string
	el := newElement(t, m, "ticker", nil, &calls)
	el.timedUpdateEvery = 1.0

	ex := executive.New(nil, nil, nil)
	if err := ex.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := ex.ScheduleEnd(3.5, m.Node); err != nil {
		t.Fatalf("ScheduleEnd failed: %v", err)
	}
	if err := m.ScheduleTimedUpdates(ex); err != nil {
		t.Fatalf("ScheduleTimedUpdates failed: %v", err)
	}
	if err := ex.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if el.timedUpdates != 3 {
		t.Errorf("expected 3 timed updates by time 3.5 with interval 1.0, got %d", el.timedUpdates)
	}
}
