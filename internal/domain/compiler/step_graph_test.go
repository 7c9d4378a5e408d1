package compiler

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func ids(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID().String()
	}
	return out
}

func buildGraph(t *testing.T, steps ...Step) *StepGraph {
	t.Helper()
	g := NewStepGraph()
	for _, s := range steps {
		if err := g.Add(s); err != nil {
			t.Fatalf("Add(%s) error = %v", s.ID(), err)
		}
	}
	return g
}

func TestStepGraph_AddDuplicate(t *testing.T) {
	g := buildGraph(t, newMockStep("swap:disable:all"))

	err := g.Add(newMockStep("swap:disable:all"))
	if !errors.Is(err, ErrPlanInvalid) || CodeOf(err) != ErrCodeStepDuplicate {
		t.Errorf("Add() error = %v, want STEP_DUPLICATE", err)
	}
}

func TestStepGraph_AddSelfDependency(t *testing.T) {
	err := NewStepGraph().Add(newMockStep("a:b:c", "a:b:c"))
	if !errors.Is(err, ErrPlanInvalid) || CodeOf(err) != ErrCodeDependencySelf {
		t.Errorf("Add() error = %v, want DEPENDENCY_SELF", err)
	}
}

func TestStepGraph_GetAndSteps(t *testing.T) {
	g := buildGraph(t, newMockStep("b:x:1"), newMockStep("a:x:1"))

	if _, ok := g.Get(MustNewStepID("a:x:1")); !ok {
		t.Error("Get() should find the step")
	}
	if _, ok := g.Get(MustNewStepID("missing:x:1")); ok {
		t.Error("Get() should not find missing step")
	}
	if got := ids(g.Steps()); !reflect.DeepEqual(got, []string{"b:x:1", "a:x:1"}) {
		t.Errorf("Steps() = %v, want declaration order", got)
	}
}

func TestStepGraph_ValidateMissing(t *testing.T) {
	g := buildGraph(t, newMockStep("systemd:service:kubelet", "apt:package:kubelet"))

	err := g.Validate()
	if !errors.Is(err, ErrPlanInvalid) || CodeOf(err) != ErrCodeDependencyMissing {
		t.Fatalf("Validate() error = %v, want DEPENDENCY_MISSING", err)
	}
	if !strings.Contains(err.Error(), "apt:package:kubelet") {
		t.Errorf("error should name the missing dependency: %v", err)
	}
}

func TestStepGraph_TopologicalSort_DeclarationOrderTies(t *testing.T) {
	g := buildGraph(t,
		newMockStep("hosts:entry:node"),
		newMockStep("swap:disable:all"),
		newMockStep("kernel:module:overlay"),
		newMockStep("kernel:module:br_netfilter"),
	)

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}
	want := []string{"hosts:entry:node", "swap:disable:all", "kernel:module:overlay", "kernel:module:br_netfilter"}
	if got := ids(sorted); !reflect.DeepEqual(got, want) {
		t.Errorf("TopologicalSort() = %v, want %v", got, want)
	}
}

func TestStepGraph_TopologicalSort_DependencyBeforeDeclaration(t *testing.T) {
	// c is declared first but depends on b, which depends on a.
	g := buildGraph(t,
		newMockStep("c:x:1", "b:x:1"),
		newMockStep("d:x:1"),
		newMockStep("b:x:1", "a:x:1"),
		newMockStep("a:x:1"),
	)

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}
	want := []string{"d:x:1", "a:x:1", "b:x:1", "c:x:1"}
	if got := ids(sorted); !reflect.DeepEqual(got, want) {
		t.Errorf("TopologicalSort() = %v, want %v", got, want)
	}
}

func TestStepGraph_TopologicalSort_SatisfiesEveryEdge(t *testing.T) {
	g := buildGraph(t,
		newMockStep("apt:repository:kubernetes"),
		newMockStep("apt:package:containerd"),
		newMockStep("apt:package:kubelet", "apt:repository:kubernetes"),
		newMockStep("apt:package:kubeadm", "apt:repository:kubernetes"),
		newMockStep("apt:hold:kubernetes", "apt:package:kubelet", "apt:package:kubeadm"),
		newMockStep("containerd:config:default", "apt:package:containerd"),
		newMockStep("containerd:service:restart", "containerd:config:default"),
		newMockStep("systemd:service:kubelet", "apt:hold:kubernetes", "containerd:service:restart"),
	)

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}

	pos := make(map[string]int)
	for i, s := range sorted {
		pos[s.ID().String()] = i
	}
	for _, s := range sorted {
		for _, dep := range s.DependsOn() {
			if pos[dep.String()] >= pos[s.ID().String()] {
				t.Errorf("%s ordered before its dependency %s", s.ID(), dep)
			}
		}
	}
}

func TestStepGraph_TopologicalSort_DuplicateDependency(t *testing.T) {
	g := buildGraph(t,
		newMockStep("a:x:1"),
		newMockStep("b:x:1", "a:x:1", "a:x:1"),
	)

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}
	if len(sorted) != 2 {
		t.Errorf("len = %d, want 2", len(sorted))
	}
}

func TestStepGraph_TopologicalSort_Cycle(t *testing.T) {
	g := buildGraph(t,
		newMockStep("root:x:1"),
		newMockStep("a:x:1", "b:x:1"),
		newMockStep("b:x:1", "c:x:1"),
		newMockStep("c:x:1", "a:x:1"),
	)

	_, err := g.TopologicalSort()
	if !errors.Is(err, ErrPlanInvalid) || CodeOf(err) != ErrCodeCyclicDependency {
		t.Fatalf("TopologicalSort() error = %v, want CYCLIC_DEPENDENCY", err)
	}
	if !strings.Contains(err.Error(), "a:x:1 -> b:x:1 -> c:x:1 -> a:x:1") {
		t.Errorf("error should contain the cycle path: %v", err)
	}
}

func TestStepGraph_Cycle_Deterministic(t *testing.T) {
	build := func() *StepGraph {
		return buildGraph(t,
			newMockStep("a:x:1", "b:x:1"),
			newMockStep("b:x:1", "a:x:1"),
			newMockStep("c:x:1", "d:x:1"),
			newMockStep("d:x:1", "c:x:1"),
		)
	}

	_, first := build().TopologicalSort()
	for i := 0; i < 20; i++ {
		_, err := build().TopologicalSort()
		if err.Error() != first.Error() {
			t.Fatalf("cycle witness changed: %v vs %v", err, first)
		}
	}
	if !strings.Contains(first.Error(), "a:x:1 -> b:x:1 -> a:x:1") {
		t.Errorf("expected the first declared cycle: %v", first)
	}
}
