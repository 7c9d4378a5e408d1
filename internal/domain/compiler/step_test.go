package compiler

import (
	"context"
	"testing"
)

// mockStep is a test double for Step interface.
type mockStep struct {
	Meta
	checkFn func(RunContext) (StepStatus, error)
	applyFn func(RunContext) (ApplyResult, error)
}

func newMockStep(id string, deps ...string) *mockStep {
	depIDs := make([]StepID, len(deps))
	for i, d := range deps {
		depIDs[i] = MustNewStepID(d)
	}
	return &mockStep{
		Meta: NewMeta(MustNewStepID(id), "mock "+id, depIDs...),
		checkFn: func(RunContext) (StepStatus, error) {
			return StatusNeedsApply, nil
		},
		applyFn: func(RunContext) (ApplyResult, error) {
			return ResultChanged, nil
		},
	}
}

func (m *mockStep) Check(ctx RunContext) (StepStatus, error) { return m.checkFn(ctx) }
func (m *mockStep) Apply(ctx RunContext) (ApplyResult, error) { return m.applyFn(ctx) }
func (m *mockStep) Plan(RunContext) (Diff, error) {
	return NewDiff(DiffTypeAdd, "test", m.ID().String(), "", "present"), nil
}

func TestMeta(t *testing.T) {
	step := newMockStep("kernel:sysctl:net.ipv4.ip_forward", "kernel:module:br_netfilter")

	if step.ID().String() != "kernel:sysctl:net.ipv4.ip_forward" {
		t.Errorf("ID() = %q", step.ID().String())
	}
	if step.Description() != "mock kernel:sysctl:net.ipv4.ip_forward" {
		t.Errorf("Description() = %q", step.Description())
	}

	deps := step.DependsOn()
	if len(deps) != 1 || deps[0].String() != "kernel:module:br_netfilter" {
		t.Fatalf("DependsOn() = %v", deps)
	}

	// Callers must not be able to mutate the step's dependencies.
	deps[0] = MustNewStepID("x:y:z")
	if step.DependsOn()[0].String() != "kernel:module:br_netfilter" {
		t.Error("DependsOn() returned shared slice")
	}
}

func TestRunContext(t *testing.T) {
	ctx := context.Background()
	rc := NewRunContext(ctx)

	if rc.Context() != ctx {
		t.Error("Context() should return the wrapped context")
	}
	if rc.DryRun() {
		t.Error("DryRun() should default to false")
	}
	if !rc.WithDryRun(true).DryRun() {
		t.Error("WithDryRun(true) should set dry-run")
	}
	if rc.DryRun() {
		t.Error("WithDryRun must not modify the receiver")
	}
}

func TestStepStatusAndResult(t *testing.T) {
	if StatusSatisfied.NeedsAction() {
		t.Error("satisfied should not need action")
	}
	if !StatusNeedsApply.NeedsAction() {
		t.Error("needs-apply should need action")
	}
	if !ResultChanged.Changed() || ResultUnchanged.Changed() {
		t.Error("Changed() mismatch")
	}
	if StatusNeedsApply.String() != "needs-apply" || ResultUnchanged.String() != "unchanged" {
		t.Error("String() mismatch")
	}
}
