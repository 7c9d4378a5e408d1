package execution

import (
	"testing"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
)

func TestPlan_Empty(t *testing.T) {
	plan := NewExecutionPlan()
	if !plan.IsEmpty() || plan.Len() != 0 {
		t.Error("new plan should be empty")
	}
	if plan.HasChanges() {
		t.Error("empty plan has no changes")
	}
}

func TestPlan_FromSteps(t *testing.T) {
	plan := NewPlanFromSteps([]compiler.Step{
		newFakeStep("hosts:entry:node-1"),
		newFakeStep("swap:disable:all"),
	})

	if plan.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", plan.Len())
	}
	s := plan.Summary()
	if s.Total != 2 || s.Unchecked != 2 {
		t.Errorf("Summary() = %+v", s)
	}
	if plan.HasChanges() {
		t.Error("unchecked entries are not changes")
	}
}

func TestPlan_SummaryAndNeedsApply(t *testing.T) {
	plan := NewExecutionPlan()
	plan.Add(NewPlanEntry(newFakeStep("a:b:c"), compiler.StatusNeedsApply, compiler.Diff{}))
	plan.Add(NewPlanEntry(newFakeStep("a:b:d"), compiler.StatusSatisfied, compiler.Diff{}))
	plan.Add(NewPlanEntry(newFakeStep("a:b:e"), compiler.StatusNeedsApply, compiler.Diff{}))

	s := plan.Summary()
	if s.Total != 3 || s.NeedsApply != 2 || s.Satisfied != 1 {
		t.Errorf("Summary() = %+v", s)
	}
	if len(plan.NeedsApply()) != 2 || !plan.HasChanges() {
		t.Error("expected two entries needing apply")
	}

	// Entries returns a copy.
	entries := plan.Entries()
	entries[0] = PlanEntry{}
	if plan.Entries()[0].Step() == nil {
		t.Error("Entries() must not expose the internal slice")
	}
}
