package execution

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// Planner generates a Plan from a StepGraph.
// It checks each step's current status and plans necessary changes without
// mutating the host.
type Planner struct{}

// NewPlanner creates a new Planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan generates a Plan by checking each step's status.
// Steps are returned in topological order. A failing check does not stop
// planning: the step is reported as needing apply with the check error kept on
// the entry, since later steps often cannot be probed before earlier ones ran.
func (p *Planner) Plan(ctx context.Context, graph *compiler.StepGraph) (*Plan, error) {
	steps, err := graph.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("failed to sort steps: %w", err)
	}

	logger := ports.LoggerOrDiscard(ctx)
	runCtx := compiler.NewRunContext(ctx).WithDryRun(true)
	plan := NewExecutionPlan()

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := p.planStep(step, runCtx)
		if entry.checkErr != nil {
			logger.Debug(ctx, "check failed while planning",
				ports.F("step", step.ID().String()), ports.Err(entry.checkErr))
		}
		plan.Add(entry)
	}

	return plan, nil
}

// planStep checks a single step and generates a PlanEntry.
func (p *Planner) planStep(step compiler.Step, ctx compiler.RunContext) PlanEntry {
	status, err := step.Check(ctx)
	if err != nil {
		return NewPlanEntry(step, compiler.StatusNeedsApply, planDiff(step, ctx)).
			WithCheckError(compiler.NewCheckFailedError(step.ID().String(), err))
	}

	var diff compiler.Diff
	if status.NeedsAction() {
		diff = planDiff(step, ctx)
	}

	return NewPlanEntry(step, status, diff)
}

func planDiff(step compiler.Step, ctx compiler.RunContext) compiler.Diff {
	diff, err := step.Plan(ctx)
	if err != nil {
		return compiler.NewDiff(compiler.DiffTypeRun, step.ID().Provider(), step.ID().Resource(), "", step.Description())
	}
	return diff
}
