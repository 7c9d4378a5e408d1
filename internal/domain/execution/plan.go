package execution

import (
	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
)

// PlanEntry represents a single step's planned execution.
type PlanEntry struct {
	step     compiler.Step
	status   compiler.StepStatus
	diff     compiler.Diff
	checkErr error
}

// NewPlanEntry creates a new PlanEntry.
func NewPlanEntry(step compiler.Step, status compiler.StepStatus, diff compiler.Diff) PlanEntry {
	return PlanEntry{
		step:   step,
		status: status,
		diff:   diff,
	}
}

// Step returns the step to be executed.
func (e PlanEntry) Step() compiler.Step {
	return e.step
}

// Status returns the status observed when the plan was built. It is empty
// for entries that were never checked.
func (e PlanEntry) Status() compiler.StepStatus {
	return e.status
}

// Diff returns the planned changes.
func (e PlanEntry) Diff() compiler.Diff {
	return e.diff
}

// CheckError returns the error the check returned while planning, if any.
func (e PlanEntry) CheckError() error {
	return e.checkErr
}

// WithCheckError returns a copy of the entry with the check error set.
func (e PlanEntry) WithCheckError(err error) PlanEntry {
	e.checkErr = err
	return e
}

// PlanSummary provides aggregate statistics about the execution plan.
type PlanSummary struct {
	Total       int
	NeedsApply  int
	Satisfied   int
	Unchecked   int
	CheckErrors int
}

// Plan is the ordered list of steps for one run.
type Plan struct {
	entries []PlanEntry
}

// NewExecutionPlan creates an empty Plan.
func NewExecutionPlan() *Plan {
	return &Plan{
		entries: make([]PlanEntry, 0),
	}
}

// NewPlanFromSteps creates an unchecked Plan from steps already in execution order.
func NewPlanFromSteps(steps []compiler.Step) *Plan {
	p := &Plan{entries: make([]PlanEntry, 0, len(steps))}
	for _, s := range steps {
		p.Add(PlanEntry{step: s})
	}
	return p
}

// Add appends a plan entry.
func (p *Plan) Add(entry PlanEntry) {
	p.entries = append(p.entries, entry)
}

// Len returns the number of entries.
func (p *Plan) Len() int {
	return len(p.entries)
}

// IsEmpty returns true if there are no entries.
func (p *Plan) IsEmpty() bool {
	return len(p.entries) == 0
}

// Entries returns all plan entries.
func (p *Plan) Entries() []PlanEntry {
	out := make([]PlanEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// StepIDs returns the step IDs in execution order.
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.entries))
	for i, e := range p.entries {
		ids[i] = e.step.ID().String()
	}
	return ids
}

// NeedsApply returns entries that require execution.
func (p *Plan) NeedsApply() []PlanEntry {
	result := make([]PlanEntry, 0)
	for _, e := range p.entries {
		if e.status == compiler.StatusNeedsApply {
			result = append(result, e)
		}
	}
	return result
}

// HasChanges returns true if any steps need to be applied.
func (p *Plan) HasChanges() bool {
	return len(p.NeedsApply()) > 0
}

// Summary returns aggregate statistics.
func (p *Plan) Summary() PlanSummary {
	summary := PlanSummary{Total: len(p.entries)}
	for _, e := range p.entries {
		switch e.status {
		case compiler.StatusNeedsApply:
			summary.NeedsApply++
		case compiler.StatusSatisfied:
			summary.Satisfied++
		default:
			summary.Unchecked++
		}
		if e.checkErr != nil {
			summary.CheckErrors++
		}
	}
	return summary
}
