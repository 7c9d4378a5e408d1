// Package report aggregates the step outcomes of one run into a summary that
// can be rendered for operators or written as JSON.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/execution"
)

// Failure describes the first step that failed in a run.
type Failure struct {
	StepID  string `json:"step_id"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail"`
	LogPath string `json:"log_path,omitempty"`
}

// Report is the outcome of one provisioning run.
type Report struct {
	RunID        string
	Role         string
	DryRun       bool
	StartedAt    time.Time
	Elapsed      time.Duration
	Counts       map[execution.Status]int
	FirstFailure *Failure
	Results      []execution.StepResult
	// Cancelled is set when the run context ended before every step ran.
	Cancelled bool
}

// New builds a Report from the results of one run.
func New(role string, startedAt time.Time, elapsed time.Duration, results []execution.StepResult) *Report {
	r := &Report{
		RunID:     uuid.New().String(),
		Role:      role,
		StartedAt: startedAt,
		Elapsed:   elapsed,
		Counts:    make(map[execution.Status]int),
		Results:   append([]execution.StepResult(nil), results...),
	}

	for _, res := range results {
		r.Counts[res.Status()]++
		if res.Status() == execution.StatusFailed && r.FirstFailure == nil {
			r.FirstFailure = failureOf(res)
		}
	}
	return r
}

// WithDryRun marks the report as a preview.
func (r *Report) WithDryRun(dryRun bool) *Report {
	r.DryRun = dryRun
	return r
}

// WithCancelled marks a run whose context ended early.
func (r *Report) WithCancelled(cancelled bool) *Report {
	r.Cancelled = cancelled
	return r
}

func failureOf(res execution.StepResult) *Failure {
	return &Failure{
		StepID:  res.StepID().String(),
		Code:    compiler.CodeOf(res.Error()),
		Detail:  res.Detail(),
		LogPath: res.LogPath(),
	}
}

// Count returns how many steps ended with status.
func (r *Report) Count(status execution.Status) int {
	return r.Counts[status]
}

// Total returns the number of steps in the run.
func (r *Report) Total() int {
	return len(r.Results)
}

// Success reports whether no step failed or was aborted.
func (r *Report) Success() bool {
	return r.Count(execution.StatusFailed) == 0 && r.Count(execution.StatusAborted) == 0 && !r.Cancelled
}

// Changed returns the IDs of the steps that mutated the host.
func (r *Report) Changed() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Status() == execution.StatusApplied && res.Changed() {
			ids = append(ids, res.StepID().String())
		}
	}
	return ids
}
