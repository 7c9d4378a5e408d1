// Package execution walks a compiled step graph: it checks every step,
// applies what is unsatisfied, verifies the result and records one outcome
// per step.
package execution

import (
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
)

// Status is the recorded outcome of a step in one run.
type Status string

const (
	// StatusPending means the step has not been visited yet.
	StatusPending Status = "pending"
	// StatusSkipped means the check found the step already satisfied.
	StatusSkipped Status = "skipped"
	// StatusApplied means the step was applied and verified.
	StatusApplied Status = "applied"
	// StatusFailed means apply or verification failed.
	StatusFailed Status = "failed"
	// StatusAborted means the step was never executed.
	StatusAborted Status = "aborted"
	// StatusWouldApply means a dry run found the step unsatisfied.
	StatusWouldApply Status = "would-apply"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusApplied, StatusSkipped, StatusWouldApply, StatusFailed, StatusAborted, StatusPending}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the status is final for a run.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// StepResult captures the outcome of executing a single step. It is a value
// type and is never modified once recorded.
type StepResult struct {
	stepID    compiler.StepID
	status    Status
	detail    string
	err       error
	changed   bool
	logPath   string
	timestamp time.Time
	duration  time.Duration
	diff      compiler.Diff
}

// NewStepResult creates a new StepResult.
func NewStepResult(stepID compiler.StepID, status Status, err error) StepResult {
	return StepResult{
		stepID: stepID,
		status: status,
		err:    err,
	}
}

// StepID returns the ID of the step that was executed.
func (r StepResult) StepID() compiler.StepID {
	return r.stepID
}

// Status returns the final status of the step.
func (r StepResult) Status() Status {
	return r.status
}

// Detail returns a short human-readable explanation of the outcome.
func (r StepResult) Detail() string {
	if r.detail == "" && r.err != nil {
		return r.err.Error()
	}
	return r.detail
}

// Error returns any error that occurred during execution.
func (r StepResult) Error() error {
	return r.err
}

// Changed reports whether Apply mutated the host.
func (r StepResult) Changed() bool {
	return r.changed
}

// LogPath returns where the step's command output was captured, if anywhere.
func (r StepResult) LogPath() string {
	return r.logPath
}

// Timestamp returns when the step started.
func (r StepResult) Timestamp() time.Time {
	return r.timestamp
}

// Duration returns how long the step took to execute.
func (r StepResult) Duration() time.Duration {
	return r.duration
}

// Diff returns the planned change of an applied or would-apply step.
func (r StepResult) Diff() compiler.Diff {
	return r.diff
}

// Success returns true if the step ended in the desired state.
func (r StepResult) Success() bool {
	return r.status == StatusApplied || r.status == StatusSkipped
}

// Failed returns true if the step failed.
func (r StepResult) Failed() bool {
	return r.status == StatusFailed
}

// WithDetail returns a new StepResult with detail set.
func (r StepResult) WithDetail(detail string) StepResult {
	r.detail = detail
	return r
}

// WithChanged returns a new StepResult with changed set.
func (r StepResult) WithChanged(changed bool) StepResult {
	r.changed = changed
	return r
}

// WithLogPath returns a new StepResult with the log path set.
func (r StepResult) WithLogPath(path string) StepResult {
	r.logPath = path
	return r
}

// WithTiming returns a new StepResult with start time and duration set.
func (r StepResult) WithTiming(start time.Time, d time.Duration) StepResult {
	r.timestamp = start
	r.duration = d
	return r
}

// WithDiff returns a new StepResult with diff set.
func (r StepResult) WithDiff(d compiler.Diff) StepResult {
	r.diff = d
	return r
}
