package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// Executor runs the steps of a Plan in order. Every step is checked against
// the live host immediately before it runs, applied at most once, and
// verified by re-running its check.
type Executor struct {
	dryRun        bool
	haltOnFailure bool
	now           func() time.Time
}

// NewExecutor creates a new Executor that halts on the first failure.
func NewExecutor() *Executor {
	return &Executor{
		haltOnFailure: true,
		now:           time.Now,
	}
}

// WithDryRun returns an Executor that checks steps without applying them.
func (e *Executor) WithDryRun(dryRun bool) *Executor {
	n := *e
	n.dryRun = dryRun
	return &n
}

// WithHaltOnFailure returns an Executor with the given failure policy. When
// false the executor keeps going and aborts only the dependents of failed
// steps.
func (e *Executor) WithHaltOnFailure(halt bool) *Executor {
	n := *e
	n.haltOnFailure = halt
	return &n
}

// WithClock returns an Executor that timestamps results with now.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	n := *e
	n.now = now
	return &n
}

// DryRun reports whether the executor only previews changes.
func (e *Executor) DryRun() bool {
	return e.dryRun
}

// HaltOnFailure reports the failure policy.
func (e *Executor) HaltOnFailure() bool {
	return e.haltOnFailure
}

// Execute runs all steps in the plan in order and returns one result per
// entry. The error is the first step failure, or the context error when the
// run was cancelled; it is nil when every step succeeded.
func (e *Executor) Execute(ctx context.Context, plan *Plan) ([]StepResult, error) {
	logger := ports.LoggerOrDiscard(ctx)
	results := make([]StepResult, 0, plan.Len())
	incomplete := make(map[string]bool)

	var (
		firstErr error
		haltedBy string
	)

	for _, entry := range plan.Entries() {
		step := entry.Step()
		id := step.ID().String()

		lc, err := newLifecycle(e.now)
		if err != nil {
			return results, err
		}

		var result StepResult
		switch {
		case haltedBy != "":
			result = e.abort(lc, step, fmt.Sprintf("not run: halted after %s failed", haltedBy))
		case ctx.Err() != nil:
			result = e.abort(lc, step, "not run: run cancelled")
		default:
			if dep := firstIncomplete(step, incomplete); dep != "" {
				result = e.abort(lc, step, fmt.Sprintf("not run: dependency %s did not complete", dep))
				break
			}
			result = e.runStep(ctx, logger, lc, step)
		}
		if !lc.done() {
			phase := lc.phase()
			lc.stop()
			return results, fmt.Errorf("step %s stopped in lifecycle phase %q", id, phase)
		}
		lc.stop()

		results = append(results, result)
		e.log(ctx, logger, result)

		switch result.Status() {
		case StatusFailed:
			incomplete[id] = true
			if firstErr == nil {
				firstErr = result.Error()
			}
			if e.haltOnFailure || errors.Is(result.Error(), compiler.ErrPostcondition) {
				if haltedBy == "" {
					haltedBy = id
				}
			}
		case StatusAborted:
			incomplete[id] = true
		}
	}

	if firstErr == nil && ctx.Err() != nil {
		firstErr = fmt.Errorf("run cancelled: %w", ctx.Err())
	}
	return results, firstErr
}

// runStep moves one step through check, apply and verification.
func (e *Executor) runStep(ctx context.Context, logger ports.Logger, lc *lifecycle, step compiler.Step) StepResult {
	id := step.ID()
	runCtx := compiler.NewRunContext(ctx).WithDryRun(e.dryRun)

	lc.send(EventCheck)
	status, err := step.Check(runCtx)
	checkNote := ""
	if err != nil {
		checkErr := compiler.NewCheckFailedError(id.String(), err)
		logger.Warn(ctx, "check failed, treating step as unsatisfied",
			ports.F("step", id.String()), ports.Err(checkErr))
		status = compiler.StatusNeedsApply
		checkNote = checkErr.Error()
	}

	if !status.NeedsAction() {
		lc.send(EventSatisfied)
		return e.finish(lc, NewStepResult(id, StatusSkipped, nil).WithDetail("already satisfied"), step)
	}

	diff := planDiff(step, runCtx)

	if e.dryRun {
		lc.send(EventPreview)
		detail := diff.Summary()
		if checkNote != "" {
			detail = checkNote
		}
		return e.finish(lc, NewStepResult(id, StatusWouldApply, nil).WithDetail(detail).WithDiff(diff), step)
	}

	lc.send(EventUnsatisfied)
	applied, err := step.Apply(runCtx)
	if err != nil {
		lc.send(EventFail)
		return e.finish(lc, NewStepResult(id, StatusFailed, classifyApplyError(id.String(), err)).WithDiff(diff), step)
	}

	lc.send(EventApplied)
	post, err := step.Check(runCtx)
	if err == nil && post.NeedsAction() {
		err = errors.New("check still reports the step as unsatisfied")
	}
	if err != nil {
		lc.send(EventFail)
		return e.finish(lc, NewStepResult(id, StatusFailed, compiler.NewPostconditionError(id.String(), err)).
			WithDiff(diff).
			WithChanged(applied.Changed()), step)
	}

	lc.send(EventVerified)
	detail := "applied"
	if !applied.Changed() {
		detail = "applied, no change needed"
	}
	return e.finish(lc, NewStepResult(id, StatusApplied, nil).
		WithDetail(detail).
		WithDiff(diff).
		WithChanged(applied.Changed()), step)
}

func (e *Executor) abort(lc *lifecycle, step compiler.Step, detail string) StepResult {
	lc.send(EventAbort)
	return e.finish(lc, NewStepResult(step.ID(), StatusAborted, nil).WithDetail(detail), step)
}

func (e *Executor) finish(lc *lifecycle, result StepResult, step compiler.Step) StepResult {
	start, d := lc.elapsed()
	result = result.WithTiming(start, d)
	if lp, ok := step.(compiler.LogPathStep); ok && result.Status() != StatusAborted {
		result = result.WithLogPath(lp.LogPath())
	}
	return result
}

func (e *Executor) log(ctx context.Context, logger ports.Logger, r StepResult) {
	fields := []ports.Field{
		ports.F("step", r.StepID().String()),
		ports.F("status", r.Status().String()),
		ports.F("duration", r.Duration().String()),
	}
	switch r.Status() {
	case StatusFailed:
		logger.Error(ctx, "step failed", append(fields, ports.Err(r.Error()))...)
	case StatusAborted:
		logger.Warn(ctx, "step aborted", append(fields, ports.F("detail", r.Detail()))...)
	case StatusApplied:
		logger.Info(ctx, "step applied", append(fields, ports.F("changed", r.Changed()))...)
	default:
		logger.Debug(ctx, "step "+r.Status().String(), fields...)
	}
}

// classifyApplyError maps an apply error to its coded form. Errors that are
// already coded keep their code.
func classifyApplyError(stepID string, err error) error {
	var se *compiler.StepError
	if errors.As(err, &se) {
		if se.StepID == "" {
			return se.WithStepID(stepID)
		}
		return err
	}
	if errors.Is(err, ports.ErrCommandTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return compiler.NewTimeoutError(stepID, err)
	}
	return compiler.NewApplyFailedError(stepID, err)
}

func firstIncomplete(step compiler.Step, incomplete map[string]bool) string {
	for _, dep := range step.DependsOn() {
		if incomplete[dep.String()] {
			return dep.String()
		}
	}
	return ""
}
