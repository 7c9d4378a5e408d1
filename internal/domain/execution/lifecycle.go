package execution

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"
)

// Lifecycle states of one step within a run.
const (
	phasePending    = "pending"
	phaseChecking   = "checking"
	phaseApplying   = "applying"
	phaseVerifying  = "verifying"
	phaseSkipped    = "skipped"
	phaseApplied    = "applied"
	phaseFailed     = "failed"
	phaseAborted    = "aborted"
	phaseWouldApply = "would-apply"
)

// Lifecycle events.
const (
	EventCheck       = "CHECK"
	EventSatisfied   = "SATISFIED"
	EventUnsatisfied = "UNSATISFIED"
	EventPreview     = "PREVIEW"
	EventApplied     = "APPLIED"
	EventVerified    = "VERIFIED"
	EventFail        = "FAIL"
	EventAbort       = "ABORT"
)

// stepTimes records when a step entered its timed phases.
type stepTimes struct {
	started  time.Time
	finished time.Time
}

// lifecycle drives one step through
// pending -> checking -> {skipped, would-apply, applying -> verifying -> {applied, failed}}
// with pending -> aborted for steps that never run.
type lifecycle struct {
	interp *statekit.Interpreter[stepTimes]
	times  *stepTimes
}

func newLifecycle(now func() time.Time) (*lifecycle, error) {
	times := &stepTimes{}
	finish := func(_ *stepTimes, _ statekit.Event) {
		times.finished = now()
	}

	machine, err := statekit.NewMachine[stepTimes]("nodeprep-step").
		WithInitial(phasePending).
		WithContext(stepTimes{}).
		WithAction("start", func(_ *stepTimes, _ statekit.Event) {
			times.started = now()
		}).
		WithAction("finish", finish).
		State(phasePending).
		On(EventCheck).Target(phaseChecking).
		On(EventAbort).Target(phaseAborted).Done().
		State(phaseChecking).
		OnEntry("start").
		On(EventSatisfied).Target(phaseSkipped).
		On(EventPreview).Target(phaseWouldApply).
		On(EventUnsatisfied).Target(phaseApplying).Done().
		State(phaseApplying).
		On(EventApplied).Target(phaseVerifying).
		On(EventFail).Target(phaseFailed).Done().
		State(phaseVerifying).
		On(EventVerified).Target(phaseApplied).
		On(EventFail).Target(phaseFailed).Done().
		State(phaseSkipped).Final().
		OnEntry("finish").Done().
		State(phaseWouldApply).Final().
		OnEntry("finish").Done().
		State(phaseApplied).Final().
		OnEntry("finish").Done().
		State(phaseFailed).Final().
		OnEntry("finish").Done().
		State(phaseAborted).Final().
		OnEntry("finish").Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build step lifecycle: %w", err)
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return &lifecycle{interp: interp, times: times}, nil
}

func (l *lifecycle) send(event string) {
	l.interp.Send(statekit.Event{Type: statekit.EventType(event)})
}

// elapsed returns the start time and duration of the step. Aborted steps
// never started and report zero duration.
func (l *lifecycle) elapsed() (time.Time, time.Duration) {
	if l.times.started.IsZero() {
		return l.times.finished, 0
	}
	return l.times.started, l.times.finished.Sub(l.times.started)
}

// done reports whether the step reached a terminal phase.
func (l *lifecycle) done() bool {
	return l.interp.Done()
}

// phase returns the current lifecycle phase.
func (l *lifecycle) phase() string {
	return string(l.interp.State().Value)
}

func (l *lifecycle) stop() {
	l.interp.Stop()
}
