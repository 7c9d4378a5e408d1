package execution

import (
	"errors"
	"sync"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
)

// fakeStep models one piece of host state that Apply turns on.
type fakeStep struct {
	compiler.Meta

	mu        sync.Mutex
	satisfied bool
	applies   int
	checks    int
	checkErr  error
	applyErr  error
	noEffect  bool
	logPath   string
	onApply   func()
}

func newFakeStep(id string, deps ...string) *fakeStep {
	depIDs := make([]compiler.StepID, len(deps))
	for i, d := range deps {
		depIDs[i] = compiler.MustNewStepID(d)
	}
	return &fakeStep{Meta: compiler.NewMeta(compiler.MustNewStepID(id), "fake "+id, depIDs...)}
}

func (s *fakeStep) Check(compiler.RunContext) (compiler.StepStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	if s.checkErr != nil {
		err := s.checkErr
		s.checkErr = nil
		return "", err
	}
	if s.satisfied {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

func (s *fakeStep) Plan(compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeAdd, "fake", s.ID().String(), "", "on"), nil
}

func (s *fakeStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	s.mu.Lock()
	s.applies++
	onApply := s.onApply
	s.mu.Unlock()

	if onApply != nil {
		onApply()
	}
	if err := ctx.Context().Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return "", s.applyErr
	}
	if s.satisfied {
		return compiler.ResultUnchanged, nil
	}
	if !s.noEffect {
		s.satisfied = true
	}
	return compiler.ResultChanged, nil
}

func (s *fakeStep) Applies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applies
}

func (s *fakeStep) Checks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

// logStep adds a log path to a fakeStep.
type logStep struct {
	*fakeStep
}

func (s logStep) LogPath() string { return s.logPath }

func planOf(steps ...compiler.Step) *Plan {
	return NewPlanFromSteps(steps)
}

var errBoom = errors.New("boom")
