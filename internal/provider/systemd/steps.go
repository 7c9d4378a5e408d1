package systemd

import (
	"fmt"
	"regexp"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/commandutil"
)

var unitPattern = regexp.MustCompile(`^[a-zA-Z0-9@._-]+$`)

// ServiceStep enables a unit at boot and starts it.
type ServiceStep struct {
	compiler.Meta
	unit   string
	runner ports.CommandRunner
	probe  *probe.Probe
}

// NewServiceStep creates a new ServiceStep.
func NewServiceStep(unit string, runner ports.CommandRunner, p *probe.Probe, deps ...compiler.StepID) (*ServiceStep, error) {
	if !unitPattern.MatchString(unit) {
		return nil, fmt.Errorf("invalid unit name %q", unit)
	}
	return &ServiceStep{
		Meta:   compiler.NewMeta(ServiceStepID(unit), "Enable and start "+unit, deps...),
		unit:   unit,
		runner: runner,
		probe:  p,
	}, nil
}

func (s *ServiceStep) observe(ctx compiler.RunContext) (enabled bool, state string, err error) {
	enabled, err = s.probe.ServiceEnabled(ctx.Context(), s.unit)
	if err != nil {
		return false, "", err
	}
	state, err = s.probe.ServiceState(ctx.Context(), s.unit)
	if err != nil {
		return false, "", err
	}
	return enabled, state, nil
}

// started reports whether systemd is running the unit or trying to. The
// kubelet restarts in a loop until kubeadm writes its configuration, which
// systemd reports as "activating".
func started(state string) bool {
	switch state {
	case "active", "activating", "reloading":
		return true
	}
	return false
}

// Check requires the unit to be enabled with a start requested.
func (s *ServiceStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	enabled, state, err := s.observe(ctx)
	if err != nil {
		return "", err
	}
	if enabled && started(state) {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *ServiceStep) Plan(ctx compiler.RunContext) (compiler.Diff, error) {
	enabled, state, err := s.observe(ctx)
	if err != nil {
		return compiler.NewDiff(compiler.DiffTypeModify, "service", s.unit, "", "enabled, started"), nil
	}
	return compiler.NewDiff(compiler.DiffTypeModify, "service", s.unit, describe(enabled, state), "enabled, started"), nil
}

func describe(enabled bool, state string) string {
	if enabled {
		return "enabled, " + state
	}
	return "disabled, " + state
}

// Apply runs "systemctl enable --now" for the unit.
func (s *ServiceStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	enabled, state, err := s.observe(ctx)
	if err != nil {
		return "", err
	}
	if enabled && started(state) {
		return compiler.ResultUnchanged, nil
	}
	if _, err := commandutil.Run(ctx.Context(), s.runner, "systemctl", "enable", "--now", s.unit); err != nil {
		return "", err
	}
	return compiler.ResultChanged, nil
}
