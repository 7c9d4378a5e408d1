package kubeadm

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/joincred"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/commandutil"
)

// JoinStep runs kubeadm join once. A joined node is detected from the
// kubelet's cluster kubeconfig.
type JoinStep struct {
	compiler.Meta
	cred    joincred.Credential
	timeout time.Duration
	runner  ports.CommandRunner
	probe   *probe.Probe
}

// NewJoinStep creates a new JoinStep.
func NewJoinStep(cred joincred.Credential, timeout time.Duration, runner ports.CommandRunner, p *probe.Probe, deps ...compiler.StepID) (*JoinStep, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	return &JoinStep{
		Meta:    compiler.NewMeta(JoinStepID, "Join the cluster at "+cred.Endpoint, deps...),
		cred:    cred,
		timeout: timeout,
		runner:  runner,
		probe:   p,
	}, nil
}

// Check reports satisfied once the kubelet holds cluster credentials.
func (s *JoinStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	if s.probe.KubeletJoined(ctx.Context()) {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step. The token is masked.
func (s *JoinStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeRun, "kubeadm", s.cred.Redacted(), "", ""), nil
}

// Apply runs kubeadm join under the bootstrap timeout. Errors carry the
// redacted command line.
func (s *JoinStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	if s.probe.KubeletJoined(ctx.Context()) {
		return compiler.ResultUnchanged, nil
	}

	runCtx := ctx.Context()
	if s.timeout > 0 {
		runCtx = ports.WithCommandTimeout(runCtx, s.timeout)
	}
	result, err := s.runner.Run(runCtx, "kubeadm", s.cred.Args()...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.cred.Redacted(), err)
	}
	if !result.Success() {
		return "", &commandutil.ExitError{
			Command:  s.cred.Redacted(),
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}
	return compiler.ResultChanged, nil
}
