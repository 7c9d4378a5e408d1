package swap

import (
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/commandutil"
)

// DisableStep turns swap off and comments out swap lines in /etc/fstab.
type DisableStep struct {
	compiler.Meta
	runner ports.CommandRunner
	fs     ports.FileSystem
	probe  *probe.Probe
}

// NewDisableStep creates a new DisableStep.
func NewDisableStep(runner ports.CommandRunner, fs ports.FileSystem, p *probe.Probe) *DisableStep {
	return &DisableStep{
		Meta:   compiler.NewMeta(StepID, "Disable swap and remove it from /etc/fstab"),
		runner: runner,
		fs:     fs,
		probe:  p,
	}
}

type swapState struct {
	active     []string
	fstab      []string
	fstabLines int
}

func (s *DisableStep) observe(ctx compiler.RunContext) (swapState, error) {
	active, err := s.probe.ActiveSwap(ctx.Context())
	if err != nil {
		return swapState{}, err
	}
	lines, _, err := s.probe.FileLines(ctx.Context(), s.probe.Paths().Fstab)
	if err != nil {
		return swapState{}, err
	}
	st := swapState{active: active, fstab: lines}
	for _, line := range lines {
		if probe.IsSwapFstabLine(line) {
			st.fstabLines++
		}
	}
	return st, nil
}

func (st swapState) satisfied() bool {
	return len(st.active) == 0 && st.fstabLines == 0
}

// Check requires no active swap device and no enabled fstab swap entry.
func (s *DisableStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	st, err := s.observe(ctx)
	if err != nil {
		return "", err
	}
	if st.satisfied() {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *DisableStep) Plan(ctx compiler.RunContext) (compiler.Diff, error) {
	st, err := s.observe(ctx)
	if err != nil {
		return compiler.NewDiff(compiler.DiffTypeRemove, "swap", "all", "unknown", ""), nil
	}
	return compiler.NewDiff(compiler.DiffTypeRemove, "swap", "all",
		fmt.Sprintf("%d active, %d in fstab", len(st.active), st.fstabLines), ""), nil
}

// Apply runs swapoff when swap is active and comments out fstab swap lines.
func (s *DisableStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	st, err := s.observe(ctx)
	if err != nil {
		return "", err
	}
	if st.satisfied() {
		return compiler.ResultUnchanged, nil
	}

	if len(st.active) > 0 {
		if _, err := commandutil.Run(ctx.Context(), s.runner, "swapoff", "-a"); err != nil {
			return "", err
		}
	}

	if st.fstabLines > 0 {
		path := s.probe.Paths().Fstab
		out := make([]string, len(st.fstab))
		for i, line := range st.fstab {
			if probe.IsSwapFstabLine(line) {
				line = "#" + line
			}
			out[i] = line
		}
		perm := os.FileMode(0o644)
		if info, err := s.fs.GetFileInfo(path); err == nil {
			perm = info.Mode.Perm()
		}
		if err := s.fs.WriteFile(path, []byte(strings.Join(out, "\n")+"\n"), perm); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
	}
	return compiler.ResultChanged, nil
}
