package containerd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/commandutil"
)

// ConfigStep writes the full default configuration when the file is
// missing, unparsable or has the CRI plugin disabled.
type ConfigStep struct {
	compiler.Meta
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewConfigStep creates a new ConfigStep.
func NewConfigStep(runner ports.CommandRunner, fs ports.FileSystem, deps ...compiler.StepID) *ConfigStep {
	return &ConfigStep{
		Meta:   compiler.NewMeta(ConfigStepID, "Write default containerd configuration", deps...),
		runner: runner,
		fs:     fs,
	}
}

// usable reports whether the current file can serve the kubelet. A reason
// is returned for the plan.
func (s *ConfigStep) usable() (bool, string, error) {
	data, err := s.fs.ReadFile(ConfigPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, "missing", nil
	case err != nil:
		return false, "", fmt.Errorf("read %s: %w", ConfigPath, err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return false, "unparsable", nil
	}
	if doc.criDisabled() {
		return false, "cri disabled", nil
	}
	return true, "", nil
}

// Check requires a parsable config with the CRI plugin enabled.
func (s *ConfigStep) Check(_ compiler.RunContext) (compiler.StepStatus, error) {
	ok, _, err := s.usable()
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *ConfigStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	_, reason, _ := s.usable()
	return compiler.NewDiff(compiler.DiffTypeModify, "file", ConfigPath, reason, "containerd default"), nil
}

// Apply replaces the file with "containerd config default".
func (s *ConfigStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	ok, _, err := s.usable()
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.ResultUnchanged, nil
	}

	result, err := commandutil.Run(ctx.Context(), s.runner, "containerd", "config", "default")
	if err != nil {
		return "", err
	}
	if _, err := parseDocument([]byte(result.Stdout)); err != nil {
		return "", fmt.Errorf("containerd config default produced invalid TOML: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(ConfigPath), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(ConfigPath), err)
	}
	if err := s.fs.WriteFile(ConfigPath, []byte(result.Stdout), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", ConfigPath, err)
	}
	return compiler.ResultChanged, nil
}

// PatchStep sets SystemdCgroup = true on the runc runtime.
type PatchStep struct {
	compiler.Meta
	fs ports.FileSystem
}

// NewPatchStep creates a new PatchStep.
func NewPatchStep(fs ports.FileSystem, deps ...compiler.StepID) *PatchStep {
	return &PatchStep{
		Meta: compiler.NewMeta(PatchStepID, "Use the systemd cgroup driver for runc", deps...),
		fs:   fs,
	}
}

func (s *PatchStep) load() (document, error) {
	data, err := s.fs.ReadFile(ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ConfigPath, err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigPath, err)
	}
	return doc, nil
}

// Check requires the runc options to carry SystemdCgroup = true.
func (s *PatchStep) Check(_ compiler.RunContext) (compiler.StepStatus, error) {
	doc, err := s.load()
	if err != nil {
		return "", err
	}
	if doc.systemdCgroup() {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *PatchStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeModify, "containerd", "SystemdCgroup", "false", "true"), nil
}

// Apply edits the parsed document and writes it back. Failures are
// reported as CONFIG_PATCH_FAILED.
func (s *PatchStep) Apply(_ compiler.RunContext) (compiler.ApplyResult, error) {
	id := s.ID().String()

	doc, err := s.load()
	if err != nil {
		return "", compiler.NewConfigPatchFailedError(id, ConfigPath, err)
	}
	if doc.systemdCgroup() {
		return compiler.ResultUnchanged, nil
	}
	if err := doc.setSystemdCgroup(); err != nil {
		return "", compiler.NewConfigPatchFailedError(id, ConfigPath, err)
	}
	data, err := doc.marshal()
	if err != nil {
		return "", compiler.NewConfigPatchFailedError(id, ConfigPath, err)
	}

	mode := os.FileMode(0o644)
	if info, err := s.fs.GetFileInfo(ConfigPath); err == nil {
		mode = info.Mode.Perm()
	}
	if err := s.fs.WriteFile(ConfigPath, data, mode); err != nil {
		return "", compiler.NewConfigPatchFailedError(id, ConfigPath, err)
	}
	return compiler.ResultChanged, nil
}

// RestartStep restarts containerd when it runs with an older config.
type RestartStep struct {
	compiler.Meta
	runner ports.CommandRunner
	probe  *probe.Probe
}

// NewRestartStep creates a new RestartStep.
func NewRestartStep(runner ports.CommandRunner, p *probe.Probe, deps ...compiler.StepID) *RestartStep {
	return &RestartStep{
		Meta:   compiler.NewMeta(RestartStepID, "Restart containerd with the current configuration", deps...),
		runner: runner,
		probe:  p,
	}
}

// current reports whether containerd is active and started no earlier than
// the config's last modification.
func (s *RestartStep) current(ctx context.Context) (bool, error) {
	active, err := s.probe.ServiceActive(ctx, "containerd")
	if err != nil || !active {
		return false, err
	}
	started, err := s.probe.ServiceStartedAt(ctx, "containerd")
	if err != nil {
		return false, err
	}
	modified, err := s.probe.FileModTime(ctx, ConfigPath)
	if err != nil {
		return false, err
	}
	// systemd timestamps have second precision.
	return !started.IsZero() && !started.Before(modified.Truncate(time.Second)), nil
}

// Check requires containerd to run with the current config.
func (s *RestartStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	ok, err := s.current(ctx.Context())
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *RestartStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeRun, "service", "containerd restart", "", ""), nil
}

// Apply restarts containerd.
func (s *RestartStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	ok, err := s.current(ctx.Context())
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.ResultUnchanged, nil
	}
	if _, err := commandutil.Run(ctx.Context(), s.runner, "systemctl", "restart", "containerd"); err != nil {
		return "", err
	}
	return compiler.ResultChanged, nil
}
