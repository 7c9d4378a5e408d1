package kernel

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/commandutil"
	"github.com/felixgeelhaar/nodeprep/internal/validation"
)

// ModuleStep loads a kernel module and lists it in modules-load.d.
type ModuleStep struct {
	compiler.Meta
	module string
	runner ports.CommandRunner
	fs     ports.FileSystem
	probe  *probe.Probe
}

// NewModuleStep creates a new ModuleStep.
func NewModuleStep(module string, runner ports.CommandRunner, fs ports.FileSystem, p *probe.Probe) (*ModuleStep, error) {
	if err := validation.ValidateModuleName(module); err != nil {
		return nil, err
	}
	return &ModuleStep{
		Meta:   compiler.NewMeta(ModuleStepID(module), "Load kernel module "+module),
		module: module,
		runner: runner,
		fs:     fs,
		probe:  p,
	}, nil
}

func (s *ModuleStep) observe(ctx compiler.RunContext) (loaded, persisted bool, lines []string, err error) {
	loaded, err = s.probe.ModuleLoaded(ctx.Context(), s.module)
	if err != nil {
		return false, false, nil, err
	}
	lines, _, err = s.probe.FileLines(ctx.Context(), ModulesLoadFile)
	if err != nil {
		return false, false, nil, err
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == s.module {
			persisted = true
		}
	}
	return loaded, persisted, lines, nil
}

// Check requires the module to be loaded and persisted.
func (s *ModuleStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	loaded, persisted, _, err := s.observe(ctx)
	if err != nil {
		return "", err
	}
	if loaded && persisted {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *ModuleStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeAdd, "module", s.module, "", "loaded"), nil
}

// Apply loads the module and appends it to the modules-load.d file, doing
// only the parts that are missing.
func (s *ModuleStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	loaded, persisted, lines, err := s.observe(ctx)
	if err != nil {
		return "", err
	}
	if loaded && persisted {
		return compiler.ResultUnchanged, nil
	}

	if !loaded {
		if _, err := commandutil.Run(ctx.Context(), s.runner, "modprobe", s.module); err != nil {
			return "", err
		}
	}
	if !persisted {
		lines = append(lines, s.module)
		if err := writeConfig(s.fs, ModulesLoadFile, []byte(strings.Join(lines, "\n")+"\n")); err != nil {
			return "", err
		}
	}
	return compiler.ResultChanged, nil
}

// SysctlStep sets a kernel parameter live and in sysctl.d.
type SysctlStep struct {
	compiler.Meta
	key    string
	value  string
	runner ports.CommandRunner
	fs     ports.FileSystem
	probe  *probe.Probe
}

// NewSysctlStep creates a new SysctlStep.
func NewSysctlStep(key, value string, runner ports.CommandRunner, fs ports.FileSystem, p *probe.Probe, deps ...compiler.StepID) (*SysctlStep, error) {
	if err := validation.ValidateSysctl(key, value); err != nil {
		return nil, err
	}
	return &SysctlStep{
		Meta:   compiler.NewMeta(SysctlStepID(key), fmt.Sprintf("Set %s = %s", key, value), deps...),
		key:    key,
		value:  value,
		runner: runner,
		fs:     fs,
		probe:  p,
	}, nil
}

type sysctlState struct {
	live      string
	exists    bool
	persisted bool
	file      *ini.File
}

func (s *SysctlStep) observe(ctx compiler.RunContext) (sysctlState, error) {
	var st sysctlState

	live, err := s.probe.Sysctl(ctx.Context(), s.key)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// The parameter appears once its module is loaded.
	case err != nil:
		return st, err
	default:
		st.live = live
		st.exists = true
	}

	data, err := s.fs.ReadFile(SysctlFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		st.file = ini.Empty()
	case err != nil:
		return st, fmt.Errorf("read %s: %w", SysctlFile, err)
	default:
		st.file, err = ini.Load(data)
		if err != nil {
			return st, fmt.Errorf("parse %s: %w", SysctlFile, err)
		}
	}
	sec := st.file.Section(ini.DefaultSection)
	st.persisted = sec.HasKey(s.key) && sec.Key(s.key).String() == s.value
	return st, nil
}

func (s *SysctlStep) satisfied(st sysctlState) bool {
	return st.exists && st.live == s.value && st.persisted
}

// Check requires the live value and the persisted value to match.
func (s *SysctlStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	st, err := s.observe(ctx)
	if err != nil {
		return "", err
	}
	if s.satisfied(st) {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *SysctlStep) Plan(ctx compiler.RunContext) (compiler.Diff, error) {
	st, err := s.observe(ctx)
	if err != nil || !st.exists {
		return compiler.NewDiff(compiler.DiffTypeModify, "sysctl", s.key, "", s.value), nil
	}
	return compiler.NewDiff(compiler.DiffTypeModify, "sysctl", s.key, st.live, s.value), nil
}

// Apply persists the value in sysctl.d and sets it with sysctl -w.
func (s *SysctlStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	st, err := s.observe(ctx)
	if err != nil {
		return "", err
	}
	if s.satisfied(st) {
		return compiler.ResultUnchanged, nil
	}

	if !st.persisted {
		st.file.Section(ini.DefaultSection).Key(s.key).SetValue(s.value)
		var buf bytes.Buffer
		if _, err := st.file.WriteTo(&buf); err != nil {
			return "", fmt.Errorf("render %s: %w", SysctlFile, err)
		}
		if err := writeConfig(s.fs, SysctlFile, buf.Bytes()); err != nil {
			return "", err
		}
	}
	if !st.exists || st.live != s.value {
		if _, err := commandutil.Run(ctx.Context(), s.runner, "sysctl", "-w", s.key+"="+s.value); err != nil {
			return "", err
		}
	}
	return compiler.ResultChanged, nil
}

func writeConfig(fs ports.FileSystem, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
