package apt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/commandutil"
	"github.com/felixgeelhaar/nodeprep/internal/provider/versionutil"
	"github.com/felixgeelhaar/nodeprep/internal/validation"
)

// RepositoryStep adds the pkgs.k8s.io repository and its signing key.
type RepositoryStep struct {
	compiler.Meta
	keyURL  string
	sources string
	runner  ports.CommandRunner
	fs      ports.FileSystem
}

// NewRepositoryStep creates a new RepositoryStep.
func NewRepositoryStep(cfg *config.Config, runner ports.CommandRunner, fs ports.FileSystem) *RepositoryStep {
	return &RepositoryStep{
		Meta:    compiler.NewMeta(RepositoryStepID, "Add Kubernetes "+cfg.KubernetesMinor()+" package repository"),
		keyURL:  RepositoryURL(cfg) + "Release.key",
		sources: SourcesLine(cfg) + "\n",
		runner:  runner,
		fs:      fs,
	}
}

func (s *RepositoryStep) observe() (hasKey, hasSources bool, err error) {
	hasKey = s.fs.Exists(KeyringPath)
	data, err := s.fs.ReadFile(SourcesPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return hasKey, false, nil
	case err != nil:
		return false, false, fmt.Errorf("read %s: %w", SourcesPath, err)
	}
	return hasKey, string(data) == s.sources, nil
}

// Check requires the keyring and an exact sources entry.
func (s *RepositoryStep) Check(_ compiler.RunContext) (compiler.StepStatus, error) {
	hasKey, hasSources, err := s.observe()
	if err != nil {
		return "", err
	}
	if hasKey && hasSources {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *RepositoryStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeAdd, "apt-repository", SourcesPath, "", strings.TrimSpace(s.sources)), nil
}

// Apply downloads the key, writes the sources entry and refreshes the
// package index.
func (s *RepositoryStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	hasKey, hasSources, err := s.observe()
	if err != nil {
		return "", err
	}
	if hasKey && hasSources {
		return compiler.ResultUnchanged, nil
	}

	if err := validation.ValidateURL(s.keyURL); err != nil {
		return "", fmt.Errorf("invalid key URL: %w", err)
	}
	if !hasKey {
		if err := s.fs.MkdirAll(filepath.Dir(KeyringPath), 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", filepath.Dir(KeyringPath), err)
		}
		if _, err := commandutil.Run(ctx.Context(), s.runner, "curl", "-fsSL", s.keyURL, "-o", KeyringPath); err != nil {
			return "", err
		}
	}
	if !hasSources {
		if err := s.fs.MkdirAll(filepath.Dir(SourcesPath), 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", filepath.Dir(SourcesPath), err)
		}
		if err := s.fs.WriteFile(SourcesPath, []byte(s.sources), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", SourcesPath, err)
		}
	}
	if _, err := commandutil.Run(ctx.Context(), s.runner, "apt-get", "update"); err != nil {
		return "", err
	}
	return compiler.ResultChanged, nil
}

// PackageStep installs one package at its pinned version.
type PackageStep struct {
	compiler.Meta
	pkg    Package
	runner ports.CommandRunner
	probe  *probe.Probe
}

// NewPackageStep creates a new PackageStep.
func NewPackageStep(pkg Package, runner ports.CommandRunner, p *probe.Probe, deps ...compiler.StepID) (*PackageStep, error) {
	if err := validation.ValidatePackageName(pkg.Name); err != nil {
		return nil, err
	}
	if pkg.Version != "" {
		if err := validation.ValidatePackageVersion(pkg.Version); err != nil {
			return nil, err
		}
	}
	return &PackageStep{
		Meta:   compiler.NewMeta(PackageStepID(pkg.Name), "Install "+pkg.FullName(), deps...),
		pkg:    pkg,
		runner: runner,
		probe:  p,
	}, nil
}

// Check requires the package to be installed at the pinned version.
func (s *PackageStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	version, installed, err := s.probe.PackageVersion(ctx.Context(), s.pkg.Name)
	if err != nil {
		return "", err
	}
	if installed && versionutil.Satisfies(version, s.pkg.Version) {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *PackageStep) Plan(ctx compiler.RunContext) (compiler.Diff, error) {
	desired := s.pkg.Version
	if desired == "" {
		desired = "latest"
	}
	version, installed, err := s.probe.PackageVersion(ctx.Context(), s.pkg.Name)
	if err == nil && installed {
		return compiler.NewDiff(compiler.DiffTypeModify, "package", s.pkg.Name, version, desired), nil
	}
	return compiler.NewDiff(compiler.DiffTypeAdd, "package", s.pkg.Name, "", desired), nil
}

// Apply installs the package. Held packages may be changed so a pin bump
// replaces a held version.
func (s *PackageStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	status, err := s.Check(ctx)
	if err != nil {
		return "", err
	}
	if status == compiler.StatusSatisfied {
		return compiler.ResultUnchanged, nil
	}

	if _, err := commandutil.Run(ctx.Context(), s.runner, "apt-get", "install", "-y",
		"--allow-change-held-packages", "--allow-downgrades", s.pkg.FullName()); err != nil {
		return "", err
	}
	return compiler.ResultChanged, nil
}

// HoldStep pins the Kubernetes packages against upgrades.
type HoldStep struct {
	compiler.Meta
	names  []string
	runner ports.CommandRunner
	probe  *probe.Probe
}

// NewHoldStep creates a new HoldStep that depends on each package's install
// step.
func NewHoldStep(names []string, runner ports.CommandRunner, p *probe.Probe) *HoldStep {
	deps := make([]compiler.StepID, len(names))
	for i, n := range names {
		deps[i] = PackageStepID(n)
	}
	return &HoldStep{
		Meta:   compiler.NewMeta(HoldStepID, "Hold "+strings.Join(names, ", "), deps...),
		names:  append([]string(nil), names...),
		runner: runner,
		probe:  p,
	}
}

func (s *HoldStep) unheld(ctx compiler.RunContext) ([]string, error) {
	var missing []string
	for _, name := range s.names {
		held, err := s.probe.PackageHeld(ctx.Context(), name)
		if err != nil {
			return nil, err
		}
		if !held {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// Check requires every package to be held.
func (s *HoldStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	missing, err := s.unheld(ctx)
	if err != nil {
		return "", err
	}
	if len(missing) == 0 {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *HoldStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeAdd, "hold", strings.Join(s.names, " "), "", "held"), nil
}

// Apply holds the packages that are not held yet.
func (s *HoldStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	missing, err := s.unheld(ctx)
	if err != nil {
		return "", err
	}
	if len(missing) == 0 {
		return compiler.ResultUnchanged, nil
	}
	if _, err := commandutil.Run(ctx.Context(), s.runner, "apt-mark", append([]string{"hold"}, missing...)...); err != nil {
		return "", err
	}
	return compiler.ResultChanged, nil
}
