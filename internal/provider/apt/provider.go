package apt

import (
	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// Step IDs that other providers depend on.
var (
	RepositoryStepID = compiler.MustNewStepID("apt:repository:kubernetes")
	HoldStepID       = compiler.MustNewStepID("apt:hold:kubernetes")
)

// PackageStepID returns the ID of the install step for a package.
func PackageStepID(name string) compiler.StepID {
	return compiler.MustNewStepID("apt:package:" + name)
}

// Provider compiles the repository, package and hold steps.
type Provider struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
	probe  *probe.Probe
}

// NewProvider creates a new apt Provider.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem) *Provider {
	return &Provider{runner: runner, fs: fs, probe: probe.New(runner, fs)}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "apt"
}

// Compile returns the repository step, one install step per package and
// the hold step for the Kubernetes packages.
func (p *Provider) Compile(ctx compiler.CompileContext) ([]compiler.Step, error) {
	cfg := ctx.Config()
	pkgs, err := Packages(cfg)
	if err != nil {
		return nil, err
	}

	steps := make([]compiler.Step, 0, len(pkgs)+2)
	steps = append(steps, NewRepositoryStep(cfg, p.runner, p.fs))

	for _, pkg := range pkgs {
		var deps []compiler.StepID
		if pkg.Name != "containerd" {
			deps = append(deps, RepositoryStepID)
		}
		step, err := NewPackageStep(pkg, p.runner, p.probe, deps...)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	steps = append(steps, NewHoldStep(KubernetesPackages(cfg.Role), p.runner, p.probe))
	return steps, nil
}

// Ensure Provider implements compiler.Provider.
var _ compiler.Provider = (*Provider)(nil)
