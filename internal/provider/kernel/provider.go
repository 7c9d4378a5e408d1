// Package kernel loads the kernel modules and sets the sysctl parameters a
// Kubernetes node needs, both immediately and persistently across reboots.
package kernel

import (
	"strings"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// Persistent configuration files owned by this provider.
const (
	ModulesLoadFile = "/etc/modules-load.d/k8s.conf"
	SysctlFile      = "/etc/sysctl.d/k8s.conf"
)

// bridgeModule provides the net.bridge.* sysctls.
const bridgeModule = "br_netfilter"

// Provider compiles kernel modules and sysctls into steps.
type Provider struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewProvider creates a new kernel Provider.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem) *Provider {
	return &Provider{runner: runner, fs: fs}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "kernel"
}

// Compile returns one step per module followed by one step per sysctl.
func (p *Provider) Compile(ctx compiler.CompileContext) ([]compiler.Step, error) {
	cfg := ctx.Config()
	pr := probe.New(p.runner, p.fs)
	steps := make([]compiler.Step, 0, len(cfg.KernelModules)+len(cfg.Sysctls))

	hasBridge := false
	for _, m := range cfg.KernelModules {
		step, err := NewModuleStep(m, p.runner, p.fs, pr)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
		if m == bridgeModule {
			hasBridge = true
		}
	}

	for _, s := range cfg.Sysctls {
		var deps []compiler.StepID
		if hasBridge && strings.HasPrefix(s.Key, "net.bridge.") {
			deps = append(deps, ModuleStepID(bridgeModule))
		}
		step, err := NewSysctlStep(s.Key, s.Value, p.runner, p.fs, pr, deps...)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return steps, nil
}

// ModuleStepID returns the ID of the step loading module.
func ModuleStepID(module string) compiler.StepID {
	return compiler.MustNewStepID("kernel:module:" + module)
}

// SysctlStepID returns the ID of the step setting key.
func SysctlStepID(key string) compiler.StepID {
	return compiler.MustNewStepID("kernel:sysctl:" + key)
}

// StepIDs returns the IDs of every step compiled for the configured modules
// and sysctls, for providers that depend on the kernel being prepared.
func StepIDs(ctx compiler.CompileContext) []compiler.StepID {
	cfg := ctx.Config()
	ids := make([]compiler.StepID, 0, len(cfg.KernelModules)+len(cfg.Sysctls))
	for _, m := range cfg.KernelModules {
		ids = append(ids, ModuleStepID(m))
	}
	for _, s := range cfg.Sysctls {
		ids = append(ids, SysctlStepID(s.Key))
	}
	return ids
}

// Ensure Provider implements compiler.Provider.
var _ compiler.Provider = (*Provider)(nil)
