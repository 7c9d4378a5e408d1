// Package systemd enables and starts the kubelet unit.
package systemd

import (
	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/apt"
	"github.com/felixgeelhaar/nodeprep/internal/provider/containerd"
	"github.com/felixgeelhaar/nodeprep/internal/provider/kernel"
)

// KubeletStepID is the ID of the kubelet service step.
var KubeletStepID = ServiceStepID("kubelet")

// ServiceStepID returns the ID of the step for a unit.
func ServiceStepID(unit string) compiler.StepID {
	return compiler.MustNewStepID("systemd:service:" + unit)
}

// Provider compiles the kubelet service step.
type Provider struct {
	runner ports.CommandRunner
	probe  *probe.Probe
}

// NewProvider creates a new systemd Provider.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem) *Provider {
	return &Provider{runner: runner, probe: probe.New(runner, fs)}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "systemd"
}

// Compile returns the kubelet service step. It waits for the held
// packages, the container runtime and every kernel module.
func (p *Provider) Compile(ctx compiler.CompileContext) ([]compiler.Step, error) {
	deps := []compiler.StepID{
		apt.PackageStepID("kubelet"),
		apt.PackageStepID("kubeadm"),
		apt.HoldStepID,
		containerd.RestartStepID,
	}
	for _, module := range ctx.Config().KernelModules {
		deps = append(deps, kernel.ModuleStepID(module))
	}

	step, err := NewServiceStep("kubelet", p.runner, p.probe, deps...)
	if err != nil {
		return nil, err
	}
	return []compiler.Step{step}, nil
}

// Ensure Provider implements compiler.Provider.
var _ compiler.Provider = (*Provider)(nil)
