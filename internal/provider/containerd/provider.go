// Package containerd configures the container runtime for the kubelet: a
// complete default config, the systemd cgroup driver and a restart that
// picks the config up.
package containerd

import (
	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/apt"
)

// ConfigPath is the containerd configuration file.
const ConfigPath = "/etc/containerd/config.toml"

// Step IDs that other providers depend on.
var (
	ConfigStepID  = compiler.MustNewStepID("containerd:config:default")
	PatchStepID   = compiler.MustNewStepID("containerd:config:systemd-cgroup")
	RestartStepID = compiler.MustNewStepID("containerd:service:restart")
)

// Provider compiles the containerd steps.
type Provider struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
	probe  *probe.Probe
}

// NewProvider creates a new containerd Provider.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem) *Provider {
	return &Provider{runner: runner, fs: fs, probe: probe.New(runner, fs)}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "containerd"
}

// Compile returns the config, patch and restart steps in that order.
func (p *Provider) Compile(_ compiler.CompileContext) ([]compiler.Step, error) {
	return []compiler.Step{
		NewConfigStep(p.runner, p.fs, apt.PackageStepID("containerd")),
		NewPatchStep(p.fs, ConfigStepID),
		NewRestartStep(p.runner, p.probe, PatchStepID),
	}, nil
}

// Ensure Provider implements compiler.Provider.
var _ compiler.Provider = (*Provider)(nil)
