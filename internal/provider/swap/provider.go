// Package swap disables swap now and on future boots, as the kubelet
// requires.
package swap

import (
	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// StepID is the ID of the swap step.
var StepID = compiler.MustNewStepID("swap:disable:all")

// Provider compiles the swap step.
type Provider struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewProvider creates a new swap Provider.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem) *Provider {
	return &Provider{runner: runner, fs: fs}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "swap"
}

// Compile returns the swap step. Both roles need it.
func (p *Provider) Compile(_ compiler.CompileContext) ([]compiler.Step, error) {
	return []compiler.Step{NewDisableStep(p.runner, p.fs, probe.New(p.runner, p.fs))}, nil
}

// Ensure Provider implements compiler.Provider.
var _ compiler.Provider = (*Provider)(nil)
