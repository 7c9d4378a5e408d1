// Package hosts provides the /etc/hosts entry for the node's own name.
package hosts

import (
	"errors"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// Provider compiles the hosts entry step.
type Provider struct {
	fs    ports.FileSystem
	probe *probe.Probe
}

// NewProvider creates a new hosts Provider.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem) *Provider {
	return &Provider{fs: fs, probe: probe.New(runner, fs)}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "hosts"
}

// Compile returns the hosts entry step for the detected host.
func (p *Provider) Compile(ctx compiler.CompileContext) ([]compiler.Step, error) {
	host := ctx.Host()
	if host.Name == "" || host.IP == "" {
		return nil, errors.New("host name and address must be detected before compiling")
	}
	step, err := NewEntryStep(host.Name, host.IP, p.fs, p.probe)
	if err != nil {
		return nil, err
	}
	return []compiler.Step{step}, nil
}

// StepID returns the ID of the entry step for hostname.
func StepID(hostname string) compiler.StepID {
	return compiler.MustNewStepID("hosts:entry:" + hostname)
}

// Ensure Provider implements compiler.Provider.
var _ compiler.Provider = (*Provider)(nil)
