package compiler

import "github.com/felixgeelhaar/nodeprep/internal/domain/config"

// Provider compiles one area of host configuration into steps.
// Each provider handles a specific kind of resource (swap, kernel, apt, ...).
type Provider interface {
	// Name returns the provider's identifier (e.g., "kernel", "apt").
	Name() string

	// Compile returns the provider's steps for the configured role, in
	// declaration order. Cross-provider dependencies are expressed through
	// Step.DependsOn().
	Compile(ctx CompileContext) ([]Step, error)
}

// Host identifies the machine being provisioned.
type Host struct {
	Name string
	IP   string
}

// CompileContext provides the resolved configuration to providers.
type CompileContext struct {
	config *config.Config
	host   Host
}

// NewCompileContext creates a new CompileContext for cfg.
func NewCompileContext(cfg *config.Config) CompileContext {
	return CompileContext{config: cfg}
}

// Config returns the resolved configuration.
func (c CompileContext) Config() *config.Config {
	return c.config
}

// Role returns the node role being planned.
func (c CompileContext) Role() config.Role {
	if c.config == nil {
		return ""
	}
	return c.config.Role
}

// WithHost returns a copy of the context describing host.
func (c CompileContext) WithHost(host Host) CompileContext {
	c.host = host
	return c
}

// Host returns the machine identity detected before compilation.
func (c CompileContext) Host() Host {
	return c.host
}
