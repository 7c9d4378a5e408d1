// Package compiler defines the step contract and turns providers into a
// validated, ordered step graph.
package compiler

// Compiler orchestrates providers to build a StepGraph for one role.
type Compiler struct {
	providers []Provider
}

// NewCompiler creates a new Compiler.
func NewCompiler() *Compiler {
	return &Compiler{
		providers: make([]Provider, 0),
	}
}

// RegisterProvider adds a provider to the compiler.
// Providers are called in registration order, which is also the declaration
// order used to break ties when sorting.
func (c *Compiler) RegisterProvider(provider Provider) {
	c.providers = append(c.providers, provider)
}

// Providers returns all registered providers.
func (c *Compiler) Providers() []Provider {
	return c.providers
}

// Compile builds and validates the step graph. It returns an error matching
// ErrPlanInvalid if:
// - Duplicate step IDs are detected
// - A step depends on itself
// - Dependencies are missing
// - Cyclic dependencies are detected
func (c *Compiler) Compile(ctx CompileContext) (*StepGraph, error) {
	graph := NewStepGraph()

	for _, provider := range c.providers {
		steps, err := provider.Compile(ctx)
		if err != nil {
			return nil, NewProviderFailedError(provider.Name(), err)
		}

		for _, step := range steps {
			if err := graph.Add(step); err != nil {
				if se, ok := err.(*StepError); ok {
					se.Provider = provider.Name()
				}
				return nil, err
			}
		}
	}

	if err := graph.Validate(); err != nil {
		return nil, err
	}
	if _, err := graph.TopologicalSort(); err != nil {
		return nil, err
	}

	return graph, nil
}
