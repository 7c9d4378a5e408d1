package compiler

// Step is one declarative unit of desired host state. Each step owns exactly
// one category of mutation so failures are attributable.
type Step interface {
	// ID returns the unique identifier for this step.
	ID() StepID

	// Description is a one-line human summary of the desired state.
	Description() string

	// DependsOn returns the IDs of steps that must complete before this one.
	DependsOn() []StepID

	// Check reads fresh host state and reports whether the step is satisfied.
	// It never mutates the host.
	Check(ctx RunContext) (StepStatus, error)

	// Plan returns the diff describing what Apply would change.
	Plan(ctx RunContext) (Diff, error)

	// Apply performs the minimal mutation to reach the desired state. It
	// tolerates an already-applied host and then returns ResultUnchanged, so
	// two calls in a row yield ResultChanged then ResultUnchanged. A non-nil
	// error means the step failed.
	Apply(ctx RunContext) (ApplyResult, error)
}

// LogPathStep is implemented by steps that capture command output to a
// durable file. The path is reported with failures.
type LogPathStep interface {
	LogPath() string
}

// Meta holds the identity shared by every step. Providers embed it.
type Meta struct {
	id          StepID
	description string
	deps        []StepID
}

// NewMeta creates step identity metadata.
func NewMeta(id StepID, description string, deps ...StepID) Meta {
	d := make([]StepID, len(deps))
	copy(d, deps)
	return Meta{id: id, description: description, deps: d}
}

// ID returns the step identifier.
func (m Meta) ID() StepID {
	return m.id
}

// Description returns the step summary.
func (m Meta) Description() string {
	return m.description
}

// DependsOn returns a copy of the dependency list.
func (m Meta) DependsOn() []StepID {
	d := make([]StepID, len(m.deps))
	copy(d, m.deps)
	return d
}
