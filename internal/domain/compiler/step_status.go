package compiler

// StepStatus is the outcome of a step's Check.
type StepStatus string

const (
	// StatusSatisfied indicates the step's desired state is already met.
	StatusSatisfied StepStatus = "satisfied"
	// StatusNeedsApply indicates the step needs to be applied.
	StatusNeedsApply StepStatus = "needs-apply"
)

// String returns the string representation of the status.
func (s StepStatus) String() string {
	return string(s)
}

// NeedsAction returns true if the step must be applied.
func (s StepStatus) NeedsAction() bool {
	return s != StatusSatisfied
}

// ApplyResult reports what Apply did when it succeeded.
type ApplyResult string

const (
	// ResultChanged means Apply mutated the host.
	ResultChanged ApplyResult = "changed"
	// ResultUnchanged means the desired state was already in place.
	ResultUnchanged ApplyResult = "unchanged"
)

// String returns the string representation of the result.
func (r ApplyResult) String() string {
	return string(r)
}

// Changed reports whether the host was mutated.
func (r ApplyResult) Changed() bool {
	return r == ResultChanged
}
