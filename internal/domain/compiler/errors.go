package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for plan and step failures.
const (
	ErrCodeProviderFailed      = "PROVIDER_FAILED"
	ErrCodeStepDuplicate       = "STEP_DUPLICATE"
	ErrCodeDependencyMissing   = "DEPENDENCY_MISSING"
	ErrCodeDependencySelf      = "DEPENDENCY_SELF"
	ErrCodeCyclicDependency    = "CYCLIC_DEPENDENCY"
	ErrCodeCheckFailed         = "CHECK_FAILED"
	ErrCodeApplyFailed         = "APPLY_FAILED"
	ErrCodeConfigPatchFailed   = "CONFIG_PATCH_FAILED"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodePostconditionFailed = "POSTCONDITION_FAILED"
)

// Sentinels matched with errors.Is against a *StepError's code.
var (
	// ErrPlanInvalid matches duplicate, missing, self and cyclic dependency errors.
	ErrPlanInvalid = errors.New("plan invalid")
	// ErrPostcondition matches a step whose re-check failed after apply.
	ErrPostcondition = errors.New("postcondition failed")
)

// StepError represents a user-friendly error with actionable suggestions.
type StepError struct {
	Code       string // Error code for categorization
	Message    string // User-friendly error message
	Provider   string // Provider that caused the error
	StepID     string // Step ID if applicable
	Suggestion string // Actionable suggestion to fix the error
	Underlying error  // Wrapped error for error chain
}

// Error returns the formatted error message.
func (e *StepError) Error() string {
	var parts []string

	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("provider %q", e.Provider))
	}
	if e.StepID != "" {
		parts = append(parts, fmt.Sprintf("step %q", e.StepID))
	}

	msg := e.Message
	if e.Underlying != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("%s: %s", strings.Join(parts, ", "), msg)
	}
	return msg
}

// Unwrap returns the underlying error for error chain support.
func (e *StepError) Unwrap() error {
	return e.Underlying
}

// Is matches the package sentinels by error code.
func (e *StepError) Is(target error) bool {
	switch target {
	case ErrPlanInvalid:
		switch e.Code {
		case ErrCodeStepDuplicate, ErrCodeDependencyMissing, ErrCodeDependencySelf, ErrCodeCyclicDependency:
			return true
		}
	case ErrPostcondition:
		return e.Code == ErrCodePostconditionFailed
	}
	return false
}

// Format returns a fully formatted error with all details.
func (e *StepError) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Provider != "" {
		fmt.Fprintf(&b, "\n  Provider: %s", e.Provider)
	}
	if e.StepID != "" {
		fmt.Fprintf(&b, "\n  Step: %s", e.StepID)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}
	if e.Underlying != nil {
		fmt.Fprintf(&b, "\n  Cause: %s", e.Underlying.Error())
	}

	return b.String()
}

// NewStepError creates a new StepError with the given code and message.
func NewStepError(code, message string) *StepError {
	return &StepError{
		Code:    code,
		Message: message,
	}
}

// WithStepID returns a copy of the error with the step ID set.
func (e *StepError) WithStepID(stepID string) *StepError {
	n := *e
	n.StepID = stepID
	return &n
}

// WithSuggestion returns a copy of the error with the suggestion set.
func (e *StepError) WithSuggestion(suggestion string) *StepError {
	n := *e
	n.Suggestion = suggestion
	return &n
}

// WithUnderlying returns a copy of the error wrapping err.
func (e *StepError) WithUnderlying(err error) *StepError {
	n := *e
	n.Underlying = err
	return &n
}

// CodeOf returns the code of the first StepError in err's chain, or "".
func CodeOf(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// NewProviderFailedError creates an error for provider compilation failure.
func NewProviderFailedError(provider string, err error) *StepError {
	return &StepError{
		Code:       ErrCodeProviderFailed,
		Message:    "provider failed to compile steps",
		Provider:   provider,
		Suggestion: fmt.Sprintf("Check the %s settings in your configuration.", provider),
		Underlying: err,
	}
}

// NewStepDuplicateError creates an error for a duplicate step ID.
func NewStepDuplicateError(stepID string) *StepError {
	return &StepError{
		Code:       ErrCodeStepDuplicate,
		Message:    "step with this ID already exists in the plan",
		StepID:     stepID,
		Suggestion: "Each step must have a unique ID. Check for repeated kernel modules, sysctl keys or packages.",
	}
}

// NewDependencyMissingError creates an error for a dependency that is not in the plan.
func NewDependencyMissingError(stepID, dependsOn string) *StepError {
	return &StepError{
		Code:       ErrCodeDependencyMissing,
		Message:    fmt.Sprintf("step depends on '%s' which does not exist", dependsOn),
		StepID:     stepID,
		Suggestion: "Ensure the provider that declares the dependency is registered for this role.",
	}
}

// NewDependencySelfError creates an error for a step that depends on itself.
func NewDependencySelfError(stepID string) *StepError {
	return &StepError{
		Code:    ErrCodeDependencySelf,
		Message: "step depends on itself",
		StepID:  stepID,
	}
}

// NewCyclicDependencyError creates an error for cyclic dependencies. cycle
// lists step IDs along the dependency edges, first and last equal.
func NewCyclicDependencyError(cycle []string) *StepError {
	return &StepError{
		Code:       ErrCodeCyclicDependency,
		Message:    fmt.Sprintf("cyclic dependency detected: %s", strings.Join(cycle, " -> ")),
		Suggestion: "Review the step dependencies to break the circular chain.",
	}
}

// NewCheckFailedError creates an error for a check that could not read host state.
func NewCheckFailedError(stepID string, err error) *StepError {
	return &StepError{
		Code:       ErrCodeCheckFailed,
		Message:    "step status check failed",
		StepID:     stepID,
		Suggestion: "The step could not read host state; it will be applied anyway.",
		Underlying: err,
	}
}

// NewApplyFailedError creates an error for step apply failure.
func NewApplyFailedError(stepID string, err error) *StepError {
	return &StepError{
		Code:       ErrCodeApplyFailed,
		Message:    "step failed to apply",
		StepID:     stepID,
		Suggestion: "Fix the cause shown below and re-run; satisfied steps are skipped.",
		Underlying: err,
	}
}

// NewConfigPatchFailedError creates an error for a configuration edit that failed.
func NewConfigPatchFailedError(stepID, path string, err error) *StepError {
	return &StepError{
		Code:       ErrCodeConfigPatchFailed,
		Message:    fmt.Sprintf("failed to patch %s", path),
		StepID:     stepID,
		Suggestion: fmt.Sprintf("Inspect %s; delete it to have the default configuration regenerated.", path),
		Underlying: err,
	}
}

// NewTimeoutError creates an error for a step whose command exceeded its deadline.
func NewTimeoutError(stepID string, err error) *StepError {
	return &StepError{
		Code:       ErrCodeTimeout,
		Message:    "step timed out",
		StepID:     stepID,
		Suggestion: "Raise command_timeout or bootstrap_timeout if the host is slow, then re-run.",
		Underlying: err,
	}
}

// NewPostconditionError creates an error for a step that reported success but
// whose desired state was not observed afterwards.
func NewPostconditionError(stepID string, err error) *StepError {
	return &StepError{
		Code:       ErrCodePostconditionFailed,
		Message:    "desired state not reached after apply",
		StepID:     stepID,
		Suggestion: "The command reported success but the host did not change; investigate manually.",
		Underlying: err,
	}
}
