package config

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorization.
const (
	ErrCodeConfigNotFound   = "CONFIG_NOT_FOUND"
	ErrCodeConfigParse      = "CONFIG_PARSE"
	ErrCodeConfigFormat     = "CONFIG_FORMAT"
	ErrCodeRoleInvalid      = "ROLE_INVALID"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeJoinMissing      = "JOIN_CREDENTIAL_MISSING"
	ErrCodeJoinInvalid      = "JOIN_CREDENTIAL_INVALID"
)

// UserError represents a user-friendly error with actionable suggestions.
type UserError struct {
	Code       string // Error code for categorization (e.g., "CONFIG_NOT_FOUND")
	Message    string // User-friendly error message
	Context    string // File path, flag or field the error refers to
	Suggestion string // Actionable suggestion to fix the error
	Underlying error  // Wrapped error for error chain
}

// Error returns the formatted error message.
func (e *UserError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, " (at %s)", e.Context)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain support.
func (e *UserError) Unwrap() error {
	return e.Underlying
}

// Is supports errors.Is() for comparing error codes.
func (e *UserError) Is(target error) bool {
	if t, ok := target.(*UserError); ok {
		return e.Code == t.Code
	}
	return false
}

// Format returns a fully formatted error with all details.
func (e *UserError) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, "\n  Location: %s", e.Context)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}
	if e.Underlying != nil {
		fmt.Fprintf(&b, "\n  Cause: %s", e.Underlying.Error())
	}

	return b.String()
}

// ErrorList accumulates validation errors so they can be reported together.
type ErrorList struct {
	errors []*UserError
}

// Add adds an error to the list.
func (l *ErrorList) Add(err *UserError) {
	if err != nil {
		l.errors = append(l.errors, err)
	}
}

// AddValidation adds a validation error for field.
func (l *ErrorList) AddValidation(field, message, suggestion string) {
	l.Add(&UserError{
		Code:       ErrCodeValidationFailed,
		Message:    fmt.Sprintf("%s: %s", field, message),
		Context:    field,
		Suggestion: suggestion,
	})
}

// Len returns the number of errors.
func (l *ErrorList) Len() int {
	return len(l.errors)
}

// Errors returns a copy of the accumulated errors.
func (l *ErrorList) Errors() []*UserError {
	result := make([]*UserError, len(l.errors))
	copy(result, l.errors)
	return result
}

// Error implements the error interface for ErrorList.
func (l *ErrorList) Error() string {
	if len(l.errors) == 1 {
		return l.errors[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d configuration errors:", len(l.errors))
	for i, err := range l.errors {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, err.Error())
	}
	return b.String()
}

// Format returns every error in its detailed form.
func (l *ErrorList) Format() string {
	parts := make([]string, 0, len(l.errors))
	for _, err := range l.errors {
		parts = append(parts, err.Format())
	}
	return strings.Join(parts, "\n\n")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (l *ErrorList) Unwrap() []error {
	errs := make([]error, len(l.errors))
	for i, err := range l.errors {
		errs[i] = err
	}
	return errs
}

// AsError returns the list as an error, or nil if empty.
func (l *ErrorList) AsError() error {
	if len(l.errors) == 0 {
		return nil
	}
	return l
}

// NewConfigNotFoundError creates an error for a missing config file.
func NewConfigNotFoundError(path string) *UserError {
	return &UserError{
		Code:       ErrCodeConfigNotFound,
		Message:    fmt.Sprintf("configuration file not found: %s", path),
		Context:    path,
		Suggestion: "Check the --config path, or omit it to use defaults and flags.",
	}
}

// NewConfigParseError creates an error for YAML or HCL decoding failures.
func NewConfigParseError(path string, err error) *UserError {
	return &UserError{
		Code:       ErrCodeConfigParse,
		Message:    "failed to parse configuration file",
		Context:    path,
		Suggestion: "Check the file syntax. Keys use snake_case, for example pod_network_cidr.",
		Underlying: err,
	}
}

// NewRoleInvalidError creates an error for an unknown node role.
func NewRoleInvalidError(role string) *UserError {
	return &UserError{
		Code:       ErrCodeRoleInvalid,
		Message:    fmt.Sprintf("unknown role %q", role),
		Suggestion: fmt.Sprintf("Use one of: %s, %s.", RoleControlPlane, RoleWorker),
	}
}

// NewJoinMissingError creates an error for a worker run without credentials.
func NewJoinMissingError() *UserError {
	return &UserError{
		Code:    ErrCodeJoinMissing,
		Message: "worker provisioning requires a join credential",
		Suggestion: "Pass --join \"kubeadm join ...\" or --join-endpoint, --join-token and --join-ca-cert-hash. " +
			"On the control-plane node the command is written to the join file.",
	}
}

// NewJoinInvalidError creates an error for a credential that fails validation.
func NewJoinInvalidError(source string, err error) *UserError {
	return &UserError{
		Code:       ErrCodeJoinInvalid,
		Message:    "join credential is invalid",
		Context:    source,
		Suggestion: "Regenerate it with 'kubeadm token create --print-join-command' on the control-plane node.",
		Underlying: err,
	}
}

// IsUserError checks if err, or any error it wraps, is a UserError with code.
func IsUserError(err error, code string) bool {
	return errors.Is(err, &UserError{Code: code})
}
