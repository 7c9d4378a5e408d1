// Package ports defines the boundaries between the provisioning domain and the host.
package ports

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCommandTimeout is returned when a command exceeds its deadline.
var ErrCommandTimeout = errors.New("command timed out")

// CommandResult represents the result of executing an external command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success returns true if the command exited with code 0.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// Output returns stderr when present, stdout otherwise, trimmed.
// Used for failure details.
func (r CommandResult) Output() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// CommandCall records a command invocation.
type CommandCall struct {
	Command string
	Args    []string
}

// String renders the call as a shell-like command line.
func (c CommandCall) String() string {
	if len(c.Args) == 0 {
		return c.Command
	}
	return c.Command + " " + strings.Join(c.Args, " ")
}

// CommandRunner executes external commands.
// A non-zero exit code is reported through CommandResult, not as an error;
// errors are reserved for commands that could not run or timed out.
type CommandRunner interface {
	Run(ctx context.Context, command string, args ...string) (CommandResult, error)
}

type commandTimeoutKey struct{}

// WithCommandTimeout returns a context that asks the command runner to use d
// instead of its default per-command timeout.
func WithCommandTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, commandTimeoutKey{}, d)
}

// CommandTimeoutFromContext returns the timeout set by WithCommandTimeout.
func CommandTimeoutFromContext(ctx context.Context) (time.Duration, bool) {
	d, ok := ctx.Value(commandTimeoutKey{}).(time.Duration)
	return d, ok && d > 0
}
