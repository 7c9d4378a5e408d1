// Package command runs external commands for the provisioning steps.
package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// DefaultTimeout bounds a command when neither the runner nor the context
// sets a timeout.
const DefaultTimeout = 10 * time.Minute

// waitDelay is how long Run waits for output pipes after the process is
// killed.
const waitDelay = 5 * time.Second

// RealRunner executes commands on the host. Each command runs under its own
// deadline; apt and dpkg run non-interactively.
type RealRunner struct {
	timeout time.Duration
	env     []string
}

// Option configures a RealRunner.
type Option func(*RealRunner)

// WithTimeout sets the default per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *RealRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithEnv adds KEY=VALUE pairs to every command's environment.
func WithEnv(env ...string) Option {
	return func(r *RealRunner) {
		r.env = append(r.env, env...)
	}
}

// NewRealRunner creates a new RealRunner.
func NewRealRunner(opts ...Option) *RealRunner {
	r := &RealRunner{
		timeout: DefaultTimeout,
		env:     []string{"DEBIAN_FRONTEND=noninteractive", "LC_ALL=C"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the default per-command timeout.
func (r *RealRunner) Timeout() time.Duration {
	return r.timeout
}

// Run executes a command and returns its output. A non-zero exit is
// reported in the result. An expired deadline returns an error wrapping
// ports.ErrCommandTimeout; a cancelled parent context returns its error.
func (r *RealRunner) Run(ctx context.Context, command string, args ...string) (ports.CommandResult, error) {
	timeout := r.timeout
	if d, ok := ports.CommandTimeoutFromContext(ctx); ok {
		timeout = d
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	call := ports.CommandCall{Command: command, Args: args}
	logger := ports.LoggerOrDiscard(ctx)
	logger.Debug(ctx, "run", ports.F("cmd", call.String()), ports.F("timeout", timeout.String()))

	cmd := exec.CommandContext(runCtx, command, args...)
	cmd.Env = append(os.Environ(), r.env...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := ports.CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return result, fmt.Errorf("%w after %s", ports.ErrCommandTimeout, timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			logger.Debug(ctx, "exit", ports.F("cmd", command), ports.F("code", result.ExitCode),
				ports.F("elapsed", time.Since(start).Round(time.Millisecond).String()))
			return result, nil
		}
		return result, err
	}

	logger.Debug(ctx, "exit", ports.F("cmd", command), ports.F("code", 0),
		ports.F("elapsed", time.Since(start).Round(time.Millisecond).String()))
	return result, nil
}

// Ensure RealRunner implements ports.CommandRunner.
var _ ports.CommandRunner = (*RealRunner)(nil)
