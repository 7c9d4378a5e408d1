package commandutil

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/mocks"
)

func TestIsCommandNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"exec ErrNotFound", exec.ErrNotFound, true},
		{"exec error wrapper", &exec.Error{Err: exec.ErrNotFound}, true},
		{"path error", &os.PathError{Err: os.ErrNotExist}, true},
		{"exit 127", &ExitError{Command: "kubeadm", ExitCode: 127}, true},
		{"exit 1", &ExitError{Command: "kubeadm", ExitCode: 1}, false},
		{"other error", errors.New("nope"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsCommandNotFound(tt.err))
		})
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddResult("modprobe", []string{"overlay"}, ports.CommandResult{})
	runner.AddResult("modprobe", []string{"nope"}, ports.CommandResult{ExitCode: 1, Stderr: "modprobe: FATAL: Module nope not found.\n"})
	runner.AddError("sysctl", []string{"-w", "a.b=1"}, ports.ErrCommandTimeout)

	_, err := Run(context.Background(), runner, "modprobe", "overlay")
	require.NoError(t, err)

	_, err = Run(context.Background(), runner, "modprobe", "nope")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode)
	assert.Equal(t, "modprobe nope exited with status 1: modprobe: FATAL: Module nope not found.", err.Error())

	_, err = Run(context.Background(), runner, "sysctl", "-w", "a.b=1")
	assert.ErrorIs(t, err, ports.ErrCommandTimeout)
	assert.Contains(t, err.Error(), "sysctl -w a.b=1")
}
