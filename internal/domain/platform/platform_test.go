package platform_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/nodeprep/internal/domain/platform"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/fakehost"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/mocks"
)

func TestParseOSRelease(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		data   string
		id     string
		debian bool
	}{
		{"ubuntu", "NAME=\"Ubuntu\"\nVERSION_ID=\"22.04\"\nID=ubuntu\nID_LIKE=debian\n", "ubuntu", true},
		{"debian", "ID=debian\nVERSION_ID=\"12\"\n", "debian", true},
		{"mint", "ID=linuxmint\nID_LIKE=\"ubuntu debian\"\n", "linuxmint", true},
		{"fedora", "ID=fedora\nVERSION_ID=40\n", "fedora", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rel, err := platform.ParseOSRelease([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.id, rel.ID)
			assert.Equal(t, tt.debian, rel.DebianFamily())
		})
	}
}

func TestChecker_PassesOnUbuntu(t *testing.T) {
	t.Parallel()

	host := fakehost.New()
	checks, err := platform.NewChecker(host, host).WithGOOS("linux").Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, checks, 3+len(platform.RequiredTools))
	for _, c := range checks {
		assert.True(t, c.Passed, c.Name)
	}
}

func TestChecker_NotLinux(t *testing.T) {
	t.Parallel()

	host := fakehost.New()
	_, err := platform.NewChecker(host, host).WithGOOS("darwin").Run(context.Background())
	assert.ErrorIs(t, err, platform.ErrPreflight)
	assert.Contains(t, err.Error(), "darwin")
}

func TestChecker_Failures(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddResult("id", []string{"-u"}, ports.CommandResult{Stdout: "1000\n"})
	runner.AddHandler("which", func(args []string) (ports.CommandResult, error) {
		if args[0] == "curl" {
			return ports.CommandResult{ExitCode: 1}, nil
		}
		return ports.CommandResult{Stdout: "/usr/bin/" + args[0]}, nil
	})
	fs := mocks.NewFileSystem()
	fs.AddFile("/etc/os-release", "ID=fedora\n")
	fs.AddFile("/proc/version", "Linux version 4.4.0-19041-Microsoft")

	_, err := platform.NewChecker(runner, fs).WithGOOS("linux").Run(context.Background())
	require.Error(t, err)

	var pe *platform.PreflightError
	require.True(t, errors.As(err, &pe))
	names := make([]string, 0, len(pe.Failed))
	for _, c := range pe.Failed {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"root", "os-release", "environment", "tool curl"}, names)
	assert.Contains(t, err.Error(), "uid 1000")
}

func TestDetectEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files map[string]string
		want  platform.Environment
	}{
		{"native", map[string]string{"/proc/version": "Linux version 6.8.0-generic"}, platform.EnvNative},
		{"wsl2", map[string]string{"/proc/version": "Linux version 5.15.0-microsoft-standard-WSL2"}, platform.EnvWSL2},
		{"wsl2 run marker", map[string]string{"/proc/version": "Linux Microsoft", "/run/WSL": ""}, platform.EnvWSL2},
		{"wsl1", map[string]string{"/proc/version": "Linux version 4.4.0-Microsoft"}, platform.EnvWSL1},
		{"docker", map[string]string{"/.dockerenv": ""}, platform.EnvDocker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fs := mocks.NewFileSystem()
			for p, c := range tt.files {
				fs.AddFile(p, c)
			}
			assert.Equal(t, tt.want, platform.NewChecker(mocks.NewCommandRunner(), fs).DetectEnvironment())
		})
	}
}
