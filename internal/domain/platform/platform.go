// Package platform verifies that the host can be provisioned before any step
// runs: Linux, root, a Debian-family OS with the required tools, and not a
// WSL 1 kernel.
package platform

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// ErrPreflight matches every PreflightError.
var ErrPreflight = errors.New("preflight check failed")

// Environment represents the execution environment.
type Environment string

const (
	// EnvNative is a native Linux host or VM.
	EnvNative Environment = "native"
	// EnvWSL1 is Windows Subsystem for Linux version 1.
	EnvWSL1 Environment = "wsl1"
	// EnvWSL2 is Windows Subsystem for Linux version 2.
	EnvWSL2 Environment = "wsl2"
	// EnvDocker is running inside a Docker container.
	EnvDocker Environment = "docker"
)

// RequiredTools must be on PATH before provisioning starts. Tools installed by
// the plan itself (kubeadm, kubectl, containerd) are not listed.
var RequiredTools = []string{"apt-get", "apt-mark", "dpkg-query", "systemctl", "modprobe", "sysctl", "swapoff", "curl", "hostname"}

// OSRelease is the subset of /etc/os-release the checks use.
type OSRelease struct {
	ID        string
	IDLike    string
	VersionID string
	Name      string
}

// ParseOSRelease parses os-release key=value content.
func ParseOSRelease(data []byte) (OSRelease, error) {
	f, err := ini.Load(data)
	if err != nil {
		return OSRelease{}, fmt.Errorf("parse os-release: %w", err)
	}
	sec := f.Section(ini.DefaultSection)
	return OSRelease{
		ID:        sec.Key("ID").String(),
		IDLike:    sec.Key("ID_LIKE").String(),
		VersionID: sec.Key("VERSION_ID").String(),
		Name:      sec.Key("NAME").String(),
	}, nil
}

// DebianFamily reports whether apt-based provisioning applies.
func (r OSRelease) DebianFamily() bool {
	if r.ID == "debian" || r.ID == "ubuntu" {
		return true
	}
	for _, like := range strings.Fields(r.IDLike) {
		if like == "debian" || like == "ubuntu" {
			return true
		}
	}
	return false
}

// Check is the outcome of one preflight check.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// PreflightError lists the failed checks.
type PreflightError struct {
	Failed []Check
}

// Error returns the failed checks on one line.
func (e *PreflightError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, c := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Name, c.Detail))
	}
	return "preflight failed: " + strings.Join(parts, "; ")
}

// Is matches ErrPreflight.
func (e *PreflightError) Is(target error) bool {
	return target == ErrPreflight
}

// Checker runs the preflight checks.
type Checker struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
	goos   string
}

// NewChecker creates a Checker for the current operating system.
func NewChecker(runner ports.CommandRunner, fs ports.FileSystem) *Checker {
	return &Checker{runner: runner, fs: fs, goos: runtime.GOOS}
}

// WithGOOS overrides the detected operating system.
func (c *Checker) WithGOOS(goos string) *Checker {
	n := *c
	n.goos = goos
	return &n
}

// Run executes every check and returns them all. The error is a
// *PreflightError when any check failed.
func (c *Checker) Run(ctx context.Context) ([]Check, error) {
	if c.goos != "linux" {
		checks := []Check{{Name: "os", Detail: fmt.Sprintf("unsupported operating system %q, Linux required", c.goos)}}
		return checks, &PreflightError{Failed: checks}
	}

	checks := []Check{
		c.checkRoot(ctx),
		c.checkRelease(),
		c.checkEnvironment(),
	}
	for _, tool := range RequiredTools {
		checks = append(checks, c.checkTool(ctx, tool))
	}

	var failed []Check
	for _, chk := range checks {
		if !chk.Passed {
			failed = append(failed, chk)
		}
	}
	if len(failed) > 0 {
		return checks, &PreflightError{Failed: failed}
	}
	return checks, nil
}

func (c *Checker) checkRoot(ctx context.Context) Check {
	chk := Check{Name: "root"}
	result, err := c.runner.Run(ctx, "id", "-u")
	switch {
	case err != nil:
		chk.Detail = err.Error()
	case strings.TrimSpace(result.Stdout) != "0":
		chk.Detail = "must run as root (uid 0), got uid " + strings.TrimSpace(result.Stdout)
	default:
		chk.Passed = true
	}
	return chk
}

func (c *Checker) checkRelease() Check {
	chk := Check{Name: "os-release"}
	data, err := c.fs.ReadFile("/etc/os-release")
	if err != nil {
		chk.Detail = err.Error()
		return chk
	}
	rel, err := ParseOSRelease(data)
	if err != nil {
		chk.Detail = err.Error()
		return chk
	}
	if !rel.DebianFamily() {
		chk.Detail = fmt.Sprintf("unsupported distribution %q, apt-based Ubuntu or Debian required", rel.ID)
		return chk
	}
	chk.Passed = true
	chk.Detail = strings.TrimSpace(rel.Name + " " + rel.VersionID)
	return chk
}

func (c *Checker) checkEnvironment() Check {
	env := c.DetectEnvironment()
	chk := Check{Name: "environment", Passed: env != EnvWSL1, Detail: string(env)}
	if env == EnvWSL1 {
		chk.Detail = "WSL 1 has no Linux kernel; kernel modules and sysctls cannot be configured"
	}
	return chk
}

func (c *Checker) checkTool(ctx context.Context, tool string) Check {
	chk := Check{Name: "tool " + tool}
	result, err := c.runner.Run(ctx, "which", tool)
	if err != nil || !result.Success() {
		chk.Detail = tool + " not found on PATH"
		return chk
	}
	chk.Passed = true
	chk.Detail = strings.TrimSpace(result.Stdout)
	return chk
}

// DetectEnvironment classifies the host as native, WSL or a container.
func (c *Checker) DetectEnvironment() Environment {
	if data, err := c.fs.ReadFile("/proc/version"); err == nil {
		version := strings.ToLower(string(data))
		if strings.Contains(version, "microsoft") || strings.Contains(version, "wsl") {
			// WSL 2 uses a real Linux kernel and has /run/WSL.
			if c.fs.Exists("/run/WSL") || strings.Contains(version, "wsl2") {
				return EnvWSL2
			}
			return EnvWSL1
		}
	}
	if c.fs.Exists("/.dockerenv") {
		return EnvDocker
	}
	return EnvNative
}
