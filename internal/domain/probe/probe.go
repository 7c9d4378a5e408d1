// Package probe reads current host state. Every call observes the host anew;
// nothing is cached between calls.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// systemdTimestampLayout is the format of systemctl show timestamps.
const systemdTimestampLayout = "Mon 2006-01-02 15:04:05 MST"

// Paths are the host files the probe reads.
type Paths struct {
	Swaps             string
	Modules           string
	SysctlRoot        string
	Fstab             string
	Hosts             string
	KubeletConf       string
	AdminConf         string
	APIServerManifest string
	// InitMarker is written once kubeadm init has finished.
	InitMarker string
}

// DefaultPaths returns the standard Linux locations.
func DefaultPaths() Paths {
	return Paths{
		Swaps:             "/proc/swaps",
		Modules:           "/proc/modules",
		SysctlRoot:        "/proc/sys",
		Fstab:             "/etc/fstab",
		Hosts:             "/etc/hosts",
		KubeletConf:       "/etc/kubernetes/kubelet.conf",
		AdminConf:         "/etc/kubernetes/admin.conf",
		APIServerManifest: "/etc/kubernetes/manifests/kube-apiserver.yaml",
		InitMarker:        "/etc/kubernetes/nodeprep/init-complete",
	}
}

// Probe inspects the host through the command runner and filesystem ports.
type Probe struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
	paths  Paths
	now    func() time.Time
}

// Option configures a Probe.
type Option func(*Probe)

// WithPaths overrides the host file locations.
func WithPaths(p Paths) Option {
	return func(pr *Probe) {
		pr.paths = p
	}
}

// WithClock sets the clock used for fact timestamps.
func WithClock(now func() time.Time) Option {
	return func(pr *Probe) {
		pr.now = now
	}
}

// New creates a Probe.
func New(runner ports.CommandRunner, fs ports.FileSystem, opts ...Option) *Probe {
	p := &Probe{
		runner: runner,
		fs:     fs,
		paths:  DefaultPaths(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Paths returns the file locations in use.
func (p *Probe) Paths() Paths {
	return p.paths
}

// ActiveSwap returns the swap devices listed in /proc/swaps.
func (p *Probe) ActiveSwap(_ context.Context) ([]string, error) {
	data, err := p.fs.ReadFile(p.paths.Swaps)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.paths.Swaps, err)
	}

	var devices []string
	for i, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		// First line is the "Filename Type Size Used Priority" header.
		if i == 0 || len(fields) == 0 {
			continue
		}
		devices = append(devices, fields[0])
	}
	return devices, nil
}

// ModuleLoaded reports whether a kernel module appears in /proc/modules.
func (p *Probe) ModuleLoaded(_ context.Context, name string) (bool, error) {
	data, err := p.fs.ReadFile(p.paths.Modules)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", p.paths.Modules, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == name {
			return true, nil
		}
	}
	return false, nil
}

// Sysctl returns the live value of a kernel parameter.
// A parameter that does not exist yet (its module is not loaded) is an error
// wrapping os.ErrNotExist.
func (p *Probe) Sysctl(_ context.Context, key string) (string, error) {
	file := SysctlPath(p.paths.SysctlRoot, key)
	data, err := p.fs.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	return strings.Join(strings.Fields(string(data)), " "), nil
}

// SysctlPath maps a dotted key to its file under root.
func SysctlPath(root, key string) string {
	return path.Join(root, strings.ReplaceAll(key, ".", "/"))
}

// PackageVersion returns the installed version of a package. installed is
// false when dpkg does not know the package or it is not fully installed.
func (p *Probe) PackageVersion(ctx context.Context, name string) (version string, installed bool, err error) {
	result, err := p.runner.Run(ctx, "dpkg-query", "-W", "-f=${Version}\t${db:Status-Status}", name)
	if err != nil {
		return "", false, fmt.Errorf("dpkg-query %s: %w", name, err)
	}
	if !result.Success() {
		return "", false, nil
	}

	parts := strings.SplitN(strings.TrimSpace(result.Stdout), "\t", 2)
	if len(parts) != 2 || parts[1] != "installed" {
		return "", false, nil
	}
	return parts[0], true, nil
}

// PackageHeld reports whether apt-mark lists the package as held.
func (p *Probe) PackageHeld(ctx context.Context, name string) (bool, error) {
	result, err := p.runner.Run(ctx, "apt-mark", "showhold")
	if err != nil {
		return false, fmt.Errorf("apt-mark showhold: %w", err)
	}
	if !result.Success() {
		return false, fmt.Errorf("apt-mark showhold: %s", result.Output())
	}
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// ServiceActive reports whether systemd considers the unit active.
func (p *Probe) ServiceActive(ctx context.Context, name string) (bool, error) {
	return p.systemctlIs(ctx, "is-active", name)
}

// ServiceEnabled reports whether the unit is enabled at boot.
func (p *Probe) ServiceEnabled(ctx context.Context, name string) (bool, error) {
	return p.systemctlIs(ctx, "is-enabled", name)
}

// ServiceState returns the unit's active state as "systemctl is-active"
// prints it: active, activating, inactive, failed and so on.
func (p *Probe) ServiceState(ctx context.Context, name string) (string, error) {
	result, err := p.runner.Run(ctx, "systemctl", "is-active", name)
	if err != nil {
		return "", fmt.Errorf("systemctl is-active %s: %w", name, err)
	}
	state := strings.TrimSpace(result.Stdout)
	if state == "" {
		state = "unknown"
	}
	return state, nil
}

func (p *Probe) systemctlIs(ctx context.Context, verb, name string) (bool, error) {
	result, err := p.runner.Run(ctx, "systemctl", verb, name)
	if err != nil {
		return false, fmt.Errorf("systemctl %s %s: %w", verb, name, err)
	}
	// Non-zero exit is the answer "no", not a failure.
	return result.Success(), nil
}

// ServiceStartedAt returns when the unit last entered the active state, or the
// zero time if it never did.
func (p *Probe) ServiceStartedAt(ctx context.Context, name string) (time.Time, error) {
	result, err := p.runner.Run(ctx, "systemctl", "show", name, "--property=ActiveEnterTimestamp", "--value")
	if err != nil {
		return time.Time{}, fmt.Errorf("systemctl show %s: %w", name, err)
	}
	if !result.Success() {
		return time.Time{}, fmt.Errorf("systemctl show %s: %s", name, result.Output())
	}

	value := strings.TrimSpace(result.Stdout)
	if value == "" || value == "n/a" {
		return time.Time{}, nil
	}
	t, err := time.Parse(systemdTimestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start time of %s: %w", name, err)
	}
	return t, nil
}

// FileLines returns the lines of a file. A missing file is reported through
// exists=false, not as an error.
func (p *Probe) FileLines(_ context.Context, file string) (lines []string, exists bool, err error) {
	data, err := p.fs.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", file, err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, true, nil
	}
	return strings.Split(text, "\n"), true, nil
}

// FileModTime returns the last modification time of a file.
func (p *Probe) FileModTime(_ context.Context, file string) (time.Time, error) {
	info, err := p.fs.GetFileInfo(file)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", file, err)
	}
	return info.ModTime, nil
}

// KubeletJoined reports whether the kubelet holds cluster credentials.
func (p *Probe) KubeletJoined(_ context.Context) bool {
	return p.fs.Exists(p.paths.KubeletConf)
}

// ControlPlaneFiles reports which of the files kubeadm init writes in its
// first phases are present. Both exist after an init that failed later on.
func (p *Probe) ControlPlaneFiles(_ context.Context) (adminConf, apiServerManifest bool) {
	return p.fs.Exists(p.paths.AdminConf), p.fs.Exists(p.paths.APIServerManifest)
}

// ClusterInitialized reports whether kubeadm init completed here: the
// control-plane files exist and the completion marker was recorded.
func (p *Probe) ClusterInitialized(ctx context.Context) bool {
	adminConf, manifest := p.ControlPlaneFiles(ctx)
	return adminConf && manifest && p.fs.Exists(p.paths.InitMarker)
}

// PrimaryIP returns the first address reported by "hostname -I".
func (p *Probe) PrimaryIP(ctx context.Context) (string, error) {
	result, err := p.runner.Run(ctx, "hostname", "-I")
	if err != nil {
		return "", fmt.Errorf("hostname -I: %w", err)
	}
	fields := strings.Fields(result.Stdout)
	if !result.Success() || len(fields) == 0 {
		return "", errors.New("no primary IP address detected")
	}
	return fields[0], nil
}

// Hostname returns the host's name.
func (p *Probe) Hostname(ctx context.Context) (string, error) {
	result, err := p.runner.Run(ctx, "hostname")
	if err != nil {
		return "", fmt.Errorf("hostname: %w", err)
	}
	name := strings.TrimSpace(result.Stdout)
	if !result.Success() || name == "" {
		return "", errors.New("hostname is empty")
	}
	return name, nil
}
