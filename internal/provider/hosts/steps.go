package hosts

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/validation"
)

// EntryStep ensures /etc/hosts maps the primary IP to the host name.
type EntryStep struct {
	compiler.Meta
	hostname string
	ip       string
	fs       ports.FileSystem
	probe    *probe.Probe
}

// NewEntryStep creates a new EntryStep.
func NewEntryStep(hostname, ip string, fs ports.FileSystem, p *probe.Probe) (*EntryStep, error) {
	if err := validation.ValidateHostname(hostname); err != nil {
		return nil, err
	}
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("invalid IP address %q", ip)
	}
	return &EntryStep{
		Meta:     compiler.NewMeta(StepID(hostname), fmt.Sprintf("Map %s to %s in /etc/hosts", hostname, ip)),
		hostname: hostname,
		ip:       ip,
		fs:       fs,
		probe:    p,
	}, nil
}

// Check looks for a line with the exact address and the host name as a whole
// field.
func (s *EntryStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	lines, _, err := s.probe.FileLines(ctx.Context(), s.probe.Paths().Hosts)
	if err != nil {
		return "", err
	}
	if s.present(lines) {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

func (s *EntryStep) present(lines []string) bool {
	for _, line := range lines {
		entry, ok := probe.ParseHostsLine(line)
		if ok && entry.Address == s.ip && entry.HasName(s.hostname) {
			return true
		}
	}
	return false
}

// Plan returns the diff for this step.
func (s *EntryStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeAdd, "hosts", s.hostname, "", s.ip), nil
}

// Apply appends the entry, keeping the rest of the file as is.
func (s *EntryStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	path := s.probe.Paths().Hosts
	lines, exists, err := s.probe.FileLines(ctx.Context(), path)
	if err != nil {
		return "", err
	}
	if s.present(lines) {
		return compiler.ResultUnchanged, nil
	}

	perm := os.FileMode(0o644)
	if exists {
		if info, err := s.fs.GetFileInfo(path); err == nil {
			perm = info.Mode.Perm()
		}
	}

	lines = append(lines, s.ip+"\t"+s.hostname)
	if err := s.fs.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), perm); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return compiler.ResultChanged, nil
}
