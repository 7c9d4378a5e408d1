package kubeadm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/joincred"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/commandutil"
	"github.com/felixgeelhaar/nodeprep/internal/validation"
)

// KubeconfigStep copies the admin kubeconfig to the operator's path.
type KubeconfigStep struct {
	compiler.Meta
	dest string
	fs   ports.FileSystem
}

// NewKubeconfigStep creates a new KubeconfigStep.
func NewKubeconfigStep(dest string, fs ports.FileSystem, deps ...compiler.StepID) (*KubeconfigStep, error) {
	if err := validation.ValidatePath(dest); err != nil {
		return nil, fmt.Errorf("kubeconfig: %w", err)
	}
	return &KubeconfigStep{
		Meta: compiler.NewMeta(KubeconfigStepID, "Copy admin kubeconfig to "+dest, deps...),
		dest: dest,
		fs:   fs,
	}, nil
}

func (s *KubeconfigStep) current() (bool, error) {
	src, err := s.fs.ReadFile(AdminConf)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", AdminConf, err)
	}
	dst, err := s.fs.ReadFile(s.dest)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", s.dest, err)
	}
	return bytes.Equal(src, dst), nil
}

// Check requires the operator kubeconfig to match admin.conf.
func (s *KubeconfigStep) Check(_ compiler.RunContext) (compiler.StepStatus, error) {
	ok, err := s.current()
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *KubeconfigStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeAdd, "file", s.dest, "", AdminConf), nil
}

// Apply copies admin.conf with owner-only permissions.
func (s *KubeconfigStep) Apply(_ compiler.RunContext) (compiler.ApplyResult, error) {
	ok, err := s.current()
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.ResultUnchanged, nil
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.dest), 0o700); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(s.dest), err)
	}
	if err := s.fs.CopyFile(AdminConf, s.dest, 0o600); err != nil {
		return "", fmt.Errorf("copy %s: %w", AdminConf, err)
	}
	return compiler.ResultChanged, nil
}

// NetworkAddonStep applies the pod network manifest.
type NetworkAddonStep struct {
	compiler.Meta
	url    string
	runner ports.CommandRunner
}

// NewNetworkAddonStep creates a new NetworkAddonStep.
func NewNetworkAddonStep(url string, runner ports.CommandRunner, deps ...compiler.StepID) (*NetworkAddonStep, error) {
	if err := validation.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("network addon: %w", err)
	}
	return &NetworkAddonStep{
		Meta:   compiler.NewMeta(NetworkAddonStepID, "Apply pod network addon", deps...),
		url:    url,
		runner: runner,
	}, nil
}

func (s *NetworkAddonStep) kubectl(verb string) []string {
	return []string{"--kubeconfig", AdminConf, verb, "-f", s.url}
}

// present reports whether every object of the manifest exists. Any failure,
// an unreachable API server included, reads as not present.
func (s *NetworkAddonStep) present(ctx context.Context) (bool, error) {
	result, err := s.runner.Run(ctx, "kubectl", s.kubectl("get")...)
	if err != nil {
		return false, fmt.Errorf("kubectl get: %w", err)
	}
	return result.Success(), nil
}

// Check requires the manifest's objects to exist.
func (s *NetworkAddonStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	ok, err := s.present(ctx.Context())
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *NetworkAddonStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeAdd, "manifest", s.url, "", "applied"), nil
}

// Apply runs kubectl apply for the manifest.
func (s *NetworkAddonStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	ok, err := s.present(ctx.Context())
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.ResultUnchanged, nil
	}
	if _, err := commandutil.Run(ctx.Context(), s.runner, "kubectl", s.kubectl("apply")...); err != nil {
		return "", err
	}
	return compiler.ResultChanged, nil
}

// JoinCommandStep writes a join command for workers to the hand-off file.
type JoinCommandStep struct {
	compiler.Meta
	path   string
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewJoinCommandStep creates a new JoinCommandStep.
func NewJoinCommandStep(path string, runner ports.CommandRunner, fs ports.FileSystem, deps ...compiler.StepID) (*JoinCommandStep, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, fmt.Errorf("join file: %w", err)
	}
	return &JoinCommandStep{
		Meta:   compiler.NewMeta(JoinCommandStepID, "Write worker join command to "+path, deps...),
		path:   path,
		runner: runner,
		fs:     fs,
	}, nil
}

// Check requires a valid credential in the hand-off file.
func (s *JoinCommandStep) Check(_ compiler.RunContext) (compiler.StepStatus, error) {
	if !s.fs.Exists(s.path) {
		return compiler.StatusNeedsApply, nil
	}
	if _, err := joincred.ReadFile(s.fs, s.path); err != nil {
		return compiler.StatusNeedsApply, nil
	}
	return compiler.StatusSatisfied, nil
}

// Plan returns the diff for this step.
func (s *JoinCommandStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeAdd, "file", s.path, "", "kubeadm join command"), nil
}

// Apply creates a bootstrap token and writes the validated join command.
func (s *JoinCommandStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	if status, _ := s.Check(ctx); status == compiler.StatusSatisfied {
		return compiler.ResultUnchanged, nil
	}

	result, err := commandutil.Run(ctx.Context(), s.runner, "kubeadm", "token", "create", "--print-join-command")
	if err != nil {
		return "", err
	}
	cred, err := parseJoinOutput(result.Stdout)
	if err != nil {
		return "", err
	}
	if err := joincred.WriteFile(s.fs, s.path, cred); err != nil {
		return "", err
	}
	return compiler.ResultChanged, nil
}

// parseJoinOutput finds the join command among kubeadm's output lines.
func parseJoinOutput(out string) (joincred.Credential, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "kubeadm join ") {
			return joincred.Parse(line)
		}
	}
	return joincred.Credential{}, fmt.Errorf("%w: no join command in kubeadm output", joincred.ErrInvalidCredential)
}

// NodeRegisteredStep waits until this host is listed as a cluster node.
// kubeadm registers the lowercased hostname, so the name is lowercased too.
type NodeRegisteredStep struct {
	compiler.Meta
	name    string
	timeout time.Duration
	nodes   ports.NodeLister
	probe   *probe.Probe
}

// NewNodeRegisteredStep creates a new NodeRegisteredStep.
func NewNodeRegisteredStep(name string, timeout time.Duration, nodes ports.NodeLister, p *probe.Probe, deps ...compiler.StepID) *NodeRegisteredStep {
	return &NodeRegisteredStep{
		Meta:    compiler.NewMeta(NodeRegisteredStepID, "Wait for node "+strings.ToLower(name)+" to register", deps...),
		name:    strings.ToLower(name),
		timeout: timeout,
		nodes:   nodes,
		probe:   p,
	}
}

func (s *NodeRegisteredStep) registered(ctx context.Context) (bool, error) {
	if adminConf, _ := s.probe.ControlPlaneFiles(ctx); !adminConf {
		return false, nil
	}
	names, err := s.nodes.NodeNames(ctx)
	if err != nil {
		return false, fmt.Errorf("list nodes: %w", err)
	}
	return slices.Contains(names, s.name), nil
}

// Check requires the node to be listed by the API server.
func (s *NodeRegisteredStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	ok, err := s.registered(ctx.Context())
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *NodeRegisteredStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeRun, "node", s.name+" registered", "", ""), nil
}

// Apply polls the API server until the node appears or the timeout passes.
// Waiting changes nothing on the host, so the result is always unchanged.
func (s *NodeRegisteredStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	ok, err := s.registered(ctx.Context())
	if err != nil {
		return "", err
	}
	if ok {
		return compiler.ResultUnchanged, nil
	}
	if err := s.nodes.WaitForNode(ctx.Context(), s.name, s.timeout); err != nil {
		return "", err
	}
	return compiler.ResultUnchanged, nil
}
