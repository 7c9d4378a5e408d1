package kubeadm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/commandutil"
	"github.com/felixgeelhaar/nodeprep/internal/validation"
)

// InitOptions are the kubeadm init parameters.
type InitOptions struct {
	KubernetesVersion string
	AdvertiseAddress  string
	PodNetworkCIDR    string
	// LogPath receives the full command output, success or not.
	LogPath string
	Timeout time.Duration
}

// ErrIncompleteInit means an earlier kubeadm init left control-plane files
// behind without finishing.
var ErrIncompleteInit = errors.New("control plane is partially initialized")

type initState int

const (
	initFresh initState = iota
	initComplete
	initPartial
)

// InitStep runs kubeadm init once. Completion is recorded in a marker file
// after a successful init. A control plane bootstrapped without the marker
// counts as initialized once kubeadm uploaded its cluster configuration.
type InitStep struct {
	compiler.Meta
	opts    InitOptions
	runner  ports.CommandRunner
	fs      ports.FileSystem
	cluster ports.NodeLister
	probe   *probe.Probe
}

// NewInitStep creates a new InitStep.
func NewInitStep(opts InitOptions, runner ports.CommandRunner, fs ports.FileSystem, cluster ports.NodeLister, p *probe.Probe, deps ...compiler.StepID) (*InitStep, error) {
	if net.ParseIP(opts.AdvertiseAddress) == nil {
		return nil, fmt.Errorf("invalid advertise address %q", opts.AdvertiseAddress)
	}
	if _, _, err := net.ParseCIDR(opts.PodNetworkCIDR); err != nil {
		return nil, fmt.Errorf("invalid pod network CIDR %q: %w", opts.PodNetworkCIDR, err)
	}
	if err := validation.ValidatePath(opts.LogPath); err != nil {
		return nil, fmt.Errorf("init log: %w", err)
	}
	return &InitStep{
		Meta:   compiler.NewMeta(InitStepID, "Initialize the control plane with kubeadm init", deps...),
		opts:    opts,
		runner:  runner,
		fs:      fs,
		cluster: cluster,
		probe:   p,
	}, nil
}

// LogPath returns where the init output is captured.
func (s *InitStep) LogPath() string {
	return s.opts.LogPath
}

func (s *InitStep) args() []string {
	return []string{
		"init",
		"--apiserver-advertise-address=" + s.opts.AdvertiseAddress,
		"--pod-network-cidr=" + s.opts.PodNetworkCIDR,
		"--kubernetes-version=v" + s.opts.KubernetesVersion,
	}
}

func (s *InitStep) state(ctx context.Context) initState {
	if s.probe.ClusterInitialized(ctx) {
		return initComplete
	}
	adminConf, manifest := s.probe.ControlPlaneFiles(ctx)
	if !adminConf && !manifest {
		return initFresh
	}
	if adminConf && manifest {
		uploaded, err := s.cluster.ClusterConfigUploaded(ctx)
		if err != nil {
			ports.LoggerOrDiscard(ctx).Debug(ctx, "cluster configuration lookup failed", ports.Err(err))
		}
		if uploaded {
			return initComplete
		}
	}
	return initPartial
}

// Check reports satisfied once the control plane is initialized.
func (s *InitStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	if s.state(ctx.Context()) == initComplete {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *InitStep) Plan(ctx compiler.RunContext) (compiler.Diff, error) {
	if s.state(ctx.Context()) == initPartial {
		return compiler.NewDiff(compiler.DiffTypeModify, "kubeadm", "init", "partially initialized", "reset required"), nil
	}
	return compiler.NewDiff(compiler.DiffTypeRun, "kubeadm", strings.Join(s.args(), " "), "", ""), nil
}

// Apply runs kubeadm init under the bootstrap timeout, writes its output to
// the log path and records completion. Leftovers of an unfinished init are
// reported instead of re-running kubeadm over them.
func (s *InitStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	switch s.state(ctx.Context()) {
	case initComplete:
		if err := s.markComplete(); err != nil {
			return "", err
		}
		return compiler.ResultUnchanged, nil
	case initPartial:
		return "", fmt.Errorf("%w: kubeadm init did not finish (see %s); run \"kubeadm reset --force\" and provision again",
			ErrIncompleteInit, s.opts.LogPath)
	}

	runCtx := ctx.Context()
	if s.opts.Timeout > 0 {
		runCtx = ports.WithCommandTimeout(runCtx, s.opts.Timeout)
	}
	args := s.args()
	result, runErr := commandutil.Run(runCtx, s.runner, "kubeadm", args...)

	if err := s.writeLog(args, result, runErr); err != nil {
		if runErr != nil {
			return "", fmt.Errorf("%w (init log not written: %v)", runErr, err)
		}
		return "", err
	}
	if runErr != nil {
		return "", runErr
	}
	if err := s.markComplete(); err != nil {
		return "", err
	}
	return compiler.ResultChanged, nil
}

// markComplete writes the completion marker unless it already exists.
func (s *InitStep) markComplete() error {
	marker := s.probe.Paths().InitMarker
	if s.fs.Exists(marker) {
		return nil
	}
	if err := s.fs.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(marker), err)
	}
	line := "kubeadm " + strings.Join(s.args(), " ") + "\n"
	if err := s.fs.WriteFile(marker, []byte(line), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", marker, err)
	}
	return nil
}

func (s *InitStep) writeLog(args []string, result ports.CommandResult, runErr error) error {
	var b strings.Builder
	fmt.Fprintf(&b, "$ kubeadm %s\n", strings.Join(args, " "))
	b.WriteString(result.Stdout)
	if result.Stderr != "" {
		b.WriteString(result.Stderr)
	}
	if runErr != nil {
		fmt.Fprintf(&b, "\nerror: %v\n", runErr)
	}

	dir := filepath.Dir(s.opts.LogPath)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := s.fs.WriteFile(s.opts.LogPath, []byte(b.String()), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", s.opts.LogPath, err)
	}
	return nil
}
