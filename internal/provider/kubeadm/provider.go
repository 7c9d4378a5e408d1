// Package kubeadm bootstraps the cluster: image pre-pull, control-plane
// init, operator kubeconfig, the pod network addon and the join hand-off on
// a control plane, and kubeadm join on a worker.
package kubeadm

import (
	"errors"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/apt"
	"github.com/felixgeelhaar/nodeprep/internal/provider/containerd"
	"github.com/felixgeelhaar/nodeprep/internal/provider/hosts"
	"github.com/felixgeelhaar/nodeprep/internal/provider/kernel"
	"github.com/felixgeelhaar/nodeprep/internal/provider/swap"
	"github.com/felixgeelhaar/nodeprep/internal/provider/systemd"
)

// AdminConf is the cluster-admin kubeconfig kubeadm init writes.
const AdminConf = "/etc/kubernetes/admin.conf"

// Step IDs.
var (
	ImagesStepID         = compiler.MustNewStepID("kubeadm:images:pull")
	InitStepID           = compiler.MustNewStepID("kubeadm:init:cluster")
	KubeconfigStepID     = compiler.MustNewStepID("kubeadm:kubeconfig:admin")
	NetworkAddonStepID   = compiler.MustNewStepID("kubeadm:addon:network")
	JoinCommandStepID    = compiler.MustNewStepID("kubeadm:token:join-command")
	NodeRegisteredStepID = compiler.MustNewStepID("kubeadm:node:registered")
	JoinStepID           = compiler.MustNewStepID("kubeadm:join:cluster")
)

// Provider compiles the bootstrap steps for the configured role.
type Provider struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
	nodes  ports.NodeLister
	probe  *probe.Probe
}

// NewProvider creates a new kubeadm Provider. nodes is only used by the
// control-plane init and registration checks.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem, nodes ports.NodeLister) *Provider {
	return &Provider{runner: runner, fs: fs, nodes: nodes, probe: probe.New(runner, fs)}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "kubeadm"
}

// Compile returns the control-plane or worker bootstrap steps.
func (p *Provider) Compile(ctx compiler.CompileContext) ([]compiler.Step, error) {
	host := ctx.Host()
	if host.Name == "" || host.IP == "" {
		return nil, errors.New("host name and address must be detected before compiling")
	}
	if ctx.Role().IsControlPlane() {
		return p.controlPlane(ctx, host)
	}
	return p.worker(ctx, host)
}

// nodeReady lists the host preparation every bootstrap waits for.
func nodeReady(ctx compiler.CompileContext, host compiler.Host) []compiler.StepID {
	deps := []compiler.StepID{
		systemd.KubeletStepID,
		containerd.RestartStepID,
		swap.StepID,
		hosts.StepID(host.Name),
	}
	return append(deps, kernel.StepIDs(ctx)...)
}

func (p *Provider) controlPlane(ctx compiler.CompileContext, host compiler.Host) ([]compiler.Step, error) {
	cfg := ctx.Config()

	images := NewImagesStep(cfg.KubernetesVersion, p.runner,
		containerd.RestartStepID, apt.PackageStepID("kubeadm"))

	initStep, err := NewInitStep(InitOptions{
		KubernetesVersion: cfg.KubernetesVersion,
		AdvertiseAddress:  host.IP,
		PodNetworkCIDR:    cfg.PodNetworkCIDR,
		LogPath:           cfg.InitLogPath,
		Timeout:           cfg.BootstrapTimeout,
	}, p.runner, p.fs, p.nodes, p.probe, append(nodeReady(ctx, host), ImagesStepID)...)
	if err != nil {
		return nil, err
	}

	kubeconfig, err := NewKubeconfigStep(cfg.KubeconfigPath, p.fs, InitStepID)
	if err != nil {
		return nil, err
	}

	addon, err := NewNetworkAddonStep(cfg.NetworkAddonURL, p.runner, InitStepID, apt.PackageStepID("kubectl"))
	if err != nil {
		return nil, err
	}

	joinCommand, err := NewJoinCommandStep(cfg.JoinFile, p.runner, p.fs, InitStepID)
	if err != nil {
		return nil, err
	}

	return []compiler.Step{
		images,
		initStep,
		kubeconfig,
		addon,
		joinCommand,
		NewNodeRegisteredStep(host.Name, cfg.CommandTimeout, p.nodes, p.probe, InitStepID),
	}, nil
}

func (p *Provider) worker(ctx compiler.CompileContext, host compiler.Host) ([]compiler.Step, error) {
	cfg := ctx.Config()
	if cfg.Join == nil {
		return nil, config.NewJoinMissingError()
	}
	step, err := NewJoinStep(*cfg.Join, cfg.BootstrapTimeout, p.runner, p.probe, nodeReady(ctx, host)...)
	if err != nil {
		return nil, err
	}
	return []compiler.Step{step}, nil
}

// Ensure Provider implements compiler.Provider.
var _ compiler.Provider = (*Provider)(nil)
