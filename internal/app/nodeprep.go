// Package app provides the main application logic for nodeprep.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/adapters/command"
	"github.com/felixgeelhaar/nodeprep/internal/adapters/filesystem"
	"github.com/felixgeelhaar/nodeprep/internal/adapters/kubeclient"
	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/domain/execution"
	"github.com/felixgeelhaar/nodeprep/internal/domain/joincred"
	"github.com/felixgeelhaar/nodeprep/internal/domain/platform"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/domain/report"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/apt"
	"github.com/felixgeelhaar/nodeprep/internal/provider/containerd"
	"github.com/felixgeelhaar/nodeprep/internal/provider/hosts"
	"github.com/felixgeelhaar/nodeprep/internal/provider/kernel"
	"github.com/felixgeelhaar/nodeprep/internal/provider/kubeadm"
	"github.com/felixgeelhaar/nodeprep/internal/provider/swap"
	"github.com/felixgeelhaar/nodeprep/internal/provider/systemd"
)

// Ports bundles the host and cluster adapters the application drives.
type Ports struct {
	Runner ports.CommandRunner
	FS     ports.FileSystem
	Nodes  ports.NodeLister
}

// Nodeprep is the main application orchestrator.
type Nodeprep struct {
	runner  ports.CommandRunner
	fs      ports.FileSystem
	nodes   ports.NodeLister
	probe   *probe.Probe
	checker *platform.Checker
	planner *execution.Planner
	extra   []compiler.Provider
	out     io.Writer
	now     func() time.Time
}

// New creates a Nodeprep application operating on the local host.
func New(out io.Writer) *Nodeprep {
	return NewWithPorts(out, Ports{
		Runner: command.NewRealRunner(),
		FS:     filesystem.NewRealFileSystem(),
		Nodes:  kubeclient.New(kubeadm.AdminConf),
	})
}

// NewWithPorts creates a Nodeprep application over the given adapters.
func NewWithPorts(out io.Writer, p Ports) *Nodeprep {
	return &Nodeprep{
		runner:  p.Runner,
		fs:      p.FS,
		nodes:   p.Nodes,
		probe:   probe.New(p.Runner, p.FS),
		checker: platform.NewChecker(p.Runner, p.FS),
		planner: execution.NewPlanner(),
		out:     out,
		now:     time.Now,
	}
}

// WithClock sets the clock used for run timing.
func (n *Nodeprep) WithClock(now func() time.Time) *Nodeprep {
	n.now = now
	return n
}

// WithGOOS overrides the operating system the preflight checks see.
func (n *Nodeprep) WithGOOS(goos string) *Nodeprep {
	n.checker = n.checker.WithGOOS(goos)
	return n
}

// WithProvider registers an additional provider after the built-in ones.
func (n *Nodeprep) WithProvider(p compiler.Provider) *Nodeprep {
	n.extra = append(n.extra, p)
	return n
}

// ConfigOptions are the inputs merged into a Config.
type ConfigOptions struct {
	// Path is an optional YAML or HCL config file.
	Path  string
	Env   config.LookupEnv
	Flags config.Overrides
}

// LoadConfig resolves the configuration for role. A worker without an
// explicit credential falls back to the join file on this host.
func (n *Nodeprep) LoadConfig(role config.Role, opts ConfigOptions) (*config.Config, error) {
	var file *config.File
	if opts.Path != "" {
		f, err := config.Load(opts.Path)
		if err != nil {
			return nil, err
		}
		file = f
	}

	return config.Resolve(role, config.Sources{
		File:  file,
		Env:   opts.Env,
		Flags: opts.Flags,
		ReadJoinFile: func(path string) (joincred.Credential, error) {
			return joincred.ReadFile(n.fs, path)
		},
	})
}

// Preflight verifies the host can be provisioned.
func (n *Nodeprep) Preflight(ctx context.Context) ([]platform.Check, error) {
	return n.checker.Run(ctx)
}

// DetectHost returns the hostname and the address the node advertises.
func (n *Nodeprep) DetectHost(ctx context.Context, cfg *config.Config) (compiler.Host, error) {
	name, err := n.probe.Hostname(ctx)
	if err != nil {
		return compiler.Host{}, fmt.Errorf("failed to detect hostname: %w", err)
	}
	ip := cfg.AdvertiseAddress
	if ip == "" {
		if ip, err = n.probe.PrimaryIP(ctx); err != nil {
			return compiler.Host{}, fmt.Errorf("failed to detect primary address: %w", err)
		}
	}
	return compiler.Host{Name: name, IP: ip}, nil
}

func (n *Nodeprep) newCompiler() *compiler.Compiler {
	comp := compiler.NewCompiler()
	comp.RegisterProvider(hosts.NewProvider(n.runner, n.fs))
	comp.RegisterProvider(swap.NewProvider(n.runner, n.fs))
	comp.RegisterProvider(kernel.NewProvider(n.runner, n.fs))
	comp.RegisterProvider(apt.NewProvider(n.runner, n.fs))
	comp.RegisterProvider(containerd.NewProvider(n.runner, n.fs))
	comp.RegisterProvider(systemd.NewProvider(n.runner, n.fs))
	comp.RegisterProvider(kubeadm.NewProvider(n.runner, n.fs, n.nodes))
	for _, p := range n.extra {
		comp.RegisterProvider(p)
	}
	return comp
}

// Compile builds the validated step graph for the configured role.
func (n *Nodeprep) Compile(ctx context.Context, cfg *config.Config) (*compiler.StepGraph, error) {
	host, err := n.DetectHost(ctx, cfg)
	if err != nil {
		return nil, err
	}

	graph, err := n.newCompiler().Compile(compiler.NewCompileContext(cfg).WithHost(host))
	if err != nil {
		return nil, fmt.Errorf("failed to compile: %w", err)
	}
	return graph, nil
}

// Plan checks every step without changing the host.
func (n *Nodeprep) Plan(ctx context.Context, cfg *config.Config) (*execution.Plan, error) {
	ctx = ports.WithCommandTimeout(ctx, cfg.CommandTimeout)

	graph, err := n.Compile(ctx, cfg)
	if err != nil {
		return nil, err
	}

	plan, err := n.planner.Plan(ctx, graph)
	if err != nil {
		return nil, fmt.Errorf("failed to plan: %w", err)
	}
	return plan, nil
}

// Provision runs preflight, compiles the role's steps and executes them.
// The report is returned whenever execution started, together with the first
// failure. Preflight and compile errors return no report.
func (n *Nodeprep) Provision(ctx context.Context, cfg *config.Config) (*report.Report, error) {
	logger := ports.LoggerOrDiscard(ctx).With(ports.F("role", cfg.Role.String()))
	ctx = ports.ContextWithLogger(ctx, logger)
	ctx = ports.WithCommandTimeout(ctx, cfg.CommandTimeout)

	if _, err := n.Preflight(ctx); err != nil {
		return nil, err
	}

	graph, err := n.Compile(ctx, cfg)
	if err != nil {
		return nil, err
	}
	steps, err := graph.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("failed to sort steps: %w", err)
	}

	logger.Info(ctx, "provisioning started",
		ports.F("steps", len(steps)), ports.F("dry_run", cfg.DryRun), ports.F("halt_on_failure", cfg.HaltOnFailure))

	executor := execution.NewExecutor().
		WithDryRun(cfg.DryRun).
		WithHaltOnFailure(cfg.HaltOnFailure).
		WithClock(n.now)

	started := n.now()
	results, runErr := executor.Execute(ctx, execution.NewPlanFromSteps(steps))
	rep := report.New(cfg.Role.String(), started, n.now().Sub(started), results).
		WithDryRun(cfg.DryRun).
		WithCancelled(ctx.Err() != nil)

	fields := []ports.Field{
		ports.F("run_id", rep.RunID),
		ports.F("applied", rep.Count(execution.StatusApplied)),
		ports.F("skipped", rep.Count(execution.StatusSkipped)),
		ports.F("failed", rep.Count(execution.StatusFailed)),
		ports.F("elapsed", rep.Elapsed.Round(time.Millisecond).String()),
	}
	if runErr != nil {
		logger.Error(ctx, "provisioning failed", append(fields, ports.Err(runErr))...)
		return rep, runErr
	}
	logger.Info(ctx, "provisioning finished", fields...)
	return rep, nil
}

// Facts observes the host state the role's steps depend on.
func (n *Nodeprep) Facts(ctx context.Context, cfg *config.Config) probe.Facts {
	q := probe.Query{
		Modules:  append([]string(nil), cfg.KernelModules...),
		Services: []string{"containerd", "kubelet"},
	}
	for _, s := range cfg.Sysctls {
		q.Sysctls = append(q.Sysctls, s.Key)
	}
	q.Packages = append([]string{"containerd"}, apt.KubernetesPackages(cfg.Role)...)
	return n.probe.Snapshot(ctx, q)
}
