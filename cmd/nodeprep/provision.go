package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/nodeprep/internal/app"
	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision this host as a Kubernetes node",
	Long: `Provision reconciles this host into a Kubernetes node.

Each step checks the host first and only changes what is missing:
  hosts entry, swap, kernel modules and sysctls, the Kubernetes apt
  repository and pinned packages, containerd, the kubelet, and finally
  kubeadm init (control-plane) or kubeadm join (worker).

Use --dry-run to see what would change.`,
}

var (
	provisionControlPlaneFlags configFlags
	provisionWorkerFlags       configFlags
)

var provisionControlPlaneCmd = &cobra.Command{
	Use:   "control-plane",
	Short: "Provision a single-node control plane",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runProvision(cmd, config.RoleControlPlane, &provisionControlPlaneFlags)
	},
}

var provisionWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Provision a worker and join it to a cluster",
	Long: `Provision a worker node and join it to an existing cluster.

The join credential is read from --join, from --join-endpoint, --join-token
and --join-ca-cert-hash, from NODEPREP_JOIN, from the config file, or from the
join file a control plane wrote on this host.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runProvision(cmd, config.RoleWorker, &provisionWorkerFlags)
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd)
	provisionCmd.AddCommand(provisionControlPlaneCmd, provisionWorkerCmd)

	provisionControlPlaneFlags.bind(provisionControlPlaneCmd)
	provisionWorkerFlags.bind(provisionWorkerCmd)
	provisionWorkerFlags.bindJoin(provisionWorkerCmd)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runProvision(cmd *cobra.Command, role config.Role, flags *configFlags) error {
	format, err := app.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx = ports.ContextWithLogger(ctx, newLogger(cmd.ErrOrStderr()))

	nodeprep := newApp(cmd.OutOrStdout())
	cfg, err := loadConfig(cmd, nodeprep, role, flags)
	if err != nil {
		return err
	}

	rep, runErr := nodeprep.Provision(ctx, cfg)
	if rep == nil {
		return runErr
	}
	if err := nodeprep.PrintReport(rep, format, isTerminal(cmd.OutOrStdout())); err != nil {
		return err
	}
	if runErr != nil || !rep.Success() {
		return errRunFailed
	}
	return nil
}
