package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/nodeprep/internal/app"
	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

var planFlags configFlags

var planCmd = &cobra.Command{
	Use:   "plan <control-plane|worker>",
	Short: "Show what provisioning would change",
	Long: `Plan checks every step for the given role and prints the steps that
would change the host. Nothing is modified.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(config.RoleControlPlane), string(config.RoleWorker)},
	RunE:      runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planFlags.bind(planCmd)
	planFlags.bindJoin(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	format, err := app.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	role, err := config.ParseRole(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx = ports.ContextWithLogger(ctx, newLogger(cmd.ErrOrStderr()))

	nodeprep := newApp(cmd.OutOrStdout())
	cfg, err := loadConfig(cmd, nodeprep, role, &planFlags)
	if err != nil {
		return err
	}

	plan, err := nodeprep.Plan(ctx, cfg)
	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}
	return nodeprep.PrintPlan(plan, format)
}
