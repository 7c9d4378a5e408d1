package main

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/nodeprep/internal/app"
	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

var factsPreflight bool

var factsCmd = &cobra.Command{
	Use:   "facts [control-plane|worker]",
	Short: "Print the host facts provisioning depends on",
	Long: `Facts prints a fresh snapshot of the host state the provisioning steps
inspect: swap, kernel modules, sysctls, package versions and holds, service
state and cluster membership. The role defaults to control-plane.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(config.RoleControlPlane), string(config.RoleWorker)},
	RunE:      runFacts,
}

func init() {
	rootCmd.AddCommand(factsCmd)
	factsCmd.Flags().BoolVar(&factsPreflight, "preflight", false, "also run the preflight checks")
}

func runFacts(cmd *cobra.Command, args []string) error {
	format, err := app.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	role := config.RoleControlPlane
	if len(args) == 1 {
		if role, err = config.ParseRole(args[0]); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx = ports.ContextWithLogger(ctx, newLogger(cmd.ErrOrStderr()))

	nodeprep := newApp(cmd.OutOrStdout())

	cfg, err := nodeprep.LoadConfig(role, app.ConfigOptions{Path: cfgFile, Env: lookupEnv})
	if config.IsUserError(err, config.ErrCodeJoinMissing) {
		// Facts never need a join credential.
		cfg, err = config.Default(role), nil
	}
	if err != nil {
		return err
	}

	if factsPreflight {
		checks, _ := nodeprep.Preflight(ctx)
		if err := nodeprep.PrintChecks(checks, format); err != nil {
			return err
		}
	}
	return nodeprep.PrintFacts(nodeprep.Facts(ctx, cfg), format)
}
