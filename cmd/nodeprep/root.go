package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/nodeprep/internal/adapters/logging"
	"github.com/felixgeelhaar/nodeprep/internal/app"
	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/domain/platform"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	logJSON      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "nodeprep",
	Short: "Idempotent Kubernetes node provisioning",
	Long: `Nodeprep prepares an Ubuntu or Debian host as a Kubernetes control-plane
or worker node.

Every change is a step that checks the host before acting, so running
nodeprep again on a provisioned node changes nothing:
  Check → Apply → Verify`,
	SilenceErrors: true, // We handle error formatting ourselves
	SilenceUsage:  true, // Don't show usage on error
}

// newApp creates the application. Tests replace it.
var newApp = func(out io.Writer) *app.Nodeprep {
	return app.New(out)
}

// lookupEnv reads environment overrides. Tests replace it.
var lookupEnv config.LookupEnv = os.LookupEnv

// Execute runs the root command and prints any error.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errRunFailed) {
		printError(err)
	}
	return err
}

// errRunFailed is returned after a failed run whose report was already printed.
var errRunFailed = errors.New("provisioning failed")

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or HCL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", app.FormatText, "output format (text, json)")

	registerFlagCompletions()

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the stderr logger from the global flags.
func newLogger(w io.Writer) ports.Logger {
	level := ports.LevelInfo
	if verbose {
		level = ports.LevelDebug
	}
	return logging.NewConsoleLogger(
		logging.WithOutput(w),
		logging.WithLevel(level),
		logging.WithJSONFormat(logJSON),
		logging.WithColor(!logJSON && isTerminal(w)),
	)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// formatError returns a user-friendly error message.
// With verbose=false: shows only the user message and suggestion.
// With verbose=true: also shows the underlying technical error.
func formatError(err error) string {
	var list *config.ErrorList
	if errors.As(err, &list) {
		if verbose {
			return list.Format()
		}
		msg := list.Error()
		for _, e := range list.Errors() {
			if e.Suggestion != "" {
				msg += fmt.Sprintf("\n\nSuggestion (%s): %s", e.Context, e.Suggestion)
			}
		}
		return msg
	}

	var userErr *config.UserError
	if errors.As(err, &userErr) {
		msg := userErr.Message
		if userErr.Context != "" {
			msg += fmt.Sprintf(" (at %s)", userErr.Context)
		}
		if userErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", userErr.Suggestion)
		}
		if verbose && userErr.Underlying != nil {
			msg += fmt.Sprintf("\n\nTechnical details: %v", userErr.Underlying)
		}
		return msg
	}

	var pfErr *platform.PreflightError
	if errors.As(err, &pfErr) {
		msg := "this host cannot be provisioned:"
		for _, c := range pfErr.Failed {
			msg += fmt.Sprintf("\n  ✗ %s: %s", c.Name, c.Detail)
		}
		return msg
	}

	var stepErr *compiler.StepError
	if errors.As(err, &stepErr) {
		if verbose {
			return stepErr.Format()
		}
		msg := stepErr.Error()
		if stepErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", stepErr.Suggestion)
		}
		return msg
	}
	return err.Error()
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", formatError(err))
}

// registerFlagCompletions sets up custom completions for global flags.
func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml", "hcl"}, cobra.ShellCompDirectiveFilterFileExt
	})

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"text\tHuman-readable summary",
			"json\tMachine-readable report",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}
