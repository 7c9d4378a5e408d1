package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/felixgeelhaar/nodeprep/internal/app"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/fakehost"
)

// useFakeHost points the CLI at host for the duration of the test.
func useFakeHost(t *testing.T, host *fakehost.Host) {
	t.Helper()
	prevApp, prevEnv := newApp, lookupEnv
	newApp = func(out io.Writer) *app.Nodeprep {
		return app.NewWithPorts(out, app.Ports{Runner: host, FS: host, Nodes: host}).WithGOOS("linux")
	}
	lookupEnv = func(string) (string, bool) { return "", false }
	t.Cleanup(func() {
		newApp, lookupEnv = prevApp, prevEnv
	})
}

// executeCommand runs the root command with args and returns stdout and the
// error. Flags are reset first so tests do not leak state into each other.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	_, err := rootCmd.ExecuteC()
	return stdout.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
