package main

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/nodeprep/internal/app"
	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
)

// configFlags are the per-run settings shared by provision and plan.
type configFlags struct {
	podCIDR           string
	kubernetesVersion string
	advertiseAddress  string
	networkAddonURL   string
	joinFile          string
	continueOnError   bool
	dryRun            bool

	join           string
	joinEndpoint   string
	joinToken      string
	joinCACertHash string
}

func (f *configFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.podCIDR, "pod-cidr", "", "pod network CIDR (default "+config.DefaultPodNetworkCIDR+")")
	fl.StringVar(&f.kubernetesVersion, "kubernetes-version", "", "exact Kubernetes version to install (default "+config.DefaultKubernetesVersion+")")
	fl.StringVar(&f.advertiseAddress, "advertise-address", "", "API server advertise address (default: detected primary IP)")
	fl.StringVar(&f.networkAddonURL, "network-addon-url", "", "pod network add-on manifest URL")
	fl.StringVar(&f.joinFile, "join-file", "", "path of the join command hand-off file")
	fl.BoolVar(&f.continueOnError, "continue-on-error", false, "keep running independent steps after a failure")
	fl.BoolVar(&f.dryRun, "dry-run", false, "check every step without changing the host")
}

func (f *configFlags) bindJoin(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.join, "join", "", `full join command, e.g. "kubeadm join 10.0.0.1:6443 --token ... --discovery-token-ca-cert-hash sha256:..."`)
	fl.StringVar(&f.joinEndpoint, "join-endpoint", "", "control-plane endpoint (host:port)")
	fl.StringVar(&f.joinToken, "join-token", "", "bootstrap token")
	fl.StringVar(&f.joinCACertHash, "join-ca-cert-hash", "", "discovery CA certificate hash (sha256:...)")
	cmd.MarkFlagsMutuallyExclusive("join", "join-endpoint")
	cmd.MarkFlagsMutuallyExclusive("join", "join-token")
	cmd.MarkFlagsMutuallyExclusive("join", "join-ca-cert-hash")
}

// overrides returns only the flags the user set, so that unset flags do not
// mask environment or file values.
func (f *configFlags) overrides(cmd *cobra.Command) config.Overrides {
	fl := cmd.Flags()
	str := func(name string, v *string) *string {
		if fl.Lookup(name) != nil && fl.Changed(name) {
			return v
		}
		return nil
	}

	o := config.Overrides{
		PodNetworkCIDR:    str("pod-cidr", &f.podCIDR),
		KubernetesVersion: str("kubernetes-version", &f.kubernetesVersion),
		AdvertiseAddress:  str("advertise-address", &f.advertiseAddress),
		NetworkAddonURL:   str("network-addon-url", &f.networkAddonURL),
		JoinFile:          str("join-file", &f.joinFile),
		DryRun:            f.dryRun,
		Join:              str("join", &f.join),
		JoinEndpoint:      str("join-endpoint", &f.joinEndpoint),
		JoinToken:         str("join-token", &f.joinToken),
		JoinCACertHash:    str("join-ca-cert-hash", &f.joinCACertHash),
	}
	if fl.Changed("continue-on-error") {
		halt := !f.continueOnError
		o.HaltOnFailure = &halt
	}
	return o
}

// loadConfig resolves the configuration for role from --config, the
// environment and the command's flags.
func loadConfig(cmd *cobra.Command, a *app.Nodeprep, role config.Role, f *configFlags) (*config.Config, error) {
	return a.LoadConfig(role, app.ConfigOptions{
		Path:  cfgFile,
		Env:   lookupEnv,
		Flags: f.overrides(cmd),
	})
}
