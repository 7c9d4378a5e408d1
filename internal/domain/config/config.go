// Package config resolves the provisioning configuration from defaults, a
// config file, environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/felixgeelhaar/nodeprep/internal/domain/joincred"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// Defaults.
const (
	DefaultKubernetesVersion = "1.30.2"
	DefaultPackageRevision   = "1.1"
	DefaultPodNetworkCIDR    = "10.244.0.0/16"
	DefaultNetworkAddonURL   = "https://github.com/flannel-io/flannel/releases/latest/download/kube-flannel.yml"
	DefaultInitLogPath       = "/var/log/nodeprep/kubeadm-init.log"
	DefaultKubeconfigPath    = "~/.kube/config"
	DefaultCommandTimeout    = 10 * time.Minute
	DefaultBootstrapTimeout  = 20 * time.Minute
)

// Environment variables read by Resolve.
const (
	EnvPodNetworkCIDR    = "NODEPREP_POD_CIDR"
	EnvKubernetesVersion = "NODEPREP_KUBERNETES_VERSION"
	EnvAdvertiseAddress  = "NODEPREP_ADVERTISE_ADDRESS"
	EnvNetworkAddonURL   = "NODEPREP_NETWORK_ADDON_URL"
	EnvJoin              = "NODEPREP_JOIN"
	EnvJoinFile          = "NODEPREP_JOIN_FILE"
	EnvHaltOnFailure     = "NODEPREP_HALT_ON_FAILURE"
)

var (
	sysctlKeyPattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_-]+)+$`)
	modulePattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Sysctl is a kernel parameter and its desired value.
type Sysctl struct {
	Key   string
	Value string
}

// Config is the fully resolved, validated provisioning configuration.
type Config struct {
	Role              Role
	KubernetesVersion string
	PackageRevision   string
	ContainerdVersion string
	PodNetworkCIDR    string
	// AdvertiseAddress is empty when the primary IP should be detected.
	AdvertiseAddress string
	NetworkAddonURL  string
	JoinFile         string
	InitLogPath      string
	KubeconfigPath   string
	HaltOnFailure    bool
	DryRun           bool
	CommandTimeout   time.Duration
	BootstrapTimeout time.Duration
	KernelModules    []string
	Sysctls          []Sysctl
	Join             *joincred.Credential
}

// Default returns the configuration used when nothing else is given.
func Default(role Role) *Config {
	return &Config{
		Role:              role,
		KubernetesVersion: DefaultKubernetesVersion,
		PackageRevision:   DefaultPackageRevision,
		PodNetworkCIDR:    DefaultPodNetworkCIDR,
		NetworkAddonURL:   DefaultNetworkAddonURL,
		JoinFile:          joincred.DefaultPath,
		InitLogPath:       DefaultInitLogPath,
		KubeconfigPath:    ports.ExpandPath(DefaultKubeconfigPath),
		HaltOnFailure:     true,
		CommandTimeout:    DefaultCommandTimeout,
		BootstrapTimeout:  DefaultBootstrapTimeout,
		KernelModules:     []string{"overlay", "br_netfilter"},
		Sysctls: []Sysctl{
			{Key: "net.bridge.bridge-nf-call-iptables", Value: "1"},
			{Key: "net.bridge.bridge-nf-call-ip6tables", Value: "1"},
			{Key: "net.ipv4.ip_forward", Value: "1"},
		},
	}
}

// KubernetesMinor returns the "v<major>.<minor>" release line of the pinned
// version, used for the package repository path.
func (c *Config) KubernetesMinor() string {
	return semver.MajorMinor("v" + c.KubernetesVersion)
}

// PackageVersion returns the exact apt version for the Kubernetes packages,
// for example "1.30.2-1.1".
func (c *Config) PackageVersion() string {
	if c.PackageRevision == "" {
		return c.KubernetesVersion
	}
	return c.KubernetesVersion + "-" + c.PackageRevision
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// Overrides holds command-line flag values. Nil fields were not set.
type Overrides struct {
	PodNetworkCIDR    *string
	KubernetesVersion *string
	AdvertiseAddress  *string
	NetworkAddonURL   *string
	JoinFile          *string
	HaltOnFailure     *bool
	DryRun            bool
	Join              *string
	JoinEndpoint      *string
	JoinToken         *string
	JoinCACertHash    *string
}

// Sources lists everything Resolve merges.
type Sources struct {
	File  *File
	Env   LookupEnv
	Flags Overrides
	// ReadJoinFile loads a credential from the join file when a worker has no
	// inline credential. Optional.
	ReadJoinFile func(path string) (joincred.Credential, error)
}

// Resolve merges defaults, file, environment and flags for role and validates
// the result.
func Resolve(role Role, src Sources) (*Config, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	cfg := Default(role)
	if err := cfg.applyFile(src.File); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(src.Env); err != nil {
		return nil, err
	}
	cfg.applyFlags(src.Flags)

	if err := cfg.resolveJoin(src); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(f *File) error {
	if f == nil {
		return nil
	}
	setString(&c.KubernetesVersion, f.KubernetesVersion)
	setString(&c.PackageRevision, f.PackageRevision)
	setString(&c.ContainerdVersion, f.ContainerdVersion)
	setString(&c.PodNetworkCIDR, f.PodNetworkCIDR)
	setString(&c.AdvertiseAddress, f.AdvertiseAddress)
	setString(&c.NetworkAddonURL, f.NetworkAddonURL)
	setString(&c.JoinFile, f.JoinFile)
	setString(&c.InitLogPath, f.InitLogPath)
	if f.KubeconfigPath != "" {
		c.KubeconfigPath = ports.ExpandPath(f.KubeconfigPath)
	}
	if f.HaltOnFailure != nil {
		c.HaltOnFailure = *f.HaltOnFailure
	}

	var err error
	if f.CommandTimeout != "" {
		if c.CommandTimeout, err = parseDuration("command_timeout", f.CommandTimeout); err != nil {
			return err
		}
	}
	if f.BootstrapTimeout != "" {
		if c.BootstrapTimeout, err = parseDuration("bootstrap_timeout", f.BootstrapTimeout); err != nil {
			return err
		}
	}

	if len(f.KernelModules) > 0 {
		c.KernelModules = append([]string(nil), f.KernelModules...)
	}
	if len(f.Sysctls) > 0 {
		c.Sysctls = sortedSysctls(f.Sysctls)
	}
	return nil
}

func (c *Config) applyEnv(lookup LookupEnv) error {
	if lookup == nil {
		return nil
	}
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	setString(&c.PodNetworkCIDR, get(EnvPodNetworkCIDR))
	setString(&c.KubernetesVersion, get(EnvKubernetesVersion))
	setString(&c.AdvertiseAddress, get(EnvAdvertiseAddress))
	setString(&c.NetworkAddonURL, get(EnvNetworkAddonURL))
	setString(&c.JoinFile, get(EnvJoinFile))

	if v := get(EnvHaltOnFailure); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &UserError{
				Code:       ErrCodeValidationFailed,
				Message:    fmt.Sprintf("invalid boolean %q", v),
				Context:    EnvHaltOnFailure,
				Suggestion: "Use true or false.",
				Underlying: err,
			}
		}
		c.HaltOnFailure = b
	}
	return nil
}

func (c *Config) applyFlags(o Overrides) {
	setPtr(&c.PodNetworkCIDR, o.PodNetworkCIDR)
	setPtr(&c.KubernetesVersion, o.KubernetesVersion)
	setPtr(&c.AdvertiseAddress, o.AdvertiseAddress)
	setPtr(&c.NetworkAddonURL, o.NetworkAddonURL)
	setPtr(&c.JoinFile, o.JoinFile)
	if o.HaltOnFailure != nil {
		c.HaltOnFailure = *o.HaltOnFailure
	}
	c.DryRun = o.DryRun
}

// resolveJoin picks the join credential with the same precedence as the
// other settings. Only workers use it.
func (c *Config) resolveJoin(src Sources) error {
	if c.Role != RoleWorker {
		return nil
	}

	f := src.Flags
	switch {
	case f.JoinEndpoint != nil || f.JoinToken != nil || f.JoinCACertHash != nil:
		cred, err := joincred.New(deref(f.JoinEndpoint), deref(f.JoinToken), deref(f.JoinCACertHash))
		if err != nil {
			return NewJoinInvalidError("--join-endpoint/--join-token/--join-ca-cert-hash", err)
		}
		c.Join = &cred
		return nil
	case f.Join != nil:
		return c.parseJoin("--join", *f.Join)
	}

	if src.Env != nil {
		if v, ok := src.Env(EnvJoin); ok && strings.TrimSpace(v) != "" {
			return c.parseJoin(EnvJoin, v)
		}
	}

	if jb := fileJoin(src.File); jb != nil {
		if jb.Command != "" {
			return c.parseJoin("join.command", jb.Command)
		}
		cred, err := joincred.New(jb.Endpoint, jb.Token, jb.CACertHash)
		if err != nil {
			return NewJoinInvalidError("join", err)
		}
		c.Join = &cred
		return nil
	}

	if src.ReadJoinFile != nil {
		cred, err := src.ReadJoinFile(c.JoinFile)
		if err == nil {
			c.Join = &cred
			return nil
		}
	}

	return NewJoinMissingError()
}

func (c *Config) parseJoin(source, line string) error {
	cred, err := joincred.Parse(line)
	if err != nil {
		return NewJoinInvalidError(source, err)
	}
	c.Join = &cred
	return nil
}

// Validate checks the resolved configuration and reports every problem.
func (c *Config) Validate() error {
	var errs ErrorList

	v := "v" + c.KubernetesVersion
	if !semver.IsValid(v) || semver.Canonical(v) != v || semver.Prerelease(v) != "" {
		errs.AddValidation("kubernetes_version", fmt.Sprintf("%q is not an exact release version", c.KubernetesVersion),
			"Pin a full version such as 1.30.2, without a leading v.")
	}

	if c.Role.IsControlPlane() {
		if _, _, err := net.ParseCIDR(c.PodNetworkCIDR); err != nil {
			errs.AddValidation("pod_network_cidr", fmt.Sprintf("%q is not a CIDR", c.PodNetworkCIDR),
				"Use a network such as 10.244.0.0/16 that matches the network add-on.")
		}
		if u, err := url.Parse(c.NetworkAddonURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs.AddValidation("network_addon_url", fmt.Sprintf("%q is not an http(s) URL", c.NetworkAddonURL),
				"Point it at the add-on manifest, for example the flannel release manifest.")
		}
	}

	if c.AdvertiseAddress != "" && net.ParseIP(c.AdvertiseAddress) == nil {
		errs.AddValidation("advertise_address", fmt.Sprintf("%q is not an IP address", c.AdvertiseAddress),
			"Leave it empty to use the detected primary address.")
	}
	if !strings.HasPrefix(c.JoinFile, "/") {
		errs.AddValidation("join_file", "must be an absolute path", "")
	}
	if !strings.HasPrefix(c.InitLogPath, "/") {
		errs.AddValidation("init_log_path", "must be an absolute path", "")
	}
	if c.CommandTimeout <= 0 {
		errs.AddValidation("command_timeout", "must be positive", "")
	}
	if c.BootstrapTimeout <= 0 {
		errs.AddValidation("bootstrap_timeout", "must be positive", "")
	}

	for _, m := range c.KernelModules {
		if !modulePattern.MatchString(m) {
			errs.AddValidation("kernel_modules", fmt.Sprintf("invalid module name %q", m), "")
		}
	}
	for _, s := range c.Sysctls {
		if !sysctlKeyPattern.MatchString(s.Key) {
			errs.AddValidation("sysctls", fmt.Sprintf("invalid key %q", s.Key), "Use dotted names such as net.ipv4.ip_forward.")
		}
		if strings.TrimSpace(s.Value) == "" {
			errs.AddValidation("sysctls", fmt.Sprintf("empty value for %q", s.Key), "")
		}
	}

	if c.Role == RoleWorker && c.Join == nil {
		errs.Add(NewJoinMissingError())
	}

	return errs.AsError()
}

func fileJoin(f *File) *JoinBlock {
	if f == nil || f.Join == nil {
		return nil
	}
	return f.Join
}

func sortedSysctls(m map[string]string) []Sysctl {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Sysctl, 0, len(keys))
	for _, k := range keys {
		out = append(out, Sysctl{Key: k, Value: m[k]})
	}
	return out
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &UserError{
			Code:       ErrCodeValidationFailed,
			Message:    fmt.Sprintf("invalid duration %q", s),
			Context:    field,
			Suggestion: "Use Go duration syntax such as 10m or 90s.",
			Underlying: err,
		}
	}
	return d, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
