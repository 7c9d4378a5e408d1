package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration. It may be written as YAML (.yaml, .yml)
// or HCL (.hcl). Every field is optional; empty values keep the defaults.
type File struct {
	KubernetesVersion string            `yaml:"kubernetes_version" hcl:"kubernetes_version,optional"`
	PackageRevision   string            `yaml:"package_revision" hcl:"package_revision,optional"`
	ContainerdVersion string            `yaml:"containerd_version" hcl:"containerd_version,optional"`
	PodNetworkCIDR    string            `yaml:"pod_network_cidr" hcl:"pod_network_cidr,optional"`
	AdvertiseAddress  string            `yaml:"advertise_address" hcl:"advertise_address,optional"`
	NetworkAddonURL   string            `yaml:"network_addon_url" hcl:"network_addon_url,optional"`
	JoinFile          string            `yaml:"join_file" hcl:"join_file,optional"`
	InitLogPath       string            `yaml:"init_log_path" hcl:"init_log_path,optional"`
	KubeconfigPath    string            `yaml:"kubeconfig_path" hcl:"kubeconfig_path,optional"`
	HaltOnFailure     *bool             `yaml:"halt_on_failure" hcl:"halt_on_failure,optional"`
	CommandTimeout    string            `yaml:"command_timeout" hcl:"command_timeout,optional"`
	BootstrapTimeout  string            `yaml:"bootstrap_timeout" hcl:"bootstrap_timeout,optional"`
	KernelModules     []string          `yaml:"kernel_modules" hcl:"kernel_modules,optional"`
	Sysctls           map[string]string `yaml:"sysctls" hcl:"sysctls,optional"`
	Join              *JoinBlock        `yaml:"join" hcl:"join,block"`
}

// JoinBlock carries a worker join credential either as a full command line or
// as its three parts.
type JoinBlock struct {
	Command    string `yaml:"command" hcl:"command,optional"`
	Endpoint   string `yaml:"endpoint" hcl:"endpoint,optional"`
	Token      string `yaml:"token" hcl:"token,optional"`
	CACertHash string `yaml:"ca_cert_hash" hcl:"ca_cert_hash,optional"`
}

// Load reads a configuration file, choosing the decoder by extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewConfigNotFoundError(path)
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes configuration data. name is used for the format and in errors.
func Parse(data []byte, name string) (*File, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return parseYAML(data, name)
	case ".hcl":
		return parseHCL(data, name)
	default:
		return nil, &UserError{
			Code:       ErrCodeConfigFormat,
			Message:    fmt.Sprintf("unsupported configuration format %q", filepath.Ext(name)),
			Context:    name,
			Suggestion: "Use a .yaml, .yml or .hcl file.",
		}
	}
}

func parseYAML(data []byte, name string) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		// An empty document decodes to io.EOF; treat it as an empty config.
		if len(bytes.TrimSpace(data)) == 0 {
			return &File{}, nil
		}
		return nil, NewConfigParseError(name, err)
	}
	return &f, nil
}

func parseHCL(data []byte, name string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, NewConfigParseError(name, diags)
	}

	var f File
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &f); diags.HasErrors() {
		return nil, NewConfigParseError(name, diags)
	}
	return &f, nil
}
