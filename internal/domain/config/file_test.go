package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
)

func TestParse_YAML(t *testing.T) {
	t.Parallel()

	data := []byte(`
kubernetes_version: 1.31.0
pod_network_cidr: 10.10.0.0/16
halt_on_failure: false
command_timeout: 5m
kernel_modules: [overlay]
sysctls:
  net.ipv4.ip_forward: "1"
join:
  command: kubeadm join 10.0.0.5:6443 --token abcdef.0123456789abcdef
`)

	f, err := config.Parse(data, "nodeprep.yaml")
	require.NoError(t, err)
	assert.Equal(t, "1.31.0", f.KubernetesVersion)
	assert.Equal(t, "10.10.0.0/16", f.PodNetworkCIDR)
	require.NotNil(t, f.HaltOnFailure)
	assert.False(t, *f.HaltOnFailure)
	assert.Equal(t, "5m", f.CommandTimeout)
	assert.Equal(t, []string{"overlay"}, f.KernelModules)
	assert.Equal(t, map[string]string{"net.ipv4.ip_forward": "1"}, f.Sysctls)
	require.NotNil(t, f.Join)
	assert.Contains(t, f.Join.Command, "kubeadm join")
}

func TestParse_YAMLUnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.Parse([]byte("pod_cidr: 10.0.0.0/8\n"), "nodeprep.yml")
	assert.True(t, config.IsUserError(err, config.ErrCodeConfigParse))
}

func TestParse_YAMLEmpty(t *testing.T) {
	t.Parallel()

	f, err := config.Parse([]byte("\n"), "nodeprep.yaml")
	require.NoError(t, err)
	assert.Empty(t, f.KubernetesVersion)
}

func TestParse_HCL(t *testing.T) {
	t.Parallel()

	data := []byte(`
kubernetes_version = "1.30.4"
pod_network_cidr   = "10.20.0.0/16"
halt_on_failure    = true
kernel_modules     = ["overlay", "br_netfilter"]
sysctls = {
  "net.ipv4.ip_forward" = "1"
}

join {
  endpoint     = "10.0.0.5:6443"
  token        = "abcdef.0123456789abcdef"
  ca_cert_hash = "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
}
`)

	f, err := config.Parse(data, "nodeprep.hcl")
	require.NoError(t, err)
	assert.Equal(t, "1.30.4", f.KubernetesVersion)
	assert.Equal(t, "10.20.0.0/16", f.PodNetworkCIDR)
	require.NotNil(t, f.HaltOnFailure)
	assert.True(t, *f.HaltOnFailure)
	assert.Equal(t, []string{"overlay", "br_netfilter"}, f.KernelModules)
	assert.Equal(t, "1", f.Sysctls["net.ipv4.ip_forward"])
	require.NotNil(t, f.Join)
	assert.Equal(t, "10.0.0.5:6443", f.Join.Endpoint)
}

func TestParse_HCLSyntaxError(t *testing.T) {
	t.Parallel()

	_, err := config.Parse([]byte(`kubernetes_version = `), "nodeprep.hcl")
	assert.True(t, config.IsUserError(err, config.ErrCodeConfigParse))
}

func TestParse_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := config.Parse([]byte("{}"), "nodeprep.json")
	assert.True(t, config.IsUserError(err, config.ErrCodeConfigFormat))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nodeprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pod_network_cidr: 10.9.0.0/16\n"), 0o600))

	f, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.9.0.0/16", f.PodNetworkCIDR)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, config.IsUserError(err, config.ErrCodeConfigNotFound))
}
