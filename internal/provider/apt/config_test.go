package apt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/provider/apt"
)

func TestPackage_FullName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "kubelet=1.30.2-1.1", apt.Package{Name: "kubelet", Version: "1.30.2-1.1"}.FullName())
	assert.Equal(t, "containerd", apt.Package{Name: "containerd"}.FullName())
}

func TestPackages_ByRole(t *testing.T) {
	t.Parallel()

	cp, err := apt.Packages(config.Default(config.RoleControlPlane))
	require.NoError(t, err)
	assert.Equal(t, []apt.Package{
		{Name: "containerd"},
		{Name: "kubelet", Version: "1.30.2-1.1"},
		{Name: "kubeadm", Version: "1.30.2-1.1"},
		{Name: "kubectl", Version: "1.30.2-1.1"},
	}, cp)

	worker, err := apt.Packages(config.Default(config.RoleWorker))
	require.NoError(t, err)
	assert.Len(t, worker, 3)
}

func TestSourcesLine(t *testing.T) {
	t.Parallel()

	cfg := config.Default(config.RoleWorker)
	assert.Equal(t, "https://pkgs.k8s.io/core:/stable:/v1.30/deb/", apt.RepositoryURL(cfg))
	assert.Equal(t,
		"deb [signed-by=/etc/apt/keyrings/kubernetes-apt-keyring.asc] https://pkgs.k8s.io/core:/stable:/v1.30/deb/ /",
		apt.SourcesLine(cfg))
}
