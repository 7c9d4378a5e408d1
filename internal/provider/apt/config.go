// Package apt installs the Kubernetes package repository, the pinned node
// packages and their holds on Debian and Ubuntu.
package apt

import (
	"fmt"

	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/provider/versionutil"
)

// Repository locations on the host.
const (
	KeyringPath = "/etc/apt/keyrings/kubernetes-apt-keyring.asc"
	SourcesPath = "/etc/apt/sources.list.d/kubernetes.list"
	repoBaseURL = "https://pkgs.k8s.io/core:/stable:/"
)

// Package is an apt package and its version pin.
type Package struct {
	Name    string
	Version string // empty when unpinned
}

// FullName returns the package name with the version specifier apt-get
// install expects.
func (p Package) FullName() string {
	if p.Version != "" {
		return fmt.Sprintf("%s=%s", p.Name, p.Version)
	}
	return p.Name
}

// KubernetesPackages returns the Kubernetes package names for a role.
func KubernetesPackages(role config.Role) []string {
	names := []string{"kubelet", "kubeadm"}
	if role.IsControlPlane() {
		names = append(names, "kubectl")
	}
	return names
}

// Packages returns every package the node needs, containerd first.
func Packages(cfg *config.Config) ([]Package, error) {
	names := append([]string{"containerd"}, KubernetesPackages(cfg.Role)...)
	pkgs := make([]Package, 0, len(names))
	for _, name := range names {
		version, err := versionutil.ResolvePackageVersion(cfg, name)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, Package{Name: name, Version: version})
	}
	return pkgs, nil
}

// RepositoryURL returns the package repository for the configured minor
// release, for example https://pkgs.k8s.io/core:/stable:/v1.30/deb/.
func RepositoryURL(cfg *config.Config) string {
	return repoBaseURL + cfg.KubernetesMinor() + "/deb/"
}

// SourcesLine returns the sources.list entry for the repository.
func SourcesLine(cfg *config.Config) string {
	return fmt.Sprintf("deb [signed-by=%s] %s /", KeyringPath, RepositoryURL(cfg))
}
