// Package versionutil resolves the apt version pins of the node packages.
package versionutil

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/validation"
)

// ResolvePackageVersion returns the exact apt version to install for name.
// An empty result means the package is not pinned.
func ResolvePackageVersion(cfg *config.Config, name string) (string, error) {
	var version string
	switch {
	case strings.HasPrefix(name, "kube"):
		version = cfg.PackageVersion()
	case name == "containerd":
		version = cfg.ContainerdVersion
	}
	if version == "" {
		return "", nil
	}
	if err := validation.ValidatePackageVersion(version); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return version, nil
}

// Satisfies reports whether an installed version meets the desired pin.
// An unpinned package is satisfied by any installed version.
func Satisfies(installed, desired string) bool {
	return desired == "" || installed == desired
}
