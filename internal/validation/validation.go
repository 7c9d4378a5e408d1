// Package validation checks values before they are passed to external
// commands or written into system files, to prevent command injection and
// malformed configuration lines.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Common validation errors.
var (
	ErrEmptyInput         = errors.New("input cannot be empty")
	ErrInvalidPackageName = errors.New("invalid package name")
	ErrInvalidVersion     = errors.New("invalid package version")
	ErrInvalidModule      = errors.New("invalid kernel module name")
	ErrInvalidSysctl      = errors.New("invalid sysctl setting")
	ErrInvalidHostname    = errors.New("invalid hostname")
	ErrInvalidURL         = errors.New("invalid URL")
	ErrInvalidPath        = errors.New("invalid path")
	ErrPathTraversal      = errors.New("path traversal detected")
	ErrCommandInjection   = errors.New("potential command injection detected")
)

var (
	// packageNameRegex matches Debian package names.
	// Examples: "kubelet", "containerd", "libc6", "g++"
	packageNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.+-]+$`)

	// versionRegex matches Debian version strings with optional epoch and revision.
	// Examples: "1.30.2-1.1", "1.7.12-0ubuntu2", "1:2.3"
	versionRegex = regexp.MustCompile(`^([0-9]+:)?[0-9][A-Za-z0-9.+~-]*$`)

	// moduleRegex matches kernel module names.
	// Examples: "overlay", "br_netfilter", "ip_vs_rr"
	moduleRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// sysctlKeyRegex matches dotted sysctl keys.
	// Examples: "net.ipv4.ip_forward", "net.bridge.bridge-nf-call-iptables"
	sysctlKeyRegex = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_-]+)+$`)

	// sysctlValueRegex matches single-token sysctl values.
	sysctlValueRegex = regexp.MustCompile(`^[A-Za-z0-9._:/-]+$`)

	// hostnameRegex matches RFC 1123 host names.
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

	// urlRegex matches HTTPS URLs.
	urlRegex = regexp.MustCompile(`^https://[a-zA-Z0-9][a-zA-Z0-9._:/@%+~-]*$`)

	// shellMetaChars contains shell metacharacters that could enable injection
	shellMetaChars = []string{";", "|", "&", "$", "`", "(", ")", "{", "}", "<", ">", "\n", "\r", "\\"}
)

// ValidatePackageName validates an apt package name.
func ValidatePackageName(name string) error {
	if name == "" {
		return ErrEmptyInput
	}
	if len(name) > 256 {
		return fmt.Errorf("%w: name too long (max 256 characters)", ErrInvalidPackageName)
	}
	if !packageNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidPackageName, name)
	}
	return nil
}

// ValidatePackageVersion validates an apt version pin.
func ValidatePackageVersion(version string) error {
	if version == "" {
		return ErrEmptyInput
	}
	if !versionRegex.MatchString(version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return nil
}

// ValidateModuleName validates a kernel module name.
func ValidateModuleName(name string) error {
	if name == "" {
		return ErrEmptyInput
	}
	if !moduleRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidModule, name)
	}
	return nil
}

// ValidateSysctl validates a sysctl key and value.
func ValidateSysctl(key, value string) error {
	if key == "" || value == "" {
		return ErrEmptyInput
	}
	if !sysctlKeyRegex.MatchString(key) {
		return fmt.Errorf("%w: key %q", ErrInvalidSysctl, key)
	}
	if !sysctlValueRegex.MatchString(value) {
		return fmt.Errorf("%w: value %q for %s", ErrInvalidSysctl, value, key)
	}
	return nil
}

// ValidateHostname validates a host name before it is written to /etc/hosts.
func ValidateHostname(hostname string) error {
	if hostname == "" {
		return ErrEmptyInput
	}
	if len(hostname) > 253 {
		return fmt.Errorf("%w: hostname too long", ErrInvalidHostname)
	}
	if !hostnameRegex.MatchString(hostname) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidHostname, hostname)
	}
	return nil
}

// ValidateURL validates an HTTPS URL passed to curl or kubectl.
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return ErrEmptyInput
	}
	if len(urlStr) > 2048 {
		return fmt.Errorf("%w: URL too long", ErrInvalidURL)
	}
	if !urlRegex.MatchString(urlStr) {
		return fmt.Errorf("%w: %q must be a valid HTTPS URL", ErrInvalidURL, urlStr)
	}
	if containsShellMeta(urlStr) {
		return fmt.Errorf("%w: %q contains shell metacharacters", ErrCommandInjection, urlStr)
	}
	return nil
}

// ValidatePath validates an absolute file path and prevents path traversal.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyInput
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: path contains null byte", ErrInvalidPath)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, path)
	}
	if containsPathTraversal(path) {
		return fmt.Errorf("%w: %q contains traversal sequence", ErrPathTraversal, path)
	}
	return nil
}

// containsShellMeta checks if a string contains shell metacharacters.
func containsShellMeta(s string) bool {
	for _, char := range shellMetaChars {
		if strings.Contains(s, char) {
			return true
		}
	}
	return false
}

// containsPathTraversal checks for ".." segments, including URL-encoded ones.
func containsPathTraversal(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}
	return strings.Contains(strings.ToLower(path), "%2e%2e")
}
