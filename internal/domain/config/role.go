package config

import "strings"

// Role selects which plan is built for the node.
type Role string

const (
	// RoleControlPlane initializes a new single-node control plane.
	RoleControlPlane Role = "control-plane"
	// RoleWorker joins an existing cluster.
	RoleWorker Role = "worker"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleControlPlane:
		return RoleControlPlane, nil
	case RoleWorker:
		return RoleWorker, nil
	default:
		return "", NewRoleInvalidError(s)
	}
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// IsControlPlane reports whether r is the control-plane role.
func (r Role) IsControlPlane() bool {
	return r == RoleControlPlane
}
