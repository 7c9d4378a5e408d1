package ports

import (
	"context"
	"time"
)

// NodeLister reads node registrations and bootstrap state from the cluster
// API.
type NodeLister interface {
	// NodeNames lists the names of every registered node.
	NodeNames(ctx context.Context) ([]string, error)
	// WaitForNode polls until the named node is registered or timeout passes.
	WaitForNode(ctx context.Context, name string, timeout time.Duration) error
	// ClusterConfigUploaded reports whether kubeadm stored its cluster
	// configuration in the API server, which it does only after the
	// control plane came up.
	ClusterConfigUploaded(ctx context.Context) (bool, error)
}
