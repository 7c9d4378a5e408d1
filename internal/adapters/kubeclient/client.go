// Package kubeclient reads node registrations from the API server with
// client-go, using the admin kubeconfig kubeadm init writes.
package kubeclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// DefaultPollInterval is the WaitForNode polling period.
const DefaultPollInterval = 2 * time.Second

// KubeadmConfigMap holds the ClusterConfiguration kubeadm init uploads.
const KubeadmConfigMap = "kubeadm-config"

// requestTimeout bounds each API request.
const requestTimeout = 15 * time.Second

// Client implements ports.NodeLister. The clientset is built on first use
// because the kubeconfig does not exist until the control plane is
// initialized.
type Client struct {
	kubeconfig string
	interval   time.Duration

	mu        sync.Mutex
	clientset kubernetes.Interface
}

// Option configures a Client.
type Option func(*Client)

// WithPollInterval sets how often WaitForNode queries the API server.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClientset uses an existing clientset instead of the kubeconfig.
func WithClientset(cs kubernetes.Interface) Option {
	return func(c *Client) {
		c.clientset = cs
	}
}

// New creates a Client for the kubeconfig at path.
func New(kubeconfig string, opts ...Option) *Client {
	c := &Client{kubeconfig: kubeconfig, interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) client() (kubernetes.Interface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clientset != nil {
		return c.clientset, nil
	}
	config, err := clientcmd.BuildConfigFromFlags("", c.kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}
	config.Timeout = requestTimeout
	cs, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	c.clientset = cs
	return cs, nil
}

// NodeNames lists every registered node.
func (c *Client) NodeNames(ctx context.Context) ([]string, error) {
	cs, err := c.client()
	if err != nil {
		return nil, err
	}
	list, err := cs.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	names := make([]string, 0, len(list.Items))
	for _, n := range list.Items {
		names = append(names, n.Name)
	}
	return names, nil
}

// WaitForNode polls until the node exists. API errors while the server
// starts up are retried until timeout.
func (c *Client) WaitForNode(ctx context.Context, name string, timeout time.Duration) error {
	cs, err := c.client()
	if err != nil {
		return err
	}

	logger := ports.LoggerOrDiscard(ctx)
	var lastErr error
	err = wait.PollUntilContextTimeout(ctx, c.interval, timeout, true, func(ctx context.Context) (bool, error) {
		_, err := cs.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
		switch {
		case err == nil:
			return true, nil
		case apierrors.IsNotFound(err):
			lastErr = nil
		default:
			lastErr = err
			logger.Debug(ctx, "node lookup failed", ports.F("node", name), ports.Err(err))
		}
		return false, nil
	})
	if err != nil {
		if lastErr != nil {
			return fmt.Errorf("node %q not registered after %s: %w (last error: %v)", name, timeout, err, lastErr)
		}
		return fmt.Errorf("node %q not registered after %s: %w", name, timeout, err)
	}
	return nil
}

// ClusterConfigUploaded looks up the kubeadm-config ConfigMap kubeadm init
// uploads once the API server is running.
func (c *Client) ClusterConfigUploaded(ctx context.Context) (bool, error) {
	cs, err := c.client()
	if err != nil {
		return false, err
	}
	_, err = cs.CoreV1().ConfigMaps(metav1.NamespaceSystem).Get(ctx, KubeadmConfigMap, metav1.GetOptions{})
	switch {
	case err == nil:
		return true, nil
	case apierrors.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to get %s/%s: %w", metav1.NamespaceSystem, KubeadmConfigMap, err)
	}
}

// Ensure Client implements ports.NodeLister.
var _ ports.NodeLister = (*Client)(nil)
