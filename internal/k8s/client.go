// Package k8s wraps the client-go operations the orchestrator needs to
// drive a customer's namespace: create/patch the config Secret, the tier
// ResourceQuota, the isolation NetworkPolicy and the gateway Deployment,
// and poll rollout status. Every create call treats HTTP 409 (already
// exists) as success, matching how the orchestrator dispatch loop expects
// to safely retry a job after a partial failure.
package k8s

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps the typed clientset with the namespace-naming convention
// every resource helper uses.
type Client struct {
	Clientset kubernetes.Interface
}

// New builds a Client, preferring in-cluster configuration and falling
// back to a local kubeconfig for development — the same fallback order the
// Python operator used.
func New(kubeconfigPath string) (*Client, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		cfg, err = loadLocalConfig(kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes clientset: %w", err)
	}
	return &Client{Clientset: cs}, nil
}

// NewFromClientset wraps an existing clientset, primarily for tests using
// k8s.io/client-go/kubernetes/fake.
func NewFromClientset(cs kubernetes.Interface) *Client {
	return &Client{Clientset: cs}
}

func loadLocalConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			kubeconfigPath = filepath.Join(home, ".kube", "config")
		}
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

// NamespaceName is the naming convention every customer's namespace
// follows: customer-<id>, or customer-<id>-N for additional boxes beyond
// the first.
func NamespaceName(customerID string, boxIndex int) string {
	if boxIndex <= 0 {
		return fmt.Sprintf("customer-%s", customerID)
	}
	return fmt.Sprintf("customer-%s-%d", customerID, boxIndex)
}
