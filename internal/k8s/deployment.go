package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/openclaw/cloud/internal/store"
)

const deploymentName = "openclaw-gateway"

var gatewayLabels = func(customerID string) map[string]string {
	return map[string]string{"app": "openclaw-gateway", "openclaw/customer": customerID}
}

func buildDeployment(customerID, tier, image string) *appsv1.Deployment {
	res := store.ResourcesForTier(tier)
	labels := gatewayLabels(customerID)
	replicas := int32(1)
	falseVal := false

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: deploymentName, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": "openclaw-gateway"}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					AutomountServiceAccountToken: &falseVal,
					RestartPolicy:                corev1.RestartPolicyAlways,
					Containers: []corev1.Container{
						{
							Name:            deploymentName,
							Image:           image,
							ImagePullPolicy: corev1.PullIfNotPresent,
							EnvFrom: []corev1.EnvFromSource{
								{SecretRef: &corev1.SecretEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: configSecretName}}},
							},
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse(res.CPURequest),
									corev1.ResourceMemory: resource.MustParse(res.MemoryRequest),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse(res.CPULimit),
									corev1.ResourceMemory: resource.MustParse(res.MemoryLimit),
								},
							},
						},
					},
				},
			},
		},
	}
}

// EnsureDeployment creates the gateway Deployment, idempotent on 409.
func (c *Client) EnsureDeployment(ctx context.Context, ns, customerID, tier, image string) error {
	_, err := c.Clientset.AppsV1().Deployments(ns).Create(ctx, buildDeployment(customerID, tier, image), metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("creating deployment in %s: %w", ns, err)
	}
	return nil
}

// PatchDeploymentResources updates the container's resource requests and
// limits to match a new tier, used by resize.
func (c *Client) PatchDeploymentResources(ctx context.Context, ns, tier string) error {
	res := store.ResourcesForTier(tier)
	body, err := json.Marshal(map[string]any{
		"spec": map[string]any{
			"template": map[string]any{
				"spec": map[string]any{
					"containers": []map[string]any{
						{
							"name": deploymentName,
							"resources": map[string]any{
								"requests": map[string]string{"cpu": res.CPURequest, "memory": res.MemoryRequest},
								"limits":   map[string]string{"cpu": res.CPULimit, "memory": res.MemoryLimit},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("encoding deployment resource patch: %w", err)
	}
	_, err = c.Clientset.AppsV1().Deployments(ns).Patch(ctx, deploymentName, types.StrategicMergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patching deployment resources in %s: %w", ns, err)
	}
	return nil
}

// ScaleDeployment sets the replica count, used by suspend (0) and
// reactivate (1).
func (c *Client) ScaleDeployment(ctx context.Context, ns string, replicas int32) error {
	body, err := json.Marshal(map[string]any{"spec": map[string]any{"replicas": replicas}})
	if err != nil {
		return fmt.Errorf("encoding scale patch: %w", err)
	}
	_, err = c.Clientset.AppsV1().Deployments(ns).Patch(ctx, deploymentName, types.StrategicMergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("scaling deployment in %s: %w", ns, err)
	}
	return nil
}

// RolloutRestart triggers a rolling restart by patching the pod template's
// restart annotation, used by update and update_connections after the
// config secret changes.
func (c *Client) RolloutRestart(ctx context.Context, ns string) error {
	body, err := json.Marshal(map[string]any{
		"spec": map[string]any{
			"template": map[string]any{
				"metadata": map[string]any{
					"annotations": map[string]string{
						"kubectl.kubernetes.io/restartedAt": time.Now().UTC().Format(time.RFC3339),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("encoding restart patch: %w", err)
	}
	_, err = c.Clientset.AppsV1().Deployments(ns).Patch(ctx, deploymentName, types.StrategicMergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("triggering rollout restart in %s: %w", ns, err)
	}
	return nil
}

// WaitForPodReady polls until the deployment reports at least one ready
// replica or the timeout elapses.
func (c *Client) WaitForPodReady(ctx context.Context, ns string, timeout time.Duration) (bool, error) {
	ready := false
	err := wait.PollUntilContextTimeout(ctx, 2*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		dep, err := c.Clientset.AppsV1().Deployments(ns).Get(ctx, deploymentName, metav1.GetOptions{})
		if err != nil {
			return false, nil //nolint:nilerr // transient read errors are retried until timeout
		}
		if dep.Status.ReadyReplicas >= 1 {
			ready = true
			return true, nil
		}
		return false, nil
	})
	if err != nil && !wait.Interrupted(err) {
		return false, fmt.Errorf("waiting for pod ready in %s: %w", ns, err)
	}
	return ready, nil
}

// WaitForRollout polls until the deployment's rollout has fully converged
// (updated, ready and available match the desired replica count).
func (c *Client) WaitForRollout(ctx context.Context, ns string, timeout time.Duration) (bool, error) {
	done := false
	err := wait.PollUntilContextTimeout(ctx, 2*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		dep, err := c.Clientset.AppsV1().Deployments(ns).Get(ctx, deploymentName, metav1.GetOptions{})
		if err != nil {
			return false, nil //nolint:nilerr
		}
		desired := int32(1)
		if dep.Spec.Replicas != nil {
			desired = *dep.Spec.Replicas
		}
		if dep.Status.UpdatedReplicas == desired && dep.Status.ReadyReplicas >= desired && dep.Status.UnavailableReplicas == 0 {
			done = true
			return true, nil
		}
		return false, nil
	})
	if err != nil && !wait.Interrupted(err) {
		return false, fmt.Errorf("waiting for rollout in %s: %w", ns, err)
	}
	return done, nil
}

// ReadyReplicas returns the current ready replica count, used by the
// health_check job.
func (c *Client) ReadyReplicas(ctx context.Context, ns string) (int32, error) {
	dep, err := c.Clientset.AppsV1().Deployments(ns).Get(ctx, deploymentName, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("reading deployment in %s: %w", ns, err)
	}
	return dep.Status.ReadyReplicas, nil
}
