package k8s

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/openclaw/cloud/internal/store"
)

const quotaName = "tier-limits"

func quotaHard(tier string) corev1.ResourceList {
	r := store.ResourcesForTier(tier)
	return corev1.ResourceList{
		corev1.ResourceRequestsCPU:    resource.MustParse(r.CPURequest),
		corev1.ResourceLimitsCPU:      resource.MustParse(r.CPULimit),
		corev1.ResourceRequestsMemory: resource.MustParse(r.MemoryRequest),
		corev1.ResourceLimitsMemory:   resource.MustParse(r.MemoryLimit),
	}
}

// EnsureResourceQuota creates the tier-limits ResourceQuota, idempotent on
// 409 like the rest of this package.
func (c *Client) EnsureResourceQuota(ctx context.Context, ns, tier string) error {
	_, err := c.Clientset.CoreV1().ResourceQuotas(ns).Create(ctx, &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: quotaName},
		Spec:       corev1.ResourceQuotaSpec{Hard: quotaHard(tier)},
	}, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("creating resource quota in %s: %w", ns, err)
	}
	return nil
}

// PatchResourceQuota updates the quota to match a new tier, used by resize.
func (c *Client) PatchResourceQuota(ctx context.Context, ns, tier string) error {
	body, err := json.Marshal(map[string]any{
		"spec": map[string]any{"hard": quotaHard(tier)},
	})
	if err != nil {
		return fmt.Errorf("encoding quota patch: %w", err)
	}
	_, err = c.Clientset.CoreV1().ResourceQuotas(ns).Patch(ctx, quotaName, types.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patching resource quota in %s: %w", ns, err)
	}
	return nil
}
