package k8s

import (
	"context"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestNamespaceName(t *testing.T) {
	cases := []struct {
		customerID string
		boxIndex   int
		want       string
	}{
		{"abc123", 0, "customer-abc123"},
		{"abc123", -1, "customer-abc123"},
		{"abc123", 1, "customer-abc123-1"},
		{"abc123", 2, "customer-abc123-2"},
	}
	for _, c := range cases {
		if got := NamespaceName(c.customerID, c.boxIndex); got != c.want {
			t.Errorf("NamespaceName(%q, %d) = %q, want %q", c.customerID, c.boxIndex, got, c.want)
		}
	}
}

func TestEnsureNamespace_IdempotentOnAlreadyExists(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := NewFromClientset(cs)
	ctx := context.Background()

	if err := c.EnsureNamespace(ctx, "customer-1", "cust-1", "starter"); err != nil {
		t.Fatalf("first EnsureNamespace: %v", err)
	}
	if err := c.EnsureNamespace(ctx, "customer-1", "cust-1", "starter"); err != nil {
		t.Fatalf("second EnsureNamespace (already exists): %v", err)
	}
}

func TestDeleteNamespace_IdempotentOnNotFound(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := NewFromClientset(cs)
	ctx := context.Background()

	if err := c.DeleteNamespace(ctx, "customer-never-created"); err != nil {
		t.Errorf("DeleteNamespace on missing namespace: %v", err)
	}
}

func TestScaleDeployment(t *testing.T) {
	ns := "customer-1"
	replicas := int32(1)
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: deploymentName, Namespace: ns},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
	}
	cs := fake.NewSimpleClientset(dep)
	c := NewFromClientset(cs)
	ctx := context.Background()

	if err := c.ScaleDeployment(ctx, ns, 0); err != nil {
		t.Fatalf("ScaleDeployment: %v", err)
	}

	got, err := cs.AppsV1().Deployments(ns).Get(ctx, deploymentName, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Spec.Replicas == nil || *got.Spec.Replicas != 0 {
		t.Errorf("Replicas = %v, want 0", got.Spec.Replicas)
	}
}

func TestReadyReplicas(t *testing.T) {
	ns := "customer-1"
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: deploymentName, Namespace: ns},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: 1},
	}
	cs := fake.NewSimpleClientset(dep)
	c := NewFromClientset(cs)

	ready, err := c.ReadyReplicas(context.Background(), ns)
	if err != nil {
		t.Fatalf("ReadyReplicas: %v", err)
	}
	if ready != 1 {
		t.Errorf("ReadyReplicas = %d, want 1", ready)
	}
}
