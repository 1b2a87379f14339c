package k8s

import (
	"context"
	"fmt"

	networkingv1 "k8s.io/api/networking/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const networkPolicyName = "customer-isolation"

func platformPeer(app string) networkingv1.NetworkPolicyPeer {
	return networkingv1.NetworkPolicyPeer{
		NamespaceSelector: &metav1.LabelSelector{
			MatchLabels: map[string]string{"kubernetes.io/metadata.name": "platform"},
		},
		PodSelector: &metav1.LabelSelector{
			MatchLabels: map[string]string{"app": app},
		},
	}
}

func port(p int32) []networkingv1.NetworkPolicyPort {
	v := intstr.FromInt32(p)
	return []networkingv1.NetworkPolicyPort{{Port: &v}}
}

// EnsureNetworkPolicy creates the customer-isolation NetworkPolicy, which
// denies all ingress and restricts egress to the platform services the box
// needs (token proxy, connection broker, browser proxy, API) plus public
// HTTPS (for Telegram) and CoreDNS. 409 is treated as success.
func (c *Client) EnsureNetworkPolicy(ctx context.Context, ns string) error {
	udp := corev1.ProtocolUDP
	dnsPort := port(53)
	dnsPort[0].Protocol = &udp

	_, err := c.Clientset.NetworkingV1().NetworkPolicies(ns).Create(ctx, &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: networkPolicyName},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{},
			PolicyTypes: []networkingv1.PolicyType{networkingv1.PolicyTypeIngress, networkingv1.PolicyTypeEgress},
			Ingress:     []networkingv1.NetworkPolicyIngressRule{},
			Egress: []networkingv1.NetworkPolicyEgressRule{
				{To: []networkingv1.NetworkPolicyPeer{platformPeer("token-proxy")}, Ports: port(8080)},
				{To: []networkingv1.NetworkPolicyPeer{platformPeer("nango-server")}, Ports: port(8080)},
				{To: []networkingv1.NetworkPolicyPeer{platformPeer("browser-proxy")}, Ports: port(9223)},
				{To: []networkingv1.NetworkPolicyPeer{platformPeer("api")}, Ports: port(8000)},
				{
					To: []networkingv1.NetworkPolicyPeer{{
						IPBlock: &networkingv1.IPBlock{
							CIDR:   "0.0.0.0/0",
							Except: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
						},
					}},
					Ports: port(443),
				},
				{Ports: dnsPort},
			},
		},
	}, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("creating network policy in %s: %w", ns, err)
	}
	return nil
}
