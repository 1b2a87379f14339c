package orchestrator

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/openclaw/cloud/internal/k8s"
	"github.com/openclaw/cloud/internal/store"
)

func TestNew_RegistersEveryJobType(t *testing.T) {
	o := New(nil, nil, k8s.NewFromClientset(nil), slog.Default(), Config{}, "operator:jobs")

	// Every queue-dispatched job type; health_check runs from
	// RunHealthCheckLoop and has no queue handler.
	want := []string{
		store.JobTypeProvision,
		store.JobTypeUpdate,
		store.JobTypeUpdateConnections,
		store.JobTypeResize,
		store.JobTypeSuspend,
		store.JobTypeReactivate,
		store.JobTypeDestroy,
	}
	for _, jobType := range want {
		if _, ok := o.handlers[jobType]; !ok {
			t.Errorf("no handler registered for job type %q", jobType)
		}
	}
}

func TestNsFor(t *testing.T) {
	if got := nsFor("cust-1"); got != "customer-cust-1" {
		t.Errorf("nsFor = %q, want %q", got, "customer-cust-1")
	}
}

func TestConnectionsEnvelope(t *testing.T) {
	conns := []store.CustomerConnection{
		{Provider: "telegram", Kind: "native"},
		{Provider: "linear", Kind: "mcp"},
	}

	env := connectionsEnvelope("cust-1", conns)
	if env["customer_id"] != "cust-1" {
		t.Errorf("customer_id = %v, want cust-1", env["customer_id"])
	}

	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		CustomerID  string `json:"customer_id"`
		Connections []struct {
			Provider string `json:"provider"`
			Kind     string `json:"kind"`
		} `json:"connections"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Connections) != 2 {
		t.Fatalf("len(Connections) = %d, want 2", len(decoded.Connections))
	}
	if decoded.Connections[0].Provider != "telegram" {
		t.Errorf("Connections[0].Provider = %q, want telegram", decoded.Connections[0].Provider)
	}
}
