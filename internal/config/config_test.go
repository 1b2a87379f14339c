package config

import "testing"

func TestLoadOrchestratorDefaults(t *testing.T) {
	cfg, err := LoadOrchestrator()
	if err != nil {
		t.Fatalf("LoadOrchestrator() error: %v", err)
	}

	tests := []struct {
		name  string
		check bool
	}{
		{"default job queue key", cfg.JobQueueKey == "operator:jobs"},
		{"default health port", cfg.HealthPort == 8081},
		{"default pod ready timeout", cfg.PodReadyTimeout == 60},
		{"default unhealthy threshold", cfg.UnhealthyAfter == 3},
		{"default log level is info", cfg.LogLevel == "info"},
		{"default log format is json", cfg.LogFormat == "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check {
				t.Errorf("unexpected default for %s", tt.name)
			}
		})
	}
}

func TestLoadBillingDefaults(t *testing.T) {
	cfg, err := LoadBilling()
	if err != nil {
		t.Fatalf("LoadBilling() error: %v", err)
	}
	if got := cfg.ListenAddr(); got != "0.0.0.0:8082" {
		t.Errorf("ListenAddr() = %q, want 0.0.0.0:8082", got)
	}
}

func TestLoadProxyDefaults(t *testing.T) {
	cfg, err := LoadProxy()
	if err != nil {
		t.Fatalf("LoadProxy() error: %v", err)
	}
	if got := cfg.ListenAddr(); got != "0.0.0.0:8080" {
		t.Errorf("ListenAddr() = %q, want 0.0.0.0:8080", got)
	}
	if cfg.RateLimitCapacity != 20 {
		t.Errorf("RateLimitCapacity = %d, want 20", cfg.RateLimitCapacity)
	}
	if cfg.UsageStreamKey != "usage:events" {
		t.Errorf("UsageStreamKey = %q, want usage:events", cfg.UsageStreamKey)
	}
}
