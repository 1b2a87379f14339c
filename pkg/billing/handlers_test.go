package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/cloud/internal/store"
)

func TestPeriodFromUnix(t *testing.T) {
	ts := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC).Unix()
	got := periodFromUnix(ts)
	if got != "2026-03" {
		t.Errorf("periodFromUnix = %q, want %q", got, "2026-03")
	}
}

func TestParseInt64(t *testing.T) {
	got, err := parseInt64("42")
	if err != nil {
		t.Fatalf("parseInt64: %v", err)
	}
	if got != 42 {
		t.Errorf("parseInt64 = %d, want 42", got)
	}

	if _, err := parseInt64("not a number"); err == nil {
		t.Error("expected an error for a non-numeric string")
	}
}

func TestFirstBoxWithStatus(t *testing.T) {
	suspended := uuid.New()
	running := uuid.New()
	boxes := []store.Box{
		{ID: running, Status: store.BoxStatusRunning},
		{ID: suspended, Status: store.BoxStatusSuspended},
	}

	got := firstBoxWithStatus(boxes, store.BoxStatusSuspended)
	if got == nil || *got != suspended {
		t.Errorf("firstBoxWithStatus(suspended) = %v, want %v", got, suspended)
	}

	got = firstBoxWithStatus(boxes, store.BoxStatusRunning, store.BoxStatusUnhealthy)
	if got == nil || *got != running {
		t.Errorf("firstBoxWithStatus(running, unhealthy) = %v, want %v", got, running)
	}

	if got := firstBoxWithStatus(boxes, store.BoxStatusDestroyed); got != nil {
		t.Errorf("firstBoxWithStatus(destroyed) = %v, want nil", got)
	}
}
