package errs

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(KindAuth, "bad token")
	if err.Kind != KindAuth {
		t.Errorf("Kind = %q, want %q", err.Kind, KindAuth)
	}
	if err.Error() != "auth: bad token" {
		t.Errorf("Error() = %q, want %q", err.Error(), "auth: bad token")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstream, "calling provider", cause)

	if !errors.Is(err, cause) {
		t.Error("expected Wrap to preserve the cause for errors.Is")
	}
	want := "upstream: calling provider: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestMonthlyLimitExceeded(t *testing.T) {
	err := MonthlyLimitExceeded(950, 1000)

	if err.Kind != KindMonthlyLimitExceeded {
		t.Errorf("Kind = %q, want %q", err.Kind, KindMonthlyLimitExceeded)
	}
	if err.Fields["used"] != int64(950) {
		t.Errorf("Fields[used] = %v, want 950", err.Fields["used"])
	}
	if err.Fields["limit"] != int64(1000) {
		t.Errorf("Fields[limit] = %v, want 1000", err.Fields["limit"])
	}
}

func TestAs(t *testing.T) {
	wrapped := error(New(KindNotFound, "no such customer"))

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find a *Error in the chain")
	}
	if got.Kind != KindNotFound {
		t.Errorf("Kind = %q, want %q", got.Kind, KindNotFound)
	}

	if _, ok := As(errors.New("plain error")); ok {
		t.Error("expected As to report false for a non-*Error")
	}
}
