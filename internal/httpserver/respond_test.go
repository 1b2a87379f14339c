package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openclaw/cloud/internal/errs"
)

func TestRespondDomainError_DomainKind(t *testing.T) {
	cases := []struct {
		kind errs.Kind
		want int
	}{
		{errs.KindAuth, http.StatusUnauthorized},
		{errs.KindRateLimited, http.StatusTooManyRequests},
		{errs.KindMonthlyLimitExceeded, http.StatusTooManyRequests},
		{errs.KindInvalidState, http.StatusConflict},
		{errs.KindConflict, http.StatusConflict},
		{errs.KindNotFound, http.StatusNotFound},
		{errs.KindValidation, http.StatusBadRequest},
		{errs.KindUpstream, http.StatusBadGateway},
		{errs.KindInternal, http.StatusInternalServerError},
	}

	for _, c := range cases {
		w := httptest.NewRecorder()
		RespondDomainError(w, errs.New(c.kind, "boom"))
		if w.Code != c.want {
			t.Errorf("kind %q: status = %d, want %d", c.kind, w.Code, c.want)
		}

		var body ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("kind %q: decoding body: %v", c.kind, err)
		}
		if body.Error != string(c.kind) {
			t.Errorf("kind %q: body.Error = %q, want %q", c.kind, body.Error, c.kind)
		}
	}
}

func TestRespondDomainError_NonDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	RespondDomainError(w, errors.New("plain error"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error != "internal" {
		t.Errorf("body.Error = %q, want %q", body.Error, "internal")
	}
}

func TestRespondDomainError_CarriesFields(t *testing.T) {
	w := httptest.NewRecorder()
	RespondDomainError(w, errs.MonthlyLimitExceeded(950, 1000))

	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Fields["used"] != float64(950) {
		t.Errorf("Fields[used] = %v, want 950", body.Fields["used"])
	}
	if body.Fields["limit"] != float64(1000) {
		t.Errorf("Fields[limit] = %v, want 1000", body.Fields["limit"])
	}
}
