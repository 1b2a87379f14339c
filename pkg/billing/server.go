package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/openclaw/cloud/internal/httpserver"
)

// Server exposes the Stripe webhook endpoint on top of the shared HTTP
// scaffolding.
type Server struct {
	*httpserver.Server
	reducer       *Reducer
	webhookSecret string
}

// NewServer mounts the webhook route on base.Router and returns the wrapper.
func NewServer(base *httpserver.Server, reducer *Reducer, webhookSecret string) *Server {
	s := &Server{Server: base, reducer: reducer, webhookSecret: webhookSecret}
	base.Router.Post("/webhooks/stripe", s.handleWebhook)
	return s
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "could not read request body")
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if err := verifySignature(body, sig, s.webhookSecret); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	}

	ignored, err := s.reducer.HandleEvent(r.Context(), body)
	if err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
		s.Logger.Error("handling billing event", "error", err, "request_id", httpserver.RequestIDFromContext(r.Context()))
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	status := "ok"
	if ignored {
		status = "ignored"
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": status})
}
