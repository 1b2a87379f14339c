package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/cloud/internal/errs"
	"github.com/openclaw/cloud/internal/httpserver"
	"github.com/openclaw/cloud/internal/telemetry"
)

// Server wires the metered proxy's request path onto the shared HTTP
// scaffolding: authenticate, rate-limit, check the monthly cap, forward.
type Server struct {
	*httpserver.Server
	proxy *Proxy
}

func NewServer(base *httpserver.Server, p *Proxy) *Server {
	s := &Server{Server: base, proxy: p}
	p.mountInternalRoutes(base.Router)
	base.Router.Post("/v1/chat/completions", s.handleChatCompletions)
	return s
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := bearerToken(r)
	if !ok {
		telemetry.ProxyRequestsTotal.WithLabelValues("unauthenticated").Inc()
		httpserver.RespondDomainError(w, errs.New(errs.KindAuth, "missing or invalid Authorization header"))
		return
	}

	info, err := s.proxy.authenticateToken(ctx, token)
	if err != nil {
		telemetry.ProxyRequestsTotal.WithLabelValues("unauthenticated").Inc()
		httpserver.RespondDomainError(w, errs.New(errs.KindAuth, "invalid proxy token"))
		return
	}

	allowed, err := s.proxy.checkRateLimit(ctx, info.CustomerID)
	if err != nil {
		s.Logger.Error("checking rate limit", "error", err)
		httpserver.RespondDomainError(w, errs.Wrap(errs.KindInternal, "rate limit check failed", err))
		return
	}
	if !allowed {
		telemetry.ProxyRequestsTotal.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", "1")
		httpserver.RespondDomainError(w, errs.New(errs.KindRateLimited, "rate limit exceeded"))
		return
	}

	customerID, err := uuid.Parse(info.CustomerID)
	if err != nil {
		httpserver.RespondDomainError(w, errs.Wrap(errs.KindInternal, "invalid cached customer id", err))
		return
	}
	limitResult, err := s.proxy.checkLimits(ctx, customerID)
	if err != nil {
		s.Logger.Error("checking usage limits", "error", err)
		httpserver.RespondDomainError(w, errs.Wrap(errs.KindInternal, "usage limit check failed", err))
		return
	}
	if !limitResult.Allowed {
		telemetry.ProxyRequestsTotal.WithLabelValues("limit_exceeded").Inc()
		httpserver.RespondDomainError(w, errs.MonthlyLimitExceeded(limitResult.Used, limitResult.Limit))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		httpserver.RespondDomainError(w, errs.Wrap(errs.KindValidation, "could not read request body", err))
		return
	}

	var reqBody struct {
		Stream bool   `json:"stream"`
		Model  string `json:"model"`
	}
	_ = json.Unmarshal(body, &reqBody)

	if limitResult.Warning {
		w.Header().Set("X-Token-Warning", "90%")
	}

	if reqBody.Stream {
		result, err := s.proxy.forwardStreaming(ctx, body, w)
		if err != nil {
			s.Logger.Error("forwarding streaming request", "error", err)
			telemetry.ProxyRequestsTotal.WithLabelValues("upstream_error").Inc()
			return
		}
		telemetry.ProxyRequestsTotal.WithLabelValues("ok").Inc()
		if result.usage.Model == "" {
			result.usage.Model = reqBody.Model
		}
		go func() {
			pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			s.proxy.pushUsageEvent(pushCtx, info.CustomerID, info.BoxID, result.usage)
		}()
		return
	}

	resp, usage, err := s.proxy.forwardNonStreaming(ctx, body)
	if err != nil {
		s.Logger.Error("forwarding request", "error", err)
		telemetry.ProxyRequestsTotal.WithLabelValues("upstream_error").Inc()
		httpserver.RespondDomainError(w, errs.Wrap(errs.KindUpstream, "upstream API error", err))
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)

	telemetry.ProxyRequestsTotal.WithLabelValues("ok").Inc()
	if usage.Model == "" {
		usage.Model = reqBody.Model
	}
	s.proxy.pushUsageEvent(ctx, info.CustomerID, info.BoxID, usage)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}
