package proxy

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclaw/cloud/internal/httpserver"
	"github.com/openclaw/cloud/internal/store"
)

// mountInternalRoutes wires the orchestrator-facing token lifecycle
// endpoints: mint, revoke, and usage snapshot. Every route requires the
// shared internal API key, the same machine-to-machine credential the
// orchestrator's token client presents.
func (p *Proxy) mountInternalRoutes(r chi.Router) {
	r.Route("/internal", func(ir chi.Router) {
		ir.Use(p.requireInternalKey)
		ir.Post("/tokens", p.handleCreateToken)
		ir.Delete("/tokens/{token_id}", p.handleRevokeToken)
		ir.Get("/tokens/{customer_id}/usage", p.handleGetUsage)
	})
}

func (p *Proxy) requireInternalKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Internal-Key")
		if p.Cfg.InternalAPIKey == "" || key != p.Cfg.InternalAPIKey {
			httpserver.RespondError(w, http.StatusForbidden, "forbidden", "invalid internal API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createTokenRequest struct {
	CustomerID string `json:"customer_id" validate:"required,uuid"`
	BoxID      string `json:"box_id" validate:"required,uuid"`
}

type createTokenResponse struct {
	TokenID string `json:"token_id"`
	Token   string `json:"token"`
}

func (p *Proxy) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid customer_id")
		return
	}
	boxID, err := uuid.Parse(req.BoxID)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid box_id")
		return
	}

	raw, err := randomToken()
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "generating token")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "hashing token")
		return
	}

	q := store.New(p.Pool)
	token, err := q.CreateProxyToken(r.Context(), store.CreateProxyTokenParams{
		CustomerID: customerID,
		BoxID:      boxID,
		TokenHash:  string(hash),
	})
	if err != nil {
		p.Logger.Error("creating proxy token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "creating token")
		return
	}

	info := tokenInfo{CustomerID: customerID.String(), BoxID: boxID.String()}
	if body, err := json.Marshal(info); err == nil {
		p.Redis.Set(r.Context(), tokenCachePrefix+raw, body, tokenCacheTTL)
	}

	httpserver.Respond(w, http.StatusOK, createTokenResponse{
		TokenID: token.ID.String(),
		Token:   raw,
	})
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (p *Proxy) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(chi.URLParam(r, "token_id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid token_id")
		return
	}

	q := store.New(p.Pool)
	revoked, err := q.RevokeProxyToken(r.Context(), tokenID)
	if err != nil {
		p.Logger.Error("revoking proxy token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "revoking token")
		return
	}
	if !revoked {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "token already revoked or unknown")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "revoked", "token_id": tokenID.String()})
}

type usageSnapshotResponse struct {
	CustomerID  string `json:"customer_id"`
	TokensUsed  int64  `json:"tokens_used"`
	TokensLimit int64  `json:"tokens_limit"`
	Period      string `json:"period"`
}

func (p *Proxy) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "customer_id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid customer_id")
		return
	}

	period := time.Now().UTC().Format("2006-01")
	q := store.New(p.Pool)
	usage, err := q.GetUsageMonthly(r.Context(), customerID, period)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no usage record for this period")
		return
	}

	httpserver.Respond(w, http.StatusOK, usageSnapshotResponse{
		CustomerID:  customerID.String(),
		TokensUsed:  usage.TokensUsed,
		TokensLimit: usage.TokensLimit,
		Period:      period,
	})
}
