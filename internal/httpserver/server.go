package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Pinger is implemented by the dependencies /readyz checks. Both
// *pgxpool.Pool and *redis.Client satisfy a context-aware ping already;
// this just gives the server a uniform shape to hold either.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the common HTTP scaffolding shared by the billing reducer and
// the metered proxy: request logging, metrics, CORS, recovery, and the
// health/metrics endpoints every process exposes the same way. Domain
// routes are mounted on Router by the caller after NewServer returns.
type Server struct {
	Router  *chi.Mux
	Logger  *slog.Logger
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Metrics *prometheus.Registry
}

// NewServer builds the shared middleware stack and health endpoints.
// allowedOrigins may be nil, in which case CORS defaults to no cross-origin
// access — both components here are called machine-to-machine.
func NewServer(logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, allowedOrigins []string) *Server {
	s := &Server{
		Router:  chi.NewRouter(),
		Logger:  logger,
		DB:      db,
		Redis:   rdb,
		Metrics: metricsReg,
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		s.Router.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Stripe-Signature"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
		return
	}
	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
