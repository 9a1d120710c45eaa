package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/gocredit/internal/adapter/http/handler"
	"github.com/iho/gocredit/internal/adapter/http/middleware"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
	"github.com/iho/gocredit/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	FacilityHandler  *handler.FacilityHandler
	DisbursalHandler *handler.DisbursalHandler
	PaymentHandler   *handler.PaymentHandler
	ApprovalHandler  *handler.ApprovalHandler
	HistoryHandler   *handler.HistoryHandler
	HealthHandler    *handler.HealthHandler

	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	// TokenVerifier enables bearer authentication on /api/v1. Without it
	// requests run as the system user.
	TokenVerifier middleware.TokenVerifier
	RateLimiter   *middleware.RateLimiter
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Metrics))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.TokenVerifier != nil {
			r.Use(middleware.AuthMiddleware(cfg.TokenVerifier, cfg.Metrics))
		}
		// Keys are scoped per caller, so this runs after authentication.
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.Logger).WithTTL(cfg.IdempotencyTTL).Wrap)
		}

		r.Route("/facilities", func(r chi.Router) {
			r.Post("/", cfg.FacilityHandler.Create)
			r.Get("/", cfg.FacilityHandler.List)
			r.Get("/{id}", cfg.FacilityHandler.Get)
			r.Put("/{id}/collateral", cfg.FacilityHandler.UpdateCollateral)
			r.Post("/{id}/interest", cfg.FacilityHandler.RecordInterest)
			r.Get("/{id}/disbursals", cfg.FacilityHandler.ListDisbursals)
			r.Post("/{id}/disbursals", cfg.DisbursalHandler.Initiate)
			r.Get("/{id}/payments", cfg.PaymentHandler.ListByFacility)
			r.Post("/{id}/payments", cfg.PaymentHandler.Record)
			r.Get("/{id}/history", cfg.HistoryHandler.ListByFacility)
		})

		r.Get("/disbursals/{id}", cfg.DisbursalHandler.Get)
		r.Get("/payments/{id}", cfg.PaymentHandler.Get)

		r.Route("/approval-processes", func(r chi.Router) {
			r.Get("/{id}", cfg.ApprovalHandler.GetProcess)
			r.Post("/{id}/votes", cfg.ApprovalHandler.Vote)
		})

		r.Route("/committees", func(r chi.Router) {
			r.Post("/", cfg.ApprovalHandler.CreateCommittee)
			r.Get("/", cfg.ApprovalHandler.ListCommittees)
			r.Get("/{id}", cfg.ApprovalHandler.GetCommittee)
			r.Post("/{id}/members", cfg.ApprovalHandler.AddCommitteeMember)
			r.Delete("/{id}/members/{userID}", cfg.ApprovalHandler.RemoveCommitteeMember)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Put("/", cfg.ApprovalHandler.SetPolicy)
			r.Get("/", cfg.ApprovalHandler.ListPolicies)
		})

		r.Put("/collateral-price", cfg.FacilityHandler.SetCollateralPrice)
	})

	return r
}
