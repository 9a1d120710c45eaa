package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/gocredit/internal/adapter/http"
	"github.com/iho/gocredit/internal/adapter/http/handler"
	"github.com/iho/gocredit/internal/adapter/http/middleware"
	"github.com/iho/gocredit/internal/adapter/ledger"
	postgresRepo "github.com/iho/gocredit/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/gocredit/internal/adapter/repository/redis"
	"github.com/iho/gocredit/internal/infrastructure/auth"
	"github.com/iho/gocredit/internal/infrastructure/config"
	"github.com/iho/gocredit/internal/infrastructure/eventpublisher"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
	"github.com/iho/gocredit/internal/infrastructure/scheduler"
	"github.com/iho/gocredit/internal/usecase"
)

const (
	jobRateLimitCleanup  = "rate_limit_cleanup"
	rateLimitIdleTimeout = time.Hour
)

type app struct {
	router    http.Handler
	publisher *eventpublisher.EventPublisher
	scheduler *scheduler.Scheduler
}

func buildApp(cfg *config.Config, log zerolog.Logger, m *metrics.Metrics, pool *pgxpool.Pool, redisClient *goredis.Client) *app {
	// Repositories
	txManager := postgresRepo.NewTxManager(pool)
	retrier := postgresRepo.NewRetrier(retrierConfig(cfg), log)
	facilityRepo := postgresRepo.NewCreditFacilityRepository(pool)
	disbursalRepo := postgresRepo.NewDisbursalRepository(pool)
	obligationRepo := postgresRepo.NewObligationRepository(pool)
	processRepo := postgresRepo.NewApprovalProcessRepository(pool)
	paymentRepo := postgresRepo.NewPaymentRepository(pool)
	governanceRepo := postgresRepo.NewGovernanceRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	auditRepo := postgresRepo.NewAuditRepository(pool)
	historyRepo := postgresRepo.NewHistoryRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()

	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient)
	prices := redisRepo.NewPriceStore(redisClient, cfg.DefaultCollateralPrice)
	ledgerClient := ledger.NewClient(ledgerConfig(cfg), redisRepo.NewCache(redisClient), log, m)

	// Use cases
	authorizer := usecase.NewRoleAuthorizer(auditRepo, log, m)
	approvalUC := usecase.NewApprovalUseCase(txManager, retrier, processRepo, governanceRepo, outboxRepo, authorizer, idGen, log, m)
	facilityUC := usecase.NewCreditFacilityUseCase(
		txManager, retrier, facilityRepo, disbursalRepo, obligationRepo, outboxRepo,
		approvalUC, ledgerClient, prices, authorizer, idGen, facilityLedgerConfig(cfg), log, m,
	)
	disbursalUC := usecase.NewDisbursalUseCase(
		txManager, retrier, facilityRepo, disbursalRepo, obligationRepo, outboxRepo,
		approvalUC, ledgerClient, prices, authorizer, idGen, log, m,
	)
	paymentUC := usecase.NewPaymentUseCase(
		txManager, retrier, facilityRepo, obligationRepo, paymentRepo, outboxRepo,
		prices, authorizer, idGen, log, m,
	)
	obligationUC := usecase.NewObligationUseCase(txManager, retrier, obligationRepo, outboxRepo, authorizer, idGen, log, m)
	historyUC := usecase.NewHistoryUseCase(txManager, outboxRepo, historyRepo, authorizer, log)
	listener := usecase.NewApprovalOutcomeListener(facilityUC, disbursalUC, log)
	postings := usecase.NewLedgerPostingListener(ledgerClient, log, m)

	// Outbox delivery
	publisher := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: outboxRepo,
		Publishers: []eventpublisher.Publisher{eventpublisher.NewLogPublisher(log), postings, listener},
		Logger:     log,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxInterval,
	})

	// HTTP
	rateLimiter := middleware.NewRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitRPS, m)

	routerCfg := httpAdapter.RouterConfig{
		FacilityHandler:  handler.NewFacilityHandler(facilityUC),
		DisbursalHandler: handler.NewDisbursalHandler(disbursalUC),
		PaymentHandler:   handler.NewPaymentHandler(paymentUC),
		ApprovalHandler:  handler.NewApprovalHandler(approvalUC),
		HistoryHandler:   handler.NewHistoryHandler(historyUC),
		HealthHandler: handler.NewHealthHandler(pool, handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})),
		IdempotencyStore: idempotencyStore,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      rateLimiter,
		Metrics:          m,
		Logger:           log,
	}
	if cfg.AuthEnabled {
		routerCfg.TokenVerifier = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	} else {
		log.Warn().Msg("authentication disabled, API requests run as the system user")
	}

	// Background jobs
	sched := scheduler.New(log, m)
	for _, job := range backgroundJobs(cfg, facilityUC, obligationUC, historyUC, rateLimiter) {
		sched.Add(job)
	}

	return &app{
		router:    httpAdapter.NewRouter(routerCfg),
		publisher: publisher,
		scheduler: sched,
	}
}

// facilityJobs is what the facility use case exposes to the scheduler.
type facilityJobs interface {
	scheduler.MaturityProcessor
	scheduler.CollateralRefresher
}

func backgroundJobs(
	cfg *config.Config,
	facilities facilityJobs,
	obligations scheduler.ObligationProcessor,
	history scheduler.HistoryProjector,
	rateLimiter *middleware.RateLimiter,
) []scheduler.Job {
	return []scheduler.Job{
		scheduler.MaturityJob(facilities, cfg.MaturityInterval),
		scheduler.ObligationJob(obligations, cfg.ObligationInterval),
		scheduler.CollateralJob(facilities, cfg.CollateralInterval),
		scheduler.HistoryJob(history, cfg.HistoryInterval, cfg.HistoryBatchSize),
		{
			Name:     jobRateLimitCleanup,
			Interval: rateLimitIdleTimeout / 4,
			Run: func(context.Context) (int, error) {
				return rateLimiter.CleanupLimiters(rateLimitIdleTimeout), nil
			},
		},
	}
}

func retrierConfig(cfg *config.Config) postgresRepo.RetrierConfig {
	return postgresRepo.RetrierConfig{
		MaxRetries:      cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		MaxElapsedTime:  cfg.RetryMaxElapsedTime,
	}
}

func ledgerConfig(cfg *config.Config) ledger.Config {
	return ledger.Config{
		BaseURL:                    cfg.LedgerURL,
		APIToken:                   cfg.LedgerAPIToken,
		Timeout:                    cfg.LedgerTimeout,
		BreakerMaxRequests:         cfg.LedgerBreakerMaxRequests,
		BreakerInterval:            cfg.LedgerBreakerInterval,
		BreakerTimeout:             cfg.LedgerBreakerTimeout,
		BreakerConsecutiveFailures: cfg.LedgerBreakerConsecutiveFailures,
	}
}

func facilityLedgerConfig(cfg *config.Config) usecase.FacilityLedgerConfig {
	return usecase.FacilityLedgerConfig{
		FacilityOmnibusAccountID:   cfg.FacilityOmnibusAccountID,
		CollateralOmnibusAccountID: cfg.CollateralOmnibusAccountID,
		InterestIncomeAccountID:    cfg.InterestIncomeAccountID,
		Currency:                   cfg.FacilityCurrency,
		CollateralCurrency:         cfg.CollateralCurrency,
	}
}
