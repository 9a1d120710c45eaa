package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
	"github.com/iho/gocredit/internal/usecase"
)

const accountCacheTTL = 24 * time.Hour

// Config holds the external ledger endpoint and breaker settings.
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration

	BreakerMaxRequests         uint32
	BreakerInterval            time.Duration
	BreakerTimeout             time.Duration
	BreakerConsecutiveFailures uint32
}

// Client implements usecase.LedgerClient against the external ledger HTTP API.
// Calls go through a circuit breaker; rejected postings do not trip it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   usecase.Cache
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new Client. cache and m may be nil.
func NewClient(cfg Config, cache usecase.Cache, logger zerolog.Logger, m *metrics.Metrics) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   cache,
		logger:  logger,
		metrics: m,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrLedgerRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("ledger circuit breaker state changed")
			if c.metrics != nil {
				c.metrics.LedgerBreaker.WithLabelValues(name).Set(breakerGauge(to))
			}
		},
	})

	return c
}

type createAccountRequest struct {
	Name                 string `json:"name"`
	Currency             string `json:"currency"`
	AllowNegativeBalance bool   `json:"allow_negative_balance"`
	AllowPositiveBalance bool   `json:"allow_positive_balance"`
}

type accountResponse struct {
	ID string `json:"id"`
}

type transferItem struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type batchTransferRequest struct {
	Transfers []transferItem `json:"transfers"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type transferResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateAccount opens an account keyed by its reference and returns the
// ledger's id for it.
func (c *Client) CreateAccount(ctx context.Context, account domain.NewLedgerAccount) (string, error) {
	cacheKey := "ledger-account:" + account.Reference
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			return string(cached), nil
		}
	}

	req := createAccountRequest{
		Name:                 account.Name,
		Currency:             account.Currency,
		AllowNegativeBalance: account.AllowNegative,
		AllowPositiveBalance: true,
	}

	var resp accountResponse
	if err := c.do(ctx, "create_account", "/api/v1/accounts", account.Reference, req, &resp); err != nil {
		return "", err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, []byte(resp.ID), accountCacheTTL); err != nil {
			c.logger.Warn().Err(err).Str("reference", account.Reference).Msg("failed to cache ledger account")
		}
	}

	return resp.ID, nil
}

// Post submits the transfers of posting as one batch and returns the id of
// its first transfer as the ledger transaction id.
func (c *Client) Post(ctx context.Context, posting domain.LedgerPosting) (string, error) {
	if err := posting.Validate(); err != nil {
		return "", err
	}

	req := batchTransferRequest{
		Transfers: make([]transferItem, len(posting.Transfers)),
		Metadata: map[string]any{
			"reference":   posting.Reference,
			"description": posting.Description,
		},
	}
	for i, t := range posting.Transfers {
		req.Transfers[i] = transferItem{
			FromAccountID: t.FromAccountID,
			ToAccountID:   t.ToAccountID,
			Amount:        t.Amount,
		}
	}

	var resp []transferResponse
	if err := c.do(ctx, "post", "/api/v1/transfers/batch", posting.Reference, req, &resp); err != nil {
		return "", err
	}
	if len(resp) == 0 {
		return "", fmt.Errorf("%w: empty batch response for %s", domain.ErrLedgerRejected, posting.Reference)
	}

	return resp[0].ID, nil
}

func (c *Client) do(ctx context.Context, operation, path, idempotencyKey string, body, out any) error {
	start := time.Now()

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.send(ctx, path, idempotencyKey, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	if c.metrics != nil {
		status := "success"
		switch {
		case errors.Is(err, domain.ErrLedgerRejected):
			status = "rejected"
		case err != nil:
			status = "unavailable"
		}
		c.metrics.LedgerRequests.WithLabelValues(operation, status).Inc()
		c.metrics.LedgerDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		c.logger.Error().
			Err(err).
			Str("operation", operation).
			Str("reference", idempotencyKey).
			Msg("ledger request failed")
	}

	return err
}

func (c *Client) send(ctx context.Context, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrLedgerUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrLedgerUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return fmt.Errorf("%w: status %d: %s", domain.ErrLedgerRejected, resp.StatusCode, e.Error)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrLedgerRejected, err)
	}
	return nil
}

func breakerGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
