package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

const readinessTimeout = 5 * time.Second

// HealthHandler serves liveness and readiness probes. A nil dependency is
// reported as disabled.
type HealthHandler struct {
	deps    map[string]Pinger
	timeout time.Duration
}

func NewHealthHandler(postgres, redis Pinger) *HealthHandler {
	return &HealthHandler{
		deps:    map[string]Pinger{"postgres": postgres, "redis": redis},
		timeout: readinessTimeout,
	}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness pings every dependency in parallel and answers 503 when any of
// them fails.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var mu sync.Mutex
	body := map[string]string{"status": "ready"}
	report := func(name, status string) {
		mu.Lock()
		body[name] = status
		mu.Unlock()
	}

	var g errgroup.Group
	for name, dep := range h.deps {
		if dep == nil {
			report(name, "disabled")
			continue
		}
		g.Go(func() error {
			if err := dep.Ping(ctx); err != nil {
				report(name, "unhealthy: "+err.Error())
				return err
			}
			report(name, "ok")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		body["status"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
