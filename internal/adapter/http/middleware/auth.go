package middleware

import (
	"net/http"
	"strings"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/auth"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// AuthMiddleware requires a valid bearer token and stores the caller in the
// request context for the use case authorizer.
func AuthMiddleware(verifier TokenVerifier, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, reason := bearerToken(r)
			if reason != "" {
				recordAuthFailure(m, reason)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", reason)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				recordAuthFailure(m, "invalid_token")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			if m != nil {
				m.AuthAttempts.WithLabelValues("success").Inc()
			}

			ctx := domain.ContextWithUser(r.Context(), claims.User())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token, or a failure reason.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing_header"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", "malformed_header"
	}
	return parts[1], ""
}

func recordAuthFailure(m *metrics.Metrics, reason string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues("failure").Inc()
	m.AuthFailures.WithLabelValues(reason).Inc()
}
