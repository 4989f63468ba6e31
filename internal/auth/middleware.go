package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cashplan/cashplan/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware resolves the caller from the API key. Identities without a
// positive user id are rejected so that every request reaching the assistant
// is bound to one user.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				writeUnauthorized(w, r, "missing API key")
				return
			}

			traceID := observability.TraceIDFromContext(r.Context())
			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				logger.WarnContext(r.Context(), "authentication failed",
					slog.String("trace_id", traceID),
					slog.String("path", r.URL.Path),
					slog.String("key_fingerprint", keyFingerprint(apiKey)),
				)
				writeUnauthorized(w, r, "invalid API key")
				return
			}
			if !identity.Valid() {
				logger.WarnContext(r.Context(), "api key is not bound to a user",
					slog.String("trace_id", traceID),
					slog.Int64("user_id", identity.UserID),
					slog.String("key_fingerprint", keyFingerprint(apiKey)),
				)
				writeUnauthorized(w, r, "API key is not bound to a user")
				return
			}

			logger.DebugContext(r.Context(), "caller authenticated",
				slog.String("trace_id", traceID),
				slog.Int64("user_id", identity.UserID),
			)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// keyFingerprint identifies a key in logs without revealing it.
func keyFingerprint(apiKey string) string {
	return HashAPIKey(apiKey)[:12]
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return ""
	}
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authorization, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
