package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"astroshare/equipment-service/pkg/auth"
	"astroshare/equipment-service/pkg/logger"
)

type contextKey string

// RequestIDKey holds the per-request correlation id
const RequestIDKey contextKey = "request_id"

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns a request id, honoring one supplied by the
// gateway in front of this service
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := contextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func contextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext returns the request id, empty when absent
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// AuthMiddleware resolves the bearer token into a user context. With
// required set, requests without a valid token get 401; otherwise they
// proceed anonymously.
type AuthMiddleware struct {
	validator auth.TokenValidator
	log       *logger.Logger
}

func NewAuthMiddleware(validator auth.TokenValidator, log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, log: log}
}

func (m *AuthMiddleware) Required(next http.Handler) http.Handler {
	return m.handle(next, true)
}

func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return m.handle(next, false)
}

func (m *AuthMiddleware) handle(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if required {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.validator.ValidateToken(r.Context(), token)
		if err != nil {
			m.log.WithField("error", err.Error()).Debug("Token validation failed")
			if required {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
