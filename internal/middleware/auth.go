package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geniechat/genie/internal/auth"
	"github.com/geniechat/genie/internal/model"
	"github.com/geniechat/genie/internal/repository"
)

// SessionStore caches resolved auth contexts keyed by token digest.
// Implementations must never serve an entry past the token's expiry.
type SessionStore interface {
	GetSession(ctx context.Context, digest string) (*model.AuthContext, error)
	SetSession(ctx context.Context, digest string, auth *model.AuthContext, expiresAt time.Time) error
}

// UserStore resolves users during authentication.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthConfig holds configuration for the session auth middleware.
type AuthConfig struct {
	Logger     *slog.Logger
	Repository UserStore
	Cache      SessionStore
	Secret     string
}

// Auth returns a middleware that authenticates requests with a session
// token. It verifies the token signature and expiry, resolves the user,
// and injects the auth context into the request. Resolution results are
// cached in Redis keyed by token digest.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			// Check cache first
			digest := auth.TokenDigest(token)
			authCtx, _ := cfg.Cache.GetSession(r.Context(), digest)

			if authCtx != nil {
				ctx := auth.ContextWithAuth(r.Context(), authCtx)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// Cache miss - verify signature and expiry, then resolve the user
			claims, err := auth.VerifyToken(cfg.Secret, token)
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, auth.ErrTokenExpired) {
					reason = "token_expired"
				}
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			user, err := cfg.Repository.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					// Valid signature over a user that no longer exists.
					cfg.Logger.Warn("authentication failed",
						slog.String("reason", "user_not_found"),
						slog.String("user_id", claims.UserID),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					writeForbiddenError(w, "USER_NOT_FOUND", "User not found")
					return
				}
				cfg.Logger.Error("database error during auth",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			authCtx = &model.AuthContext{
				UserID: user.ID,
				Email:  user.Email,
			}

			// Cache the result, bounded by the token's own expiry
			_ = cfg.Cache.SetSession(r.Context(), digest, authCtx, time.Unix(claims.ExpiresAt, 0))

			cfg.Logger.Info("authentication successful",
				slog.String("user_id", authCtx.UserID),
				slog.String("ip", r.RemoteAddr),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken extracts the session token from the request.
// Supports both "Authorization: Bearer <token>" and "X-Auth-Token: <token>" headers.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	return r.Header.Get("X-Auth-Token")
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Invalid or missing session token","code":"UNAUTHORIZED"}`))
}

// writeForbiddenError writes a 403 Forbidden response.
func writeForbiddenError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"` + message + `","code":"` + code + `"}`))
}
