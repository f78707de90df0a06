package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/relaymesh/server/internal/account"
	"github.com/relaymesh/server/internal/auth"
	"github.com/relaymesh/server/internal/model"
)

type contextKey string

const (
	accountKey  contextKey = "account"
	deviceIDKey contextKey = "device_id"
)

// AuthMiddleware validates device session tokens, loads the account through
// the account manager, and attaches account and device id to the context.
func AuthMiddleware(jwtService *auth.JWTService, accounts *account.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := jwtService.VerifyToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			acct, err := accounts.GetByID(r.Context(), claims.AccountID)
			if err != nil || acct == nil {
				respondWithError(w, http.StatusUnauthorized, "account not found")
				return
			}
			if _, ok := acct.Device(claims.DeviceID); !ok {
				respondWithError(w, http.StatusUnauthorized, "device not found")
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, acct)
			ctx = context.WithValue(ctx, deviceIDKey, claims.DeviceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccount returns the account attached to the request context.
func GetAccount(ctx context.Context) (*model.Account, bool) {
	a, ok := ctx.Value(accountKey).(*model.Account)
	return a, ok
}

// GetDeviceID extracts the authenticated device id from context.
func GetDeviceID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(deviceIDKey).(int)
	return id, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
