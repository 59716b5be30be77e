// Package middleware holds the HTTP middleware of the JSON API: bearer
// authentication, tenant guards, audit logging, access logs and rate limits.
package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/matiasleandrokruk/agencyhub/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	pkgauth "github.com/matiasleandrokruk/agencyhub/pkg/auth"
)

// UserLookup loads the stored tenant and role of an authenticated user.
type UserLookup interface {
	LookupUser(ctx context.Context, userID string) (access.Identity, error)
}

// AuthMiddleware validates the Bearer JWT token and injects the caller into context.
// Used on all /api/v1/* routes.
//
// Flow:
//  1. Read "Authorization: Bearer <token>" header
//  2. Reject if missing or not Bearer scheme → 401
//  3. Parse + validate JWT → 401 on invalid/expired or unknown role
//  4. Load the user row → 401 when it is gone or moved to another agency
//  5. Inject ctxkeys.UserID, ctxkeys.AgencyID and ctxkeys.Role into context
//  6. Call next handler
//
// The stored role wins over the role claim, so a demotion or removal takes
// effect on the next request instead of at token expiry.
//
// Browsers cannot set headers on a WebSocket upgrade, so upgrade requests may
// pass the token as the access_token query parameter instead.
func AuthMiddleware(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" && isWebSocketUpgrade(r) {
				tokenString = r.URL.Query().Get("access_token")
			}
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}

			claims, err := pkgauth.ParseJWT(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if _, err := access.ParseRole(claims.Role); err != nil || claims.AgencyID == "" || claims.UserID == "" {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			user, err := users.LookupUser(r.Context(), claims.UserID)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && user.AgencyID != claims.AgencyID) {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to load user")
				return
			}

			ctx := r.Context()
			ctx = ctxkeys.WithValue(ctx, ctxkeys.UserID, claims.UserID)
			ctx = ctxkeys.WithValue(ctx, ctxkeys.AgencyID, user.AgencyID)
			ctx = ctxkeys.WithValue(ctx, ctxkeys.Role, string(user.Role))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
// Returns empty string if header is missing, wrong scheme, or token is empty.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	// Must start with "Bearer " (case-sensitive per RFC 7235)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	token := strings.TrimPrefix(header, prefix)
	token = strings.TrimSpace(token)
	return token
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// writeError writes a JSON error body.
// Uses consistent format with writeError in handlers package.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
