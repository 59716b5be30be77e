package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/agencyhub/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
)

// SubAccountParam is the chi URL parameter holding the sub-account id.
const SubAccountParam = "subaccountID"

// SubAccountChecker is satisfied by *access.Checker.
type SubAccountChecker interface {
	SubAccountInAgency(ctx context.Context, agencyID, subAccountID string) error
	CanAccessSubAccount(ctx context.Context, userID string, role access.Role, subAccountID string) (bool, error)
}

// SubAccountGuard authorizes /subaccounts/{subaccountID}/* routes.
//
// Flow:
//  1. The sub-account must belong to the caller's agency → 404 otherwise
//  2. Sub-account roles need a granted permission row → 403
//  3. Guests may only read → 403 on any other method
//  4. Inject ctxkeys.SubAccountID
func SubAccountGuard(checker SubAccountChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			subAccountID := chi.URLParam(r, SubAccountParam)
			agencyID := ctxkeys.String(ctx, ctxkeys.AgencyID)
			role := access.Role(ctxkeys.String(ctx, ctxkeys.Role))

			if err := checker.SubAccountInAgency(ctx, agencyID, subAccountID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					writeError(w, http.StatusNotFound, "sub-account not found")
					return
				}
				writeError(w, http.StatusInternalServerError, "failed to load sub-account")
				return
			}

			ok, err := checker.CanAccessSubAccount(ctx, ctxkeys.String(ctx, ctxkeys.UserID), role, subAccountID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to check access")
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, "no access to this sub-account")
				return
			}
			if !role.CanWrite() && !isReadOnly(r.Method) {
				writeError(w, http.StatusForbidden, "read-only access")
				return
			}

			ctx = ctxkeys.WithValue(ctx, ctxkeys.SubAccountID, subAccountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAgencyManager lets only owners and admins through.
func RequireAgencyManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := access.Role(ctxkeys.String(r.Context(), ctxkeys.Role))
		if !role.CanManageAgency() {
			writeError(w, http.StatusForbidden, "agency owner or admin required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isReadOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
