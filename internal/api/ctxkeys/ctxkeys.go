// Package ctxkeys holds the context keys shared by the api, middleware and
// handlers packages. It is a leaf package to avoid import cycles.
package ctxkeys

import "context"

// Key is the named type for all API context keys.
// Using a named type avoids collisions with string keys from other packages
// at runtime (context.Value compares both type and value).
type Key string

const (
	// AgencyID is the caller's tenant, injected by AuthMiddleware from the stored user.
	AgencyID Key = "agency_id"

	// UserID is the authenticated user, injected by AuthMiddleware.
	UserID Key = "user_id"

	// Role is the caller's role (AGENCY_OWNER, ...), injected by AuthMiddleware.
	Role Key = "role"

	// SubAccountID is set by the sub-account access guard once the caller has
	// been authorized for the {subaccountID} in the path.
	SubAccountID Key = "sub_account_id"
)

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// String returns the value stored under key, or "".
func String(ctx context.Context, key Key) string {
	v, _ := ctx.Value(key).(string)
	return v
}
