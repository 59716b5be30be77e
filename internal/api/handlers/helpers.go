// Package handlers translates HTTP requests into domain service calls and
// maps domain errors to HTTP status codes.
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/matiasleandrokruk/agencyhub/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	domainauth "github.com/matiasleandrokruk/agencyhub/internal/domain/auth"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/billing"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/crm"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/funnel"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/pipeline"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/tenancy"
	"github.com/matiasleandrokruk/agencyhub/pkg/ordering"
)

const (
	headerContentType = "Content-Type"
	mimeJSON          = "application/json"

	errInvalidBody    = "invalid request body"
	errFailedToEncode = "failed to encode response"

	defaultPaginationLimit = 25
	maxPaginationLimit     = 100
)

// Meta contains pagination metadata.
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListResponse is the envelope of every paginated list.
type ListResponse[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

// DataResponse wraps unpaginated collections.
type DataResponse[T any] struct {
	Data []T `json:"data"`
}

// paginationParams holds parsed limit and offset values.
type paginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams extracts and validates limit/offset from URL query params.
func parsePaginationParams(r *http.Request) paginationParams {
	limit := defaultPaginationLimit
	offset := 0

	if lim, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && lim > 0 {
		if lim > maxPaginationLimit {
			lim = maxPaginationLimit
		}
		limit = lim
	}

	if off, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && off >= 0 {
		offset = off
	}

	return paginationParams{Limit: limit, Offset: offset}
}

// scopeFromContext builds the caller's scope from the values injected by
// AuthMiddleware and, under /subaccounts/{subaccountID}, SubAccountGuard.
func scopeFromContext(ctx context.Context) access.Scope {
	return access.Scope{
		AgencyID:     ctxkeys.String(ctx, ctxkeys.AgencyID),
		SubAccountID: ctxkeys.String(ctx, ctxkeys.SubAccountID),
		UserID:       ctxkeys.String(ctx, ctxkeys.UserID),
		Role:         access.Role(ctxkeys.String(ctx, ctxkeys.Role)),
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		http.Error(w, `{"error":"failed to encode error response"}`, http.StatusInternalServerError)
	}
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// errorStatuses maps domain sentinels to HTTP codes. First match wins.
var errorStatuses = []struct {
	err    error
	status int
}{
	{access.ErrForbidden, http.StatusForbidden},
	{sql.ErrNoRows, http.StatusNotFound},
	{ordering.ErrOrderConflict, http.StatusConflict},
	{ordering.ErrInvalidMove, http.StatusBadRequest},
	{tenancy.ErrQuotaExceeded, http.StatusPaymentRequired},
	{tenancy.ErrDuplicate, http.StatusConflict},
	{tenancy.ErrAlreadyMember, http.StatusConflict},
	{tenancy.ErrOwnerProtected, http.StatusConflict},
	{tenancy.ErrNotPending, http.StatusConflict},
	{pipeline.ErrTagExists, http.StatusConflict},
	{funnel.ErrSubdomainTaken, http.StatusConflict},
	{funnel.ErrPathTaken, http.StatusConflict},
	{crm.ErrContactExists, http.StatusConflict},
	{crm.ErrMediaLinkExists, http.StatusConflict},
	{domainauth.ErrEmailAlreadyExists, http.StatusConflict},
	{domainauth.ErrInvalidCredentials, http.StatusUnauthorized},
	{pipeline.ErrInvalidInput, http.StatusBadRequest},
	{funnel.ErrInvalidInput, http.StatusBadRequest},
	{access.ErrUnknownRole, http.StatusBadRequest},
	{billing.ErrInvalidCheckout, http.StatusBadRequest},
	{billing.ErrInvalidSignature, http.StatusBadRequest},
	{billing.ErrInvalidPayload, http.StatusBadRequest},
	{billing.ErrWebhookNotConfigured, http.StatusBadRequest},
	{billing.ErrSubscriptionUnsupported, http.StatusNotImplemented},
	{billing.ErrGatewayNotConfigured, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeServiceError answers with the status mapped from err. Client errors
// carry the error text; anything else reports "failed to <action>".
func writeServiceError(w http.ResponseWriter, err error, action string) {
	status := statusFor(err)
	switch {
	case status == http.StatusNotFound:
		writeError(w, status, "not found")
	case status >= http.StatusInternalServerError && status != http.StatusNotImplemented && status != http.StatusServiceUnavailable:
		writeError(w, status, "failed to "+action)
	default:
		writeError(w, status, err.Error())
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := access.ParseRole(fl.Field().String())
		return err == nil
	})
	return v
}

// decodeAndValidate decodes the JSON body into dst and runs its validate tags.
// The returned error is safe to show to the client.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New(errInvalidBody)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return validationMessage(verrs[0])
		}
		return err
	}
	return nil
}

func validationMessage(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "email":
		return fmt.Errorf("%s must be a valid email", fe.Field())
	case "min", "max", "gte", "lte":
		return fmt.Errorf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
