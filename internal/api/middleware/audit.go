package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/api/ctxkeys"
	domainaudit "github.com/matiasleandrokruk/agencyhub/internal/domain/audit"
)

// AuditLogger is the minimal contract used by AuditMiddleware.
// domainaudit.AuditService satisfies this interface.
type AuditLogger interface {
	LogWithDetails(
		ctx context.Context,
		agencyID string,
		actorID string,
		actorType domainaudit.ActorType,
		action string,
		entityType *string,
		entityID *string,
		details *domainaudit.EventDetails,
		outcome domainaudit.Outcome,
	) error
}

// AuditMiddleware logs protected HTTP requests into audit_event.
// Expected order in router: AuthMiddleware -> AuditMiddleware -> handlers.
func AuditMiddleware(logger AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger == nil {
				next.ServeHTTP(w, r)
				return
			}

			agencyID, ok := getStringContext(r.Context(), ctxkeys.AgencyID)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := getStringContext(r.Context(), ctxkeys.UserID)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			action, entityType, entityID := actionFromRequest(r.Method, r.URL.Path)
			_ = logger.LogWithDetails(
				r.Context(),
				agencyID,
				userID,
				domainaudit.ActorTypeUser,
				action,
				entityType,
				entityID,
				&domainaudit.EventDetails{Metadata: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status_code": recorder.statusCode,
					"duration_ms": time.Since(start).Milliseconds(),
				}},
				outcomeFromStatus(recorder.statusCode),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the notification stream upgrade through the recorder.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func getStringContext(ctx context.Context, key ctxkeys.Key) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func outcomeFromStatus(statusCode int) domainaudit.Outcome {
	switch {
	case statusCode >= 100 && statusCode < 300:
		return domainaudit.OutcomeSuccess
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domainaudit.OutcomeDenied
	default:
		return domainaudit.OutcomeError
	}
}

// entityMap maps collection path segments to audit entity types.
var entityMap = map[string]string{
	"subaccounts":   "subaccount",
	"pipelines":     "pipeline",
	"lanes":         "lane",
	"tickets":       "ticket",
	"tags":          "tag",
	"funnels":       "funnel",
	"pages":         "page",
	"contacts":      "contact",
	"media":         "media",
	"team":          "member",
	"invitations":   "invitation",
	"notifications": "notification",
	"plans":         "plan",
	"subscriptions": "subscription",
}

// singletons are resources addressed without an id.
var singletons = map[string]string{
	"agency":       "agency",
	"me":           "profile",
	"dashboard":    "dashboard",
	"launchpad":    "launchpad",
	"board":        "board",
	"billing":      "billing",
	"subscription": "subscription",
	"customer":     "customer",
	"checkout":     "checkout",
	"audit":        "audit",
}

// verbs are trailing segments naming an operation on the preceding entity.
var verbs = map[string]bool{
	"reorder":     true,
	"move":        true,
	"products":    true,
	"role":        true,
	"permissions": true,
	"stream":      true,
}

// actionFromRequest walks /api/v1 paths as collection/id pairs and names the
// innermost entity. "/subaccounts/s1/lanes/l1/tickets" is list_ticket with no
// id; "/subaccounts/s1/tickets/t1/move" is move_ticket on t1.
func actionFromRequest(method, path string) (string, *string, *string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 3 || segments[0] != "api" || segments[1] != "v1" {
		return strings.ToLower(method) + "_request", nil, nil
	}

	var entityType, entityID, verb string
	singleton := false
	for i := 2; i < len(segments); i++ {
		seg := segments[i]
		if entity := singularEntity(seg); entity != "" {
			entityType, entityID, verb, singleton = entity, "", "", false
			if i+1 < len(segments) && !isKnownSegment(segments[i+1]) {
				entityID = segments[i+1]
				i++
			}
			continue
		}
		if entity, ok := singletons[seg]; ok {
			entityType, entityID, verb, singleton = entity, "", "", true
			continue
		}
		if verbs[seg] {
			verb = seg
		}
	}

	if entityType == "" {
		return strings.ToLower(method) + "_request", nil, nil
	}

	var id *string
	if entityID != "" {
		id = strPtr(entityID)
	}
	switch {
	case verb != "":
		return verb + "_" + entityType, strPtr(entityType), id
	case entityID != "" || singleton:
		return actionForEntity(method, entityType), strPtr(entityType), id
	default:
		return actionForCollection(method, entityType), strPtr(entityType), nil
	}
}

func isKnownSegment(seg string) bool {
	_, single := singletons[seg]
	return singularEntity(seg) != "" || single || verbs[seg]
}

func singularEntity(entity string) string {
	return entityMap[entity]
}

func actionForCollection(method, entity string) string {
	if method == http.MethodPost {
		return "create_" + entity
	}
	if method == http.MethodGet {
		return "list_" + entity
	}
	return strings.ToLower(method) + "_" + entity
}

func actionForEntity(method, entity string) string {
	if method == http.MethodGet {
		return "get_" + entity
	}
	if method == http.MethodPut || method == http.MethodPatch {
		return "update_" + entity
	}
	if method == http.MethodDelete {
		return "delete_" + entity
	}
	if method == http.MethodPost {
		return "create_" + entity
	}
	return strings.ToLower(method) + "_" + entity
}

func strPtr(v string) *string {
	return &v
}
