package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentallab/labdesk/internal/platform/auth"
)

// AuditEntry records who changed what in the lab workflow.
type AuditEntry struct {
	UserID     string
	UserRole   string
	Resource   string
	ResourceID string
	Action     string // create, update, delete
	Route      string
	Method     string
	RemoteIP   string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// Audit emits one structured log line per mutating /api/v1 request, after the
// handler ran so the outcome is known. Reads are not audited.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := httpMethodToAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				UserID:     auth.UserIDFromContext(req.Context()),
				UserRole:   string(auth.RoleFromContext(req.Context())),
				Action:     action,
				Route:      c.Path(),
				Method:     req.Method,
				RemoteIP:   c.RealIP(),
				StatusCode: responseStatus(c, err),
			}
			entry.Resource, entry.ResourceID = extractResource(req.URL.Path)
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("user_role", entry.UserRole).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("route", entry.Route).
				Str("remote_ip", entry.RemoteIP).
				Int("status", entry.StatusCode).
				Msg("change")

			return err
		}
	}
}

// httpMethodToAction maps mutating methods to audit actions; reads map to "".
func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return ""
	}
}

// extractResource splits /api/v1/<resource>/<id>/... into resource and id.
func extractResource(path string) (string, string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	resource, id := "unknown", ""
	if len(segments) > 0 && segments[0] != "" {
		resource = segments[0]
	}
	if len(segments) > 1 {
		id = segments[1]
	}
	return resource, id
}
