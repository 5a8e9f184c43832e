package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserNameKey contextKey = "user_name"
	UserRoleKey contextKey = "user_role"
)

// Identity headers set by the fronting gateway after it has authenticated the
// caller. This service trusts them as-is.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
)

// Role is the part a user plays in the lab workflow.
type Role string

const (
	RoleDoctor Role = "doctor"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleDoctor || r == RoleAdmin
}

// Identity is the caller as described by the gateway headers.
type Identity struct {
	UserID string
	Name   string
	Role   Role
}

// IdentityMiddleware copies the gateway identity headers into the request
// context. Requests to public paths pass through untouched; any other request
// without a user id or with an unknown role is rejected with 401.
func IdentityMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}
			h := c.Request().Header
			id := Identity{
				UserID: strings.TrimSpace(h.Get(HeaderUserID)),
				Name:   strings.TrimSpace(h.Get(HeaderUserName)),
				Role:   Role(strings.ToLower(strings.TrimSpace(h.Get(HeaderUserRole)))),
			}
			if id.UserID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderUserID+" header")
			}
			if !id.Role.Valid() {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+HeaderUserRole+" header")
			}
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

// DevIdentityMiddleware fills in a default admin identity when the gateway
// headers are absent. Development only.
func DevIdentityMiddleware() echo.MiddlewareFunc {
	strict := IdentityMiddleware()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		checked := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get(HeaderUserID) == "" {
				dev := Identity{UserID: "dev-user", Name: "Dev User", Role: RoleAdmin}
				c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), dev)))
				return next(c)
			}
			return checked(c)
		}
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	ctx = context.WithValue(ctx, UserNameKey, id.Name)
	ctx = context.WithValue(ctx, UserRoleKey, id.Role)
	return ctx
}

func IdentityFromContext(ctx context.Context) Identity {
	return Identity{
		UserID: UserIDFromContext(ctx),
		Name:   UserNameFromContext(ctx),
		Role:   RoleFromContext(ctx),
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func UserNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(UserNameKey).(string)
	return name
}

func RoleFromContext(ctx context.Context) Role {
	role, _ := ctx.Value(UserRoleKey).(Role)
	return role
}
