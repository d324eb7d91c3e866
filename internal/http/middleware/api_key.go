package middleware

import (
	"net/http"
	"strings"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	echo "github.com/labstack/echo/v4"
)

const RoleSuperadmin = "superadmin"

// ActorFromCtx extracts the authenticated admin identity set by
// APIKeyMiddleware, plus request context for the audit trail.
func ActorFromCtx(c echo.Context) (audit.Actor, bool) {
	v := c.Get("admin_user_id")
	id, ok := v.(int64)
	if !ok {
		return audit.Actor{}, false
	}

	actor := audit.Actor{AdminUserID: &id}
	if name, ok := c.Get("admin_username").(string); ok {
		actor.Username = name
	}
	if ip := c.RealIP(); ip != "" {
		actor.IP = &ip
	}
	if tid, ok := c.Get("trace_id").(string); ok {
		actor.TraceID = tid
	}
	return actor, true
}

// RoleFromCtx returns the authenticated admin's role.
func RoleFromCtx(c echo.Context) string {
	r, _ := c.Get("admin_role").(string)
	return r
}

// APIKeyMiddleware authenticates requests using the X-API-Key header
// against admin_users and stamps identity plus a trace ID into context.
func APIKeyMiddleware(admins repository.AdminUsersRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			a, err := admins.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if a == nil || a.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}

			c.Set("admin_user_id", a.ID)
			c.Set("admin_username", a.Username)
			c.Set("admin_role", a.Role)
			if a.RateLimitRPS != nil {
				c.Set("admin_rps", *a.RateLimitRPS)
			}

			tid := strings.TrimSpace(c.Request().Header.Get("X-Trace-Id"))
			if tid == "" {
				tid = audit.NewTraceID()
			}
			c.Set("trace_id", tid)
			c.Response().Header().Set("X-Trace-Id", tid)

			return next(c)
		}
	}
}

// RequireRole gates a route on an exact role.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if RoleFromCtx(c) != role {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
