package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/labstack/echo/v4"
)

// Audit reads come from MySQL (source of truth). The reports variant
// serves from the ClickHouse mirror for heavy operator queries.

func listAuditLogsHandler(svc *audit.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := repository.AuditListFilter{
			ActionName:   strings.TrimSpace(c.QueryParam("action")),
			ResourceType: strings.TrimSpace(c.QueryParam("resource_type")),
			ResourceID:   strings.TrimSpace(c.QueryParam("resource_id")),
			Limit:        queryInt(c, "limit"),
			Offset:       queryInt(c, "offset"),
		}
		if v := c.QueryParam("admin_user_id"); v != "" {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				f.AdminUserID = &id
			}
		}
		if v := c.QueryParam("from"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				f.From = &t
			}
		}
		if v := c.QueryParam("to"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				f.To = &t
			}
		}

		rows, err := svc.List(c.Request().Context(), f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"auditLogs": rows})
	}
}

func auditReportHandler(ch repository.CHAuditRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		rows, err := ch.ListByAction(c.Request().Context(),
			strings.TrimSpace(c.QueryParam("action")),
			queryInt(c, "limit"), queryInt(c, "offset"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"auditLogs": rows})
	}
}
