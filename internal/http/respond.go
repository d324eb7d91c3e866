package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ccm-platform/carbon-admin/internal/command"
	"github.com/ccm-platform/carbon-admin/internal/service/admin"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, admin.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, admin.ErrInvalidState):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, command.ErrGatewayUnavailable):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "target service unavailable"})
	default:
		log.Errorf("admin operation failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func pathID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}
