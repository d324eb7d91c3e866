package http

import (
	"net/http"
	"strings"

	"github.com/ccm-platform/carbon-admin/internal/http/middleware"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/ccm-platform/carbon-admin/internal/service/admin"
	"github.com/labstack/echo/v4"
)

func listTransactionsHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := repository.TransactionListFilter{
			Status: model.TransactionStatus(strings.ToUpper(c.QueryParam("status"))),
			UserID: strings.TrimSpace(c.QueryParam("user_id")),
			Limit:  queryInt(c, "limit"),
			Offset: queryInt(c, "offset"),
		}
		rows, err := svc.ListTransactions(c.Request().Context(), f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"transactions": rows})
	}
}

func getTransactionHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		code := strings.TrimSpace(c.Param("code"))
		if code == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad code"})
		}
		t, err := svc.GetTransaction(c.Request().Context(), code)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

type disputeReq struct {
	Reason *string `json:"reason"` // null clears the dispute
}

func setTransactionDisputeHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		code := strings.TrimSpace(c.Param("code"))
		if code == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad code"})
		}
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req disputeReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if err := svc.SetTransactionDispute(c.Request().Context(), actor, code, req.Reason); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"code": code, "updated": true})
	}
}
