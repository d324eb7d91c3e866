package http

import (
	"net/http"
	"strings"

	"github.com/ccm-platform/carbon-admin/internal/http/middleware"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/ccm-platform/carbon-admin/internal/service/admin"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func listWalletTransactionsHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := repository.WalletTxListFilter{
			Status: model.WalletTxStatus(strings.ToUpper(c.QueryParam("status"))),
			UserID: strings.TrimSpace(c.QueryParam("user_id")),
			Limit:  queryInt(c, "limit"),
			Offset: queryInt(c, "offset"),
		}
		rows, err := svc.ListWalletTransactions(c.Request().Context(), f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"walletTransactions": rows})
	}
}

func getWalletTransactionHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		t, err := svc.GetWalletTransaction(c.Request().Context(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func reverseWalletTransactionHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req statusChangeReq
		_ = c.Bind(&req)

		if err := svc.ReverseWalletTransaction(c.Request().Context(), actor, id, req.Reason); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"id": id, "action": "reverse"})
	}
}

func confirmWalletTransactionHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		if err := svc.ConfirmWalletTransaction(c.Request().Context(), actor, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"id": id, "action": "confirm"})
	}
}

type walletAdjustReq struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func adjustWalletHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req walletAdjustReq
		if err := c.Bind(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if err := svc.AdjustWalletBalance(c.Request().Context(), actor, req.UserID, req.Amount, req.Reason); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusAccepted, map[string]any{"userId": req.UserID, "amount": req.Amount})
	}
}
