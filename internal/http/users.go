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

func listUsersHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := repository.UserListFilter{
			Status:    model.ManagedUserStatus(strings.ToUpper(c.QueryParam("status"))),
			KycStatus: model.KycStatus(strings.ToUpper(c.QueryParam("kyc_status"))),
			Email:     strings.TrimSpace(c.QueryParam("email")),
			Limit:     queryInt(c, "limit"),
			Offset:    queryInt(c, "offset"),
		}
		rows, err := svc.ListUsers(c.Request().Context(), f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"users": rows})
	}
}

func getUserHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		u, err := svc.GetUser(c.Request().Context(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, u)
	}
}

type statusChangeReq struct {
	Reason string `json:"reason"`
}

func userStatusHandler(svc *admin.Service, action string) echo.HandlerFunc {
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

		ctx := c.Request().Context()
		switch action {
		case "suspend":
			err = svc.SuspendUser(ctx, actor, id, req.Reason)
		case "activate":
			err = svc.ActivateUser(ctx, actor, id)
		case "lock":
			err = svc.LockUser(ctx, actor, id, req.Reason)
		case "unlock":
			err = svc.UnlockUser(ctx, actor, id)
		}
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"id": id, "action": action})
	}
}

type profileUpdateReq struct {
	FullName *string `json:"fullName"`
	Phone    *string `json:"phone"`
}

func updateUserProfileHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req profileUpdateReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if err := svc.UpdateUserProfile(c.Request().Context(), actor, id, req.FullName, req.Phone); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"id": id, "updated": true})
	}
}

type kycUpdateReq struct {
	KycStatus string `json:"kycStatus"`
}

func updateUserKycHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req kycUpdateReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		status := model.KycStatus(strings.ToUpper(strings.TrimSpace(req.KycStatus)))
		if !status.Valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid kyc status"})
		}

		if err := svc.UpdateUserKyc(c.Request().Context(), actor, id, status); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"id": id, "kycStatus": status})
	}
}
