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

func listListingsHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := repository.ListingListFilter{
			Status:  model.ListingStatus(strings.ToUpper(c.QueryParam("status"))),
			OwnerID: strings.TrimSpace(c.QueryParam("owner_id")),
			Limit:   queryInt(c, "limit"),
			Offset:  queryInt(c, "offset"),
		}
		rows, err := svc.ListListings(c.Request().Context(), f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"listings": rows})
	}
}

func getListingHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		l, err := svc.GetListing(c.Request().Context(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, l)
	}
}

type flagReq struct {
	FlagType   string `json:"flagType"`
	FlagReason string `json:"flagReason"`
}

func flagListingHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req flagReq
		if err := c.Bind(&req); err != nil || strings.TrimSpace(req.FlagType) == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "flagType required"})
		}

		if err := svc.FlagListing(c.Request().Context(), actor, id, req.FlagType, req.FlagReason); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"id": id, "flagType": req.FlagType})
	}
}

func unflagListingHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		if err := svc.UnflagListing(c.Request().Context(), actor, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"id": id, "unflagged": true})
	}
}

func suspendListingHandler(svc *admin.Service) echo.HandlerFunc {
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

		if err := svc.SuspendListing(c.Request().Context(), actor, id, req.Reason); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"id": id, "action": "suspend"})
	}
}

func reinstateListingHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad id"})
		}
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		if err := svc.ReinstateListing(c.Request().Context(), actor, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"id": id, "action": "reinstate"})
	}
}
