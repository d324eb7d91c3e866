package http

import (
	"net/http"

	"github.com/ccm-platform/carbon-admin/internal/http/middleware"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

func outboxStatsHandler(outbox repository.OutboxRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := outbox.Stats(c.Request().Context())
		if err != nil {
			log.Errorf("outbox stats: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return c.JSON(http.StatusOK, stats)
	}
}

// retryOutboxHandler requeues terminally FAILED events. Superadmin only:
// replays re-deliver events downstream.
func retryOutboxHandler(outbox repository.OutboxRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := middleware.ActorFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		n, err := outbox.RetryFailed(c.Request().Context())
		if err != nil {
			log.Errorf("outbox retry: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}

		log.Infof("outbox retry requested by %s: %d events requeued", actor.Username, n)
		return c.JSON(http.StatusOK, map[string]any{"requeued": n})
	}
}
