package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitFixture(t *testing.T, rps, burst int) (*echo.Echo, echo.MiddlewareFunc) {
	t.Helper()

	s := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rds.Close() })

	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	mw := RateLimitMiddleware(RateLimitConfig{
		Redis:      rds,
		DefaultRPS: rps,
		Burst:      burst,
		Now:        func() time.Time { return fixed },
	})
	return echo.New(), mw
}

func doLimited(t *testing.T, e *echo.Echo, mw echo.MiddlewareFunc, adminID int64) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("admin_user_id", adminID)

	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, h(c))
	return rec.Code
}

func TestRateLimit_BurstAllowsSpikeAboveRate(t *testing.T) {
	e, mw := rateLimitFixture(t, 2, 4)

	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusOK, doLimited(t, e, mw, 7), "request %d within burst", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, doLimited(t, e, mw, 7))
}

func TestRateLimit_MinuteWindowCapsSustainedRate(t *testing.T) {
	// huge burst ceiling: the per-minute window must still enforce
	// rate*60 over the sustained run
	e, mw := rateLimitFixture(t, 1, 100)

	for i := 0; i < 60; i++ {
		require.Equal(t, http.StatusOK, doLimited(t, e, mw, 7), "request %d within minute budget", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, doLimited(t, e, mw, 7))
}

func TestRateLimit_NoBurstFallsBackToRate(t *testing.T) {
	e, mw := rateLimitFixture(t, 2, 0)

	assert.Equal(t, http.StatusOK, doLimited(t, e, mw, 7))
	assert.Equal(t, http.StatusOK, doLimited(t, e, mw, 7))
	assert.Equal(t, http.StatusTooManyRequests, doLimited(t, e, mw, 7))
}

func TestRateLimit_SeparateAdminsSeparateBudgets(t *testing.T) {
	e, mw := rateLimitFixture(t, 1, 0)

	assert.Equal(t, http.StatusOK, doLimited(t, e, mw, 7))
	assert.Equal(t, http.StatusTooManyRequests, doLimited(t, e, mw, 7))
	assert.Equal(t, http.StatusOK, doLimited(t, e, mw, 8))
}
