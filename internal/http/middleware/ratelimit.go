package middleware

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig config for Redis-based RPS limiter.
type RateLimitConfig struct {
	Redis          *redis.Client
	DefaultRPS     int              // sustained per-second rate, fallback if admin_rps not set
	Burst          int              // short-spike ceiling per second; <= rate disables bursting
	KeyPrefix      string           // e.g. "rl:admin:"
	Window         time.Duration    // usually 1s
	RetryAfterHint bool             // set Retry-After header when limited
	Now            func() time.Time // test hook
}

// RateLimitMiddleware applies a fixed-window per-admin rate limit.
// It expects admin_user_id in echo.Context (set by APIKeyMiddleware).
// When Burst exceeds the rate, a second may carry up to Burst requests
// while a minute-sized window still holds the sustained average to the
// rate.
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:admin:"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			v := c.Get("admin_user_id")
			adminID, ok := v.(int64)
			if !ok || adminID <= 0 {
				return next(c)
			}

			rate := cfg.DefaultRPS
			if vv := c.Get("admin_rps"); vv != nil {
				if m, ok := vv.(int); ok && m > 0 {
					rate = m
				}
			}
			if rate <= 0 || cfg.Redis == nil {
				// no limit configured or redis missing (dev): allow
				return next(c)
			}

			secLimit := rate
			if cfg.Burst > secLimit {
				secLimit = cfg.Burst
			}

			now := cfg.Now()
			id := strconv.FormatInt(adminID, 10)

			// fixed-window key: rl:admin:{id}:s:{unix_sec}
			secKey := cfg.KeyPrefix + id + ":s:" + strconv.FormatInt(now.Unix(), 10)

			// INCR and set expiry 2*window (safety)
			pipe := cfg.Redis.Pipeline()
			secCnt := pipe.Incr(c.Request().Context(), secKey)
			pipe.Expire(c.Request().Context(), secKey, cfg.Window*2)

			// bursting above the rate is paid back over a minute
			var minCnt *redis.IntCmd
			if secLimit > rate {
				minKey := cfg.KeyPrefix + id + ":m:" + strconv.FormatInt(now.Unix()/60, 10)
				minCnt = pipe.Incr(c.Request().Context(), minKey)
				pipe.Expire(c.Request().Context(), minKey, 2*time.Minute)
			}

			if _, err := pipe.Exec(c.Request().Context()); err != nil {
				return next(c)
			}

			limited := secCnt.Val() > int64(secLimit)
			if !limited && minCnt != nil {
				limited = minCnt.Val() > int64(rate)*60
			}
			if limited {
				if cfg.RetryAfterHint {
					// seconds until next window
					remain := cfg.Window - time.Duration(now.UnixNano()%int64(cfg.Window))
					if remain > 0 {
						c.Response().Header().Set("Retry-After", strconv.Itoa(int(remain.Round(time.Second)/time.Second)))
					}
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}
			return next(c)
		}
	}
}
