package middleware

import (
	"bytes"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/fitstack/identity-service/internal/config"
	"github.com/fitstack/identity-service/internal/logger"
)

// cachedResponse is the stored shape of one cacheable response.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// bodyCapture duplicates the response body while forwarding it to the
// client.
type bodyCapture struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *bodyCapture) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// ResponseCache serves successful GET responses from Redis for the
// configured TTL.  With caching disabled or no Redis client available it is
// a pass-through.  Only 200 responses are stored; anything else flows by
// untouched.
func ResponseCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			key := cacheKey(cfg.Prefix, c)

			ctx := c.Request().Context()
			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var cached cachedResponse
				if json.Unmarshal(raw, &cached) == nil {
					return c.Blob(cached.Status, cached.ContentType, cached.Body)
				}
			}

			capture := &bodyCapture{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = capture
			if err := next(c); err != nil {
				return err
			}
			if capture.status != http.StatusOK {
				return nil
			}

			entry, err := json.Marshal(cachedResponse{
				Status:      capture.status,
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        capture.buf.Bytes(),
			})
			if err != nil {
				return nil
			}
			if err := rdb.Set(ctx, key, entry, ttl).Err(); err != nil {
				logger.L().Debugw("response cache store failed", "key", key, "err", err)
			}
			return nil
		}
	}
}

// cacheKey hashes route and query into a stable, prefixed key.
func cacheKey(prefix string, c echo.Context) string {
	sum := sha1.Sum([]byte(c.Path() + "?" + c.Request().URL.RawQuery))
	return fmt.Sprintf("%s:%x", prefix, sum[:])
}
