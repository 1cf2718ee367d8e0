package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// HeaderIdempotencyKey marks a POST as safe to retry.
	HeaderIdempotencyKey = "Idempotency-Key"

	dedupeKeyPrefix   = "idem"
	maxIdempotencyKey = 128
)

// RedisDeduper stores seen idempotency keys in Redis so all instances
// can avoid processing the same request twice.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("%s:%s:%s", userID, dedupeKeyPrefix, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key so the caller may retry.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// IdempotencyMiddleware rejects a repeated Idempotency-Key from the same user
// with 409. The key is released when the request does not succeed. It must
// run after requireUser. Requests are let through when Redis is unavailable.
func IdempotencyMiddleware(d Deduper, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(HeaderIdempotencyKey)
			userID := userFrom(c)
			if raw == "" || userID == "" || d == nil {
				return next(c)
			}
			if len(raw) > maxIdempotencyKey {
				setErrorStage(c, "idempotency")
				return fail(c, http.StatusBadRequest, "Idempotency-Key inválida")
			}
			key := c.Request().Method + " " + c.Path() + " " + raw
			ctx := c.Request().Context()

			added, err := d.Add(ctx, userID, key)
			if err != nil {
				logger.WithError(err).WithField("route", c.Path()).Warn("idempotency check unavailable")
				return next(c)
			}
			if !added {
				setErrorStage(c, "idempotency")
				return fail(c, http.StatusConflict, "Requisição duplicada")
			}

			err = next(c)
			if err != nil || c.Response().Status >= http.StatusBadRequest {
				if rerr := d.Remove(context.WithoutCancel(ctx), userID, key); rerr != nil {
					logger.WithError(rerr).Warn("failed to release idempotency key")
				}
			}
			return err
		}
	}
}
