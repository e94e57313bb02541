package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"leadintake/internal/config"
	"leadintake/internal/constants"
	"leadintake/internal/lead"
	"leadintake/internal/logger"
	"leadintake/pkg/errors"
	"leadintake/pkg/metrics"
)

// Locker serializes writers of one identity. The returned unlock is never nil
// when err is nil.
type Locker interface {
	Lock(ctx context.Context, tenantID string, key lead.Key) (unlock func(), err error)
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string, lead.Key) (func(), error) {
	return func() {}, nil
}

// NopLocker relies on the store's unique indexes alone.
func NopLocker() Locker {
	return nopLocker{}
}

// unlockScript deletes the lock only while it still holds our token, so an
// expired lock taken over by another writer is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client       *redis.Client
	ttl          time.Duration
	wait         time.Duration
	pollEvery    time.Duration
	onRedisError string
	logger       logger.Logger
}

func NewRedisLocker(client *redis.Client, cfg config.IngestConfig, log logger.Logger) *RedisLocker {
	l := &RedisLocker{
		client:       client,
		ttl:          cfg.Lock.TTL,
		wait:         cfg.Lock.Wait,
		pollEvery:    constants.IdentityLockPollEvery,
		onRedisError: cfg.OnRedisError,
		logger:       log,
	}
	if l.ttl <= 0 {
		l.ttl = constants.DefaultIdentityLockTTL
	}
	if l.wait <= 0 {
		l.wait = constants.DefaultIdentityLockWait
	}
	if l.onRedisError == "" {
		l.onRedisError = constants.FallbackAllow
	}
	return l
}

func lockKey(tenantID string, key lead.Key) string {
	return constants.LockKeyPrefixIdentity + tenantID + ":" + key.String()
}

// Lock waits up to the configured wait for the identity. A writer that cannot
// get the lock in time proceeds without it: the unique indexes still catch
// the race.
func (l *RedisLocker) Lock(ctx context.Context, tenantID string, key lead.Key) (func(), error) {
	k := lockKey(tenantID, key)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return l.handleRedisError(ctx, err, k)
		}
		if ok {
			metrics.IdentityLockTotal.WithLabelValues("acquired").Inc()
			return l.unlocker(ctx, k, token), nil
		}

		if time.Now().After(deadline) {
			metrics.IdentityLockTotal.WithLabelValues("timeout").Inc()
			l.logger.WarnwCtx(ctx, "Identity lock wait exceeded, proceeding without lock",
				"lock_key", k,
				"wait", l.wait,
			)
			return func() {}, nil
		}

		timer := time.NewTimer(l.pollEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) unlocker(ctx context.Context, k, token string) func() {
	return func() {
		// The request may already be canceled; the lock must still go.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, l.client, []string{k}, token).Err(); err != nil {
			l.logger.WarnwCtx(ctx, "Failed to release identity lock",
				"error", err,
				"lock_key", k,
			)
		}
	}
}

func (l *RedisLocker) handleRedisError(ctx context.Context, err error, k string) (func(), error) {
	metrics.IdentityLockTotal.WithLabelValues("error").Inc()

	if l.onRedisError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("writer", "allow_on_error", "redis_error").Inc()
		l.logger.WarnwCtx(ctx, "Redis error taking identity lock, proceeding without lock (fallback: allow)",
			"error", err,
			"lock_key", k,
		)
		return func() {}, nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("writer", "deny_on_error", "redis_error").Inc()
	return nil, errors.ErrPrimaryWrite.WithCause(fmt.Errorf("redis identity lock failed: %w", err))
}
