package credential

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"leadintake/internal/constants"
	"leadintake/internal/logger"
	"leadintake/pkg/errors"
	"leadintake/pkg/metrics"
)

// CachedRepository keeps positive lookups in redis for a TTL. Misses are
// not cached, so a newly issued credential works at once. A redis failure
// falls through to the wrapped repository.
type CachedRepository struct {
	repo   Repository
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedRepository(repo Repository, client *redis.Client, ttlSeconds int, log logger.Logger) *CachedRepository {
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultCredentialCacheTTLSeconds
	}
	return &CachedRepository{
		repo:   repo,
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		logger: log,
	}
}

// cacheKey never contains the raw API key.
func cacheKey(sid, apiKey string) string {
	return constants.CacheKeyPrefixCredential + HashAPIKey(sid+":"+apiKey)
}

func (r *CachedRepository) FindActive(ctx context.Context, sid, apiKey string) (*Credential, error) {
	key := cacheKey(sid, apiKey)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c Credential
		if jsonErr := json.Unmarshal(raw, &c); jsonErr == nil {
			metrics.CredentialCacheTotal.WithLabelValues("hit").Inc()
			return &c, nil
		}
		metrics.CredentialCacheTotal.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.CredentialCacheTotal.WithLabelValues("miss").Inc()
	default:
		metrics.CredentialCacheTotal.WithLabelValues("error").Inc()
		r.logger.WarnwCtx(ctx, "Credential cache unavailable, querying store", "error", err)
	}

	c, err := r.repo.FindActive(ctx, sid, apiKey)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(c); err == nil {
		if err := r.client.Set(ctx, key, b, r.ttl).Err(); err != nil {
			r.logger.WarnwCtx(ctx, "Failed to cache credential", "error", err)
		}
	}
	return c, nil
}

// Invalidate drops a cached pair, e.g. after the credential was revoked.
func (r *CachedRepository) Invalidate(ctx context.Context, sid, apiKey string) error {
	return r.client.Del(ctx, cacheKey(sid, apiKey)).Err()
}
