package credential

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadintake/internal/config"
	"leadintake/internal/logger"
	"leadintake/pkg/errors"
)

type memoryRepository struct {
	byPair map[string]Credential
	err    error
	calls  int
}

func newMemoryRepository(creds ...Credential) *memoryRepository {
	r := &memoryRepository{byPair: make(map[string]Credential)}
	return r.with(creds...)
}

func (r *memoryRepository) with(creds ...Credential) *memoryRepository {
	for _, c := range creds {
		r.byPair[c.SID+"|"+c.VendorName] = c
	}
	return r
}

// FindActive treats VendorName as the API key to keep fixtures short.
func (r *memoryRepository) FindActive(_ context.Context, sid, apiKey string) (*Credential, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	c, ok := r.byPair[sid+"|"+apiKey]
	if !ok || !c.Active {
		return nil, errors.ErrNotFound
	}
	return &c, nil
}

var legacy = config.LegacyConfig{SID: "legacy-sid", APIKey: "legacy-key", TenantID: "admin"}

func TestValidator_Validate(t *testing.T) {
	repo := newMemoryRepository(
		Credential{SID: "sid-1", VendorName: "key-1", TenantID: "t1", Active: true},
		Credential{SID: "sid-2", VendorName: "key-2", TenantID: "t2", Active: false},
	)
	v := NewValidator(repo, legacy, logger.NopLogger())

	tests := []struct {
		name    string
		sid     string
		key     string
		tenant  string
		message string
	}{
		{name: "store match", sid: "sid-1", key: "key-1", tenant: "t1"},
		{name: "legacy fallback", sid: "legacy-sid", key: "legacy-key", tenant: "admin"},
		{name: "inactive", sid: "sid-2", key: "key-2", message: BadCredsMessage},
		{name: "wrong key", sid: "sid-1", key: "nope", message: BadCredsMessage},
		{name: "legacy half match", sid: "legacy-sid", key: "key-1", message: BadCredsMessage},
		{name: "missing sid", key: "key-1", message: MissingCredsMessage},
		{name: "missing key", sid: "sid-1", message: MissingCredsMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant, err := v.Validate(context.Background(), tt.sid, tt.key)
			if tt.message == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.tenant, tenant)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsAuthentication(err))
			assert.Equal(t, http.StatusUnauthorized, errors.ToHTTPStatus(err))
			assert.Equal(t, tt.message, messageOf(err))
		})
	}
}

func TestValidator_LegacyDisabledWhenPartial(t *testing.T) {
	v := NewValidator(newMemoryRepository(), config.LegacyConfig{SID: "legacy-sid", APIKey: "legacy-key"}, logger.NopLogger())
	_, err := v.Validate(context.Background(), "legacy-sid", "legacy-key")
	assert.True(t, errors.IsAuthentication(err))
}

func TestValidator_StoreFailure(t *testing.T) {
	repo := newMemoryRepository()
	repo.err = fmt.Errorf("connection refused")
	v := NewValidator(repo, legacy, logger.NopLogger())

	_, err := v.Validate(context.Background(), "sid-1", "key-1")
	require.Error(t, err)
	assert.False(t, errors.IsAuthentication(err))
	assert.Equal(t, http.StatusInternalServerError, errors.ToHTTPStatus(err))

	tenant, err := v.Validate(context.Background(), "legacy-sid", "legacy-key")
	require.NoError(t, err)
	assert.Equal(t, "admin", tenant)
}

func TestHashAPIKey(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashAPIKey(""))
	assert.NotEqual(t, HashAPIKey("a"), HashAPIKey("b"))
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedRepository_CachesPositiveLookups(t *testing.T) {
	mr, client := newRedis(t)
	repo := newMemoryRepository(Credential{SID: "sid-1", VendorName: "key-1", TenantID: "t1", Active: true})
	cached := NewCachedRepository(repo, client, 60, logger.NopLogger())

	for i := 0; i < 3; i++ {
		c, err := cached.FindActive(context.Background(), "sid-1", "key-1")
		require.NoError(t, err)
		assert.Equal(t, "t1", c.TenantID)
	}
	assert.Equal(t, 1, repo.calls)

	key := cacheKey("sid-1", "key-1")
	assert.True(t, mr.Exists(key))
	assert.NotContains(t, key, "key-1")
	assert.Equal(t, 60*time.Second, mr.TTL(key))

	require.NoError(t, cached.Invalidate(context.Background(), "sid-1", "key-1"))
	_, err := cached.FindActive(context.Background(), "sid-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestCachedRepository_DoesNotCacheMisses(t *testing.T) {
	_, client := newRedis(t)
	repo := newMemoryRepository()
	cached := NewCachedRepository(repo, client, 60, logger.NopLogger())

	_, err := cached.FindActive(context.Background(), "sid-1", "key-1")
	assert.True(t, errors.IsNotFound(err))

	repo.with(Credential{SID: "sid-1", VendorName: "key-1", TenantID: "t1", Active: true})
	c, err := cached.FindActive(context.Background(), "sid-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", c.TenantID)
}

func TestCachedRepository_RedisDownFallsThrough(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()
	repo := newMemoryRepository(Credential{SID: "sid-1", VendorName: "key-1", TenantID: "t1", Active: true})
	cached := NewCachedRepository(repo, client, 60, logger.NopLogger())

	c, err := cached.FindActive(context.Background(), "sid-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", c.TenantID)
}

func TestSessionVerifier(t *testing.T) {
	v := NewSessionVerifier(config.SessionConfig{JWTSecret: "s3cret", Issuer: "crm"})

	token, err := v.Issue("t1", "u1", time.Hour)
	require.NoError(t, err)
	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, "u1", claims.UserID)

	t.Run("expired", func(t *testing.T) {
		token, err := v.Issue("t1", "u1", -time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.True(t, errors.IsAuthentication(err))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewSessionVerifier(config.SessionConfig{JWTSecret: "other", Issuer: "crm"})
		token, err := other.Issue("t1", "u1", time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.True(t, errors.IsAuthentication(err))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewSessionVerifier(config.SessionConfig{JWTSecret: "s3cret", Issuer: "elsewhere"})
		token, err := other.Issue("t1", "u1", time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.True(t, errors.IsAuthentication(err))
	})

	t.Run("no tenant", func(t *testing.T) {
		token, err := v.Issue("", "u1", time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.True(t, errors.IsAuthentication(err))
	})
}

func protectedRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/p", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": TenantID(c), "user": c.GetString(UserIDKey)})
	})
	return r
}

func TestVendorAuth(t *testing.T) {
	repo := newMemoryRepository(Credential{SID: "sid-1", VendorName: "key-1", TenantID: "t1", Active: true})
	r := protectedRouter(VendorAuth(NewValidator(repo, legacy, logger.NopLogger()), logger.NopLogger()))

	tests := []struct {
		name   string
		sid    string
		key    string
		status int
		body   string
	}{
		{name: "valid", sid: "sid-1", key: "key-1", status: http.StatusOK, body: `"tenant":"t1"`},
		{name: "missing", sid: "sid-1", status: http.StatusUnauthorized, body: `"message":"Missing creds"`},
		{name: "bad", sid: "sid-1", key: "wrong", status: http.StatusUnauthorized, body: `"message":"Bad creds"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tt.sid != "" {
				req.Header.Set("sid", tt.sid)
			}
			if tt.key != "" {
				req.Header.Set("apikey", tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestVendorAuth_StoreFailureIs500(t *testing.T) {
	repo := newMemoryRepository()
	repo.err = fmt.Errorf("down")
	r := protectedRouter(VendorAuth(NewValidator(repo, config.LegacyConfig{}, logger.NopLogger()), logger.NopLogger()))

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("sid", "sid-1")
	req.Header.Set("apikey", "key-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSessionAuth(t *testing.T) {
	v := NewSessionVerifier(config.SessionConfig{JWTSecret: "s3cret"})
	r := protectedRouter(SessionAuth(v, logger.NopLogger()))
	token, err := v.Issue("t1", "u1", time.Hour)
	require.NoError(t, err)

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tenant":"t1","user":"u1"}`, w.Body.String())
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
