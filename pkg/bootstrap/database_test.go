package bootstrap

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadintake/internal/config"
	"leadintake/internal/logger"
)

func TestPostgresDSN_EscapesCredentials(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host: "db", Port: 5432, User: "leads", Password: "p@ss/word", DBName: "intake", SSLMode: "disable",
	})
	assert.Equal(t, "postgres://leads:p%40ss%2Fword@db:5432/intake?sslmode=disable", dsn)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Database.Redis = config.RedisConfig{Host: mr.Host(), Port: port}
	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	client, err := dc.InitRedis(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Empty(t, dc.ShutdownDatabases(client, nil))
}

func TestInitRedis_NotConfigured(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())

	client, err := dc.InitRedis(context.Background())
	require.NoError(t, err)
	assert.Nil(t, client)
}
