package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadintake/internal/constants"
)

const minimalYAML = `
database:
  postgres:
    host: localhost
    port: 5432
    user: intake
    dbname: leads
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.False(t, cfg.Database.Redis.Enabled())
	assert.Equal(t, constants.EnrichmentModeInline, cfg.Enrichment.Mode)
	assert.Equal(t, constants.DefaultEnrichmentTimeout, cfg.Enrichment.Timeout)
	assert.Equal(t, constants.DefaultBatchMaxRows, cfg.Batch.MaxRows)
	assert.Equal(t, constants.DefaultBatchMaxFileBytes, cfg.Batch.MaxFileBytes)
	assert.Equal(t, constants.DefaultMaxWebhookBodyBytes, cfg.Ingest.MaxBodyBytes)
	assert.Equal(t, constants.FallbackAllow, cfg.Ingest.OnRedisError)
	assert.Equal(t, constants.RelayNone, cfg.Notifications.Relay)
	assert.False(t, cfg.Credentials.Legacy.Enabled())
}

func TestLoadConfig_LegacyCredentialEnv(t *testing.T) {
	t.Setenv("NEXTGEN_SID", "sid-env")
	t.Setenv("NEXTGEN_API_KEY", "key-env")
	t.Setenv("ADMIN_TENANT_ID", "tenant-env")

	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, LegacyConfig{SID: "sid-env", APIKey: "key-env", TenantID: "tenant-env"}, cfg.Credentials.Legacy)
	assert.True(t, cfg.Credentials.Legacy.Enabled())
}

func TestLoadConfig_PartialLegacyIsRejected(t *testing.T) {
	t.Setenv("NEXTGEN_SID", "sid-env")

	_, err := LoadConfig(writeConfig(t, minimalYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials.legacy")
}

func TestLoadConfig_KafkaBrokersFromEnv(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := LoadConfig(writeConfig(t, minimalYAML+`
broker:
  type: kafka
  kafka:
    brokers: ["localhost:9092"]
    group_id: enrichment
enrichment:
  mode: kafka
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, constants.DefaultEnrichmentTopic, cfg.Broker.Kafka.EnrichmentTopic)
}

func TestLoadConfig_Detectors(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML+`
batch:
  detectors:
    - name: acme_headers
      vendor: Acme
      expression: '"acme_id" in headers'
`))
	require.NoError(t, err)

	require.Len(t, cfg.Batch.Detectors, 1)
	assert.Equal(t, DetectorConfig{Name: "acme_headers", Vendor: "Acme", Expression: `"acme_id" in headers`}, cfg.Batch.Detectors[0])
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{Host: "localhost", Port: 5432, User: "intake", DBName: "leads"},
		},
		Ingest: IngestConfig{OnRedisError: constants.FallbackAllow},
		Enrichment: EnrichmentConfig{
			Mode:    constants.EnrichmentModeInline,
			Timeout: time.Second,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 10 * time.Millisecond,
				MaxInterval:     time.Second,
				Multiplier:      2,
			},
		},
		Batch:         BatchConfig{MaxRows: 100, MaxFileBytes: 1 << 20, WriteConcurrency: 4},
		Notifications: NotificationsConfig{Relay: constants.RelayNone},
	}
}

func TestValidateStatic(t *testing.T) {
	require.NoError(t, ValidateStatic(validConfig()))

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"server port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"postgres host", func(c *Config) { c.Database.Postgres.Host = "" }, "database.postgres.host"},
		{"ssl mode", func(c *Config) { c.Database.Postgres.SSLMode = "sometimes" }, "database.postgres.sslmode"},
		{"kafka mode without broker", func(c *Config) { c.Enrichment.Mode = constants.EnrichmentModeKafka }, "broker.type"},
		{"kafka without group", func(c *Config) {
			c.Broker = BrokerConfig{Type: "kafka", Kafka: KafkaConfig{Brokers: []string{"k:9092"}, EnrichmentTopic: "t"}}
		}, "broker.kafka.group_id"},
		{"partial legacy", func(c *Config) { c.Credentials.Legacy.SID = "sid" }, "credentials.legacy"},
		{"lock without redis", func(c *Config) { c.Ingest.Lock = LockConfig{Enabled: true, TTL: time.Second} }, "ingest.lock.enabled"},
		{"on redis error", func(c *Config) { c.Ingest.OnRedisError = "maybe" }, "ingest.on_redis_error"},
		{"rate limit", func(c *Config) { c.Ingest.RateLimit = RateLimitConfig{Enabled: true} }, "ingest.rate_limit"},
		{"enrichment mode", func(c *Config) { c.Enrichment.Mode = "later" }, "enrichment.mode"},
		{"retry intervals", func(c *Config) { c.Enrichment.Retry.MaxInterval = time.Millisecond }, "enrichment.retry.max_interval"},
		{"batch rows", func(c *Config) { c.Batch.MaxRows = 0 }, "batch.max_rows"},
		{"detector", func(c *Config) { c.Batch.Detectors = []DetectorConfig{{Name: "x"}} }, "batch.detectors[0]"},
		{"redis relay without redis", func(c *Config) { c.Notifications.Relay = constants.RelayRedis }, "notifications.relay"},
		{"nats relay without url", func(c *Config) { c.Notifications.Relay = constants.RelayNATS }, "notifications.nats.url"},
		{"unknown relay", func(c *Config) { c.Notifications.Relay = "carrier-pigeon" }, "notifications.relay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateStatic_ReportsEveryFailure(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Batch.MaxRows = 0

	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "batch.max_rows")
}
