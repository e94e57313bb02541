package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"leadintake/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)

	v.SetDefault("broker.kafka.enrichment_topic", constants.DefaultEnrichmentTopic)
	v.SetDefault("broker.kafka.retry.multiplier", 2.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("credentials.cache_ttl_seconds", constants.DefaultCredentialCacheTTLSeconds)

	v.SetDefault("ingest.on_redis_error", constants.FallbackAllow)
	v.SetDefault("ingest.lock.ttl", constants.DefaultIdentityLockTTL)
	v.SetDefault("ingest.lock.wait", constants.DefaultIdentityLockWait)
	v.SetDefault("ingest.max_body_bytes", constants.DefaultMaxWebhookBodyBytes)
	v.SetDefault("ingest.rate_limit.cleanup_interval", 300)
	v.SetDefault("ingest.rate_limit.max_age", 600)

	v.SetDefault("enrichment.mode", constants.EnrichmentModeInline)
	v.SetDefault("enrichment.timeout", constants.DefaultEnrichmentTimeout)
	v.SetDefault("enrichment.retry.max_attempts", 3)
	v.SetDefault("enrichment.retry.initial_interval", 200*time.Millisecond)
	v.SetDefault("enrichment.retry.max_interval", 5*time.Second)
	v.SetDefault("enrichment.retry.multiplier", 2.0)

	v.SetDefault("batch.max_rows", constants.DefaultBatchMaxRows)
	v.SetDefault("batch.max_file_bytes", constants.DefaultBatchMaxFileBytes)
	v.SetDefault("batch.write_concurrency", constants.DefaultBatchWriteConcurrency)

	v.SetDefault("notifications.relay", constants.RelayNone)
	v.SetDefault("notifications.channel", constants.DefaultNotificationChannel)
	v.SetDefault("notifications.client_buffer", constants.DefaultClientBuffer)
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	v.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	v.BindEnv("broker.kafka.enrichment_topic", "BROKER_KAFKA_ENRICHMENT_TOPIC")
	v.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	v.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	v.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	v.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	v.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	v.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	v.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	v.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	v.BindEnv("server.port", "SERVER_PORT")

	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	// Legacy single-tenant credential keeps the names the vendor integration
	// has always been deployed with.
	v.BindEnv("credentials.legacy.sid", "CREDENTIALS_LEGACY_SID", "NEXTGEN_SID")
	v.BindEnv("credentials.legacy.api_key", "CREDENTIALS_LEGACY_API_KEY", "NEXTGEN_API_KEY")
	v.BindEnv("credentials.legacy.tenant_id", "CREDENTIALS_LEGACY_TENANT_ID", "ADMIN_TENANT_ID")

	v.BindEnv("session.jwt_secret", "SESSION_JWT_SECRET", "JWT_SECRET")

	v.BindEnv("notifications.nats.url", "NOTIFICATIONS_NATS_URL")

	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := v.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}
}
