package config

import (
	"errors"
	"fmt"
	"strings"

	"leadintake/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateDatabase(c.Database) },
		validateBroker,
		func(c *Config) error { return validateCredentials(c.Credentials) },
		validateIngest,
		validateEnrichment,
		func(c *Config) error { return validateBatch(c.Batch) },
		validateNotifications,
	}

	var errs []error
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if err := validatePostgres(cfg.Postgres); err != nil {
		return err
	}

	if cfg.Redis.Enabled() {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required (the lead store lives there)",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateBroker(cfg *Config) error {
	needKafka := cfg.Enrichment.Mode == constants.EnrichmentModeKafka

	switch cfg.Broker.Type {
	case "":
		if needKafka {
			return &ValidationError{
				Field:   "broker.type",
				Message: "broker type is required when enrichment.mode is kafka",
			}
		}
		return nil
	case "kafka":
		return validateKafka(cfg.Broker.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Broker.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.EnrichmentTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.enrichment_topic",
			Message: "enrichment topic is required",
		}
	}

	return validateRetry("broker.kafka.retry", cfg.Retry)
}

func validateRetry(prefix string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   prefix + ".max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 || cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".initial_interval",
			Message: "intervals must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{
			Field:   prefix + ".multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateCredentials(cfg CredentialsConfig) error {
	if cfg.CacheTTLSeconds < 0 {
		return &ValidationError{
			Field:   "credentials.cache_ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	legacy := cfg.Legacy
	set := 0
	for _, v := range []string{legacy.SID, legacy.APIKey, legacy.TenantID} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return &ValidationError{
			Field:   "credentials.legacy",
			Message: "sid, api_key and tenant_id must be configured together",
		}
	}

	return nil
}

func validateIngest(cfg *Config) error {
	ingest := cfg.Ingest

	validOnError := map[string]bool{
		constants.FallbackAllow: true, constants.FallbackDeny: true,
	}
	if ingest.OnRedisError != "" && !validOnError[strings.ToLower(ingest.OnRedisError)] {
		return &ValidationError{
			Field:   "ingest.on_redis_error",
			Message: fmt.Sprintf("invalid on_redis_error value: %s (valid: allow, deny)", ingest.OnRedisError),
		}
	}

	if ingest.Lock.Enabled {
		if !cfg.Database.Redis.Enabled() {
			return &ValidationError{
				Field:   "ingest.lock.enabled",
				Message: "identity lock requires database.redis",
			}
		}
		if ingest.Lock.TTL <= 0 {
			return &ValidationError{
				Field:   "ingest.lock.ttl",
				Message: "lock TTL must be positive",
			}
		}
	}

	if ingest.RateLimit.Enabled && (ingest.RateLimit.RPS <= 0 || ingest.RateLimit.Burst <= 0) {
		return &ValidationError{
			Field:   "ingest.rate_limit",
			Message: "rps and burst must be positive when rate limiting is enabled",
		}
	}

	return nil
}

func validateEnrichment(cfg *Config) error {
	switch cfg.Enrichment.Mode {
	case constants.EnrichmentModeInline, constants.EnrichmentModeKafka:
	default:
		return &ValidationError{
			Field:   "enrichment.mode",
			Message: fmt.Sprintf("invalid mode: %s (valid: inline, kafka)", cfg.Enrichment.Mode),
		}
	}

	if cfg.Enrichment.Timeout <= 0 {
		return &ValidationError{
			Field:   "enrichment.timeout",
			Message: "timeout must be positive",
		}
	}

	return validateRetry("enrichment.retry", cfg.Enrichment.Retry)
}

func validateBatch(cfg BatchConfig) error {
	if cfg.MaxRows <= 0 {
		return &ValidationError{
			Field:   "batch.max_rows",
			Message: "max_rows must be positive",
		}
	}

	if cfg.MaxFileBytes <= 0 {
		return &ValidationError{
			Field:   "batch.max_file_bytes",
			Message: "max_file_bytes must be positive",
		}
	}

	if cfg.WriteConcurrency <= 0 {
		return &ValidationError{
			Field:   "batch.write_concurrency",
			Message: "write_concurrency must be positive",
		}
	}

	for i, d := range cfg.Detectors {
		if d.Name == "" || d.Vendor == "" || d.Expression == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("batch.detectors[%d]", i),
				Message: "name, vendor and expression are required",
			}
		}
	}

	return nil
}

func validateNotifications(cfg *Config) error {
	n := cfg.Notifications

	switch n.Relay {
	case constants.RelayNone, "":
	case constants.RelayRedis:
		if !cfg.Database.Redis.Enabled() {
			return &ValidationError{
				Field:   "notifications.relay",
				Message: "redis relay requires database.redis",
			}
		}
	case constants.RelayNATS:
		if n.NATS.URL == "" {
			return &ValidationError{
				Field:   "notifications.nats.url",
				Message: "NATS URL is required for the nats relay",
			}
		}
	default:
		return &ValidationError{
			Field:   "notifications.relay",
			Message: fmt.Sprintf("invalid relay: %s (valid: none, redis, nats)", n.Relay),
		}
	}

	if n.ClientBuffer < 0 {
		return &ValidationError{
			Field:   "notifications.client_buffer",
			Message: "client_buffer must be non-negative",
		}
	}

	return nil
}
