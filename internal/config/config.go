package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Credentials    CredentialsConfig
	Session        SessionConfig
	Ingest         IngestConfig
	Enrichment     EnrichmentConfig
	Batch          BatchConfig
	Notifications  NotificationsConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a redis endpoint was configured at all.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers         []string    `mapstructure:"brokers"`
	GroupID         string      `mapstructure:"group_id"`
	EnrichmentTopic string      `mapstructure:"enrichment_topic"`
	DLQTopic        string      `mapstructure:"dlq_topic"`
	Retry           RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CredentialsConfig struct {
	CacheTTLSeconds int          `mapstructure:"cache_ttl_seconds"`
	Legacy          LegacyConfig `mapstructure:"legacy"`
}

// LegacyConfig is the single environment-configured credential pair that
// resolves to the administrative tenant.
type LegacyConfig struct {
	SID      string `mapstructure:"sid"`
	APIKey   string `mapstructure:"api_key"`
	TenantID string `mapstructure:"tenant_id"`
}

func (c LegacyConfig) Enabled() bool {
	return c.SID != "" && c.APIKey != "" && c.TenantID != ""
}

type SessionConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type IngestConfig struct {
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	Lock         LockConfig      `mapstructure:"lock"`
	OnRedisError string          `mapstructure:"on_redis_error"`
	StubNotify   bool            `mapstructure:"stub_notify"`
	MaxBodyBytes int64           `mapstructure:"max_body_bytes"`
}

type LockConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Wait    time.Duration `mapstructure:"wait"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type EnrichmentConfig struct {
	// Mode is "inline" (detached goroutine) or "kafka" (durable topic).
	Mode           string        `mapstructure:"mode"`
	EmbeddedWorker bool          `mapstructure:"embedded_worker"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

type BatchConfig struct {
	MaxRows          int              `mapstructure:"max_rows"`
	MaxFileBytes     int64            `mapstructure:"max_file_bytes"`
	WriteConcurrency int              `mapstructure:"write_concurrency"`
	NotifyEach       bool             `mapstructure:"notify_each"`
	Detectors        []DetectorConfig `mapstructure:"detectors"`
}

// DetectorConfig declares a CEL vendor detector. Expression sees the
// variables headers (list of string), filename (string) and row (map).
type DetectorConfig struct {
	Name       string `mapstructure:"name"`
	Vendor     string `mapstructure:"vendor"`
	Expression string `mapstructure:"expression"`
}

type NotificationsConfig struct {
	// Relay is "none", "redis" or "nats".
	Relay        string     `mapstructure:"relay"`
	Channel      string     `mapstructure:"channel"`
	ClientBuffer int        `mapstructure:"client_buffer"`
	NATS         NATSConfig `mapstructure:"nats"`
}

type NATSConfig struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
