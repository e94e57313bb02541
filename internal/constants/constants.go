package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultEnrichmentTopic = "lead_enrichment"
	DefaultDLQSuffix       = ".dlq"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	CacheKeyPrefixCredential = "cred:"
	LockKeyPrefixIdentity    = "lock:lead:"
)

const (
	DefaultCredentialCacheTTLSeconds = 300
)

const (
	DefaultIdentityLockTTL  = 5 * time.Second
	DefaultIdentityLockWait = 1500 * time.Millisecond
	IdentityLockPollEvery   = 50 * time.Millisecond
)

// MaxConflictRetries bounds the insert, lose the unique race, re-read, update loop.
const MaxConflictRetries = 3

const (
	DefaultMaxWebhookBodyBytes int64 = 1 << 20
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	EnrichmentModeInline = "inline"
	EnrichmentModeKafka  = "kafka"

	DefaultEnrichmentTimeout = 10 * time.Second
)

const (
	DefaultBatchMaxRows                = 15000
	DefaultBatchMaxFileBytes     int64 = 50 << 20
	DefaultBatchWriteConcurrency       = 8
)

const (
	RelayNone  = "none"
	RelayRedis = "redis"
	RelayNATS  = "nats"

	DefaultNotificationChannel = "lead_notifications"
	DefaultClientBuffer        = 16
)

const (
	HeaderSID         = "sid"
	HeaderAPIKey      = "apikey"
	HeaderProcessTime = "X-Process-Time"
	SessionCookieName = "token"
)

const (
	DefaultVendor     = "NextGen"
	MarketplaceVendor = "Marketplace"

	DefaultDisposition = "New Lead"
	DefaultStatus      = "New"

	// ProductAddon marks a premium listing line item; anything else is primary.
	ProductAddon = "ad"
	ProductMain  = "data"
)

const (
	ServiceIntake           = "intake-service"
	ServiceEnrichmentWorker = "enrichment-worker"
)
