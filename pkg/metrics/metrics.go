package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_requests_total",
			Help: "Total number of webhook ingestion requests by outcome (count)",
		},
		[]string{"vendor", "outcome"},
	)

	IngestProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_ms",
			Help:    "Synchronous webhook processing duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"vendor", "outcome"},
	)

	DedupDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_decisions_total",
			Help: "Total number of deduplication decisions (count)",
		},
		[]string{"action", "reason"},
	)

	AmbiguousDuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_ambiguous_duplicates_total",
			Help: "Total number of merges flagged for manual review (count)",
		},
	)

	WriteConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "writer_conflicts_total",
			Help: "Total number of lost create races converted into updates (count)",
		},
	)

	IdentityLockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writer_identity_lock_total",
			Help: "Identity lock acquisition results (count)",
		},
		[]string{"result"},
	)

	EnrichmentTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_tasks_total",
			Help: "Total number of deferred enrichment writes by mode and status (count)",
		},
		[]string{"mode", "status"},
	)

	EnrichmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_duration_ms",
			Help:    "Duration of deferred enrichment writes in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"mode"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification deliveries by status (count)",
		},
		[]string{"status"},
	)

	NotificationSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_subscribers",
			Help: "Number of connected real-time subscribers (count)",
		},
	)

	BatchRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_rows_total",
			Help: "Total number of CSV rows by result (count)",
		},
		[]string{"vendor", "result"},
	)

	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_duration_ms",
			Help:    "CSV import duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"vendor"},
	)

	CredentialChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_checks_total",
			Help: "Total number of vendor credential checks by result (count)",
		},
		[]string{"result"},
	)

	CredentialCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_cache_total",
			Help: "Credential cache lookups by result (count)",
		},
		[]string{"result"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

var (
	intakeOnce     sync.Once
	enrichmentOnce sync.Once
	brokerOnce     sync.Once
	breakerOnce    sync.Once
	sharedOnce     sync.Once
)

func RegisterIntakeMetrics() {
	intakeOnce.Do(func() {
		prometheus.MustRegister(IngestRequestsTotal)
		prometheus.MustRegister(IngestProcessingDuration)
		prometheus.MustRegister(DedupDecisionsTotal)
		prometheus.MustRegister(AmbiguousDuplicatesTotal)
		prometheus.MustRegister(WriteConflictsTotal)
		prometheus.MustRegister(IdentityLockTotal)
		prometheus.MustRegister(NotificationsTotal)
		prometheus.MustRegister(NotificationSubscribers)
		prometheus.MustRegister(BatchRowsTotal)
		prometheus.MustRegister(BatchDuration)
		prometheus.MustRegister(CredentialChecksTotal)
		prometheus.MustRegister(CredentialCacheTotal)
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
	registerShared()
}

func RegisterEnrichmentMetrics() {
	enrichmentOnce.Do(func() {
		prometheus.MustRegister(EnrichmentTasksTotal)
		prometheus.MustRegister(EnrichmentDuration)
	})
	registerShared()
}

func registerShared() {
	sharedOnce.Do(func() {
		prometheus.MustRegister(FallbackUsageTotal)
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(KafkaMessagesReadTotal)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaMessageSizeBytes)
		prometheus.MustRegister(KafkaConsumerLag)
		prometheus.MustRegister(KafkaReadDuration)
		prometheus.MustRegister(KafkaWriteDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	breakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func ObserveIngest(vendor, outcome string, duration time.Duration) {
	IngestRequestsTotal.WithLabelValues(vendor, outcome).Inc()
	IngestProcessingDuration.WithLabelValues(vendor, outcome).Observe(float64(duration.Milliseconds()))
}

func IncDedupDecision(action, reason string) {
	DedupDecisionsTotal.WithLabelValues(action, reason).Inc()
}

func ObserveEnrichment(mode, status string, duration time.Duration) {
	EnrichmentTasksTotal.WithLabelValues(mode, status).Inc()
	EnrichmentDuration.WithLabelValues(mode).Observe(float64(duration.Milliseconds()))
}

func IncNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}

func AddBatchRows(vendor, result string, n int) {
	if n <= 0 {
		return
	}
	BatchRowsTotal.WithLabelValues(vendor, result).Add(float64(n))
}

func ObserveBatchDuration(vendor string, duration time.Duration) {
	BatchDuration.WithLabelValues(vendor).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
