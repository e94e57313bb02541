package enrichment

import (
	"context"
	"sync"
	"time"

	"leadintake/internal/broker"
	"leadintake/internal/config"
	"leadintake/internal/constants"
	"leadintake/internal/logger"
	"leadintake/pkg/errors"
	"leadintake/pkg/logging"
	"leadintake/pkg/metrics"
	"leadintake/pkg/retry"
)

// Scheduler runs enrichment tasks detached from the request that produced
// them. Schedule never fails its caller: every failure is logged as an
// enrichment error.
type Scheduler struct {
	applier *Applier
	logger  logger.Logger
	policy  retry.Policy
	timeout time.Duration

	producer broker.Producer
	topic    string
	source   string

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Scheduler)

// WithProducer publishes tasks to topic for the enrichment worker. Tasks
// that cannot be published are applied inline.
func WithProducer(p broker.Producer, topic, source string) Option {
	return func(s *Scheduler) {
		s.producer = p
		s.topic = topic
		s.source = source
	}
}

func NewScheduler(applier *Applier, cfg config.EnrichmentConfig, log logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		applier: applier,
		logger:  log,
		policy:  policyFrom(cfg.Retry),
		timeout: cfg.Timeout,
		source:  constants.ServiceIntake,
	}
	if s.timeout <= 0 {
		s.timeout = constants.DefaultEnrichmentTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func policyFrom(rc config.RetryConfig) retry.Policy {
	p := retry.Policy{
		MaxAttempts:     rc.MaxAttempts,
		InitialInterval: rc.InitialInterval,
		MaxInterval:     rc.MaxInterval,
		Multiplier:      rc.Multiplier,
		MaxElapsedTime:  rc.MaxElapsedTime,
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 200 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 5 * time.Second
	}
	return p
}

func (s *Scheduler) Mode() string {
	if s.producer != nil {
		return constants.EnrichmentModeKafka
	}
	return constants.EnrichmentModeInline
}

// Schedule hands t to a background goroutine and returns immediately. The
// goroutine keeps the values of ctx but not its cancellation.
func (s *Scheduler) Schedule(ctx context.Context, t Task) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.WarnwCtx(ctx, "Enrichment scheduler closed, dropping task",
			"error", errors.ErrEnrichment.WithMessage("scheduler closed"),
			"lead_id", t.LeadID,
		)
		metrics.ObserveEnrichment(s.Mode(), "dropped", 0)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	detached := context.WithoutCancel(ctx)

	// The deferred Done also runs when the task panics, before SafeGo recovers.
	errors.SafeGo(func() {
		defer s.wg.Done()
		s.run(detached, t)
	}, func(err error) {
		s.logger.ErrorwCtx(detached, "Panic in enrichment task",
			"error", errors.ErrEnrichment.WithCause(err),
			"lead_id", t.LeadID,
		)
	})
}

func (s *Scheduler) run(ctx context.Context, t Task) {
	if s.producer != nil {
		if err := s.publish(ctx, t); err == nil {
			return
		} else {
			metrics.FallbackUsageTotal.WithLabelValues("enrichment", "inline_on_publish_error", "publish_failed").Inc()
			s.logger.WarnwCtx(ctx, "Failed to publish enrichment task, applying inline",
				"error", err,
				"lead_id", t.LeadID,
				"topic", s.topic,
			)
		}
	}
	s.applyInline(ctx, t)
}

func (s *Scheduler) publish(ctx context.Context, t Task) error {
	start := time.Now()
	env, err := t.Envelope(s.source, logging.GetRequestID(ctx), logging.GetTraceID(ctx))
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, constants.KafkaWriteTimeout)
	defer cancel()
	if err := s.producer.Publish(pubCtx, s.topic, env); err != nil {
		return err
	}
	metrics.ObserveEnrichment(constants.EnrichmentModeKafka, "published", time.Since(start))
	return nil
}

func (s *Scheduler) applyInline(ctx context.Context, t Task) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := retry.RetryWithCallback(ctx, s.policy, func() error {
		return s.applier.Apply(ctx, t)
	}, func(attempt int, err error, nextDelay time.Duration) {
		s.logger.WarnwCtx(ctx, "Retrying enrichment write",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
			"lead_id", t.LeadID,
		)
	})
	observe(constants.EnrichmentModeInline, err, start)

	if err != nil {
		s.logger.ErrorwCtx(ctx, "Enrichment write failed, lead left partially enriched",
			"error", errors.Wrap(err, errors.ErrEnrichment),
			"lead_id", t.LeadID,
		)
	}
}

// Close stops accepting tasks and waits for running ones until ctx is done.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.ErrEnrichment.WithMessage("pending enrichment tasks abandoned on shutdown").WithCause(ctx.Err())
	}
}

func observe(mode string, err error, start time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ObserveEnrichment(mode, status, time.Since(start))
}
