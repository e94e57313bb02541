package enrichment

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"leadintake/internal/broker"
	"leadintake/internal/constants"
	"leadintake/internal/lead"
	"leadintake/internal/logger"
	"leadintake/pkg/errors"
	"leadintake/pkg/models"
	"leadintake/pkg/retry"
	"leadintake/pkg/tracing"
)

// Applier performs the fill-only enrichment write against the lead store.
type Applier struct {
	repo   lead.Repository
	logger logger.Logger
}

func NewApplier(repo lead.Repository, log logger.Logger) *Applier {
	return &Applier{repo: repo, logger: log}
}

// Apply fills the fields of t the stored lead does not have yet. A missing
// lead or a malformed task is fatal; store failures are retryable.
func (a *Applier) Apply(ctx context.Context, t Task) error {
	ctx, span := tracing.StartSpan(ctx, "enrichment.apply",
		attribute.String("lead.id", t.LeadID),
		attribute.String("tenant.id", t.TenantID),
	)
	defer span.End()

	if err := t.Validate(); err != nil {
		return tracing.RecordError(span, retry.NewFatalError(errors.ErrValidation.WithCause(err)))
	}

	err := a.repo.FillMissing(ctx, t.TenantID, t.LeadID, t.Fields)
	switch {
	case err == nil:
		return nil
	case errors.IsNotFound(err):
		return tracing.RecordError(span, retry.NewFatalError(err))
	default:
		return tracing.RecordError(span, errors.ErrEnrichment.WithCause(err).WithDetail("lead_id", t.LeadID))
	}
}

// Handler adapts Apply to the broker consumer of the enrichment worker. The
// consumer owns retries and the DLQ.
func (a *Applier) Handler() broker.HandlerFunc {
	return func(ctx context.Context, msg models.MessageEnvelope) error {
		start := time.Now()

		t, err := FromEnvelope(msg)
		if err != nil {
			observe(constants.EnrichmentModeKafka, err, start)
			return retry.NewFatalError(errors.ErrValidation.WithCause(err))
		}

		err = a.Apply(ctx, t)
		observe(constants.EnrichmentModeKafka, err, start)
		if err == nil {
			a.logger.DebugwCtx(ctx, "Lead enriched", "lead_id", t.LeadID)
		}
		return err
	}
}
