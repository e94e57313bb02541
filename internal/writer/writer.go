package writer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"leadintake/internal/constants"
	"leadintake/internal/dedup"
	"leadintake/internal/enrichment"
	"leadintake/internal/lead"
	"leadintake/internal/logger"
	"leadintake/pkg/errors"
	"leadintake/pkg/metrics"
	"leadintake/pkg/tracing"
)

// Enricher takes the deferred full-field write of a freshly created lead.
type Enricher interface {
	Schedule(ctx context.Context, t enrichment.Task)
}

type Result struct {
	LeadID   string
	IsNew    bool
	Decision dedup.Decision
}

// Writer persists a candidate lead: a minimal synchronous insert plus a
// deferred enrichment on create, a synchronous full write on update.
type Writer struct {
	repo     lead.Repository
	resolver *dedup.Resolver
	locker   Locker
	enricher Enricher
	logger   logger.Logger
}

func New(repo lead.Repository, resolver *dedup.Resolver, locker Locker, enricher Enricher, log logger.Logger) *Writer {
	if locker == nil {
		locker = NopLocker()
	}
	return &Writer{
		repo:     repo,
		resolver: resolver,
		locker:   locker,
		enricher: enricher,
		logger:   log,
	}
}

// Write resolves candidate against the stored leads of tenantID and persists
// the decision. Every returned error is an ErrPrimaryWrite: nothing the
// vendor sent has been half-applied, and resending is safe.
func (w *Writer) Write(ctx context.Context, tenantID string, candidate lead.Fields) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "writer.write", attribute.String("tenant.id", tenantID))
	defer span.End()

	if key, ok := lead.KeyFor(candidate); ok {
		unlock, err := w.locker.Lock(ctx, tenantID, key)
		if err != nil {
			return Result{}, tracing.RecordError(span, errors.Wrap(err, errors.ErrPrimaryWrite))
		}
		defer unlock()
	}

	for attempt := 1; attempt <= constants.MaxConflictRetries; attempt++ {
		res, retry, err := w.attempt(ctx, tenantID, candidate)
		if err != nil {
			return Result{}, tracing.RecordError(span, err)
		}
		if !retry {
			span.SetAttributes(
				attribute.String("lead.id", res.LeadID),
				attribute.String("dedup.action", string(res.Decision.Action)),
			)
			return res, nil
		}

		metrics.WriteConflictsTotal.Inc()
		w.logger.InfowCtx(ctx, "Lost write race for identity, retrying as update",
			"attempt", attempt,
			"action", res.Decision.Action,
		)
	}

	err := errors.ErrPrimaryWrite.
		WithMessage("identity conflict not resolved").
		WithDetail("attempts", constants.MaxConflictRetries)
	return Result{}, tracing.RecordError(span, err)
}

// attempt runs one read, decide, write round. retry is true when a
// concurrent writer changed the identity between the read and the write.
func (w *Writer) attempt(ctx context.Context, tenantID string, candidate lead.Fields) (Result, bool, error) {
	existing, err := lead.FindByIdentity(ctx, w.repo, tenantID, candidate)
	if err != nil && !errors.IsNotFound(err) {
		return Result{}, false, errors.ErrPrimaryWrite.WithCause(err)
	}
	if err != nil {
		existing = nil
	}

	d := w.resolver.Resolve(existing, candidate)
	res := Result{LeadID: d.LeadID, Decision: d}

	switch d.Action {
	case dedup.ActionCreate:
		l := &lead.Lead{TenantID: tenantID, Fields: d.Merged.Minimal()}
		id, err := w.repo.InsertMinimal(ctx, l)
		if errors.IsConflict(err) {
			return res, true, nil
		}
		if err != nil {
			return Result{}, false, errors.ErrPrimaryWrite.WithCause(err)
		}
		res.LeadID = id
		res.IsNew = true
		if w.enricher != nil {
			w.enricher.Schedule(ctx, enrichment.Task{
				LeadID:    id,
				TenantID:  tenantID,
				Fields:    d.Merged,
				CreatedAt: time.Now().UTC(),
			})
		}

	case dedup.ActionUpdate:
		err := w.repo.Update(ctx, &lead.Lead{ID: d.LeadID, TenantID: tenantID, Fields: d.Merged})
		if errors.IsConflict(err) || errors.IsNotFound(err) {
			return res, true, nil
		}
		if err != nil {
			return Result{}, false, errors.ErrPrimaryWrite.WithCause(err).WithDetail("lead_id", d.LeadID)
		}
	}

	w.record(ctx, res)
	return res, false, nil
}

func (w *Writer) record(ctx context.Context, res Result) {
	d := res.Decision
	metrics.IncDedupDecision(string(d.Action), d.Reason)

	if d.Ambiguous {
		metrics.AmbiguousDuplicatesTotal.Inc()
		w.logger.WarnwCtx(ctx, d.LogMessage,
			"lead_id", res.LeadID,
			"reason", d.Reason,
			"review_required", true,
		)
		return
	}
	w.logger.DebugwCtx(ctx, d.LogMessage,
		"lead_id", res.LeadID,
		"action", d.Action,
		"reason", d.Reason,
	)
}
