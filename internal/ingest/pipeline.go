package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"leadintake/internal/adapter"
	"leadintake/internal/lead"
	"leadintake/internal/logger"
	"leadintake/internal/notify"
	"leadintake/internal/schema"
	"leadintake/internal/writer"
	"leadintake/pkg/errors"
	"leadintake/pkg/logging"
	"leadintake/pkg/metrics"
	"leadintake/pkg/tracing"
)

type Writer interface {
	Write(ctx context.Context, tenantID string, candidate lead.Fields) (writer.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, tenantID string, ev notify.Event)
}

// Outcome is the result of one accepted webhook event.
type Outcome struct {
	LeadID    string
	IsNew     bool
	ProcessMs int64
}

// Pipeline runs one webhook event through validation, normalization, the
// write and the notification. Nothing is written unless the payload is valid.
type Pipeline struct {
	validator  *schema.Validator
	writer     Writer
	notifier   Notifier
	stubNotify bool
	logger     logger.Logger
}

type PipelineOption func(*Pipeline)

// WithStubNotify broadcasts a placeholder notification before the write.
func WithStubNotify(enabled bool) PipelineOption {
	return func(p *Pipeline) {
		p.stubNotify = enabled
	}
}

func NewPipeline(validator *schema.Validator, w Writer, notifier Notifier, log logger.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		validator: validator,
		writer:    w,
		notifier:  notifier,
		logger:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Ingest(ctx context.Context, tenantID, vendor string, payload map[string]interface{}) (Outcome, error) {
	start := time.Now()
	ctx = logging.WithVendor(ctx, vendor)
	ctx, span := tracing.StartSpan(ctx, "ingest.webhook",
		attribute.String("tenant.id", tenantID),
		attribute.String("vendor", vendor),
	)
	defer span.End()

	out, err := p.ingest(ctx, tenantID, vendor, payload, start)
	outcome := "created"
	switch {
	case errors.IsValidation(err):
		outcome = "invalid"
	case err != nil:
		outcome = "failed"
	case !out.IsNew:
		outcome = "updated"
	}
	metrics.ObserveIngest(vendor, outcome, time.Since(start))
	return out, tracing.RecordError(span, err)
}

func (p *Pipeline) ingest(ctx context.Context, tenantID, vendor string, payload map[string]interface{}, start time.Time) (Outcome, error) {
	if err := p.validator.Validate(payload); err != nil {
		p.logger.WarnwCtx(ctx, "Rejected webhook payload", "error", err, "violations", schema.Violations(err))
		return Outcome{}, err
	}

	norm := adapter.Normalize(payload, vendor)
	f := norm.Fields
	if f.Phone == "" && f.Email == "" {
		p.logger.WarnwCtx(ctx, "Rejected webhook payload without usable contact")
		return Outcome{}, errors.ErrValidation.
			WithMessage(schema.MissingContactMessage).
			WithDetail("violations", []schema.Violation{{Field: schema.ContactField, Message: schema.MissingContactMessage}})
	}
	if len(norm.Unmapped) > 0 {
		p.logger.DebugwCtx(ctx, "Webhook payload carried unmapped fields", "count", len(norm.Unmapped))
	}

	if p.stubNotify && p.notifier != nil {
		stub := f
		stub.FillDefaults()
		p.notifier.Notify(ctx, tenantID, notify.Event{Name: stub.Name, Source: stub.Source, IsNew: true})
	}

	res, err := p.writer.Write(ctx, tenantID, f)
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Failed to persist webhook lead", "error", err)
		return Outcome{}, err
	}

	out := Outcome{LeadID: res.LeadID, IsNew: res.IsNew, ProcessMs: time.Since(start).Milliseconds()}
	p.logger.InfowCtx(ctx, "Webhook lead processed",
		"lead_id", out.LeadID,
		"is_new", out.IsNew,
		"action", res.Decision.Action,
		"reason", res.Decision.Reason,
		"identity_field", norm.IdentityField,
		"process_ms", out.ProcessMs,
	)

	if p.notifier != nil {
		ms := out.ProcessMs
		p.notifier.Notify(ctx, tenantID, notify.Event{
			LeadID:           out.LeadID,
			Name:             res.Decision.Merged.Name,
			Source:           res.Decision.Merged.Source,
			IsNew:            out.IsNew,
			ProcessingTimeMs: &ms,
		})
	}
	return out, nil
}
