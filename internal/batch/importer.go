package batch

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"leadintake/internal/adapter"
	"leadintake/internal/config"
	"leadintake/internal/constants"
	"leadintake/internal/dedup"
	"leadintake/internal/lead"
	"leadintake/internal/logger"
	"leadintake/internal/notify"
	"leadintake/internal/writer"
	"leadintake/pkg/errors"
	"leadintake/pkg/logging"
	"leadintake/pkg/metrics"
	"leadintake/pkg/tracing"
)

// Writer persists one merged record through the identity-keyed upsert.
type Writer interface {
	Write(ctx context.Context, tenantID string, candidate lead.Fields) (writer.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, tenantID string, ev notify.Event)
}

type Stats struct {
	Imported  int `json:"imported"`
	Updated   int `json:"updated"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Unchanged int `json:"unchanged,omitempty"`
	Failed    int `json:"failed,omitempty"`
}

type Result struct {
	Vendor     string `json:"vendor"`
	DetectedBy string `json:"-"`
	BatchID    string `json:"batchId"`
	Stats      Stats  `json:"stats"`
}

// group is the rows of one upload that share a deduplication key.
type group struct {
	key   lead.Key
	lines []int
	rows  []lead.Fields
}

type Importer struct {
	writer    Writer
	resolver  *dedup.Resolver
	detectors []Detector
	notifier  Notifier
	cfg       config.BatchConfig
	logger    logger.Logger
}

// NewImporter wires the batch path. notifier may be nil.
func NewImporter(w Writer, resolver *dedup.Resolver, detectors []Detector, notifier Notifier, cfg config.BatchConfig, log logger.Logger) *Importer {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = constants.DefaultBatchMaxRows
	}
	if cfg.WriteConcurrency <= 0 {
		cfg.WriteConcurrency = constants.DefaultBatchWriteConcurrency
	}
	if resolver == nil {
		resolver = dedup.NewResolver()
	}
	return &Importer{
		writer:    w,
		resolver:  resolver,
		detectors: detectors,
		notifier:  notifier,
		cfg:       cfg,
		logger:    log,
	}
}

// Import parses one upload, groups its rows in memory by deduplication key,
// folds every group into a single record and upserts each record. A failed
// group is counted and logged; it never aborts the rest of the batch.
func (i *Importer) Import(ctx context.Context, tenantID, filename string, r io.Reader, override string) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "batch.import")
	defer span.End()

	sheet, err := Parse(r, i.cfg.MaxRows)
	if err != nil {
		return nil, tracing.RecordError(span, err)
	}

	vendor, by, err := Detect(i.detectors, sheet.Sample(filename), override)
	if err != nil {
		return nil, tracing.RecordError(span, err)
	}

	res := &Result{Vendor: vendor, DetectedBy: by, BatchID: uuid.NewString()}
	ctx = WithVendor(ctx, vendor)
	ctx = logging.WithBatchID(ctx, res.BatchID)
	ctx = logging.WithVendor(ctx, vendor)

	i.logger.InfowCtx(ctx, "CSV import started",
		"filename", filename,
		"rows", len(sheet.Rows),
		"detected_by", by,
	)

	groups := i.group(ctx, sheet.Rows, &res.Stats)
	if err := i.write(ctx, tenantID, groups, &res.Stats); err != nil {
		return nil, tracing.RecordError(span, err)
	}

	metrics.AddBatchRows(vendor, "imported", res.Stats.Imported)
	metrics.AddBatchRows(vendor, "updated", res.Stats.Updated)
	metrics.AddBatchRows(vendor, "unchanged", res.Stats.Unchanged)
	metrics.AddBatchRows(vendor, "skipped", res.Stats.Skipped)
	metrics.AddBatchRows(vendor, "failed", res.Stats.Failed)
	metrics.ObserveBatchDuration(vendor, time.Since(start))

	i.logger.InfowCtx(ctx, "CSV import finished",
		"groups", len(groups),
		"imported", res.Stats.Imported,
		"updated", res.Stats.Updated,
		"unchanged", res.Stats.Unchanged,
		"skipped", res.Stats.Skipped,
		"failed", res.Stats.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Normalize turns one row into canonical fields for the batch's vendor.
func Normalize(ctx context.Context, row map[string]string) lead.Fields {
	vendor := VendorFrom(ctx)
	label := vendor
	if label == Unknown {
		label = constants.DefaultVendor
	}

	var (
		raw   map[string]interface{}
		extra map[string]string
	)
	if fm, ok := FieldMapFor(vendor); ok {
		raw, extra = fm.Apply(row)
	} else {
		raw = adapter.FromStrings(row)
	}

	res := adapter.Normalize(raw, label)
	f := res.Fields
	for k, v := range res.Unmapped {
		if extra == nil {
			extra = make(map[string]string, len(res.Unmapped))
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		f.VendorData = extra
	}
	return f
}

// group keeps first-seen order so the folded records are deterministic.
func (i *Importer) group(ctx context.Context, rows []Row, stats *Stats) []*group {
	var (
		ordered []*group
		byKey   = make(map[string]*group)
	)
	for _, row := range rows {
		stats.Processed++
		f := Normalize(ctx, row.Values)
		if f.Phone == "" && f.Email == "" {
			stats.Skipped++
			i.logger.WarnwCtx(ctx, "Skipping row without phone or email", "row", row.Line)
			continue
		}

		key, ok := lead.KeyFor(f)
		if !ok {
			key = lead.FallbackKey()
			i.logger.DebugwCtx(ctx, "Row has no identifier, using fallback key", "row", row.Line)
		}

		g, seen := byKey[key.String()]
		if !seen {
			g = &group{key: key}
			byKey[key.String()] = g
			ordered = append(ordered, g)
		}
		g.lines = append(g.lines, row.Line)
		g.rows = append(g.rows, f)
	}
	return ordered
}

// fold merges a group's rows with the rules the webhook path applies to
// successive events, so both paths converge on one final record. Equal
// add-on rows are each summed.
func (i *Importer) fold(g *group) lead.Fields {
	acc := i.resolver.Fold(nil, g.rows[0])
	for _, f := range g.rows[1:] {
		acc = i.resolver.Fold(&acc, f)
	}
	return acc
}

func (i *Importer) write(ctx context.Context, tenantID string, groups []*group, stats *Stats) error {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(i.cfg.WriteConcurrency)

	for _, grp := range groups {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			merged := i.fold(grp)
			res, err := i.writer.Write(ctx, tenantID, merged)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				i.logger.ErrorwCtx(ctx, "Failed to write CSV record",
					"error", err,
					"rows", grp.lines,
					"key_kind", grp.key.Kind,
				)
				return nil
			}
			switch res.Decision.Action {
			case dedup.ActionCreate:
				stats.Imported++
			case dedup.ActionUpdate:
				stats.Updated++
			default:
				stats.Unchanged++
			}
			if i.cfg.NotifyEach && i.notifier != nil && res.Decision.Action != dedup.ActionSkip {
				i.notifier.Notify(ctx, tenantID, notify.Event{
					LeadID: res.LeadID,
					Name:   res.Decision.Merged.Name,
					Source: res.Decision.Merged.Source,
					IsNew:  res.IsNew,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return errors.ErrInternal.WithMessage("CSV import interrupted").WithCause(err)
	}
	return nil
}
