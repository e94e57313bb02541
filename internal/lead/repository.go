package lead

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"leadintake/pkg/errors"
	"leadintake/pkg/metrics"
)

type Repository interface {
	// FindByKey returns errors.ErrNotFound when no lead of the tenant has key.
	FindByKey(ctx context.Context, tenantID string, key Key) (*Lead, error)
	Get(ctx context.Context, tenantID, id string) (*Lead, error)
	// InsertMinimal creates a lead and returns its id, or errors.ErrConflict
	// when another writer already holds one of its identity keys.
	InsertMinimal(ctx context.Context, l *Lead) (string, error)
	// Update replaces the stored fields of an existing lead.
	Update(ctx context.Context, l *Lead) error
	// FillMissing sets the fields of f that the stored lead does not have yet.
	FillMissing(ctx context.Context, tenantID, id string, f Fields) error
}

// FindByIdentity tries every key of f in precedence order and returns the
// first match. A phone or email match whose vendor lead id differs from the
// one f carries is another lead and is passed over.
func FindByIdentity(ctx context.Context, repo Repository, tenantID string, f Fields) (*Lead, error) {
	for _, key := range Keys(f) {
		l, err := repo.FindByKey(ctx, tenantID, key)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if key.Kind != KeyVendorLeadID && f.VendorLeadID != "" &&
			l.VendorLeadID != "" && l.VendorLeadID != f.VendorLeadID {
			continue
		}
		return l, nil
	}
	return nil, errors.ErrNotFound
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const pgUniqueViolation = "23505"

const selectColumns = `id, tenant_id, data, created_at, updated_at, enriched_at`

func (r *PostgresRepository) FindByKey(ctx context.Context, tenantID string, key Key) (*Lead, error) {
	var where string
	switch key.Kind {
	case KeyVendorLeadID:
		where = `vendor_lead_id = $2`
	case KeyPhone:
		where = `phone = $2`
	case KeyEmail:
		where = `lower(email) = $2`
	default:
		return nil, errors.ErrNotFound
	}

	query := `SELECT ` + selectColumns + ` FROM leads WHERE tenant_id = $1 AND ` + where + ` ORDER BY created_at ASC LIMIT 1`
	return r.queryOne(ctx, "find_by_"+string(key.Kind), query, tenantID, key.Value)
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, id string) (*Lead, error) {
	query := `SELECT ` + selectColumns + ` FROM leads WHERE tenant_id = $1 AND id = $2`
	return r.queryOne(ctx, "get", query, tenantID, id)
}

func (r *PostgresRepository) queryOne(ctx context.Context, op, query string, args ...interface{}) (*Lead, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, query, args...)
	l, err := scanLead(row)
	observe(op, start, err)

	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lead: %w", err)
	}
	return l, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row scanner) (*Lead, error) {
	var (
		l          Lead
		data       []byte
		enrichedAt sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.TenantID, &data, &l.CreatedAt, &l.UpdatedAt, &enrichedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &l.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode lead %s: %w", l.ID, err)
	}
	if enrichedAt.Valid {
		t := enrichedAt.Time
		l.EnrichedAt = &t
	}
	return &l, nil
}

func (r *PostgresRepository) InsertMinimal(ctx context.Context, l *Lead) (string, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	data, err := json.Marshal(l.Fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode lead: %w", err)
	}

	// No conflict target: DO NOTHING covers both partial identity indexes.
	query := `
		INSERT INTO leads (id, tenant_id, vendor_lead_id, phone, email, name, product, price, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT DO NOTHING
		RETURNING id`

	start := time.Now()
	var id string
	err = r.db.QueryRowContext(ctx, query,
		l.ID, l.TenantID,
		nullString(l.VendorLeadID), nullString(l.Phone), nullString(l.Email),
		nullString(l.Name), nullString(l.Product), nullFloat(l.Price), nullString(l.Status),
		data,
	).Scan(&id)
	observe("insert_minimal", start, err)

	if err == sql.ErrNoRows {
		return "", errors.ErrConflict.WithDetail("tenant_id", l.TenantID)
	}
	if err != nil {
		return "", mapWriteError(err)
	}
	return id, nil
}

func (r *PostgresRepository) Update(ctx context.Context, l *Lead) error {
	data, err := json.Marshal(l.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode lead: %w", err)
	}

	query := `
		UPDATE leads
		SET vendor_lead_id = $3, phone = $4, email = $5, name = $6, product = $7, price = $8,
		    status = $9, data = $10, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		l.TenantID, l.ID,
		nullString(l.VendorLeadID), nullString(l.Phone), nullString(l.Email),
		nullString(l.Name), nullString(l.Product), nullFloat(l.Price), nullString(l.Status),
		data,
	)
	observe("update", start, err)
	if err != nil {
		return mapWriteError(err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound.WithDetail("lead_id", l.ID)
	}
	return nil
}

// FillMissing locks the row, merges in Go and writes back so that fields
// set by a concurrent update are never overwritten.
func (r *PostgresRepository) FillMissing(ctx context.Context, tenantID, id string, f Fields) (err error) {
	start := time.Now()
	defer func() { observe("fill_missing", start, err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM leads WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id)
	existing, err := scanLead(row)
	if err == sql.ErrNoRows {
		return errors.ErrNotFound.WithDetail("lead_id", id)
	}
	if err != nil {
		return fmt.Errorf("failed to lock lead: %w", err)
	}

	ApplyEnrichment(&existing.Fields, f)

	data, err := json.Marshal(existing.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode lead: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE leads
		SET email = $3, phone = $4, name = $5, product = $6, price = $7, status = $8, data = $9,
		    updated_at = NOW(), enriched_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
		nullString(existing.Email), nullString(existing.Phone), nullString(existing.Name),
		nullString(existing.Product), nullFloat(existing.Price), nullString(existing.Status), data,
	)
	if err != nil {
		return mapWriteError(err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit enrichment: %w", err)
	}
	return nil
}

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return errors.ErrConflict.WithCause(err).WithDetail("constraint", pqErr.Constraint)
	}
	return fmt.Errorf("failed to write lead: %w", err)
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil && err != sql.ErrNoRows {
		status = "error"
	}
	metrics.IncDatabaseQuery("lead", "postgresql", op, status)
	metrics.ObserveDatabaseQueryDuration("lead", "postgresql", op, time.Since(start))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
