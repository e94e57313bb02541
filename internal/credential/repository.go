package credential

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"leadintake/pkg/errors"
	"leadintake/pkg/metrics"
)

// Credential is a vendor's active credential pair resolved to its tenant.
// The API key itself is never held, only its hash.
type Credential struct {
	SID        string
	TenantID   string
	VendorName string
	Active     bool
}

type Repository interface {
	// FindActive returns errors.ErrNotFound when no active credential matches
	// both values.
	FindActive(ctx context.Context, sid, apiKey string) (*Credential, error)
}

// HashAPIKey is the stored form of an API key.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindActive(ctx context.Context, sid, apiKey string) (*Credential, error) {
	query := `
		SELECT sid, tenant_id, vendor_name, active
		FROM vendor_credentials
		WHERE sid = $1 AND api_key_hash = $2 AND active = TRUE
	`

	start := time.Now()
	var c Credential
	err := r.db.QueryRowContext(ctx, query, sid, HashAPIKey(apiKey)).
		Scan(&c.SID, &c.TenantID, &c.VendorName, &c.Active)

	status := "success"
	if err != nil && err != sql.ErrNoRows {
		status = "error"
	}
	metrics.IncDatabaseQuery("credential", "postgresql", "find_active", status)
	metrics.ObserveDatabaseQueryDuration("credential", "postgresql", "find_active", time.Since(start))

	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	return &c, nil
}
