// Package leadtest provides an in-memory lead.Repository that enforces the
// same identity constraints as the Postgres schema.
package leadtest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadintake/internal/lead"
	"leadintake/pkg/errors"
)

type MemoryRepository struct {
	mu    sync.Mutex
	leads map[string]*lead.Lead
	order []string

	// Hooks run before the matching operation and may return an error to
	// inject a store failure.
	BeforeInsert func(l *lead.Lead) error
	BeforeUpdate func(l *lead.Lead) error
	BeforeFill   func(id string) error

	Inserts int
	Updates int
	Fills   int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{leads: make(map[string]*lead.Lead)}
}

func clone(l *lead.Lead) *lead.Lead {
	b, _ := json.Marshal(l)
	var out lead.Lead
	_ = json.Unmarshal(b, &out)
	return &out
}

func matches(l *lead.Lead, key lead.Key) bool {
	switch key.Kind {
	case lead.KeyVendorLeadID:
		return l.VendorLeadID == key.Value
	case lead.KeyPhone:
		return l.Phone == key.Value
	case lead.KeyEmail:
		return strings.EqualFold(l.Email, key.Value)
	}
	return false
}

func (m *MemoryRepository) FindByKey(_ context.Context, tenantID string, key lead.Key) (*lead.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		l := m.leads[id]
		if l.TenantID == tenantID && matches(l, key) {
			return clone(l), nil
		}
	}
	return nil, errors.ErrNotFound
}

func (m *MemoryRepository) Get(_ context.Context, tenantID, id string) (*lead.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leads[id]
	if !ok || l.TenantID != tenantID {
		return nil, errors.ErrNotFound
	}
	return clone(l), nil
}

// violates mirrors the partial unique indexes on (tenant_id, vendor_lead_id)
// and (tenant_id, phone) where vendor_lead_id is null.
func (m *MemoryRepository) violates(candidate *lead.Lead) bool {
	for _, l := range m.leads {
		if l.ID == candidate.ID || l.TenantID != candidate.TenantID {
			continue
		}
		if candidate.VendorLeadID != "" && l.VendorLeadID == candidate.VendorLeadID {
			return true
		}
		if candidate.VendorLeadID == "" && l.VendorLeadID == "" &&
			candidate.Phone != "" && l.Phone == candidate.Phone {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) InsertMinimal(_ context.Context, l *lead.Lead) (string, error) {
	if m.BeforeInsert != nil {
		if err := m.BeforeInsert(l); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if m.violates(l) {
		return "", errors.ErrConflict
	}

	stored := clone(l)
	now := time.Now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now
	m.leads[stored.ID] = stored
	m.order = append(m.order, stored.ID)
	m.Inserts++
	return stored.ID, nil
}

func (m *MemoryRepository) Update(_ context.Context, l *lead.Lead) error {
	if m.BeforeUpdate != nil {
		if err := m.BeforeUpdate(l); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leads[l.ID]
	if !ok || existing.TenantID != l.TenantID {
		return errors.ErrNotFound
	}
	if m.violates(l) {
		return errors.ErrConflict
	}

	stored := clone(l)
	stored.CreatedAt = existing.CreatedAt
	stored.EnrichedAt = existing.EnrichedAt
	stored.UpdatedAt = time.Now().UTC()
	m.leads[l.ID] = stored
	m.Updates++
	return nil
}

func (m *MemoryRepository) FillMissing(_ context.Context, tenantID, id string, f lead.Fields) error {
	if m.BeforeFill != nil {
		if err := m.BeforeFill(id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leads[id]
	if !ok || existing.TenantID != tenantID {
		return errors.ErrNotFound
	}

	lead.ApplyEnrichment(&existing.Fields, f)
	now := time.Now().UTC()
	existing.UpdatedAt = now
	existing.EnrichedAt = &now
	m.Fills++
	return nil
}

// All returns copies of the stored leads in insertion order.
func (m *MemoryRepository) All() []*lead.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*lead.Lead, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, clone(m.leads[id]))
	}
	return out
}

func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads)
}
