package dedup

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadintake/internal/adapter"
	"leadintake/internal/lead"
)

func normalize(t *testing.T, body string) lead.Fields {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return adapter.Normalize(raw, "NextGen").Fields
}

// store plays the lead store for a single identity.
type store struct {
	t    *testing.T
	r    *Resolver
	lead *lead.Lead
}

func newStore(t *testing.T) *store {
	return &store{t: t, r: NewResolver()}
}

func (s *store) ingest(body string) Decision {
	s.t.Helper()
	d := s.r.Resolve(s.lead, normalize(s.t, body))
	switch d.Action {
	case ActionCreate:
		s.lead = &lead.Lead{ID: "L1", TenantID: "t1", Fields: d.Merged}
	case ActionUpdate:
		require.Equal(s.t, s.lead.ID, d.LeadID)
		s.lead.Fields = d.Merged
	}
	return d
}

func (s *store) price() float64 {
	s.t.Helper()
	require.NotNil(s.t, s.lead.Price)
	return *s.lead.Price
}

const (
	primaryEvent = `{"lead_id": "abc123", "first_name": "Jane", "last_name": "Doe", "phone": "5551234567", "email": "jane@example.com", "city": "Boise", "price": "10"}`
	addonEvent   = `{"lead_id": "abc123", "phone": "5551234567", "product": "ad", "price": "5", "campaign_name": "premium"}`
)

func TestResolve_CreatesWhenNothingMatched(t *testing.T) {
	d := NewResolver().Resolve(nil, normalize(t, primaryEvent))

	assert.Equal(t, ActionCreate, d.Action)
	assert.True(t, d.IsNew())
	assert.Equal(t, ReasonNew, d.Reason)
	require.NotNil(t, d.Merged.Price)
	assert.Equal(t, 10.0, *d.Merged.Price)
	require.Len(t, d.Merged.LineItems, 1)
	assert.Equal(t, lead.KindPrimary, d.Merged.LineItems[0].Kind)
	assert.Empty(t, d.Merged.Notes)
}

func TestResolve_IdenticalEventIsIdempotent(t *testing.T) {
	s := newStore(t)
	first := s.ingest(primaryEvent)
	second := s.ingest(primaryEvent)

	assert.Equal(t, ActionCreate, first.Action)
	assert.Equal(t, ActionSkip, second.Action)
	assert.False(t, second.IsNew())
	assert.Equal(t, "L1", second.LeadID)
	assert.Equal(t, 10.0, s.price())
}

func TestResolve_AddonSumsPrice(t *testing.T) {
	s := newStore(t)
	s.ingest(primaryEvent)
	d := s.ingest(addonEvent)

	assert.Equal(t, ActionUpdate, d.Action)
	assert.Equal(t, ReasonAddon, d.Reason)
	assert.False(t, d.Ambiguous)
	assert.Equal(t, 15.0, s.price())
	assert.Equal(t, "Jane Doe", s.lead.Name)
	assert.Equal(t, "Premium Listing Applied:\nBase Price: $10.00\nPremium Listing: $5.00\nTotal Price: $15.00", s.lead.Notes)
	require.Len(t, s.lead.LineItems, 2)
	assert.Equal(t, lead.KindAddon, s.lead.LineItems[1].Kind)
}

func TestResolve_OrderIndependent(t *testing.T) {
	forward := newStore(t)
	forward.ingest(primaryEvent)
	forward.ingest(addonEvent)

	reverse := newStore(t)
	reverse.ingest(addonEvent)
	assert.Equal(t, "NextGen Lead", reverse.lead.Name)
	d := reverse.ingest(primaryEvent)
	assert.Equal(t, ReasonPrimaryOverAddon, d.Reason)

	assert.Equal(t, forward.lead.Fields, reverse.lead.Fields)
	assert.Equal(t, 15.0, reverse.price())
	assert.Equal(t, "Jane Doe", reverse.lead.Name)
	assert.Equal(t, "jane@example.com", reverse.lead.Email)
}

func TestResolve_AddonRedeliveryIsNotSummedTwice(t *testing.T) {
	s := newStore(t)
	s.ingest(primaryEvent)
	s.ingest(addonEvent)
	d := s.ingest(addonEvent)

	assert.Equal(t, ActionSkip, d.Action)
	assert.Equal(t, 15.0, s.price())
}

func TestResolve_SnapshotWithoutNameKeepsAttribution(t *testing.T) {
	s := newStore(t)
	s.ingest(`{"lead_id": "abc123", "first_name": "Jane", "last_name": "Doe", "source_hash": "H1", "price": 10}`)
	d := s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "city": "Boise"}`)

	assert.Equal(t, ActionUpdate, d.Action)
	assert.Equal(t, "Jane Doe", s.lead.Name)
	assert.Equal(t, "H1", s.lead.SourceHash)
	assert.Equal(t, "H1", s.lead.SourceCode)
	assert.Equal(t, "(555) 123-4567", s.lead.Phone)
	assert.Equal(t, "Boise", s.lead.City)
	assert.Equal(t, 10.0, s.price())
}

func TestResolve_PlaceholderNameGivesWayToRealName(t *testing.T) {
	s := newStore(t)
	s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "price": 10}`)
	assert.Equal(t, "NextGen Lead", s.lead.Name)
	assert.Equal(t, "NextGen", s.lead.SourceCode)

	s.ingest(`{"lead_id": "abc123", "first_name": "Jane", "last_name": "Doe", "campaign_name": "spring"}`)
	assert.Equal(t, "Jane Doe", s.lead.Name)
	assert.Equal(t, "spring", s.lead.SourceCode)
}

func TestFold_EqualAddonsAreEachSummed(t *testing.T) {
	r := NewResolver()
	acc := r.Fold(nil, normalize(t, primaryEvent))
	acc = r.Fold(&acc, normalize(t, addonEvent))
	acc = r.Fold(&acc, normalize(t, addonEvent))

	require.NotNil(t, acc.Price)
	assert.Equal(t, 20.0, *acc.Price)
	assert.Len(t, acc.LineItems, 3)
	assert.Contains(t, acc.Notes, "Premium Listing: $10.00")

	// Storing the folded record again is a redelivery, item for item.
	d := r.Resolve(&lead.Lead{ID: "L1", Fields: acc}, acc)
	assert.Equal(t, ActionSkip, d.Action)

	// One stored add-on absorbs only one of the folded pair.
	s := newStore(t)
	s.ingest(primaryEvent)
	s.ingest(addonEvent)
	d = s.r.Resolve(s.lead, acc)
	assert.Equal(t, ActionUpdate, d.Action)
	require.NotNil(t, d.Merged.Price)
	assert.Equal(t, 20.0, *d.Merged.Price)
}

func TestResolve_NonDestructiveMerge(t *testing.T) {
	s := newStore(t)
	s.ingest(primaryEvent)
	d := s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "city": "", "age": 50}`)

	assert.Equal(t, ActionUpdate, d.Action)
	assert.Equal(t, ReasonSnapshot, d.Reason)
	assert.Equal(t, "Boise", s.lead.City)
	require.NotNil(t, s.lead.Age)
	assert.Equal(t, 50, *s.lead.Age)
	assert.Equal(t, 10.0, s.price())
}

func TestResolve_LaterSnapshotWins(t *testing.T) {
	s := newStore(t)
	s.ingest(primaryEvent)
	d := s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "city": "Nampa", "price": "10"}`)

	assert.Equal(t, ActionUpdate, d.Action)
	assert.Equal(t, "Nampa", s.lead.City)
	assert.Equal(t, 10.0, s.price())
}

func TestResolve_RepostWithDifferentPriceIsAmbiguous(t *testing.T) {
	s := newStore(t)
	first := s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "price": "10"}`)
	second := s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "price": "12"}`)

	assert.True(t, first.IsNew())
	assert.Equal(t, ActionUpdate, second.Action)
	assert.False(t, second.IsNew())
	assert.Equal(t, "L1", second.LeadID)
	assert.True(t, second.Ambiguous)
	assert.Equal(t, ReasonAmbiguous, second.Reason)
	assert.Equal(t, 22.0, s.price())
	assert.Equal(t, "Ambiguous Duplicate (review required):\nExisting Price: $10.00\nIncoming Price: $12.00\nTotal Price: $22.00", s.lead.Notes)

	third := s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "price": "12"}`)
	assert.Equal(t, ActionSkip, third.Action)
	assert.Equal(t, 22.0, s.price())
}

func TestResolve_ConflictingContactKeepsExistingIdentity(t *testing.T) {
	s := newStore(t)
	s.ingest(primaryEvent)
	d := s.ingest(`{"lead_id": "abc123", "phone": "5559998888", "zip_code": "83702"}`)

	assert.True(t, d.Ambiguous)
	assert.Equal(t, "(555) 123-4567", s.lead.Phone)
	assert.Equal(t, "83702", s.lead.Zipcode)
	assert.Contains(t, s.lead.Notes, "Incoming Phone: (555) 999-8888")
	assert.Equal(t, 10.0, s.price())
}

func TestResolve_PricedPrimaryCompletesUnpricedOne(t *testing.T) {
	s := newStore(t)
	s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "product": "data"}`)
	d := s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "product": "data", "price": "10"}`)

	assert.Equal(t, ActionUpdate, d.Action)
	assert.False(t, d.Ambiguous)
	assert.Equal(t, 10.0, s.price())
	assert.Len(t, s.lead.LineItems, 1)
}

func TestResolve_KeepsLifecycleFields(t *testing.T) {
	s := newStore(t)
	s.ingest(primaryEvent)
	s.lead.Status = "Contacted"
	s.lead.Disposition = "Callback"

	s.ingest(`{"lead_id": "abc123", "phone": "5551234567", "city": "Nampa"}`)
	assert.Equal(t, "Contacted", s.lead.Status)
	assert.Equal(t, "Callback", s.lead.Disposition)
}

func TestResolve_KeepsForeignNotes(t *testing.T) {
	s := newStore(t)
	s.ingest(primaryEvent)
	s.lead.Notes = "Called twice, no answer"

	s.ingest(addonEvent)
	assert.Equal(t, "Called twice, no answer\n\nPremium Listing Applied:\nBase Price: $10.00\nPremium Listing: $5.00\nTotal Price: $15.00", s.lead.Notes)
}

func TestResolve_GroupedCandidate(t *testing.T) {
	group := normalize(t, primaryEvent)
	group.LineItems = []lead.LineItem{
		{Kind: lead.KindAddon, Product: "ad", Price: lead.Float(5)},
		{Kind: lead.KindPrimary, Price: lead.Float(10)},
		{Kind: lead.KindAddon, Product: "ad", Price: lead.Float(7)},
	}

	d := NewResolver().Resolve(nil, group)
	assert.Equal(t, ActionCreate, d.Action)
	require.NotNil(t, d.Merged.Price)
	assert.Equal(t, 22.0, *d.Merged.Price)
	assert.Equal(t, lead.KindPrimary, d.Merged.LineItems[0].Kind)
	assert.Contains(t, d.Merged.Notes, "Premium Listing: $12.00")

	// A webhook primary already stored converges with the grouped batch.
	s := newStore(t)
	s.ingest(primaryEvent)
	d = s.r.Resolve(s.lead, group)
	assert.Equal(t, ActionUpdate, d.Action)
	require.NotNil(t, d.Merged.Price)
	assert.Equal(t, 22.0, *d.Merged.Price)
	assert.Len(t, d.Merged.LineItems, 3)
}
