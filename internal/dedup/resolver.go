package dedup

import (
	"reflect"
	"sort"
	"strings"

	"leadintake/internal/lead"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Reasons label why an action was chosen, from least to most significant.
const (
	ReasonNew              = "new"
	ReasonRedelivery       = "redelivery"
	ReasonSnapshot         = "snapshot"
	ReasonAddon            = "addon"
	ReasonPrimaryOverAddon = "primary_over_addon"
	ReasonAmbiguous        = "ambiguous"
)

var reasonRank = map[string]int{
	ReasonNew:              0,
	ReasonRedelivery:       1,
	ReasonSnapshot:         2,
	ReasonAddon:            3,
	ReasonPrimaryOverAddon: 4,
	ReasonAmbiguous:        5,
}

// Decision is what the writer must do with a candidate lead.
type Decision struct {
	Action Action
	// LeadID is the matched lead for update and skip.
	LeadID string
	Merged lead.Fields
	Reason string
	// Ambiguous flags a merge of two primary records that needs review.
	Ambiguous  bool
	LogMessage string
}

func (d Decision) IsNew() bool {
	return d.Action == ActionCreate
}

// Resolver decides between create, update and skip and computes the merged
// record. It holds no state.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve merges candidate into existing, which is nil when no lead matched
// the candidate's deduplication key. Every line item of candidate is merged
// in turn, so a pre-grouped batch record and a single webhook event follow
// the same rules.
func (r *Resolver) Resolve(existing *lead.Lead, candidate lead.Fields) Decision {
	if existing == nil {
		return r.create(candidate)
	}
	return r.merge(existing, candidate, false)
}

// Fold merges the next row of a batch group into acc, the record folded so
// far, or starts the record when acc is nil. Rows of one file are distinct
// vendor lines: an add-on equal to one already folded is summed, never taken
// for a redelivery.
func (r *Resolver) Fold(acc *lead.Fields, row lead.Fields) lead.Fields {
	if acc == nil {
		return r.create(row).Merged
	}
	return r.merge(&lead.Lead{Fields: *acc}, row, true).Merged
}

func (r *Resolver) merge(existing *lead.Lead, candidate lead.Fields, fold bool) Decision {
	m := merger{
		prior:    existing.Fields,
		state:    existing.Fields.Clone(),
		incoming: candidate,
		reason:   ReasonRedelivery,
		fold:     fold,
	}
	m.items = m.state.Items()
	m.priorItems = append([]lead.LineItem(nil), m.items...)
	m.matched = make([]bool, len(m.priorItems))

	incomingItems := candidate.Items()
	if len(incomingItems) == 0 {
		m.snapshot()
	}
	for _, item := range incomingItems {
		m.mergeItem(item)
	}

	merged := m.finish()

	d := Decision{
		LeadID:    existing.ID,
		Merged:    merged,
		Reason:    m.reason,
		Ambiguous: m.ambiguous,
	}
	switch {
	case reflect.DeepEqual(merged, existing.Fields):
		d.Action = ActionSkip
		d.Reason = ReasonRedelivery
		d.LogMessage = "Duplicate delivery with nothing new, skipping"
	case m.ambiguous:
		d.Action = ActionUpdate
		d.LogMessage = "Ambiguous duplicate: both records claim to be the primary line item, prices summed for review"
	case m.reason == ReasonAddon || m.reason == ReasonPrimaryOverAddon:
		d.Action = ActionUpdate
		d.LogMessage = "Premium listing merged into existing lead"
	default:
		d.Action = ActionUpdate
		d.LogMessage = "Existing lead updated with later snapshot"
	}
	return d
}

func (r *Resolver) create(candidate lead.Fields) Decision {
	merged := candidate.Clone()
	items := sortItems(candidate.Items())
	if len(items) > 0 {
		merged.LineItems = items
		merged.Price = lead.PriceTotal(items)
		merged.Product = productOf(items, merged.Product)
	}
	merged.Notes = rebuildNotes(merged.Notes, premiumNote(items))
	merged.FillDefaults()

	return Decision{
		Action:     ActionCreate,
		Merged:     merged,
		Reason:     ReasonNew,
		LogMessage: "No existing lead matched, creating",
	}
}

// merger folds incoming line items into a stored lead.
type merger struct {
	prior      lead.Fields
	priorItems []lead.LineItem

	// matched marks prior items already claimed by a redelivered item.
	matched []bool
	fold    bool

	state    lead.Fields
	items    []lead.LineItem
	incoming lead.Fields

	reason        string
	ambiguous     bool
	ambiguousItem *lead.LineItem
}

func (m *merger) bump(reason string) {
	if reasonRank[reason] > reasonRank[m.reason] {
		m.reason = reason
	}
}

// snapshot applies a record that carries no line item of its own.
func (m *merger) snapshot() {
	if hasKind(m.items, lead.KindPrimary) && m.contactConflict() {
		m.flagAmbiguous(nil)
		lead.FillMissing(&m.state, m.incoming)
		return
	}
	lead.Overlay(&m.state, m.incoming)
	m.bump(ReasonSnapshot)
}

func (m *merger) mergeItem(item lead.LineItem) {
	hasPrimary := hasKind(m.items, lead.KindPrimary)

	switch {
	case m.redelivered(item):
		// Redelivery of a line item already merged. Never summed twice.
		if item.Kind == lead.KindAddon {
			lead.FillMissing(&m.state, m.incoming)
			return
		}
		m.snapshot()

	case item.Kind == lead.KindAddon:
		lead.FillMissing(&m.state, m.incoming)
		m.items = append(m.items, item)
		m.bump(ReasonAddon)

	case !hasPrimary:
		// The primary arrived after its add-on: its identity replaces the
		// placeholder while the price carries forward.
		lead.Overlay(&m.state, m.incoming)
		m.items = append(m.items, item)
		m.bump(ReasonPrimaryOverAddon)

	case item.Price == nil:
		m.snapshot()

	default:
		if i := unpricedPrimary(m.items); i >= 0 && !m.contactConflict() {
			m.items[i] = item
			lead.Overlay(&m.state, m.incoming)
			m.bump(ReasonSnapshot)
			return
		}
		m.flagAmbiguous(&item)
		lead.FillMissing(&m.state, m.incoming)
		m.items = append(m.items, item)
	}
}

// redelivered claims a stored item equal to item. Each stored item absorbs at
// most one incoming item, and items merged by this call never match.
func (m *merger) redelivered(item lead.LineItem) bool {
	if m.fold {
		return false
	}
	for i, li := range m.priorItems {
		if !m.matched[i] && li.Same(item) {
			m.matched[i] = true
			return true
		}
	}
	return false
}

func (m *merger) flagAmbiguous(item *lead.LineItem) {
	m.ambiguous = true
	if item != nil {
		it := *item
		m.ambiguousItem = &it
	}
	m.bump(ReasonAmbiguous)
}

// contactConflict reports whether the incoming record names a different
// phone or email than the stored one.
func (m *merger) contactConflict() bool {
	return conflicts(m.prior.Phone, m.incoming.Phone) ||
		conflicts(strings.ToLower(m.prior.Email), strings.ToLower(m.incoming.Email))
}

func (m *merger) finish() lead.Fields {
	out := m.state

	// Lifecycle fields belong to the CRM once a lead exists; incoming
	// records only carry the intake defaults.
	if m.prior.Status != "" {
		out.Status = m.prior.Status
	}
	if m.prior.Disposition != "" {
		out.Disposition = m.prior.Disposition
	}

	items := sortItems(m.items)
	if len(items) > 0 {
		out.LineItems = items
		out.Price = lead.PriceTotal(items)
		out.Product = productOf(items, out.Product)
	}

	var extra string
	if m.ambiguous {
		extra = ambiguousNote(m.prior, m.priorItems, m.incoming, m.ambiguousItem, out.Price)
	}
	premium := premiumNote(items)
	if premium != "" || extra != "" {
		out.Notes = rebuildNotes(m.prior.Notes, premium, extra)
	}
	out.FillDefaults()
	return out
}

func conflicts(a, b string) bool {
	return a != "" && b != "" && a != b
}

func hasKind(items []lead.LineItem, kind lead.Kind) bool {
	for _, li := range items {
		if li.Kind == kind {
			return true
		}
	}
	return false
}

func unpricedPrimary(items []lead.LineItem) int {
	for i, li := range items {
		if li.Kind == lead.KindPrimary && li.Price == nil {
			return i
		}
	}
	return -1
}

// sortItems puts primaries first, keeping arrival order otherwise, so both
// delivery orders of one lead store identical line items.
func sortItems(items []lead.LineItem) []lead.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := append([]lead.LineItem(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Kind == lead.KindPrimary && out[j].Kind != lead.KindPrimary
	})
	return out
}

// productOf is the product of the first primary line item, or of the first
// item when the lead has add-ons only.
func productOf(items []lead.LineItem, fallback string) string {
	for _, li := range items {
		if li.Kind == lead.KindPrimary {
			return li.Product
		}
	}
	if len(items) > 0 {
		return items[0].Product
	}
	return fallback
}
