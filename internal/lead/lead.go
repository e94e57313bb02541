package lead

import (
	"strings"
	"time"

	"leadintake/internal/constants"
)

type Kind string

const (
	KindPrimary Kind = "primary"
	KindAddon   Kind = "addon"
)

// KindOf classifies a vendor product discriminator. Only the premium listing
// product is an add-on; an absent product is a primary record.
func KindOf(product string) Kind {
	if strings.EqualFold(strings.TrimSpace(product), constants.ProductAddon) {
		return KindAddon
	}
	return KindPrimary
}

// LineItem is one vendor-reported product line merged into a Lead.
type LineItem struct {
	Kind    Kind     `json:"kind"`
	Product string   `json:"product,omitempty"`
	Price   *float64 `json:"price,omitempty"`
}

func (li LineItem) PriceValue() float64 {
	if li.Price == nil {
		return 0
	}
	return *li.Price
}

// Same reports whether two line items describe the same vendor line,
// i.e. a redelivery rather than a new product.
func (li LineItem) Same(other LineItem) bool {
	if li.Kind != other.Kind || !strings.EqualFold(li.Product, other.Product) {
		return false
	}
	if li.Price == nil || other.Price == nil {
		return li.Price == nil && other.Price == nil
	}
	return roundCents(*li.Price) == roundCents(*other.Price)
}

func roundCents(v float64) int64 {
	if v < 0 {
		return int64(v*100 - 0.5)
	}
	return int64(v*100 + 0.5)
}

// Fields is the canonical, vendor-independent shape of a lead. Zero values
// mean "not reported": the empty string, a nil pointer, a nil slice or map.
type Fields struct {
	VendorLeadID string `json:"vendorLeadId,omitempty"`

	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`

	Street1 string `json:"street1,omitempty"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zipcode string `json:"zipcode,omitempty"`

	DOB                 string   `json:"dob,omitempty"`
	Age                 *int     `json:"age,omitempty"`
	Gender              string   `json:"gender,omitempty"`
	Height              string   `json:"height,omitempty"`
	Weight              string   `json:"weight,omitempty"`
	TobaccoUser         *bool    `json:"tobaccoUser,omitempty"`
	Pregnant            *bool    `json:"pregnant,omitempty"`
	HasPrescription     *bool    `json:"hasPrescription,omitempty"`
	HasMedicarePartsAB  *bool    `json:"hasMedicarePartsAB,omitempty"`
	HasMedicalCondition *bool    `json:"hasMedicalCondition,omitempty"`
	MedicalConditions   []string `json:"medicalConditions,omitempty"`
	HouseholdSize       string   `json:"householdSize,omitempty"`
	HouseholdIncome     string   `json:"householdIncome,omitempty"`

	CampaignName string `json:"campaignName,omitempty"`
	SourceCode   string `json:"sourceCode,omitempty"`
	SourceHash   string `json:"sourceHash,omitempty"`
	SubIDHash    string `json:"subIdHash,omitempty"`
	VendorName   string `json:"vendorName,omitempty"`
	AccountName  string `json:"accountName,omitempty"`
	BidType      string `json:"bidType,omitempty"`

	Product string   `json:"product,omitempty"`
	Price   *float64 `json:"price,omitempty" merge:"-"`

	CallLogID    string `json:"callLogId,omitempty"`
	CallDuration *int   `json:"callDuration,omitempty"`

	Source      string `json:"source,omitempty"`
	Disposition string `json:"disposition,omitempty"`
	Status      string `json:"status,omitempty"`

	Notes      string            `json:"notes,omitempty" merge:"-"`
	LineItems  []LineItem        `json:"lineItems,omitempty" merge:"-"`
	VendorData map[string]string `json:"vendorData,omitempty"`
}

// Lead is a persisted record.
type Lead struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Fields
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	EnrichedAt *time.Time `json:"enrichedAt,omitempty"`
}

// LineItem derives the line item a freshly normalized record represents.
func (f Fields) LineItem() LineItem {
	return LineItem{Kind: KindOf(f.Product), Product: f.Product, Price: f.Price}
}

// Items returns the recorded line items, deriving one from the flat fields for
// records written before line items were tracked.
func (f Fields) Items() []LineItem {
	if len(f.LineItems) > 0 {
		return f.LineItems
	}
	if f.Price == nil && f.Product == "" {
		return nil
	}
	return []LineItem{f.LineItem()}
}

// HasPrimary reports whether any merged line item is a primary record.
func (f Fields) HasPrimary() bool {
	for _, li := range f.Items() {
		if li.Kind == KindPrimary {
			return true
		}
	}
	return false
}

// PriceTotal sums all line items; nil when no item reported a price.
func PriceTotal(items []LineItem) *float64 {
	var total float64
	seen := false
	for _, li := range items {
		if li.Price != nil {
			total += *li.Price
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &total
}

// DisplayName is "first last" or "<vendor> Lead" when neither part is known.
func DisplayName(first, last, vendor string) string {
	name := strings.TrimSpace(strings.Join([]string{strings.TrimSpace(first), strings.TrimSpace(last)}, " "))
	if name != "" {
		return name
	}
	if vendor == "" {
		vendor = constants.DefaultVendor
	}
	return vendor + " Lead"
}

// FillDefaults sets the display name and source code of a record whose
// vendor reported neither, using the source label as the vendor. A
// placeholder name gives way once a real name is known.
func (f *Fields) FillDefaults() {
	if f.Name == "" || f.Name == DisplayName("", "", f.Source) {
		f.Name = DisplayName(f.FirstName, f.LastName, f.Source)
	}
	switch {
	case f.SourceHash != "":
		f.SourceCode = f.SourceHash
	case f.CampaignName != "":
		f.SourceCode = f.CampaignName
	default:
		f.SourceCode = f.Source
	}
}

// Minimal keeps what the synchronous create must persist: identity, contact
// and the merge-relevant commercial fields.
func (f Fields) Minimal() Fields {
	return Fields{
		VendorLeadID: f.VendorLeadID,
		FirstName:    f.FirstName,
		LastName:     f.LastName,
		Name:         f.Name,
		Email:        f.Email,
		Phone:        f.Phone,
		Product:      f.Product,
		Price:        f.Price,
		LineItems:    f.LineItems,
		Source:       f.Source,
		Disposition:  f.Disposition,
		Status:       f.Status,
	}
}

// Clone copies f so that merging into the copy leaves f untouched.
func (f Fields) Clone() Fields {
	out := f
	if f.MedicalConditions != nil {
		out.MedicalConditions = append([]string(nil), f.MedicalConditions...)
	}
	if f.LineItems != nil {
		out.LineItems = append([]LineItem(nil), f.LineItems...)
	}
	if f.VendorData != nil {
		out.VendorData = make(map[string]string, len(f.VendorData))
		for k, v := range f.VendorData {
			out.VendorData[k] = v
		}
	}
	return out
}

func Float(v float64) *float64 { return &v }
func Bool(v bool) *bool        { return &v }
func Int(v int) *int           { return &v }
