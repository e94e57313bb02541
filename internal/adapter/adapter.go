package adapter

import (
	"sort"
	"strings"

	"leadintake/internal/constants"
	"leadintake/internal/lead"
)

// Result is the outcome of normalizing one vendor record.
type Result struct {
	Fields lead.Fields
	// IdentityField is the raw field name the vendor lead identifier came
	// from, empty when the record carried none.
	IdentityField string
	// Unmapped holds the non-empty raw fields no canonical field claimed.
	Unmapped map[string]string
}

// record indexes raw fields by their folded name for alias lookup.
type record struct {
	raw     map[string]interface{}
	folded  map[string]string
	// claimed is keyed by folded name.
	claimed map[string]bool
}

func newRecord(raw map[string]interface{}) *record {
	r := &record{
		raw:     raw,
		folded:  make(map[string]string, len(raw)),
		claimed: make(map[string]bool),
	}

	// Sorted so that two raw spellings of one alias resolve deterministically,
	// preferring a non-empty value.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fk := foldKey(k)
		prev, taken := r.folded[fk]
		if !taken || (isEmpty(raw[prev]) && !isEmpty(raw[k])) {
			r.folded[fk] = k
		}
	}
	return r
}

// lookup returns the first non-empty value among the field's aliases, in
// alias order, and the raw key it came from. Every alias of the field is
// claimed, whether or not it won.
func (r *record) lookup(field string) (interface{}, string) {
	var (
		value interface{}
		key   string
	)
	for _, c := range candidates(field) {
		r.claimed[c] = true
		k, ok := r.folded[c]
		if !ok || value != nil {
			continue
		}
		if v := r.raw[k]; !isEmpty(v) {
			value, key = v, k
		}
	}
	return value, key
}

func (r *record) str(field string) string {
	v, _ := r.lookup(field)
	return stringify(v)
}

func (r *record) boolPtr(field string) *bool {
	v, _ := r.lookup(field)
	if v == nil {
		return nil
	}
	if b, ok := ParseBool(v); ok {
		return lead.Bool(b)
	}
	return nil
}

func (r *record) intPtr(field string) *int {
	v, _ := r.lookup(field)
	if v == nil {
		return nil
	}
	if n, ok := ParseInt(v); ok {
		return lead.Int(n)
	}
	return nil
}

func isEmpty(v interface{}) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	case []interface{}:
		return len(s) == 0
	}
	return false
}

// Normalize maps a raw vendor record onto the canonical lead shape. Fields it
// cannot resolve stay at their zero value so a later merge never mistakes
// them for a reported empty value. That includes the display name and source
// code: their vendor-label defaults are applied when a lead is created.
func Normalize(raw map[string]interface{}, vendor string) Result {
	if vendor == "" {
		vendor = constants.DefaultVendor
	}
	r := newRecord(raw)

	var f lead.Fields
	idValue, idKey := r.lookup(FieldVendorLeadID)
	f.VendorLeadID = stringify(idValue)

	f.FirstName = r.str(FieldFirstName)
	f.LastName = r.str(FieldLastName)
	if f.FirstName != "" || f.LastName != "" {
		f.Name = lead.DisplayName(f.FirstName, f.LastName, vendor)
	} else {
		f.Name = r.str(FieldFullName)
	}

	f.Email = strings.ToLower(r.str(FieldEmail))
	if p := r.str(FieldPhone); p != "" {
		f.Phone = FormatPhone(p)
	}

	f.Street1 = r.str(FieldStreet1)
	f.Street2 = r.str(FieldStreet2)
	f.City = r.str(FieldCity)
	f.State = strings.ToUpper(r.str(FieldState))
	f.Zipcode = r.str(FieldZipcode)

	if dob := r.str(FieldDOB); dob != "" {
		f.DOB = FormatDOB(dob)
	}
	f.Age = r.intPtr(FieldAge)
	f.Gender = FormatGender(r.str(FieldGender))
	f.Height = FormatHeight(r.str(FieldHeight))
	f.Weight = r.str(FieldWeight)

	f.TobaccoUser = r.boolPtr(FieldTobaccoUser)
	f.Pregnant = r.boolPtr(FieldPregnant)
	f.HasPrescription = r.boolPtr(FieldHasPrescription)
	f.HasMedicarePartsAB = r.boolPtr(FieldHasMedicarePartsAB)
	f.HasMedicalCondition = r.boolPtr(FieldHasMedicalCondition)
	if v, _ := r.lookup(FieldMedicalConditions); v != nil {
		f.MedicalConditions = ParseList(v)
	}
	f.HouseholdSize = r.str(FieldHouseholdSize)
	f.HouseholdIncome = r.str(FieldHouseholdIncome)

	f.CampaignName = r.str(FieldCampaignName)
	f.SourceHash = r.str(FieldSourceHash)
	f.SubIDHash = r.str(FieldSubIDHash)
	f.VendorName = r.str(FieldVendorName)
	f.AccountName = r.str(FieldAccountName)
	f.BidType = r.str(FieldBidType)

	f.Product = r.str(FieldProduct)
	if v, _ := r.lookup(FieldPrice); v != nil {
		if p, ok := ParsePrice(v); ok {
			f.Price = lead.Float(p)
		}
	}

	f.CallLogID = r.str(FieldCallLogID)
	f.CallDuration = r.intPtr(FieldCallDuration)

	f.Source = firstNonEmpty(r.str(FieldSource), vendor)
	f.Disposition = firstNonEmpty(r.str(FieldDisposition), constants.DefaultDisposition)
	f.Status = firstNonEmpty(r.str(FieldStatus), constants.DefaultStatus)
	f.SourceCode = firstNonEmpty(f.SourceHash, f.CampaignName)

	res := Result{Fields: f, IdentityField: idKey}
	for k, v := range raw {
		if r.claimed[foldKey(k)] {
			continue
		}
		if s := stringify(v); s != "" {
			if res.Unmapped == nil {
				res.Unmapped = make(map[string]string)
			}
			res.Unmapped[k] = s
		}
	}
	return res
}

// FromStrings adapts a CSV row to the raw record shape Normalize takes.
func FromStrings(row map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
