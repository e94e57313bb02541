package batch

import (
	"sort"

	"leadintake/internal/adapter"
	"leadintake/internal/constants"
)

// FieldMap translates a vendor's CSV headers to canonical field names.
// Columns it does not name are kept as vendor data.
type FieldMap map[string]string

var nextGenFields = FieldMap{
	"lead_id":                adapter.FieldVendorLeadID,
	"purchase_id":            adapter.FieldVendorLeadID,
	"first_name":             adapter.FieldFirstName,
	"last_name":              adapter.FieldLastName,
	"phone":                  adapter.FieldPhone,
	"email":                  adapter.FieldEmail,
	"street_1":               adapter.FieldStreet1,
	"street_2":               adapter.FieldStreet2,
	"city":                   adapter.FieldCity,
	"state":                  adapter.FieldState,
	"zipcode":                adapter.FieldZipcode,
	"zip":                    adapter.FieldZipcode,
	"dob":                    adapter.FieldDOB,
	"date_of_birth":          adapter.FieldDOB,
	"gender":                 adapter.FieldGender,
	"height":                 adapter.FieldHeight,
	"weight":                 adapter.FieldWeight,
	"household_size":         adapter.FieldHouseholdSize,
	"household_income":       adapter.FieldHouseholdIncome,
	"pregnant":               adapter.FieldPregnant,
	"tobacco_user":           adapter.FieldTobaccoUser,
	"has_prescription":       adapter.FieldHasPrescription,
	"has_medicare_parts_a_b": adapter.FieldHasMedicarePartsAB,
	"has_medical_condition":  adapter.FieldHasMedicalCondition,
	"medical_conditions":     adapter.FieldMedicalConditions,
	"campaign_name":          adapter.FieldCampaignName,
	"product":                adapter.FieldProduct,
	"vendor_name":            adapter.FieldVendorName,
	"account_name":           adapter.FieldAccountName,
	"bid_type":               adapter.FieldBidType,
	"price":                  adapter.FieldPrice,
	"call_log_id":            adapter.FieldCallLogID,
	"call_duration":          adapter.FieldCallDuration,
	"source_hash":            adapter.FieldSourceHash,
	"sub_id_hash":            adapter.FieldSubIDHash,
	"status":                 adapter.FieldStatus,
	"disposition":            adapter.FieldDisposition,
}

var marketplaceFields = FieldMap{
	"leadID":              adapter.FieldVendorLeadID,
	"firstName":           adapter.FieldFirstName,
	"lastName":            adapter.FieldLastName,
	"primaryPhone":        adapter.FieldPhone,
	"email":               adapter.FieldEmail,
	"address1":            adapter.FieldStreet1,
	"address2":            adapter.FieldStreet2,
	"city":                adapter.FieldCity,
	"stateCode":           adapter.FieldState,
	"state":               adapter.FieldState,
	"State":               adapter.FieldState,
	"postalCode":          adapter.FieldZipcode,
	"dateOfBirth":         adapter.FieldDOB,
	"gender":              adapter.FieldGender,
	"height":              adapter.FieldHeight,
	"weight":              adapter.FieldWeight,
	"householdSize":       adapter.FieldHouseholdSize,
	"householdIncome":     adapter.FieldHouseholdIncome,
	"isPregnant":          adapter.FieldPregnant,
	"tobaccoUse":          adapter.FieldTobaccoUser,
	"hasPrescriptions":    adapter.FieldHasPrescription,
	"hasMedicare":         adapter.FieldHasMedicarePartsAB,
	"hasMedicalCondition": adapter.FieldHasMedicalCondition,
	"medicalConditions":   adapter.FieldMedicalConditions,
	"status":              adapter.FieldStatus,
	"disposition":         adapter.FieldDisposition,
}

// FieldMapFor returns the header map of a known vendor. Other vendors go
// through the adapter's alias resolution as-is.
func FieldMapFor(vendor string) (FieldMap, bool) {
	switch vendor {
	case constants.DefaultVendor:
		return nextGenFields, true
	case constants.MarketplaceVendor:
		return marketplaceFields, true
	}
	return nil, false
}

// Apply splits a row into the raw record handed to the adapter and the
// columns the map does not know.
func (m FieldMap) Apply(row map[string]string) (map[string]interface{}, map[string]string) {
	headers := make([]string, 0, len(row))
	for header := range row {
		headers = append(headers, header)
	}
	sort.Strings(headers)

	raw := make(map[string]interface{}, len(row))
	var extra map[string]string
	for _, header := range headers {
		v := row[header]
		if v == "" {
			continue
		}
		field, ok := m[header]
		if !ok {
			if extra == nil {
				extra = make(map[string]string)
			}
			extra[header] = v
			continue
		}
		// Two headers may map to one field; the first in sort order stays.
		if _, taken := raw[field]; !taken {
			raw[field] = v
		}
	}
	return raw, extra
}
