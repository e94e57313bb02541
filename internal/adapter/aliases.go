package adapter

import "strings"

// Canonical field names, in the snake_case the webhook schema documents.
const (
	FieldVendorLeadID        = "lead_id"
	FieldFirstName           = "first_name"
	FieldLastName            = "last_name"
	FieldFullName            = "name"
	FieldEmail               = "email"
	FieldPhone               = "phone"
	FieldStreet1             = "street_address"
	FieldStreet2             = "street2"
	FieldCity                = "city"
	FieldState               = "state"
	FieldZipcode             = "zip_code"
	FieldDOB                 = "dob"
	FieldAge                 = "age"
	FieldGender              = "gender"
	FieldHeight              = "height"
	FieldWeight              = "weight"
	FieldTobaccoUser         = "tobacco_user"
	FieldPregnant            = "pregnant"
	FieldHasPrescription     = "has_prescription"
	FieldHasMedicarePartsAB  = "has_medicare_parts_ab"
	FieldHasMedicalCondition = "has_medical_condition"
	FieldMedicalConditions   = "medical_conditions"
	FieldHouseholdSize       = "household_size"
	FieldHouseholdIncome     = "household_income"
	FieldCampaignName        = "campaign_name"
	FieldSourceHash          = "source_hash"
	FieldSubIDHash           = "sub_id_hash"
	FieldVendorName          = "vendor_name"
	FieldAccountName         = "account_name"
	FieldBidType             = "bid_type"
	FieldProduct             = "product"
	FieldPrice               = "price"
	FieldCallLogID           = "call_log_id"
	FieldCallDuration        = "call_duration"
	FieldSource              = "source"
	FieldDisposition         = "disposition"
	FieldStatus              = "status"
)

// aliases maps each canonical field to the vendor spellings seen in the wild.
// Lookup ignores case, '_', '-' and spaces, so "leadID", "lead_id" and
// "Lead-Id" are one alias. The canonical name is always tried first.
var aliases = map[string][]string{
	FieldVendorLeadID:        {"nextgen_id", "purchase_id"},
	FieldFirstName:           {"fname", "first"},
	FieldLastName:            {"lname", "last"},
	FieldFullName:            {"full_name"},
	FieldEmail:               {"email_address", "primary_email"},
	FieldPhone:               {"phone_number", "primary_phone", "phone1", "cell_phone", "mobile_phone", "home_phone"},
	FieldStreet1:             {"street1", "address", "address1", "street"},
	FieldStreet2:             {"address2"},
	FieldCity:                {"town"},
	FieldState:               {"state_code", "st"},
	FieldZipcode:             {"zipcode", "zip", "postal_code"},
	FieldDOB:                 {"date_of_birth", "birth_date", "birthdate"},
	FieldAge:                 {},
	FieldGender:              {"sex"},
	FieldHeight:              {},
	FieldWeight:              {},
	FieldTobaccoUser:         {"tobacco", "smoker", "tobacco_use"},
	FieldPregnant:            {"expectant_parent"},
	FieldHasPrescription:     {"prescription"},
	FieldHasMedicarePartsAB:  {"medicare_parts_ab"},
	FieldHasMedicalCondition: {"medical_condition"},
	FieldMedicalConditions:   {"conditions"},
	FieldHouseholdSize:       {"household"},
	FieldHouseholdIncome:     {"income", "annual_income"},
	FieldCampaignName:        {"campaign", "utm_campaign"},
	FieldSourceHash:          {},
	FieldSubIDHash:           {"sub_id"},
	FieldVendorName:          {"vendor"},
	FieldAccountName:         {},
	FieldBidType:             {},
	FieldProduct:             {"product_type", "listing_type"},
	FieldPrice:               {"lead_price", "cost"},
	FieldCallLogID:           {},
	FieldCallDuration:        {},
	FieldSource:              {},
	FieldDisposition:         {},
	FieldStatus:              {},
}

// foldKey reduces a field name to its alias-matching form.
func foldKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range strings.ToLower(k) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// candidates returns the folded alias list of a canonical field.
func candidates(field string) []string {
	out := make([]string, 0, len(aliases[field])+1)
	out = append(out, foldKey(field))
	for _, a := range aliases[field] {
		out = append(out, foldKey(a))
	}
	return out
}
