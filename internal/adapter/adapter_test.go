package adapter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"5551234567", "(555) 123-4567"},
		{"555-123-4567", "(555) 123-4567"},
		{"+1 (555) 123-4567", "(555) 123-4567"},
		{"15551234567", "(555) 123-4567"},
		{"25551234567", "25551234567"},
		{"12345", "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPhone(tt.in))
		})
	}
}

func TestFormatHeight(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"71", `5'11"`},
		{"60", `5'0"`},
		{"511", `5'11"`},
		{"600", `6'0"`},
		{"72.0", `6'0"`},
		{`5'11"`, `5'11"`},
		{"5' 9", "5' 9"},
		{"180", "180"},
		{"tall", "tall"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatHeight(tt.in))
		})
	}
}

func TestFormatGender(t *testing.T) {
	assert.Equal(t, "Male", FormatGender("m"))
	assert.Equal(t, "Male", FormatGender(" MALE "))
	assert.Equal(t, "Female", FormatGender("female"))
	assert.Equal(t, "Female", FormatGender("F"))
	assert.Equal(t, "", FormatGender("unknown"))
	assert.Equal(t, "", FormatGender(""))
}

func TestFormatDOB(t *testing.T) {
	assert.Equal(t, "1980-04-09", FormatDOB("04/09/1980"))
	assert.Equal(t, "1980-04-09", FormatDOB("4/9/1980"))
	assert.Equal(t, "1980-04-09", FormatDOB("1980-04-09"))
	assert.Equal(t, "1980-04-09", FormatDOB("1980-04-09T00:00:00Z"))
	assert.Equal(t, "sometime", FormatDOB(" sometime "))
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want float64
		ok   bool
	}{
		{"string", "10", 10, true},
		{"decimal string", "12.50", 12.5, true},
		{"currency", "$1,250.00", 1250, true},
		{"json number", json.Number("7.25"), 7.25, true},
		{"float", 3.0, 3, true},
		{"zero", "0", 0, true},
		{"text", "free", 0, false},
		{"empty", "", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []interface{}{true, "yes", "Y", "1", "TRUE", "t", json.Number("1")} {
		b, ok := ParseBool(v)
		assert.True(t, ok, "%v", v)
		assert.True(t, b, "%v", v)
	}
	for _, v := range []interface{}{false, "no", "N", "0", "false", "f", 0.0} {
		b, ok := ParseBool(v)
		assert.True(t, ok, "%v", v)
		assert.False(t, b, "%v", v)
	}
	_, ok := ParseBool("maybe")
	assert.False(t, ok)
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"asthma", "diabetes"}, ParseList("asthma, diabetes,"))
	assert.Equal(t, []string{"asthma"}, ParseList([]interface{}{"asthma", ""}))
	assert.Nil(t, ParseList(" , "))
	assert.Nil(t, ParseList(42.0))
}

func decode(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestNormalize_CanonicalFields(t *testing.T) {
	raw := decode(t, `{
		"lead_id": "abc123",
		"first_name": " Jane ",
		"last_name": "Doe",
		"email": " Jane.Doe@Example.COM ",
		"phone": "555.123.4567",
		"city": " Boise ",
		"state": "id",
		"zip_code": "83702",
		"dob": "04/09/1980",
		"age": 44,
		"gender": "f",
		"height": "66",
		"tobacco_user": "no",
		"has_prescription": true,
		"medical_conditions": ["asthma"],
		"campaign_name": "spring",
		"price": "10",
		"call_duration": "120"
	}`)

	res := Normalize(raw, "NextGen")
	f := res.Fields

	assert.Equal(t, "abc123", f.VendorLeadID)
	assert.Equal(t, "lead_id", res.IdentityField)
	assert.Equal(t, "Jane", f.FirstName)
	assert.Equal(t, "Jane Doe", f.Name)
	assert.Equal(t, "jane.doe@example.com", f.Email)
	assert.Equal(t, "(555) 123-4567", f.Phone)
	assert.Equal(t, "Boise", f.City)
	assert.Equal(t, "ID", f.State)
	assert.Equal(t, "83702", f.Zipcode)
	assert.Equal(t, "1980-04-09", f.DOB)
	require.NotNil(t, f.Age)
	assert.Equal(t, 44, *f.Age)
	assert.Equal(t, "Female", f.Gender)
	assert.Equal(t, `5'6"`, f.Height)
	require.NotNil(t, f.TobaccoUser)
	assert.False(t, *f.TobaccoUser)
	require.NotNil(t, f.HasPrescription)
	assert.True(t, *f.HasPrescription)
	assert.Nil(t, f.Pregnant)
	assert.Equal(t, []string{"asthma"}, f.MedicalConditions)
	require.NotNil(t, f.Price)
	assert.Equal(t, 10.0, *f.Price)
	require.NotNil(t, f.CallDuration)
	assert.Equal(t, 120, *f.CallDuration)

	assert.Equal(t, "NextGen", f.Source)
	assert.Equal(t, "New Lead", f.Disposition)
	assert.Equal(t, "New", f.Status)
	assert.Equal(t, "spring", f.SourceCode)
	assert.Empty(t, res.Unmapped)
}

func TestNormalize_Aliases(t *testing.T) {
	tests := []struct {
		name string
		body string
		id   string
	}{
		{"camelCase", `{"leadId": "x1", "phone": "5551234567"}`, "x1"},
		{"all caps ID", `{"leadID": "x2", "phone": "5551234567"}`, "x2"},
		{"nextgen id", `{"nextgenId": "x3", "phone": "5551234567"}`, "x3"},
		{"purchase id", `{"purchase_id": "x4", "phone": "5551234567"}`, "x4"},
		{"canonical wins over alias", `{"purchase_id": "alias", "lead_id": "canonical"}`, "canonical"},
		{"empty canonical falls through", `{"lead_id": "", "nextgen_id": "x5"}`, "x5"},
		{"numeric id", `{"lead_id": 12345}`, "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(decode(t, tt.body), "NextGen")
			assert.Equal(t, tt.id, res.Fields.VendorLeadID)
		})
	}
}

func TestNormalize_OmitsUnresolvable(t *testing.T) {
	res := Normalize(decode(t, `{"email": "a@b.co", "price": "n/a", "gender": "x", "age": "old", "city": ""}`), "NextGen")
	f := res.Fields

	assert.Nil(t, f.Price)
	assert.Empty(t, f.Gender)
	assert.Nil(t, f.Age)
	assert.Empty(t, f.City)
	assert.Empty(t, f.Phone)
	assert.Empty(t, f.VendorLeadID)
	assert.Empty(t, res.IdentityField)
}

func TestNormalize_LeavesUnreportedNameAndSourceCode(t *testing.T) {
	res := Normalize(decode(t, `{"phone": "5551234567"}`), "Marketplace")
	assert.Empty(t, res.Fields.Name)
	assert.Empty(t, res.Fields.SourceCode)
	assert.Equal(t, "Marketplace", res.Fields.Source)

	f := res.Fields
	f.FillDefaults()
	assert.Equal(t, "Marketplace Lead", f.Name)
	assert.Equal(t, "Marketplace", f.SourceCode)

	res = Normalize(decode(t, `{"phone": "5551234567", "full_name": "Pat Smith"}`), "")
	assert.Equal(t, "Pat Smith", res.Fields.Name)
	assert.Equal(t, "NextGen", res.Fields.Source)
}

func TestNormalize_Unmapped(t *testing.T) {
	res := Normalize(FromStrings(map[string]string{
		"phone":       "5551234567",
		"vertical_id": "7",
		"notes_extra": "",
		"Email":       "a@b.co",
	}), "NextGen")

	assert.Equal(t, map[string]string{"vertical_id": "7"}, res.Unmapped)
	assert.Equal(t, "a@b.co", res.Fields.Email)
}
