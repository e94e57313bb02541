package schema

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadintake/pkg/errors"
)

func payload(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var raw map[string]interface{}
	require.NoError(t, dec.Decode(&raw))
	return raw
}

func fields(vs []Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Field)
	}
	return out
}

func TestValidator_Validate(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	t.Run("valid with phone", func(t *testing.T) {
		err := v.Validate(payload(t, `{"lead_id": "abc123", "phone": "5551234567", "price": "10", "state": "ID", "age": 44}`))
		assert.NoError(t, err)
	})

	t.Run("valid with email only", func(t *testing.T) {
		assert.NoError(t, v.Validate(payload(t, `{"email": "jane@example.com"}`)))
	})

	t.Run("numeric phone", func(t *testing.T) {
		assert.NoError(t, v.Validate(payload(t, `{"phone": 5551234567, "price": 12.5}`)))
	})

	t.Run("unknown fields tolerated", func(t *testing.T) {
		assert.NoError(t, v.Validate(payload(t, `{"phone": "5551234567", "vertical_id": 9, "extra": {"nested": true}}`)))
	})

	t.Run("contact is left to field mapping", func(t *testing.T) {
		assert.NoError(t, v.Validate(payload(t, `{"lead_id": "abc123", "first_name": "Jane"}`)))
		assert.NoError(t, v.Validate(payload(t, `{"Phone": "5551234567"}`)))
		assert.NoError(t, v.Validate(payload(t, `{"email_address": "jane@example.com"}`)))
	})

	t.Run("medical conditions as list or text", func(t *testing.T) {
		assert.NoError(t, v.Validate(payload(t, `{"phone": "5551234567", "medical_conditions": ["asthma"]}`)))
		assert.NoError(t, v.Validate(payload(t, `{"phone": "5551234567", "medical_conditions": "asthma, diabetes"}`)))

		err := v.Validate(payload(t, `{"phone": "5551234567", "medical_conditions": 3}`))
		require.Error(t, err)
		assert.Equal(t, []string{"medical_conditions"}, fields(Violations(err)))
	})

	t.Run("bad email", func(t *testing.T) {
		err := v.Validate(payload(t, `{"phone": "5551234567", "email": "not-an-email"}`))
		require.Error(t, err)
		assert.Equal(t, []string{"email"}, fields(Violations(err)))
	})

	t.Run("state length", func(t *testing.T) {
		err := v.Validate(payload(t, `{"phone": "5551234567", "state": "Idaho"}`))
		require.Error(t, err)
		assert.Equal(t, []string{"state"}, fields(Violations(err)))
	})

	t.Run("wrong types", func(t *testing.T) {
		err := v.Validate(payload(t, `{"phone": "5551234567", "age": "forty", "pregnant": "maybe"}`))
		require.Error(t, err)
		assert.ElementsMatch(t, []string{"age", "pregnant"}, fields(Violations(err)))

		var appErr *errors.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, InvalidPayloadMessage, appErr.Message)
	})
}
