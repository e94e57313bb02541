package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"leadintake/pkg/errors"
)

//go:embed lead.schema.json
var leadSchema []byte

const schemaURL = "lead.schema.json"

const (
	InvalidPayloadMessage = "Invalid payload format"
	// MissingContactMessage and ContactField report a payload whose mapped
	// fields carry neither phone nor email. The check runs after field
	// mapping so that every alias of the two counts.
	MissingContactMessage = "Lead must have either email or phone"
	ContactField          = "contact"
)

// Violation is one reason a payload was rejected.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator checks single webhook events against the embedded JSON Schema.
// It is safe for concurrent use.
type Validator struct {
	schema  *jsonschema.Schema
	printer *message.Printer
}

func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(leadSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse lead schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add lead schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile lead schema: %w", err)
	}

	return &Validator{schema: sch, printer: message.NewPrinter(language.English)}, nil
}

// Validate returns nil or an errors.ErrValidation carrying the violations in
// Details["violations"]. payload is a decoded JSON object; numbers may be
// float64 or json.Number.
func (v *Validator) Validate(payload map[string]interface{}) error {
	err := v.schema.Validate(payload)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return errors.ErrValidation.WithMessage(InvalidPayloadMessage).WithCause(err)
	}

	violations := v.collect(ve, nil)
	sort.SliceStable(violations, func(i, j int) bool { return violations[i].Field < violations[j].Field })
	return errors.ErrValidation.WithMessage(InvalidPayloadMessage).WithDetail("violations", violations)
}

// collect flattens the error tree into leaf violations. An anyOf reports its
// first branch only.
func (v *Validator) collect(ve *jsonschema.ValidationError, out []Violation) []Violation {
	if isAnyOf(ve) && len(ve.Causes) > 0 {
		return v.collect(ve.Causes[0], out)
	}
	if len(ve.Causes) == 0 {
		return append(out, Violation{
			Field:   fieldName(ve.InstanceLocation),
			Message: ve.ErrorKind.LocalizedString(v.printer),
		})
	}
	for _, cause := range ve.Causes {
		out = v.collect(cause, out)
	}
	return out
}

func isAnyOf(ve *jsonschema.ValidationError) bool {
	if ve.ErrorKind == nil {
		return false
	}
	path := ve.ErrorKind.KeywordPath()
	return len(path) > 0 && path[len(path)-1] == "anyOf"
}

func fieldName(location []string) string {
	if len(location) == 0 {
		return "payload"
	}
	return strings.Join(location, ".")
}

// Violations extracts the violations from a Validate error.
func Violations(err error) []Violation {
	var appErr *errors.Error
	if !errors.As(err, &appErr) {
		return nil
	}
	vs, _ := appErr.Details["violations"].([]Violation)
	return vs
}
