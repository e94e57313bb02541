package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"leadintake/internal/config"
	"leadintake/internal/constants"
	"leadintake/pkg/cel"
	"leadintake/pkg/errors"
)

// Unknown is the terminal detection result; the caller must name the vendor.
const Unknown = "Unknown"

type vendorKey struct{}

// WithVendor carries the vendor classification of one batch.
func WithVendor(ctx context.Context, vendor string) context.Context {
	return context.WithValue(ctx, vendorKey{}, vendor)
}

func VendorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(vendorKey{}).(string); ok && v != "" {
		return v
	}
	return Unknown
}

// Sample is what detectors look at: the header row, the upload's file name
// and the first data row.
type Sample struct {
	Headers  []string
	Filename string
	Row      map[string]string
}

func (s Sample) hasHeader(h string) bool {
	for _, got := range s.Headers {
		if got == h {
			return true
		}
	}
	return false
}

// Detector is one vendor classification strategy.
type Detector interface {
	Name() string
	Vendor() string
	Matches(s Sample) bool
}

// fingerprint matches when any of its headers is present.
type fingerprint struct {
	name    string
	vendor  string
	headers []string
}

func (d fingerprint) Name() string   { return d.name }
func (d fingerprint) Vendor() string { return d.vendor }

func (d fingerprint) Matches(s Sample) bool {
	for _, h := range d.headers {
		if s.hasHeader(h) {
			return true
		}
	}
	return false
}

func NextGenFingerprint() Detector {
	return fingerprint{name: "nextgen_fingerprint", vendor: constants.DefaultVendor, headers: []string{"purchase_id", "vertical_id", "vendor_id"}}
}

func MarketplaceFingerprint() Detector {
	return fingerprint{name: "marketplace_fingerprint", vendor: constants.MarketplaceVendor, headers: []string{"leadID", "utm_source", "primaryPhone"}}
}

// filenameHint matches a vendor name inside the upload's file name.
type filenameHint struct {
	vendor string
	hint   string
}

func FilenameHint(vendor, hint string) Detector {
	return filenameHint{vendor: vendor, hint: strings.ToLower(hint)}
}

func (d filenameHint) Name() string   { return "filename_" + d.hint }
func (d filenameHint) Vendor() string { return d.vendor }

func (d filenameHint) Matches(s Sample) bool {
	return strings.Contains(strings.ToLower(filepath.Base(s.Filename)), d.hint)
}

type celDetector struct {
	name    string
	vendor  string
	program *cel.Program
}

func (d celDetector) Name() string   { return d.name }
func (d celDetector) Vendor() string { return d.vendor }

// Matches treats an evaluation error as no match.
func (d celDetector) Matches(s Sample) bool {
	ok, err := d.program.Eval(context.Background(), s.Headers, strings.ToLower(filepath.Base(s.Filename)), s.Row)
	return err == nil && ok
}

// NewDetectors builds the detection chain: configured CEL detectors first,
// then the built-in fingerprints, then file name hints.
func NewDetectors(cfgs []config.DetectorConfig, eval *cel.Evaluator) ([]Detector, error) {
	detectors := make([]Detector, 0, len(cfgs)+4)
	for _, c := range cfgs {
		if eval == nil {
			return nil, fmt.Errorf("detector %q needs a CEL evaluator", c.Name)
		}
		program, err := eval.CompileDetector(c.Expression)
		if err != nil {
			return nil, fmt.Errorf("detector %q: %w", c.Name, err)
		}
		detectors = append(detectors, celDetector{name: c.Name, vendor: c.Vendor, program: program})
	}

	return append(detectors,
		NextGenFingerprint(),
		MarketplaceFingerprint(),
		FilenameHint(constants.DefaultVendor, "nextgen"),
		FilenameHint(constants.MarketplaceVendor, "marketplace"),
	), nil
}

// Detect returns the vendor of a batch and the strategy that decided it. An
// override always wins. No match is a validation error asking for one.
func Detect(detectors []Detector, s Sample, override string) (string, string, error) {
	if v := strings.TrimSpace(override); v != "" {
		return canonicalVendor(v), "override", nil
	}
	for _, d := range detectors {
		if d.Matches(s) {
			return d.Vendor(), d.Name(), nil
		}
	}

	shown := s.Headers
	if len(shown) > 10 {
		shown = shown[:10]
	}
	return Unknown, "", errors.ErrValidation.
		WithMessage("Unable to detect vendor, pass a vendor override").
		WithDetail("headers", shown)
}

func canonicalVendor(v string) string {
	switch strings.ToLower(v) {
	case "nextgen":
		return constants.DefaultVendor
	case "marketplace":
		return constants.MarketplaceVendor
	}
	return v
}
