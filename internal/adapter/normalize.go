package adapter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var nonDigits = regexp.MustCompile(`\D`)

// FormatPhone strips everything but digits and renders 10-digit numbers, or
// 11-digit numbers with a leading country code 1, as (XXX) XXX-XXXX. Other
// lengths come back as the bare digits.
func FormatPhone(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return digits
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
}

// FormatHeight renders a height as feet'inches". Heights that already carry
// a ' or " pass through. Three-digit values like 511 are read as 5'11" when
// the last two digits are a valid inch count, other values in 24..107 are
// raw inches.
func FormatHeight(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, `'"`) {
		return raw
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return raw
		}
		n = int(f)
	}

	if len(raw) == 3 && n >= 100 {
		if feet, inches := n/100, n%100; inches < 12 {
			return fmt.Sprintf(`%d'%d"`, feet, inches)
		}
	}
	if n >= 24 && n <= 107 {
		return fmt.Sprintf(`%d'%d"`, n/12, n%12)
	}
	return raw
}

// FormatGender maps free text to Male or Female by its first letter.
func FormatGender(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	switch raw[0] {
	case 'm', 'M':
		return "Male"
	case 'f', 'F':
		return "Female"
	}
	return ""
}

var dobLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
	"01/02/06",
	"1/2/06",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FormatDOB renders a date of birth as YYYY-MM-DD when a common layout
// parses it; anything else is passed through trimmed.
func FormatDOB(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}

// ParsePrice reads a decimal price, tolerating a currency sign and thousands
// separators. ok is false when no number was reported.
func ParsePrice(v interface{}) (float64, bool) {
	switch p := v.(type) {
	case float64:
		return p, true
	case json.Number:
		f, err := p.Float64()
		return f, err == nil
	case int:
		return float64(p), true
	case int64:
		return float64(p), true
	case string:
		s := strings.TrimSpace(p)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// ParseBool accepts JSON booleans and the usual yes/no spellings.
func ParseBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case json.Number:
		return parseBoolString(b.String())
	case float64:
		if b == 1 {
			return true, true
		}
		if b == 0 {
			return false, true
		}
		return false, false
	case string:
		return parseBoolString(b)
	}
	return false, false
}

func parseBoolString(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "t", "y":
		return true, true
	case "false", "no", "0", "f", "n":
		return false, true
	}
	return false, false
}

// ParseInt reads whole numbers, truncating integral floats like "120.0".
func ParseInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		return int(f), err == nil
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return int(f), err == nil
	}
	return 0, false
}

// ParseList accepts arrays or comma-separated strings.
func ParseList(v interface{}) []string {
	var parts []string
	switch l := v.(type) {
	case []interface{}:
		for _, item := range l {
			parts = append(parts, stringify(item))
		}
	case []string:
		parts = l
	case string:
		parts = strings.Split(l, ",")
	default:
		return nil
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// stringify renders a scalar JSON value; composite values render empty.
func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}
