package lead

import (
	"strings"

	"github.com/google/uuid"
)

type KeyKind string

const (
	KeyVendorLeadID KeyKind = "vendor_lead_id"
	KeyPhone        KeyKind = "phone"
	KeyEmail        KeyKind = "email"
	KeyFallback     KeyKind = "fallback"
)

// Key is a derived deduplication key. It is never stored.
type Key struct {
	Kind  KeyKind
	Value string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.Value
}

// Keys lists every usable key of f in lookup precedence: vendor lead id,
// then phone, then email.
func Keys(f Fields) []Key {
	keys := make([]Key, 0, 3)
	if v := strings.TrimSpace(f.VendorLeadID); v != "" {
		keys = append(keys, Key{Kind: KeyVendorLeadID, Value: v})
	}
	if v := strings.TrimSpace(f.Phone); v != "" {
		keys = append(keys, Key{Kind: KeyPhone, Value: v})
	}
	if v := strings.ToLower(strings.TrimSpace(f.Email)); v != "" {
		keys = append(keys, Key{Kind: KeyEmail, Value: v})
	}
	return keys
}

// KeyFor returns the highest precedence key of f.
func KeyFor(f Fields) (Key, bool) {
	keys := Keys(f)
	if len(keys) == 0 {
		return Key{}, false
	}
	return keys[0], true
}

// FallbackKey is unique per call so identifier-less rows never group together.
func FallbackKey() Key {
	return Key{Kind: KeyFallback, Value: uuid.NewString()}
}
