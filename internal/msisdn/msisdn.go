// Package msisdn canonicalizes raw carrier phone identifiers into the
// stable key every other module keys on. Normalization is pure and
// total: malformed input degrades to a best-effort digit string.
package msisdn

import "strings"

// Normalizer rewrites raw MSISDNs into E.164-like digit strings.
type Normalizer struct {
	// DefaultCountryCode replaces a single leading zero (local dial form).
	DefaultCountryCode string
}

func NewNormalizer(defaultCountryCode string) Normalizer {
	// A country code with its own leading zeros would defeat idempotency.
	cc := strings.TrimLeft(digitsOnly(defaultCountryCode), "0")
	return Normalizer{DefaultCountryCode: cc}
}

// Normalize strips non-digits, removes international "00" prefixes and
// rewrites a single leading zero to the default country code. Applying
// Normalize to its own output returns the same value.
func (n Normalizer) Normalize(raw string) string {
	digits := digitsOnly(raw)
	if digits == "" {
		return ""
	}

	for strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}
	if strings.HasPrefix(digits, "0") {
		return n.DefaultCountryCode + digits[1:]
	}
	return digits
}

func digitsOnly(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
