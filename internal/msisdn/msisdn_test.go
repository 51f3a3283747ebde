package msisdn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer("49")

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"international double zero", "0049 170 1234567", "491701234567"},
		{"local leading zero", "017012 34567", "491701234567"},
		{"already normalized", "491701234567", "491701234567"},
		{"plus prefix", "+49 170 1234567", "491701234567"},
		{"separators and garbage", "0170/123-45.67abc", "491701234567"},
		{"empty", "", ""},
		{"only garbage", "abc-/.", ""},
		{"bare zero", "0", "49"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.raw))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer("49")

	inputs := []string{
		"0049 170 1234567",
		"017012 34567",
		"+431234567",
		"00 00 1234",
		"",
		"garbage",
	}
	for _, raw := range inputs {
		once := n.Normalize(raw)
		assert.Equal(t, once, n.Normalize(once), "normalize must be idempotent for %q", raw)
	}
}

func TestNormalizeSameNumberDifferentFormats(t *testing.T) {
	n := NewNormalizer("49")

	local := n.Normalize("017012 34567")
	international := n.Normalize("0049 170 1234567")
	assert.Equal(t, international, local)
}
