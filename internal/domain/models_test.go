package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Symbol
	}{
		{"already upper", "BTC", "BTC"},
		{"lower case", "eth", "ETH"},
		{"surrounding spaces", "  xrp ", "XRP"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSymbol(tt.raw))
		})
	}
}

func TestParseChangeSign(t *testing.T) {
	tests := []struct {
		raw      string
		expected ChangeSign
	}{
		{"RISE", ChangeRise},
		{"fall", ChangeFall},
		{"EVEN", ChangeEven},
		{"", ChangeEven},
		{"SIDEWAYS", ChangeEven},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseChangeSign(tt.raw))
		})
	}
}
