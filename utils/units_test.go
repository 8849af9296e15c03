package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBaseUnits(t *testing.T) {
	assert.Equal(t, "0", FormatBaseUnits(0))
	assert.Equal(t, "1", FormatBaseUnits(1_000_000_000))
	assert.Equal(t, "1.5", FormatBaseUnits(1_500_000_000))
	assert.Equal(t, "0.000000001", FormatBaseUnits(1))
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1", 1_000_000_000, false},
		{"1.5", 1_500_000_000, false},
		{"0.000000001", 1, false},
		{"0", 0, false},
		{"", 0, true},
		{"-1", 0, true},
		{"0.0000000001", 0, true},
		{"nonsense", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, amount := range []uint64{0, 1, 999_999_999, 1_000_000_000, 123_456_789_012} {
		got, err := ParseUnits(FormatBaseUnits(amount))
		require.NoError(t, err)
		assert.Equal(t, amount, got)
	}
}
