package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinorUnits(t *testing.T) {
	got, err := ParseMinorUnits("1000")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), got)

	got, err = ParseMinorUnits("18446744073709551615")
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), got)

	for _, bad := range []string{"", "-1", "1.5", "abc", "18446744073709551616"} {
		_, err := ParseMinorUnits(bad)
		assert.Error(t, err, "amount %q", bad)
	}
}

func TestFormatMinorUnitsRoundTrip(t *testing.T) {
	for _, amount := range []uint64{0, 1, 1000, 18446744073709551615} {
		parsed, err := ParseMinorUnits(FormatMinorUnits(amount))
		require.NoError(t, err)
		assert.Equal(t, amount, parsed)
	}
}

func TestToDisplayUnits(t *testing.T) {
	assert.Equal(t, "0.01", ToDisplayUnits(10000, 6))
	assert.Equal(t, "1", ToDisplayUnits(1000000, 6))
}
