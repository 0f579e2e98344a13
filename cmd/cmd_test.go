package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$1,234.50", formatAmount(1234.5, "USD"))
	assert.Equal(t, "-$10.00", formatAmount(-10, "USD"))
	assert.Equal(t, "$0.01", formatAmount(0.005, "USD"))
	assert.Equal(t, "$7.00", formatAmount(7, "not-a-currency"))
}

func TestParsePeriods(t *testing.T) {
	periods, err := parsePeriods("2024-01", "2024-03")
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.Equal(t, "2024-01", periods[0].Label)
	assert.Equal(t, "2024-03", periods[2].Label)

	_, err = parsePeriods("January", "2024-03")
	assert.Error(t, err)
	_, err = parsePeriods("2024-03", "2024-01")
	assert.Error(t, err)
}
