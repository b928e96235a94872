package xirr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundlens/internal/dates"
)

func TestCalculate_OneYearGrowth(t *testing.T) {
	flows := []CashFlow{
		{dates.MustParse("2023-01-01"), -10000},
		{dates.MustParse("2024-01-01"), 11000},
	}
	r := Calculate(flows)
	require.NotNil(t, r)
	assert.InDelta(t, 10.0, *r, 0.5)
}

func TestCalculate_NegativeReturn(t *testing.T) {
	flows := []CashFlow{
		{dates.MustParse("2023-01-01"), -10000},
		{dates.MustParse("2024-01-01"), 9000},
	}
	r := Calculate(flows)
	require.NotNil(t, r)
	assert.InDelta(t, -10.0, *r, 0.5)
}

func TestCalculate_MonthlySIP(t *testing.T) {
	flows := make([]CashFlow, 0, 13)
	for m := 1; m <= 12; m++ {
		flows = append(flows, CashFlow{dates.New(2023, time.Month(m), 1), -1000})
	}
	flows = append(flows, CashFlow{dates.MustParse("2024-01-01"), 13200})

	r := Calculate(flows)
	require.NotNil(t, r)
	// Flows are mid-point weighted, so the annualized rate sits well above
	// the naive 10% total return.
	assert.Greater(t, *r, 10.0)
	assert.Less(t, *r, 30.0)
}

func TestCalculate_NoPositiveFlow(t *testing.T) {
	flows := []CashFlow{
		{dates.MustParse("2023-01-01"), -10000},
		{dates.MustParse("2023-06-01"), -10000},
	}
	assert.Nil(t, Calculate(flows))
}

func TestCalculate_SingleFlow(t *testing.T) {
	assert.Nil(t, Calculate([]CashFlow{{dates.MustParse("2023-01-01"), -10000}}))
}

func TestCalculate_SameDayFlows(t *testing.T) {
	flows := []CashFlow{
		{dates.MustParse("2023-05-05"), -10000},
		{dates.MustParse("2023-05-05"), 10500},
	}
	r := Calculate(flows)
	require.NotNil(t, r)
	assert.InDelta(t, 5.0, *r, 1e-9)
}

func TestCalculate_UnsortedInputNotMutated(t *testing.T) {
	flows := []CashFlow{
		{dates.MustParse("2024-01-01"), 11000},
		{dates.MustParse("2023-01-01"), -10000},
	}
	r := Calculate(flows)
	require.NotNil(t, r)
	assert.InDelta(t, 10.0, *r, 0.5)
	assert.Equal(t, dates.MustParse("2024-01-01"), flows[0].Date)
}
