package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundlens/internal/dates"
)

func TestNewWeightFraction(t *testing.T) {
	cases := []struct {
		in      float64
		want    float64
		wantErr bool
	}{
		{9.37, 0.0937, false}, // percentage input
		{0.0937, 0.0937, false},
		{1, 1, false}, // exactly 1 is already a fraction
		{100, 1, false},
		{0, 0, false},
		{-0.5, 0, true},
		{101, 0, true},
	}
	for _, tc := range cases {
		got, err := NewWeightFraction(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %v", tc.in)
			continue
		}
		require.NoError(t, err, "input %v", tc.in)
		assert.InDelta(t, tc.want, got.Fraction(), 1e-12, "input %v", tc.in)
	}
}

func validSIPRecord() *InvestmentRecord {
	return &InvestmentRecord{
		OwnerID:  "user-1",
		FundName: "Test Fund",
		Kind:     KindSIP,
		SIP: &SIPConfig{
			MonthlyAmount: decimal.NewFromInt(1000),
			DayOfMonth:    5,
			StartDate:     dates.MustParse("2023-01-05"),
		},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validSIPRecord().Validate())

	lump := &InvestmentRecord{
		OwnerID:        "user-1",
		FundName:       "Test Fund",
		Kind:           KindLumpSum,
		InvestedAmount: decimal.NewFromInt(10000),
	}
	assert.NoError(t, lump.Validate())

	rec := validSIPRecord()
	rec.OwnerID = ""
	assert.Error(t, rec.Validate())

	rec = validSIPRecord()
	rec.SIP = nil
	assert.Error(t, rec.Validate())

	rec = validSIPRecord()
	rec.SIP.DayOfMonth = 32
	assert.Error(t, rec.Validate())

	rec = validSIPRecord()
	rec.Kind = "SOMETHING"
	assert.Error(t, rec.Validate())

	lump.InvestedAmount = decimal.Zero
	assert.Error(t, lump.Validate())
}

func TestValidate_UnitsImplyPaid(t *testing.T) {
	units := decimal.NewFromInt(10)
	rec := validSIPRecord()
	rec.Installments = []Installment{
		{Date: dates.MustParse("2023-01-05"), Amount: decimal.NewFromInt(1000), Status: StatusPaid, Units: &units},
	}
	assert.NoError(t, rec.Validate())

	rec.Installments[0].Status = StatusAssumedPaid
	assert.Error(t, rec.Validate())
}
