// Package models holds the persisted record shapes shared by the store, the
// installment tracker and the valuation service.
package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fundlens/internal/dates"
)

// InvestmentKind tags the two record variants.
type InvestmentKind string

const (
	KindLumpSum InvestmentKind = "LUMPSUM"
	KindSIP     InvestmentKind = "SIP"
)

// InstallmentStatus is the lifecycle state of one SIP installment.
type InstallmentStatus string

const (
	StatusPending     InstallmentStatus = "PENDING"
	StatusPaid        InstallmentStatus = "PAID"
	StatusSkipped     InstallmentStatus = "SKIPPED"
	StatusAssumedPaid InstallmentStatus = "ASSUMED_PAID"
)

// AllocationStatus tracks how far unit allocation has progressed for a PAID
// installment.
type AllocationStatus string

const (
	AllocPendingNav AllocationStatus = "PENDING_NAV"
	AllocEstimated  AllocationStatus = "ESTIMATED"
	AllocConfirmed  AllocationStatus = "CONFIRMED"
)

// StepUpFrequency controls how often a SIP escalation applies.
type StepUpFrequency string

const (
	StepUpAnnual     StepUpFrequency = "ANNUAL"
	StepUpHalfYearly StepUpFrequency = "HALF_YEARLY"
	StepUpQuarterly  StepUpFrequency = "QUARTERLY"
)

// Months returns the whole-month span one period covers.
func (f StepUpFrequency) Months() int {
	switch f {
	case StepUpHalfYearly:
		return 6
	case StepUpQuarterly:
		return 3
	default:
		return 12
	}
}

// StepUpRule escalates the monthly SIP amount. Exactly one of Percent or
// FlatAmount is non-zero.
type StepUpRule struct {
	Frequency   StepUpFrequency `json:"frequency"`
	Percent     float64         `json:"percent,omitempty"`
	FlatAmount  decimal.Decimal `json:"flat_amount,omitempty"`
	LastApplied dates.Date      `json:"last_applied,omitempty"`
}

// Holding is one disclosed constituent of a fund portfolio. Immutable once
// the symbol is resolved.
type Holding struct {
	ISIN   string         `json:"isin"`
	Name   string         `json:"name"`
	Symbol string         `json:"symbol,omitempty"`
	Weight WeightFraction `json:"weight"`
}

// Installment is one scheduled SIP purchase.
type Installment struct {
	Date       dates.Date        `json:"date"`
	Amount     decimal.Decimal   `json:"amount"`
	Units      *decimal.Decimal  `json:"units,omitempty"`
	Nav        *decimal.Decimal  `json:"nav,omitempty"`
	NavDate    *dates.Date       `json:"nav_date,omitempty"`
	Status     InstallmentStatus `json:"status"`
	Allocation AllocationStatus  `json:"allocation,omitempty"`
}

// NavSample is one point of official NAV history, newest first in a series.
type NavSample struct {
	Date  dates.Date
	Value decimal.Decimal
}

// QuoteResult is the ephemeral outcome of one quote fetch.
type QuoteResult struct {
	Symbol        string
	PercentChange *float64
	Source        string
}

// SIPConfig is the recurring-purchase configuration of a SIP record.
type SIPConfig struct {
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	DayOfMonth    int             `json:"day_of_month"`
	StartDate     dates.Date      `json:"start_date"`
	StepUp        *StepUpRule     `json:"step_up,omitempty"`
}

// InvestmentRecord is the persisted unit of tracking: one fund position owned
// by one user, either a lump sum or a SIP.
type InvestmentRecord struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	FundName   string         `json:"fund_name"`
	Nickname   string         `json:"nickname,omitempty"`
	SchemeCode string         `json:"scheme_code,omitempty"`
	Kind       InvestmentKind `json:"kind"`

	// Lump-sum principal.
	InvestedAmount decimal.Decimal `json:"invested_amount,omitempty"`
	InvestedDate   dates.Date      `json:"invested_date,omitempty"`

	SIP *SIPConfig `json:"sip,omitempty"`

	Holdings     []Holding     `json:"holdings"`
	Installments []Installment `json:"installments,omitempty"`

	// Opening balance imported from an external statement. Never touched by
	// installment actioning.
	ManualUnits    decimal.Decimal `json:"manual_units,omitempty"`
	ManualInvested decimal.Decimal `json:"manual_invested,omitempty"`

	// Derived cache, recomputed on every valuation.
	CurrentNav   decimal.Decimal `json:"current_nav,omitempty"`
	CurrentValue decimal.Decimal `json:"current_value,omitempty"`
	ProfitLoss   decimal.Decimal `json:"profit_loss,omitempty"`
}

// ValuationResult is computed fresh per request and never persisted as-is.
type ValuationResult struct {
	FundID        string          `json:"fund_id"`
	FundName      string          `json:"fund_name"`
	Nickname      string          `json:"nickname,omitempty"`
	CurrentNav    decimal.Decimal `json:"current_nav"`
	ReferenceNav  decimal.Decimal `json:"reference_nav"`
	PurchaseNav   decimal.Decimal `json:"purchase_nav,omitempty"`
	Units         decimal.Decimal `json:"units"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	ProfitLoss    decimal.Decimal `json:"pnl"`
	ProfitLossPct float64         `json:"pnl_pct"`
	DayProfitLoss decimal.Decimal `json:"day_pnl"`
	DayChangePct  float64         `json:"day_pnl_pct"`
	XIRR          *float64        `json:"xirr,omitempty"`
	IsEstimated   bool            `json:"is_estimated"`
	Note          string          `json:"note"`
	Pending       []Installment   `json:"pending_installments,omitempty"`
}

// UpdatedTotals is returned after an installment action.
type UpdatedTotals struct {
	TotalInvested decimal.Decimal `json:"total_invested"`
	TotalUnits    decimal.Decimal `json:"total_units"`
	Installment   Installment     `json:"installment"`
}

// SchemeCandidate is one ranked result of a fuzzy scheme-name lookup.
type SchemeCandidate struct {
	SchemeCode string  `json:"scheme_code"`
	SchemeName string  `json:"scheme_name"`
	Score      float64 `json:"score"`
}

// Validate rejects records that would corrupt downstream arithmetic. Called
// at the store boundary on save.
func (r *InvestmentRecord) Validate() error {
	if r.OwnerID == "" {
		return fmt.Errorf("record missing owner id")
	}
	if r.FundName == "" {
		return fmt.Errorf("record missing fund name")
	}
	switch r.Kind {
	case KindLumpSum:
		if r.InvestedAmount.Sign() <= 0 {
			return fmt.Errorf("lump-sum record needs a positive invested amount")
		}
	case KindSIP:
		if r.SIP == nil {
			return fmt.Errorf("sip record missing configuration")
		}
		if r.SIP.DayOfMonth < 1 || r.SIP.DayOfMonth > 31 {
			return fmt.Errorf("sip day %d out of range 1-31", r.SIP.DayOfMonth)
		}
		if r.SIP.MonthlyAmount.Sign() <= 0 {
			return fmt.Errorf("sip record needs a positive monthly amount")
		}
	default:
		return fmt.Errorf("unknown investment kind %q", r.Kind)
	}
	for i := range r.Installments {
		inst := &r.Installments[i]
		if inst.Units != nil && inst.Status != StatusPaid {
			return fmt.Errorf("installment %s has units but status %s", inst.Date, inst.Status)
		}
	}
	return nil
}
