// Package sip tracks the lifecycle of recurring-investment installments:
// schedule generation, explicit PAID/SKIPPED actioning with NAV-based unit
// allocation, step-up escalation and the derived totals the valuation engine
// consumes.
package sip

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundlens/internal/dates"
	"fundlens/internal/models"
	"fundlens/internal/xirr"
)

// NavLookup is the slice of the NAV history provider the tracker needs for
// unit allocation.
type NavLookup interface {
	NavOnOrAfter(ctx context.Context, schemeCode string, d dates.Date) (models.NavSample, error)
}

// Tracker owns installment state transitions for SIP records.
type Tracker struct {
	navs NavLookup
	log  *logrus.Logger
}

func NewTracker(navs NavLookup, log *logrus.Logger) *Tracker {
	return &Tracker{navs: navs, log: log}
}

// GenerateSchedule produces the installment dates due on or before today:
// the start date itself, then one per subsequent month on dayOfMonth, clamped
// to the month's last day. Repeated calls with the same inputs yield the same
// list. Past dates initialize as ASSUMED_PAID so they never double-count
// against a separately imported opening balance; today's date is PENDING
// regardless of time of day.
func GenerateSchedule(start dates.Date, dayOfMonth int, amount decimal.Decimal, today dates.Date) []models.Installment {
	if start.After(today) {
		return []models.Installment{}
	}

	out := []models.Installment{newScheduled(start, amount, today)}
	seen := map[string]bool{start.String(): true}

	for n := 1; ; n++ {
		due := start.AddMonthsClamped(n, dayOfMonth)
		if due.After(today) {
			break
		}
		if seen[due.String()] {
			continue
		}
		seen[due.String()] = true
		out = append(out, newScheduled(due, amount, today))
	}
	return out
}

func newScheduled(due dates.Date, amount decimal.Decimal, today dates.Date) models.Installment {
	status := models.StatusAssumedPaid
	if due.Equal(today) {
		status = models.StatusPending
	}
	return models.Installment{Date: due, Amount: amount, Status: status}
}

// ExtendSchedule appends any newly due installments to an existing list
// without touching already-materialized entries, so actioned state survives
// regeneration. New past dates (the valuation ran after the due day without
// anyone actioning it) stay PENDING rather than ASSUMED_PAID: they postdate
// the imported opening balance.
func ExtendSchedule(record *models.InvestmentRecord, today dates.Date) bool {
	cfg := record.SIP
	if cfg == nil {
		return false
	}
	existing := map[string]bool{}
	for _, inst := range record.Installments {
		existing[inst.Date.String()] = true
	}

	changed := false
	if len(record.Installments) == 0 {
		record.Installments = GenerateSchedule(cfg.StartDate, cfg.DayOfMonth, cfg.MonthlyAmount, today)
		return len(record.Installments) > 0
	}

	for n := 0; ; n++ {
		due := cfg.StartDate
		if n > 0 {
			due = cfg.StartDate.AddMonthsClamped(n, cfg.DayOfMonth)
		}
		if due.After(today) {
			break
		}
		if existing[due.String()] {
			continue
		}
		existing[due.String()] = true
		record.Installments = append(record.Installments, models.Installment{
			Date:   due,
			Amount: cfg.MonthlyAmount,
			Status: models.StatusPending,
		})
		changed = true
	}
	return changed
}

// Action transitions a PENDING installment to PAID or SKIPPED. Any other
// starting state is rejected: PAID, SKIPPED and ASSUMED_PAID are terminal.
// On PAID the first official NAV on or after the installment date allocates
// units (ESTIMATED until settlement is confirmed); if no qualifying NAV has
// been published yet the allocation stays PENDING_NAV with nil units.
func (t *Tracker) Action(ctx context.Context, record *models.InvestmentRecord, date dates.Date, action models.InstallmentStatus) (*models.Installment, error) {
	if action != models.StatusPaid && action != models.StatusSkipped {
		return nil, models.ErrInstallmentNotActionable
	}

	var inst *models.Installment
	for i := range record.Installments {
		if record.Installments[i].Date.Equal(date) {
			inst = &record.Installments[i]
			break
		}
	}
	if inst == nil {
		return nil, models.ErrInstallmentNotFound
	}
	if inst.Status != models.StatusPending {
		return nil, models.ErrInstallmentNotActionable
	}

	if action == models.StatusSkipped {
		inst.Status = models.StatusSkipped
		inst.Units = nil
		inst.Nav = nil
		inst.NavDate = nil
		inst.Allocation = ""
		return inst, nil
	}

	inst.Status = models.StatusPaid
	sample, err := t.navs.NavOnOrAfter(ctx, record.SchemeCode, date)
	if err != nil || sample.Value.Sign() <= 0 {
		t.log.Warnf("no allocatable NAV for %s installment on %s yet", record.ID, date)
		inst.Units = nil
		inst.Nav = nil
		inst.NavDate = nil
		inst.Allocation = models.AllocPendingNav
		return inst, nil
	}

	units := inst.Amount.Div(sample.Value)
	inst.Units = &units
	nav := sample.Value
	inst.Nav = &nav
	navDate := sample.Date
	inst.NavDate = &navDate
	inst.Allocation = models.AllocEstimated
	return inst, nil
}

// ApplyStepUp escalates the monthly amount when at least one whole step-up
// period has elapsed since the last escalation. Exactly one step applies per
// call no matter how many periods accumulated during inactivity.
func ApplyStepUp(record *models.InvestmentRecord, today dates.Date) bool {
	cfg := record.SIP
	if cfg == nil || cfg.StepUp == nil {
		return false
	}
	rule := cfg.StepUp

	anchor := rule.LastApplied
	if anchor.IsZero() {
		anchor = cfg.StartDate
	}
	if today.MonthsSince(anchor) < rule.Frequency.Months() {
		return false
	}

	if rule.Percent > 0 {
		factor := decimal.NewFromFloat(1 + rule.Percent/100)
		cfg.MonthlyAmount = cfg.MonthlyAmount.Mul(factor)
	} else if rule.FlatAmount.Sign() > 0 {
		cfg.MonthlyAmount = cfg.MonthlyAmount.Add(rule.FlatAmount)
	} else {
		return false
	}
	rule.LastApplied = anchor.AddMonthsClamped(rule.Frequency.Months(), anchor.Day())
	return true
}

// Totals derives the figures the valuation engine needs: invested capital
// (imported opening amount plus every PAID installment) and units (imported
// units plus allocated PAID units).
func Totals(record *models.InvestmentRecord) (invested, units decimal.Decimal) {
	invested = record.ManualInvested
	units = record.ManualUnits
	for _, inst := range record.Installments {
		if inst.Status != models.StatusPaid {
			continue
		}
		invested = invested.Add(inst.Amount)
		if inst.Units != nil {
			units = units.Add(*inst.Units)
		}
	}
	return invested, units
}

// ConfirmedCashFlows lists PAID installment outflows for the XIRR
// calculation. The caller appends the current value as the terminal inflow.
func ConfirmedCashFlows(record *models.InvestmentRecord) []xirr.CashFlow {
	flows := make([]xirr.CashFlow, 0, len(record.Installments))
	for _, inst := range record.Installments {
		if inst.Status != models.StatusPaid || inst.Amount.Sign() <= 0 {
			continue
		}
		amt, _ := inst.Amount.Float64()
		flows = append(flows, xirr.CashFlow{Date: inst.Date, Amount: -amt})
	}
	return flows
}

// PendingInstallments returns installments awaiting explicit action.
func PendingInstallments(record *models.InvestmentRecord) []models.Installment {
	var pending []models.Installment
	for _, inst := range record.Installments {
		if inst.Status == models.StatusPending {
			pending = append(pending, inst)
		}
	}
	return pending
}
