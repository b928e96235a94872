package valuation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundlens/internal/dates"
	"fundlens/internal/models"
	"fundlens/internal/sip"
	"fundlens/internal/xirr"
)

// Store is the record repository collaborator. Lookups verify ownership.
type Store interface {
	GetRecord(ctx context.Context, id, ownerID string) (*models.InvestmentRecord, error)
	SaveRecord(ctx context.Context, record *models.InvestmentRecord) error
}

// NavHistory is the official NAV collaborator.
type NavHistory interface {
	RecentNav(ctx context.Context, schemeCode string, count int) ([]models.NavSample, error)
	NavOnOrBefore(ctx context.Context, schemeCode string, d dates.Date) (models.NavSample, error)
	NavOnOrAfter(ctx context.Context, schemeCode string, d dates.Date) (models.NavSample, error)
}

// navHistoryDepth covers the ladder's needs with slack for long holiday runs.
const navHistoryDepth = 30

// Override lets the caller value a hypothetical lump-sum position without
// persisting it.
type Override struct {
	Amount *decimal.Decimal
	Date   *dates.Date
}

// Service is the exposed entry point of the pipeline.
type Service struct {
	store   Store
	navs    NavHistory
	engine  *Engine
	tracker *sip.Tracker
	clock   dates.Clock
	log     *logrus.Logger
}

func NewService(store Store, navs NavHistory, engine *Engine, tracker *sip.Tracker, clock dates.Clock, log *logrus.Logger) *Service {
	return &Service{store: store, navs: navs, engine: engine, tracker: tracker, clock: clock, log: log}
}

// Valuate computes the record's current worth. Derived cache fields on the
// record are refreshed as a side effect; the returned result is never the
// system of record.
func (s *Service) Valuate(ctx context.Context, recordID, ownerID string, override Override) (*models.ValuationResult, error) {
	record, err := s.store.GetRecord(ctx, recordID, ownerID)
	if err != nil {
		return nil, err
	}
	if record.SchemeCode == "" {
		return nil, models.ErrSchemeCodeMissing
	}

	history, err := s.navs.RecentNav(ctx, record.SchemeCode, navHistoryDepth)
	if err != nil {
		return nil, err
	}

	today := dates.FromTime(s.clock.NowIST())

	if record.Kind == models.KindSIP {
		if sip.ApplyStepUp(record, today) {
			s.log.Infof("step-up applied for %s, monthly amount now %s", record.ID, record.SIP.MonthlyAmount)
		}
		sip.ExtendSchedule(record, today)
	}

	decision, err := s.engine.Decide(ctx, history, record.Holdings)
	if err != nil {
		return nil, err
	}

	result := &models.ValuationResult{
		FundID:       record.ID,
		FundName:     record.FundName,
		Nickname:     record.Nickname,
		CurrentNav:   decision.CurrentNav,
		ReferenceNav: decision.ReferenceNav,
		IsEstimated:  decision.Estimated,
		Note:         decision.Note,
	}

	var flows []xirr.CashFlow
	switch record.Kind {
	case models.KindSIP:
		invested, units := sip.Totals(record)
		result.TotalInvested = invested
		result.Units = units
		if units.Sign() > 0 {
			result.PurchaseNav = invested.Div(units).Round(4)
		}
		result.Pending = sip.PendingInstallments(record)
		flows = sip.ConfirmedCashFlows(record)

	default:
		invested := record.InvestedAmount
		investedDate := record.InvestedDate
		if override.Amount != nil {
			invested = *override.Amount
		}
		if override.Date != nil {
			investedDate = *override.Date
		}
		purchaseNav, note, err := s.purchaseNav(ctx, record.SchemeCode, investedDate, decision.CurrentNav)
		if err != nil {
			return nil, err
		}
		result.TotalInvested = invested
		result.PurchaseNav = purchaseNav
		result.Note = note + " | " + result.Note
		result.Units = invested.Div(purchaseNav)
		if invested.Sign() > 0 && !investedDate.IsZero() {
			amt, _ := invested.Float64()
			flows = append(flows, xirr.CashFlow{Date: investedDate, Amount: -amt})
		}
	}

	result.CurrentValue = result.Units.Mul(result.CurrentNav).Round(2)
	result.ProfitLoss = result.CurrentValue.Sub(result.TotalInvested).Round(2)
	if result.TotalInvested.Sign() > 0 {
		pct, _ := result.ProfitLoss.Div(result.TotalInvested).Float64()
		result.ProfitLossPct = pct * 100
	}

	if result.ReferenceNav.Sign() > 0 {
		perUnit := result.CurrentNav.Sub(result.ReferenceNav)
		result.DayProfitLoss = perUnit.Mul(result.Units).Round(2)
		pct, _ := perUnit.Div(result.ReferenceNav).Float64()
		result.DayChangePct = pct * 100
	}

	if len(flows) > 0 && result.CurrentValue.Sign() > 0 {
		value, _ := result.CurrentValue.Float64()
		flows = append(flows, xirr.CashFlow{Date: today, Amount: value})
		result.XIRR = xirr.Calculate(flows)
	}

	record.CurrentNav = result.CurrentNav
	record.CurrentValue = result.CurrentValue
	record.ProfitLoss = result.ProfitLoss
	if err := s.store.SaveRecord(ctx, record); err != nil {
		// The valuation itself is still good; stale cache fields only.
		s.log.Warnf("saving derived fields for %s failed: %v", record.ID, err)
	}

	return result, nil
}

// purchaseNav finds the official NAV in force on the investment date. When
// the lookup fails the current NAV stands in, matching how a missing date is
// treated on first upload.
func (s *Service) purchaseNav(ctx context.Context, schemeCode string, investedDate dates.Date, currentNav decimal.Decimal) (decimal.Decimal, string, error) {
	if investedDate.IsZero() {
		if currentNav.Sign() <= 0 {
			return decimal.Zero, "", models.ErrInvalidPurchaseNav
		}
		return currentNav, "Used current NAV", nil
	}
	sample, err := s.navs.NavOnOrBefore(ctx, schemeCode, investedDate)
	if err != nil {
		s.log.Warnf("no purchase NAV on or before %s: %v", investedDate, err)
		if currentNav.Sign() <= 0 {
			return decimal.Zero, "", models.ErrInvalidPurchaseNav
		}
		return currentNav, fmt.Sprintf("NAV missing for %s, used current", investedDate), nil
	}
	if sample.Value.Sign() <= 0 {
		return decimal.Zero, "", models.ErrInvalidPurchaseNav
	}
	if sample.Date.Equal(investedDate) {
		return sample.Value, fmt.Sprintf("NAV on %s", sample.Date), nil
	}
	return sample.Value, fmt.Sprintf("NAV on %s (adj from %s)", sample.Date, investedDate), nil
}

// ActionInstallment applies an explicit PAID or SKIPPED decision to the
// record's pending installment on the given date and persists the result.
func (s *Service) ActionInstallment(ctx context.Context, recordID, ownerID string, date dates.Date, action models.InstallmentStatus) (*models.UpdatedTotals, error) {
	record, err := s.store.GetRecord(ctx, recordID, ownerID)
	if err != nil {
		return nil, err
	}
	if record.Kind != models.KindSIP {
		return nil, models.ErrInstallmentNotFound
	}
	if record.SchemeCode == "" {
		return nil, models.ErrSchemeCodeMissing
	}

	inst, err := s.tracker.Action(ctx, record, date, action)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveRecord(ctx, record); err != nil {
		return nil, err
	}

	invested, units := sip.Totals(record)
	return &models.UpdatedTotals{
		TotalInvested: invested,
		TotalUnits:    units,
		Installment:   *inst,
	}, nil
}
