package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundlens/internal/dates"
	"fundlens/internal/models"
	"fundlens/internal/sip"
)

type stubStore struct {
	records map[string]*models.InvestmentRecord
	saves   int
	saveErr error
}

func (s *stubStore) GetRecord(ctx context.Context, id, ownerID string) (*models.InvestmentRecord, error) {
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, models.ErrRecordNotFound
	}
	return rec, nil
}

func (s *stubStore) SaveRecord(ctx context.Context, record *models.InvestmentRecord) error {
	s.saves++
	return s.saveErr
}

// stubHistory serves one newest-first series for every scheme.
type stubHistory struct {
	series []models.NavSample
	err    error
}

func (s *stubHistory) RecentNav(ctx context.Context, schemeCode string, count int) ([]models.NavSample, error) {
	return s.series, s.err
}

func (s *stubHistory) NavOnOrBefore(ctx context.Context, schemeCode string, d dates.Date) (models.NavSample, error) {
	for _, sample := range s.series {
		if !sample.Date.After(d) {
			return sample, nil
		}
	}
	return models.NavSample{}, models.ErrNoNavData
}

func (s *stubHistory) NavOnOrAfter(ctx context.Context, schemeCode string, d dates.Date) (models.NavSample, error) {
	var match *models.NavSample
	for i := range s.series {
		if s.series[i].Date.Before(d) {
			break
		}
		match = &s.series[i]
	}
	if match == nil {
		return models.NavSample{}, models.ErrNoNavData
	}
	return *match, nil
}

// Pre-open Wednesday morning, so the decision ladder lands on Tuesday's
// official NAV and tests stay deterministic without quote stubs.
var preOpen = istClock(2023, time.October, 18, 8, 0)

func newTestService(store *stubStore, navs *stubHistory) *Service {
	log := quietLog()
	engine := newTestEngine(preOpen, &fakeQuotes{})
	tracker := sip.NewTracker(navs, log)
	return NewService(store, navs, engine, tracker, preOpen, log)
}

func lumpRecord() *models.InvestmentRecord {
	return &models.InvestmentRecord{
		ID:             "rec-1",
		OwnerID:        "user-1",
		FundName:       "Flexi Cap Fund",
		SchemeCode:     "120591",
		Kind:           models.KindLumpSum,
		InvestedAmount: decimal.NewFromInt(10000),
		InvestedDate:   dates.MustParse("2023-01-02"),
		Holdings:       testHoldings,
	}
}

func defaultSeries() []models.NavSample {
	return []models.NavSample{
		nav("2023-10-17", "120.00"),
		nav("2023-10-16", "118.00"),
		nav("2023-01-02", "100.00"),
	}
}

func TestValuate_LumpSum(t *testing.T) {
	store := &stubStore{records: map[string]*models.InvestmentRecord{"rec-1": lumpRecord()}}
	svc := newTestService(store, &stubHistory{series: defaultSeries()})

	got, err := svc.Valuate(context.Background(), "rec-1", "user-1", Override{})
	require.NoError(t, err)

	assert.Equal(t, "120", got.CurrentNav.String())
	assert.Equal(t, "100", got.PurchaseNav.String())
	assert.Equal(t, "100", got.Units.String())
	assert.Equal(t, "12000", got.CurrentValue.String())
	assert.Equal(t, "2000", got.ProfitLoss.String())
	assert.InDelta(t, 20.0, got.ProfitLossPct, 1e-9)
	assert.Equal(t, "200", got.DayProfitLoss.String())
	assert.InDelta(t, 2.0/118.0*100, got.DayChangePct, 1e-9)
	require.NotNil(t, got.XIRR)
	assert.Greater(t, *got.XIRR, 0.0)
	assert.False(t, got.IsEstimated)

	assert.Equal(t, 1, store.saves, "derived fields persisted")
	assert.Equal(t, "12000", store.records["rec-1"].CurrentValue.String())
}

func TestValuate_LumpSumOverride(t *testing.T) {
	store := &stubStore{records: map[string]*models.InvestmentRecord{"rec-1": lumpRecord()}}
	svc := newTestService(store, &stubHistory{series: defaultSeries()})

	amount := decimal.NewFromInt(5000)
	got, err := svc.Valuate(context.Background(), "rec-1", "user-1", Override{Amount: &amount})
	require.NoError(t, err)

	assert.Equal(t, "5000", got.TotalInvested.String())
	assert.Equal(t, "50", got.Units.String())
	assert.Equal(t, "6000", got.CurrentValue.String())
}

func TestValuate_PurchaseDateBeforeHistoryUsesCurrent(t *testing.T) {
	rec := lumpRecord()
	rec.InvestedDate = dates.MustParse("2020-01-01")
	store := &stubStore{records: map[string]*models.InvestmentRecord{"rec-1": rec}}
	svc := newTestService(store, &stubHistory{series: defaultSeries()[:2]})

	got, err := svc.Valuate(context.Background(), "rec-1", "user-1", Override{})
	require.NoError(t, err)
	assert.Equal(t, "120", got.PurchaseNav.String())
	assert.Contains(t, got.Note, "used current")
}

func TestValuate_SIPTotalsAndPending(t *testing.T) {
	units := decimal.NewFromInt(10)
	rec := &models.InvestmentRecord{
		ID:         "rec-2",
		OwnerID:    "user-1",
		FundName:   "Small Cap Fund",
		SchemeCode: "120592",
		Kind:       models.KindSIP,
		Holdings:   testHoldings,
		SIP: &models.SIPConfig{
			MonthlyAmount: decimal.NewFromInt(1000),
			DayOfMonth:    5,
			StartDate:     dates.MustParse("2023-09-05"),
		},
		Installments: []models.Installment{
			{Date: dates.MustParse("2023-09-05"), Amount: decimal.NewFromInt(1000), Status: models.StatusPaid, Units: &units},
		},
	}
	store := &stubStore{records: map[string]*models.InvestmentRecord{"rec-2": rec}}
	svc := newTestService(store, &stubHistory{series: defaultSeries()})

	got, err := svc.Valuate(context.Background(), "rec-2", "user-1", Override{})
	require.NoError(t, err)

	assert.Equal(t, "1000", got.TotalInvested.String())
	assert.Equal(t, "10", got.Units.String())
	assert.Equal(t, "1200", got.CurrentValue.String())
	assert.Equal(t, "100", got.PurchaseNav.String())
	require.NotEmpty(t, got.Pending, "October installment is due and unactioned")
	require.NotNil(t, got.XIRR)
}

func TestValuate_MissingSchemeCode(t *testing.T) {
	rec := lumpRecord()
	rec.SchemeCode = ""
	store := &stubStore{records: map[string]*models.InvestmentRecord{"rec-1": rec}}
	svc := newTestService(store, &stubHistory{series: defaultSeries()})

	_, err := svc.Valuate(context.Background(), "rec-1", "user-1", Override{})
	assert.ErrorIs(t, err, models.ErrSchemeCodeMissing)
}

func TestValuate_WrongOwner(t *testing.T) {
	store := &stubStore{records: map[string]*models.InvestmentRecord{"rec-1": lumpRecord()}}
	svc := newTestService(store, &stubHistory{series: defaultSeries()})

	_, err := svc.Valuate(context.Background(), "rec-1", "someone-else", Override{})
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestActionInstallment_PaidUpdatesTotals(t *testing.T) {
	rec := &models.InvestmentRecord{
		ID:         "rec-2",
		OwnerID:    "user-1",
		FundName:   "Small Cap Fund",
		SchemeCode: "120592",
		Kind:       models.KindSIP,
		SIP: &models.SIPConfig{
			MonthlyAmount: decimal.NewFromInt(1200),
			DayOfMonth:    17,
			StartDate:     dates.MustParse("2023-10-17"),
		},
		Installments: []models.Installment{
			{Date: dates.MustParse("2023-10-17"), Amount: decimal.NewFromInt(1200), Status: models.StatusPending},
		},
	}
	store := &stubStore{records: map[string]*models.InvestmentRecord{"rec-2": rec}}
	svc := newTestService(store, &stubHistory{series: defaultSeries()})

	got, err := svc.ActionInstallment(context.Background(), "rec-2", "user-1", dates.MustParse("2023-10-17"), models.StatusPaid)
	require.NoError(t, err)

	assert.Equal(t, "1200", got.TotalInvested.String())
	assert.Equal(t, "10", got.TotalUnits.String())
	assert.Equal(t, models.StatusPaid, got.Installment.Status)
	assert.Equal(t, 1, store.saves)
}

func TestActionInstallment_LumpSumRejected(t *testing.T) {
	store := &stubStore{records: map[string]*models.InvestmentRecord{"rec-1": lumpRecord()}}
	svc := newTestService(store, &stubHistory{series: defaultSeries()})

	_, err := svc.ActionInstallment(context.Background(), "rec-1", "user-1", dates.MustParse("2023-10-17"), models.StatusPaid)
	assert.ErrorIs(t, err, models.ErrInstallmentNotFound)
}
