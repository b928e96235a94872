package valuation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundlens/internal/dates"
	"fundlens/internal/models"
)

// Decision is the engine's answer: which NAV is "current", which earlier NAV
// anchors the day change, and how the answer was obtained.
type Decision struct {
	CurrentNav   decimal.Decimal
	ReferenceNav decimal.Decimal
	Estimated    bool
	Note         string
}

// Engine selects the authoritative current NAV through a five-branch fallback
// ladder over official history and the quote aggregator.
type Engine struct {
	aggregator *Aggregator
	clock      dates.Clock
	log        *logrus.Logger
}

func NewEngine(aggregator *Aggregator, clock dates.Clock, log *logrus.Logger) *Engine {
	return &Engine{aggregator: aggregator, clock: clock, log: log}
}

// Decide walks the ladder. history is official NAV samples newest first;
// holdings drive estimation when official data is stale or absent.
func (e *Engine) Decide(ctx context.Context, history []models.NavSample, holdings []models.Holding) (Decision, error) {
	if len(history) == 0 {
		return Decision{}, models.ErrNoNavData
	}

	now := e.clock.NowIST()
	today := dates.FromTime(now)

	officialD0, d0Ref := findOfficial(history, today)

	// Case 1: an official NAV dated today.
	if officialD0 != nil {
		stale := d0Ref != nil && officialD0.Value.Equal(d0Ref.Value) && dates.MarketHasOpened(now)
		if !stale {
			ref := officialD0.Value
			if d0Ref != nil {
				ref = d0Ref.Value
			}
			return Decision{
				CurrentNav:   officialD0.Value,
				ReferenceNav: ref,
				Note:         fmt.Sprintf("Official NAV (%s)", officialD0.Date),
			}, nil
		}
		// Identical to yesterday during live trading: the provider has not
		// refreshed yet. Discard and estimate instead.
		e.log.Infof("official NAV for %s matches %s during trading hours, treating as stale", today, d0Ref.Date)
	}

	latest := mostRecentBefore(history, today)

	// Case 2: trading day past open, no trustworthy D0: estimate from the
	// live portfolio move on top of the last official value.
	if dates.MarketHasOpened(now) && latest != nil {
		agg, err := e.aggregator.AggregatePercentChange(ctx, holdings, AsOf{Live: true})
		if err == nil {
			estimated := applyPercent(latest.Value, agg.PercentChange)
			return Decision{
				CurrentNav:   estimated,
				ReferenceNav: latest.Value,
				Estimated:    true,
				Note: fmt.Sprintf("Live Est: %s (%+.2f%%) from %d holdings on %.0f%% weight",
					estimated.Round(4), agg.PercentChange, agg.Quoted, agg.Coverage*100),
			}, nil
		}
		e.log.Warnf("live estimation unavailable: %v", err)
	}

	prevDay := dates.PreviousBusinessDay(today)

	// Case 3: the previous business day's official NAV exists. Covers
	// weekends, holidays and pre-open mornings.
	if latest != nil && latest.Date.Equal(prevDay) {
		ref := latest.Value
		if older := mostRecentBefore(history, prevDay); older != nil {
			ref = older.Value
		}
		return Decision{
			CurrentNav:   latest.Value,
			ReferenceNav: ref,
			Note:         fmt.Sprintf("Official NAV (%s)", latest.Date),
		}, nil
	}

	// Case 4: the previous business day's NAV is missing too; estimate it
	// from that day's historical portfolio move over the older official value.
	if latest != nil {
		agg, err := e.aggregator.AggregatePercentChange(ctx, holdings, AsOf{Date: prevDay})
		if err == nil {
			estimated := applyPercent(latest.Value, agg.PercentChange)
			return Decision{
				CurrentNav:   estimated,
				ReferenceNav: latest.Value,
				Estimated:    true,
				Note: fmt.Sprintf("Est for %s: %s (%+.2f%%) over official %s",
					prevDay, estimated.Round(4), agg.PercentChange, latest.Date),
			}, nil
		}
		e.log.Warnf("historical estimation for %s unavailable: %v", prevDay, err)
	}

	// Case 5: whatever official value is newest, however stale.
	head := history[0]
	ref := head.Value
	if len(history) > 1 {
		ref = history[1].Value
	}
	return Decision{
		CurrentNav:   head.Value,
		ReferenceNav: ref,
		Note:         fmt.Sprintf("Stale official NAV (%s)", head.Date),
	}, nil
}

// findOfficial returns the sample dated exactly on d and the nearest earlier
// sample, if present.
func findOfficial(history []models.NavSample, d dates.Date) (*models.NavSample, *models.NavSample) {
	for i := range history {
		if history[i].Date.Equal(d) {
			var prev *models.NavSample
			for j := i + 1; j < len(history); j++ {
				if history[j].Date.Before(d) {
					prev = &history[j]
					break
				}
			}
			return &history[i], prev
		}
		if history[i].Date.Before(d) {
			break
		}
	}
	return nil, nil
}

// mostRecentBefore returns the newest sample strictly before d.
func mostRecentBefore(history []models.NavSample, d dates.Date) *models.NavSample {
	for i := range history {
		if history[i].Date.Before(d) {
			return &history[i]
		}
	}
	return nil
}

func applyPercent(nav decimal.Decimal, pct float64) decimal.Decimal {
	return nav.Mul(decimal.NewFromFloat(1 + pct/100))
}
