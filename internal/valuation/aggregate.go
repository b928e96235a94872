// Package valuation holds the reconciliation pipeline: the concurrent
// portfolio change aggregator, the five-branch NAV decision engine and the
// Valuate/ActionInstallment service the HTTP edge calls.
package valuation

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundlens/internal/dates"
	"fundlens/internal/marketdata"
	"fundlens/internal/models"
)

const (
	aggregatorWorkers = 8
	retryPassDelay    = 200 * time.Millisecond

	// Minimum successfully-quoted weight before an aggregate is trusted.
	liveCoverageThreshold       = 0.75
	historicalCoverageThreshold = 0.50
)

// AsOf selects the quote question the aggregator asks: the live session move
// or the move on a specific past date.
type AsOf struct {
	Live bool
	Date dates.Date
}

// Aggregate is the weight-normalized portfolio move with its coverage.
type Aggregate struct {
	PercentChange float64
	Coverage      float64
	Quoted        int
}

// Aggregator fans quote fetches across a bounded worker pool and folds the
// answers into one weighted percent change.
type Aggregator struct {
	quotes  marketdata.QuoteProvider
	log     *logrus.Logger
	workers int
	// retryDelay is overridable so tests do not sleep.
	retryDelay time.Duration
}

func NewAggregator(quotes marketdata.QuoteProvider, log *logrus.Logger) *Aggregator {
	return &Aggregator{
		quotes:     quotes,
		log:        log,
		workers:    aggregatorWorkers,
		retryDelay: retryPassDelay,
	}
}

type quoteOutcome struct {
	index  int
	weight float64
	pct    float64
	ok     bool
}

// AggregatePercentChange quotes every weighted holding concurrently, retries
// the failed subset once sequentially, then requires the covered weight to
// clear the threshold for the path. Below threshold it reports
// ErrInsufficientCoverage so the decision ladder can fall further.
func (a *Aggregator) AggregatePercentChange(ctx context.Context, holdings []models.Holding, asOf AsOf) (Aggregate, error) {
	type job struct {
		index  int
		symbol string
		weight float64
	}

	jobs := make([]job, 0, len(holdings))
	var totalWeight float64
	for i, h := range holdings {
		w := h.Weight.Fraction()
		totalWeight += w
		if h.Symbol == "" || w <= 0 {
			continue
		}
		jobs = append(jobs, job{index: i, symbol: h.Symbol, weight: w})
	}
	if len(jobs) == 0 || totalWeight <= 0 {
		return Aggregate{}, models.ErrInsufficientCoverage
	}

	fetch := func(symbol string) (float64, bool) {
		if asOf.Live {
			return a.quotes.LivePercentChange(ctx, symbol)
		}
		return a.quotes.HistoricalPercentChange(ctx, symbol, asOf.Date)
	}

	jobCh := make(chan job)
	outcomes := make([]quoteOutcome, 0, len(jobs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := a.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				pct, ok := fetch(j.symbol)
				mu.Lock()
				outcomes = append(outcomes, quoteOutcome{index: j.index, weight: j.weight, pct: pct, ok: ok})
				mu.Unlock()
			}
		}()
	}
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()

	// Sequential retry over the failed subset only, spaced out so the
	// provider's rate limiting does not punish the second pass too.
	for i := range outcomes {
		if outcomes[i].ok {
			continue
		}
		time.Sleep(a.retryDelay)
		symbol := holdings[outcomes[i].index].Symbol
		if pct, ok := fetch(symbol); ok {
			outcomes[i].pct = pct
			outcomes[i].ok = ok
		}
	}

	var weighted, covered float64
	quoted := 0
	for _, o := range outcomes {
		if !o.ok {
			continue
		}
		weighted += o.weight * o.pct
		covered += o.weight
		quoted++
	}

	threshold := liveCoverageThreshold
	if !asOf.Live {
		threshold = historicalCoverageThreshold
	}
	if covered < threshold {
		a.log.Warnf("quote coverage %.2f below %.2f (%d/%d holdings quoted)", covered, threshold, quoted, len(jobs))
		return Aggregate{Coverage: covered, Quoted: quoted}, models.ErrInsufficientCoverage
	}

	return Aggregate{
		PercentChange: weighted / covered,
		Coverage:      covered,
		Quoted:        quoted,
	}, nil
}
