// Package marketdata provides quote adapters over the external price sources:
// an authenticated broker API, the scraped exchange API and the broker's
// historical candle endpoint. Every adapter reports availability instead of
// raising, so the valuation ladder owns all failure policy.
package marketdata

import (
	"context"

	"github.com/sirupsen/logrus"

	"fundlens/internal/dates"
)

// QuoteProvider answers percent-change questions for a single symbol. The
// bool result is false when the provider cannot answer; that is not an error.
type QuoteProvider interface {
	LivePercentChange(ctx context.Context, symbol string) (float64, bool)
	HistoricalPercentChange(ctx context.Context, symbol string, on dates.Date) (float64, bool)
	Name() string
}

// Chain tries providers in priority order and returns the first answer.
type Chain struct {
	providers []QuoteProvider
	log       *logrus.Logger
}

func NewChain(log *logrus.Logger, providers ...QuoteProvider) *Chain {
	return &Chain{providers: providers, log: log}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) LivePercentChange(ctx context.Context, symbol string) (float64, bool) {
	for _, p := range c.providers {
		if pct, ok := p.LivePercentChange(ctx, symbol); ok {
			return pct, true
		}
		c.log.Debugf("%s: no live quote for %s, trying next provider", p.Name(), symbol)
	}
	return 0, false
}

func (c *Chain) HistoricalPercentChange(ctx context.Context, symbol string, on dates.Date) (float64, bool) {
	for _, p := range c.providers {
		if pct, ok := p.HistoricalPercentChange(ctx, symbol, on); ok {
			return pct, true
		}
		c.log.Debugf("%s: no historical quote for %s on %s", p.Name(), symbol, on)
	}
	return 0, false
}
