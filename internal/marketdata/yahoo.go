package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fundlens/internal/dates"
)

const (
	yahooBaseURL       = "https://query1.finance.yahoo.com"
	yahooCallTimeout   = 15 * time.Second
	yahooRetryAttempts = 2
	yahooRetryDelay    = 400 * time.Millisecond
)

// YahooClient is the bulk time-series fallback for historical dates. It
// requires no credentials, so it sits last in the chain and only answers
// historical questions.
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger
}

type YahooOption func(*YahooClient)

// WithYahooBaseURL points the client at a test server.
func WithYahooBaseURL(u string) YahooOption {
	return func(c *YahooClient) { c.baseURL = u }
}

func NewYahooClient(log *logrus.Logger, opts ...YahooOption) *YahooClient {
	c := &YahooClient{
		baseURL:    yahooBaseURL,
		httpClient: &http.Client{Timeout: yahooCallTimeout},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *YahooClient) Name() string { return "yahoo" }

// LivePercentChange is unsupported; live quotes come from the broker or the
// exchange scrape.
func (c *YahooClient) LivePercentChange(ctx context.Context, symbol string) (float64, bool) {
	return 0, false
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// HistoricalPercentChange computes the close-over-previous-close move on the
// given date from the daily chart series.
func (c *YahooClient) HistoricalPercentChange(ctx context.Context, symbol string, on dates.Date) (float64, bool) {
	var resp yahooChartResponse
	err := withRetry(yahooRetryAttempts, yahooRetryDelay, func() error {
		return c.fetchChart(ctx, yahooSymbol(symbol), on, &resp)
	})
	if err != nil {
		c.log.Debugf("yahoo chart %s: %v", symbol, err)
		return 0, false
	}
	if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 {
		return 0, false
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return 0, false
	}
	closes := result.Indicators.Quote[0].Close

	target := on.String()
	var prev *float64
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		day := dates.FromTime(time.Unix(ts, 0).In(dates.IST))
		if day.String() == target {
			if prev == nil || *prev <= 0 {
				return 0, false
			}
			return (*closes[i] - *prev) / *prev * 100, true
		}
		prev = closes[i]
	}
	return 0, false
}

func (c *YahooClient) fetchChart(ctx context.Context, symbol string, on dates.Date, out *yahooChartResponse) error {
	params := url.Values{
		"period1":  {fmt.Sprintf("%d", on.AddDays(-7).Unix())},
		"period2":  {fmt.Sprintf("%d", on.AddDays(1).Unix())},
		"interval": {"1d"},
	}
	addr := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", nseHeaders["User-Agent"])

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// yahooSymbol maps exchange symbols to Yahoo's suffix convention.
func yahooSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, ".NS") || strings.HasSuffix(s, ".BO") {
		return s
	}
	if strings.HasPrefix(s, "BSE:") {
		s = strings.TrimPrefix(s, "BSE:")
		if i := strings.Index(s, "-"); i >= 0 {
			s = s[:i]
		}
		return s + ".BO"
	}
	s = strings.TrimPrefix(s, "NSE:")
	s = strings.TrimSuffix(s, "-EQ")
	return s + ".NS"
}
