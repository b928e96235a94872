package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundlens/internal/dates"
)

const (
	fyersDataBaseURL   = "https://api-t1.fyers.in/data"
	fyersTokenTTL      = 23 * time.Hour
	fyersCallTimeout   = 10 * time.Second
	fyersRetryAttempts = 2
	fyersRetryDelay    = 300 * time.Millisecond
)

// FyersClient is the authenticated low-latency quote source. It is
// constructed once at process start and shared; token refresh happens through
// SetToken rather than implicit mutation.
type FyersClient struct {
	appID      string
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger

	mu          sync.RWMutex
	accessToken string
	tokenExpiry time.Time
}

type FyersOption func(*FyersClient)

// WithFyersBaseURL points the client at a test server.
func WithFyersBaseURL(u string) FyersOption {
	return func(c *FyersClient) { c.baseURL = u }
}

func NewFyersClient(appID string, log *logrus.Logger, opts ...FyersOption) *FyersClient {
	c := &FyersClient{
		appID:      appID,
		baseURL:    fyersDataBaseURL,
		httpClient: &http.Client{Timeout: fyersCallTimeout},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *FyersClient) Name() string { return "fyers" }

// SetToken installs a freshly issued access token. Tokens are valid for about
// a day on the provider side.
func (c *FyersClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
	c.tokenExpiry = time.Now().Add(fyersTokenTTL)
}

// Authenticated reports whether a non-expired token is installed.
func (c *FyersClient) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != "" && time.Now().Before(c.tokenExpiry)
}

func (c *FyersClient) authHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.appID + ":" + c.accessToken
}

// FormatSymbol converts a plain symbol to the broker convention, e.g.
// RELIANCE -> NSE:RELIANCE-EQ. Already-qualified symbols pass through.
func FormatSymbol(symbol, exchange string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, ":") {
		return s
	}
	s = strings.TrimSuffix(s, ".NS")
	s = strings.TrimSuffix(s, ".BO")
	s = strings.TrimSuffix(s, "-EQ")
	return fmt.Sprintf("%s:%s-EQ", exchange, s)
}

type fyersQuoteResponse struct {
	S string `json:"s"`
	D []struct {
		N string `json:"n"`
		V struct {
			Chp *float64 `json:"chp"`
		} `json:"v"`
	} `json:"d"`
}

type fyersHistoryResponse struct {
	S       string      `json:"s"`
	Candles [][]float64 `json:"candles"`
}

// LivePercentChange asks the quotes endpoint, trying NSE first and BSE when
// the symbol is not listed there. Unavailable without a valid token.
func (c *FyersClient) LivePercentChange(ctx context.Context, symbol string) (float64, bool) {
	if !c.Authenticated() {
		return 0, false
	}
	if strings.Contains(symbol, ":") {
		return c.quoteFor(ctx, symbol)
	}
	if pct, ok := c.quoteFor(ctx, FormatSymbol(symbol, "NSE")); ok {
		return pct, true
	}
	return c.quoteFor(ctx, FormatSymbol(symbol, "BSE"))
}

func (c *FyersClient) quoteFor(ctx context.Context, formatted string) (float64, bool) {
	var resp fyersQuoteResponse
	err := withRetry(fyersRetryAttempts, fyersRetryDelay, func() error {
		return c.getJSON(ctx, "/quotes", url.Values{"symbols": {formatted}}, &resp)
	})
	if err != nil {
		c.log.Debugf("fyers quote %s: %v", formatted, err)
		return 0, false
	}
	if resp.S != "ok" {
		return 0, false
	}
	for _, q := range resp.D {
		if q.V.Chp != nil {
			return *q.V.Chp, true
		}
	}
	return 0, false
}

// HistoricalPercentChange derives the day's move from daily candles: close of
// the target date against the prior session close.
func (c *FyersClient) HistoricalPercentChange(ctx context.Context, symbol string, on dates.Date) (float64, bool) {
	if !c.Authenticated() {
		return 0, false
	}
	exchanges := []string{"NSE", "BSE"}
	if strings.Contains(symbol, ":") {
		exchanges = []string{""}
	}
	for _, ex := range exchanges {
		formatted := symbol
		if ex != "" {
			formatted = FormatSymbol(symbol, ex)
		}
		if pct, ok := c.historicalFor(ctx, formatted, on); ok {
			return pct, true
		}
	}
	return 0, false
}

func (c *FyersClient) historicalFor(ctx context.Context, formatted string, on dates.Date) (float64, bool) {
	from := on.AddDays(-7)
	to := on.AddDays(1)
	params := url.Values{
		"symbol":      {formatted},
		"resolution":  {"D"},
		"date_format": {"1"},
		"range_from":  {fmt.Sprintf("%d", from.Unix())},
		"range_to":    {fmt.Sprintf("%d", to.Unix())},
		"cont_flag":   {"1"},
	}
	var resp fyersHistoryResponse
	err := withRetry(fyersRetryAttempts, fyersRetryDelay, func() error {
		return c.getJSON(ctx, "/history", params, &resp)
	})
	if err != nil {
		c.log.Debugf("fyers history %s: %v", formatted, err)
		return 0, false
	}
	if resp.S != "ok" || len(resp.Candles) < 2 {
		return 0, false
	}

	target := on.String()
	for i, candle := range resp.Candles {
		if len(candle) < 5 || i == 0 {
			continue
		}
		day := dates.FromTime(time.Unix(int64(candle[0]), 0).In(dates.IST))
		if day.String() != target {
			continue
		}
		prev := resp.Candles[i-1]
		if len(prev) < 5 || prev[4] <= 0 {
			return 0, false
		}
		return (candle[4] - prev[4]) / prev[4] * 100, true
	}
	return 0, false
}

func (c *FyersClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fyers %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
