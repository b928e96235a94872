package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"fundlens/internal/dates"
)

const (
	nseBaseURL       = "https://www.nseindia.com"
	nseQuotePath     = "/api/quote-equity"
	nseCallTimeout   = 10 * time.Second
	nsePrimeTimeout  = 5 * time.Second
	nseRetryAttempts = 3
	nseRetryDelay    = 500 * time.Millisecond

	// After this many consecutive failures the cookie session is assumed
	// blocked and re-primed.
	nseFailureBurst = 5
)

var nseHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
	"Accept":          "application/json,text/html,*/*",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://www.nseindia.com/",
}

// NSEClient scrapes the exchange's public quote API. The endpoint requires
// browser-like headers and session cookies primed from the base page, and it
// throttles aggressive callers, so requests go through a rate limiter.
type NSEClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Logger

	mu           sync.Mutex
	primed       bool
	failureCount int
}

type NSEOption func(*NSEClient)

// WithNSEBaseURL points the client at a test server.
func WithNSEBaseURL(u string) NSEOption {
	return func(c *NSEClient) { c.baseURL = u }
}

// WithNSERateLimit overrides the default requests-per-second cap.
func WithNSERateLimit(rps float64) NSEOption {
	return func(c *NSEClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

func NewNSEClient(log *logrus.Logger, opts ...NSEOption) *NSEClient {
	jar, _ := cookiejar.New(nil)
	c := &NSEClient{
		baseURL: nseBaseURL,
		httpClient: &http.Client{
			Timeout: nseCallTimeout,
			Jar:     jar,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *NSEClient) Name() string { return "nse" }

// PrimeSession fetches the base page so the server sets its session cookies.
// Called lazily before the first quote and again after a failure burst.
func (c *NSEClient) PrimeSession(ctx context.Context) {
	primeCtx, cancel := context.WithTimeout(ctx, nsePrimeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(primeCtx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return
	}
	setNSEHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debugf("nse cookie priming failed: %v", err)
		return
	}
	resp.Body.Close()

	c.mu.Lock()
	c.primed = true
	c.failureCount = 0
	c.mu.Unlock()
}

func (c *NSEClient) ensureSession(ctx context.Context) {
	c.mu.Lock()
	needsPrime := !c.primed || c.failureCount >= nseFailureBurst
	c.mu.Unlock()
	if needsPrime {
		c.PrimeSession(ctx)
	}
}

type nseQuoteResponse struct {
	PriceInfo struct {
		PChange *float64 `json:"pChange"`
	} `json:"priceInfo"`
}

// LivePercentChange fetches the day change for one symbol. Blocked responses
// (non-JSON content type) and non-200 statuses count as transient failures.
func (c *NSEClient) LivePercentChange(ctx context.Context, symbol string) (float64, bool) {
	plain := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.Index(plain, ":"); i >= 0 {
		plain = plain[i+1:]
	}
	plain = strings.TrimSuffix(plain, "-EQ")
	if plain == "" {
		return 0, false
	}

	c.ensureSession(ctx)

	var pct float64
	err := withRetry(nseRetryAttempts, nseRetryDelay, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		v, err := c.fetchQuote(ctx, plain)
		if err != nil {
			return err
		}
		pct = v
		return nil
	})
	if err != nil {
		c.mu.Lock()
		c.failureCount++
		c.mu.Unlock()
		c.log.Debugf("nse quote %s: %v", plain, err)
		return 0, false
	}

	c.mu.Lock()
	c.failureCount = 0
	c.mu.Unlock()
	return pct, true
}

func (c *NSEClient) fetchQuote(ctx context.Context, symbol string) (float64, error) {
	addr := c.baseURL + nseQuotePath + "?" + url.Values{"symbol": {symbol}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return 0, err
	}
	setNSEHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		// HTML here means the session got challenged, not that the symbol
		// is bad.
		return 0, fmt.Errorf("non-JSON response, likely blocked")
	}

	var quote nseQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return 0, err
	}
	if quote.PriceInfo.PChange == nil {
		return 0, fmt.Errorf("no pChange in response")
	}
	return *quote.PriceInfo.PChange, nil
}

// HistoricalPercentChange is not served by the scraped API; the historical
// fallback lives in the broker candle endpoint.
func (c *NSEClient) HistoricalPercentChange(ctx context.Context, symbol string, on dates.Date) (float64, bool) {
	return 0, false
}

func setNSEHeaders(req *http.Request) {
	for k, v := range nseHeaders {
		req.Header.Set(k, v)
	}
}
