// Package navhistory implements the official NAV history and scheme search
// collaborators against the mfapi.in public API.
package navhistory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundlens/internal/dates"
	"fundlens/internal/models"
)

const (
	mfapiBaseURL    = "https://api.mfapi.in"
	mfapiTimeout    = 15 * time.Second
	historyCacheTTL = 5 * time.Minute
)

// Client fetches per-scheme NAV history. The API returns the full series on
// every call, so one valuation's lookups (recent, on-or-before, on-or-after)
// share a short-lived in-process cache instead of refetching.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger

	mu    sync.Mutex
	cache map[string]cachedHistory
}

type cachedHistory struct {
	samples []models.NavSample
	loaded  time.Time
}

type Option func(*Client)

// WithBaseURL points the client at a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func NewClient(log *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    mfapiBaseURL,
		httpClient: &http.Client{Timeout: mfapiTimeout},
		log:        log,
		cache:      map[string]cachedHistory{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type mfapiHistoryResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Date string `json:"date"`
		Nav  string `json:"nav"`
	} `json:"data"`
}

// history returns the scheme's full NAV series, newest first.
func (c *Client) history(ctx context.Context, schemeCode string) ([]models.NavSample, error) {
	c.mu.Lock()
	if cached, ok := c.cache[schemeCode]; ok && time.Since(cached.loaded) < historyCacheTTL {
		c.mu.Unlock()
		return cached.samples, nil
	}
	c.mu.Unlock()

	addr := fmt.Sprintf("%s/mf/%s", c.baseURL, url.PathEscape(schemeCode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mfapi scheme %s: status %d", schemeCode, resp.StatusCode)
	}

	var payload mfapiHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Status != "SUCCESS" {
		return nil, fmt.Errorf("mfapi scheme %s: status %q", schemeCode, payload.Status)
	}

	samples := make([]models.NavSample, 0, len(payload.Data))
	for _, entry := range payload.Data {
		d, err := dates.Parse(entry.Date)
		if err != nil {
			continue
		}
		v, err := decimal.NewFromString(entry.Nav)
		if err != nil {
			continue
		}
		samples = append(samples, models.NavSample{Date: d, Value: v})
	}

	c.mu.Lock()
	c.cache[schemeCode] = cachedHistory{samples: samples, loaded: time.Now()}
	c.mu.Unlock()
	return samples, nil
}

// RecentNav returns up to count newest samples, newest first.
func (c *Client) RecentNav(ctx context.Context, schemeCode string, count int) ([]models.NavSample, error) {
	samples, err := c.history(ctx, schemeCode)
	if err != nil {
		c.log.Warnf("NAV history fetch failed for %s: %v", schemeCode, err)
		return nil, models.ErrNoNavData
	}
	if len(samples) == 0 {
		return nil, models.ErrNoNavData
	}
	if count > 0 && count < len(samples) {
		samples = samples[:count]
	}
	return samples, nil
}

// NavOnOrBefore scans newest-first for the first sample dated on or before d.
func (c *Client) NavOnOrBefore(ctx context.Context, schemeCode string, d dates.Date) (models.NavSample, error) {
	samples, err := c.history(ctx, schemeCode)
	if err != nil {
		return models.NavSample{}, models.ErrNoNavData
	}
	for _, s := range samples {
		if !s.Date.After(d) {
			return s, nil
		}
	}
	return models.NavSample{}, models.ErrNoNavData
}

// NavOnOrAfter returns the earliest sample dated on or after d. The series
// is newest first, so the last qualifying sample wins.
func (c *Client) NavOnOrAfter(ctx context.Context, schemeCode string, d dates.Date) (models.NavSample, error) {
	samples, err := c.history(ctx, schemeCode)
	if err != nil {
		return models.NavSample{}, models.ErrNoNavData
	}
	var found *models.NavSample
	for i := range samples {
		if samples[i].Date.Before(d) {
			break
		}
		found = &samples[i]
	}
	if found == nil {
		return models.NavSample{}, models.ErrNoNavData
	}
	return *found, nil
}

type mfapiSearchResult struct {
	SchemeCode json.Number `json:"schemeCode"`
	SchemeName string      `json:"schemeName"`
}

// Search queries the scheme search endpoint. Scores are left at zero; the
// refdata resolver does the ranking.
func (c *Client) Search(ctx context.Context, text string) ([]models.SchemeCandidate, error) {
	addr := fmt.Sprintf("%s/mf/search?q=%s", c.baseURL, url.QueryEscape(text))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mfapi search: status %d", resp.StatusCode)
	}

	var results []mfapiSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	candidates := make([]models.SchemeCandidate, 0, len(results))
	for _, r := range results {
		code := r.SchemeCode.String()
		if _, err := strconv.Atoi(code); err != nil {
			continue
		}
		candidates = append(candidates, models.SchemeCandidate{SchemeCode: code, SchemeName: r.SchemeName})
	}
	return candidates, nil
}
