// Package refdata resolves security identifiers to tradable symbols using
// bulk-downloaded exchange reference tables, and fuzzy-matches free-text fund
// names to scheme codes.
package refdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundlens/internal/models"
)

const (
	nseEquityListURL = "https://nsearchives.nseindia.com/content/equities/EQUITY_L.csv"
	bseMasterURL     = "https://public.fyers.in/sym_details/BSE_CM.csv"

	tableTTL        = 24 * time.Hour
	downloadTimeout = 20 * time.Second
)

var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// Resolver maps ISINs to tradable symbols. The primary table is the NSE
// equity master list; the secondary is the broker's BSE symbol master, which
// yields exchange-prefixed symbols. Both are cached in-process for a trading
// day; refresh is lazy on the first read past expiry.
type Resolver struct {
	primaryURL   string
	secondaryURL string
	httpClient   *http.Client
	log          *logrus.Logger

	mu              sync.RWMutex
	primaryTable    map[string]string // ISIN -> plain NSE symbol
	primaryLoaded   time.Time
	secondaryTable  map[string]string // ISIN -> exchange-prefixed symbol
	secondaryLoaded time.Time
}

type ResolverOption func(*Resolver)

// WithTableURLs points the resolver at test servers.
func WithTableURLs(primary, secondary string) ResolverOption {
	return func(r *Resolver) {
		r.primaryURL = primary
		r.secondaryURL = secondary
	}
}

func NewResolver(log *logrus.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		primaryURL:   nseEquityListURL,
		secondaryURL: bseMasterURL,
		httpClient:   &http.Client{Timeout: downloadTimeout},
		log:          log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveSymbol returns the tradable symbol for an ISIN, consulting the
// primary table first and the secondary on miss. ErrSymbolNotFound only
// after both tables miss.
func (r *Resolver) ResolveSymbol(ctx context.Context, isin string) (string, error) {
	isin = strings.ToUpper(strings.TrimSpace(isin))

	primary := r.primary(ctx)
	if sym, ok := primary[isin]; ok {
		return sym, nil
	}

	secondary := r.secondary(ctx)
	if sym, ok := secondary[isin]; ok {
		return sym, nil
	}
	return "", models.ErrSymbolNotFound
}

// Warm eagerly downloads both reference tables so the first request of the
// day does not pay the download cost. Returns the table sizes.
func (r *Resolver) Warm(ctx context.Context) (primary, secondary int) {
	return len(r.primary(ctx)), len(r.secondary(ctx))
}

func (r *Resolver) primary(ctx context.Context) map[string]string {
	r.mu.RLock()
	fresh := r.primaryTable != nil && time.Since(r.primaryLoaded) < tableTTL
	table := r.primaryTable
	r.mu.RUnlock()
	if fresh {
		return table
	}

	loaded, err := r.loadPrimary(ctx)
	if err != nil {
		r.log.Warnf("NSE equity list download failed: %v", err)
		return table // stale beats empty
	}
	r.mu.Lock()
	r.primaryTable = loaded
	r.primaryLoaded = time.Now()
	r.mu.Unlock()
	return loaded
}

// loadPrimary parses the NSE equity master CSV. Header names drift between
// publications, so columns are detected rather than assumed.
func (r *Resolver) loadPrimary(ctx context.Context) (map[string]string, error) {
	body, err := r.download(ctx, r.primaryURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	isinCol, symbolCol := -1, -1
	for i, col := range header {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(col), " ", ""))
		if strings.Contains(key, "isin") && isinCol < 0 {
			isinCol = i
		}
		if (key == "symbol" || key == "tradingsymbol" || key == "sc_symbol") && symbolCol < 0 {
			symbolCol = i
		}
	}
	if symbolCol < 0 {
		for i, col := range header {
			if strings.Contains(strings.ToLower(col), "symbol") {
				symbolCol = i
				break
			}
		}
	}
	if isinCol < 0 || symbolCol < 0 {
		return nil, fmt.Errorf("column detection failed, header: %v", header)
	}

	table := make(map[string]string)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if isinCol >= len(row) || symbolCol >= len(row) {
			continue
		}
		isin := strings.ToUpper(strings.TrimSpace(row[isinCol]))
		if isinPattern.MatchString(isin) {
			table[isin] = strings.TrimSpace(row[symbolCol])
		}
	}
	r.log.Infof("loaded %d symbols from NSE equity list", len(table))
	return table, nil
}

func (r *Resolver) secondary(ctx context.Context) map[string]string {
	r.mu.RLock()
	fresh := r.secondaryTable != nil && time.Since(r.secondaryLoaded) < tableTTL
	table := r.secondaryTable
	r.mu.RUnlock()
	if fresh {
		return table
	}

	loaded, err := r.loadSecondary(ctx)
	if err != nil {
		r.log.Warnf("BSE symbol master download failed: %v", err)
		return table
	}
	r.mu.Lock()
	r.secondaryTable = loaded
	r.secondaryLoaded = time.Now()
	r.mu.Unlock()
	return loaded
}

// loadSecondary streams the broker's headerless symbol master row by row,
// picking the ISIN field by shape and the first exchange-prefixed field as
// the symbol.
func (r *Resolver) loadSecondary(ctx context.Context) (map[string]string, error) {
	body, err := r.download(ctx, r.secondaryURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1

	table := make(map[string]string)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		var isin, symbol string
		for _, field := range row {
			f := strings.ToUpper(strings.TrimSpace(field))
			if isin == "" && isinPattern.MatchString(f) {
				isin = f
			}
			if symbol == "" && strings.Contains(f, ":") && !strings.Contains(f, "/") {
				symbol = f
			}
		}
		if isin != "" && symbol != "" {
			table[isin] = symbol
		}
	}
	r.log.Infof("loaded %d symbols from BSE master", len(table))
	return table, nil
}

func (r *Resolver) download(ctx context.Context, addr string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", addr, resp.StatusCode)
	}
	return resp.Body, nil
}
