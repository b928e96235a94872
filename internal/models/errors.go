package models

import (
	"errors"
	"fmt"
)

// Terminal, user-visible failures. Everything else degrades into a note on
// the valuation result instead of surfacing.
var (
	ErrRecordNotFound      = errors.New("investment record not found")
	ErrSchemeCodeMissing   = errors.New("scheme code missing for this fund")
	ErrNoNavData           = errors.New("no official NAV data available")
	ErrInstallmentNotFound = errors.New("installment not found")
)

// Internal sentinels. They drive the fallback ladder and are never returned
// to callers directly.
var (
	ErrInsufficientCoverage     = errors.New("insufficient quote coverage")
	ErrInvalidPurchaseNav       = errors.New("purchase NAV is zero or negative")
	ErrProviderUnavailable      = errors.New("quote provider unavailable")
	ErrSymbolNotFound           = errors.New("symbol not found in reference tables")
	ErrInstallmentNotActionable = errors.New("installment is not pending")
)

// AmbiguousSchemeError reports that no scheme candidate cleared the
// auto-accept thresholds; the caller must disambiguate.
type AmbiguousSchemeError struct {
	Query      string
	Candidates []SchemeCandidate
}

func (e *AmbiguousSchemeError) Error() string {
	return fmt.Sprintf("ambiguous scheme match for %q: %d candidates", e.Query, len(e.Candidates))
}
