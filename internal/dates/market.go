package dates

import "time"

// IST is the exchange timezone. time.FixedZone avoids a tzdata dependency on
// stripped containers.
var IST = time.FixedZone("IST", 5*3600+30*60)

// NSE session bounds.
var (
	MarketOpenHour    = 9
	MarketOpenMinute  = 15
	MarketCloseHour   = 15
	MarketCloseMinute = 30
)

// nseHolidays is a static exchange holiday list. Updated once a year alongside
// the published NSE trading calendar.
var nseHolidays = map[string]bool{
	"2024-01-26": true, "2024-03-08": true, "2024-03-25": true, "2024-04-11": true,
	"2024-04-17": true, "2024-05-01": true, "2024-05-20": true, "2024-06-17": true,
	"2024-07-17": true, "2024-08-15": true, "2024-10-02": true, "2024-11-01": true,
	"2024-11-15": true, "2024-12-25": true,
	"2025-01-26": true, "2025-02-26": true, "2025-03-14": true, "2025-03-31": true,
	"2025-04-10": true, "2025-04-14": true, "2025-04-18": true, "2025-05-01": true,
	"2025-08-15": true, "2025-08-27": true, "2025-10-02": true, "2025-10-21": true,
	"2025-10-22": true, "2025-11-05": true, "2025-12-25": true,
	"2026-01-26": true, "2026-08-15": true, "2026-10-02": true, "2026-12-25": true,
}

// Clock supplies the current exchange-local time. Injectable so the decision
// ladder can be tested at fixed instants.
type Clock interface {
	NowIST() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) NowIST() time.Time { return time.Now().In(IST) }

// FixedClock always reports the same instant.
type FixedClock struct{ T time.Time }

func (c FixedClock) NowIST() time.Time { return c.T }

// IsTradingDay reports whether d is a weekday that is not an exchange holiday.
func IsTradingDay(d Date) bool {
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !nseHolidays[d.String()]
}

// MarketHasOpened reports whether the session open time has passed at t on a
// trading day. It stays true after the close: the day's quotes remain usable
// until the official NAV replaces them.
func MarketHasOpened(t time.Time) bool {
	d := FromTime(t)
	if !IsTradingDay(d) {
		return false
	}
	open := time.Date(t.Year(), t.Month(), t.Day(), MarketOpenHour, MarketOpenMinute, 0, 0, t.Location())
	return !t.Before(open)
}

// PreviousBusinessDay walks back from d to the nearest earlier trading day.
func PreviousBusinessDay(d Date) Date {
	prev := d.AddDays(-1)
	for !IsTradingDay(prev) {
		prev = prev.AddDays(-1)
	}
	return prev
}
