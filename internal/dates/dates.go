// Package dates provides a day-granularity date type plus the NSE market
// calendar used to decide whether a quote or an official NAV can exist yet.
package dates

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ISOFormat is the storage and API-input format.
const ISOFormat = "2006-01-02"

// WireFormat is the DD-MM-YYYY format used by the NAV history provider.
const WireFormat = "02-01-2006"

// Date represents a calendar date with no time component.
type Date struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Date (overflow days roll into the next month).
func New(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.time().Date()
	return d
}

// FromTime truncates t to its calendar date in t's location.
func FromTime(t time.Time) Date {
	return New(t.Date())
}

func (d Date) time() time.Time {
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC)
}

func (d Date) Year() int         { return d.y }
func (d Date) Month() time.Month { return d.m }
func (d Date) Day() int          { return d.d }

func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }
func (d Date) After(x Date) bool  { return d.time().After(x.time()) }
func (d Date) Equal(x Date) bool  { return d == x }
func (d Date) IsZero() bool       { return d == Date{} }

func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

// AddDays returns the date i days later (or earlier for negative i).
func (d Date) AddDays(i int) Date { return New(d.y, d.m, d.d+i) }

// AddMonthsClamped advances by n months keeping the day-of-month, clamping to
// the last day of the target month when the day does not exist there
// (e.g. Jan 31 + 1 month = Feb 29 in a leap year).
func (d Date) AddMonthsClamped(n int, day int) Date {
	y, m := d.y, int(d.m)+n
	for m > 12 {
		m -= 12
		y++
	}
	for m < 1 {
		m += 12
		y--
	}
	last := DaysInMonth(y, time.Month(m))
	if day > last {
		day = last
	}
	return New(y, time.Month(m), day)
}

// DaysSince returns the number of whole days from x to d.
func (d Date) DaysSince(x Date) int {
	return int(d.time().Sub(x.time()) / (24 * time.Hour))
}

// MonthsSince returns the number of whole calendar months from x to d,
// ignoring the day-of-month remainder beyond full months.
func (d Date) MonthsSince(x Date) int {
	months := (d.y-x.y)*12 + int(d.m) - int(x.m)
	if d.d < x.d {
		months--
	}
	return months
}

// Unix returns the epoch second of midnight UTC on d.
func (d Date) Unix() int64 { return d.time().Unix() }

// DaysInMonth returns the day count of the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (d Date) String() string { return d.time().Format(ISOFormat) }

// Wire formats the date in the provider's DD-MM-YYYY convention.
func (d Date) Wire() string { return d.time().Format(WireFormat) }

// Parse accepts ISO (YYYY-MM-DD), wire (DD-MM-YYYY) and DD/MM/YYYY inputs.
func Parse(s string) (Date, error) {
	for _, layout := range []string{ISOFormat, WireFormat, "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), nil
		}
	}
	return Date{}, fmt.Errorf("unparseable date %q", s)
}

// MustParse is Parse for test fixtures and constants; it panics on error.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	p, err := Parse(s)
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// Value implements driver.Valuer so Date can be stored in a date column.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.time(), nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = FromTime(v)
		return nil
	case string:
		p, err := Parse(v)
		if err != nil {
			return err
		}
		*d = p
		return nil
	case []byte:
		return d.Scan(string(v))
	}
	return fmt.Errorf("cannot scan %T into dates.Date", src)
}
