package common

import (
	"fmt"
	"time"
)

// DateWindow is an inclusive [Start, End] day range resolved from a search
// request. All adapters fetch against a resolved window, never against the
// raw request fields.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered by the window, inclusive.
func (w DateWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// StartDate returns the window start formatted as YYYY-MM-DD.
func (w DateWindow) StartDate() string {
	return w.Start.Format("2006-01-02")
}

// EndDate returns the window end formatted as YYYY-MM-DD.
func (w DateWindow) EndDate() string {
	return w.End.Format("2006-01-02")
}

// ResolveWindow normalizes the (start_date, end_date, days_back) request
// fields into an inclusive day window. Either explicit bounds or days_back
// may be given; when both are absent, defaultDays back from today is used.
// Dates are YYYY-MM-DD strings.
func ResolveWindow(startDate, endDate string, daysBack, defaultDays int, now time.Time) (DateWindow, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if startDate != "" || endDate != "" {
		start, err := parseDay(startDate, today.AddDate(0, 0, -(defaultDays-1)))
		if err != nil {
			return DateWindow{}, err
		}
		end, err := parseDay(endDate, today)
		if err != nil {
			return DateWindow{}, err
		}
		if end.Before(start) {
			return DateWindow{}, fmt.Errorf("end_date %s is before start_date %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
		}
		return DateWindow{Start: start, End: end}, nil
	}

	days := daysBack
	if days < 1 {
		days = defaultDays
	}
	if days < 1 {
		days = 7
	}
	return DateWindow{Start: today.AddDate(0, 0, -(days - 1)), End: today}, nil
}

func parseDay(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t.UTC(), nil
}

// ParseFlexibleDate parses the heterogeneous date strings seen in source
// records (RFC1123 feed dates, RFC3339 timestamps, plain days). It returns
// the parsed time and true, or the zero time and false when nothing matched.
func ParseFlexibleDate(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02/01/2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
