package provider

import (
    "time"
)

// Period is the caller's abstract look-back window.
type Period string

const (
    Period1D Period = "1d"
    Period1W Period = "1w"
    Period1M Period = "1m"
    Period3M Period = "3m"
    Period6M Period = "6m"
    Period1Y Period = "1y"
    Period5Y Period = "5y"
)

// Interval is the caller's abstract bar size.
type Interval string

const (
    Interval1Min  Interval = "1m"
    Interval5Min  Interval = "5m"
    Interval15Min Interval = "15m"
    Interval30Min Interval = "30m"
    Interval1H    Interval = "1h"
    Interval1D    Interval = "1d"
    Interval1Wk   Interval = "1wk"
    Interval1Mo   Interval = "1mo"
)

const (
    DefaultPeriod   = Period1Y
    DefaultInterval = Interval1D
)

var periods = map[Period]struct{ years, months, days int }{
    Period1D: {0, 0, 1},
    Period1W: {0, 0, 7},
    Period1M: {0, 1, 0},
    Period3M: {0, 3, 0},
    Period6M: {0, 6, 0},
    Period1Y: {1, 0, 0},
    Period5Y: {5, 0, 0},
}

var intervals = map[Interval]bool{
    Interval1Min:  true,
    Interval5Min:  true,
    Interval15Min: true,
    Interval30Min: true,
    Interval1H:    true,
    Interval1D:    false,
    Interval1Wk:   false,
    Interval1Mo:   false,
}

func (p Period) Valid() bool { _, ok := periods[p]; return ok }

// Since returns the start of the window ending at now.
func (p Period) Since(now time.Time) time.Time {
    d, ok := periods[p]
    if !ok { d = periods[DefaultPeriod] }
    return now.AddDate(-d.years, -d.months, -d.days)
}

func (i Interval) Valid() bool { _, ok := intervals[i]; return ok }

// Intraday reports whether bars are shorter than a day.
func (i Interval) Intraday() bool { return intervals[i] }

// BarDate formats a bar timestamp as ISO-8601: a plain date for daily or coarser
// bars, RFC 3339 in UTC otherwise.
func BarDate(t time.Time, i Interval) string {
    if i.Intraday() {
        return t.UTC().Format(time.RFC3339)
    }
    return t.UTC().Format("2006-01-02")
}

// FilterSince keeps bars dated on or after since, preserving order. Bars with an
// unparsable date are dropped.
func FilterSince(bars []Bar, since time.Time) []Bar {
    out := make([]Bar, 0, len(bars))
    day := since.UTC().Format("2006-01-02")
    for _, b := range bars {
        if len(b.Date) == len("2006-01-02") {
            if b.Date >= day { out = append(out, b) }
            continue
        }
        t, err := time.Parse(time.RFC3339, b.Date)
        if err != nil { continue }
        if !t.Before(since) { out = append(out, b) }
    }
    return out
}

// Dedupe drops repeated dates, keeping the position of the first bar and the
// values of the last one (providers restate the current day's bar).
func Dedupe(bars []Bar) []Bar {
    idx := make(map[string]int, len(bars))
    out := make([]Bar, 0, len(bars))
    for _, b := range bars {
        if i, ok := idx[b.Date]; ok {
            out[i] = b
            continue
        }
        idx[b.Date] = len(out)
        out = append(out, b)
    }
    return out
}
