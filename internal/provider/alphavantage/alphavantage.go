// Package alphavantage reads GLOBAL_QUOTE and TIME_SERIES_* from Alpha Vantage.
//
// All numeric fields arrive as strings ("05. price": "175.5000") and are parsed
// with shopspring/decimal. Throttling and bad requests are reported in a 200
// body through the Note, Information or Error Message fields.
package alphavantage

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "sort"
    "strings"
    "time"

    "github.com/shopspring/decimal"

    "marketdata/internal/httpx"
    "marketdata/internal/provider"
)

const baseURL = "https://www.alphavantage.co"

type series struct {
    function   string
    interval   string
    key        string
    outputSize string
}

// series per interval. Intraday sizes use the "(Nmin)" key suffix.
var seriesFor = map[provider.Interval]series{
    provider.Interval1Min:  {"TIME_SERIES_INTRADAY", "1min", "Time Series (1min)", "full"},
    provider.Interval5Min:  {"TIME_SERIES_INTRADAY", "5min", "Time Series (5min)", "full"},
    provider.Interval15Min: {"TIME_SERIES_INTRADAY", "15min", "Time Series (15min)", "full"},
    provider.Interval30Min: {"TIME_SERIES_INTRADAY", "30min", "Time Series (30min)", "full"},
    provider.Interval1H:    {"TIME_SERIES_INTRADAY", "60min", "Time Series (60min)", "full"},
    provider.Interval1D:    {"TIME_SERIES_DAILY", "", "Time Series (Daily)", ""},
    provider.Interval1Wk:   {"TIME_SERIES_WEEKLY", "", "Weekly Time Series", ""},
    provider.Interval1Mo:   {"TIME_SERIES_MONTHLY", "", "Monthly Time Series", ""},
}

// compact (last 100 points) covers every period up to three months of daily bars.
var compact = map[provider.Period]bool{
    provider.Period1D: true,
    provider.Period1W: true,
    provider.Period1M: true,
    provider.Period3M: true,
}

// Intraday timestamps are US/Eastern.
var eastern = func() *time.Location {
    loc, err := time.LoadLocation("America/New_York")
    if err != nil { return time.FixedZone("EST", -5*3600) }
    return loc
}()

type Adapter struct {
    baseURL string
    http    httpx.Doer
    keys    provider.KeyStore
    now     func() time.Time
}

type Option func(*Adapter)

func WithBaseURL(u string) Option { return func(a *Adapter) { a.baseURL = u } }

func WithHTTPClient(d httpx.Doer) Option { return func(a *Adapter) { a.http = d } }

// WithClock sets the reference time for the history window.
func WithClock(now func() time.Time) Option { return func(a *Adapter) { a.now = now } }

// New returns an adapter that reads its API key from keys on every call.
func New(keys provider.KeyStore, opts ...Option) *Adapter {
    a := &Adapter{baseURL: baseURL, http: httpx.New(httpx.DefaultTimeout), keys: keys, now: time.Now}
    for _, o := range opts { o(a) }
    return a
}

func (a *Adapter) Name() provider.Name { return provider.AlphaVantage }

func (a *Adapter) Available() bool {
    if a.keys == nil { return false }
    _, ok := a.keys.APIKey(provider.AlphaVantage)
    return ok
}

// query builds the request URL and its key-free twin for error messages.
func (a *Adapter) query(q url.Values) (string, string, error) {
    if a.keys == nil { return "", "", provider.Unavailable(provider.AlphaVantage, "no API key") }
    key, ok := a.keys.APIKey(provider.AlphaVantage)
    if !ok { return "", "", provider.Unavailable(provider.AlphaVantage, "no API key") }
    redacted := a.baseURL + "/query?" + q.Encode()
    q.Set("apikey", key)
    return a.baseURL + "/query?" + q.Encode(), redacted, nil
}

type envelope struct {
    Note         string `json:"Note"`
    Information  string `json:"Information"`
    ErrorMessage string `json:"Error Message"`
}

func (e envelope) err() error {
    switch {
    case e.ErrorMessage != "":
        return errors.New(e.ErrorMessage)
    case e.Note != "":
        return fmt.Errorf("throttled: %s", e.Note)
    case e.Information != "":
        return errors.New(e.Information)
    }
    return nil
}

type globalQuoteResponse struct {
    envelope
    GlobalQuote map[string]string `json:"Global Quote"`
}

func (a *Adapter) FetchCurrentPrice(ctx context.Context, symbol string) (provider.Quote, error) {
    q := url.Values{}
    q.Set("function", "GLOBAL_QUOTE")
    q.Set("symbol", symbol)
    u, redacted, err := a.query(q)
    if err != nil { return provider.Quote{}, err }

    var resp globalQuoteResponse
    if err := httpx.GetJSON(ctx, a.http, u, redacted, nil, &resp); err != nil {
        return provider.Quote{}, provider.Fail(provider.AlphaVantage, "quote", err)
    }
    if err := resp.err(); err != nil {
        return provider.Quote{}, provider.Fail(provider.AlphaVantage, "quote", err)
    }
    gq := resp.GlobalQuote
    if len(gq) == 0 || gq["05. price"] == "" {
        return provider.Quote{}, provider.Fail(provider.AlphaVantage, "quote", provider.ErrNoData)
    }

    price, err := decimal.NewFromString(gq["05. price"])
    if err != nil {
        return provider.Quote{}, provider.Fail(provider.AlphaVantage, "quote", fmt.Errorf("price: %w", err))
    }
    change := parseOr(gq["09. change"])
    pct := parseOr(strings.TrimSuffix(strings.TrimSpace(gq["10. change percent"]), "%"))

    out := provider.Quote{
        Symbol:        symbol,
        Price:         price.InexactFloat64(),
        Change:        change.InexactFloat64(),
        ChangePercent: pct.InexactFloat64(),
        Provider:      provider.AlphaVantage,
        Status:        provider.StatusReal,
    }
    if s := gq["01. symbol"]; s != "" { out.Symbol = s }
    if d, err := time.ParseInLocation("2006-01-02", gq["07. latest trading day"], eastern); err == nil {
        out.TimestampMs = d.UnixMilli()
    } else {
        out.TimestampMs = a.now().UnixMilli()
    }
    if err := out.Validate(); err != nil {
        return provider.Quote{}, provider.Fail(provider.AlphaVantage, "quote", err)
    }
    return out, nil
}

// FetchHistorical returns the series newest first, trimmed to the requested period.
func (a *Adapter) FetchHistorical(ctx context.Context, symbol string, period provider.Period, interval provider.Interval) (provider.Series, error) {
    ts, ok := seriesFor[interval]
    if !ok { return provider.Series{}, provider.Fail(provider.AlphaVantage, "history", fmt.Errorf("unsupported interval %q", interval)) }
    if !period.Valid() { return provider.Series{}, provider.Fail(provider.AlphaVantage, "history", fmt.Errorf("unsupported period %q", period)) }

    q := url.Values{}
    q.Set("function", ts.function)
    q.Set("symbol", symbol)
    if ts.interval != "" { q.Set("interval", ts.interval) }
    switch {
    case ts.outputSize != "":
        q.Set("outputsize", ts.outputSize)
    case ts.function == "TIME_SERIES_DAILY" && !compact[period]:
        q.Set("outputsize", "full")
    }
    u, redacted, err := a.query(q)
    if err != nil { return provider.Series{}, err }

    var raw map[string]json.RawMessage
    if err := httpx.GetJSON(ctx, a.http, u, redacted, nil, &raw); err != nil {
        return provider.Series{}, provider.Fail(provider.AlphaVantage, "history", err)
    }
    var env envelope
    for k, dst := range map[string]*string{"Note": &env.Note, "Information": &env.Information, "Error Message": &env.ErrorMessage} {
        if m, ok := raw[k]; ok { _ = json.Unmarshal(m, dst) }
    }
    if err := env.err(); err != nil {
        return provider.Series{}, provider.Fail(provider.AlphaVantage, "history", err)
    }
    body, ok := raw[ts.key]
    if !ok { return provider.Series{}, provider.Fail(provider.AlphaVantage, "history", provider.ErrNoData) }

    var rows map[string]map[string]string
    if err := json.Unmarshal(body, &rows); err != nil {
        return provider.Series{}, provider.Fail(provider.AlphaVantage, "history", fmt.Errorf("decode: %w", err))
    }

    type row struct {
        at  time.Time
        bar provider.Bar
    }
    parsed := make([]row, 0, len(rows))
    for stamp, f := range rows {
        at, err := parseStamp(stamp)
        if err != nil { continue }
        c, err := decimal.NewFromString(f["4. close"])
        if err != nil { continue }
        parsed = append(parsed, row{at: at, bar: provider.Bar{
            Date:   provider.BarDate(at, interval),
            Open:   parseOr(f["1. open"]).InexactFloat64(),
            High:   parseOr(f["2. high"]).InexactFloat64(),
            Low:    parseOr(f["3. low"]).InexactFloat64(),
            Close:  c.InexactFloat64(),
            Volume: parseOr(f["5. volume"]).IntPart(),
        }})
    }
    sort.Slice(parsed, func(i, j int) bool { return parsed[i].at.After(parsed[j].at) })

    bars := make([]provider.Bar, len(parsed))
    for i, r := range parsed { bars[i] = r.bar }
    bars = provider.FilterSince(bars, period.Since(a.now()))
    if len(bars) == 0 {
        return provider.Series{}, provider.Fail(provider.AlphaVantage, "history", provider.ErrNoData)
    }
    return provider.Series{
        Symbol:         symbol,
        HistoricalData: bars,
        Provider:       provider.AlphaVantage,
        Status:         provider.StatusReal,
    }, nil
}

// parseStamp accepts daily keys ("2025-01-02") and intraday keys in US/Eastern.
func parseStamp(s string) (time.Time, error) {
    if len(s) == len("2006-01-02") {
        return time.Parse("2006-01-02", s)
    }
    return time.ParseInLocation("2006-01-02 15:04:05", s, eastern)
}

func parseOr(s string) decimal.Decimal {
    d, err := decimal.NewFromString(strings.TrimSpace(s))
    if err != nil { return decimal.Zero }
    return d
}
