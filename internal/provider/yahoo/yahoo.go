// Package yahoo reads quotes and series from Yahoo Finance's public chart API.
// It needs no API key.
package yahoo

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "time"

    "github.com/PaesslerAG/jsonpath"

    "marketdata/internal/httpx"
    "marketdata/internal/provider"
)

const baseURL = "https://query1.finance.yahoo.com"

var ranges = map[provider.Period]string{
    provider.Period1D: "1d",
    provider.Period1W: "5d",
    provider.Period1M: "1mo",
    provider.Period3M: "3mo",
    provider.Period6M: "6mo",
    provider.Period1Y: "1y",
    provider.Period5Y: "5y",
}

var intervals = map[provider.Interval]string{
    provider.Interval1Min:  "1m",
    provider.Interval5Min:  "5m",
    provider.Interval15Min: "15m",
    provider.Interval30Min: "30m",
    provider.Interval1H:    "60m",
    provider.Interval1D:    "1d",
    provider.Interval1Wk:   "1wk",
    provider.Interval1Mo:   "1mo",
}

// Adapter implements provider.Adapter and provider.Historian for Yahoo.
type Adapter struct {
    baseURL string
    http    httpx.Doer
    now     func() time.Time
}

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option { return func(a *Adapter) { a.baseURL = u } }

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(d httpx.Doer) Option { return func(a *Adapter) { a.http = d } }

// WithClock replaces the time source used when Yahoo omits a timestamp.
func WithClock(now func() time.Time) Option { return func(a *Adapter) { a.now = now } }

func New(opts ...Option) *Adapter {
    a := &Adapter{baseURL: baseURL, http: httpx.New(httpx.DefaultTimeout), now: time.Now}
    for _, o := range opts { o(a) }
    return a
}

func (a *Adapter) Name() provider.Name { return provider.Yahoo }

// Available is always true: the chart endpoint is public.
func (a *Adapter) Available() bool { return true }

func (a *Adapter) chartURL(symbol, rng, interval string) string {
    q := url.Values{}
    q.Set("range", rng)
    q.Set("interval", interval)
    return fmt.Sprintf("%s/v8/finance/chart/%s?%s", a.baseURL, url.PathEscape(symbol), q.Encode())
}

// FetchCurrentPrice reads the chart meta block. Change is computed against the
// previous close.
func (a *Adapter) FetchCurrentPrice(ctx context.Context, symbol string) (provider.Quote, error) {
    var body any
    if err := httpx.GetJSON(ctx, a.http, a.chartURL(symbol, "1d", "1d"), "", nil, &body); err != nil {
        return provider.Quote{}, provider.Fail(provider.Yahoo, "quote", err)
    }
    if msg, ok := chartError(body); ok {
        return provider.Quote{}, provider.Fail(provider.Yahoo, "quote", errors.New(msg))
    }
    meta, err := jsonpath.Get("$.chart.result[0].meta", body)
    if err != nil {
        return provider.Quote{}, provider.Fail(provider.Yahoo, "quote", fmt.Errorf("%w: %v", provider.ErrNoData, err))
    }
    m, ok := meta.(map[string]any)
    if !ok {
        return provider.Quote{}, provider.Fail(provider.Yahoo, "quote", fmt.Errorf("%w: meta is %T", provider.ErrNoData, meta))
    }

    price, ok := number(m["regularMarketPrice"])
    if !ok {
        return provider.Quote{}, provider.Fail(provider.Yahoo, "quote", fmt.Errorf("%w: no regularMarketPrice", provider.ErrNoData))
    }
    prev, ok := number(m["chartPreviousClose"])
    if !ok { prev, _ = number(m["previousClose"]) }

    cur, _ := m["currency"].(string)
    currency, factor := provider.NormalizeCurrency(cur)
    price *= factor
    prev *= factor

    q := provider.Quote{
        Symbol:   symbol,
        Price:    price,
        Currency: currency,
        Provider: provider.Yahoo,
        Status:   provider.StatusReal,
    }
    if s, ok := m["symbol"].(string); ok && s != "" { q.Symbol = s }
    if ex, ok := m["exchangeName"].(string); ok { q.Exchange = ex }
    if prev > 0 {
        q.Change = price - prev
        q.ChangePercent = q.Change / prev * 100
    }
    if ts, ok := number(m["regularMarketTime"]); ok && ts > 0 {
        q.TimestampMs = int64(ts) * 1000
    } else {
        q.TimestampMs = a.now().UnixMilli()
    }
    if err := q.Validate(); err != nil {
        return provider.Quote{}, provider.Fail(provider.Yahoo, "quote", err)
    }
    return q, nil
}

type chartResponse struct {
    Chart struct {
        Result []struct {
            Meta struct {
                Symbol   string `json:"symbol"`
                Currency string `json:"currency"`
            } `json:"meta"`
            Timestamp  []int64 `json:"timestamp"`
            Indicators struct {
                Quote []struct {
                    Open   []*float64 `json:"open"`
                    High   []*float64 `json:"high"`
                    Low    []*float64 `json:"low"`
                    Close  []*float64 `json:"close"`
                    Volume []*float64 `json:"volume"`
                } `json:"quote"`
            } `json:"indicators"`
        } `json:"result"`
        Error *struct {
            Code        string `json:"code"`
            Description string `json:"description"`
        } `json:"error"`
    } `json:"chart"`
}

// FetchHistorical maps period and interval onto Yahoo's range vocabulary.
// Bars are chronological; bars without a close are skipped.
func (a *Adapter) FetchHistorical(ctx context.Context, symbol string, period provider.Period, interval provider.Interval) (provider.Series, error) {
    rng, ok := ranges[period]
    if !ok { return provider.Series{}, provider.Fail(provider.Yahoo, "history", fmt.Errorf("unsupported period %q", period)) }
    iv, ok := intervals[interval]
    if !ok { return provider.Series{}, provider.Fail(provider.Yahoo, "history", fmt.Errorf("unsupported interval %q", interval)) }

    var chart chartResponse
    if err := httpx.GetJSON(ctx, a.http, a.chartURL(symbol, rng, iv), "", nil, &chart); err != nil {
        return provider.Series{}, provider.Fail(provider.Yahoo, "history", err)
    }
    if e := chart.Chart.Error; e != nil {
        return provider.Series{}, provider.Fail(provider.Yahoo, "history", fmt.Errorf("%s: %s", e.Code, e.Description))
    }
    if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
        return provider.Series{}, provider.Fail(provider.Yahoo, "history", provider.ErrNoData)
    }
    res := chart.Chart.Result[0]
    quote := res.Indicators.Quote[0]
    _, factor := provider.NormalizeCurrency(res.Meta.Currency)

    bars := make([]provider.Bar, 0, len(res.Timestamp))
    for i, ts := range res.Timestamp {
        c := at(quote.Close, i)
        if c == nil { continue }
        b := provider.Bar{
            Date:  provider.BarDate(time.Unix(ts, 0), interval),
            Close: *c * factor,
        }
        if v := at(quote.Open, i); v != nil { b.Open = *v * factor }
        if v := at(quote.High, i); v != nil { b.High = *v * factor }
        if v := at(quote.Low, i); v != nil { b.Low = *v * factor }
        if v := at(quote.Volume, i); v != nil { b.Volume = int64(*v) }
        bars = append(bars, b)
    }
    if len(bars) == 0 {
        return provider.Series{}, provider.Fail(provider.Yahoo, "history", provider.ErrNoData)
    }
    sym := symbol
    if res.Meta.Symbol != "" { sym = res.Meta.Symbol }
    return provider.Series{
        Symbol:         sym,
        HistoricalData: provider.Dedupe(bars),
        Provider:       provider.Yahoo,
        Status:         provider.StatusReal,
    }, nil
}

func at(xs []*float64, i int) *float64 {
    if i < len(xs) { return xs[i] }
    return nil
}

func chartError(body any) (string, bool) {
    v, err := jsonpath.Get("$.chart.error", body)
    if err != nil || v == nil { return "", false }
    if m, ok := v.(map[string]any); ok {
        return fmt.Sprintf("%v: %v", m["code"], m["description"]), true
    }
    return fmt.Sprint(v), true
}

// number reads a JSON number decoded either as float64 or json.Number.
func number(v any) (float64, bool) {
    switch n := v.(type) {
    case float64:
        return n, true
    case json.Number:
        f, err := n.Float64()
        return f, err == nil
    }
    return 0, false
}
