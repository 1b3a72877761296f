// Package finnhub reads quotes and candles from Finnhub.
package finnhub

import (
    "context"
    "fmt"
    "net/url"
    "strconv"
    "time"

    "marketdata/internal/httpx"
    "marketdata/internal/provider"
)

const baseURL = "https://finnhub.io"

var resolutions = map[provider.Interval]string{
    provider.Interval1Min:  "1",
    provider.Interval5Min:  "5",
    provider.Interval15Min: "15",
    provider.Interval30Min: "30",
    provider.Interval1H:    "60",
    provider.Interval1D:    "D",
    provider.Interval1Wk:   "W",
    provider.Interval1Mo:   "M",
}

type Adapter struct {
    baseURL string
    http    httpx.Doer
    keys    provider.KeyStore
    now     func() time.Time
}

type Option func(*Adapter)

func WithBaseURL(u string) Option { return func(a *Adapter) { a.baseURL = u } }

func WithHTTPClient(d httpx.Doer) Option { return func(a *Adapter) { a.http = d } }

// WithClock sets the upper bound of candle requests.
func WithClock(now func() time.Time) Option { return func(a *Adapter) { a.now = now } }

func New(keys provider.KeyStore, opts ...Option) *Adapter {
    a := &Adapter{baseURL: baseURL, http: httpx.New(httpx.DefaultTimeout), keys: keys, now: time.Now}
    for _, o := range opts { o(a) }
    return a
}

func (a *Adapter) Name() provider.Name { return provider.Finnhub }

func (a *Adapter) Available() bool {
    if a.keys == nil { return false }
    _, ok := a.keys.APIKey(provider.Finnhub)
    return ok
}

func (a *Adapter) get(ctx context.Context, path string, q url.Values, v any) error {
    if a.keys == nil { return provider.Unavailable(provider.Finnhub, "no API key") }
    key, ok := a.keys.APIKey(provider.Finnhub)
    if !ok { return provider.Unavailable(provider.Finnhub, "no API key") }
    redacted := a.baseURL + path + "?" + q.Encode()
    q.Set("token", key)
    return httpx.GetJSON(ctx, a.http, a.baseURL+path+"?"+q.Encode(), redacted, nil, v)
}

type quoteResponse struct {
    Current       float64  `json:"c"`
    Change        *float64 `json:"d"`
    ChangePercent *float64 `json:"dp"`
    PrevClose     float64  `json:"pc"`
    Time          int64    `json:"t"`
}

// FetchCurrentPrice calls /api/v1/quote. Finnhub answers unknown symbols with
// an all-zero body rather than an error status.
func (a *Adapter) FetchCurrentPrice(ctx context.Context, symbol string) (provider.Quote, error) {
    q := url.Values{}
    q.Set("symbol", symbol)
    var resp quoteResponse
    if err := a.get(ctx, "/api/v1/quote", q, &resp); err != nil {
        return provider.Quote{}, provider.Fail(provider.Finnhub, "quote", err)
    }
    if resp.Current == 0 && resp.Time == 0 {
        return provider.Quote{}, provider.Fail(provider.Finnhub, "quote", provider.ErrNoData)
    }

    out := provider.Quote{
        Symbol:      symbol,
        Price:       resp.Current,
        TimestampMs: resp.Time * 1000,
        Provider:    provider.Finnhub,
        Status:      provider.StatusReal,
    }
    switch {
    case resp.Change != nil:
        out.Change = *resp.Change
    case resp.PrevClose > 0:
        out.Change = resp.Current - resp.PrevClose
    }
    switch {
    case resp.ChangePercent != nil:
        out.ChangePercent = *resp.ChangePercent
    case resp.PrevClose > 0:
        out.ChangePercent = out.Change / resp.PrevClose * 100
    }
    if out.TimestampMs == 0 { out.TimestampMs = a.now().UnixMilli() }
    if err := out.Validate(); err != nil {
        return provider.Quote{}, provider.Fail(provider.Finnhub, "quote", err)
    }
    return out, nil
}

type candleResponse struct {
    Status string    `json:"s"`
    Time   []int64   `json:"t"`
    Open   []float64 `json:"o"`
    High   []float64 `json:"h"`
    Low    []float64 `json:"l"`
    Close  []float64 `json:"c"`
    Volume []float64 `json:"v"`
}

// FetchHistorical calls /api/v1/stock/candle for [now-period, now].
func (a *Adapter) FetchHistorical(ctx context.Context, symbol string, period provider.Period, interval provider.Interval) (provider.Series, error) {
    res, ok := resolutions[interval]
    if !ok { return provider.Series{}, provider.Fail(provider.Finnhub, "history", fmt.Errorf("unsupported interval %q", interval)) }
    if !period.Valid() { return provider.Series{}, provider.Fail(provider.Finnhub, "history", fmt.Errorf("unsupported period %q", period)) }

    now := a.now()
    q := url.Values{}
    q.Set("symbol", symbol)
    q.Set("resolution", res)
    q.Set("from", strconv.FormatInt(period.Since(now).Unix(), 10))
    q.Set("to", strconv.FormatInt(now.Unix(), 10))

    var resp candleResponse
    if err := a.get(ctx, "/api/v1/stock/candle", q, &resp); err != nil {
        return provider.Series{}, provider.Fail(provider.Finnhub, "history", err)
    }
    switch resp.Status {
    case "ok":
    case "no_data":
        return provider.Series{}, provider.Fail(provider.Finnhub, "history", provider.ErrNoData)
    default:
        return provider.Series{}, provider.Fail(provider.Finnhub, "history", fmt.Errorf("unexpected status %q", resp.Status))
    }
    n := len(resp.Time)
    if len(resp.Close) < n { n = len(resp.Close) }
    if n == 0 {
        return provider.Series{}, provider.Fail(provider.Finnhub, "history", provider.ErrNoData)
    }

    bars := make([]provider.Bar, 0, n)
    for i := 0; i < n; i++ {
        bars = append(bars, provider.Bar{
            Date:   provider.BarDate(time.Unix(resp.Time[i], 0), interval),
            Open:   value(resp.Open, i),
            High:   value(resp.High, i),
            Low:    value(resp.Low, i),
            Close:  resp.Close[i],
            Volume: int64(value(resp.Volume, i)),
        })
    }
    return provider.Series{
        Symbol:         symbol,
        HistoricalData: provider.Dedupe(bars),
        Provider:       provider.Finnhub,
        Status:         provider.StatusReal,
    }, nil
}

func value(xs []float64, i int) float64 {
    if i < len(xs) { return xs[i] }
    return 0
}
