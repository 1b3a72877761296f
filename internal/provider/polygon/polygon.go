// Package polygon reads aggregates from Polygon.io.
package polygon

import (
    "context"
    "fmt"
    "net/url"
    "time"

    "marketdata/internal/httpx"
    "marketdata/internal/provider"
)

const baseURL = "https://api.polygon.io"

type span struct {
    multiplier int
    timespan   string
}

var spans = map[provider.Interval]span{
    provider.Interval1Min:  {1, "minute"},
    provider.Interval5Min:  {5, "minute"},
    provider.Interval15Min: {15, "minute"},
    provider.Interval30Min: {30, "minute"},
    provider.Interval1H:    {1, "hour"},
    provider.Interval1D:    {1, "day"},
    provider.Interval1Wk:   {1, "week"},
    provider.Interval1Mo:   {1, "month"},
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

func WithClock(now func() time.Time) Option { return func(a *Adapter) { a.now = now } }

func New(keys provider.KeyStore, opts ...Option) *Adapter {
    a := &Adapter{baseURL: baseURL, http: httpx.New(httpx.DefaultTimeout), keys: keys, now: time.Now}
    for _, o := range opts { o(a) }
    return a
}

func (a *Adapter) Name() provider.Name { return provider.Polygon }

func (a *Adapter) Available() bool {
    if a.keys == nil { return false }
    _, ok := a.keys.APIKey(provider.Polygon)
    return ok
}

type aggsResponse struct {
    Ticker       string `json:"ticker"`
    Status       string `json:"status"`
    ResultsCount int    `json:"resultsCount"`
    Results      []struct {
        Sym string  `json:"T"`
        T   int64   `json:"t"` // ms
        O   float64 `json:"o"`
        H   float64 `json:"h"`
        L   float64 `json:"l"`
        C   float64 `json:"c"`
        V   float64 `json:"v"`
    } `json:"results"`
    Error string `json:"error"`
}

func (a *Adapter) aggs(ctx context.Context, path string, q url.Values) (aggsResponse, error) {
    var resp aggsResponse
    if a.keys == nil { return resp, provider.Unavailable(provider.Polygon, "no API key") }
    key, ok := a.keys.APIKey(provider.Polygon)
    if !ok { return resp, provider.Unavailable(provider.Polygon, "no API key") }

    redacted := a.baseURL + path + "?" + q.Encode()
    q.Set("apiKey", key)
    if err := httpx.GetJSON(ctx, a.http, a.baseURL+path+"?"+q.Encode(), redacted, nil, &resp); err != nil {
        return resp, err
    }
    // DELAYED is what non-realtime plans get
    if resp.Status != "OK" && resp.Status != "DELAYED" {
        if resp.Error != "" { return resp, fmt.Errorf("status %s: %s", resp.Status, resp.Error) }
        return resp, fmt.Errorf("status %q", resp.Status)
    }
    if len(resp.Results) == 0 { return resp, provider.ErrNoData }
    return resp, nil
}

// FetchCurrentPrice reads the previous session's bar. Change is measured
// against that bar's open.
func (a *Adapter) FetchCurrentPrice(ctx context.Context, symbol string) (provider.Quote, error) {
    q := url.Values{}
    q.Set("adjusted", "true")
    resp, err := a.aggs(ctx, fmt.Sprintf("/v2/aggs/ticker/%s/prev", url.PathEscape(symbol)), q)
    if err != nil { return provider.Quote{}, provider.Fail(provider.Polygon, "quote", err) }

    r := resp.Results[0]
    out := provider.Quote{
        Symbol:      symbol,
        Price:       r.C,
        Change:      r.C - r.O,
        TimestampMs: r.T,
        Provider:    provider.Polygon,
        Status:      provider.StatusReal,
    }
    switch {
    case resp.Ticker != "":
        out.Symbol = resp.Ticker
    case r.Sym != "":
        out.Symbol = r.Sym
    }
    if r.O != 0 { out.ChangePercent = out.Change / r.O * 100 }
    if out.TimestampMs == 0 { out.TimestampMs = a.now().UnixMilli() }
    if err := out.Validate(); err != nil {
        return provider.Quote{}, provider.Fail(provider.Polygon, "quote", err)
    }
    return out, nil
}

// FetchHistorical reads /range aggregates for [now-period, now], ascending.
func (a *Adapter) FetchHistorical(ctx context.Context, symbol string, period provider.Period, interval provider.Interval) (provider.Series, error) {
    sp, ok := spans[interval]
    if !ok { return provider.Series{}, provider.Fail(provider.Polygon, "history", fmt.Errorf("unsupported interval %q", interval)) }
    if !period.Valid() { return provider.Series{}, provider.Fail(provider.Polygon, "history", fmt.Errorf("unsupported period %q", period)) }

    now := a.now()
    path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
        url.PathEscape(symbol), sp.multiplier, sp.timespan,
        period.Since(now).UTC().Format("2006-01-02"), now.UTC().Format("2006-01-02"))
    q := url.Values{}
    q.Set("adjusted", "true")
    q.Set("sort", "asc")
    q.Set("limit", "50000")
    resp, err := a.aggs(ctx, path, q)
    if err != nil { return provider.Series{}, provider.Fail(provider.Polygon, "history", err) }

    bars := make([]provider.Bar, 0, len(resp.Results))
    for _, r := range resp.Results {
        bars = append(bars, provider.Bar{
            Date:   provider.BarDate(time.UnixMilli(r.T), interval),
            Open:   r.O,
            High:   r.H,
            Low:    r.L,
            Close:  r.C,
            Volume: int64(r.V),
        })
    }
    return provider.Series{
        Symbol:         symbol,
        HistoricalData: provider.Dedupe(bars),
        Provider:       provider.Polygon,
        Status:         provider.StatusReal,
    }, nil
}
