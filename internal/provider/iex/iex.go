// Package iex reads quotes from IEX Cloud. IEX serves no history here, so the
// adapter does not implement provider.Historian.
package iex

import (
    "context"
    "fmt"
    "net/url"
    "time"

    "marketdata/internal/httpx"
    "marketdata/internal/provider"
)

const baseURL = "https://cloud.iexapis.com"

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

func (a *Adapter) Name() provider.Name { return provider.IEX }

func (a *Adapter) Available() bool {
    if a.keys == nil { return false }
    _, ok := a.keys.APIKey(provider.IEX)
    return ok
}

type quoteResponse struct {
    Symbol          string   `json:"symbol"`
    LatestPrice     *float64 `json:"latestPrice"`
    Change          *float64 `json:"change"`
    ChangePercent   *float64 `json:"changePercent"`
    Currency        string   `json:"currency"`
    PrimaryExchange string   `json:"primaryExchange"`
    LatestUpdate    int64    `json:"latestUpdate"`
}

// FetchCurrentPrice calls /stable/stock/{symbol}/quote. IEX reports
// changePercent as a fraction.
func (a *Adapter) FetchCurrentPrice(ctx context.Context, symbol string) (provider.Quote, error) {
    if a.keys == nil { return provider.Quote{}, provider.Unavailable(provider.IEX, "no API key") }
    key, ok := a.keys.APIKey(provider.IEX)
    if !ok { return provider.Quote{}, provider.Unavailable(provider.IEX, "no API key") }

    path := fmt.Sprintf("%s/stable/stock/%s/quote", a.baseURL, url.PathEscape(symbol))
    q := url.Values{}
    q.Set("token", key)

    var resp quoteResponse
    if err := httpx.GetJSON(ctx, a.http, path+"?"+q.Encode(), path, nil, &resp); err != nil {
        return provider.Quote{}, provider.Fail(provider.IEX, "quote", err)
    }
    if resp.LatestPrice == nil {
        return provider.Quote{}, provider.Fail(provider.IEX, "quote", provider.ErrNoData)
    }

    currency, factor := provider.NormalizeCurrency(resp.Currency)
    out := provider.Quote{
        Symbol:   symbol,
        Price:    *resp.LatestPrice * factor,
        Currency: currency,
        Exchange: resp.PrimaryExchange,
        Provider: provider.IEX,
        Status:   provider.StatusReal,
    }
    if resp.Symbol != "" { out.Symbol = resp.Symbol }
    if resp.Change != nil { out.Change = *resp.Change * factor }
    if resp.ChangePercent != nil { out.ChangePercent = *resp.ChangePercent * 100 }
    out.TimestampMs = resp.LatestUpdate
    if out.TimestampMs == 0 { out.TimestampMs = a.now().UnixMilli() }
    if err := out.Validate(); err != nil {
        return provider.Quote{}, provider.Fail(provider.IEX, "quote", err)
    }
    return out, nil
}
