package provider

import (
    "context"
    "fmt"
    "math"
    "strings"
)

// Name identifies a market data provider.
type Name string

const (
    Yahoo        Name = "yahoo"
    AlphaVantage Name = "alphavantage"
    IEX          Name = "iex"
    Finnhub      Name = "finnhub"
    Polygon      Name = "polygon"
    // Mock tags synthesized quotes. It is never a configurable provider.
    Mock Name = "mock"
)

// Known lists the real providers in their default preference order.
var Known = []Name{Yahoo, AlphaVantage, IEX, Finnhub, Polygon}

var aliases = map[string]Name{
    "yahoo":         Yahoo,
    "yahoofinance":  Yahoo,
    "alphavantage":  AlphaVantage,
    "alpha_vantage": AlphaVantage,
    "alpha-vantage": AlphaVantage,
    "iex":           IEX,
    "iexcloud":      IEX,
    "finnhub":       Finnhub,
    "polygon":       Polygon,
    "polygonio":     Polygon,
    "mock":          Mock,
}

// ParseName normalizes case and common aliases. Unknown names return false.
func ParseName(s string) (Name, bool) {
    n, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
    return n, ok
}

// Configurable reports whether n may be selected as primary or fallback.
func (n Name) Configurable() bool {
    for _, k := range Known {
        if k == n { return true }
    }
    return false
}

func (n Name) String() string { return string(n) }

// DataSourceStatus tells callers where a value came from.
type DataSourceStatus string

const (
    StatusReal       DataSourceStatus = "real"
    StatusMock       DataSourceStatus = "mock"
    StatusStaleCache DataSourceStatus = "stale-cache"
)

// Quote is the normalized current price shape returned by all providers.
type Quote struct {
    Symbol        string           `json:"symbol"`
    Price         float64          `json:"price"`
    Change        float64          `json:"change"`
    ChangePercent float64          `json:"changePercent"`
    Currency      string           `json:"currency,omitempty"`
    Exchange      string           `json:"exchange,omitempty"`
    TimestampMs   int64            `json:"timestamp"`
    Provider      Name             `json:"provider"`
    IsMockData    bool             `json:"isMockData,omitempty"`
    Status        DataSourceStatus `json:"status"`
    Error         string           `json:"error,omitempty"`
}

// Bar is one OHLCV row of a historical series.
type Bar struct {
    Date   string  `json:"date"`
    Open   float64 `json:"open"`
    High   float64 `json:"high"`
    Low    float64 `json:"low"`
    Close  float64 `json:"close"`
    Volume int64   `json:"volume"`
}

// Series is a historical price series in the provider's natural order.
type Series struct {
    Symbol         string           `json:"symbol"`
    HistoricalData []Bar            `json:"historicalData"`
    Provider       Name             `json:"provider"`
    Status         DataSourceStatus `json:"status"`
}

// Adapter fetches current prices from one provider and normalizes them.
//
//go:generate mockgen -package=providermock -destination=providermock/mock_provider.go -source=provider.go Adapter,Historian,KeyStore
type Adapter interface {
    Name() Name
    // Available is false when the provider cannot be called at all,
    // typically because its API key is missing.
    Available() bool
    FetchCurrentPrice(ctx context.Context, symbol string) (Quote, error)
}

// Historian is implemented by adapters that serve historical series.
type Historian interface {
    FetchHistorical(ctx context.Context, symbol string, period Period, interval Interval) (Series, error)
}

// KeyStore hands out API keys by provider name.
type KeyStore interface {
    APIKey(name Name) (string, bool)
}

// StaticKeys is a KeyStore backed by a map. Empty values count as missing.
type StaticKeys map[Name]string

func (k StaticKeys) APIKey(name Name) (string, bool) {
    v := strings.TrimSpace(k[name])
    return v, v != ""
}

// Validate checks the invariants every adapter result must satisfy.
func (q Quote) Validate() error {
    if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
        return fmt.Errorf("non-finite price %v", q.Price)
    }
    if q.Price < 0 {
        return fmt.Errorf("negative price %v", q.Price)
    }
    return nil
}
