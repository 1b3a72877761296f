// Package batch enriches portfolio securities with current market prices.
package batch

import (
    "context"
    "encoding/json"
    "fmt"
    "maps"
    "math"
    "strings"
    "time"

    "github.com/shopspring/decimal"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "marketdata/internal/market"
    "marketdata/internal/metrics"
    "marketdata/internal/provider"
)

const (
    DefaultChunkSize = 10
    DefaultDelay     = time.Second
)

// Security is an opaque record. Only "isin" and "quantity" are read.
type Security = map[string]any

// Pricer is satisfied by *market.Aggregator.
type Pricer interface {
    GetCurrentPrice(ctx context.Context, isin string, opts market.PriceOptions) (provider.Quote, error)
}

// Options are forwarded to every price lookup.
type Options struct {
    Provider     string `json:"provider,omitempty"`
    ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

type Result struct {
    Securities        []Security `json:"securities"`
    MarketPricesAdded int        `json:"marketPricesAdded"`
}

type Updater struct {
    pricer    Pricer
    chunkSize int
    delay     time.Duration
    log       *zap.Logger
    metrics   *metrics.Metrics
    now       func() time.Time
}

type Option func(*Updater)

// WithChunkSize sets how many lookups run concurrently.
func WithChunkSize(n int) Option { return func(u *Updater) { if n > 0 { u.chunkSize = n } } }

// WithDelay sets the pause between chunks. Zero disables it.
func WithDelay(d time.Duration) Option { return func(u *Updater) { if d >= 0 { u.delay = d } } }

func WithLogger(l *zap.Logger) Option { return func(u *Updater) { u.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(u *Updater) { u.metrics = m } }

// WithClock sets the source of lastUpdated.
func WithClock(now func() time.Time) Option { return func(u *Updater) { u.now = now } }

func New(p Pricer, opts ...Option) *Updater {
    u := &Updater{pricer: p, chunkSize: DefaultChunkSize, delay: DefaultDelay, log: zap.NewNop(), now: time.Now}
    for _, o := range opts { o(u) }
    return u
}

// Update looks up every security with an ISIN, chunk by chunk. Output order
// matches the input; the input slice and its maps are never modified.
// Securities whose lookup fails, or that are not reached before ctx ends,
// are returned unchanged.
func (u *Updater) Update(ctx context.Context, securities []Security, opts Options) Result {
    out := make([]Security, len(securities))
    copy(out, securities)
    added := make([]bool, len(securities))

    for start := 0; start < len(securities); start += u.chunkSize {
        if start > 0 && !u.wait(ctx) {
            u.log.Warn("batch update interrupted", zap.Int("processed", start), zap.Int("total", len(securities)), zap.Error(ctx.Err()))
            break
        }
        end := min(start+u.chunkSize, len(securities))

        var g errgroup.Group
        for i := start; i < end; i++ {
            isin := isinOf(securities[i])
            if isin == "" { continue }
            g.Go(func() error {
                q, err := u.pricer.GetCurrentPrice(ctx, isin, market.PriceOptions{Provider: opts.Provider, ForceRefresh: opts.ForceRefresh})
                if err != nil {
                    u.log.Warn("price lookup failed", zap.String("isin", isin), zap.Error(err))
                    return nil
                }
                out[i] = u.enrich(securities[i], q)
                added[i] = true
                return nil
            })
        }
        _ = g.Wait()
    }

    n := 0
    for _, ok := range added {
        if ok { n++ }
    }
    u.metrics.Enriched(n)
    u.log.Info("batch update finished", zap.Int("securities", len(securities)), zap.Int("marketPricesAdded", n))
    return Result{Securities: out, MarketPricesAdded: n}
}

func (u *Updater) wait(ctx context.Context) bool {
    if ctx.Err() != nil { return false }
    if u.delay <= 0 { return true }
    t := time.NewTimer(u.delay)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (u *Updater) enrich(sec Security, q provider.Quote) Security {
    out := maps.Clone(sec)
    out["marketPrice"] = q.Price
    out["marketValue"] = nil
    if qty, ok := quantityOf(sec); ok && !math.IsNaN(q.Price) && !math.IsInf(q.Price, 0) {
        out["marketValue"] = qty.Mul(decimal.NewFromFloat(q.Price)).InexactFloat64()
    }
    out["priceChange"] = q.Change
    out["priceChangePercent"] = q.ChangePercent
    out["lastUpdated"] = u.now().UTC().Format(time.RFC3339)
    out["dataProvider"] = string(q.Provider)
    return out
}

func isinOf(sec Security) string {
    s, _ := sec["isin"].(string)
    return strings.TrimSpace(s)
}

// quantityOf accepts the numeric shapes a decoded JSON document or Go caller may use.
func quantityOf(sec Security) (decimal.Decimal, bool) {
    switch v := sec["quantity"].(type) {
    case float64:
        if math.IsNaN(v) || math.IsInf(v, 0) { return decimal.Decimal{}, false }
        return decimal.NewFromFloat(v), true
    case float32:
        if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) { return decimal.Decimal{}, false }
        return decimal.NewFromFloat32(v), true
    case int:
        return decimal.NewFromInt(int64(v)), true
    case int64:
        return decimal.NewFromInt(v), true
    case json.Number:
        d, err := decimal.NewFromString(v.String())
        return d, err == nil
    case string:
        d, err := decimal.NewFromString(strings.TrimSpace(v))
        return d, err == nil
    case decimal.Decimal:
        return v, true
    case nil:
        return decimal.Decimal{}, false
    default:
        d, err := decimal.NewFromString(fmt.Sprint(v))
        return d, err == nil
    }
}
