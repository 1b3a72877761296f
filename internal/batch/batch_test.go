package batch

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "math"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "marketdata/internal/market"
    "marketdata/internal/provider"
)

type fakePricer struct {
    mu     sync.Mutex
    calls  []string
    opts   []market.PriceOptions
    fail   map[string]bool
    block  chan struct{}
    active atomic.Int32
    peak   atomic.Int32
}

func (f *fakePricer) GetCurrentPrice(ctx context.Context, isin string, opts market.PriceOptions) (provider.Quote, error) {
    n := f.active.Add(1)
    defer f.active.Add(-1)
    for {
        p := f.peak.Load()
        if n <= p || f.peak.CompareAndSwap(p, n) { break }
    }
    f.mu.Lock()
    f.calls = append(f.calls, isin)
    f.opts = append(f.opts, opts)
    f.mu.Unlock()
    if f.block != nil { <-f.block }
    if f.fail[isin] { return provider.Quote{}, errors.New("lookup failed") }
    return provider.Quote{Symbol: isin, Price: 175.50, Change: 2, ChangePercent: 1.2, Provider: provider.Yahoo, Status: provider.StatusReal}, nil
}

var fixed = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newUpdater(p Pricer, opts ...Option) *Updater {
    base := []Option{WithDelay(0), WithClock(func() time.Time { return fixed })}
    return New(p, append(base, opts...)...)
}

func TestUpdate_MarketValue(t *testing.T) {
    in := []Security{{"isin": "US0378331005", "quantity": 100}}
    res := newUpdater(&fakePricer{}).Update(t.Context(), in, Options{})

    require.Equal(t, 1, res.MarketPricesAdded)
    got := res.Securities[0]
    require.InDelta(t, 17550.0, got["marketValue"], 0)
    require.InDelta(t, 175.50, got["marketPrice"], 0)
    require.InDelta(t, 2.0, got["priceChange"], 0)
    require.InDelta(t, 1.2, got["priceChangePercent"], 0)
    require.Equal(t, "2025-01-02T03:04:05Z", got["lastUpdated"])
    require.Equal(t, "yahoo", got["dataProvider"])
    require.Equal(t, 100, got["quantity"])

    // the caller's map is untouched
    require.NotContains(t, in[0], "marketPrice")
}

func TestUpdate_PartialFailureIsolation(t *testing.T) {
    // Arrange: ten securities, the fifth lookup fails
    in := make([]Security, 10)
    for i := range in {
        in[i] = Security{"isin": fmt.Sprintf("US00000000%02d", i+1), "quantity": 1.5}
    }
    p := &fakePricer{fail: map[string]bool{"US0000000005": true}}

    // Act
    res := newUpdater(p).Update(t.Context(), in, Options{})

    // Assert
    require.Equal(t, 9, res.MarketPricesAdded)
    require.Len(t, res.Securities, 10)
    for i, s := range res.Securities {
        require.Equal(t, in[i]["isin"], s["isin"], "order preserved")
        if i == 4 {
            require.Equal(t, in[i], s)
            require.NotContains(t, s, "marketPrice")
            continue
        }
        require.InDelta(t, 263.25, s["marketValue"], 1e-9)
    }
}

func TestUpdate_NonFiniteQuantity(t *testing.T) {
    in := []Security{
        {"isin": "US0378331005", "quantity": math.Inf(1)},
        {"isin": "US5949181045", "quantity": math.NaN()},
        {"isin": "US0231351067", "quantity": 2},
    }
    res := newUpdater(&fakePricer{}).Update(t.Context(), in, Options{})

    require.Equal(t, 3, res.MarketPricesAdded)
    require.Nil(t, res.Securities[0]["marketValue"])
    require.Nil(t, res.Securities[1]["marketValue"])
    require.InDelta(t, 351.0, res.Securities[2]["marketValue"], 1e-9)
    require.InDelta(t, 175.50, res.Securities[0]["marketPrice"], 0)
}

func TestUpdate_PassThroughWithoutISIN(t *testing.T) {
    in := []Security{
        {"name": "cash", "quantity": 1000},
        {"isin": "", "quantity": 1},
        {"isin": "US0378331005"},
    }
    p := &fakePricer{}
    res := newUpdater(p).Update(t.Context(), in, Options{Provider: "finnhub", ForceRefresh: true})

    require.Equal(t, 1, res.MarketPricesAdded)
    require.Equal(t, in[0], res.Securities[0])
    require.Equal(t, in[1], res.Securities[1])
    require.Contains(t, res.Securities[2], "marketValue")
    require.Nil(t, res.Securities[2]["marketValue"])
    require.Equal(t, []string{"US0378331005"}, p.calls)
    require.Equal(t, market.PriceOptions{Provider: "finnhub", ForceRefresh: true}, p.opts[0])
}

func TestUpdate_ChunksRunConcurrentlyButBounded(t *testing.T) {
    in := make([]Security, 25)
    for i := range in { in[i] = Security{"isin": fmt.Sprintf("ISIN%02d", i)} }
    p := &fakePricer{}

    res := newUpdater(p, WithChunkSize(10)).Update(t.Context(), in, Options{})
    require.Equal(t, 25, res.MarketPricesAdded)
    require.LessOrEqual(t, p.peak.Load(), int32(10))
    require.Len(t, p.calls, 25)
}

func TestUpdate_CancelledBetweenChunks(t *testing.T) {
    in := make([]Security, 4)
    for i := range in { in[i] = Security{"isin": fmt.Sprintf("ISIN%d", i)} }
    ctx, cancel := context.WithCancel(t.Context())
    p := &fakePricer{}

    u := New(p, WithChunkSize(2), WithDelay(time.Hour))
    done := make(chan Result, 1)
    go func() { done <- u.Update(ctx, in, Options{}) }()

    require.Eventually(t, func() bool {
        p.mu.Lock()
        defer p.mu.Unlock()
        return len(p.calls) == 2
    }, time.Second, 5*time.Millisecond)
    cancel()

    res := <-done
    require.Equal(t, 2, res.MarketPricesAdded)
    require.Equal(t, in[2], res.Securities[2])
    require.Equal(t, in[3], res.Securities[3])
}

func TestQuantityOf(t *testing.T) {
    cases := []struct {
        in   any
        want string
        ok   bool
    }{
        {100, "100", true},
        {int64(3), "3", true},
        {1.25, "1.25", true},
        {json.Number("7.5"), "7.5", true},
        {" 2 ", "2", true},
        {"abc", "", false},
        {nil, "", false},
        {math.Inf(1), "", false},
        {math.Inf(-1), "", false},
        {math.NaN(), "", false},
        {float32(math.Inf(1)), "", false},
    }
    for _, c := range cases {
        d, ok := quantityOf(Security{"quantity": c.in})
        require.Equal(t, c.ok, ok, "%v", c.in)
        if ok { require.Equal(t, c.want, d.String()) }
    }
}
