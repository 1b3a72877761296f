package symbol

import (
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "marketdata/internal/provider"
    "marketdata/internal/provider/cache"
)

func TestResolve_USIsinForSimplifiedProvider(t *testing.T) {
    r := New()
    defer r.Close()
    require.Equal(t, "037833100", r.Resolve("US0378331005", provider.IEX))
}

func TestResolve_OtherProvidersGetRawIsin(t *testing.T) {
    r := New()
    defer r.Close()
    for _, p := range []provider.Name{provider.Yahoo, provider.AlphaVantage, provider.Finnhub, provider.Polygon} {
        require.Equal(t, "US0378331005", r.Resolve("US0378331005", p))
    }
    // non-US ISINs are never shortened
    require.Equal(t, "DE0007164600", r.Resolve("DE0007164600", provider.IEX))
}

func TestResolve_MalformedInputIsReturnedUnchanged(t *testing.T) {
    r := New()
    defer r.Close()
    for _, in := range []string{"", "US", "US123", "US03783310051", "us0378331005"} {
        require.Equal(t, in, r.Resolve(in, provider.IEX))
    }
}

func TestResolve_CachesMappingIncludingFallback(t *testing.T) {
    store := cache.New[string](time.Hour, cache.WithCheckPeriod(0))
    r := New(WithCache(store), WithSimplified(provider.Polygon))

    require.Equal(t, "037833100", r.Resolve("US0378331005", provider.Polygon))
    require.Equal(t, "US0378331005", r.Resolve("US0378331005", provider.Yahoo))

    v, ok := store.Get(Key("US0378331005", provider.Polygon))
    require.True(t, ok)
    require.Equal(t, "037833100", v)
    v, ok = store.Get(Key("US0378331005", provider.Yahoo))
    require.True(t, ok)
    require.Equal(t, "US0378331005", v)

    // a cached mapping wins over the computed one
    store.Set(Key("US0378331005", provider.Yahoo), "AAPL")
    require.Equal(t, "AAPL", r.Resolve("US0378331005", provider.Yahoo))
}

func TestKey(t *testing.T) {
    require.Equal(t, "symbol_US0378331005_iex", Key("US0378331005", provider.IEX))
}
