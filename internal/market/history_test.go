package market_test

import (
    "testing"

    "github.com/stretchr/testify/require"
    "go.uber.org/mock/gomock"

    "marketdata/internal/market"
    "marketdata/internal/provider"
    "marketdata/internal/provider/ratelimit"
)

func series(p provider.Name) provider.Series {
    return provider.Series{
        Symbol:         "AAPL",
        HistoricalData: []provider.Bar{{Date: "2025-01-02", Close: 1}, {Date: "2025-01-03", Close: 2}},
        Provider:       p,
    }
}

func TestGetHistoricalPrices_DefaultsAndCache(t *testing.T) {
    t.Parallel()

    // Arrange
    ctrl := gomock.NewController(t)
    yahoo := newHistoryAdapter(ctrl, provider.Yahoo)
    yahoo.h.EXPECT().
        FetchHistorical(gomock.Any(), apple, provider.Period1Y, provider.Interval1D).
        Return(series(provider.Yahoo), nil).
        Times(1)
    agg := newAggregator(t, []provider.Adapter{yahoo})

    // Act
    first, err := agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{})
    require.NoError(t, err)
    second, err := agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{})
    require.NoError(t, err)

    // Assert
    require.Equal(t, provider.StatusReal, first.Status)
    require.Equal(t, provider.Yahoo, first.Provider)
    require.Equal(t, provider.StatusStaleCache, second.Status)
    require.Equal(t, first.HistoricalData, second.HistoricalData)

    // callers cannot corrupt the cached series
    second.HistoricalData[0].Close = 99
    third, err := agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{})
    require.NoError(t, err)
    require.InDelta(t, 1, third.HistoricalData[0].Close, 0)
}

func TestGetHistoricalPrices_SkipsAdaptersWithoutHistory(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    iex := newAdapter(ctrl, provider.IEX)
    finnhub := newHistoryAdapter(ctrl, provider.Finnhub)
    finnhub.h.EXPECT().
        FetchHistorical(gomock.Any(), apple, provider.Period3M, provider.Interval1Wk).
        Return(series(provider.Finnhub), nil)
    limiter := ratelimit.New(nil)
    agg := newAggregator(t, []provider.Adapter{iex, finnhub},
        market.WithConfig(market.Config{PrimaryProvider: provider.IEX, FallbackProviders: []provider.Name{provider.Finnhub}}),
        market.WithLimiter(limiter),
    )

    s, err := agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{Period: provider.Period3M, Interval: provider.Interval1Wk})
    require.NoError(t, err)
    require.Equal(t, provider.Finnhub, s.Provider)
    require.Equal(t, 0, limiter.Snapshot()[provider.IEX].Count)
}

func TestGetHistoricalPrices_Exhausted(t *testing.T) {
    t.Parallel()

    // Arrange: one failure, one empty series, one unregistered provider
    ctrl := gomock.NewController(t)
    yahoo := newHistoryAdapter(ctrl, provider.Yahoo)
    polygon := newHistoryAdapter(ctrl, provider.Polygon)
    yahoo.h.EXPECT().FetchHistorical(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(provider.Series{}, boom).Times(2)
    polygon.h.EXPECT().FetchHistorical(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(provider.Series{Provider: provider.Polygon}, nil).Times(2)
    agg := newAggregator(t, []provider.Adapter{yahoo, polygon},
        market.WithConfig(market.Config{PrimaryProvider: provider.Yahoo, FallbackProviders: []provider.Name{provider.Finnhub, provider.Polygon}}),
    )

    // Act
    _, err := agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{})

    // Assert
    require.ErrorIs(t, err, market.ErrAllProvidersExhausted)
    require.ErrorIs(t, err, boom)
    require.ErrorIs(t, err, provider.ErrNoData)
    require.ErrorIs(t, err, provider.ErrUnavailable)
    var ee *market.ExhaustedError
    require.ErrorAs(t, err, &ee)
    require.Equal(t, apple, ee.ISIN)
    require.Len(t, ee.Errs, 3)
    require.Contains(t, err.Error(), apple)

    // failures are not cached
    _, err = agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{})
    require.ErrorIs(t, err, market.ErrAllProvidersExhausted)
}

func TestGetHistoricalPrices_InvalidOptions(t *testing.T) {
    t.Parallel()

    agg := newAggregator(t, nil)

    _, err := agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{Period: "2y"})
    var ce *market.ConfigurationError
    require.ErrorAs(t, err, &ce)
    require.Equal(t, "period", ce.Field)

    _, err = agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{Interval: "2h"})
    require.ErrorAs(t, err, &ce)
    require.Equal(t, "interval", ce.Field)

    _, err = agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{Provider: "nope"})
    require.ErrorAs(t, err, &ce)
    require.Equal(t, "provider", ce.Field)
}

func TestGetHistoricalPrices_ExplicitProviderSkipsCache(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    yahoo := newHistoryAdapter(ctrl, provider.Yahoo)
    polygon := newHistoryAdapter(ctrl, provider.Polygon)
    yahoo.h.EXPECT().FetchHistorical(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(series(provider.Yahoo), nil)
    polygon.h.EXPECT().FetchHistorical(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(series(provider.Polygon), nil)
    agg := newAggregator(t, []provider.Adapter{yahoo, polygon})

    _, err := agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{})
    require.NoError(t, err)
    s, err := agg.GetHistoricalPrices(t.Context(), apple, market.HistoryOptions{Provider: "polygon"})
    require.NoError(t, err)
    require.Equal(t, provider.Polygon, s.Provider)
    require.Equal(t, provider.StatusReal, s.Status)
}
