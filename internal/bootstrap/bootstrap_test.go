package bootstrap

import (
    "io"
    "net/http"
    "strings"
    "testing"

    "github.com/stretchr/testify/require"
    "go.uber.org/mock/gomock"

    "marketdata/internal/batch"
    "marketdata/internal/config"
    "marketdata/internal/httpx/httpxmock"
    "marketdata/internal/market"
    "marketdata/internal/provider"
)

func TestAdapters_OnePerProvider(t *testing.T) {
    ads := Adapters(config.Default(), http.DefaultClient, provider.StaticKeys{provider.Finnhub: "k"})
    require.Len(t, ads, len(provider.Known))
    for i, a := range ads {
        require.Equal(t, provider.Known[i], a.Name())
    }
    require.True(t, ads[0].Available())
    require.False(t, ads[1].Available())
    require.True(t, ads[3].Available())
}

func TestNew_RejectsUnknownPrimary(t *testing.T) {
    cfg := config.Default()
    cfg.Providers.Primary = "bloomberg"
    _, err := New(cfg, nil, nil)
    require.True(t, market.IsConfigurationError(err))
}

func TestNew_EndToEndThroughConfiguredEndpoint(t *testing.T) {
    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().
        Do(gomock.Any()).
        DoAndReturn(func(req *http.Request) (*http.Response, error) {
            require.Equal(t, "yahoo.test", req.URL.Host)
            return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(
                `{"chart":{"result":[{"meta":{"currency":"USD","regularMarketPrice":175.5,"chartPreviousClose":175.5,"regularMarketTime":1}}],"error":null}}`,
            ))}, nil
        })

    cfg := config.Default()
    cfg.Providers.Yahoo.Endpoint = "https://yahoo.test"
    cfg.Providers.Fallbacks = nil
    cfg.Cache.CheckPeriodSec = 0
    app, err := New(cfg, nil, doer)
    require.NoError(t, err)
    t.Cleanup(app.Close)

    q, err := app.Market.GetCurrentPrice(t.Context(), "US0378331005", market.PriceOptions{})
    require.NoError(t, err)
    require.Equal(t, provider.Yahoo, q.Provider)
    require.InDelta(t, 175.5, q.Price, 0)

    res := app.Batch.Update(t.Context(), []batch.Security{{"isin": "US0378331005", "quantity": 2}}, batch.Options{})
    require.Equal(t, 1, res.MarketPricesAdded)
    require.InDelta(t, 351.0, res.Securities[0]["marketValue"], 1e-9)
}
