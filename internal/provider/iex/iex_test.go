package iex_test

import (
    "io"
    "net/http"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/require"
    "go.uber.org/mock/gomock"

    "marketdata/internal/httpx/httpxmock"
    "marketdata/internal/provider"
    "marketdata/internal/provider/iex"
)

func respond(code int, body string) *http.Response {
    return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body))}
}

func TestFetchCurrentPrice(t *testing.T) {
    t.Parallel()

    // Arrange
    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().
        Do(gomock.Any()).
        DoAndReturn(func(req *http.Request) (*http.Response, error) {
            require.Equal(t, "/stable/stock/037833100/quote", req.URL.Path)
            require.Equal(t, "iex-key", req.URL.Query().Get("token"))
            return respond(http.StatusOK, `{"symbol":"AAPL","latestPrice":175.5,"change":2.5,
"changePercent":0.01445,"currency":"usd","primaryExchange":"NASDAQ","latestUpdate":1736400000000}`), nil
        }).
        Times(1)
    a := iex.New(provider.StaticKeys{provider.IEX: "iex-key"}, iex.WithBaseURL("https://iex.test"), iex.WithHTTPClient(doer))

    // Act
    q, err := a.FetchCurrentPrice(t.Context(), "037833100")

    // Assert
    require.NoError(t, err)
    require.Equal(t, "AAPL", q.Symbol)
    require.InDelta(t, 175.5, q.Price, 1e-9)
    require.InDelta(t, 2.5, q.Change, 1e-9)
    require.InDelta(t, 1.445, q.ChangePercent, 1e-9)
    require.Equal(t, "USD", q.Currency)
    require.Equal(t, "NASDAQ", q.Exchange)
    require.Equal(t, int64(1736400000000), q.TimestampMs)
    require.Equal(t, provider.IEX, q.Provider)
}

func TestFetchCurrentPrice_NullPriceIsNoData(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().Do(gomock.Any()).Return(respond(http.StatusOK, `{"symbol":"AAPL","latestPrice":null}`), nil)
    now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
    a := iex.New(provider.StaticKeys{provider.IEX: "k"}, iex.WithHTTPClient(doer), iex.WithClock(func() time.Time { return now }))

    _, err := a.FetchCurrentPrice(t.Context(), "AAPL")
    require.ErrorIs(t, err, provider.ErrNoData)
}

func TestFetchCurrentPrice_UnknownSymbol(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().Do(gomock.Any()).Return(respond(http.StatusNotFound, "Unknown symbol"), nil)
    a := iex.New(provider.StaticKeys{provider.IEX: "secret"}, iex.WithHTTPClient(doer))

    _, err := a.FetchCurrentPrice(t.Context(), "ZZZZ")
    require.ErrorContains(t, err, "Unknown symbol")
    require.NotContains(t, err.Error(), "secret")
}

func TestAvailable(t *testing.T) {
    require.False(t, iex.New(nil).Available())
    require.False(t, iex.New(provider.StaticKeys{}).Available())
    require.True(t, iex.New(provider.StaticKeys{provider.IEX: "k"}).Available())

    // no Historian implementation
    var a provider.Adapter = iex.New(nil)
    _, ok := a.(provider.Historian)
    require.False(t, ok)
}
