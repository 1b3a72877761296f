package alphavantage_test

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
    "marketdata/internal/provider/alphavantage"
)

const globalQuote = `{"Global Quote":{"01. symbol":"IBM","02. open":"130.0000","05. price":"131.2500",
"07. latest trading day":"2025-01-09","08. previous close":"129.6900","09. change":"1.5600","10. change percent":"1.2029%"}}`

const daily = `{"Meta Data":{"2. Symbol":"IBM"},"Time Series (Daily)":{
"2025-01-08":{"1. open":"10.0","2. high":"11.0","3. low":"9.0","4. close":"10.5","5. volume":"1000"},
"2024-12-01":{"1. open":"8.0","2. high":"8.5","3. low":"7.5","4. close":"8.2","5. volume":"900"},
"2025-01-09":{"1. open":"10.5","2. high":"12.0","3. low":"10.0","4. close":"11.5","5. volume":"1200"}}}`

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func respond(body string) *http.Response {
    return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}
}

func newAdapter(doer *httpxmock.MockDoer) *alphavantage.Adapter {
    return alphavantage.New(provider.StaticKeys{provider.AlphaVantage: "av-key"},
        alphavantage.WithBaseURL("https://av.test"),
        alphavantage.WithHTTPClient(doer),
        alphavantage.WithClock(func() time.Time { return now }))
}

func TestFetchCurrentPrice(t *testing.T) {
    t.Parallel()

    // Arrange
    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().
        Do(gomock.Any()).
        DoAndReturn(func(req *http.Request) (*http.Response, error) {
            require.Equal(t, "/query", req.URL.Path)
            require.Equal(t, "GLOBAL_QUOTE", req.URL.Query().Get("function"))
            require.Equal(t, "IBM", req.URL.Query().Get("symbol"))
            require.Equal(t, "av-key", req.URL.Query().Get("apikey"))
            return respond(globalQuote), nil
        }).
        Times(1)

    // Act
    q, err := newAdapter(doer).FetchCurrentPrice(t.Context(), "IBM")

    // Assert
    require.NoError(t, err)
    require.Equal(t, "IBM", q.Symbol)
    require.InDelta(t, 131.25, q.Price, 1e-9)
    require.InDelta(t, 1.56, q.Change, 1e-9)
    require.InDelta(t, 1.2029, q.ChangePercent, 1e-9)
    require.Equal(t, provider.AlphaVantage, q.Provider)
    require.Equal(t, provider.StatusReal, q.Status)
    day := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
    require.InDelta(t, day.UnixMilli(), q.TimestampMs, float64(6*time.Hour/time.Millisecond))
}

func TestFetchCurrentPrice_ProviderMessages(t *testing.T) {
    t.Parallel()

    cases := map[string]string{
        "empty quote":   `{"Global Quote":{}}`,
        "note":          `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`,
        "information":   `{"Information":"The **demo** API key is for demo purposes only."}`,
        "error message": `{"Error Message":"Invalid API call."}`,
    }
    for name, body := range cases {
        t.Run(name, func(t *testing.T) {
            t.Parallel()

            ctrl := gomock.NewController(t)
            doer := httpxmock.NewMockDoer(ctrl)
            doer.EXPECT().Do(gomock.Any()).Return(respond(body), nil)

            _, err := newAdapter(doer).FetchCurrentPrice(t.Context(), "IBM")
            var fe *provider.FetchError
            require.ErrorAs(t, err, &fe)
            require.Equal(t, provider.AlphaVantage, fe.Provider)
        })
    }
}

func TestFetchCurrentPrice_NoKey(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().Do(gomock.Any()).Times(0)

    a := alphavantage.New(provider.StaticKeys{}, alphavantage.WithHTTPClient(doer))
    require.False(t, a.Available())
    _, err := a.FetchCurrentPrice(t.Context(), "IBM")
    require.ErrorIs(t, err, provider.ErrUnavailable)
}

func TestFetchCurrentPrice_KeyNotInError(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().Do(gomock.Any()).Return(&http.Response{
        StatusCode: http.StatusInternalServerError,
        Body:       io.NopCloser(strings.NewReader("oops")),
    }, nil)

    _, err := newAdapter(doer).FetchCurrentPrice(t.Context(), "IBM")
    require.Error(t, err)
    require.NotContains(t, err.Error(), "av-key")
}

func TestFetchHistorical_DailyNewestFirstWithinPeriod(t *testing.T) {
    t.Parallel()

    // Arrange
    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().
        Do(gomock.Any()).
        DoAndReturn(func(req *http.Request) (*http.Response, error) {
            require.Equal(t, "TIME_SERIES_DAILY", req.URL.Query().Get("function"))
            require.Empty(t, req.URL.Query().Get("outputsize"))
            return respond(daily), nil
        })

    // Act
    s, err := newAdapter(doer).FetchHistorical(t.Context(), "IBM", provider.Period1M, provider.Interval1D)

    // Assert: the December bar is outside the one-month window
    require.NoError(t, err)
    require.Equal(t, provider.AlphaVantage, s.Provider)
    require.Equal(t, []provider.Bar{
        {Date: "2025-01-09", Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 1200},
        {Date: "2025-01-08", Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
    }, s.HistoricalData)
}

func TestFetchHistorical_FullOutputForLongPeriods(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().
        Do(gomock.Any()).
        DoAndReturn(func(req *http.Request) (*http.Response, error) {
            require.Equal(t, "full", req.URL.Query().Get("outputsize"))
            return respond(daily), nil
        })

    s, err := newAdapter(doer).FetchHistorical(t.Context(), "IBM", provider.Period1Y, provider.Interval1D)
    require.NoError(t, err)
    require.Len(t, s.HistoricalData, 3)
    require.Equal(t, "2024-12-01", s.HistoricalData[2].Date)
}

func TestFetchHistorical_Intraday(t *testing.T) {
    t.Parallel()

    body := `{"Time Series (60min)":{
"2025-01-09 16:00:00":{"1. open":"1","2. high":"1","3. low":"1","4. close":"1.5","5. volume":"10"},
"2025-01-09 15:00:00":{"1. open":"1","2. high":"1","3. low":"1","4. close":"1.4","5. volume":"10"}}}`
    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().
        Do(gomock.Any()).
        DoAndReturn(func(req *http.Request) (*http.Response, error) {
            require.Equal(t, "TIME_SERIES_INTRADAY", req.URL.Query().Get("function"))
            require.Equal(t, "60min", req.URL.Query().Get("interval"))
            return respond(body), nil
        })

    s, err := newAdapter(doer).FetchHistorical(t.Context(), "IBM", provider.Period1W, provider.Interval1H)
    require.NoError(t, err)
    require.Len(t, s.HistoricalData, 2)
    // 16:00 New York in January is 21:00 UTC
    require.Equal(t, "2025-01-09T21:00:00Z", s.HistoricalData[0].Date)
    require.InDelta(t, 1.5, s.HistoricalData[0].Close, 1e-9)
}

func TestFetchHistorical_Throttled(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().Do(gomock.Any()).Return(respond(`{"Note":"call frequency exceeded"}`), nil)

    _, err := newAdapter(doer).FetchHistorical(t.Context(), "IBM", provider.Period1Y, provider.Interval1Wk)
    require.ErrorContains(t, err, "throttled")
}

func TestFetchHistorical_MissingSeries(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    doer := httpxmock.NewMockDoer(ctrl)
    doer.EXPECT().Do(gomock.Any()).Return(respond(`{"Meta Data":{}}`), nil)

    _, err := newAdapter(doer).FetchHistorical(t.Context(), "IBM", provider.Period1Y, provider.Interval1Mo)
    require.ErrorIs(t, err, provider.ErrNoData)
}
