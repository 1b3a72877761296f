package httpx

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net"
    "net/http"
    "net/url"
    "time"
)

// DefaultTimeout bounds every provider call when the config leaves it unset.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a provider response is read.
const maxBody = 8 << 20

// Doer sends one HTTP request. *http.Client and *Client satisfy it.
//
//go:generate mockgen -package=httpxmock -destination=httpxmock/mock_doer.go -source=httpx.go Doer
type Doer interface {
    Do(req *http.Request) (*http.Response, error)
}

// Client is a small wrapper around http.Client with sane defaults.
type Client struct {
    HTTP      *http.Client
    UserAgent string
    Headers   map[string]string
}

func New(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = DefaultTimeout }
    transport := &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          200,
        MaxIdleConnsPerHost:   100,
        MaxConnsPerHost:       100,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       90 * time.Second,
        TLSHandshakeTimeout:   3 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: 5 * time.Second,
    }
    return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: "marketdata/1.0"}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
    if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
        req.Header.Set("User-Agent", c.UserAgent)
    }
    for k, v := range c.Headers {
        if req.Header.Get(k) == "" {
            req.Header.Set(k, v)
        }
    }
    return c.HTTP.Do(req)
}

// StatusError reports a non-2xx answer.
type StatusError struct {
    Method string
    URL    string
    Code   int
    Body   string
}

func (e *StatusError) Error() string {
    if e.Body == "" {
        return fmt.Sprintf("%s %s -> %d", e.Method, e.URL, e.Code)
    }
    return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// GetJSON performs a GET and decodes the JSON body into v. Non-2xx statuses
// return a *StatusError carrying the first bytes of the body. redact is
// shown instead of the full URL in errors so API keys do not leak into logs.
func GetJSON(ctx context.Context, d Doer, rawURL, redact string, header http.Header, v any) error {
    if redact == "" { redact = rawURL }
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
    if err != nil { return fmt.Errorf("creating request: %w", redactErr(err, redact)) }
    for k, vs := range header {
        for _, s := range vs { req.Header.Add(k, s) }
    }
    if req.Header.Get("Accept") == "" { req.Header.Set("Accept", "application/json") }

    resp, err := d.Do(req)
    if err != nil { return fmt.Errorf("performing request: %w", redactErr(err, redact)) }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
        return &StatusError{Method: http.MethodGet, URL: redact, Code: resp.StatusCode, Body: string(b)}
    }
    dec := json.NewDecoder(io.LimitReader(resp.Body, maxBody))
    dec.UseNumber()
    if err := dec.Decode(v); err != nil {
        return fmt.Errorf("decode: %w", err)
    }
    return nil
}

// redactErr swaps the URL carried by a *url.Error for redact. The cause stays
// reachable through errors.Is and errors.As.
func redactErr(err error, redact string) error {
    var ue *url.Error
    if !errors.As(err, &ue) { return err }
    return &url.Error{Op: ue.Op, URL: redact, Err: ue.Err}
}
