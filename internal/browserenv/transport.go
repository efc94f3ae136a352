package browserenv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/infrastructure/resilience"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// ErrOffline is returned by OfflineTransport for every request.
var ErrOffline = errors.New("browserenv: network disabled")

// Request is what an XMLHttpRequest stand-in sends.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Response is what a Transport answers with.
type Response struct {
	Status     int
	StatusText string
	URL        string
	Headers    map[string]string
	Body       string
}

// Transport carries XMLHttpRequest traffic out of the runtime.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
}

// OfflineTransport fails every request, like a browser with no network.
type OfflineTransport struct{}

func (OfflineTransport) RoundTrip(context.Context, *Request) (*Response, error) {
	return nil, ErrOffline
}

// FixtureTransport answers from canned responses keyed by "METHOD URL" or
// by URL alone. Keys may also be origin-relative ("/api/x"), matching any
// absolute URL with that path and query. Unknown requests get a 404. A
// fixture without a content-type header gets one sniffed from its body.
type FixtureTransport map[string]Response

func (f FixtureTransport) RoundTrip(_ context.Context, req *Request) (*Response, error) {
	resp, ok := f.lookup(strings.ToUpper(req.Method), req.URL)
	if !ok {
		return &Response{Status: http.StatusNotFound, StatusText: http.StatusText(http.StatusNotFound), URL: req.URL}, nil
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	if resp.StatusText == "" {
		resp.StatusText = http.StatusText(resp.Status)
	}
	if resp.URL == "" {
		resp.URL = req.URL
	}
	resp.Headers = withContentType(resp.Headers, resp.Body)
	return &resp, nil
}

func (f FixtureTransport) lookup(method, raw string) (Response, bool) {
	keys := []string{method + " " + raw, raw}
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		if uri := u.RequestURI(); uri != raw {
			keys = append(keys, method+" "+uri, uri)
		}
		if u.RawQuery != "" {
			keys = append(keys, method+" "+u.EscapedPath(), u.EscapedPath())
		}
	}
	for _, key := range keys {
		if resp, ok := f[key]; ok {
			return resp, true
		}
	}
	return Response{}, false
}

func withContentType(headers map[string]string, body string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	if _, ok := out["content-type"]; !ok && body != "" {
		out["content-type"] = mimetype.Detect([]byte(body)).String()
	}
	return out
}

// HTTPConfig configures the live transport.
type HTTPConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64 // requests per second, 0 for unlimited
	UserAgent  string
	// Breakers guards each host; nil uses resilience.DefaultSettings.
	Breakers *resilience.Group
}

// DefaultHTTPConfig returns conservative settings for live traffic.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		RateLimit:  5,
	}
}

// HTTPTransport sends requests over the network through resty on top of a
// retrying transport, with a shared rate limit and cookie jar. A host that
// keeps failing or answering 5xx is cut off by its circuit breaker.
type HTTPTransport struct {
	client   *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
}

// errServer marks a 5xx answer as a failure for the breaker.
var errServer = errors.New("server error")

// NewHTTPTransport creates a live transport.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	// Scripts should see the final 5xx response, not a transport error.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetCookieJar(jar).
		SetTransport(retryClient.StandardClient().Transport)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	breakers := cfg.Breakers
	if breakers == nil {
		breakers = resilience.NewGroup(resilience.DefaultSettings())
	}

	return &HTTPTransport{client: client, limiter: limiter, breakers: breakers}, nil
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	r := t.client.R().SetContext(ctx).SetHeaders(req.Headers)
	if req.Body != "" {
		r.SetBody(req.Body)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var resp *resty.Response
	err := t.breakers.Do(hostOf(req.URL), func() error {
		var err error
		resp, err = r.Execute(method, req.URL)
		if err == nil && resp.StatusCode() >= http.StatusInternalServerError {
			return errServer
		}
		return err
	})
	if err != nil && !errors.Is(err, errServer) {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}

	headers := make(map[string]string, len(resp.Header()))
	for k, v := range resp.Header() {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return &Response{
		Status:     resp.StatusCode(),
		StatusText: http.StatusText(resp.StatusCode()),
		URL:        resp.Request.URL,
		Headers:    headers,
		Body:       resp.String(),
	}, nil
}

// Breakers exposes per-host breaker state.
func (t *HTTPTransport) Breakers() *resilience.Group {
	return t.breakers
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
