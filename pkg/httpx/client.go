package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Config tunes the HTTP client. The upload bound applies to requests marked
// file-bearing, which are allowed to run longer than ordinary API calls.
type Config struct {
	BaseURL       string        `env:"SHOPKIT_API_BASE" envDefault:"http://localhost:8080/api"`
	Timeout       time.Duration `env:"SHOPKIT_HTTP_TIMEOUT" envDefault:"20s"`
	UploadTimeout time.Duration `env:"SHOPKIT_HTTP_UPLOAD_TIMEOUT" envDefault:"2m"`
}

// Client issues JSON requests through the interceptor. It carries a cookie
// jar (the refresh credential travels as an HTTP cookie), enforces a bounded
// wait per request, and turns non-2xx responses into *HTTPError values.
type Client struct {
	base          *url.URL
	http          *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
	log           *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a client over the given round tripper, normally an
// *Interceptor.
func NewClient(cfg Config, transport http.RoundTripper, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute: %w", cfg.BaseURL, ErrRelativeBaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base: base,
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
			// Redirect handling belongs to the interceptor, which
			// normalizes boundary redirects into a 401.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:       cfg.Timeout,
		uploadTimeout: cfg.UploadTimeout,
		log:           slog.Default(),
	}
	if c.timeout <= 0 {
		c.timeout = 20 * time.Second
	}
	if c.uploadTimeout < c.timeout {
		c.uploadTimeout = c.timeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ErrRelativeBaseURL indicates the configured base URL has no scheme or host.
var ErrRelativeBaseURL = errors.New("httpx.relative_base_url")

type request struct {
	query       url.Values
	forceAuth   bool
	suppress401 bool
	upload      bool
}

// RequestOption adjusts a single request.
type RequestOption func(*request)

// WithQuery adds query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(r *request) { r.query = q }
}

// ForceAuth attaches the credential even on a public path.
func ForceAuth() RequestOption {
	return func(r *request) { r.forceAuth = true }
}

// Suppress401 disables refresh-and-retry for this request.
func Suppress401() RequestOption {
	return func(r *request) { r.suppress401 = true }
}

// Upload marks the request file-bearing, granting it the longer timeout bound.
func Upload() RequestOption {
	return func(r *request) { r.upload = true }
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPatch, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodDelete, path, nil, out, opts...)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var r request
	for _, opt := range opts {
		opt(&r)
	}

	timeout := c.timeout
	if r.upload {
		timeout = c.uploadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if r.forceAuth {
		ctx = WithForceAuth(ctx)
	}
	if r.suppress401 {
		ctx = WithSuppress401(ctx)
	}

	target := c.resolve(path)
	if len(r.query) > 0 {
		target.RawQuery = r.query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			return netErr
		}
		return &NetworkError{URL: target.String(), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &NetworkError{URL: target.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp.StatusCode, payload)
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], payload...)
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// resolve joins the base URL with a request path, collapsing a doubled /api
// prefix: callers address endpoints both as "/auth/refresh" and
// "/api/auth/refresh" and the base URL usually ends in /api already.
func (c *Client) resolve(path string) *url.URL {
	p := "/" + strings.TrimLeft(path, "/")
	basePath := strings.TrimSuffix(c.base.Path, "/")
	if strings.HasSuffix(basePath, "/api") {
		if p == "/api" {
			p = "/"
		} else if strings.HasPrefix(p, "/api/") {
			p = strings.TrimPrefix(p, "/api")
		}
	}
	u := *c.base
	u.Path = basePath + p
	return &u
}
