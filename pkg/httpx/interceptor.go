package httpx

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/fittly/shopkit/pkg/authstore"
	"github.com/fittly/shopkit/pkg/logger"
	"github.com/fittly/shopkit/pkg/publicpath"
)

// UnauthorizedHandler decides what to do about a 401. Returning true means
// the session was renewed and the request may be retried once; false means
// the failure stands.
type UnauthorizedHandler func(ctx context.Context, path string) bool

// Interceptor is an http.RoundTripper wrapping every outgoing request:
// it attaches the bearer credential per the path classifier, normalizes
// boundary redirects into a uniform 401, and recovers from a single 401 by
// invoking the registered unauthorized handler and replaying the request at
// most once.
type Interceptor struct {
	base       http.RoundTripper
	store      *authstore.Store
	classifier *publicpath.Classifier
	log        *slog.Logger

	mu             sync.RWMutex
	onUnauthorized UnauthorizedHandler
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithBase replaces the underlying transport, http.DefaultTransport by default.
func WithBase(rt http.RoundTripper) InterceptorOption {
	return func(i *Interceptor) {
		if rt != nil {
			i.base = rt
		}
	}
}

// WithClassifier replaces the default path classifier.
func WithClassifier(c *publicpath.Classifier) InterceptorOption {
	return func(i *Interceptor) {
		if c != nil {
			i.classifier = c
		}
	}
}

func WithInterceptorLogger(log *slog.Logger) InterceptorOption {
	return func(i *Interceptor) {
		if log != nil {
			i.log = log
		}
	}
}

// NewInterceptor creates an interceptor reading credentials from the store.
func NewInterceptor(store *authstore.Store, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		base:       http.DefaultTransport,
		store:      store,
		classifier: publicpath.New(),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SetUnauthorizedHandler registers the single 401 handler. The session
// controller installs itself here.
func (i *Interceptor) SetUnauthorizedHandler(fn UnauthorizedHandler) {
	i.mu.Lock()
	i.onUnauthorized = fn
	i.mu.Unlock()
}

func (i *Interceptor) unauthorizedHandler() UnauthorizedHandler {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.onUnauthorized
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	path := req.URL.Path

	out := req.Clone(ctx)
	if out.Header.Get("X-Request-ID") == "" {
		out.Header.Set("X-Request-ID", uuid.NewString())
	}
	reqID := out.Header.Get("X-Request-ID")

	i.attach(ctx, out, path, forceAuth(ctx))

	resp, err := i.base.RoundTrip(out)
	if err != nil {
		i.log.DebugContext(ctx, "transport failure",
			logger.Path(path), logger.RequestID(reqID), logger.Error(err))
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}

	// A proxy in front of the API answers expired sessions with a redirect
	// to the login page. Normalizing it here keeps every downstream path on
	// the single 401 branch.
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		i.log.DebugContext(ctx, "redirect normalized to 401",
			logger.Path(path), logger.Status(resp.StatusCode), logger.RequestID(reqID))
		drain(resp)
		resp = synthesizeUnauthorized(out)
	}

	if resp.StatusCode != http.StatusUnauthorized ||
		i.classifier.IsAuthEndpoint(path) ||
		suppress401(ctx) {
		return resp, nil
	}

	handler := i.unauthorizedHandler()
	if handler == nil {
		return resp, nil
	}

	// A request whose body cannot be rewound cannot be replayed.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	if !handler(ctx, path) {
		return resp, nil
	}

	retry := req.Clone(ctx)
	retry.Header.Set("X-Request-ID", reqID)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}

	// The retried request force-attaches the now-current credential, and it
	// is final: a second 401 is returned as-is, never recursed on.
	i.attach(ctx, retry, path, true)
	drain(resp)

	i.log.InfoContext(ctx, "retrying after refresh",
		logger.Path(path), logger.RequestID(reqID))

	retried, err := i.base.RoundTrip(retry)
	if err != nil {
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}
	return retried, nil
}

// attach sets or strips the Authorization header per the classifier rules.
func (i *Interceptor) attach(ctx context.Context, req *http.Request, path string, force bool) {
	rec := i.store.Read(ctx)
	if rec.IsAnonymous() || (i.classifier.IsPublic(path) && !force) {
		req.Header.Del("Authorization")
		return
	}
	req.Header.Set("Authorization", "Bearer "+rec.Token)
}

func synthesizeUnauthorized(req *http.Request) *http.Response {
	body := []byte(`{"success":false,"code":"unauthorized_redirect","message":"Unauthorized"}`)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        "401 Unauthorized",
		StatusCode:    http.StatusUnauthorized,
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
	}
}
