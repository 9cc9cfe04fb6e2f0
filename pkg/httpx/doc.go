// Package httpx is the transport layer of the storefront client: an
// intercepting http.RoundTripper plus a JSON client built on it.
//
// The Interceptor wraps every outgoing request. It attaches the bearer
// credential from the authstore unless the path classifier marks the target
// public (forced attachment is available via context for elevated calls to
// public endpoints), normalizes proxy-level redirects into a synthetic 401
// so downstream logic sees a single unauthorized shape, and recovers from
// exactly one 401 per request: the registered unauthorized handler is asked
// to renew the session and, on success, the request is replayed once with
// the fresh credential. Auth-endpoint 401s never trigger the handler, which
// is what terminates the recursion.
//
// The Client resolves paths against a configured base URL (collapsing the
// doubled /api prefix the backend variants produce), carries the refresh
// cookie in a jar, bounds every request with a timeout (a longer one for
// file-bearing requests) and maps failures into the package taxonomy:
// *NetworkError when no response was obtainable, *HTTPError for non-2xx
// responses. HTTP errors are data, not panics; only the 401 class is ever
// acted on by this layer.
package httpx
