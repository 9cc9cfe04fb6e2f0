package httpx

import "context"

type ctxKey int

const (
	forceAuthKey ctxKey = iota
	suppress401Key
)

// WithForceAuth marks the request for credential attachment even on a public
// path. Used when a page calls a nominally public endpoint with elevated
// context.
func WithForceAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceAuthKey, true)
}

func forceAuth(ctx context.Context) bool {
	v, _ := ctx.Value(forceAuthKey).(bool)
	return v
}

// WithSuppress401 disables the refresh-and-retry handling for this request.
// The bootstrap validation call uses it so a stale credential does not get
// double-handled.
func WithSuppress401(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppress401Key, true)
}

func suppress401(ctx context.Context) bool {
	v, _ := ctx.Value(suppress401Key).(bool)
	return v
}
