package refresh

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/fittly/shopkit/pkg/authstore"
	"github.com/fittly/shopkit/pkg/httpx"
	"github.com/fittly/shopkit/pkg/logger"
)

// Config tunes the coordinator. The backend has exposed several equivalent
// refresh paths over time; candidates are tried in order and the first one
// returning a usable credential wins.
type Config struct {
	Candidates []string `env:"SHOPKIT_REFRESH_ENDPOINTS" envSeparator:"," envDefault:"/auth/refresh,/api/auth/refresh,/auth/user/refresh,/api/auth/user/refresh"`
}

// Coordinator renews the session credential with single-flight discipline:
// no matter how many requests observe an expired credential concurrently,
// exactly one renewal call sequence runs, and every caller shares its
// outcome. The singleflight key is forgotten before results are delivered,
// so a new genuine need starts a fresh attempt immediately.
type Coordinator struct {
	client     *httpx.Client
	store      *authstore.Store
	candidates []string
	group      singleflight.Group
	log        *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCandidates replaces the refresh endpoint variants.
func WithCandidates(paths ...string) Option {
	return func(c *Coordinator) {
		if len(paths) > 0 {
			c.candidates = paths
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a Coordinator over the given client and store.
func New(client *httpx.Client, store *authstore.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		client: client,
		store:  store,
		candidates: []string{
			"/auth/refresh",
			"/api/auth/refresh",
			"/auth/user/refresh",
			"/api/auth/user/refresh",
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh renews the credential, joining an in-flight attempt when one
// exists. It reports whether the session is usable afterwards; "no renewal
// possible" is a false result, never an error.
func (c *Coordinator) Refresh(ctx context.Context) bool {
	v, _, _ := c.group.Do("refresh", func() (any, error) {
		// The attempt is shared by every joined waiter, so it must not die
		// with the first caller's request context. Each candidate call still
		// runs under the client's own per-request timeout.
		return c.tryCandidates(context.WithoutCancel(ctx)), nil
	})
	ok, _ := v.(bool)
	return ok
}

// Do is the error-shaped variant of Refresh for callers composing with
// error flows.
func (c *Coordinator) Do(ctx context.Context) error {
	if !c.Refresh(ctx) {
		return ErrRefreshFailed
	}
	return nil
}

func (c *Coordinator) tryCandidates(ctx context.Context) bool {
	prev := c.store.Read(ctx)

	for _, path := range c.candidates {
		var raw json.RawMessage
		if err := c.client.Post(ctx, path, nil, &raw); err != nil {
			c.log.DebugContext(ctx, "refresh candidate failed",
				logger.Path(path), logger.Error(err))
			continue
		}

		token, role, loginID := httpx.TokenFromEnvelope(raw)
		if token == "" {
			continue
		}

		// A logout that landed while the renewal was in flight wins:
		// persisting the fresh credential now would resurrect a session the
		// user ended.
		if c.store.Read(ctx).IsAnonymous() {
			c.log.InfoContext(ctx, "renewal discarded, session was cleared mid-flight")
			return false
		}

		// The renewal response may omit role and loginId; the prior
		// record's values carry over.
		next := authstore.Record{
			Token:   token,
			Role:    prev.Role,
			LoginID: prev.LoginID,
		}
		if role != "" {
			next.Role = authstore.Role(role)
		}
		if loginID != "" {
			next.LoginID = loginID
		}

		if err := c.store.Update(ctx, next); err != nil {
			c.log.ErrorContext(ctx, "failed to persist renewed credential", logger.Error(err))
			return false
		}

		c.log.InfoContext(ctx, "session renewed", logger.Path(path), logger.LoginID(next.LoginID))
		return true
	}

	c.log.WarnContext(ctx, "all refresh candidates exhausted")
	return false
}
