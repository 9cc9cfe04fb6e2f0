package shopkit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fittly/shopkit/pkg/authstore"
	"github.com/fittly/shopkit/pkg/cart"
	"github.com/fittly/shopkit/pkg/config"
	"github.com/fittly/shopkit/pkg/httpx"
	"github.com/fittly/shopkit/pkg/refresh"
	"github.com/fittly/shopkit/pkg/session"
	"github.com/fittly/shopkit/pkg/wishlist"
)

// App bundles the storefront client stack, wired in dependency order: the
// auth store feeds the transport interceptor, the session controller owns
// 401 handling through the refresh coordinator, and the collection
// controllers ride on the shared client.
type App struct {
	Store    *authstore.Store
	Client   *httpx.Client
	Session  *session.Controller
	Cart     *cart.Controller
	Wishlist *wishlist.Controller
}

type options struct {
	log     *slog.Logger
	httpCfg *httpx.Config
	authCfg *authstore.Config
}

// Option configures App construction.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithHTTPConfig bypasses environment loading for the HTTP client.
func WithHTTPConfig(cfg httpx.Config) Option {
	return func(o *options) { o.httpCfg = &cfg }
}

// WithAuthConfig bypasses environment loading for the auth store.
func WithAuthConfig(cfg authstore.Config) Option {
	return func(o *options) { o.authCfg = &cfg }
}

// New builds the full client stack. Configuration comes from SHOPKIT_*
// environment variables unless overridden by options.
func New(ctx context.Context, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = slog.Default()
	}

	httpCfg, err := loadUnless(o.httpCfg)
	if err != nil {
		return nil, err
	}
	authCfg, err := loadUnless(o.authCfg)
	if err != nil {
		return nil, err
	}
	var refreshCfg refresh.Config
	if err := config.Load(&refreshCfg); err != nil {
		return nil, err
	}
	var sessionCfg session.Config
	if err := config.Load(&sessionCfg); err != nil {
		return nil, err
	}
	var cartCfg cart.Config
	if err := config.Load(&cartCfg); err != nil {
		return nil, err
	}
	var wishlistCfg wishlist.Config
	if err := config.Load(&wishlistCfg); err != nil {
		return nil, err
	}

	store, err := authstore.NewFromConfig(ctx, authCfg)
	if err != nil {
		return nil, err
	}

	interceptor := httpx.NewInterceptor(store, httpx.WithInterceptorLogger(log))
	client, err := httpx.NewClient(httpCfg, interceptor)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	refresher := refresh.New(client, store,
		refresh.WithCandidates(refreshCfg.Candidates...),
		refresh.WithLogger(log))

	sess := session.New(store, client, refresher,
		session.WithConfig(sessionCfg),
		session.WithLogger(log))
	sess.Register(interceptor)

	return &App{
		Store:    store,
		Client:   client,
		Session:  sess,
		Cart:     cart.New(client, cart.WithConfig(cartCfg), cart.WithLogger(log)),
		Wishlist: wishlist.New(client, wishlist.WithConfig(wishlistCfg), wishlist.WithLogger(log)),
	}, nil
}

// Start bootstraps the session, binds the collection controllers to it and,
// when the durable backend supports it, begins watching for changes made by
// other processes. It runs until ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.Session.Bootstrap(ctx)
	a.Cart.BindSession(ctx, a.Session)
	a.Wishlist.BindSession(ctx, a.Session)

	if err := a.Session.WatchExternal(ctx); err != nil && !errors.Is(err, authstore.ErrWatchUnsupported) {
		return err
	}
	return nil
}

// Close releases every component.
func (a *App) Close() error {
	return errors.Join(
		a.Cart.Close(),
		a.Wishlist.Close(),
		a.Session.Close(),
		a.Store.Close(),
	)
}

func loadUnless[T any](override *T) (T, error) {
	if override != nil {
		return *override, nil
	}
	var cfg T
	err := config.Load(&cfg)
	return cfg, err
}
