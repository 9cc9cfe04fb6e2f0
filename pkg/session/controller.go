package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fittly/shopkit/pkg/authstore"
	"github.com/fittly/shopkit/pkg/broadcast"
	"github.com/fittly/shopkit/pkg/httpx"
	"github.com/fittly/shopkit/pkg/logger"
	"github.com/fittly/shopkit/pkg/refresh"
)

// State is the controller's position in its lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBootstrapping State = "bootstrapping"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
	StateRefreshing    State = "refreshing"
)

// Config holds the auth endpoint paths.
type Config struct {
	LoginPath      string `env:"SHOPKIT_LOGIN_PATH" envDefault:"/auth/user/login"`
	AdminLoginPath string `env:"SHOPKIT_ADMIN_LOGIN_PATH" envDefault:"/auth/admin/login"`
	ValidatePath   string `env:"SHOPKIT_VALIDATE_PATH" envDefault:"/auth/validate"`
}

// Controller owns the authenticated/anonymous state of the storefront
// client. It is an explicit, injectable object: login and logout mutate the
// auth store through it, the transport interceptor delegates 401 handling to
// it, and every state change is announced on a payloadless broadcast that
// UI and collection controllers subscribe to.
type Controller struct {
	store     *authstore.Store
	client    *httpx.Client
	refresher *refresh.Coordinator
	signal    *broadcast.Signal
	cfg       Config
	log       *slog.Logger

	mu    sync.Mutex
	state State
}

// Option configures a Controller.
type Option func(*Controller)

func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = applyConfigDefaults(cfg) }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/user/login"
	}
	if cfg.AdminLoginPath == "" {
		cfg.AdminLoginPath = "/auth/admin/login"
	}
	if cfg.ValidatePath == "" {
		cfg.ValidatePath = "/auth/validate"
	}
	return cfg
}

// New creates a Controller. It registers itself as the store's change
// handler so autonomous expiry and renewal both surface as broadcasts.
func New(store *authstore.Store, client *httpx.Client, refresher *refresh.Coordinator, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		client:    client,
		refresher: refresher,
		signal:    broadcast.NewSignal(1),
		cfg:       applyConfigDefaults(Config{}),
		log:       slog.Default(),
		state:     StateUninitialized,
	}
	for _, opt := range opts {
		opt(c)
	}
	store.OnChange(c.onStoreChange)
	return c
}

// Register installs the controller as the interceptor's unauthorized
// handler.
func (c *Controller) Register(i *httpx.Interceptor) {
	i.SetUnauthorizedHandler(c.HandleUnauthorized)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the session record, zero when anonymous.
func (c *Controller) Current(ctx context.Context) authstore.Record {
	return c.store.Read(ctx)
}

// IsLoggedIn reports whether a live credential exists.
func (c *Controller) IsLoggedIn(ctx context.Context) bool {
	return !c.store.Read(ctx).IsAnonymous()
}

// HasRole reports whether the session's role is one of the given roles.
func (c *Controller) HasRole(ctx context.Context, roles ...authstore.Role) bool {
	current := c.store.Read(ctx).Role
	for _, r := range roles {
		if current == r {
			return true
		}
	}
	return false
}

// Subscribe returns a subscriber on the session change broadcast.
func (c *Controller) Subscribe(ctx context.Context) *broadcast.Subscriber {
	return c.signal.Subscribe(ctx)
}

// Bootstrap establishes the initial state from the persisted record. A
// stored record that is not locally expired marks the session authenticated
// optimistically; a non-blocking validation call follows, whose failure does
// not clear the session - that decision belongs to the interceptor's 401
// path, so stale sessions are not double-handled.
func (c *Controller) Bootstrap(ctx context.Context) {
	c.setState(StateBootstrapping)

	rec := c.store.Read(ctx) // triggers legacy migration and expiry cleanup
	if rec.IsAnonymous() {
		c.setState(StateAnonymous)
		c.signal.Notify()
		return
	}

	c.setState(StateAuthenticated)
	c.signal.Notify()

	go func() {
		// Validate sits on the auth surface, so the classifier would strip
		// the bearer; force it on, and keep a 401 from starting a renewal.
		err := c.client.Get(ctx, c.cfg.ValidatePath, nil, httpx.ForceAuth(), httpx.Suppress401())
		if err != nil {
			c.log.WarnContext(ctx, "bootstrap validation failed", logger.Error(err))
		}
	}()
}

// WatchExternal consumes the store's cross-process change notification,
// re-reading and re-broadcasting on every external write. Returns
// authstore.ErrWatchUnsupported when the durable backend cannot watch.
func (c *Controller) WatchExternal(ctx context.Context) error {
	ch, err := c.store.Watch(ctx)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				rec := c.store.Reload(ctx)
				if rec.IsAnonymous() {
					c.setState(StateAnonymous)
				} else {
					c.setState(StateAuthenticated)
				}
				c.signal.Notify()
			}
		}
	}()
	return nil
}

type loginOptions struct {
	ephemeral bool
	admin     bool
}

// LoginOption adjusts a login attempt.
type LoginOption func(*loginOptions)

// Ephemeral stores the resulting session in process memory only, the
// equivalent of not ticking "stay logged in".
func Ephemeral() LoginOption {
	return func(o *loginOptions) { o.ephemeral = true }
}

// AsAdmin uses the admin login endpoint.
func AsAdmin() LoginOption {
	return func(o *loginOptions) { o.admin = true }
}

type loginRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

// Login authenticates and persists the resulting record. On failure the
// returned error wraps ErrLoginFailed with the server's message, and no
// state is mutated.
func (c *Controller) Login(ctx context.Context, loginID, password string, opts ...LoginOption) error {
	var o loginOptions
	for _, opt := range opts {
		opt(&o)
	}

	path := c.cfg.LoginPath
	if o.admin {
		path = c.cfg.AdminLoginPath
	}

	var raw json.RawMessage
	if err := c.client.Post(ctx, path, loginRequest{LoginID: loginID, Password: password}, &raw); err != nil {
		return normalizeLoginError(err)
	}

	token, role, respLoginID := httpx.TokenFromEnvelope(raw)
	if token == "" {
		return fmt.Errorf("%w: response carried no token", ErrLoginFailed)
	}
	if respLoginID == "" {
		respLoginID = loginID
	}

	rec := authstore.Record{
		Token:   token,
		Role:    authstore.Role(role),
		LoginID: respLoginID,
	}
	if err := c.store.Write(ctx, rec, !o.ephemeral); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	c.setState(StateAuthenticated)
	c.signal.Notify()
	c.log.InfoContext(ctx, "logged in", logger.LoginID(rec.LoginID))
	return nil
}

// Logout clears the session. Always ends in the anonymous state with a
// broadcast, whatever the previous state was.
func (c *Controller) Logout(ctx context.Context) {
	_ = c.store.Clear(ctx)
	c.setState(StateAnonymous)
	c.signal.Notify()
	c.log.InfoContext(ctx, "logged out")
}

// HandleUnauthorized implements the interceptor's 401 contract: renew
// through the coordinator and report whether a retry is worthwhile. On
// renewal failure the session is cleaned up as a logout would, so UI
// observes a uniform anonymous transition regardless of cause.
func (c *Controller) HandleUnauthorized(ctx context.Context, path string) bool {
	if c.store.Read(ctx).IsAnonymous() {
		// Nothing to renew and nothing to clear.
		return false
	}

	c.setState(StateRefreshing)
	c.signal.Notify()

	if c.refresher.Refresh(ctx) {
		c.setState(StateAuthenticated)
		c.signal.Notify()
		return true
	}

	c.log.WarnContext(ctx, "refresh failed, clearing session", logger.Path(path))
	c.Logout(ctx)
	return false
}

// Close shuts down the broadcast. Subscribers see their channels closed.
func (c *Controller) Close() error {
	return c.signal.Close()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// onStoreChange runs after every store write, clear and autonomous expiry.
// It keeps the state machine aligned with the record and wakes subscribers;
// transitional states set explicitly elsewhere are not overwritten here
// beyond the authenticated/anonymous distinction.
func (c *Controller) onStoreChange() {
	rec := c.store.Read(context.Background())

	c.mu.Lock()
	switch {
	case c.state == StateUninitialized || c.state == StateBootstrapping || c.state == StateRefreshing:
		// Explicit transitions own these states.
	case rec.IsAnonymous():
		c.state = StateAnonymous
	default:
		c.state = StateAuthenticated
	}
	c.mu.Unlock()

	c.signal.Notify()
}

func normalizeLoginError(err error) error {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return fmt.Errorf("%w: %s", ErrLoginFailed, httpErr.Message)
	}
	return errors.Join(ErrLoginFailed, err)
}
