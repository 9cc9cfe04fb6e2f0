package wishlist

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/fittly/shopkit/pkg/broadcast"
	"github.com/fittly/shopkit/pkg/httpx"
	"github.com/fittly/shopkit/pkg/logger"
	"github.com/fittly/shopkit/pkg/session"
)

// Config tunes the controller.
type Config struct {
	// ReleaseDelay keeps a variant's in-flight guard armed briefly after a
	// toggle resolves, absorbing double-clicks that land right behind the
	// response.
	ReleaseDelay time.Duration `env:"SHOPKIT_WISHLIST_RELEASE_DELAY" envDefault:"200ms"`
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.ReleaseDelay <= 0 {
		cfg.ReleaseDelay = 200 * time.Millisecond
	}
	return cfg
}

// Seed carries the display fields for an optimistic insert, so the entry
// renders correctly before the backend confirms it.
type Seed struct {
	Name  string
	Price float64
}

// Input describes a toggle. Desired forces a direction instead of
// inverting current membership; Seed fills the optimistic entry on the add
// path.
type Input struct {
	ProductID int64
	Color     string
	ColorName string
	Size      string
	Desired   *bool
	Seed      *Seed
}

// Controller keeps an optimistic local mirror of the server-side wishlist.
// Toggles for a variant already in flight are ignored rather than queued,
// and the guard releases only after a short delay, so button mashing
// resolves to a single remote operation. Every mirror change wakes
// subscribers on a payloadless broadcast.
type Controller struct {
	client *httpx.Client
	signal *broadcast.Signal
	cfg    Config
	log    *slog.Logger

	mu       sync.Mutex
	items    []Item
	inflight map[Key]struct{}
	closed   bool
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

// New creates a wishlist Controller over the given client.
func New(client *httpx.Client, opts ...Option) *Controller {
	c := &Controller{
		client:   client,
		signal:   broadcast.NewSignal(1),
		cfg:      applyConfigDefaults(Config{}),
		log:      slog.Default(),
		inflight: make(map[Key]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe returns a subscriber on the wishlist change broadcast.
func (c *Controller) Subscribe(ctx context.Context) *broadcast.Subscriber {
	return c.signal.Subscribe(ctx)
}

// Items returns a copy of the local mirror.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Contains reports local membership of the normalized key.
func (c *Controller) Contains(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexOf(k.normalize()) >= 0
}

// Load replaces the mirror with the backend's wishlist, deduplicating by
// variant. An unauthorized response yields an empty list, not an error.
func (c *Controller) Load(ctx context.Context) error {
	var raw json.RawMessage
	if err := c.client.Get(ctx, "/user/wishlist", &raw); err != nil {
		if httpx.IsUnauthorized(err) {
			c.replaceItems(nil)
			return nil
		}
		return err
	}
	items := httpx.DecodeList[Item](raw)

	seen := make(map[Key]struct{}, len(items))
	deduped := items[:0]
	for _, it := range items {
		k := it.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		deduped = append(deduped, it)
	}

	c.replaceItems(deduped)
	return nil
}

// Toggle flips (or forces, via Desired) membership of a variant. It returns
// the resulting membership. A toggle already in flight for the same variant
// is dropped entirely and reports (false, nil), never the optimistic
// membership the pending attempt may have seeded.
//
// The add path seeds the mirror optimistically, confirms remotely, then
// reloads the authoritative state; on failure the snapshot is restored and
// the error returned. The remove path is symmetric.
func (c *Controller) Toggle(ctx context.Context, in Input) (bool, error) {
	k := Key{ProductID: in.ProductID, Color: in.Color, Size: in.Size}.normalize()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if _, busy := c.inflight[k]; busy {
		c.mu.Unlock()
		return false, nil
	}
	member := c.indexOf(k) >= 0
	c.inflight[k] = struct{}{}

	desired := !member
	if in.Desired != nil {
		desired = *in.Desired
	}
	if desired == member {
		// Already in the requested state; nothing to do remotely.
		delete(c.inflight, k)
		c.mu.Unlock()
		return member, nil
	}
	c.mu.Unlock()

	defer c.releaseLater(k)

	if desired {
		return c.add(ctx, k, in)
	}
	return c.remove(ctx, k)
}

// Remove deletes a variant with the same guard and rollback discipline as
// the toggle's remove path.
func (c *Controller) Remove(ctx context.Context, key Key) error {
	off := false
	_, err := c.Toggle(ctx, Input{
		ProductID: key.ProductID,
		Color:     key.Color,
		Size:      key.Size,
		Desired:   &off,
	})
	return err
}

// Exists probes backend membership directly, bypassing the mirror. An
// unauthorized response means "not a member", not an error.
func (c *Controller) Exists(ctx context.Context, key Key) (bool, error) {
	k := key.normalize()
	var raw json.RawMessage
	err := c.client.Get(ctx, "/user/wishlist/exists", &raw, httpx.WithQuery(k.query()))
	if err != nil {
		if httpx.IsUnauthorized(err) {
			return false, nil
		}
		return false, err
	}

	var out struct {
		Exists bool `json:"exists"`
		Data   struct {
			Exists bool `json:"exists"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, nil
	}
	return out.Exists || out.Data.Exists, nil
}

// BindSession ties the mirror to the session lifecycle: an authenticated
// transition reloads, an anonymous one empties the mirror. The binding also
// performs an immediate sync and runs until ctx is done.
func (c *Controller) BindSession(ctx context.Context, sess *session.Controller) {
	sub := sess.Subscribe(ctx)
	reconcile := func() {
		if sess.IsLoggedIn(ctx) {
			if err := c.Load(ctx); err != nil {
				c.log.Warn("wishlist reload on session change failed", logger.Error(err))
			}
		} else {
			c.replaceItems(nil)
		}
	}
	reconcile()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
				reconcile()
			}
		}
	}()
}

// Close shuts down the broadcast. In-flight guards are left to their
// release timers; a closed controller rejects new toggles.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.signal.Close()
}

func (c *Controller) add(ctx context.Context, k Key, in Input) (bool, error) {
	seed := Item{
		ProductID:  k.ProductID,
		Color:      k.Color,
		ColorName:  in.ColorName,
		Size:       k.Size,
		optimistic: true,
	}
	if in.Seed != nil {
		seed.Name = in.Seed.Name
		seed.Price = in.Seed.Price
	}

	c.mu.Lock()
	snapshot := slices.Clone(c.items)
	if c.indexOf(k) < 0 {
		c.items = append(c.items, seed)
	}
	c.mu.Unlock()
	c.signal.Notify()

	body := map[string]any{"productId": k.ProductID, "color": k.Color, "size": k.Size}
	if err := c.client.Post(ctx, "/user/wishlist", body, nil); err != nil {
		c.restore(snapshot)
		return false, err
	}

	if err := c.Load(ctx); err != nil {
		c.log.Warn("wishlist reload after add failed", logger.Error(err))
	}
	return true, nil
}

func (c *Controller) remove(ctx context.Context, k Key) (bool, error) {
	c.mu.Lock()
	snapshot := slices.Clone(c.items)
	if idx := c.indexOf(k); idx >= 0 {
		c.items = slices.Delete(c.items, idx, idx+1)
	}
	c.mu.Unlock()
	c.signal.Notify()

	if err := c.client.Delete(ctx, "/user/wishlist", nil, httpx.WithQuery(k.query())); err != nil {
		c.restore(snapshot)
		return true, err
	}

	if err := c.Load(ctx); err != nil {
		c.log.Warn("wishlist reload after remove failed", logger.Error(err))
	}
	return false, nil
}

// releaseLater disarms the in-flight guard after the configured delay.
func (c *Controller) releaseLater(k Key) {
	time.AfterFunc(c.cfg.ReleaseDelay, func() {
		c.mu.Lock()
		delete(c.inflight, k)
		c.mu.Unlock()
	})
}

func (c *Controller) restore(snapshot []Item) {
	c.mu.Lock()
	c.items = snapshot
	c.mu.Unlock()
	c.signal.Notify()
}

// indexOf requires c.mu; k must be normalized.
func (c *Controller) indexOf(k Key) int {
	return slices.IndexFunc(c.items, func(it Item) bool { return it.Key() == k })
}

func (c *Controller) replaceItems(items []Item) {
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	c.signal.Notify()
}

func (k Key) query() url.Values {
	return url.Values{
		"productId": {strconv.FormatInt(k.ProductID, 10)},
		"color":     {k.Color},
		"size":      {k.Size},
	}
}
