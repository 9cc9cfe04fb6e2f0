package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fittly/shopkit/pkg/broadcast"
	"github.com/fittly/shopkit/pkg/httpx"
	"github.com/fittly/shopkit/pkg/logger"
	"github.com/fittly/shopkit/pkg/session"
)

// Config tunes the controller's optimistic behavior.
type Config struct {
	// Debounce is the quiet period per cart line before a quantity change
	// is sent to the backend.
	Debounce time.Duration `env:"SHOPKIT_CART_DEBOUNCE" envDefault:"400ms"`
	// MaxQuantity caps a line's quantity when the stock figure is unknown.
	MaxQuantity int `env:"SHOPKIT_CART_MAX_QTY" envDefault:"99"`
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 400 * time.Millisecond
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = 99
	}
	return cfg
}

type pendingUpdate struct {
	timer *time.Timer
	qty   int
}

// Controller keeps an optimistic local mirror of the server-side cart.
// Mutations apply to the mirror immediately and broadcast, then reconcile
// with the backend: quantity changes are debounced per line with
// cancel-and-replace so only the latest value travels, removals are
// optimistic with snapshot rollback, and any remote failure falls back to an
// authoritative reload.
type Controller struct {
	client *httpx.Client
	signal *broadcast.Signal
	cfg    Config
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	items     []Item
	selection map[int64]struct{}
	pending   map[int64]*pendingUpdate
	closed    bool
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

// New creates a cart Controller over the given client.
func New(client *httpx.Client, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:    client,
		signal:    broadcast.NewSignal(1),
		cfg:       applyConfigDefaults(Config{}),
		log:       slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
		selection: make(map[int64]struct{}),
		pending:   make(map[int64]*pendingUpdate),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe returns a subscriber on the cart change broadcast.
func (c *Controller) Subscribe(ctx context.Context) *broadcast.Subscriber {
	return c.signal.Subscribe(ctx)
}

// Items returns a copy of the local mirror.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Load replaces the mirror with the backend's cart. An unauthorized
// response yields an empty cart, not an error; anonymous visitors simply
// have nothing in it.
func (c *Controller) Load(ctx context.Context) error {
	var raw json.RawMessage
	if err := c.client.Get(ctx, "/user/cart", &raw); err != nil {
		if httpx.IsUnauthorized(err) {
			c.replaceItems(nil)
			return nil
		}
		return err
	}
	items := httpx.DecodeList[Item](raw)

	// The backend occasionally reports a line twice; first occurrence wins.
	seen := make(map[int64]struct{}, len(items))
	deduped := items[:0]
	for _, it := range items {
		if _, dup := seen[it.CartItemID]; dup {
			continue
		}
		seen[it.CartItemID] = struct{}{}
		deduped = append(deduped, it)
	}

	c.replaceItems(deduped)
	return nil
}

// Add places a product variant in the cart and reloads the authoritative
// state.
func (c *Controller) Add(ctx context.Context, in AddInput) error {
	if in.Quantity < 1 {
		in.Quantity = 1
	}
	if err := c.client.Post(ctx, "/user/cart", in, nil); err != nil {
		return err
	}
	return c.Load(ctx)
}

// SetQuantity applies a clamped quantity to the mirror immediately and
// schedules the remote write behind the per-line debounce. Rapid successive
// calls for the same line cancel and replace each other, so exactly one
// request with the final value goes out per quiet period. Returns the
// applied quantity.
func (c *Controller) SetQuantity(ctx context.Context, cartItemID int64, qty int) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}

	idx := c.indexOf(cartItemID)
	if idx < 0 {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrItemNotFound, cartItemID)
	}

	clamped := clampQuantity(qty, c.items[idx].AvailableStock, c.cfg.MaxQuantity)
	c.items[idx].Quantity = clamped

	if p, ok := c.pending[cartItemID]; ok {
		p.timer.Stop()
	}
	p := &pendingUpdate{qty: clamped}
	p.timer = time.AfterFunc(c.cfg.Debounce, func() { c.flush(cartItemID) })
	c.pending[cartItemID] = p
	c.mu.Unlock()

	c.signal.Notify()
	return clamped, nil
}

// flush sends the latest debounced quantity for one line. A failed write
// means the mirror may have diverged, so the whole cart reloads.
func (c *Controller) flush(cartItemID int64) {
	c.mu.Lock()
	p, ok := c.pending[cartItemID]
	if !ok || c.closed {
		c.mu.Unlock()
		return
	}
	delete(c.pending, cartItemID)
	qty := p.qty
	c.mu.Unlock()

	path := fmt.Sprintf("/user/cart/%d", cartItemID)
	if err := c.client.Patch(c.ctx, path, map[string]int{"quantity": qty}, nil); err != nil {
		c.log.Warn("quantity update failed, reloading cart",
			logger.Error(err), slog.Int64("cart_item_id", cartItemID))
		if err := c.Load(c.ctx); err != nil {
			c.log.Error("cart reload failed", logger.Error(err))
		}
	}
}

// Remove deletes one line optimistically. On remote failure the snapshot is
// restored and the authoritative state reloaded.
func (c *Controller) Remove(ctx context.Context, cartItemID int64) error {
	return c.RemoveMany(ctx, []int64{cartItemID})
}

// RemoveMany deletes several lines optimistically, rolling all of them back
// on the first remote failure.
func (c *Controller) RemoveMany(ctx context.Context, cartItemIDs []int64) error {
	if len(cartItemIDs) == 0 {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	snapshot := slices.Clone(c.items)
	c.items = slices.DeleteFunc(c.items, func(it Item) bool {
		return slices.Contains(cartItemIDs, it.CartItemID)
	})
	for _, id := range cartItemIDs {
		delete(c.selection, id)
		if p, ok := c.pending[id]; ok {
			p.timer.Stop()
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()
	c.signal.Notify()

	for _, id := range cartItemIDs {
		if err := c.client.Delete(ctx, fmt.Sprintf("/user/cart/%d", id), nil); err != nil {
			c.mu.Lock()
			c.items = snapshot
			c.mu.Unlock()
			c.signal.Notify()

			if lerr := c.Load(ctx); lerr != nil {
				c.log.Error("cart reload failed", logger.Error(lerr))
			}
			return err
		}
	}
	return nil
}

// RemoveByOptions trims lines matching the given variant triples, the
// post-order cleanup. Empty input is a no-op; the mirror is only trimmed
// after the backend confirms.
func (c *Controller) RemoveByOptions(ctx context.Context, keys []OptionKey) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Post(ctx, "/user/cart/remove-after-order-options", keys, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.items = slices.DeleteFunc(c.items, func(it Item) bool {
		for _, k := range keys {
			if k.matches(it) {
				return true
			}
		}
		return false
	})
	c.pruneSelectionLocked()
	c.mu.Unlock()
	c.signal.Notify()
	return nil
}

// Select marks a line for checkout.
func (c *Controller) Select(cartItemID int64) {
	c.mu.Lock()
	if c.indexOf(cartItemID) >= 0 {
		c.selection[cartItemID] = struct{}{}
	}
	c.mu.Unlock()
	c.signal.Notify()
}

// Deselect unmarks a line.
func (c *Controller) Deselect(cartItemID int64) {
	c.mu.Lock()
	delete(c.selection, cartItemID)
	c.mu.Unlock()
	c.signal.Notify()
}

// SelectAll marks every line.
func (c *Controller) SelectAll() {
	c.mu.Lock()
	for _, it := range c.items {
		c.selection[it.CartItemID] = struct{}{}
	}
	c.mu.Unlock()
	c.signal.Notify()
}

// ClearSelection unmarks every line.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	clear(c.selection)
	c.mu.Unlock()
	c.signal.Notify()
}

// Selected returns the marked line IDs in ascending order.
func (c *Controller) Selected() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.selection))
	for id := range c.selection {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RemoveSelected deletes every marked line.
func (c *Controller) RemoveSelected(ctx context.Context) error {
	return c.RemoveMany(ctx, c.Selected())
}

// Total is the price sum over the whole mirror.
func (c *Controller) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum float64
	for _, it := range c.items {
		sum += it.Price * float64(it.Quantity)
	}
	return sum
}

// SelectedTotal is the price sum over the marked lines.
func (c *Controller) SelectedTotal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum float64
	for _, it := range c.items {
		if _, ok := c.selection[it.CartItemID]; ok {
			sum += it.Price * float64(it.Quantity)
		}
	}
	return sum
}

// BindSession ties the mirror to the session lifecycle: an authenticated
// transition reloads, an anonymous one empties the mirror. The binding also
// performs an immediate sync and runs until ctx is done.
func (c *Controller) BindSession(ctx context.Context, sess *session.Controller) {
	sub := sess.Subscribe(ctx)
	reconcile := func() {
		if sess.IsLoggedIn(ctx) {
			if err := c.Load(ctx); err != nil {
				c.log.Warn("cart reload on session change failed", logger.Error(err))
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

// Close stops pending debounce timers without flushing them and shuts down
// the broadcast.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, id)
	}
	c.mu.Unlock()

	c.cancel()
	return c.signal.Close()
}

// indexOf requires c.mu.
func (c *Controller) indexOf(cartItemID int64) int {
	return slices.IndexFunc(c.items, func(it Item) bool { return it.CartItemID == cartItemID })
}

// pruneSelectionLocked drops selection entries whose lines are gone.
// Requires c.mu.
func (c *Controller) pruneSelectionLocked() {
	for id := range c.selection {
		if c.indexOf(id) < 0 {
			delete(c.selection, id)
		}
	}
}

func (c *Controller) replaceItems(items []Item) {
	c.mu.Lock()
	c.items = items
	c.pruneSelectionLocked()
	c.mu.Unlock()
	c.signal.Notify()
}
