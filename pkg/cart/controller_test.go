package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fittly/shopkit/pkg/authstore"
	"github.com/fittly/shopkit/pkg/cart"
	"github.com/fittly/shopkit/pkg/httpx"
	"github.com/fittly/shopkit/pkg/refresh"
	"github.com/fittly/shopkit/pkg/session"
)

func newClient(t *testing.T, srv *httptest.Server) *httpx.Client {
	t.Helper()
	store := authstore.New(authstore.NewMemoryBackend())
	require.NoError(t, store.Write(context.Background(),
		authstore.Record{Token: "t1", LoginID: "alice"}, true))
	client, err := httpx.NewClient(httpx.Config{BaseURL: srv.URL + "/api"}, httpx.NewInterceptor(store))
	require.NoError(t, err)
	return client
}

func itemsJSON(items ...cart.Item) []byte {
	b, _ := json.Marshal(map[string]any{"data": items})
	return b
}

func TestLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("replaces the mirror and deduplicates lines", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(itemsJSON(
				cart.Item{CartItemID: 1, ProductID: 10, Quantity: 2},
				cart.Item{CartItemID: 2, ProductID: 11, Quantity: 1},
				cart.Item{CartItemID: 1, ProductID: 10, Quantity: 5},
			))
		}))
		defer srv.Close()

		c := cart.New(newClient(t, srv))
		defer c.Close()

		require.NoError(t, c.Load(ctx))
		items := c.Items()
		require.Len(t, items, 2)
		assert.Equal(t, 2, items[0].Quantity, "first occurrence wins")
	})

	t.Run("unauthorized means an empty cart, not an error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := cart.New(newClient(t, srv))
		defer c.Close()

		require.NoError(t, c.Load(ctx))
		assert.Empty(t, c.Items())
	})
}

func TestSetQuantity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newLoaded := func(t *testing.T, handler http.HandlerFunc, opts ...cart.Option) *cart.Controller {
		t.Helper()
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		c := cart.New(newClient(t, srv), opts...)
		t.Cleanup(func() { _ = c.Close() })
		require.NoError(t, c.Load(ctx))
		return c
	}

	stockHandler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write(itemsJSON(
				cart.Item{CartItemID: 1, Quantity: 2, AvailableStock: 5},
				cart.Item{CartItemID: 2, Quantity: 1},
			))
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}

	t.Run("clamps to available stock", func(t *testing.T) {
		t.Parallel()
		c := newLoaded(t, stockHandler)

		applied, err := c.SetQuantity(ctx, 1, 40)
		require.NoError(t, err)
		assert.Equal(t, 5, applied)

		applied, err = c.SetQuantity(ctx, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, applied, "quantity never drops below one")
	})

	t.Run("unknown stock falls back to the default ceiling", func(t *testing.T) {
		t.Parallel()
		c := newLoaded(t, stockHandler)

		applied, err := c.SetQuantity(ctx, 2, 500)
		require.NoError(t, err)
		assert.Equal(t, 99, applied)
	})

	t.Run("unknown line is rejected", func(t *testing.T) {
		t.Parallel()
		c := newLoaded(t, stockHandler)

		_, err := c.SetQuantity(ctx, 777, 2)
		assert.ErrorIs(t, err, cart.ErrItemNotFound)
	})

	t.Run("rapid edits collapse into one request with the final value", func(t *testing.T) {
		t.Parallel()

		var patches atomic.Int32
		var mu sync.Mutex
		var lastBody map[string]int
		c := newLoaded(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_, _ = w.Write(itemsJSON(cart.Item{CartItemID: 1, Quantity: 1, AvailableStock: 5}))
			case http.MethodPatch:
				patches.Add(1)
				mu.Lock()
				_ = json.NewDecoder(r.Body).Decode(&lastBody)
				mu.Unlock()
				_, _ = w.Write([]byte(`{"success":true}`))
			}
		}, cart.WithConfig(cart.Config{Debounce: 80 * time.Millisecond}))

		for _, q := range []int{2, 3, 4, 40} {
			_, err := c.SetQuantity(ctx, 1, q)
			require.NoError(t, err)
		}
		assert.Equal(t, 5, c.Items()[0].Quantity, "mirror reflects the clamped final value at once")

		assert.Eventually(t, func() bool { return patches.Load() == 1 },
			2*time.Second, 10*time.Millisecond)
		time.Sleep(200 * time.Millisecond)
		assert.EqualValues(t, 1, patches.Load(), "no trailing requests after the quiet period")

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, map[string]int{"quantity": 5}, lastBody)
	})

	t.Run("failed write reconciles from the backend", func(t *testing.T) {
		t.Parallel()

		c := newLoaded(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_, _ = w.Write(itemsJSON(cart.Item{CartItemID: 1, Quantity: 2, AvailableStock: 9}))
			case http.MethodPatch:
				w.WriteHeader(http.StatusInternalServerError)
			}
		}, cart.WithConfig(cart.Config{Debounce: 30 * time.Millisecond}))

		_, err := c.SetQuantity(ctx, 1, 7)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			items := c.Items()
			return len(items) == 1 && items[0].Quantity == 2
		}, 2*time.Second, 10*time.Millisecond, "authoritative state wins after the failed write")
	})
}

func TestRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("optimistic removal sticks on success", func(t *testing.T) {
		t.Parallel()

		var deleted atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_, _ = w.Write(itemsJSON(
					cart.Item{CartItemID: 1}, cart.Item{CartItemID: 2},
				))
			case http.MethodDelete:
				require.Equal(t, "/api/user/cart/1", r.URL.Path)
				deleted.Add(1)
				_, _ = w.Write([]byte(`{"success":true}`))
			}
		}))
		defer srv.Close()

		c := cart.New(newClient(t, srv))
		defer c.Close()
		require.NoError(t, c.Load(ctx))

		require.NoError(t, c.Remove(ctx, 1))
		assert.EqualValues(t, 1, deleted.Load())
		require.Len(t, c.Items(), 1)
		assert.EqualValues(t, 2, c.Items()[0].CartItemID)
	})

	t.Run("failure restores the snapshot and reloads", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_, _ = w.Write(itemsJSON(cart.Item{CartItemID: 1, Quantity: 3}))
			case http.MethodDelete:
				w.WriteHeader(http.StatusConflict)
			}
		}))
		defer srv.Close()

		c := cart.New(newClient(t, srv))
		defer c.Close()
		require.NoError(t, c.Load(ctx))

		err := c.Remove(ctx, 1)
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httpx.StatusOf(err))
		require.Len(t, c.Items(), 1, "line survives the failed removal")
	})
}

func TestRemoveByOptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("trims matching variants after confirmation", func(t *testing.T) {
		t.Parallel()

		var posted []cart.OptionKey
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet:
				_, _ = w.Write(itemsJSON(
					cart.Item{CartItemID: 1, ProductID: 10, Color: "RED", Size: "M"},
					cart.Item{CartItemID: 2, ProductID: 10, Color: "BLUE", Size: "M"},
					cart.Item{CartItemID: 3, ProductID: 11},
				))
			case r.URL.Path == "/api/user/cart/remove-after-order-options":
				require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
				_, _ = w.Write([]byte(`{"success":true}`))
			}
		}))
		defer srv.Close()

		c := cart.New(newClient(t, srv))
		defer c.Close()
		require.NoError(t, c.Load(ctx))

		keys := []cart.OptionKey{{ProductID: 10, Color: "RED", Size: "M"}}
		require.NoError(t, c.RemoveByOptions(ctx, keys))

		assert.Equal(t, keys, posted)
		require.Len(t, c.Items(), 2)
		for _, it := range c.Items() {
			assert.NotEqual(t, "RED", it.Color)
		}
	})

	t.Run("empty input makes no request", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected request to %s", r.URL.Path)
		}))
		defer srv.Close()

		c := cart.New(newClient(t, srv))
		defer c.Close()
		require.NoError(t, c.RemoveByOptions(ctx, nil))
	})
}

func TestSelection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reloadCount := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if reloadCount.Add(1) == 1 {
				_, _ = w.Write(itemsJSON(
					cart.Item{CartItemID: 1, Price: 10, Quantity: 2},
					cart.Item{CartItemID: 2, Price: 5, Quantity: 1},
					cart.Item{CartItemID: 3, Price: 1, Quantity: 1},
				))
				return
			}
			_, _ = w.Write(itemsJSON(cart.Item{CartItemID: 2, Price: 5, Quantity: 1}))
		case http.MethodDelete:
			_, _ = w.Write([]byte(`{"success":true}`))
		}
	}))
	defer srv.Close()

	c := cart.New(newClient(t, srv))
	defer c.Close()
	require.NoError(t, c.Load(ctx))

	c.SelectAll()
	c.Deselect(2)
	c.Select(999) // unknown lines are not selectable
	assert.Equal(t, []int64{1, 3}, c.Selected())
	assert.InDelta(t, 26.0, c.Total(), 0.001)
	assert.InDelta(t, 21.0, c.SelectedTotal(), 0.001)

	require.NoError(t, c.RemoveSelected(ctx))
	assert.Empty(t, c.Selected(), "selection pruned to surviving lines")

	require.NoError(t, c.Load(ctx))
	c.Select(1)
	assert.Empty(t, c.Selected(), "reload pruned the stale line before selection")
}

func TestBindSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(itemsJSON(cart.Item{CartItemID: 1}))
	}))
	defer srv.Close()

	store := authstore.New(authstore.NewMemoryBackend())
	require.NoError(t, store.Write(ctx, authstore.Record{Token: "t1"}, true))
	interceptor := httpx.NewInterceptor(store)
	client, err := httpx.NewClient(httpx.Config{BaseURL: srv.URL + "/api"}, interceptor)
	require.NoError(t, err)

	sess := session.New(store, client, refresh.New(client, store))
	defer sess.Close()

	c := cart.New(client)
	defer c.Close()

	c.BindSession(ctx, sess)
	assert.Len(t, c.Items(), 1, "bound while authenticated loads immediately")

	sess.Logout(ctx)
	assert.Eventually(t, func() bool { return len(c.Items()) == 0 },
		2*time.Second, 10*time.Millisecond, "anonymous transition empties the mirror")
}
