package refresh_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fittly/shopkit/pkg/authstore"
	"github.com/fittly/shopkit/pkg/httpx"
	"github.com/fittly/shopkit/pkg/refresh"
)

func newClient(t *testing.T, srv *httptest.Server, store *authstore.Store) *httpx.Client {
	t.Helper()
	client, err := httpx.NewClient(httpx.Config{BaseURL: srv.URL + "/api"}, httpx.NewInterceptor(store))
	require.NoError(t, err)
	return client
}

func TestRefreshSingleFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"token":"t2"}`))
	}))
	defer srv.Close()

	store := authstore.New(authstore.NewMemoryBackend())
	require.NoError(t, store.Write(ctx, authstore.Record{Token: "t1", Role: authstore.RoleUser, LoginID: "alice"}, true))

	coord := refresh.New(newClient(t, srv, store), store)

	const waiters = 20
	results := make([]bool, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = coord.Refresh(ctx)
		}()
	}

	// Let every waiter join the in-flight attempt before the server answers.
	time.Sleep(200 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load(), "exactly one renewal call for N concurrent callers")
	for i, ok := range results {
		assert.True(t, ok, "caller %d must observe the shared success", i)
	}
	assert.Equal(t, "t2", store.Read(ctx).Token)
}

func TestRefreshCandidates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("falls through to the first working variant", func(t *testing.T) {
		t.Parallel()

		var paths []string
		var mu sync.Mutex
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			paths = append(paths, r.URL.Path)
			mu.Unlock()
			if r.URL.Path == "/api/auth/user/refresh" {
				_, _ = w.Write([]byte(`{"accessToken":"t2"}`))
				return
			}
			http.NotFound(w, r)
		}))
		defer srv.Close()

		store := authstore.New(authstore.NewMemoryBackend())
		require.NoError(t, store.Write(ctx, authstore.Record{Token: "t1"}, true))

		coord := refresh.New(newClient(t, srv, store), store)
		assert.True(t, coord.Refresh(ctx))
		assert.Equal(t, "t2", store.Read(ctx).Token)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{
			"/api/auth/refresh",
			"/api/auth/refresh",
			"/api/auth/user/refresh",
		}, paths, "variants tried in order until one succeeds")
	})

	t.Run("response without token keeps trying", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"success":true}`))
		}))
		defer srv.Close()

		store := authstore.New(authstore.NewMemoryBackend())
		coord := refresh.New(newClient(t, srv, store), store,
			refresh.WithCandidates("/auth/refresh", "/auth/user/refresh"))

		assert.False(t, coord.Refresh(ctx))
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("exhaustion leaves the store untouched", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
		defer srv.Close()

		store := authstore.New(authstore.NewMemoryBackend())
		require.NoError(t, store.Write(ctx, authstore.Record{Token: "t1", LoginID: "alice"}, true))

		coord := refresh.New(newClient(t, srv, store), store)
		assert.False(t, coord.Refresh(ctx))
		assert.ErrorIs(t, coord.Do(ctx), refresh.ErrRefreshFailed)

		rec := store.Read(ctx)
		assert.Equal(t, "t1", rec.Token, "failed refresh must not mutate the record")
		assert.Equal(t, "alice", rec.LoginID)
	})
}

func TestRefreshDiscardedAfterLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"token":"t2"}`))
	}))
	defer srv.Close()

	store := authstore.New(authstore.NewMemoryBackend())
	require.NoError(t, store.Write(ctx, authstore.Record{Token: "t1", LoginID: "alice"}, true))

	coord := refresh.New(newClient(t, srv, store), store)

	result := make(chan bool, 1)
	go func() { result <- coord.Refresh(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 },
		2*time.Second, 10*time.Millisecond)

	// The user logs out while the renewal is still waiting on the server.
	require.NoError(t, store.Clear(ctx))
	close(release)

	assert.False(t, <-result, "a renewal finishing after logout must not succeed")
	assert.True(t, store.Read(ctx).IsAnonymous(), "the cleared session stays cleared")
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"token":"t2"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	store := authstore.New(authstore.NewMemoryBackend())
	require.NoError(t, store.Write(ctx, authstore.Record{Token: "t1"}, true))

	coord := refresh.New(newClient(t, srv, store), store)

	firstCtx, cancel := context.WithCancel(ctx)
	first := make(chan bool, 1)
	go func() { first <- coord.Refresh(firstCtx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 },
		2*time.Second, 10*time.Millisecond)

	// A second caller joins the in-flight attempt, then the first caller's
	// request context dies. The shared attempt must outlive it.
	second := make(chan bool, 1)
	go func() { second <- coord.Refresh(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	assert.True(t, <-first)
	assert.True(t, <-second, "joined waiter must not fail on another caller's cancellation")
	assert.Equal(t, "t2", store.Read(ctx).Token)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRefreshPreservesIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"t2"}`))
	}))
	defer srv.Close()

	store := authstore.New(authstore.NewMemoryBackend())
	require.NoError(t, store.Write(ctx, authstore.Record{
		Token: "t1", Role: authstore.RoleAdmin, LoginID: "root",
	}, false))

	coord := refresh.New(newClient(t, srv, store), store)
	require.True(t, coord.Refresh(ctx))

	rec := store.Read(ctx)
	assert.Equal(t, "t2", rec.Token)
	assert.Equal(t, authstore.RoleAdmin, rec.Role, "role carried over when response omits it")
	assert.Equal(t, "root", rec.LoginID, "loginId carried over when response omits it")
	assert.Equal(t, authstore.ScopeEphemeral, store.Scope(), "renewal preserves the storage scope")
}
