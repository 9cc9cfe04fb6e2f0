package authstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fittly/shopkit/pkg/logger"
)

// Scope identifies which storage scope currently holds the record.
type Scope int

const (
	// ScopeNone means no record is held.
	ScopeNone Scope = iota
	// ScopeDurable survives process restarts (file or redis backend).
	ScopeDurable
	// ScopeEphemeral lives in process memory only.
	ScopeEphemeral
)

// Store is the single source of truth for the session credential. It keeps
// an in-memory copy backed by exactly one of two scopes: writing to one
// scope always deletes the other, so divergent duplicate sessions cannot
// exist. Reads are synchronous after the first load. Writes (re)install a
// single expiry timer that clears the record autonomously once the
// credential's expiry passes.
type Store struct {
	mu        sync.Mutex
	durable   Backend
	ephemeral Backend
	cached    Record
	scope     Scope
	loaded    bool
	timer     *time.Timer
	handlers  []func()
	log       *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEphemeralBackend replaces the process-memory scope, mainly for tests.
func WithEphemeralBackend(b Backend) Option {
	return func(s *Store) {
		if b != nil {
			s.ephemeral = b
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a Store over the given durable backend. A nil backend degrades
// both scopes to process memory.
func New(durable Backend, opts ...Option) *Store {
	s := &Store{
		durable:   durable,
		ephemeral: NewMemoryBackend(),
		log:       slog.Default(),
	}
	if s.durable == nil {
		s.durable = NewMemoryBackend()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a handler invoked after every write, clear and
// autonomous expiry. Handlers run outside the store lock and must not block.
func (s *Store) OnChange(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

// Read returns the current record, or a zero record when anonymous. Backend
// errors and corrupted payloads are treated as absence; a corrupted entry is
// deleted as a side effect. A record whose local expiry has already passed
// is cleared and reported as absent.
func (s *Store) Read(ctx context.Context) Record {
	s.mu.Lock()
	s.loadLocked(ctx)

	if !s.cached.IsAnonymous() && s.cached.IsExpired() {
		s.clearLocked(ctx)
		s.mu.Unlock()
		s.notify()
		return Record{}
	}

	rec := s.cached
	s.mu.Unlock()
	return rec
}

// Write stores the record into the selected scope and removes it from the
// other. persistent=true selects the durable scope. The expiry timer is
// re-armed from the record's expiry (decoded from the token when absent).
func (s *Store) Write(ctx context.Context, rec Record, persistent bool) error {
	s.mu.Lock()
	err := s.writeLocked(ctx, rec, persistent)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// Update stores the record into whichever scope currently holds one,
// defaulting to durable. Used by credential renewal, which must not move the
// record across scopes.
func (s *Store) Update(ctx context.Context, rec Record) error {
	s.mu.Lock()
	s.loadLocked(ctx)
	persistent := s.scope != ScopeEphemeral
	err := s.writeLocked(ctx, rec, persistent)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// Clear removes the record from both scopes and cancels the expiry timer.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.clearLocked(ctx)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Scope reports which scope holds the record. Accurate after the first Read.
func (s *Store) Scope() Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// Reload drops the in-memory copy and re-reads from the backends. Called by
// the session controller when another process is observed writing the
// durable scope.
func (s *Store) Reload(ctx context.Context) Record {
	s.mu.Lock()
	s.loaded = false
	s.cached = Record{}
	s.scope = ScopeNone
	s.mu.Unlock()
	return s.Read(ctx)
}

// Watch exposes the durable backend's external-change notification, when the
// backend supports one.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	if w, ok := s.durable.(Watcher); ok {
		return w.Watch(ctx)
	}
	return nil, ErrWatchUnsupported
}

// Close cancels the expiry timer. The stored record is left untouched.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}

func (s *Store) loadLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true

	// Ephemeral scope wins: it is only populated by an explicit
	// non-persistent login in this process.
	for _, src := range []struct {
		backend Backend
		scope   Scope
	}{
		{s.ephemeral, ScopeEphemeral},
		{s.durable, ScopeDurable},
	} {
		data, err := src.backend.Load(ctx)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.IsAnonymous() {
			// Corrupted or empty payloads are absence, not errors.
			_ = src.backend.Delete(ctx)
			continue
		}
		s.cached = rec.withDecodedExpiry()
		s.scope = src.scope
		s.armTimerLocked()
		return
	}

	s.cached = Record{}
	s.scope = ScopeNone
}

func (s *Store) writeLocked(ctx context.Context, rec Record, persistent bool) error {
	rec = rec.withDecodedExpiry()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	target, other := s.durable, s.ephemeral
	scope := ScopeDurable
	if !persistent {
		target, other = s.ephemeral, s.durable
		scope = ScopeEphemeral
	}

	if err := target.Save(ctx, data); err != nil {
		return err
	}
	_ = other.Delete(ctx)

	s.cached = rec
	s.scope = scope
	s.loaded = true
	s.armTimerLocked()
	return nil
}

func (s *Store) clearLocked(ctx context.Context) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	_ = s.durable.Delete(ctx)
	_ = s.ephemeral.Delete(ctx)
	s.cached = Record{}
	s.scope = ScopeNone
	s.loaded = true
}

// armTimerLocked replaces any previous expiry timer with one for the cached
// record. At most one timer exists at a time.
func (s *Store) armTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cached.IsAnonymous() || s.cached.Exp <= 0 {
		return
	}

	d := time.Until(s.cached.ExpiresAt())
	if d <= 0 {
		go s.expire()
		return
	}
	s.timer = time.AfterFunc(d, s.expire)
}

// expire clears the record once its expiry passes, without any network call.
func (s *Store) expire() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	if s.cached.IsAnonymous() {
		s.mu.Unlock()
		return
	}
	loginID := s.cached.LoginID
	s.clearLocked(ctx)
	s.mu.Unlock()

	s.log.Info("session expired locally", logger.LoginID(loginID))
	s.notify()
}

func (s *Store) notify() {
	s.mu.Lock()
	handlers := make([]func(), len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}
