package authstore

import (
	"context"
	"sync"
)

// Backend persists the raw session record payload for one storage scope.
// The payload is opaque JSON; corruption handling belongs to the Store.
type Backend interface {
	// Load returns the stored payload, or ErrNotFound when absent.
	Load(ctx context.Context) ([]byte, error)

	// Save overwrites the stored payload.
	Save(ctx context.Context, data []byte) error

	// Delete removes the stored payload. Deleting an absent payload is not an error.
	Delete(ctx context.Context) error
}

// Watcher is an optional Backend capability: observing writes made by other
// processes. The channel is a payloadless wake-up; consumers re-read the
// store. Delivery is eventually consistent, and a backend's own writes may
// echo back through it.
type Watcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// MemoryBackend stores the payload in process memory. It backs the
// ephemeral scope: records written through it do not survive a restart,
// the analogue of tab-scoped storage.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemoryBackend) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make([]byte, len(data))
	copy(m.data, data)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil
	return nil
}
