package broadcast

import (
	"context"
	"sync"
)

// Subscriber receives change notifications from a Signal.
type Subscriber struct {
	ch     chan struct{}
	closed bool
	mu     sync.Mutex
}

// C returns the channel on which wake-ups are delivered. Consumers re-read
// current state from the owning controller; the notification itself carries
// no payload.
func (s *Subscriber) C() <-chan struct{} {
	return s.ch
}

// Close closes the subscriber. Idempotent.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

// notify delivers a wake-up without blocking. A full buffer means a wake-up
// is already pending, so dropping is lossless for payloadless signals.
func (s *Subscriber) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Signal fans out payloadless change notifications to any number of
// subscribers. Notify never blocks: pending wake-ups coalesce in each
// subscriber's buffer. All methods are safe for concurrent use.
type Signal struct {
	subscribers map[*Subscriber]struct{}
	bufferSize  int
	closed      bool
	mu          sync.RWMutex
	cleanupWg   sync.WaitGroup
}

// NewSignal creates a signal whose subscribers buffer up to bufferSize
// pending wake-ups. A minimum of 1 is enforced so a notification arriving
// while the consumer is busy is never lost entirely.
func NewSignal(bufferSize int) *Signal {
	return &Signal{
		subscribers: make(map[*Subscriber]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Subscribe registers a new subscriber. The subscription is removed
// automatically when ctx is cancelled. Subscribing to a closed signal
// returns an already-closed subscriber.
func (s *Signal) Subscribe(ctx context.Context) *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscriber{ch: make(chan struct{}, s.bufferSize)}

	if s.closed {
		_ = sub.Close()
		return sub
	}

	s.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		s.cleanupWg.Add(1)
		go func() {
			defer s.cleanupWg.Done()
			<-ctx.Done()
			s.unsubscribe(sub)
		}()
	}

	return sub
}

// Notify wakes every subscriber. It never blocks and never fails; a
// subscriber with a pending wake-up simply keeps the one it has.
func (s *Signal) Notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	for sub := range s.subscribers {
		sub.notify()
	}
}

// Close shuts down the signal and closes all subscribers. Idempotent.
func (s *Signal) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	for sub := range s.subscribers {
		_ = sub.Close()
	}
	clear(s.subscribers)
	s.mu.Unlock()

	s.cleanupWg.Wait()
	return nil
}

func (s *Signal) unsubscribe(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscribers, sub)
	_ = sub.Close()
}
