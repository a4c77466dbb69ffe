package feed

import (
	"context"
	"flash-feed/domain"
	"sync"
	"sync/atomic"
)

// Subscription is the handle of a feed subscription.
// Messages is closed once delivery has stopped.
type Subscription struct {
	messages chan domain.Message
	cancel   context.CancelFunc
	released atomic.Bool
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	err      error
}

func newSubscription(cancel context.CancelFunc, bufferSize int) *Subscription {
	return &Subscription{
		messages: make(chan domain.Message, bufferSize),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (s *Subscription) Messages() <-chan domain.Message {
	return s.messages
}

// Close releases the subscription. Calling it more than once is a no-op.
// Messages already buffered may still be read from Messages.
func (s *Subscription) Close() {
	s.released.Store(true)
	s.cancel()
}

// Released reports whether Close was called or delivery has stopped.
func (s *Subscription) Released() bool {
	if s.released.Load() {
		return true
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when delivery has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err is the reason delivery stopped, nil after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.messages)
		close(s.done)
	})
}
