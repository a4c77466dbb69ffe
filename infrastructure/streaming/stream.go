// Package streaming provides the RecordStream shared by every MessageStore.
package streaming

import (
	"context"
	"flash-feed/domain"
	"sync"
)

// Stream is written by exactly one producer goroutine and read by one consumer.
type Stream struct {
	records chan domain.Record
	once    sync.Once
	mu      sync.Mutex
	err     error
}

func NewStream(bufferSize int) *Stream {
	return &Stream{records: make(chan domain.Record, bufferSize)}
}

func (s *Stream) Records() <-chan domain.Record {
	return s.records
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Push hands a record to the consumer.
// It returns false when ctx is done before the consumer accepted it.
func (s *Stream) Push(ctx context.Context, record domain.Record) bool {
	select {
	case s.records <- record:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish ends the stream. Only the first call has an effect.
func (s *Stream) Finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.records)
	})
}
