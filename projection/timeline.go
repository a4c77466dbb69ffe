// Package projection builds local timelines from observed messages.
// Handles ordering and deduplication.
// Does not emit events or interact with UI directly.
package projection

import (
	"flash-feed/domain"
	"sync"
)

// Timeline is an append-only local view of a conversation.
// Order is the order in which messages were appended, which is the store order
// when the only writer is a subscription.
type Timeline struct {
	mu       sync.RWMutex
	messages []domain.Message
	keys     map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{keys: make(map[string]struct{})}
}

// Append adds the message unless a message with the same store key was already seen.
// It reports whether the message was added.
func (t *Timeline) Append(message domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.keys[message.Key]; ok {
		return false
	}
	t.keys[message.Key] = struct{}{}
	t.messages = append(t.messages, message)
	return true
}

// Messages returns a copy, callers may keep it.
func (t *Timeline) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make([]domain.Message, len(t.messages))
	copy(res, t.messages)
	return res
}
