// Package domain contains core concepts of the feed.
// This file defines Message values and the records stores exchange.
// Messages are immutable once created.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultConversation is the single shared conversation of the chat screen.
const DefaultConversation ConversationID = "Messages"

type ConversationID string

func (c ConversationID) String() string {
	return string(c)
}

// Message represents an immutable chat message as observed through a subscription.
type Message struct {
	ID        uuid.UUID // client-generated, used for idempotent appends
	Key       string    // store-generated
	Sender    string
	Body      string
	CreatedAt time.Time
}

// Record is the store representation of a Message.
type Record struct {
	Key       string
	ID        uuid.UUID
	Sender    string
	Body      string
	CreatedAt time.Time
}

func (r Record) ToMessage() Message {
	return Message{
		ID:        r.ID,
		Key:       r.Key,
		Sender:    r.Sender,
		Body:      r.Body,
		CreatedAt: r.CreatedAt,
	}
}

// Draft is a message that has not been acknowledged by the store yet.
// Submitting the same Draft twice never creates two records.
type Draft struct {
	ID   uuid.UUID
	Body string
}

func NewDraft(body string) Draft {
	return Draft{ID: uuid.New(), Body: body}
}

// Valid reports whether c can be used as a storage namespace.
func (c ConversationID) Valid() bool {
	return c != "" && !strings.ContainsAny(string(c), ":{} \t\n")
}
