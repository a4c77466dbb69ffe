//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"flash-feed/domain"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// MessageStore is the append-only, order-preserving realtime store behind a feed.
// Append assigns a unique key and is idempotent on Record.ID.
// Subscribe replays the full history, then live records, in a single global order.
// Cancelling ctx releases the subscription.
type MessageStore interface {
	Append(ctx context.Context, conversation domain.ConversationID, record domain.Record) (string, error)
	Subscribe(ctx context.Context, conversation domain.ConversationID) (RecordStream, error)
}

// RecordStream is a live subscription on a MessageStore.
// Records is closed once the stream ends. Err is nil when the stream was
// released by its context and wraps errors.ErrConnectionLost when the store dropped it.
type RecordStream interface {
	Records() <-chan domain.Record
	Err() error
}

// Identity supplies the sender stamped on outgoing messages.
type Identity interface {
	CurrentUser() (domain.Identity, bool)
}
