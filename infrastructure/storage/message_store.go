package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"flash-feed/contract"
	"flash-feed/domain"
	"flash-feed/errors"
	"flash-feed/infrastructure/codec"
	"flash-feed/infrastructure/streaming"
	"flash-feed/observability"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	backendName      = "badger"
	sequenceLease    = 100
	defaultReadBatch = 500
)

// MessageStore is a MessageStore backed by BadgerDB.
//
// Keys are formatted as "msg:{conversation}:{sequence padded to 20 digits}" so that a
// prefix scan returns records in insertion order. Sequence allocation and the write
// happen under one mutex, commit order is therefore sequence order and a tailing
// reader never skips a record.
type MessageStore struct {
	db         *badger.DB
	log        *slog.Logger
	bufferSize int
	readBatch  int

	mu        sync.Mutex
	sequences map[domain.ConversationID]*badger.Sequence

	watchMu  sync.Mutex
	watchers map[domain.ConversationID]chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func NewMessageStore(db *badger.DB, log *slog.Logger, bufferSize int) *MessageStore {
	return &MessageStore{
		db:         db,
		log:        log,
		bufferSize: bufferSize,
		readBatch:  defaultReadBatch,
		sequences:  make(map[domain.ConversationID]*badger.Sequence),
		watchers:   make(map[domain.ConversationID]chan struct{}),
		closed:     make(chan struct{}),
	}
}

func messagePrefix(conversation domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversation))
}

func messageKey(conversation domain.ConversationID, seq uint64) string {
	return fmt.Sprintf("msg:%s:%020d", conversation, seq)
}

func idempotencyKey(conversation domain.ConversationID, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idem:%s:%s", conversation, id))
}

func sequenceKey(conversation domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("seq:%s", conversation))
}

// Append stores the record under the next key of the conversation.
// A record whose ID was already appended is not stored again, the original key is returned.
func (s *MessageStore) Append(ctx context.Context, conversation domain.ConversationID, record domain.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateRecord(conversation, record); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return "", fmt.Errorf("%w: %w", errors.ErrStoreWrite, errors.ErrStoreClosed)
	}

	key, duplicate, err := s.write(conversation, record)
	if err != nil {
		observability.StoreAppends.WithLabelValues(backendName, "error").Inc()
		return "", fmt.Errorf("%w: %w", errors.ErrStoreWrite, err)
	}
	if duplicate {
		observability.StoreAppends.WithLabelValues(backendName, "duplicate").Inc()
		s.log.Debug("Duplicate append ignored", "conversation", conversation, "id", record.ID, "key", key)
		return key, nil
	}
	observability.StoreAppends.WithLabelValues(backendName, "ok").Inc()
	s.signal(conversation)
	return key, nil
}

func (s *MessageStore) write(conversation domain.ConversationID, record domain.Record) (string, bool, error) {
	idem := idempotencyKey(conversation, record.ID)
	var existing string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idem)
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			existing = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	if existing != "" {
		return existing, true, nil
	}

	seq, err := s.sequence(conversation)
	if err != nil {
		return "", false, err
	}
	next, err := seq.Next()
	if err != nil {
		return "", false, err
	}

	record.Key = messageKey(conversation, next+1)
	value, err := codec.MarshalRecord(record)
	if err != nil {
		return "", false, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(record.Key), value); err != nil {
			return err
		}
		return txn.Set(idem, []byte(record.Key))
	})
	if err != nil {
		return "", false, err
	}
	return record.Key, false, nil
}

// sequence must be called with s.mu held.
func (s *MessageStore) sequence(conversation domain.ConversationID) (*badger.Sequence, error) {
	if seq, ok := s.sequences[conversation]; ok {
		return seq, nil
	}
	seq, err := s.db.GetSequence(sequenceKey(conversation), sequenceLease)
	if err != nil {
		return nil, err
	}
	s.sequences[conversation] = seq
	return seq, nil
}

// Subscribe replays the conversation from its first record, then follows new appends.
func (s *MessageStore) Subscribe(ctx context.Context, conversation domain.ConversationID) (contract.RecordStream, error) {
	if !conversation.Valid() {
		return nil, fmt.Errorf("%w: conversation %q", errors.ErrInvalidRecord, conversation)
	}
	if s.isClosed() {
		return nil, errors.ErrStoreClosed
	}
	stream := streaming.NewStream(s.bufferSize)
	go s.tail(ctx, conversation, stream)
	return stream, nil
}

func (s *MessageStore) tail(ctx context.Context, conversation domain.ConversationID, stream *streaming.Stream) {
	observability.StoreStreams.WithLabelValues(backendName).Inc()
	defer observability.StoreStreams.WithLabelValues(backendName).Dec()

	var last []byte
	for {
		// Taken before reading so that an append landing between the read and the wait is not missed.
		wait := s.watch(conversation)
		records, more, err := s.readAfter(conversation, last, s.readBatch)
		if err != nil {
			if ctx.Err() != nil {
				stream.Finish(nil)
				return
			}
			if s.isClosed() {
				stream.Finish(errors.ErrStoreClosed)
				return
			}
			s.log.Error("Tailing conversation failed", "conversation", conversation, "error", err)
			stream.Finish(fmt.Errorf("%w: %w", errors.ErrConnectionLost, err))
			return
		}
		for _, record := range records {
			if !stream.Push(ctx, record) {
				stream.Finish(nil)
				return
			}
			last = []byte(record.Key)
		}
		if more {
			continue
		}

		select {
		case <-ctx.Done():
			stream.Finish(nil)
			return
		case <-s.closed:
			stream.Finish(errors.ErrStoreClosed)
			return
		case <-wait:
		}
	}
}

// readAfter returns at most limit records stored after the key last, in key order.
// A nil last starts from the beginning, a limit <= 0 means no limit.
func (s *MessageStore) readAfter(conversation domain.ConversationID, last []byte, limit int) ([]domain.Record, bool, error) {
	var records []domain.Record
	more := false
	prefix := messagePrefix(conversation)

	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		seek := prefix
		if last != nil {
			seek = last
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if last != nil && bytes.Equal(item.Key(), last) {
				continue
			}
			if limit > 0 && len(records) == limit {
				more = true
				break
			}
			err := item.Value(func(val []byte) error {
				record, err := codec.UnmarshalRecord(val)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return records, more, nil
}

// Scan returns the whole conversation in store order.
func (s *MessageStore) Scan(conversation domain.ConversationID) ([]domain.Record, error) {
	records, _, err := s.readAfter(conversation, nil, 0)
	return records, err
}

func (s *MessageStore) watch(conversation domain.ConversationID) <-chan struct{} {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	ch, ok := s.watchers[conversation]
	if !ok {
		ch = make(chan struct{})
		s.watchers[conversation] = ch
	}
	return ch
}

// signal wakes every tail waiting on the conversation.
func (s *MessageStore) signal(conversation domain.ConversationID) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if ch, ok := s.watchers[conversation]; ok {
		close(ch)
		delete(s.watchers, conversation)
	}
}

func (s *MessageStore) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close ends every open subscription with ErrStoreClosed and releases the leased sequences.
// Appends and subscriptions are refused afterwards. The badger DB itself belongs to the caller.
func (s *MessageStore) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		defer s.mu.Unlock()
		for conversation, seq := range s.sequences {
			if err := seq.Release(); err != nil {
				errs = append(errs, fmt.Errorf("release sequence %s: %w", conversation, err))
			}
		}
		s.sequences = make(map[domain.ConversationID]*badger.Sequence)
	})
	return stderrors.Join(errs...)
}

func validateRecord(conversation domain.ConversationID, record domain.Record) error {
	switch {
	case !conversation.Valid():
		return fmt.Errorf("%w: conversation %q", errors.ErrInvalidRecord, conversation)
	case record.ID == uuid.Nil:
		return fmt.Errorf("%w: missing id", errors.ErrInvalidRecord)
	case record.Sender == "":
		return fmt.Errorf("%w: missing sender", errors.ErrInvalidRecord)
	}
	return nil
}
