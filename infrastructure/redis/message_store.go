// Package redis implements the MessageStore on top of Redis Streams.
package redis

import (
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
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	backendName      = "redis"
	DefaultPrefix    = "flashfeed:"
	defaultReadBatch = 500
	defaultBlock     = 2 * time.Second
)

// appendScript adds the entry unless its message ID was already appended.
// KEYS[1] stream, KEYS[2] idempotency key. Returns the stream entry ID.
var appendScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[2])
if existing then
	return existing
end
local id = redis.call('XADD', KEYS[1], '*',
	'id', ARGV[1], 'sender', ARGV[2], 'body', ARGV[3], 'created_at', ARGV[4])
redis.call('SET', KEYS[2], id, 'NX')
return id
`)

type MessageStore struct {
	client     redis.UniversalClient
	log        *slog.Logger
	prefix     string
	bufferSize int
	readBatch  int64
	block      time.Duration
}

func NewMessageStore(client redis.UniversalClient, log *slog.Logger, prefix string, bufferSize int) *MessageStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &MessageStore{
		client:     client,
		log:        log,
		prefix:     prefix,
		bufferSize: bufferSize,
		readBatch:  defaultReadBatch,
		block:      defaultBlock,
	}
}

// The conversation is the hash tag of every key it owns, so that the append script
// only touches one cluster slot.
func (s *MessageStore) streamKey(conversation domain.ConversationID) string {
	return fmt.Sprintf("%s{%s}", s.prefix, conversation)
}

func (s *MessageStore) idempotencyKey(conversation domain.ConversationID, id uuid.UUID) string {
	return fmt.Sprintf("%s{%s}:idem:%s", s.prefix, conversation, id)
}

// Ping verifies the connection to Redis.
func (s *MessageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Append adds the record to the conversation stream. The stream entry ID is the key.
func (s *MessageStore) Append(ctx context.Context, conversation domain.ConversationID, record domain.Record) (string, error) {
	if err := validateRecord(conversation, record); err != nil {
		return "", err
	}
	keys := []string{s.streamKey(conversation), s.idempotencyKey(conversation, record.ID)}
	values := toValues(record)
	key, err := appendScript.Run(ctx, s.client, keys,
		values[codec.FieldID], values[codec.FieldSender], values[codec.FieldBody], values[codec.FieldCreatedAt]).Text()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		observability.StoreAppends.WithLabelValues(backendName, "error").Inc()
		return "", fmt.Errorf("%w: %w", errors.ErrStoreWrite, err)
	}
	observability.StoreAppends.WithLabelValues(backendName, "ok").Inc()
	s.log.Debug("Record appended", "conversation", conversation, "id", record.ID, "key", key)
	return key, nil
}

// Subscribe reads the conversation stream from its first entry, then blocks for new ones.
func (s *MessageStore) Subscribe(ctx context.Context, conversation domain.ConversationID) (contract.RecordStream, error) {
	if !conversation.Valid() {
		return nil, fmt.Errorf("%w: conversation %q", errors.ErrInvalidRecord, conversation)
	}
	stream := streaming.NewStream(s.bufferSize)
	go s.read(ctx, conversation, stream)
	return stream, nil
}

func (s *MessageStore) read(ctx context.Context, conversation domain.ConversationID, stream *streaming.Stream) {
	observability.StoreStreams.WithLabelValues(backendName).Inc()
	defer observability.StoreStreams.WithLabelValues(backendName).Dec()

	key := s.streamKey(conversation)
	last := "0"
	for {
		if ctx.Err() != nil {
			stream.Finish(nil)
			return
		}
		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, last},
			Count:   s.readBatch,
			Block:   s.block,
		}).Result()
		if stderrors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				stream.Finish(nil)
				return
			}
			s.log.Error("Reading stream failed", "conversation", conversation, "error", err)
			stream.Finish(fmt.Errorf("%w: %w", errors.ErrConnectionLost, err))
			return
		}
		for _, xs := range res {
			for _, entry := range xs.Messages {
				record, err := fromXMessage(entry)
				if err != nil {
					s.log.Warn("Skipping malformed entry", "conversation", conversation, "key", entry.ID, "error", err)
					last = entry.ID
					continue
				}
				if !stream.Push(ctx, record) {
					stream.Finish(nil)
					return
				}
				last = entry.ID
			}
		}
	}
}

func toValues(record domain.Record) map[string]interface{} {
	return map[string]interface{}{
		codec.FieldID:        record.ID.String(),
		codec.FieldSender:    record.Sender,
		codec.FieldBody:      record.Body,
		codec.FieldCreatedAt: record.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromXMessage(entry redis.XMessage) (domain.Record, error) {
	field := func(name string) string {
		v, _ := entry.Values[name].(string)
		return v
	}
	id, err := uuid.Parse(field(codec.FieldID))
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: id: %w", errors.ErrInvalidRecord, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, field(codec.FieldCreatedAt))
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: created_at: %w", errors.ErrInvalidRecord, err)
	}
	return domain.Record{
		Key:       entry.ID,
		ID:        id,
		Sender:    field(codec.FieldSender),
		Body:      field(codec.FieldBody),
		CreatedAt: createdAt,
	}, nil
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
