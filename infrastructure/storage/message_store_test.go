package storage

import (
	"context"
	"flash-feed/contract"
	"flash-feed/domain"
	"flash-feed/errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const conversation = domain.DefaultConversation

func openInMemory(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRecord(sender, body string) domain.Record {
	return domain.Record{ID: uuid.New(), Sender: sender, Body: body, CreatedAt: time.Now().UTC()}
}

func collect(t *testing.T, stream contract.RecordStream, n int) []domain.Record {
	t.Helper()
	var res []domain.Record
	timeout := time.After(2 * time.Second)
	for len(res) < n {
		select {
		case r, ok := <-stream.Records():
			if !ok {
				t.Fatalf("stream ended after %d records: %v", len(res), stream.Err())
			}
			res = append(res, r)
		case <-timeout:
			t.Fatalf("received %d records, expected %d", len(res), n)
		}
	}
	return res
}

func TestMessageStore_Append_KeysFollowInsertionOrder(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(openInMemory(t), slog.Default(), 10)
	defer store.Close()
	ctx := context.Background()

	var keys []string
	for _, sender := range []string{"alice@example.com", "bob@example.com", "clara@example.com"} {
		key, err := store.Append(ctx, conversation, newRecord(sender, "hello"))
		req.NoError(err)
		keys = append(keys, key)
	}
	req.IsIncreasing(keys)

	records, err := store.Scan(conversation)
	req.NoError(err)
	req.Len(records, 3)
	for i, r := range records {
		req.Equal(keys[i], r.Key)
	}
	req.Equal("alice@example.com", records[0].Sender)
	req.Equal("clara@example.com", records[2].Sender)
}

func TestMessageStore_Append_IsIdempotentOnID(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(openInMemory(t), slog.Default(), 10)
	defer store.Close()
	ctx := context.Background()
	record := newRecord("a@b.com", "hi")

	first, err := store.Append(ctx, conversation, record)
	req.NoError(err)
	second, err := store.Append(ctx, conversation, record)
	req.NoError(err)

	req.Equal(first, second)
	records, err := store.Scan(conversation)
	req.NoError(err)
	req.Len(records, 1)
}

func TestMessageStore_Append_RejectsInvalidRecord(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(openInMemory(t), slog.Default(), 10)
	defer store.Close()
	ctx := context.Background()

	_, err := store.Append(ctx, conversation, domain.Record{Sender: "a@b.com", Body: "no id"})
	req.ErrorIs(err, errors.ErrInvalidRecord)

	_, err = store.Append(ctx, conversation, domain.Record{ID: uuid.New(), Body: "no sender"})
	req.ErrorIs(err, errors.ErrInvalidRecord)

	_, err = store.Append(ctx, "bad:conversation", newRecord("a@b.com", "x"))
	req.ErrorIs(err, errors.ErrInvalidRecord)
}

func TestMessageStore_Subscribe_ReplaysThenFollows(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(openInMemory(t), slog.Default(), 10)
	defer store.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.Append(ctx, conversation, newRecord("alice@example.com", "before"))
	req.NoError(err)

	stream, err := store.Subscribe(ctx, conversation)
	req.NoError(err)
	history := collect(t, stream, 1)
	req.Equal("before", history[0].Body)

	_, err = store.Append(ctx, conversation, newRecord("bob@example.com", "after"))
	req.NoError(err)
	live := collect(t, stream, 1)
	req.Equal("after", live[0].Body)
	req.Equal("bob@example.com", live[0].Sender)
}

func TestMessageStore_Subscribe_SameOrderForEverySubscriber(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(openInMemory(t), slog.Default(), 10)
	defer store.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamA, err := store.Subscribe(ctx, conversation)
	req.NoError(err)
	streamB, err := store.Subscribe(ctx, conversation)
	req.NoError(err)

	const senders, perSender = 4, 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := store.Append(ctx, conversation, newRecord(fmt.Sprintf("user%d@example.com", i), fmt.Sprint(j)))
				req.NoError(err)
			}
		}(i)
	}
	wg.Wait()

	a := collect(t, streamA, senders*perSender)
	b := collect(t, streamB, senders*perSender)
	req.Equal(a, b)
}

func TestMessageStore_Subscribe_CancelEndsStreamWithoutError(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(openInMemory(t), slog.Default(), 10)
	defer store.Close()
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := store.Subscribe(ctx, conversation)
	req.NoError(err)
	cancel()

	select {
	case _, ok := <-stream.Records():
		req.False(ok)
	case <-time.After(time.Second):
		req.Fail("stream should end once its context is canceled")
	}
	req.NoError(stream.Err())
}

func TestMessageStore_Close_DropsStreams(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(openInMemory(t), slog.Default(), 10)

	stream, err := store.Subscribe(context.Background(), conversation)
	req.NoError(err)
	req.NoError(store.Close())
	req.NoError(store.Close())

	select {
	case _, ok := <-stream.Records():
		req.False(ok)
	case <-time.After(time.Second):
		req.Fail("stream should end once the store is closed")
	}
	req.ErrorIs(stream.Err(), errors.ErrStoreClosed)
	req.NotErrorIs(stream.Err(), errors.ErrConnectionLost)
}

func TestMessageStore_Close_RefusesAppendAndSubscribe(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(openInMemory(t), slog.Default(), 10)
	ctx := context.Background()

	_, err := store.Append(ctx, conversation, newRecord("alice@example.com", "before"))
	req.NoError(err)
	req.NoError(store.Close())

	_, err = store.Append(ctx, conversation, newRecord("alice@example.com", "after"))
	req.ErrorIs(err, errors.ErrStoreClosed)
	req.ErrorIs(err, errors.ErrStoreWrite)

	_, err = store.Subscribe(ctx, conversation)
	req.ErrorIs(err, errors.ErrStoreClosed)

	records, err := store.Scan(conversation)
	req.NoError(err)
	req.Len(records, 1)
}

func TestMessageStore_Reopen_KeepsHistoryAndOrder(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	ctx := context.Background()

	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store := NewMessageStore(db, slog.Default(), 10)
	firstKey, err := store.Append(ctx, conversation, newRecord("alice@example.com", "first"))
	req.NoError(err)
	req.NoError(store.Close())
	req.NoError(db.Close())

	db, err = badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()
	store = NewMessageStore(db, slog.Default(), 10)
	defer store.Close()
	secondKey, err := store.Append(ctx, conversation, newRecord("bob@example.com", "second"))
	req.NoError(err)

	req.Less(firstKey, secondKey)
	records, err := store.Scan(conversation)
	req.NoError(err)
	req.Len(records, 2)
	req.Equal("first", records[0].Body)
	req.Equal("second", records[1].Body)
}

func TestMessageStore_Conversations_AreIsolated(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(openInMemory(t), slog.Default(), 10)
	defer store.Close()
	ctx := context.Background()

	_, err := store.Append(ctx, "general", newRecord("alice@example.com", "in general"))
	req.NoError(err)
	_, err = store.Append(ctx, "general2", newRecord("bob@example.com", "in general2"))
	req.NoError(err)

	records, err := store.Scan("general")
	req.NoError(err)
	req.Len(records, 1)
	req.Equal("in general", records[0].Body)
}
