package feed_test

import (
	"context"
	stderrors "errors"
	"flash-feed/domain"
	"flash-feed/errors"
	"flash-feed/feed"
	"flash-feed/infrastructure/storage"
	"flash-feed/infrastructure/streaming"
	"flash-feed/mocks"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const conversation = domain.DefaultConversation

type staticIdentity struct {
	mu       sync.Mutex
	identity domain.Identity
	loggedIn bool
}

func loggedIn(email string) *staticIdentity {
	return &staticIdentity{identity: domain.Identity{UserID: uuid.NewString(), Email: email}, loggedIn: true}
}

func (s *staticIdentity) CurrentUser() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.loggedIn
}

func (s *staticIdentity) logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
}

func newBadgerStore(t *testing.T) *storage.MessageStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	store := storage.NewMessageStore(db, slog.Default(), 16)
	t.Cleanup(func() {
		_ = store.Close()
		_ = db.Close()
	})
	return store
}

func receive(t *testing.T, sub *feed.Subscription, n int) []domain.Message {
	t.Helper()
	var res []domain.Message
	timeout := time.After(2 * time.Second)
	for len(res) < n {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				t.Fatalf("subscription ended after %d messages: %v", len(res), sub.Err())
			}
			res = append(res, msg)
		case <-timeout:
			t.Fatalf("received %d messages, expected %d", len(res), n)
		}
	}
	return res
}

func requireSilent(t *testing.T, sub *feed.Subscription) {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if ok {
			t.Fatalf("unexpected message %q from %s", msg.Body, msg.Sender)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func bodies(messages []domain.Message) []string {
	res := make([]string, 0, len(messages))
	for _, m := range messages {
		res = append(res, m.Body)
	}
	return res
}

func TestMessageFeed_Send_RoundTrip(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()
	f := feed.New(store, loggedIn("a@b.com"), conversation)

	sub, err := f.Subscribe(ctx)
	req.NoError(err)
	defer sub.Close()

	req.NoError(f.Send(ctx, "hi"))

	msg := receive(t, sub, 1)[0]
	req.Equal("a@b.com", msg.Sender)
	req.Equal("hi", msg.Body)
	req.NotEmpty(msg.Key)
	req.NotEqual(uuid.Nil, msg.ID)
	req.True(f.IsOwn(msg))
	req.Equal([]domain.Message{msg}, f.Messages())
}

func TestMessageFeed_Subscribers_ConvergeOnSameOrder(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()

	users := []string{"alice@example.com", "bob@example.com", "clara@example.com"}
	feeds := make([]*feed.MessageFeed, len(users))
	subs := make([]*feed.Subscription, len(users))
	for i, user := range users {
		feeds[i] = feed.New(store, loggedIn(user), conversation)
		sub, err := feeds[i].Subscribe(ctx)
		req.NoError(err)
		defer sub.Close()
		subs[i] = sub
	}

	const perUser = 5
	var wg sync.WaitGroup
	for i := range feeds {
		wg.Add(1)
		go func(f *feed.MessageFeed) {
			defer wg.Done()
			for j := 0; j < perUser; j++ {
				req.NoError(f.Send(ctx, fmt.Sprintf("message %d", j)))
			}
		}(feeds[i])
	}
	wg.Wait()

	expected := receive(t, subs[0], len(users)*perUser)
	for _, sub := range subs[1:] {
		req.Equal(expected, receive(t, sub, len(users)*perUser))
	}
	for _, f := range feeds {
		req.Equal(expected, f.Messages())
	}
}

func TestMessageFeed_Subscribe_ReplaysHistoryToLateSubscriber(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()

	sender := feed.New(store, loggedIn("x@x.com"), conversation)
	req.NoError(sender.Send(ctx, "hello"))

	// Given a user that was not subscribed when the message was saved
	late := feed.New(store, loggedIn("late@example.com"), conversation)
	sub, err := late.Subscribe(ctx)
	req.NoError(err)
	defer sub.Close()

	msg := receive(t, sub, 1)[0]
	req.Equal("x@x.com", msg.Sender)
	req.Equal("hello", msg.Body)
	req.False(late.IsOwn(msg))
}

func TestMessageFeed_Resubscribe_ReplaysWithoutDuplicates(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()
	f := feed.New(store, loggedIn("x@x.com"), conversation)

	first, err := f.Subscribe(ctx)
	req.NoError(err)
	req.NoError(f.Send(ctx, "one"))
	req.NoError(f.Send(ctx, "two"))
	receive(t, first, 2)

	_, err = f.Subscribe(ctx)
	req.ErrorIs(err, errors.ErrAlreadySubscribed)

	first.Close()
	first.Close()
	req.True(first.Released())

	second, err := f.Subscribe(ctx)
	req.NoError(err)
	defer second.Close()
	req.Equal([]string{"one", "two"}, bodies(receive(t, second, 2)))
	requireSilent(t, second)
	req.Len(f.Messages(), 2)
}

func TestMessageFeed_Close_StopsDelivery(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()
	f := feed.New(store, loggedIn("x@x.com"), conversation)

	sub, err := f.Subscribe(ctx)
	req.NoError(err)
	sub.Close()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		req.Fail("delivery should stop after Close")
	}
	req.NoError(sub.Err())

	req.NoError(f.Send(ctx, "after close"))
	for range sub.Messages() {
		req.Fail("no message expected after Close")
	}
}

func TestMessageFeed_Listen_InvokesCallbackInOrder(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()
	f := feed.New(store, loggedIn("x@x.com"), conversation)

	received := make(chan domain.Message, 10)
	sub, err := f.Listen(ctx, func(msg domain.Message) { received <- msg })
	req.NoError(err)
	defer sub.Close()

	req.NoError(f.Send(ctx, "first"))
	req.NoError(f.Send(ctx, "second"))

	var got []string
	for len(got) < 2 {
		select {
		case msg := <-received:
			got = append(got, msg.Body)
		case <-time.After(2 * time.Second):
			req.FailNow("callback not invoked")
		}
	}
	req.Equal([]string{"first", "second"}, got)
}

func TestMessageFeed_SendDraft_IsIdempotent(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()
	f := feed.New(store, loggedIn("x@x.com"), conversation)

	draft := domain.NewDraft("retry me")
	req.NoError(f.SendDraft(ctx, draft))
	req.NoError(f.SendDraft(ctx, draft))

	sub, err := f.Subscribe(ctx)
	req.NoError(err)
	defer sub.Close()
	msg := receive(t, sub, 1)[0]
	req.Equal(draft.ID, msg.ID)
	requireSilent(t, sub)
}

func TestMessageFeed_Send_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	ctx := context.Background()

	t.Run("should refuse to send without a logged in user", func(t *testing.T) {
		identity := loggedIn("x@x.com")
		identity.logout()
		f := feed.New(store, identity, conversation)

		require.ErrorIs(t, f.Send(ctx, "hello"), errors.ErrNotAuthenticated)
	})

	t.Run("should refuse a blank body", func(t *testing.T) {
		f := feed.New(store, loggedIn("x@x.com"), conversation)

		require.ErrorIs(t, f.Send(ctx, ""), errors.ErrEmptyBody)
		require.ErrorIs(t, f.Send(ctx, "  \n\t"), errors.ErrEmptyBody)
	})

	t.Run("should refuse a body over the limit", func(t *testing.T) {
		f := feed.New(store, loggedIn("x@x.com"), conversation, feed.WithMaxBodyLength(5))

		require.ErrorIs(t, f.Send(ctx, strings.Repeat("a", 6)), errors.ErrBodyTooLong)
	})
}

func TestMessageFeed_Send_StoreFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	ctx := context.Background()
	f := feed.New(store, loggedIn("x@x.com"), conversation)

	stream := streaming.NewStream(1)
	defer stream.Finish(nil)
	store.EXPECT().Subscribe(gomock.Any(), conversation).Return(stream, nil)
	store.EXPECT().
		Append(gomock.Any(), conversation, gomock.Any()).
		Return("", stderrors.New("disk full"))

	sub, err := f.Subscribe(ctx)
	req.NoError(err)
	defer sub.Close()

	err = f.Send(ctx, "lost")
	req.ErrorIs(err, errors.ErrStoreWrite)
	req.ErrorContains(err, "disk full")
	requireSilent(t, sub)
	req.Empty(f.Messages())
}

func TestMessageFeed_Send_TimesOutOnUnresponsiveStore(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	f := feed.New(store, loggedIn("x@x.com"), conversation, feed.WithSendTimeout(50*time.Millisecond))

	release := make(chan struct{})
	defer close(release)
	// The store ignores its context on purpose
	store.EXPECT().
		Append(gomock.Any(), conversation, gomock.Any()).
		DoAndReturn(func(context.Context, domain.ConversationID, domain.Record) (string, error) {
			<-release
			return "", nil
		})

	start := time.Now()
	err := f.Send(context.Background(), "slow")

	req.ErrorIs(err, errors.ErrSendTimeout)
	req.Less(time.Since(start), time.Second)
}

func TestMessageFeed_Send_CanceledByCaller(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	f := feed.New(store, loggedIn("x@x.com"), conversation)

	ctx, cancel := context.WithCancel(context.Background())
	store.EXPECT().
		Append(gomock.Any(), conversation, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.ConversationID, _ domain.Record) (string, error) {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		})

	err := f.Send(ctx, "never mind")

	req.ErrorIs(err, context.Canceled)
	req.NotErrorIs(err, errors.ErrStoreWrite)
}

func TestMessageFeed_Subscribe_ResubscribesAfterConnectionLost(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	f := feed.New(store, loggedIn("x@x.com"), conversation, feed.WithResubscribeInterval(10*time.Millisecond))
	ctx := context.Background()

	records := []domain.Record{
		{Key: "msg:Messages:01", ID: uuid.New(), Sender: "a@b.com", Body: "one"},
		{Key: "msg:Messages:02", ID: uuid.New(), Sender: "a@b.com", Body: "two"},
		{Key: "msg:Messages:03", ID: uuid.New(), Sender: "a@b.com", Body: "three"},
	}

	// Given a first stream that breaks after two records
	lost := streaming.NewStream(len(records))
	lost.Push(ctx, records[0])
	lost.Push(ctx, records[1])
	lost.Finish(fmt.Errorf("%w: broken pipe", errors.ErrConnectionLost))

	// And a second stream replaying the full history
	replay := streaming.NewStream(len(records))
	for _, r := range records {
		replay.Push(ctx, r)
	}
	defer replay.Finish(nil)

	gomock.InOrder(
		store.EXPECT().Subscribe(gomock.Any(), conversation).Return(lost, nil),
		store.EXPECT().Subscribe(gomock.Any(), conversation).Return(replay, nil),
	)

	sub, err := f.Subscribe(ctx)
	req.NoError(err)
	defer sub.Close()

	req.Equal([]string{"one", "two", "three"}, bodies(receive(t, sub, 3)))
	requireSilent(t, sub)
	req.Len(f.Messages(), 3)
}

func TestMessageFeed_Subscribe_FailsWhenStoreIsUnreachable(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	f := feed.New(store, loggedIn("x@x.com"), conversation)

	store.EXPECT().
		Subscribe(gomock.Any(), conversation).
		Return(nil, stderrors.New("connection refused"))

	_, err := f.Subscribe(context.Background())
	req.ErrorIs(err, errors.ErrConnectionLost)

	// A failed attempt does not hold the subscription slot
	stream := streaming.NewStream(1)
	defer stream.Finish(nil)
	store.EXPECT().Subscribe(gomock.Any(), conversation).Return(stream, nil)
	sub, err := f.Subscribe(context.Background())
	req.NoError(err)
	sub.Close()
}

func TestMessageFeed_Subscribe_EndsWithStoreError(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	f := feed.New(store, loggedIn("x@x.com"), conversation)

	stream := streaming.NewStream(1)
	stream.Finish(errors.ErrInvalidRecord)
	store.EXPECT().Subscribe(gomock.Any(), conversation).Return(stream, nil)

	sub, err := f.Subscribe(context.Background())
	req.NoError(err)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		req.FailNow("subscription should end on a non recoverable error")
	}
	req.ErrorIs(sub.Err(), errors.ErrInvalidRecord)
	req.True(sub.Released())
}

func TestMessageFeed_Subscribe_EndsWhenStoreCloses(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()
	f := feed.New(store, loggedIn("x@x.com"), conversation, feed.WithResubscribeInterval(5*time.Millisecond))

	sub, err := f.Subscribe(ctx)
	req.NoError(err)
	req.NoError(f.Send(ctx, "last words"))
	req.Equal("last words", receive(t, sub, 1)[0].Body)

	req.NoError(store.Close())

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		req.FailNow("subscription should end once the store is closed")
	}
	req.ErrorIs(sub.Err(), errors.ErrStoreClosed)
	req.NotErrorIs(sub.Err(), errors.ErrConnectionLost)

	_, err = f.Subscribe(ctx)
	req.ErrorIs(err, errors.ErrStoreClosed)
	req.NotErrorIs(err, errors.ErrConnectionLost)

	err = f.Send(ctx, "too late")
	req.ErrorIs(err, errors.ErrStoreWrite)
	req.ErrorIs(err, errors.ErrStoreClosed)
}

func TestMessageFeed_Subscribe_KeepsAuthenticationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	f := feed.New(store, loggedIn("x@x.com"), conversation, feed.WithResubscribeInterval(5*time.Millisecond))
	ctx := context.Background()

	t.Run("should not report a refused first subscription as a lost connection", func(t *testing.T) {
		store.EXPECT().Subscribe(gomock.Any(), conversation).Return(nil, errors.ErrNotAuthenticated)

		_, err := f.Subscribe(ctx)

		require.ErrorIs(t, err, errors.ErrNotAuthenticated)
		require.NotErrorIs(t, err, errors.ErrConnectionLost)
	})

	t.Run("should end the subscription when resubscribing is refused", func(t *testing.T) {
		lost := streaming.NewStream(1)
		lost.Finish(fmt.Errorf("%w: broken pipe", errors.ErrConnectionLost))
		gomock.InOrder(
			store.EXPECT().Subscribe(gomock.Any(), conversation).Return(lost, nil),
			store.EXPECT().Subscribe(gomock.Any(), conversation).Return(nil, errors.ErrNotAuthenticated),
		)

		sub, err := f.Subscribe(ctx)
		require.NoError(t, err)

		select {
		case <-sub.Done():
		case <-time.After(time.Second):
			require.FailNow(t, "subscription should end when the store refuses the caller")
		}
		require.ErrorIs(t, sub.Err(), errors.ErrNotAuthenticated)
		require.NotErrorIs(t, sub.Err(), errors.ErrConnectionLost)
	})
}

func TestMessageFeed_Send_NonPositiveTimeoutKeepsDefault(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()
	f := feed.New(store, loggedIn("x@x.com"), conversation, feed.WithSendTimeout(0))

	req.NoError(f.Send(ctx, "still delivered"))

	f = feed.New(store, loggedIn("x@x.com"), conversation, feed.WithSendTimeout(-time.Second))
	req.NoError(f.Send(ctx, "also delivered"))
}

func TestMessageFeed_Send_LimitCountsCharacters(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t)
	ctx := context.Background()
	f := feed.New(store, loggedIn("x@x.com"), conversation, feed.WithMaxBodyLength(5))

	req.NoError(f.Send(ctx, "héllo"))
	req.ErrorIs(f.Send(ctx, "héllo!"), errors.ErrBodyTooLong)
	req.NotErrorIs(f.Send(ctx, "héllo!"), errors.ErrEmptyBody)
}
