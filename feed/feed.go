// Package feed implements the append-only realtime message feed of a conversation.
//
// A MessageFeed mediates between a presentation layer and a MessageStore.
// Its local cache is built only from what the store delivers: a sender sees its
// own message when the store echoes it back, like every other subscriber.
package feed

import (
	"context"
	stderrors "errors"
	"flash-feed/contract"
	"flash-feed/domain"
	"flash-feed/errors"
	"flash-feed/observability"
	"flash-feed/projection"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultSendTimeout         = 5 * time.Second
	DefaultResubscribeInterval = time.Second
	DefaultMaxBodyLength       = 4096
	DefaultBufferSize          = 64
)

var validate = validator.New()

type MessageFeed struct {
	store               contract.MessageStore
	identity            contract.Identity
	conversation        domain.ConversationID
	log                 *slog.Logger
	sendTimeout         time.Duration
	resubscribeInterval time.Duration
	maxBodyLength       int
	bufferSize          int

	mu       sync.Mutex
	timeline *projection.Timeline
	active   *Subscription
}

type Option func(*MessageFeed)

func WithLogger(log *slog.Logger) Option {
	return func(f *MessageFeed) { f.log = log }
}

// WithSendTimeout bounds every send. A timeout <= 0 keeps DefaultSendTimeout.
func WithSendTimeout(timeout time.Duration) Option {
	return func(f *MessageFeed) {
		if timeout > 0 {
			f.sendTimeout = timeout
		}
	}
}

// WithResubscribeInterval sets the pause before a lost stream is re-opened.
// An interval <= 0 keeps DefaultResubscribeInterval.
func WithResubscribeInterval(interval time.Duration) Option {
	return func(f *MessageFeed) {
		if interval > 0 {
			f.resubscribeInterval = interval
		}
	}
}

func WithMaxBodyLength(length int) Option {
	return func(f *MessageFeed) { f.maxBodyLength = length }
}

func WithBufferSize(size int) Option {
	return func(f *MessageFeed) {
		if size >= 0 {
			f.bufferSize = size
		}
	}
}

func New(store contract.MessageStore, identity contract.Identity,
	conversation domain.ConversationID, opts ...Option) *MessageFeed {
	f := &MessageFeed{
		store:               store,
		identity:            identity,
		conversation:        conversation,
		log:                 slog.Default(),
		sendTimeout:         DefaultSendTimeout,
		resubscribeInterval: DefaultResubscribeInterval,
		maxBodyLength:       DefaultMaxBodyLength,
		bufferSize:          DefaultBufferSize,
		timeline:            projection.NewTimeline(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Send submits body as a new message from the current user.
func (f *MessageFeed) Send(ctx context.Context, body string) error {
	return f.SendDraft(ctx, domain.NewDraft(body))
}

// SendDraft submits the draft exactly once, without retry.
// Submitting a draft that already reached the store does not create a second message,
// which makes re-sending the same draft the safe way to retry after a failure.
// Errors: ErrNotAuthenticated, ErrEmptyBody, ErrBodyTooLong, ErrStoreWrite, ErrSendTimeout,
// or the caller's context error.
func (f *MessageFeed) SendDraft(ctx context.Context, draft domain.Draft) error {
	user, ok := f.identity.CurrentUser()
	if !ok {
		observability.SendFailures.WithLabelValues("unauthenticated").Inc()
		return errors.ErrNotAuthenticated
	}
	if err := f.validate(draft); err != nil {
		observability.SendFailures.WithLabelValues("invalid").Inc()
		return err
	}

	record := domain.Record{
		ID:        draft.ID,
		Sender:    user.Name(),
		Body:      draft.Body,
		CreatedAt: time.Now().UTC(),
	}

	start := time.Now()
	key, err := f.append(ctx, record)
	if err != nil {
		f.log.Warn("Send failed",
			"conversation", f.conversation,
			"message_id", draft.ID,
			"error", err)
		return err
	}
	observability.MessagesSent.Inc()
	observability.SendDuration.Observe(time.Since(start).Seconds())
	f.log.Debug("Message saved", "conversation", f.conversation, "message_id", draft.ID, "key", key)
	return nil
}

type appendResult struct {
	key string
	err error
}

// append bounds the store call with sendTimeout even when the store ignores its context.
func (f *MessageFeed) append(ctx context.Context, record domain.Record) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, f.sendTimeout)
	defer cancel()

	result := make(chan appendResult, 1)
	go func() {
		key, err := f.store.Append(sendCtx, f.conversation, record)
		result <- appendResult{key: key, err: err}
	}()

	select {
	case res := <-result:
		if res.err == nil {
			return res.key, nil
		}
		return "", f.sendError(ctx, sendCtx, res.err)
	case <-sendCtx.Done():
		return "", f.sendError(ctx, sendCtx, sendCtx.Err())
	}
}

func (f *MessageFeed) sendError(parent, sendCtx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		observability.SendFailures.WithLabelValues("canceled").Inc()
		return fmt.Errorf("send aborted: %w", parent.Err())
	case stderrors.Is(err, errors.ErrSendTimeout),
		stderrors.Is(err, context.DeadlineExceeded),
		stderrors.Is(sendCtx.Err(), context.DeadlineExceeded):
		observability.SendFailures.WithLabelValues("timeout").Inc()
		return fmt.Errorf("%w after %s", errors.ErrSendTimeout, f.sendTimeout)
	case stderrors.Is(err, errors.ErrStoreWrite):
		observability.SendFailures.WithLabelValues("store_write").Inc()
		return err
	default:
		observability.SendFailures.WithLabelValues("store_write").Inc()
		return fmt.Errorf("%w: %w", errors.ErrStoreWrite, err)
	}
}

func (f *MessageFeed) validate(draft domain.Draft) error {
	return ValidateBody(draft.Body, f.maxBodyLength)
}

// ValidateBody rejects a blank body and, when maxLength > 0, a body longer than
// maxLength characters.
func ValidateBody(body string, maxLength int) error {
	if strings.TrimSpace(body) == "" {
		return errors.ErrEmptyBody
	}
	if maxLength <= 0 {
		return nil
	}
	if err := validate.Var(body, fmt.Sprintf("max=%d", maxLength)); err != nil {
		return fmt.Errorf("%w: limit is %d characters", errors.ErrBodyTooLong, maxLength)
	}
	return nil
}

// Subscribe opens the single subscription of this feed.
// The returned Subscription replays the whole history of the conversation, then every
// new message, in store order. A lost store stream is re-opened automatically after
// the resubscribe interval; messages already delivered are not delivered again.
func (f *MessageFeed) Subscribe(ctx context.Context) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active != nil && !f.active.Released() {
		return nil, errors.ErrAlreadySubscribed
	}

	subCtx, cancel := context.WithCancel(ctx)
	stream, err := f.store.Subscribe(subCtx, f.conversation)
	if err != nil {
		cancel()
		return nil, subscribeError(err)
	}

	timeline := projection.NewTimeline()
	sub := newSubscription(cancel, f.bufferSize)
	f.timeline = timeline
	f.active = sub

	observability.ActiveSubscriptions.Inc()
	go f.deliver(subCtx, sub, timeline, stream)
	f.log.Debug("Subscribed", "conversation", f.conversation)
	return sub, nil
}

// Listen is Subscribe with a callback. onMessage runs on a single goroutine, in order,
// and is not invoked for messages received after the subscription was closed.
func (f *MessageFeed) Listen(ctx context.Context, onMessage func(domain.Message)) (*Subscription, error) {
	sub, err := f.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	go func() {
		for msg := range sub.Messages() {
			if sub.released.Load() {
				continue
			}
			onMessage(msg)
		}
	}()
	return sub, nil
}

// subscribeError keeps the errors a retry cannot fix as they are.
// Anything else failed to reach the store and is reported as ErrConnectionLost.
func subscribeError(err error) error {
	switch {
	case stderrors.Is(err, errors.ErrConnectionLost),
		stderrors.Is(err, errors.ErrNotAuthenticated),
		stderrors.Is(err, errors.ErrInvalidRecord),
		stderrors.Is(err, errors.ErrStoreClosed),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
}

// deliver owns the timeline appends of one subscription.
func (f *MessageFeed) deliver(ctx context.Context, sub *Subscription,
	timeline *projection.Timeline, stream contract.RecordStream) {
	defer observability.ActiveSubscriptions.Dec()

	for {
		var err error
		if stream != nil {
			err = f.drain(ctx, sub, timeline, stream)
		}
		if ctx.Err() != nil {
			sub.finish(nil)
			return
		}
		if !stderrors.Is(err, errors.ErrConnectionLost) {
			sub.finish(err)
			return
		}

		f.log.Warn("Store stream lost, resubscribing",
			"conversation", f.conversation,
			"interval", f.resubscribeInterval,
			"error", err)
		select {
		case <-ctx.Done():
			sub.finish(nil)
			return
		case <-time.After(f.resubscribeInterval):
		}

		observability.Resubscriptions.Inc()
		stream, err = f.store.Subscribe(ctx, f.conversation)
		if err != nil {
			stream = nil
			if ctx.Err() != nil {
				sub.finish(nil)
				return
			}
			if err = subscribeError(err); !stderrors.Is(err, errors.ErrConnectionLost) {
				sub.finish(err)
				return
			}
		}
	}
}

// drain forwards one store stream until it ends.
// A replayed message whose key is already in the timeline is skipped.
func (f *MessageFeed) drain(ctx context.Context, sub *Subscription,
	timeline *projection.Timeline, stream contract.RecordStream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-stream.Records():
			if !ok {
				return stream.Err()
			}
			msg := record.ToMessage()
			if !timeline.Append(msg) {
				continue
			}
			select {
			case sub.messages <- msg:
				observability.MessagesDelivered.Inc()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Messages returns a snapshot of the local cache of the current (or last) subscription.
func (f *MessageFeed) Messages() []domain.Message {
	f.mu.Lock()
	timeline := f.timeline
	f.mu.Unlock()
	return timeline.Messages()
}

// IsOwn reports whether msg was sent by the current user.
func (f *MessageFeed) IsOwn(msg domain.Message) bool {
	user, ok := f.identity.CurrentUser()
	return ok && msg.Sender == user.Name()
}
