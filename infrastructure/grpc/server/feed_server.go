package server

import (
	"context"
	"flash-feed/auth"
	"flash-feed/contract"
	"flash-feed/domain"
	"flash-feed/errors"
	"flash-feed/feed"
	"flash-feed/infrastructure/codec"
	"flash-feed/infrastructure/grpc/wire"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// FeedServer exposes a MessageStore to remote feeds.
type FeedServer struct {
	*AuthServer
	store         contract.MessageStore
	log           *slog.Logger
	maxBodyLength int
}

var _ wire.FeedServiceServer = (*FeedServer)(nil)

// NewFeedServer refuses bodies longer than maxBodyLength characters, a maxBodyLength <= 0
// keeps feed.DefaultMaxBodyLength.
func NewFeedServer(log *slog.Logger, authServer *AuthServer, store contract.MessageStore, maxBodyLength int) *FeedServer {
	if maxBodyLength <= 0 {
		maxBodyLength = feed.DefaultMaxBodyLength
	}
	return &FeedServer{AuthServer: authServer, store: store, log: log, maxBodyLength: maxBodyLength}
}

// Append stores the record on behalf of the authenticated caller.
// The sender is always taken from the token, never from the request.
func (s *FeedServer) Append(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	identity, ok := auth.FromContext(ctx)
	if !ok {
		return nil, errors.MapToGRPCError(errors.ErrNotAuthenticated)
	}
	conversation, record, err := wire.AppendRequestFrom(in)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	if err := feed.ValidateBody(record.Body, s.maxBodyLength); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	record.Sender = identity.Name()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	key, err := s.store.Append(ctx, conversation, record)
	if err != nil {
		s.log.Warn("Append failed",
			"user_id", identity.UserID,
			"conversation", conversation,
			"message_id", record.ID,
			"error", err)
		return nil, errors.MapToGRPCError(err)
	}
	return wrapperspb.String(key), nil
}

// Subscribe streams the conversation until the client disconnects.
// A store stream that drops ends the call with Unavailable so that the client resubscribes.
func (s *FeedServer) Subscribe(in *wrapperspb.StringValue, stream wire.FeedService_SubscribeServer) error {
	ctx := stream.Context()
	identity, _ := auth.FromContext(ctx)
	conversation := domain.ConversationID(in.GetValue())

	records, err := s.store.Subscribe(ctx, conversation)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	s.log.Debug("Client subscribed", "user_id", identity.UserID, "conversation", conversation)

	for record := range records.Records() {
		if err := stream.Send(codec.RecordToStruct(record)); err != nil {
			s.log.Error("failed to push record to stream",
				"user_id", identity.UserID,
				"conversation", conversation,
				"error", err)
			return err
		}
	}
	if ctx.Err() != nil {
		s.log.Debug("Client disconnected", "user_id", identity.UserID, "conversation", conversation)
		return nil
	}
	if err := records.Err(); err != nil {
		return errors.MapToGRPCError(err)
	}
	return errors.MapToGRPCError(fmt.Errorf("%w: stream ended", errors.ErrConnectionLost))
}
