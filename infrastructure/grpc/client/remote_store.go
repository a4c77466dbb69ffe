package client

import (
	"context"
	stderrors "errors"
	"flash-feed/contract"
	"flash-feed/domain"
	"flash-feed/errors"
	"flash-feed/infrastructure/codec"
	"flash-feed/infrastructure/grpc/wire"
	"flash-feed/infrastructure/streaming"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TokenSource provides the bearer token attached to every call.
type TokenSource interface {
	Token() (string, bool)
}

// RemoteStore is a MessageStore served by a remote FeedService.
type RemoteStore struct {
	client     wire.FeedServiceClient
	tokens     TokenSource
	log        *slog.Logger
	bufferSize int
}

var _ contract.MessageStore = (*RemoteStore)(nil)

func NewRemoteStore(cc grpc.ClientConnInterface, tokens TokenSource, log *slog.Logger, bufferSize int) *RemoteStore {
	return &RemoteStore{
		client:     wire.NewFeedServiceClient(cc),
		tokens:     tokens,
		log:        log,
		bufferSize: bufferSize,
	}
}

func (s *RemoteStore) withToken(ctx context.Context) (context.Context, error) {
	token, ok := s.tokens.Token()
	if !ok {
		return nil, errors.ErrNotAuthenticated
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token), nil
}

func (s *RemoteStore) Append(ctx context.Context, conversation domain.ConversationID, record domain.Record) (string, error) {
	ctx, err := s.withToken(ctx)
	if err != nil {
		return "", err
	}
	key, err := s.client.Append(ctx, wire.NewAppendRequest(conversation, record))
	if err != nil {
		return "", errors.FromGRPCError(err)
	}
	return key.GetValue(), nil
}

// Subscribe opens a server stream on the conversation.
// Transport failures end the RecordStream with ErrConnectionLost.
func (s *RemoteStore) Subscribe(ctx context.Context, conversation domain.ConversationID) (contract.RecordStream, error) {
	callCtx, err := s.withToken(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := s.client.Subscribe(callCtx, wrapperspb.String(conversation.String()))
	if err != nil {
		return nil, streamError(err)
	}
	stream := streaming.NewStream(s.bufferSize)
	go s.receive(ctx, conversation, remote, stream)
	return stream, nil
}

func (s *RemoteStore) receive(ctx context.Context, conversation domain.ConversationID,
	remote wire.FeedService_SubscribeClient, stream *streaming.Stream) {
	for {
		msg, err := remote.Recv()
		if err != nil {
			if ctx.Err() != nil {
				stream.Finish(nil)
				return
			}
			s.log.Warn("Subscription stream ended", "conversation", conversation, "error", err)
			stream.Finish(streamError(err))
			return
		}
		record, err := codec.RecordFromStruct(msg)
		if err != nil {
			s.log.Warn("Skipping malformed record", "conversation", conversation, "error", err)
			continue
		}
		if !stream.Push(ctx, record) {
			stream.Finish(nil)
			return
		}
	}
}

// streamError keeps authentication and validation failures as they are,
// everything else is a lost connection the feed can recover from.
func streamError(err error) error {
	if stderrors.Is(err, io.EOF) {
		return fmt.Errorf("%w: server closed the stream", errors.ErrConnectionLost)
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.InvalidArgument, codes.PermissionDenied:
		return errors.FromGRPCError(err)
	}
	mapped := errors.FromGRPCError(err)
	if stderrors.Is(mapped, errors.ErrConnectionLost) {
		return mapped
	}
	return fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
}
