package server

import (
	"context"
	"flash-feed/auth"
	"flash-feed/domain"
	"flash-feed/infrastructure/grpc/wire"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestAuthInterceptor(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	interceptor := AuthInterceptor(issuer)
	identity := domain.Identity{UserID: "u1", Email: "x@x.com"}
	token, err := issuer.GenerateToken(identity, []string{"user"})
	require.NoError(t, err)

	appendInfo := &grpc.UnaryServerInfo{FullMethod: wire.FeedService_Append_FullMethodName}
	echo := func(ctx context.Context, _ any) (any, error) {
		got, ok := auth.FromContext(ctx)
		if !ok {
			return nil, nil
		}
		return got, nil
	}

	t.Run("should let public methods through without token", func(t *testing.T) {
		info := &grpc.UnaryServerInfo{FullMethod: wire.FeedService_Login_FullMethodName}
		resp, err := interceptor(context.Background(), nil, info, echo)
		require.NoError(t, err)
		require.Nil(t, resp)
	})

	t.Run("should reject a call without metadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, appendInfo, echo)
		require.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("should reject an invalid token", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope"))
		_, err := interceptor(ctx, nil, appendInfo, echo)
		require.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("should inject the identity of a valid token", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
		resp, err := interceptor(ctx, nil, appendInfo, echo)
		require.NoError(t, err)
		require.Equal(t, identity, resp)
	})
}
