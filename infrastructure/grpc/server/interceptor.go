package server

import (
	"context"
	"flash-feed/auth"
	"flash-feed/infrastructure/grpc/wire"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Methods that do not require JWT authentication.
var publicMethods = map[string]struct{}{
	wire.FeedService_Login_FullMethodName:    {},
	wire.FeedService_Register_FullMethodName: {},
}

func isPublicMethod(method string) bool {
	_, ok := publicMethods[method]
	return ok
}

// AuthInterceptor handles JWT validation for incoming unary calls.
func AuthInterceptor(issuer auth.TokenIssuer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isPublicMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		authCtx, err := authenticate(ctx, issuer)
		if err != nil {
			return nil, err
		}
		return handler(authCtx, req)
	}
}

// StreamAuthInterceptor is AuthInterceptor for server streams.
func StreamAuthInterceptor(issuer auth.TokenIssuer) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if isPublicMethod(info.FullMethod) {
			return handler(srv, ss)
		}
		authCtx, err := authenticate(ss.Context(), issuer)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: authCtx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}

// authenticate validates the "Bearer <token>" authorization header
// and injects the caller identity into the context.
func authenticate(ctx context.Context, issuer auth.TokenIssuer) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "metadata is missing")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "authorization token is missing")
	}
	claims, err := issuer.ValidateToken(strings.TrimPrefix(values[0], "Bearer "))
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return auth.WithIdentity(ctx, claims.Identity(), claims.Roles), nil
}
