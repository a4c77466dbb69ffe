package server

import (
	"context"
	"flash-feed/errors"
	"flash-feed/infrastructure/grpc/wire"
	"flash-feed/services"

	"google.golang.org/protobuf/types/known/structpb"
)

type AuthServer struct {
	authService services.Authenticator
}

// NewAuthServer creates the public half of the FeedService.
func NewAuthServer(authService services.Authenticator) *AuthServer {
	return &AuthServer{authService: authService}
}

// Register handles user registration by validating input, hashing password and issuing a token.
func (s *AuthServer) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	credentials := wire.CredentialsFrom(in)
	grant, err := s.authService.Register(ctx, credentials.Email, credentials.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return toAuthResponse(grant), nil
}

// Login verifies credentials and returns a session token.
func (s *AuthServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	credentials := wire.CredentialsFrom(in)
	grant, err := s.authService.Login(ctx, credentials.Email, credentials.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return toAuthResponse(grant), nil
}

func toAuthResponse(grant services.Grant) *structpb.Struct {
	return wire.AuthResponse{Token: grant.Token.String(), Identity: grant.Identity}.ToStruct()
}
