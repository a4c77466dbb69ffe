package client

import (
	"context"
	"flash-feed/errors"
	"flash-feed/infrastructure/grpc/wire"
	"flash-feed/services"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// AuthClient authenticates against a remote FeedService.
type AuthClient struct {
	client wire.FeedServiceClient
}

var _ services.Authenticator = (*AuthClient)(nil)

func NewAuthClient(cc grpc.ClientConnInterface) *AuthClient {
	return &AuthClient{client: wire.NewFeedServiceClient(cc)}
}

func (c *AuthClient) Register(ctx context.Context, email, password string) (services.Grant, error) {
	resp, err := c.client.Register(ctx, wire.Credentials{Email: email, Password: password}.ToStruct())
	if err != nil {
		return services.Grant{}, errors.FromGRPCError(err)
	}
	return toGrant(resp), nil
}

func (c *AuthClient) Login(ctx context.Context, email, password string) (services.Grant, error) {
	resp, err := c.client.Login(ctx, wire.Credentials{Email: email, Password: password}.ToStruct())
	if err != nil {
		return services.Grant{}, errors.FromGRPCError(err)
	}
	return toGrant(resp), nil
}

func toGrant(resp *structpb.Struct) services.Grant {
	auth := wire.AuthResponseFrom(resp)
	return services.Grant{Token: services.Token(auth.Token), Identity: auth.Identity}
}
