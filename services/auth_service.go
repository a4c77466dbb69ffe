//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"context"
	"flash-feed/auth"
	"flash-feed/domain"
	"flash-feed/errors"
	"flash-feed/infrastructure/storage"
	"fmt"
	"log/slog"
)

// Authenticator turns credentials into a Grant.
// Implemented in-process by AuthService and remotely by the gRPC auth client.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (Grant, error)
	Register(ctx context.Context, email, password string) (Grant, error)
}

type Token string

func (t Token) String() string {
	return string(t)
}

// Grant is the outcome of a successful login or registration.
type Grant struct {
	Token    Token
	Identity domain.Identity
}

type AuthService struct {
	userRepository storage.IUserRepository
	issuer         auth.TokenIssuer
	log            *slog.Logger
}

func NewAuthService(repo storage.IUserRepository, issuer auth.TokenIssuer, log *slog.Logger) *AuthService {
	return &AuthService{userRepository: repo, issuer: issuer, log: log}
}

func (s *AuthService) Register(_ context.Context, email, password string) (Grant, error) {
	// Business rules are checked before any expensive cryptographic operation.
	if err := auth.ValidateRegister(auth.RegisterRequest{Email: email, Password: password}); err != nil {
		return Grant{}, err
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return Grant{}, fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.userRepository.CreateUser(email, hashedPassword)
	if err != nil {
		return Grant{}, err
	}
	s.log.Info("User registered", "user_id", userID)

	identity := domain.Identity{UserID: userID, Email: email}
	token, err := s.issuer.GenerateToken(identity, []string{"user"})
	if err != nil {
		return Grant{}, errors.ErrTokenGeneration
	}
	return Grant{Token: Token(token), Identity: identity}, nil
}

func (s *AuthService) Login(_ context.Context, email, password string) (Grant, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Email: email, Password: password}); err != nil {
		return Grant{}, err
	}

	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Same error for unknown users and wrong passwords, no account enumeration.
		return Grant{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Grant{}, errors.ErrInvalidCredentials
	}

	identity := domain.Identity{UserID: user.ID, Email: user.Email}
	token, err := s.issuer.GenerateToken(identity, user.Roles)
	if err != nil {
		return Grant{}, errors.ErrTokenGeneration
	}
	s.log.Debug("User logged in", "user_id", user.ID)
	return Grant{Token: Token(token), Identity: identity}, nil
}
