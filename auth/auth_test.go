package auth

import (
	"context"
	"flash-feed/domain"
	"flash-feed/errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "MyPassw0rdIsStr0ng!"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("WrongPassword", hash)
	req.NoError(err)
	req.False(match)
}

func TestComparePassword_InvalidHash(t *testing.T) {
	req := require.New(t)
	_, err := ComparePassword("x", "not-a-hash")
	req.ErrorIs(err, ErrInvalidHash)

	_, err = ComparePassword("x", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA")
	req.ErrorIs(err, ErrInvalidHash)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid request", RegisterRequest{"test@example.com", "ComplexPass123!"}, false},
		{"Invalid email", RegisterRequest{"notanemail", "ComplexPass123!"}, true},
		{"Password too short", RegisterRequest{"test@example.com", "Short1!"}, true},
		{"Missing digit", RegisterRequest{"test@example.com", "NoDigitPass!"}, true},
		{"Missing special char", RegisterRequest{"test@example.com", "NoSpecialChar123"}, true},
		{"Missing uppercase", RegisterRequest{"test@example.com", "nouppercase123!"}, true},
		{"Password too long", RegisterRequest{"test@example.com", strings.Repeat("a", 73)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				require.ErrorIs(t, err, errors.ErrInvalidPassword)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoginValidation(t *testing.T) {
	req := require.New(t)
	req.NoError(ValidateLogin(LoginRequest{"x@x.com", "anything"}))
	req.ErrorIs(ValidateLogin(LoginRequest{"x", "anything"}), errors.ErrInvalidCredentials)
	req.ErrorIs(ValidateLogin(LoginRequest{"x@x.com", ""}), errors.ErrInvalidCredentials)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)
	identity := domain.Identity{UserID: "user-123", Email: "a@b.com"}

	token, err := issuer.GenerateToken(identity, []string{"user"})
	req.NoError(err)

	claims, err := issuer.ValidateToken(token)
	req.NoError(err)
	req.Equal(identity, claims.Identity())
	req.Equal([]string{"user"}, claims.Roles)
}

func TestTokenIssuer_RejectsExpiredAndForeignTokens(t *testing.T) {
	req := require.New(t)
	identity := domain.Identity{UserID: "user-123", Email: "a@b.com"}

	expired, err := NewTokenIssuer("test-secret", -time.Minute).GenerateToken(identity, nil)
	req.NoError(err)
	_, err = NewTokenIssuer("test-secret", time.Hour).ValidateToken(expired)
	req.Error(err)

	foreign, err := NewTokenIssuer("other-secret", time.Hour).GenerateToken(identity, nil)
	req.NoError(err)
	_, err = NewTokenIssuer("test-secret", time.Hour).ValidateToken(foreign)
	req.Error(err)
}

func TestContextIdentity(t *testing.T) {
	req := require.New(t)
	_, ok := FromContext(context.Background())
	req.False(ok)

	identity := domain.Identity{UserID: "u1", Email: "a@b.com"}
	ctx := WithIdentity(context.Background(), identity, []string{"admin"})
	got, ok := FromContext(ctx)
	req.True(ok)
	req.Equal(identity, got)
	req.Equal([]string{"admin"}, RolesFromContext(ctx))
}

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}
