package services

import (
	"context"
	"flash-feed/domain"
	"log/slog"
	"sync"
)

// Session is the client side Identity: it remembers who logged in on this device.
type Session struct {
	mu            sync.RWMutex
	authenticator Authenticator
	grant         *Grant
	log           *slog.Logger
}

func NewSession(authenticator Authenticator, log *slog.Logger) *Session {
	return &Session{authenticator: authenticator, log: log}
}

func (s *Session) Login(ctx context.Context, email, password string) error {
	grant, err := s.authenticator.Login(ctx, email, password)
	if err != nil {
		s.log.Warn("Login failed", "email", email, "error", err)
		return err
	}
	s.set(grant)
	s.log.Info("User logged in", "email", grant.Identity.Email)
	return nil
}

func (s *Session) Register(ctx context.Context, email, password string) error {
	grant, err := s.authenticator.Register(ctx, email, password)
	if err != nil {
		s.log.Warn("Registration failed", "email", email, "error", err)
		return err
	}
	s.set(grant)
	s.log.Info("User registered", "email", grant.Identity.Email)
	return nil
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grant != nil {
		s.log.Info("User logged out", "email", s.grant.Identity.Email)
	}
	s.grant = nil
}

func (s *Session) CurrentUser() (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grant == nil {
		return domain.Identity{}, false
	}
	return s.grant.Identity, true
}

// Token is the bearer token of the logged-in user.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grant == nil {
		return "", false
	}
	return s.grant.Token.String(), true
}

func (s *Session) set(grant Grant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grant = &grant
}
