package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/batisseur/intranet/internal/shared"
)

// TokenIssuer issues and revokes bearer tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, principalID int64) (string, time.Time, error)
	Revoke(ctx context.Context, token string) error
}

// Session is the outcome of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal Principal `json:"principal"`
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens TokenIssuer
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Login validates email/password credentials and issues a token. When the
// password matches an inactive account the returned Session carries the
// principal and no token, alongside an AccountDisabled error.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive() {
		return Session{Principal: user.Principal}, shared.AccountDisabled()
	}
	token, expiresAt, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return Session{}, shared.Persistence("auth: issue token", err)
	}
	return Session{Token: token, ExpiresAt: expiresAt, Principal: user.Principal}, nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.tokens.Revoke(ctx, token); err != nil {
		return shared.Persistence("auth: revoke token", err)
	}
	return nil
}
