package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrMalformedToken indicates a credential that is not a token at all.
	ErrMalformedToken = errors.New("auth: malformed token")
	// ErrTokenExpired indicates an unknown or expired token.
	ErrTokenExpired = errors.New("auth: token expired")
)

// TokenStore maps opaque bearer tokens to principal ids in Redis.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// TTL exposes the configured token lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

// Issue creates a new token for principalID.
func (s *TokenStore) Issue(ctx context.Context, principalID int64) (string, time.Time, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: generate token: %w", err)
	}
	token := id.String()
	if err := s.client.Set(ctx, tokenKey(token), strconv.FormatInt(principalID, 10), s.ttl).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: store token: %w", err)
	}
	return token, time.Now().Add(s.ttl), nil
}

// Lookup returns the principal id bound to token.
func (s *TokenStore) Lookup(ctx context.Context, token string) (int64, error) {
	if _, err := uuid.Parse(token); err != nil {
		return 0, ErrMalformedToken
	}
	raw, err := s.client.Get(ctx, tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrTokenExpired
		}
		return 0, fmt.Errorf("auth: lookup token: %w", err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrMalformedToken
	}
	return id, nil
}

// Revoke deletes token. Unknown tokens are ignored.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return nil
	}
	if err := s.client.Del(ctx, tokenKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

func tokenKey(token string) string {
	return "token:" + token
}
