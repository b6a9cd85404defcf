// Package tokenstore holds the bearer credentials issued by the external auth
// provider and exposes them to the core as an optional current token.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
)

// KeyAccessToken is the key under which the provider's access token is kept.
const KeyAccessToken = "access_token"

// Token represents a stored token with metadata.
type Token struct {
	Key       string            `json:"key"`
	Value     string            `json:"value"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IsExpired checks if the token has expired.
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// Store defines the token storage interface.
type Store interface {
	// Set stores a token with the given key and TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get retrieves a token by key. Returns ErrTokenNotFound or ErrTokenExpired.
	Get(ctx context.Context, key string) (*Token, error)
	// Delete removes a token by key.
	Delete(ctx context.Context, key string) error
	// Cleanup removes all expired tokens.
	Cleanup(ctx context.Context) (int, error)
}

// Source supplies the current bearer token, if any.
type Source interface {
	CurrentToken(ctx context.Context) (string, bool)
}

// StoreSource reads the current token from a Store.
type StoreSource struct {
	Store Store
	Key   string
}

// CurrentToken returns the token under s.Key; missing or expired tokens yield ok=false.
func (s StoreSource) CurrentToken(ctx context.Context) (string, bool) {
	if s.Store == nil {
		return "", false
	}
	key := s.Key
	if key == "" {
		key = KeyAccessToken
	}
	tok, err := s.Store.Get(ctx, key)
	if err != nil || tok.Value == "" {
		return "", false
	}
	return tok.Value, true
}

// StaticSource always yields the same token. An empty token means none.
type StaticSource string

func (s StaticSource) CurrentToken(context.Context) (string, bool) {
	return string(s), s != ""
}
