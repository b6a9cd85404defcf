package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryFromJWT reads the exp claim of raw without verifying its signature.
// Signature checks belong to the API that accepts the token; the client only
// needs to know when to stop sending it. ok is false when the token has no exp.
func ExpiryFromJWT(raw string) (exp time.Time, ok bool, err error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing token: %w", err)
	}
	nd, err := tok.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading exp claim: %w", err)
	}
	if nd == nil {
		return time.Time{}, false, nil
	}
	return nd.Time, true, nil
}

// SetJWT stores raw under key with a TTL derived from its exp claim.
// Tokens without exp are kept for fallbackTTL. Opaque (non-JWT) tokens are
// stored with fallbackTTL as well.
func SetJWT(ctx context.Context, s Store, key, raw string, fallbackTTL time.Duration) error {
	ttl := fallbackTTL
	exp, ok, err := ExpiryFromJWT(raw)
	if err == nil && ok {
		ttl = time.Until(exp)
		if ttl <= 0 {
			return ErrTokenExpired
		}
	}
	return s.Set(ctx, key, raw, ttl)
}
