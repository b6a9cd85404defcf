package api

import (
	"net/http"

	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

// Authenticator applies authentication to requests.
type Authenticator interface {
	Apply(req *http.Request) error
}

// BearerAuth attaches "Authorization: Bearer <token>" when the source has a
// token. With no token the header is left out entirely.
type BearerAuth struct {
	Tokens tokenstore.Source
}

func (b *BearerAuth) Apply(req *http.Request) error {
	if b.Tokens == nil {
		return nil
	}
	token, ok := b.Tokens.CurrentToken(req.Context())
	if !ok || token == "" {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
