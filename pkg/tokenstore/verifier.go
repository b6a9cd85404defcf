package tokenstore

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidCredentials is returned by a Verifier that rejects a login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity is what a successful credential check yields.
type Identity struct {
	Email       string
	DisplayName string
	AccessToken string
}

// Verifier checks credentials against the external auth provider. The UI calls
// it before recording the result on the session store; the core never does.
type Verifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (Identity, error)
}

// StaticVerifier accepts any non-empty email/password pair. It stands in for the
// hosted provider in demos and tests.
type StaticVerifier struct {
	// Name overrides the derived display name when set.
	Name  string
	Token string
}

func (v StaticVerifier) VerifyCredentials(_ context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{
		Email:       email,
		DisplayName: DisplayNameFor(v.Name, email),
		AccessToken: v.Token,
	}, nil
}

// DisplayNameFor picks the name shown for a login: the chosen name, else the
// local part of the email, else "Operator".
func DisplayNameFor(name, email string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if local, _, _ := strings.Cut(strings.TrimSpace(email), "@"); local != "" {
		return local
	}
	return "Operator"
}
