package auth

import "context"

// StaticAuthenticator resolves tokens from a fixed map. Dev and test use
// only; tokens double as emails when the map is nil.
type StaticAuthenticator struct {
	tokens map[string]Identity
}

// NewStaticAuthenticator builds an authenticator over a fixed token table.
// A nil table accepts every non-empty token and treats it as the email,
// which keeps local smoke runs credential-free.
func NewStaticAuthenticator(tokens map[string]Identity) *StaticAuthenticator {
	return &StaticAuthenticator{tokens: tokens}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	if a.tokens == nil {
		return Identity{Email: token}, nil
	}
	id, ok := a.tokens[token]
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	return id, nil
}
