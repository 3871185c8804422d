// Package auth authenticates websocket handshakes and issues access tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned for missing, malformed or expired credentials.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Identity is the authenticated principal attached to a connection.
type Identity struct {
	// Email is the canonical identity key used across presence, rooms
	// and message attribution.
	Email string

	// Name is an optional display name claim.
	Name string
}

// Authenticator verifies a handshake credential and resolves the identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// TokenFromRequest extracts the handshake credential. Browsers cannot set
// headers on websocket upgrades, so the "token" query parameter is the
// primary carrier; an Authorization bearer header is honored for non-browser
// clients.
func TokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
