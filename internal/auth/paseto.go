package auth

import (
	"context"
	"errors"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// PasetoConfig configures the PASETO v4.public verifier.
type PasetoConfig struct {
	// PublicKeyHex is the Ed25519 verification key exported by the identity
	// service that mints the tokens.
	PublicKeyHex string

	Issuer    string
	ClockSkew time.Duration
}

// PasetoAuthenticator verifies PASETO v4.public access tokens.
//
// The realtime tier only verifies; token minting lives with the identity
// service that owns the secret key.
type PasetoAuthenticator struct {
	public    paseto.V4AsymmetricPublicKey
	issuer    string
	clockSkew time.Duration
}

// NewPasetoAuthenticator builds an Authenticator from the verification key.
func NewPasetoAuthenticator(cfg PasetoConfig) (*PasetoAuthenticator, error) {
	if cfg.PublicKeyHex == "" {
		return nil, errors.New("auth: missing public key")
	}
	public, err := paseto.NewV4AsymmetricPublicKeyFromHex(cfg.PublicKeyHex)
	if err != nil {
		return nil, errors.New("auth: invalid public key")
	}
	return &PasetoAuthenticator{
		public:    public,
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
	}, nil
}

// Authenticate verifies the token and extracts the identity claims.
func (a *PasetoAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}

	// Clock-skew tolerance:
	// Validate slightly in the future to avoid failing "nbf" when clocks differ.
	validNow := time.Now().Add(a.clockSkew)

	// Build a fresh parser per call to avoid accumulating rules across verifies.
	p := paseto.NewParser()
	if a.issuer != "" {
		p.AddRule(paseto.IssuedBy(a.issuer))
	}
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(validNow))

	parsed, err := p.ParseV4Public(a.public, token, nil)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}

	email, err := parsed.GetString("email")
	if err != nil || email == "" {
		return Identity{}, ErrUnauthorized
	}
	name, _ := parsed.GetString("name")

	return Identity{Email: email, Name: name}, nil
}
