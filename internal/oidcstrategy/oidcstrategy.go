// Package oidcstrategy is an optional auth.AuthenticationStrategy adapter
// for deployments that want SSO instead of (or alongside) local
// password accounts. The core itself never imports this package, and
// cmd/server does not construct it; a deployment opts in by building
// one and passing it to auth.NewAuthenticator, keeping the core's only
// hard dependency on the
// auth.AuthenticationStrategy interface (spec.md §4.6.2).
//
// Grounded on the OIDC client in the broader example pack
// (alliance/oidc.go): same provider/verifier/oauth2.Config shape,
// narrowed to the single method the core's Authenticator needs.
package oidcstrategy

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/corehost/platform/internal/apierr"
)

// Config describes one external identity provider.
type Config struct {
	IssuerURL     string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	Scopes        []string
	UsernameClaim string
	EmailClaim    string
}

// UserResolver provisions or looks up a local user for a verified
// external identity, letting the strategy stay ignorant of the users
// table's schema.
type UserResolver interface {
	ResolveExternalUser(ctx context.Context, subject, email, displayName string) (userID string, err error)
}

// Strategy implements auth.AuthenticationStrategy by treating the
// supplied credential as a raw OIDC ID token (rather than an
// authorization code - the code exchange happens once, at the
// callback handler, before the resulting ID token is ever handed to
// Authenticate).
type Strategy struct {
	provider     *oidc.Provider
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	cfg          Config
	users        UserResolver
}

// New initializes the OIDC provider metadata and token verifier. It
// makes one network round trip (provider discovery) and should be
// called once at boot, not per-request.
func New(ctx context.Context, cfg Config, users UserResolver) (*Strategy, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, apierr.InvalidConfig("oidc issuer_url and client_id are required")
	}

	discoverCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	provider, err := oidc.NewProvider(discoverCtx, cfg.IssuerURL)
	if err != nil {
		return nil, apierr.InvalidConfig(fmt.Sprintf("oidc discovery failed: %v", err))
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &Strategy{
		provider: provider,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		cfg:      cfg,
		users:    users,
	}, nil
}

func (s *Strategy) Name() string { return "oidc" }

// AuthURL builds the provider's authorization endpoint URL for a login
// redirect, carrying the caller-supplied state (CSRF token).
func (s *Strategy) AuthURL(state string) string {
	return s.oauth2Config.AuthCodeURL(state)
}

// ExchangeCode completes the authorization-code flow after the
// provider redirects back with ?code=..., returning the raw ID token
// to hand to Authenticate (or keep client-side as the bearer
// credential for future requests).
func (s *Strategy) ExchangeCode(ctx context.Context, code string) (string, error) {
	token, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return "", apierr.Unauthorized("oidc code exchange failed")
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return "", apierr.Unauthorized("oidc token response did not include an id_token")
	}
	return rawIDToken, nil
}

// Authenticate verifies credential as an OIDC ID token and resolves it
// to a local user id via the configured UserResolver, provisioning the
// user on first login.
func (s *Strategy) Authenticate(ctx context.Context, credential string) (string, error) {
	idToken, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		return "", apierr.Unauthorized("invalid oidc id token")
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return "", apierr.Unauthorized("oidc id token claims could not be parsed")
	}

	email, _ := claims[s.emailClaim()].(string)
	displayName, _ := claims["name"].(string)
	if displayName == "" {
		displayName = email
	}

	userID, err := s.users.ResolveExternalUser(ctx, idToken.Subject, email, displayName)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *Strategy) emailClaim() string {
	if s.cfg.EmailClaim != "" {
		return s.cfg.EmailClaim
	}
	return "email"
}

var _ interface {
	Authenticate(ctx context.Context, credential string) (string, error)
	Name() string
} = (*Strategy)(nil)
