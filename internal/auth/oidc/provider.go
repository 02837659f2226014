// Package oidc signs staff in through an OpenID Connect identity provider.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/dpc-platform/dpc-admin/internal/config"
)

// ErrDomainNotAllowed is returned when the signed-in email is outside allowed_domains
var ErrDomainNotAllowed = errors.New("email domain is not allowed")

// Identity is the verified staff identity from an ID token
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// OIDCProvider runs the authorization code flow against one issuer
type OIDCProvider struct {
	verifier       *oidc.IDTokenVerifier
	config         *oauth2.Config
	allowedDomains []string
}

// NewOIDCProvider discovers the issuer's endpoints. ctx bounds the discovery request.
func NewOIDCProvider(ctx context.Context, cfg *config.OIDCConfig) (*OIDCProvider, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("OIDC is not enabled")
	}
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	return newProvider(
		provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		&oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		cfg.AllowedDomains,
	), nil
}

func newProvider(verifier *oidc.IDTokenVerifier, oauthCfg *oauth2.Config, allowedDomains []string) *OIDCProvider {
	domains := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, strings.TrimPrefix(d, "@"))
		}
	}
	return &OIDCProvider{verifier: verifier, config: oauthCfg, allowedDomains: domains}
}

// AuthURL returns the provider's authorization URL carrying state
func (p *OIDCProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Authenticate exchanges an authorization code and verifies the returned ID token
func (p *OIDCProvider) Authenticate(ctx context.Context, code string) (*Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("token response has no id_token")
	}
	return p.VerifyIDToken(ctx, rawIDToken)
}

// VerifyIDToken checks the token and extracts the staff identity
func (p *OIDCProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (*Identity, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("ID token missing 'email' claim")
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, fmt.Errorf("email %s is not verified", claims.Email)
	}
	if !p.EmailAllowed(claims.Email) {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotAllowed, claims.Email)
	}
	if claims.Name == "" {
		claims.Name = claims.Email
	}

	return &Identity{Subject: idToken.Subject, Email: strings.ToLower(claims.Email), Name: claims.Name}, nil
}

// EmailAllowed reports whether email's domain is in allowed_domains; an empty list allows all
func (p *OIDCProvider) EmailAllowed(email string) bool {
	if len(p.allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range p.allowedDomains {
		if domain == d {
			return true
		}
	}
	return false
}
