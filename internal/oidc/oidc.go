// Package oidc provides the bearer verifiers the console can put in front of
// its proxy routes.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/oktotrack/console/internal/config"
	"github.com/oktotrack/console/pkg/middleware"
)

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Verify verifies the provided raw token and returns a middleware.Token
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// FromConfig returns the configured verifier, or nil when verification is off.
// OIDC wins when both an issuer and an HMAC secret are set.
func FromConfig(ctx context.Context, cfg config.VerifyConfig) (middleware.Verifier, error) {
	switch {
	case cfg.OIDCIssuer != "":
		v, err := NewVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			return nil, err
		}
		return v, nil
	case cfg.HMACSecret != "":
		return NewHMACVerifier([]byte(cfg.HMACSecret)), nil
	}
	return nil, nil
}
