// Package identity exposes the authenticated principal to the sync core.
// The core only reads it; absence of a principal means "inactive".
package identity

import (
	"context"
	"sync"

	"chat-sync/internal/auth"
)

// Principal is the viewer the core acts for.
type Principal struct {
	// UserID is the backend user id. It is learned on activation and may be empty
	// until the profile has been ensured.
	UserID     string
	ExternalID string
	Token      string
	Username   string
}

// Provider supplies the current principal, if any.
type Provider interface {
	Current(ctx context.Context) (Principal, bool)
}

// Static always returns the same principal. The zero value is inactive.
type Static struct {
	P Principal
}

func (s Static) Current(context.Context) (Principal, bool) {
	return s.P, s.P.ExternalID != ""
}

// TokenProvider derives the principal from a bearer token handed to the client.
// The signature is not checked here; the backend verifies it on every call.
type TokenProvider struct {
	mu        sync.RWMutex
	principal Principal
	active    bool
}

// NewTokenProvider builds a provider from token. An empty token yields an
// inactive provider.
func NewTokenProvider(token string) (*TokenProvider, error) {
	p := &TokenProvider{}
	if token == "" {
		return p, nil
	}
	if err := p.SetToken(token); err != nil {
		return nil, err
	}
	return p, nil
}

// SetToken replaces the current principal. A malformed token leaves the previous one in place.
func (p *TokenProvider) SetToken(token string) error {
	claims, err := auth.PeekClaims(token)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.principal = Principal{ExternalID: claims.ExternalID(), Token: token, Username: claims.Username}
	p.active = true
	p.mu.Unlock()
	return nil
}

// SignOut makes the provider inactive.
func (p *TokenProvider) SignOut() {
	p.mu.Lock()
	p.principal = Principal{}
	p.active = false
	p.mu.Unlock()
}

func (p *TokenProvider) Current(context.Context) (Principal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.principal, p.active
}
