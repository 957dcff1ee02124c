package transport

import (
	"context"
	"sync"
	"time"

	"github.com/sonora-voice/bridge/internal/bridge"
)

// CredentialSource yields the bearer token presented on the upstream dial.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialSource with a fixed token, used in
// development and tests.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// MintFunc produces a fresh token and its expiry.
type MintFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// refreshSkew re-mints this long before the recorded expiry so a token
// never goes stale mid-dial.
const refreshSkew = 30 * time.Second

// RefreshingSource caches a minted token until shortly before expiry. A
// mint failure is an upstream authentication failure; the session that
// triggered the dial will close with the auth close code.
type RefreshingSource struct {
	mint MintFunc

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewRefreshingSource wraps a mint function with expiry-aware caching.
func NewRefreshingSource(mint MintFunc) *RefreshingSource {
	return &RefreshingSource{mint: mint}
}

func (s *RefreshingSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expires.Add(-refreshSkew)) {
		return s.token, nil
	}

	token, expires, err := s.mint(ctx)
	if err != nil {
		return "", &bridge.UpstreamAuthError{Err: err}
	}
	s.token = token
	s.expires = expires
	return token, nil
}
