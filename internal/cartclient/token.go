package cartclient

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/bakery-cart/internal/auth"
)

// ErrNoRefresh is returned by token sources that cannot renew credentials.
var ErrNoRefresh = errors.New("token refresh not supported")

// TokenSource supplies bearer credentials for store requests.
type TokenSource interface {
	// Token returns the current credential.
	Token(ctx context.Context) (string, error)
	// Refresh obtains a new credential after the store rejected the current one.
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a fixed credential that cannot be refreshed.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("empty token")
	}
	return string(t), nil
}

// Refresh implements TokenSource.
func (t StaticToken) Refresh(context.Context) (string, error) {
	return "", ErrNoRefresh
}

// RefreshFunc obtains a fresh token, e.g. by re-running the sign-in exchange.
type RefreshFunc func(ctx context.Context) (string, error)

// RefreshingTokenSource caches a token and renews it through a RefreshFunc
// shortly before its exp claim passes. Concurrent refreshes share one call.
type RefreshingTokenSource struct {
	refresh RefreshFunc
	skew    time.Duration
	now     func() time.Time

	mu    sync.Mutex
	token string
	group singleflight.Group
}

// NewRefreshingTokenSource returns a source seeded with initial (may be
// empty) that refreshes when fewer than skew remain before expiry.
func NewRefreshingTokenSource(initial string, skew time.Duration, refresh RefreshFunc) *RefreshingTokenSource {
	return &RefreshingTokenSource{
		refresh: refresh,
		skew:    skew,
		now:     time.Now,
		token:   initial,
	}
}

// Token returns the cached token, refreshing it first when it is missing or
// about to expire. Tokens without an exp claim are used as is.
func (s *RefreshingTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == "" {
		return s.Refresh(ctx)
	}
	if exp, ok := auth.ExpiresAt(token); ok && !s.now().Add(s.skew).Before(exp) {
		return s.Refresh(ctx)
	}
	return token, nil
}

// Refresh obtains and caches a new token.
func (s *RefreshingTokenSource) Refresh(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		token, err := s.refresh(ctx)
		if err != nil {
			return "", errors.Wrap(err, "refresh token")
		}
		if token == "" {
			return "", errors.New("refresh returned empty token")
		}
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
