package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/logger"
)

// StalenessThreshold is how long a push token stays valid after issue.
const StalenessThreshold = 30 * 24 * time.Hour

// ErrTokenUnavailable is returned when a stale token could not be reissued.
// It never aborts a reconciliation; the profile keeps its old token.
var ErrTokenUnavailable = errors.New("push token unavailable")

// Issuer obtains a fresh registration token from the push-messaging service.
type Issuer interface {
	RequestToken(ctx context.Context, reg domain.Registration) (string, error)
}

// IssuerFunc adapts a function to Issuer.
type IssuerFunc func(ctx context.Context, reg domain.Registration) (string, error)

// RequestToken implements Issuer.
func (f IssuerFunc) RequestToken(ctx context.Context, reg domain.Registration) (string, error) {
	return f(ctx, reg)
}

// Passthrough accepts whatever token the extension currently holds, without
// asking the push service. It is used when push delivery is not configured.
var Passthrough Issuer = IssuerFunc(func(ctx context.Context, reg domain.Registration) (string, error) {
	if reg.Token == "" {
		return "", errors.New("no registration token supplied")
	}
	return reg.Token, nil
})

// Manager applies the staleness policy to a profile's push token.
type Manager struct {
	issuer    Issuer
	threshold time.Duration
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithThreshold overrides StalenessThreshold.
func WithThreshold(d time.Duration) Option {
	return func(m *Manager) { m.threshold = d }
}

// NewManager creates a Manager that reissues tokens through issuer.
func NewManager(issuer Issuer, opts ...Option) *Manager {
	m := &Manager{
		issuer:    issuer,
		threshold: StalenessThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsStale reports whether a token issued at issuedAt (Unix ms) must be reissued
// at now. Exactly at the threshold the token is still fresh.
func (m *Manager) IsStale(token string, issuedAt int64, now time.Time) bool {
	if token == "" || issuedAt == 0 {
		return true
	}
	return now.UnixMilli()-issuedAt > m.threshold.Milliseconds()
}

// EnsureFresh returns the profile's token when it is fresh, or a newly issued
// one stamped with the current time. The profile is not modified.
func (m *Manager) EnsureFresh(ctx context.Context, profile *domain.UserProfile, reg domain.Registration) (domain.Token, error) {
	now := m.now()
	current := profile.CurrentToken()

	if !m.IsStale(current.Value, current.IssuedAt, now) {
		return current, nil
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("user_id", profile.ID).
		Int64("issued_at", current.IssuedAt).
		Msg("Push token stale, requesting a new one")

	value, err := m.issuer.RequestToken(ctx, reg)
	if err != nil {
		return current, fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	if value == "" {
		return current, fmt.Errorf("%w: issuer returned an empty token", ErrTokenUnavailable)
	}

	return domain.Token{Value: value, IssuedAt: now.UnixMilli()}, nil
}
