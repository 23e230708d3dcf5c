package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/retry"
)

var (
	// ErrNoIdentity is returned when the collaborator answered without a user id.
	ErrNoIdentity = errors.New("identity: no user id")
	// ErrIdentityTimeout is returned when the collaborator did not answer in time.
	ErrIdentityTimeout = errors.New("identity: lookup timed out")
)

// DefaultTimeout bounds a single identity lookup.
const DefaultTimeout = 10 * time.Second

// Resolver yields the current user's stable id and email.
type Resolver interface {
	Resolve(ctx context.Context) (domain.Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) (domain.Identity, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context) (domain.Identity, error) {
	return f(ctx)
}

// Static always resolves to the same identity.
type Static domain.Identity

// Resolve implements Resolver.
func (s Static) Resolve(ctx context.Context) (domain.Identity, error) {
	return domain.Identity(s), nil
}

type timeoutResolver struct {
	next    Resolver
	timeout time.Duration
}

// WithTimeout guards next with an explicit deadline, since the host runtime's
// identity callback has no error channel and may never fire.
func WithTimeout(next Resolver, timeout time.Duration) Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutResolver{next: next, timeout: timeout}
}

// Resolve implements Resolver.
func (r *timeoutResolver) Resolve(ctx context.Context) (domain.Identity, error) {
	id, err := retry.Do(ctx, retry.Config{Timeout: r.timeout}, func(ctx context.Context) (domain.Identity, error) {
		return r.next.Resolve(ctx)
	})
	if err != nil {
		if errors.Is(err, retry.ErrTimeout) {
			return domain.Identity{}, fmt.Errorf("%w: %w", ErrIdentityTimeout, err)
		}
		return domain.Identity{}, err
	}
	if id.ID == "" {
		return domain.Identity{}, ErrNoIdentity
	}
	return id, nil
}
