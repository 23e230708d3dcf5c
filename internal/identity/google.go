package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/retry"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrMissingAccessToken is returned when no access token was supplied.
var ErrMissingAccessToken = errors.New("identity: missing access token")

// RevokeURL is Google's OAuth 2.0 token revocation endpoint.
var RevokeURL = "https://oauth2.googleapis.com/revoke"

// GoogleResolver resolves the user behind a Google OAuth access token, the
// same token the extension obtains through chrome.identity.getAuthToken.
type GoogleResolver struct {
	accessToken string
	opts        []option.ClientOption
}

// NewGoogleResolver creates a resolver for one access token. Extra options are
// appended after the token source (e.g. option.WithEndpoint in tests).
func NewGoogleResolver(accessToken string, opts ...option.ClientOption) *GoogleResolver {
	return &GoogleResolver{accessToken: accessToken, opts: opts}
}

// Resolve calls the userinfo endpoint.
func (g *GoogleResolver) Resolve(ctx context.Context) (domain.Identity, error) {
	if g.accessToken == "" {
		return domain.Identity{}, ErrMissingAccessToken
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: g.accessToken})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, g.opts...)

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("GoogleResolver: creating service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("GoogleResolver: userinfo: %w", err)
	}

	return domain.Identity{ID: info.Id, Email: info.Email}, nil
}

// revokeRetry covers transport errors and 5xx answers from the revocation endpoint.
var revokeRetry = retry.Config{MaxRetries: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}

// Revoke invalidates an access token, mirroring the extension's sign-out flow.
// A 4xx answer is final and is not retried.
func Revoke(ctx context.Context, client *http.Client, accessToken string) error {
	if accessToken == "" {
		return ErrMissingAccessToken
	}
	if client == nil {
		client = http.DefaultClient
	}

	_, err := retry.Do(ctx, revokeRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, revokeOnce(ctx, client, accessToken)
	})
	return err
}

func revokeOnce(ctx context.Context, client *http.Client, accessToken string) error {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return retry.Permanent(fmt.Errorf("Revoke: building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("Revoke: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(fmt.Errorf("Revoke: token refused with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("Revoke: unexpected status %d", resp.StatusCode)
	}
}
