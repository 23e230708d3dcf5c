package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestWithTimeout_PassesThrough(t *testing.T) {
	r := WithTimeout(Static{ID: "u1", Email: "a@example.com"}, time.Second)
	id, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.Identity{ID: "u1", Email: "a@example.com"}, id)
}

func TestWithTimeout_HangingCollaborator(t *testing.T) {
	hang := ResolverFunc(func(ctx context.Context) (domain.Identity, error) {
		<-ctx.Done()
		return domain.Identity{}, ctx.Err()
	})

	start := time.Now()
	_, err := WithTimeout(hang, 20*time.Millisecond).Resolve(context.Background())
	require.True(t, errors.Is(err, ErrIdentityTimeout), "got %v", err)
	require.Less(t, time.Since(start), time.Second)
}

func TestWithTimeout_CollaboratorIgnoresContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	silent := ResolverFunc(func(ctx context.Context) (domain.Identity, error) {
		<-block
		return domain.Identity{ID: "late"}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := WithTimeout(silent, 20*time.Millisecond).Resolve(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrIdentityTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve did not return after its deadline")
	}
}

func TestWithTimeout_EmptyID(t *testing.T) {
	_, err := WithTimeout(Static{Email: "a@example.com"}, time.Second).Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoIdentity)
}

func TestGoogleResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ya29.token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":    "1178",
			"email": "shopper@example.com",
		})
	}))
	defer srv.Close()

	// WithHTTPClient bypasses the token source, so the bearer header comes from the transport.
	client := &http.Client{Transport: bearer{token: "ya29.token", next: http.DefaultTransport}}
	r := NewGoogleResolver("ya29.token", option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(client))

	id, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1178", id.ID)
	require.Equal(t, "shopper@example.com", id.Email)
}

func TestGoogleResolver_MissingToken(t *testing.T) {
	_, err := NewGoogleResolver("").Resolve(context.Background())
	require.ErrorIs(t, err, ErrMissingAccessToken)
}

type bearer struct {
	token string
	next  http.RoundTripper
}

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}

func TestRevoke(t *testing.T) {
	var gotToken string
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		r.ParseForm()
		gotToken = r.PostForm.Get("token")
		if gotToken == "expired" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	orig := RevokeURL
	RevokeURL = srv.URL
	defer func() { RevokeURL = orig }()

	require.NoError(t, Revoke(context.Background(), srv.Client(), "ya29.token"))
	require.Equal(t, "ya29.token", gotToken)

	calls = 0
	require.Error(t, Revoke(context.Background(), srv.Client(), "expired"))
	require.Equal(t, 1, calls, "a refused token is not retried")

	require.ErrorIs(t, Revoke(context.Background(), nil, ""), ErrMissingAccessToken)
}

func TestRevoke_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	origURL, origRetry := RevokeURL, revokeRetry
	RevokeURL = srv.URL
	revokeRetry.BaseDelay, revokeRetry.MaxDelay = time.Millisecond, 2*time.Millisecond
	defer func() { RevokeURL, revokeRetry = origURL, origRetry }()

	require.NoError(t, Revoke(context.Background(), srv.Client(), "ya29.token"))
	require.Equal(t, 3, calls)
}
