package tokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 9, 14, 32, 0, 0, time.UTC)

func countingIssuer(calls *int, token string, err error) Issuer {
	return IssuerFunc(func(ctx context.Context, reg domain.Registration) (string, error) {
		*calls++
		return token, err
	})
}

func TestThresholdMilliseconds(t *testing.T) {
	require.Equal(t, int64(2_592_000_000), StalenessThreshold.Milliseconds())
}

func TestEnsureFresh_Boundary(t *testing.T) {
	threshold := StalenessThreshold.Milliseconds()

	tests := []struct {
		name        string
		age         int64
		wantRefresh bool
	}{
		{"brand new", 0, false},
		{"one day", 24 * 60 * 60 * 1000, false},
		{"exactly at threshold", threshold, false},
		{"threshold plus one", threshold + 1, true},
		{"a year", 365 * 24 * 60 * 60 * 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			m := NewManager(countingIssuer(&calls, "new-token", nil), WithClock(func() time.Time { return fixedNow }))

			p := &domain.UserProfile{ID: "u1"}
			p.SetToken(domain.Token{Value: "old-token", IssuedAt: fixedNow.UnixMilli() - tt.age})

			got, err := m.EnsureFresh(context.Background(), p, domain.Registration{Token: "new-token"})
			require.NoError(t, err)

			if tt.wantRefresh {
				require.Equal(t, 1, calls)
				require.Equal(t, domain.Token{Value: "new-token", IssuedAt: fixedNow.UnixMilli()}, got)
			} else {
				require.Equal(t, 0, calls)
				require.Equal(t, p.CurrentToken(), got)
			}
			require.Equal(t, "old-token", p.FCMToken, "profile must not be modified")
		})
	}
}

func TestEnsureFresh_CustomThreshold(t *testing.T) {
	var calls int
	m := NewManager(countingIssuer(&calls, "tok-new", nil),
		WithClock(func() time.Time { return fixedNow }),
		WithThreshold(7*24*time.Hour),
	)

	profile := &domain.UserProfile{ID: "u1", FCMToken: "tok-old", FCMTokenTimestamp: fixedNow.Add(-8 * 24 * time.Hour).UnixMilli()}
	got, err := m.EnsureFresh(context.Background(), profile, domain.Registration{Token: "tok-new"})
	require.NoError(t, err)
	require.Equal(t, "tok-new", got.Value)
	require.Equal(t, 1, calls)

	profile.FCMTokenTimestamp = fixedNow.Add(-6 * 24 * time.Hour).UnixMilli()
	got, err = m.EnsureFresh(context.Background(), profile, domain.Registration{Token: "tok-new"})
	require.NoError(t, err)
	require.Equal(t, "tok-old", got.Value)
	require.Equal(t, 1, calls)
}

func TestEnsureFresh_MissingToken(t *testing.T) {
	calls := 0
	m := NewManager(countingIssuer(&calls, "new-token", nil), WithClock(func() time.Time { return fixedNow }))

	got, err := m.EnsureFresh(context.Background(), &domain.UserProfile{ID: "u1"}, domain.Registration{Token: "new-token"})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, fixedNow.UnixMilli(), got.IssuedAt)
}

func TestEnsureFresh_IssuerFailure(t *testing.T) {
	calls := 0
	m := NewManager(countingIssuer(&calls, "", errors.New("fcm down")), WithClock(func() time.Time { return fixedNow }))

	p := &domain.UserProfile{ID: "u1"}
	p.SetToken(domain.Token{Value: "old-token", IssuedAt: 1})

	got, err := m.EnsureFresh(context.Background(), p, domain.Registration{})
	require.ErrorIs(t, err, ErrTokenUnavailable)
	require.Equal(t, domain.Token{Value: "old-token", IssuedAt: 1}, got)
}

func TestEnsureFresh_EmptyTokenFromIssuer(t *testing.T) {
	calls := 0
	m := NewManager(countingIssuer(&calls, "", nil))

	_, err := m.EnsureFresh(context.Background(), &domain.UserProfile{ID: "u1"}, domain.Registration{})
	require.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestPassthrough(t *testing.T) {
	got, err := Passthrough.RequestToken(context.Background(), domain.Registration{Token: "fcm-1"})
	require.NoError(t, err)
	require.Equal(t, "fcm-1", got)

	_, err = Passthrough.RequestToken(context.Background(), domain.Registration{})
	require.Error(t, err)
}
