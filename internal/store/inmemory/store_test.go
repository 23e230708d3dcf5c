package inmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/store"
	"github.com/stretchr/testify/require"
)

func TestStore_ProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.GetProfile(ctx, "u1")
	require.True(t, errors.Is(err, store.ErrNotFound))

	p := &domain.UserProfile{ID: "u1", Email: "a@example.com", MemberID: domain.StringPtr("12345")}
	require.NoError(t, s.UpsertProfile(ctx, p))

	// mutating the caller's copy must not leak into the store
	p.Email = "changed@example.com"

	got, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "a@example.com", got.Email)
	require.Equal(t, "12345", domain.StringValue(got.MemberID))
}

func TestStore_ReceiptUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	rec := domain.StoredReceipt{
		TradeDatetime: domain.StringPtr("2024/03/09 14:32"),
		Items: []domain.ReceiptItem{
			{ItemID: domain.StringPtr("1001")},
			{ItemID: domain.StringPtr("2002")},
		},
	}
	require.NoError(t, s.UpsertReceipt(ctx, "12345", "r1", rec))
	require.NoError(t, s.UpsertReceipt(ctx, "12345", "r1", rec))

	got, err := s.GetReceipt(ctx, "12345", "r1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	require.Equal(t, 1, s.Len())

	ids, err := s.ListReceiptIDs(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, ids)
}

func TestStore_ListReceiptIDsIgnoresOtherDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.UpsertReceipt(ctx, "12345", "b", domain.StoredReceipt{}))
	require.NoError(t, s.UpsertReceipt(ctx, "12345", "a", domain.StoredReceipt{}))
	require.NoError(t, s.UpsertReceipt(ctx, "99999", "c", domain.StoredReceipt{}))
	require.NoError(t, s.UpsertTokenSummary(ctx, "12345", domain.TokenSummary{Value: "tok", IssuedAt: 1}))

	ids, err := s.ListReceiptIDs(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestStore_TokenSummary(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.UpsertTokenSummary(ctx, "12345", domain.TokenSummary{Value: "tok", IssuedAt: 42}))
	got, err := s.GetTokenSummary(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, "tok", got.Value)
	require.Equal(t, int64(42), got.IssuedAt)
}
