package firestoredb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/store"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Repository is the Firestore implementation of store.Repository. It holds a
// single client for the lifetime of the process.
type Repository struct {
	client *firestore.Client
}

// NewRepository connects to the given Firestore database. An empty databaseID
// selects the project's default database.
func NewRepository(ctx context.Context, projectID, databaseID string, opts ...option.ClientOption) (*Repository, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client}, nil
}

// Close closes the Firestore client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) get(ctx context.Context, key store.Key, v interface{}) error {
	snap, err := r.client.Doc(string(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s: %w", key, store.ErrNotFound)
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := snap.DataTo(v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (r *Repository) set(ctx context.Context, key store.Key, v interface{}) error {
	if _, err := r.client.Doc(string(key)).Set(ctx, v); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// GetProfile reads Users/{id}.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	key, err := store.UserKey(userID)
	if err != nil {
		return nil, err
	}
	var p domain.UserProfile
	if err := r.get(ctx, key, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile overwrites Users/{id} with the full profile.
func (r *Repository) UpsertProfile(ctx context.Context, profile *domain.UserProfile) error {
	key, err := store.UserKey(profile.ID)
	if err != nil {
		return err
	}
	return r.set(ctx, key, profile)
}

// GetReceipt reads Members/{memberId}/receipts/{receiptId}.
func (r *Repository) GetReceipt(ctx context.Context, memberID, receiptID string) (*domain.StoredReceipt, error) {
	key, err := store.ReceiptKey(memberID, receiptID)
	if err != nil {
		return nil, err
	}
	var rec domain.StoredReceipt
	if err := r.get(ctx, key, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertReceipt overwrites Members/{memberId}/receipts/{receiptId}.
func (r *Repository) UpsertReceipt(ctx context.Context, memberID, receiptID string, receipt domain.StoredReceipt) error {
	key, err := store.ReceiptKey(memberID, receiptID)
	if err != nil {
		return err
	}
	return r.set(ctx, key, receipt)
}

// ListReceiptIDs lists the receipt document ids stored under a member.
func (r *Repository) ListReceiptIDs(ctx context.Context, memberID string) ([]string, error) {
	member, err := store.MemberKey(memberID)
	if err != nil {
		return nil, err
	}

	iter := r.client.Doc(string(member)).Collection(store.ReceiptsCollection).DocumentRefs(ctx)
	ids := []string{}
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListReceiptIDs: iterating %s: %w", member, err)
		}
		ids = append(ids, ref.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetTokenSummary reads Members/{memberId}/profile/fcmToken.
func (r *Repository) GetTokenSummary(ctx context.Context, memberID string) (*domain.TokenSummary, error) {
	key, err := store.TokenSummaryKey(memberID)
	if err != nil {
		return nil, err
	}
	var t domain.TokenSummary
	if err := r.get(ctx, key, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertTokenSummary overwrites Members/{memberId}/profile/fcmToken.
func (r *Repository) UpsertTokenSummary(ctx context.Context, memberID string, summary domain.TokenSummary) error {
	key, err := store.TokenSummaryKey(memberID)
	if err != nil {
		return err
	}
	return r.set(ctx, key, summary)
}

var _ store.Repository = (*Repository)(nil)
