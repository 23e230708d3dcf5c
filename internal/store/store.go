// Package store defines the document hierarchy the reconciler writes to:
//
//	Users/{id}
//	Members/{memberId}/receipts/{receiptId}
//	Members/{memberId}/profile/fcmToken
//
// Every write is a full-document upsert keyed by path, so repeating a write is
// a no-op overwrite.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

var (
	// ErrNotFound is returned when no document exists at a key.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidKey is returned for empty key segments or segments containing "/".
	ErrInvalidKey = errors.New("invalid document key")
)

const (
	UsersCollection    = "Users"
	MembersCollection  = "Members"
	ReceiptsCollection = "receipts"
	ProfileCollection  = "profile"
	TokenSummaryDoc    = "fcmToken"
)

// Key is a slash-separated document path.
type Key string

func join(segments ...string) (Key, error) {
	for _, s := range segments {
		if s == "" || strings.Contains(s, "/") {
			return "", ErrInvalidKey
		}
	}
	return Key(strings.Join(segments, "/")), nil
}

// UserKey is Users/{id}.
func UserKey(userID string) (Key, error) {
	return join(UsersCollection, userID)
}

// MemberKey is Members/{memberId}.
func MemberKey(memberID string) (Key, error) {
	return join(MembersCollection, memberID)
}

// ReceiptKey is Members/{memberId}/receipts/{receiptId}.
func ReceiptKey(memberID, receiptID string) (Key, error) {
	return join(MembersCollection, memberID, ReceiptsCollection, receiptID)
}

// TokenSummaryKey is Members/{memberId}/profile/fcmToken.
func TokenSummaryKey(memberID string) (Key, error) {
	return join(MembersCollection, memberID, ProfileCollection, TokenSummaryDoc)
}

// Repository is the document-store collaborator used by the reconciler.
type Repository interface {
	// GetProfile returns ErrNotFound when Users/{id} does not exist.
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.UserProfile) error

	GetReceipt(ctx context.Context, memberID, receiptID string) (*domain.StoredReceipt, error)
	UpsertReceipt(ctx context.Context, memberID, receiptID string, receipt domain.StoredReceipt) error
	ListReceiptIDs(ctx context.Context, memberID string) ([]string, error)

	GetTokenSummary(ctx context.Context, memberID string) (*domain.TokenSummary, error)
	UpsertTokenSummary(ctx context.Context, memberID string, summary domain.TokenSummary) error

	Close() error
}
