package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/store"
)

// Store is an in-memory implementation of store.Repository.
// Documents are kept as JSON so callers never share memory with the store.
// It is safe for concurrent use; data is lost on restart.
type Store struct {
	mu   sync.RWMutex
	docs map[store.Key][]byte
}

// NewStore creates an empty in-memory document store.
func NewStore() *Store {
	return &Store{
		docs: make(map[store.Key][]byte),
	}
}

func (s *Store) put(key store.Key, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = data
	return nil
}

func (s *Store) get(key store.Key, v interface{}) error {
	s.mu.RLock()
	data, ok := s.docs[key]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%s: %w", key, store.ErrNotFound)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// GetProfile implements store.Repository.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	key, err := store.UserKey(userID)
	if err != nil {
		return nil, err
	}
	var p domain.UserProfile
	if err := s.get(key, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile implements store.Repository.
func (s *Store) UpsertProfile(ctx context.Context, profile *domain.UserProfile) error {
	key, err := store.UserKey(profile.ID)
	if err != nil {
		return err
	}
	return s.put(key, profile)
}

// GetReceipt implements store.Repository.
func (s *Store) GetReceipt(ctx context.Context, memberID, receiptID string) (*domain.StoredReceipt, error) {
	key, err := store.ReceiptKey(memberID, receiptID)
	if err != nil {
		return nil, err
	}
	var r domain.StoredReceipt
	if err := s.get(key, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertReceipt implements store.Repository.
func (s *Store) UpsertReceipt(ctx context.Context, memberID, receiptID string, receipt domain.StoredReceipt) error {
	key, err := store.ReceiptKey(memberID, receiptID)
	if err != nil {
		return err
	}
	return s.put(key, receipt)
}

// ListReceiptIDs implements store.Repository.
func (s *Store) ListReceiptIDs(ctx context.Context, memberID string) ([]string, error) {
	member, err := store.MemberKey(memberID)
	if err != nil {
		return nil, err
	}
	prefix := string(member) + "/" + store.ReceiptsCollection + "/"

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for key := range s.docs {
		if rest, ok := strings.CutPrefix(string(key), prefix); ok && !strings.Contains(rest, "/") {
			ids = append(ids, rest)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetTokenSummary implements store.Repository.
func (s *Store) GetTokenSummary(ctx context.Context, memberID string) (*domain.TokenSummary, error) {
	key, err := store.TokenSummaryKey(memberID)
	if err != nil {
		return nil, err
	}
	var t domain.TokenSummary
	if err := s.get(key, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertTokenSummary implements store.Repository.
func (s *Store) UpsertTokenSummary(ctx context.Context, memberID string, summary domain.TokenSummary) error {
	key, err := store.TokenSummaryKey(memberID)
	if err != nil {
		return err
	}
	return s.put(key, summary)
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close implements store.Repository.
func (s *Store) Close() error {
	return nil
}

var _ store.Repository = (*Store)(nil)
