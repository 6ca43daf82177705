package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

type subKey struct {
	userID  string
	address string
}

// SubscriptionStore is an in-memory implementation of storage.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	data map[subKey]*domain.Subscription
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		data: make(map[subKey]*domain.Subscription),
	}
}

// Compile-time interface check.
var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// Insert stores a subscription. Inserting an existing pair is a no-op.
func (s *SubscriptionStore) Insert(_ context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.UserID == "" || sub.WalletAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := subKey{sub.UserID, sub.WalletAddress}
	if _, exists := s.data[key]; exists {
		return nil
	}

	copy := *sub
	s.data[key] = &copy
	return nil
}

// Delete removes a subscription. Deleting an absent pair is a no-op.
func (s *SubscriptionStore) Delete(_ context.Context, userID, walletAddress string) error {
	if userID == "" || walletAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, subKey{userID, walletAddress})
	return nil
}

// List returns all subscriptions sorted by user then wallet.
func (s *SubscriptionStore) List(_ context.Context) ([]*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Subscription, 0, len(s.data))
	for _, sub := range s.data {
		copy := *sub
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].WalletAddress < out[j].WalletAddress
	})
	return out, nil
}
