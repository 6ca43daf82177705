package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// TrackedWalletStore is an in-memory implementation of storage.TrackedWalletStore.
type TrackedWalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TrackedWallet // keyed by address
}

// NewTrackedWalletStore creates a new in-memory tracked wallet store.
func NewTrackedWalletStore() *TrackedWalletStore {
	return &TrackedWalletStore{
		data: make(map[string]*domain.TrackedWallet),
	}
}

// Compile-time interface check.
var _ storage.TrackedWalletStore = (*TrackedWalletStore)(nil)

// Upsert stores a wallet, replacing an existing entry for the address.
func (s *TrackedWalletStore) Upsert(_ context.Context, w *domain.TrackedWallet) error {
	if w == nil || w.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *w
	s.data[w.Address] = &copy
	return nil
}

// SetActive flips a wallet's active flag.
func (s *TrackedWalletStore) SetActive(_ context.Context, address string, active bool) error {
	if address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.data[address]
	if !exists {
		return storage.ErrNotFound
	}
	w.IsActive = active
	return nil
}

// GetByAddress fetches a wallet. Returns ErrNotFound if absent.
func (s *TrackedWalletStore) GetByAddress(_ context.Context, address string) (*domain.TrackedWallet, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *w
	return &copy, nil
}

// List returns all wallets sorted by address.
func (s *TrackedWalletStore) List(_ context.Context) ([]*domain.TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TrackedWallet, 0, len(s.data))
	for _, w := range s.data {
		copy := *w
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
