package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu   sync.RWMutex
	data map[string]*domain.User // keyed by user id
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		data: make(map[string]*domain.User),
	}
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

// Insert adds a new user. Returns ErrDuplicateKey if the ID exists.
func (s *UserStore) Insert(_ context.Context, u *domain.User) error {
	if u == nil || u.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[u.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *u
	s.data[u.ID] = &copy
	return nil
}

// GetByID fetches a user. Returns ErrNotFound if absent.
func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *u
	return &copy, nil
}

// UpdateSettings replaces a user's settings.
func (s *UserStore) UpdateSettings(_ context.Context, id string, settings domain.UserSettings) error {
	if id == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	u.Settings = settings
	return nil
}

// LinkWallet attaches a custody wallet to a user.
func (s *UserStore) LinkWallet(_ context.Context, id, publicKey string, encryptedSecret []byte) error {
	if id == "" || publicKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	u.WalletPublicKey = publicKey
	u.EncryptedSecret = append([]byte(nil), encryptedSecret...)
	return nil
}

// List returns all users sorted by ID.
func (s *UserStore) List(_ context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.User, 0, len(s.data))
	for _, u := range s.data {
		copy := *u
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
