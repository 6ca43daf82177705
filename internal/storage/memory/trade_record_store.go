package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// TradeRecordStore is an in-memory implementation of storage.TradeRecordStore.
type TradeRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRecord // keyed by attempt id
}

// NewTradeRecordStore creates a new in-memory trade record store.
func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{
		data: make(map[string]*domain.TradeRecord),
	}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if the attempt ID exists.
func (s *TradeRecordStore) Insert(_ context.Context, rec *domain.TradeRecord) error {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *rec
	s.data[rec.ID] = &copy
	return nil
}

// GetByID fetches a record. Returns ErrNotFound if absent.
func (s *TradeRecordStore) GetByID(_ context.Context, id string) (*domain.TradeRecord, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *rec
	return &copy, nil
}

// ListByUser returns a user's most recent records, newest first.
func (s *TradeRecordStore) ListByUser(_ context.Context, userID string, limit int) ([]*domain.TradeRecord, error) {
	if userID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.collect(userID, 0)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByUserSince returns a user's records created at or after sinceMs,
// newest first.
func (s *TradeRecordStore) ListByUserSince(_ context.Context, userID string, sinceMs int64) ([]*domain.TradeRecord, error) {
	if userID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(userID, sinceMs), nil
}

// collect gathers a user's records newest first. Callers must hold mu.
func (s *TradeRecordStore) collect(userID string, sinceMs int64) []*domain.TradeRecord {
	out := make([]*domain.TradeRecord, 0)
	for _, rec := range s.data {
		if rec.UserID != userID || rec.CreatedAt < sinceMs {
			continue
		}
		copy := *rec
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}
