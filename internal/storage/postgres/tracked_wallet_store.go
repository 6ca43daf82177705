package postgres

import (
	"context"
	"fmt"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// TrackedWalletStore implements storage.TrackedWalletStore using PostgreSQL.
type TrackedWalletStore struct {
	pool *Pool
}

// NewTrackedWalletStore creates a new TrackedWalletStore.
func NewTrackedWalletStore(pool *Pool) *TrackedWalletStore {
	return &TrackedWalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TrackedWalletStore = (*TrackedWalletStore)(nil)

// Upsert stores a wallet, replacing label and active flag on conflict.
func (s *TrackedWalletStore) Upsert(ctx context.Context, w *domain.TrackedWallet) error {
	if w == nil || w.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tracked_wallets (address, label, is_active, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE
		SET label = EXCLUDED.label, is_active = EXCLUDED.is_active
	`

	_, err := s.pool.Exec(ctx, query, w.Address, w.Label, w.IsActive, w.AddedAt)
	if err != nil {
		return fmt.Errorf("upsert tracked wallet: %w", err)
	}
	return nil
}

// SetActive flips a wallet's active flag.
func (s *TrackedWalletStore) SetActive(ctx context.Context, address string, active bool) error {
	if address == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tracked_wallets SET is_active = $2 WHERE address = $1`,
		address, active)
	if err != nil {
		return fmt.Errorf("set tracked wallet active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByAddress fetches a wallet. Returns ErrNotFound if absent.
func (s *TrackedWalletStore) GetByAddress(ctx context.Context, address string) (*domain.TrackedWallet, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}

	var w domain.TrackedWallet
	err := s.pool.QueryRow(ctx,
		`SELECT address, label, is_active, added_at FROM tracked_wallets WHERE address = $1`,
		address).Scan(&w.Address, &w.Label, &w.IsActive, &w.AddedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get tracked wallet: %w", err)
	}
	return &w, nil
}

// List returns all wallets ordered by address.
func (s *TrackedWalletStore) List(ctx context.Context) ([]*domain.TrackedWallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, label, is_active, added_at FROM tracked_wallets ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list tracked wallets: %w", err)
	}
	defer rows.Close()

	var out []*domain.TrackedWallet
	for rows.Next() {
		var w domain.TrackedWallet
		if err := rows.Scan(&w.Address, &w.Label, &w.IsActive, &w.AddedAt); err != nil {
			return nil, fmt.Errorf("scan tracked wallet: %w", err)
		}
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked wallets: %w", err)
	}
	return out, nil
}
