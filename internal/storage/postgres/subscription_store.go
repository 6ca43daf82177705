package postgres

import (
	"context"
	"fmt"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// SubscriptionStore implements storage.SubscriptionStore using PostgreSQL.
type SubscriptionStore struct {
	pool *Pool
}

// NewSubscriptionStore creates a new SubscriptionStore.
func NewSubscriptionStore(pool *Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// Insert stores a subscription. Inserting an existing pair is a no-op.
func (s *SubscriptionStore) Insert(ctx context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.UserID == "" || sub.WalletAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO subscriptions (user_id, wallet_address, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, wallet_address) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query, sub.UserID, sub.WalletAddress, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription. Deleting an absent pair is a no-op.
func (s *SubscriptionStore) Delete(ctx context.Context, userID, walletAddress string) error {
	if userID == "" || walletAddress == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND wallet_address = $2`,
		userID, walletAddress)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// List returns all subscriptions ordered by user then wallet.
func (s *SubscriptionStore) List(ctx context.Context) ([]*domain.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, wallet_address, created_at FROM subscriptions ORDER BY user_id, wallet_address`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.UserID, &sub.WalletAddress, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}
