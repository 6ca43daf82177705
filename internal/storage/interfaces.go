// Package storage defines the persistence interfaces the copy-trader core
// depends on. Implementations live in subpackages: postgres for durable
// state, memory for tests and ephemeral runs, clickhouse for the analytics
// archive.
package storage

import (
	"context"

	"solana-copy-trader/internal/domain"
)

// UserStore persists users, their custody wallet link, and their settings.
type UserStore interface {
	// Insert stores a new user. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, user *domain.User) error

	// GetByID fetches a user. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// UpdateSettings replaces a user's settings.
	// Returns ErrNotFound if the user does not exist.
	UpdateSettings(ctx context.Context, id string, settings domain.UserSettings) error

	// LinkWallet attaches a custody wallet to a user.
	// Returns ErrNotFound if the user does not exist.
	LinkWallet(ctx context.Context, id, publicKey string, encryptedSecret []byte) error

	// List returns all users.
	List(ctx context.Context) ([]*domain.User, error)
}

// TrackedWalletStore persists the alpha-wallet registry. Wallets are
// soft-deleted: removal flips IsActive, the row stays.
type TrackedWalletStore interface {
	// Upsert stores a wallet, replacing label and active flag if the
	// address already exists.
	Upsert(ctx context.Context, wallet *domain.TrackedWallet) error

	// SetActive flips a wallet's active flag.
	// Returns ErrNotFound if the address does not exist.
	SetActive(ctx context.Context, address string, active bool) error

	// GetByAddress fetches a wallet. Returns ErrNotFound if absent.
	GetByAddress(ctx context.Context, address string) (*domain.TrackedWallet, error)

	// List returns all wallets, active and inactive.
	List(ctx context.Context) ([]*domain.TrackedWallet, error)
}

// SubscriptionStore persists user-to-wallet subscriptions.
type SubscriptionStore interface {
	// Insert stores a subscription. Inserting an existing pair is a no-op.
	Insert(ctx context.Context, sub *domain.Subscription) error

	// Delete removes a subscription. Deleting an absent pair is a no-op.
	Delete(ctx context.Context, userID, walletAddress string) error

	// List returns all subscriptions.
	List(ctx context.Context) ([]*domain.Subscription, error)
}

// TradeRecordStore persists copy-trade outcomes. Records are append-only and
// keyed by the deterministic attempt ID, so a duplicate insert signals a
// replayed attempt.
type TradeRecordStore interface {
	// Insert stores a trade record.
	// Returns ErrDuplicateKey if the attempt ID exists.
	Insert(ctx context.Context, rec *domain.TradeRecord) error

	// GetByID fetches a record. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*domain.TradeRecord, error)

	// ListByUser returns a user's most recent records, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.TradeRecord, error)

	// ListByUserSince returns a user's records created at or after the
	// given Unix millisecond timestamp, used to rebuild rate-limit
	// counters on startup.
	ListByUserSince(ctx context.Context, userID string, sinceMs int64) ([]*domain.TradeRecord, error)
}
