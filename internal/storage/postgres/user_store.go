package postgres

import (
	"context"
	"fmt"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// UserStore implements storage.UserStore using PostgreSQL.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

// Insert adds a new user. Returns ErrDuplicateKey if the ID exists.
func (s *UserStore) Insert(ctx context.Context, u *domain.User) error {
	if u == nil || u.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO users (
			id, wallet_public_key, encrypted_secret,
			trade_amount, slippage_bps, auto_trading_enabled,
			buy_only, sell_only, delay_ms,
			max_trades_per_token, max_trades_per_hour,
			created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11,
			$12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		u.ID, u.WalletPublicKey, u.EncryptedSecret,
		u.Settings.TradeAmount, u.Settings.SlippageBps, u.Settings.AutoTradingEnabled,
		u.Settings.BuyOnly, u.Settings.SellOnly, u.Settings.DelayMs,
		u.Settings.MaxTradesPerToken, u.Settings.MaxTradesPerHour,
		u.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID fetches a user. Returns ErrNotFound if absent.
func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT id, wallet_public_key, encrypted_secret,
		       trade_amount, slippage_bps, auto_trading_enabled,
		       buy_only, sell_only, delay_ms,
		       max_trades_per_token, max_trades_per_hour,
		       created_at
		FROM users
		WHERE id = $1
	`

	var u domain.User
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.WalletPublicKey, &u.EncryptedSecret,
		&u.Settings.TradeAmount, &u.Settings.SlippageBps, &u.Settings.AutoTradingEnabled,
		&u.Settings.BuyOnly, &u.Settings.SellOnly, &u.Settings.DelayMs,
		&u.Settings.MaxTradesPerToken, &u.Settings.MaxTradesPerHour,
		&u.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UpdateSettings replaces a user's settings.
func (s *UserStore) UpdateSettings(ctx context.Context, id string, settings domain.UserSettings) error {
	if id == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE users SET
			trade_amount = $2, slippage_bps = $3, auto_trading_enabled = $4,
			buy_only = $5, sell_only = $6, delay_ms = $7,
			max_trades_per_token = $8, max_trades_per_hour = $9
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		id,
		settings.TradeAmount, settings.SlippageBps, settings.AutoTradingEnabled,
		settings.BuyOnly, settings.SellOnly, settings.DelayMs,
		settings.MaxTradesPerToken, settings.MaxTradesPerHour,
	)
	if err != nil {
		return fmt.Errorf("update user settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LinkWallet attaches a custody wallet to a user.
func (s *UserStore) LinkWallet(ctx context.Context, id, publicKey string, encryptedSecret []byte) error {
	if id == "" || publicKey == "" {
		return storage.ErrInvalidInput
	}

	query := `UPDATE users SET wallet_public_key = $2, encrypted_secret = $3 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, publicKey, encryptedSecret)
	if err != nil {
		return fmt.Errorf("link wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all users ordered by ID.
func (s *UserStore) List(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT id, wallet_public_key, encrypted_secret,
		       trade_amount, slippage_bps, auto_trading_enabled,
		       buy_only, sell_only, delay_ms,
		       max_trades_per_token, max_trades_per_hour,
		       created_at
		FROM users
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.ID, &u.WalletPublicKey, &u.EncryptedSecret,
			&u.Settings.TradeAmount, &u.Settings.SlippageBps, &u.Settings.AutoTradingEnabled,
			&u.Settings.BuyOnly, &u.Settings.SellOnly, &u.Settings.DelayMs,
			&u.Settings.MaxTradesPerToken, &u.Settings.MaxTradesPerHour,
			&u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}
