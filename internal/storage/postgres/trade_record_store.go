package postgres

import (
	"context"
	"fmt"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const tradeRecordColumns = `
	id, user_id, source_wallet,
	tx_signature_in, tx_signature_out,
	input_asset, output_asset, amount_in, amount_out,
	scaled_from_amount, status, error, created_at
`

// Insert adds a new record. Returns ErrDuplicateKey if the attempt ID exists.
func (s *TradeRecordStore) Insert(ctx context.Context, rec *domain.TradeRecord) error {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_records (` + tradeRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.SourceWallet,
		rec.TxSignatureIn, rec.TxSignatureOut,
		rec.InputAsset, rec.OutputAsset, rec.AmountIn, rec.AmountOut,
		rec.ScaledFromAmount, rec.Status, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// GetByID fetches a record. Returns ErrNotFound if absent.
func (s *TradeRecordStore) GetByID(ctx context.Context, id string) (*domain.TradeRecord, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `SELECT ` + tradeRecordColumns + ` FROM trade_records WHERE id = $1`

	var rec domain.TradeRecord
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.UserID, &rec.SourceWallet,
		&rec.TxSignatureIn, &rec.TxSignatureOut,
		&rec.InputAsset, &rec.OutputAsset, &rec.AmountIn, &rec.AmountOut,
		&rec.ScaledFromAmount, &rec.Status, &rec.Error, &rec.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record: %w", err)
	}
	return &rec, nil
}

// ListByUser returns a user's most recent records, newest first.
func (s *TradeRecordStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.TradeRecord, error) {
	if userID == "" {
		return nil, storage.ErrInvalidInput
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return s.queryRecords(ctx, query, userID, limit)
}

// ListByUserSince returns a user's records created at or after sinceMs,
// newest first.
func (s *TradeRecordStore) ListByUserSince(ctx context.Context, userID string, sinceMs int64) ([]*domain.TradeRecord, error) {
	if userID == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	return s.queryRecords(ctx, query, userID, sinceMs)
}

func (s *TradeRecordStore) queryRecords(ctx context.Context, query string, args ...any) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trade records: %w", err)
	}
	defer rows.Close()

	var out []*domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.SourceWallet,
			&rec.TxSignatureIn, &rec.TxSignatureOut,
			&rec.InputAsset, &rec.OutputAsset, &rec.AmountIn, &rec.AmountOut,
			&rec.ScaledFromAmount, &rec.Status, &rec.Error, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade records: %w", err)
	}
	return out, nil
}
