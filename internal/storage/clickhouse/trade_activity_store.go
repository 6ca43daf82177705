package clickhouse

import (
	"context"
	"fmt"

	"solana-copy-trader/internal/domain"
)

// TradeActivityStore archives copy-trade outcomes to ClickHouse for offline
// analysis (leader performance, denial statistics, fill quality). Writes are
// best-effort: callers log insert errors and move on, the operational path
// never blocks on the archive.
type TradeActivityStore struct {
	conn *Conn
}

// NewTradeActivityStore creates a new TradeActivityStore.
func NewTradeActivityStore(conn *Conn) *TradeActivityStore {
	return &TradeActivityStore{conn: conn}
}

// Insert archives one trade outcome.
func (s *TradeActivityStore) Insert(ctx context.Context, rec *domain.TradeRecord) error {
	if rec == nil || rec.ID == "" {
		return nil
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO trade_activity (
			attempt_id, user_id, source_wallet,
			tx_signature_in, tx_signature_out,
			input_asset, output_asset, amount_in, amount_out,
			scaled_from_amount, status, error, created_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.UserID, rec.SourceWallet,
		rec.TxSignatureIn, rec.TxSignatureOut,
		rec.InputAsset, rec.OutputAsset, rec.AmountIn, rec.AmountOut,
		rec.ScaledFromAmount, rec.Status, rec.Error, uint64(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trade activity: %w", err)
	}
	return nil
}

// InsertBulk archives multiple outcomes in one batch.
func (s *TradeActivityStore) InsertBulk(ctx context.Context, recs []*domain.TradeRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_activity (
			attempt_id, user_id, source_wallet,
			tx_signature_in, tx_signature_out,
			input_asset, output_asset, amount_in, amount_out,
			scaled_from_amount, status, error, created_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, rec := range recs {
		err = batch.Append(
			rec.ID, rec.UserID, rec.SourceWallet,
			rec.TxSignatureIn, rec.TxSignatureOut,
			rec.InputAsset, rec.OutputAsset, rec.AmountIn, rec.AmountOut,
			rec.ScaledFromAmount, rec.Status, rec.Error, uint64(rec.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// CountByStatus returns archived outcome counts per status for a user, used
// by offline reports.
func (s *TradeActivityStore) CountByStatus(ctx context.Context, userID string) (map[string]uint64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT status, count() FROM trade_activity
		WHERE user_id = ?
		GROUP BY status
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var status string
		var n uint64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
