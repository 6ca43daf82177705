package domain

// Trade record status values.
const (
	TradeStatusSucceeded = "succeeded"
	TradeStatusFailed    = "failed"
)

// TradeRecord is the persisted outcome of a copy-trade attempt.
// Corresponds to the trade_records table.
type TradeRecord struct {
	ID           string // attempt ID (deterministic hash)
	UserID       string
	SourceWallet string

	TxSignatureIn  string // signal transaction (the alpha wallet's swap)
	TxSignatureOut string // our executed swap, empty on failure

	InputAsset  string
	OutputAsset string
	AmountIn    float64 // SOL when the input is wrapped SOL, raw units otherwise
	AmountOut   float64

	// ScaledFromAmount is the source trade amount proportional sizing was
	// computed from; 0 when the source amount was unknown.
	ScaledFromAmount float64

	Status    string // succeeded | failed
	Error     string // failure reason, empty on success
	CreatedAt int64  // Unix timestamp in milliseconds
}
