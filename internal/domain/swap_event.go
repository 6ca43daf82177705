package domain

// WSOLMint is the wrapped SOL mint address. Amounts denominated in it are
// lamports.
const WSOLMint = "So11111111111111111111111111111111111111112"

// LamportsPerSOL converts between SOL and its base unit.
const LamportsPerSOL = 1_000_000_000

// Direction classifies which way a detected swap traded relative to the
// base/stable asset set.
type Direction string

const (
	DirectionBuy       Direction = "buy"
	DirectionSell      Direction = "sell"
	DirectionAmbiguous Direction = "ambiguous"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell || d == DirectionAmbiguous
}

// SwapEvent is a normalized description of a swap performed by a tracked
// wallet. It is immutable once produced by the parser and is discarded after
// fan-out; only the derived copy-trade attempts are persisted.
type SwapEvent struct {
	SourceWallet string    // tracked wallet that performed the swap
	TxSignature  string    // globally unique; idempotency key downstream
	Protocol     string    // swap program ID that matched
	InputAsset   string    // input token mint
	OutputAsset  string    // output token mint
	InputAmount  float64   // raw input amount (0 when unknown)
	OutputAmount float64   // raw output amount (0 when unknown)
	Direction    Direction // buy | sell | ambiguous
	Slot         int64     // Solana slot number
	ObservedAt   int64     // Unix timestamp in milliseconds
}

// TargetAsset returns the non-SOL token the swap is about: the asset being
// sold for sells, the asset being acquired otherwise. Per-token budgets and
// eligibility checks key on it.
func (e SwapEvent) TargetAsset() string {
	if e.Direction == DirectionSell {
		return e.InputAsset
	}
	return e.OutputAsset
}

// RawTx is a candidate transaction emitted by a chain activity source before
// swap classification.
type RawTx struct {
	SourceWallet string // tracked wallet the transaction mentions
	Signature    string
	Slot         int64
	BlockTime    int64 // Unix timestamp in seconds, 0 when unknown
	Logs         []string
	AccountKeys  []string
	Failed       bool // transaction errored on-chain
}
