package parser

import (
	"log/slog"
	"strings"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
)

// Known swap program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// PumpFun is the pump.fun program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	// JupiterV6 is the Jupiter aggregator v6 program ID.
	JupiterV6 = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

// WSOL is the Wrapped SOL mint address.
const WSOL = domain.WSOLMint

// Stable asset mints treated as quote currency for direction classification.
const (
	USDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDT = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// ProtocolParser extracts a swap from a raw transaction for one swap program.
// Implementations must be pure and must never panic on malformed input.
type ProtocolParser interface {
	// ParseSwap returns the extracted swap, or ok=false when the
	// transaction holds no recognizable swap for this protocol.
	ParseSwap(raw *domain.RawTx) (ExtractedSwap, bool)
}

// ExtractedSwap is the protocol-level result before normalization.
type ExtractedSwap struct {
	InputMint    string
	OutputMint   string
	InputAmount  float64 // raw units, 0 when unknown
	OutputAmount float64 // raw units, 0 when unknown
}

// SwapParser classifies raw transactions against a registry of known swap
// programs and normalizes matches into SwapEvents. Transactions invoking none
// of the registered programs are rejected as non-swaps.
type SwapParser struct {
	parsers   map[string]ProtocolParser // programID -> parser
	baseAsset string
	stables   map[string]struct{}
	logger    *slog.Logger
}

// NewSwapParser creates a parser with the default protocol registry
// (Raydium AMM v4, pump.fun, Jupiter v6) and the default base/stable set.
func NewSwapParser(logger *slog.Logger) *SwapParser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &SwapParser{
		parsers:   make(map[string]ProtocolParser),
		baseAsset: WSOL,
		stables: map[string]struct{}{
			USDC: {},
			USDT: {},
		},
		logger: logger.With(slog.String("component", "parser")),
	}

	p.RegisterParser(RaydiumAMMV4, NewRaydiumParser())
	p.RegisterParser(PumpFun, NewPumpFunParser())
	p.RegisterParser(JupiterV6, NewJupiterParser())

	return p
}

// RegisterParser registers a parser for a specific program ID.
func (p *SwapParser) RegisterParser(programID string, parser ProtocolParser) {
	p.parsers[programID] = parser
}

// Programs returns the registered swap program IDs.
func (p *SwapParser) Programs() []string {
	out := make([]string, 0, len(p.parsers))
	for id := range p.parsers {
		out = append(out, id)
	}
	return out
}

// Parse classifies a raw transaction. It returns nil when the transaction is
// not a swap, failed on-chain, or could not be decoded; decode problems are
// logged, never propagated.
func (p *SwapParser) Parse(raw *domain.RawTx) *domain.SwapEvent {
	if raw == nil || raw.Signature == "" {
		return nil
	}
	if raw.Failed {
		observability.RecordNonSwapRejected()
		return nil
	}

	programID := p.matchProgram(raw.Logs)
	if programID == "" {
		observability.RecordNonSwapRejected()
		return nil
	}

	swap, ok := p.parsers[programID].ParseSwap(raw)
	if !ok {
		p.logger.Debug("program invoked but no swap extracted",
			slog.String("tx", raw.Signature),
			slog.String("program", programID))
		observability.RecordNonSwapRejected()
		return nil
	}
	if swap.InputMint == "" || swap.OutputMint == "" {
		p.logger.Debug("swap missing mint, dropped",
			slog.String("tx", raw.Signature),
			slog.String("program", programID))
		observability.RecordNonSwapRejected()
		return nil
	}

	observability.RecordSwapParsed(programID)
	return &domain.SwapEvent{
		SourceWallet: raw.SourceWallet,
		TxSignature:  raw.Signature,
		Protocol:     programID,
		InputAsset:   swap.InputMint,
		OutputAsset:  swap.OutputMint,
		InputAmount:  swap.InputAmount,
		OutputAmount: swap.OutputAmount,
		Direction:    p.classifyDirection(swap.InputMint, swap.OutputMint),
		Slot:         raw.Slot,
		ObservedAt:   raw.BlockTime * 1000,
	}
}

// matchProgram returns the first registered program invoked in the logs.
func (p *SwapParser) matchProgram(logs []string) string {
	for _, line := range logs {
		for id := range p.parsers {
			if strings.Contains(line, "Program "+id+" invoke") {
				return id
			}
		}
	}
	return ""
}

// classifyDirection applies the base/stable heuristic: a swap out of the
// base or a stable asset is a buy, a swap into one is a sell, anything else
// is ambiguous.
func (p *SwapParser) classifyDirection(inputMint, outputMint string) domain.Direction {
	inQuote := p.isQuoteAsset(inputMint)
	outQuote := p.isQuoteAsset(outputMint)

	switch {
	case inQuote && !outQuote:
		return domain.DirectionBuy
	case outQuote && !inQuote:
		return domain.DirectionSell
	default:
		return domain.DirectionAmbiguous
	}
}

func (p *SwapParser) isQuoteAsset(mint string) bool {
	if mint == p.baseAsset {
		return true
	}
	_, ok := p.stables[mint]
	return ok
}
