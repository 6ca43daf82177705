package parser

import (
	"regexp"
	"strconv"
	"strings"

	"solana-copy-trader/internal/domain"
)

// PumpFunParser extracts swaps from pump.fun instruction logs. pump.fun
// trades are always against SOL: Buy means SOL in, token out; Sell the
// reverse.
type PumpFunParser struct {
	buyPattern       *regexp.Regexp
	sellPattern      *regexp.Regexp
	mintPattern      *regexp.Regexp
	amountPattern    *regexp.Regexp
	solAmountPattern *regexp.Regexp
}

// NewPumpFunParser creates a new pump.fun parser.
func NewPumpFunParser() *PumpFunParser {
	return &PumpFunParser{
		buyPattern:       regexp.MustCompile(`Program log: Instruction: Buy`),
		sellPattern:      regexp.MustCompile(`Program log: Instruction: Sell`),
		mintPattern:      regexp.MustCompile(`mint=([A-Za-z0-9]{32,44})`),
		amountPattern:    regexp.MustCompile(`\b(?:token_amount|amount)[=:]?\s*(\d+)`),
		solAmountPattern: regexp.MustCompile(`sol_amount[=:]?\s*(\d+)`),
	}
}

// Compile-time interface check.
var _ ProtocolParser = (*PumpFunParser)(nil)

// ParseSwap scans the pump.fun program section of the logs for a Buy or Sell
// instruction and its mint.
func (p *PumpFunParser) ParseSwap(raw *domain.RawTx) (ExtractedSwap, bool) {
	var mint string
	var tokenAmount, solAmount float64
	var isBuy, isSell bool
	inPumpFun := false

	for _, line := range raw.Logs {
		if strings.Contains(line, "Program "+PumpFun+" invoke") {
			inPumpFun = true
			continue
		}
		if strings.Contains(line, "Program "+PumpFun+" success") ||
			strings.Contains(line, "Program "+PumpFun+" failed") {
			inPumpFun = false
			continue
		}
		if !inPumpFun {
			continue
		}

		if m := p.mintPattern.FindStringSubmatch(line); m != nil {
			mint = m[1]
		}
		if m := p.amountPattern.FindStringSubmatch(line); m != nil {
			if parsed, err := strconv.ParseUint(m[1], 10, 64); err == nil {
				tokenAmount = float64(parsed)
			}
		}
		if m := p.solAmountPattern.FindStringSubmatch(line); m != nil {
			if parsed, err := strconv.ParseUint(m[1], 10, 64); err == nil {
				solAmount = float64(parsed)
			}
		}
		if p.buyPattern.MatchString(line) {
			isBuy = true
		}
		if p.sellPattern.MatchString(line) {
			isSell = true
		}
	}

	if mint == "" || (!isBuy && !isSell) {
		return ExtractedSwap{}, false
	}

	if isBuy {
		return ExtractedSwap{
			InputMint:    WSOL,
			OutputMint:   mint,
			InputAmount:  solAmount,
			OutputAmount: tokenAmount,
		}, true
	}
	return ExtractedSwap{
		InputMint:    mint,
		OutputMint:   WSOL,
		InputAmount:  tokenAmount,
		OutputAmount: solAmount,
	}, true
}
