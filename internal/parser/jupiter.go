package parser

import (
	"regexp"
	"strconv"

	"solana-copy-trader/internal/domain"
)

// JupiterParser extracts swaps routed through the Jupiter v6 aggregator.
// Jupiter logs the route endpoints, which is exactly the input/output pair
// the copy-trader needs; intermediate hops are ignored.
type JupiterParser struct {
	swapEventPattern *regexp.Regexp
}

// NewJupiterParser creates a new Jupiter parser.
func NewJupiterParser() *JupiterParser {
	return &JupiterParser{
		// Matches: "Program log: swap in=<mint> out=<mint>" with optional
		// "in_amount=<n> out_amount=<n>" fields, the shape Jupiter route
		// logs take after anchor event decoding.
		swapEventPattern: regexp.MustCompile(
			`swap in=([A-Za-z0-9]{32,44}) out=([A-Za-z0-9]{32,44})(?: in_amount=(\d+))?(?: out_amount=(\d+))?`),
	}
}

// Compile-time interface check.
var _ ProtocolParser = (*JupiterParser)(nil)

// ParseSwap extracts the route endpoints: the input mint of the first hop and
// the output mint of the last hop.
func (p *JupiterParser) ParseSwap(raw *domain.RawTx) (ExtractedSwap, bool) {
	var first, last []string
	for _, line := range raw.Logs {
		m := p.swapEventPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if first == nil {
			first = m
		}
		last = m
	}
	if first == nil {
		return ExtractedSwap{}, false
	}

	swap := ExtractedSwap{
		InputMint:  first[1],
		OutputMint: last[2],
	}
	if first[3] != "" {
		if v, err := strconv.ParseUint(first[3], 10, 64); err == nil {
			swap.InputAmount = float64(v)
		}
	}
	if last[4] != "" {
		if v, err := strconv.ParseUint(last[4], 10, 64); err == nil {
			swap.OutputAmount = float64(v)
		}
	}
	return swap, true
}
