package parser

import (
	"encoding/base64"
	"encoding/binary"
	"regexp"

	"github.com/mr-tron/base58"

	"solana-copy-trader/internal/domain"
)

// RaydiumParser extracts swaps from Raydium AMM v4 ray_log entries.
type RaydiumParser struct {
	// ray_log pattern: base64 encoded data after "ray_log: "
	rayLogPattern *regexp.Regexp
}

// NewRaydiumParser creates a new Raydium parser.
func NewRaydiumParser() *RaydiumParser {
	return &RaydiumParser{
		rayLogPattern: regexp.MustCompile(`ray_log: ([A-Za-z0-9+/=]+)`),
	}
}

// Compile-time interface check.
var _ ProtocolParser = (*RaydiumParser)(nil)

// ray_log layout for swap instructions:
// discriminator(1) + ammId(32) + inputMint(32) + outputMint(32) + amountIn(8) + amountOut(8)
const (
	rayLogInputMintOff  = 33
	rayLogOutputMintOff = 65
	rayLogAmountInOff   = 97
	rayLogAmountOutOff  = 105
	rayLogSwapMinLen    = 97 // enough for both mints
	rayLogFullLen       = 113
)

// ParseSwap extracts the first swap ray_log from the transaction.
func (p *RaydiumParser) ParseSwap(raw *domain.RawTx) (ExtractedSwap, bool) {
	for _, line := range raw.Logs {
		matches := p.rayLogPattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(matches[1])
		if err != nil {
			continue
		}

		if !isRaySwapLog(data) {
			continue
		}
		if len(data) < rayLogSwapMinLen {
			continue
		}

		swap := ExtractedSwap{
			InputMint:  base58.Encode(data[rayLogInputMintOff:rayLogOutputMintOff]),
			OutputMint: base58.Encode(data[rayLogOutputMintOff:rayLogAmountInOff]),
		}
		if len(data) >= rayLogFullLen {
			swap.InputAmount = float64(readUint64LE(data, rayLogAmountInOff))
			swap.OutputAmount = float64(readUint64LE(data, rayLogAmountOutOff))
		}
		return swap, true
	}

	return ExtractedSwap{}, false
}

// isRaySwapLog checks if ray_log data represents a swap instruction.
func isRaySwapLog(data []byte) bool {
	if len(data) < 1 {
		return false
	}
	// Raydium discriminators: 0x09 = SwapBaseIn, 0x0b = SwapBaseOut,
	// 0x0d/0x0e for some instruction variants.
	disc := data[0]
	return disc == 0x09 || disc == 0x0b || disc == 0x0d || disc == 0x0e
}

// readUint64LE reads a little-endian uint64 from data at offset.
func readUint64LE(data []byte, offset int) uint64 {
	if offset+8 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint64(data[offset:])
}
