// Package aggregator wraps the external liquidity aggregator: quote lookup
// and swap construction/submission. Retries and timeouts live here, at the
// collaborator boundary; a call that exhausts them surfaces as a plain error
// and the attempt fails.
package aggregator

import (
	"context"
	"encoding/json"
)

// Quote is a priced route between two assets. Route carries the aggregator's
// raw quote response, passed back opaquely when building the swap.
type Quote struct {
	InputMint   string
	OutputMint  string
	InAmount    uint64 // raw input units
	OutAmount   uint64 // expected raw output units
	SlippageBps int
	Route       json.RawMessage
}

// SwapResult is the outcome of a submitted swap.
type SwapResult struct {
	Signature string
}

// Signer authorizes a swap transaction. The custody vault implements it;
// the aggregator never sees key material.
type Signer interface {
	// PublicKey returns the signer's base58 public key.
	PublicKey() string

	// Sign signs a serialized transaction blob.
	Sign(ctx context.Context, txBlob []byte) ([]byte, error)
}

// Client is the liquidity aggregator interface consumed by the execution
// queue.
type Client interface {
	// GetQuote prices a swap of amount raw input units.
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error)

	// ExecuteSwap builds the swap transaction for a quote, has the signer
	// authorize it, and submits it to the chain.
	ExecuteSwap(ctx context.Context, quote *Quote, signer Signer) (*SwapResult, error)
}
