// Package custody holds and uses user signing keys. Secrets are stored as
// AES-256-GCM blobs keyed off a master passphrase; decrypted key material
// lives only for the duration of one signing call.
package custody

import (
	"context"

	"solana-copy-trader/internal/aggregator"
)

// Provider is the custody interface consumed by the execution queue.
type Provider interface {
	// GetBalance returns a wallet's balance in SOL.
	GetBalance(ctx context.Context, walletPublicKey string) (float64, error)

	// GetTokenBalance returns a wallet's holdings of a token mint in raw
	// base units, summed over the wallet's token accounts.
	GetTokenBalance(ctx context.Context, walletPublicKey, mint string) (uint64, error)

	// SignerFor returns a signer bound to a user's encrypted secret.
	// The secret stays encrypted until Sign is called.
	SignerFor(walletPublicKey string, encryptedSecret []byte) (aggregator.Signer, error)
}
