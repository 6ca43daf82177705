package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeAttemptID computes a deterministic copy-trade attempt id using SHA256.
// Formula: SHA256(user_id|tx_signature)
// Returns hex-encoded hash (64 characters).
//
// The same (user, signal) pair always maps to the same id, which makes
// enqueueing idempotent across duplicate signal deliveries.
func ComputeAttemptID(userID string, txSignature string) string {
	data := fmt.Sprintf("%s|%s", userID, txSignature)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
