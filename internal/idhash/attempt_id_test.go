package idhash

import (
	"testing"
)

func TestComputeAttemptID(t *testing.T) {
	tests := []struct {
		name        string
		userID      string
		txSignature string
		wantLen     int // hash length should be 64
	}{
		{
			name:        "basic attempt",
			userID:      "user-123",
			txSignature: "5wHu1qwD4kKfUZZNtmmpyKKkBfbFKPucWFVVnyMmybWRqAX2oimcdhWnM4GYcJ3K",
			wantLen:     64,
		},
		{
			name:        "numeric telegram user id",
			userID:      "784512339",
			txSignature: "2ZE7Rz1DWjLu6cVzBqgPFJWqvXvWvqYzYxQJ1Pk3EGMEjyrF7rQvR2J9cBtqkLhS",
			wantLen:     64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAttemptID(tt.userID, tt.txSignature)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeAttemptID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeAttemptID(tt.userID, tt.txSignature)
			if got != got2 {
				t.Errorf("ComputeAttemptID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeAttemptID_DifferentInputs(t *testing.T) {
	base := ComputeAttemptID("user-a", "sig-1")

	// Different user should produce different hash
	diffUser := ComputeAttemptID("user-b", "sig-1")
	if base == diffUser {
		t.Error("Different user should produce different hash")
	}

	// Different signature should produce different hash
	diffSig := ComputeAttemptID("user-a", "sig-2")
	if base == diffSig {
		t.Error("Different signature should produce different hash")
	}
}

func TestComputeAttemptID_SeparatorAmbiguity(t *testing.T) {
	// The separator keeps (a|b, c) distinct from (a, b|c)
	left := ComputeAttemptID("user|x", "sig")
	right := ComputeAttemptID("user", "x|sig")
	if left == right {
		t.Error("Separator ambiguity: distinct (user, signature) pairs collided")
	}
}
