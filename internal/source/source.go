// Package source produces candidate transactions from tracked wallets. Two
// strategies exist behind one interface: a WebSocket log subscription per
// wallet and an RPC signature poller. Both emit into a bounded channel with
// drop-oldest overflow, so a slow consumer loses the oldest candidates
// rather than stalling chain intake.
package source

import (
	"context"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
)

// DefaultBufferSize bounds the raw transaction channel.
const DefaultBufferSize = 256

// DefaultDegradedThreshold is the number of consecutive upstream failures
// after which a source reports itself degraded.
const DefaultDegradedThreshold = 5

// ChainActivitySource streams raw transactions performed by tracked wallets.
type ChainActivitySource interface {
	// Events returns the raw transaction channel. It is closed by Close.
	Events() <-chan domain.RawTx

	// AddWallet starts watching an address. Adding a watched address is a
	// no-op.
	AddWallet(ctx context.Context, address string) error

	// RemoveWallet stops watching an address. Removing an unknown address
	// is a no-op.
	RemoveWallet(ctx context.Context, address string) error

	// Degraded reports whether the source has crossed its consecutive
	// failure threshold. A degraded source keeps retrying; the flag clears
	// on the next success.
	Degraded() bool

	// Close stops the source and closes the events channel.
	Close() error
}

// emit delivers tx on out, evicting the oldest buffered entry when full.
func emit(out chan domain.RawTx, tx domain.RawTx) {
	select {
	case out <- tx:
	default:
		select {
		case <-out:
			observability.RecordSourceOverflow()
		default:
		}
		select {
		case out <- tx:
		default:
		}
	}
	observability.RecordRawTxDelivered()
	observability.DefaultMetrics.SourceBufferLen.Set(float64(len(out)))
}

// failureTracker counts consecutive upstream failures and flips the shared
// degraded flag when they cross the threshold.
type failureTracker struct {
	threshold int
	streak    int
	degraded  bool
}

func newFailureTracker(threshold int) *failureTracker {
	if threshold <= 0 {
		threshold = DefaultDegradedThreshold
	}
	return &failureTracker{threshold: threshold}
}

// fail records a failure and returns true when the tracker just became
// degraded.
func (t *failureTracker) fail() bool {
	t.streak++
	if t.streak >= t.threshold && !t.degraded {
		t.degraded = true
		observability.SetSourceDegraded(true)
		return true
	}
	return false
}

// ok records a success and returns true when the tracker just recovered.
func (t *failureTracker) ok() bool {
	t.streak = 0
	if t.degraded {
		t.degraded = false
		observability.SetSourceDegraded(false)
		return true
	}
	return false
}
