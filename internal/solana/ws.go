package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to program logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (*LogSubscription, error)

	// UnsubscribeLogs cancels a live subscription and closes its channel.
	UnsubscribeLogs(ctx context.Context, sub *LogSubscription) error

	// Connected reports whether the transport is currently established.
	// Reconnect loops flip this false until a dial succeeds again.
	Connected() bool

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these addresses.
	Mentions []string
}

// LogSubscription is a live logsSubscribe handle. The subscription survives
// reconnects: the client resubscribes transparently and keeps delivering on C.
type LogSubscription struct {
	id     int64
	filter LogsFilter
	C      <-chan LogNotification
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
