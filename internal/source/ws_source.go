package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/solana"
)

// Compile-time interface check.
var _ ChainActivitySource = (*WSActivitySource)(nil)

// WSOptions configures the WebSocket activity source.
type WSOptions struct {
	Logger *slog.Logger

	// BufferSize bounds the events channel. Default 256.
	BufferSize int
	// DegradedThreshold is the consecutive failure count before the source
	// reports degraded. Default 5.
	DegradedThreshold int
	// FetchRetries caps transaction fetch attempts per notification.
	// Default 3.
	FetchRetries int
	// FetchRetryDelay is the pause between fetch attempts. Default 500ms.
	FetchRetryDelay time.Duration
}

// WSActivitySource watches wallets through logsSubscribe, one subscription
// per address, and resolves each notification into a full transaction over
// RPC. Reconnects are handled inside the WebSocket client; subscriptions
// survive them.
type WSActivitySource struct {
	ws     solana.WSClient
	rpc    solana.RPCClient
	logger *slog.Logger

	fetchRetries    int
	fetchRetryDelay time.Duration

	out chan domain.RawTx

	mu      sync.Mutex
	subs    map[string]*solana.LogSubscription
	tracker *failureTracker
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOut sync.Once
}

// NewWSActivitySource creates a WebSocket-backed source. No wallets are
// watched until AddWallet is called.
func NewWSActivitySource(ws solana.WSClient, rpc solana.RPCClient, opts WSOptions) *WSActivitySource {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.FetchRetries <= 0 {
		opts.FetchRetries = 3
	}
	if opts.FetchRetryDelay <= 0 {
		opts.FetchRetryDelay = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WSActivitySource{
		ws:              ws,
		rpc:             rpc,
		logger:          opts.Logger.With(slog.String("component", "ws-source")),
		fetchRetries:    opts.FetchRetries,
		fetchRetryDelay: opts.FetchRetryDelay,
		out:             make(chan domain.RawTx, opts.BufferSize),
		subs:            make(map[string]*solana.LogSubscription),
		tracker:         newFailureTracker(opts.DegradedThreshold),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Events returns the raw transaction channel.
func (s *WSActivitySource) Events() <-chan domain.RawTx {
	return s.out
}

// AddWallet opens a logs subscription mentioning the address.
func (s *WSActivitySource) AddWallet(ctx context.Context, address string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("source closed")
	}
	if _, ok := s.subs[address]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	sub, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{address}})
	if err != nil {
		return fmt.Errorf("subscribe logs for %s: %w", address, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = s.ws.UnsubscribeLogs(ctx, sub)
		return fmt.Errorf("source closed")
	}
	if _, ok := s.subs[address]; ok {
		s.mu.Unlock()
		_ = s.ws.UnsubscribeLogs(ctx, sub)
		return nil
	}
	s.subs[address] = sub
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume(address, sub)

	s.logger.Info("wallet subscription opened", slog.String("address", address))
	return nil
}

// RemoveWallet cancels the address subscription. In-flight notifications for
// the address may still be delivered.
func (s *WSActivitySource) RemoveWallet(ctx context.Context, address string) error {
	s.mu.Lock()
	sub, ok := s.subs[address]
	if ok {
		delete(s.subs, address)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := s.ws.UnsubscribeLogs(ctx, sub); err != nil {
		return fmt.Errorf("unsubscribe logs for %s: %w", address, err)
	}
	s.logger.Info("wallet subscription closed", slog.String("address", address))
	return nil
}

// Degraded reports whether the source is unhealthy: the WebSocket transport
// is down, or transaction fetches are persistently failing.
func (s *WSActivitySource) Degraded() bool {
	if !s.ws.Connected() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.degraded
}

// Close cancels all subscriptions and closes the events channel.
func (s *WSActivitySource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*solana.LogSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[string]*solana.LogSubscription)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, sub := range subs {
		_ = s.ws.UnsubscribeLogs(ctx, sub)
	}

	s.cancel()
	s.wg.Wait()
	s.closeOut.Do(func() { close(s.out) })
	return nil
}

// consume drains one subscription until its channel closes.
func (s *WSActivitySource) consume(address string, sub *solana.LogSubscription) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case notif, ok := <-sub.C:
			if !ok {
				return
			}
			s.handle(address, notif)
		}
	}
}

// handle resolves a log notification into a RawTx. The full transaction is
// fetched so the parser sees account keys and the block time; when the fetch
// keeps failing the notification payload is emitted as-is, which still
// carries the logs the protocol parsers need.
func (s *WSActivitySource) handle(address string, notif solana.LogNotification) {
	raw := domain.RawTx{
		SourceWallet: address,
		Signature:    notif.Signature,
		Slot:         notif.Slot,
		Logs:         notif.Logs,
		Failed:       notif.Err != nil,
	}

	tx, err := s.fetchTransaction(notif.Signature)
	if err != nil {
		s.mu.Lock()
		becameDegraded := s.tracker.fail()
		s.mu.Unlock()
		if becameDegraded {
			s.logger.Warn("source degraded: transaction fetches failing",
				slog.String("error", err.Error()))
		}
		s.logger.Debug("transaction fetch failed, emitting notification payload",
			slog.String("signature", notif.Signature),
			slog.String("error", err.Error()))
	} else {
		s.mu.Lock()
		recovered := s.tracker.ok()
		s.mu.Unlock()
		if recovered {
			s.logger.Info("source recovered")
		}

		// tx is nil when the node has not indexed the signature yet
		if tx != nil {
			raw.BlockTime = tx.BlockTime
			if tx.Message != nil {
				raw.AccountKeys = tx.Message.AccountKeys
			}
			if tx.Meta != nil {
				raw.Failed = tx.Meta.Err != nil
				if len(tx.Meta.LogMessages) > 0 {
					raw.Logs = tx.Meta.LogMessages
				}
			}
		}
	}

	emit(s.out, raw)
}

func (s *WSActivitySource) fetchTransaction(signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < s.fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-s.ctx.Done():
				return nil, s.ctx.Err()
			case <-time.After(s.fetchRetryDelay):
			}
		}

		start := time.Now()
		tx, err := s.rpc.GetTransaction(s.ctx, signature)
		observability.RecordRPCLatency("getTransaction", time.Since(start).Seconds())
		if err == nil {
			return tx, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
