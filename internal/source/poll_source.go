package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/solana"
)

// Compile-time interface check.
var _ ChainActivitySource = (*PollingActivitySource)(nil)

// DefaultPollInterval is the pause between polling rounds.
const DefaultPollInterval = 5 * time.Second

// DefaultSignatureLimit caps signatures fetched per address per round.
const DefaultSignatureLimit = 25

// PollOptions configures the polling activity source.
type PollOptions struct {
	Logger *slog.Logger

	// Interval between polling rounds. Default 5s.
	Interval time.Duration
	// SignatureLimit caps signatures fetched per address per round.
	// Default 25.
	SignatureLimit int
	// BufferSize bounds the events channel. Default 256.
	BufferSize int
	// DegradedThreshold is the consecutive failure count before the source
	// reports degraded. Default 5.
	DegradedThreshold int
}

// PollingActivitySource discovers wallet activity through periodic
// getSignaturesForAddress calls, diffing each round against the last seen
// signature per address. It is the fallback when no WebSocket endpoint is
// available; detection latency is bounded by the poll interval.
type PollingActivitySource struct {
	rpc    solana.RPCClient
	logger *slog.Logger

	interval time.Duration
	sigLimit int

	out chan domain.RawTx

	mu       sync.Mutex
	lastSeen map[string]string // address -> newest processed signature
	tracker  *failureTracker
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPollingActivitySource creates a polling source and starts its loop.
func NewPollingActivitySource(rpc solana.RPCClient, opts PollOptions) *PollingActivitySource {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.SignatureLimit <= 0 {
		opts.SignatureLimit = DefaultSignatureLimit
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &PollingActivitySource{
		rpc:      rpc,
		logger:   opts.Logger.With(slog.String("component", "poll-source")),
		interval: opts.Interval,
		sigLimit: opts.SignatureLimit,
		out:      make(chan domain.RawTx, opts.BufferSize),
		lastSeen: make(map[string]string),
		tracker:  newFailureTracker(opts.DegradedThreshold),
		ctx:      ctx,
		cancel:   cancel,
	}

	observability.SetSourceConnected(true)
	s.wg.Add(1)
	go s.loop()
	return s
}

// Events returns the raw transaction channel.
func (s *PollingActivitySource) Events() <-chan domain.RawTx {
	return s.out
}

// AddWallet starts polling an address. History predating the call is not
// replayed: the first round only records the current head signature.
func (s *PollingActivitySource) AddWallet(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("source closed")
	}
	if _, ok := s.lastSeen[address]; !ok {
		s.lastSeen[address] = ""
	}
	return nil
}

// RemoveWallet stops polling an address.
func (s *PollingActivitySource) RemoveWallet(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSeen, address)
	return nil
}

// Degraded reports whether polling calls are persistently failing.
func (s *PollingActivitySource) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.degraded
}

// Close stops the polling loop and closes the events channel.
func (s *PollingActivitySource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	close(s.out)
	observability.SetSourceConnected(false)
	return nil
}

func (s *PollingActivitySource) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pollRound()
		}
	}
}

func (s *PollingActivitySource) pollRound() {
	s.mu.Lock()
	addresses := make([]string, 0, len(s.lastSeen))
	for address := range s.lastSeen {
		addresses = append(addresses, address)
	}
	s.mu.Unlock()
	sort.Strings(addresses)

	for _, address := range addresses {
		if s.ctx.Err() != nil {
			return
		}
		s.pollAddress(address)
	}
}

func (s *PollingActivitySource) pollAddress(address string) {
	s.mu.Lock()
	until, tracked := s.lastSeen[address]
	s.mu.Unlock()
	if !tracked {
		// removed between the round snapshot and now
		return
	}

	start := time.Now()
	sigs, err := s.rpc.GetSignaturesForAddress(s.ctx, address, &solana.SignaturesOpts{
		Until: until,
		Limit: s.sigLimit,
	})
	observability.RecordRPCLatency("getSignaturesForAddress", time.Since(start).Seconds())
	if err != nil {
		s.mu.Lock()
		becameDegraded := s.tracker.fail()
		s.mu.Unlock()
		if becameDegraded {
			s.logger.Warn("source degraded: signature polling failing",
				slog.String("address", address),
				slog.String("error", err.Error()))
		}
		return
	}

	s.mu.Lock()
	recovered := s.tracker.ok()
	s.mu.Unlock()
	if recovered {
		s.logger.Info("source recovered")
	}

	if len(sigs) == 0 {
		return
	}

	// Signatures arrive newest first; the head becomes the next diff point.
	newest := sigs[0].Signature

	if until == "" {
		// first round for this address, record the head without replaying
		s.advance(address, newest)
		return
	}

	for i := len(sigs) - 1; i >= 0; i-- {
		if s.ctx.Err() != nil {
			return
		}
		s.emitSignature(address, sigs[i])
	}
	s.advance(address, newest)
}

func (s *PollingActivitySource) advance(address, signature string) {
	s.mu.Lock()
	if _, tracked := s.lastSeen[address]; tracked {
		s.lastSeen[address] = signature
	}
	s.mu.Unlock()
}

func (s *PollingActivitySource) emitSignature(address string, info solana.SignatureInfo) {
	raw := domain.RawTx{
		SourceWallet: address,
		Signature:    info.Signature,
		Slot:         info.Slot,
		Failed:       info.Err != nil,
	}
	if info.BlockTime != nil {
		raw.BlockTime = *info.BlockTime
	}

	start := time.Now()
	tx, err := s.rpc.GetTransaction(s.ctx, info.Signature)
	observability.RecordRPCLatency("getTransaction", time.Since(start).Seconds())
	if err != nil {
		s.logger.Debug("transaction fetch failed",
			slog.String("signature", info.Signature),
			slog.String("error", err.Error()))
	} else if tx != nil {
		raw.BlockTime = tx.BlockTime
		if tx.Message != nil {
			raw.AccountKeys = tx.Message.AccountKeys
		}
		if tx.Meta != nil {
			raw.Failed = tx.Meta.Err != nil
			raw.Logs = tx.Meta.LogMessages
		}
	}

	emit(s.out, raw)
}
