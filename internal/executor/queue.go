// Package executor turns approved (user, signal) pairs into executed trades.
// The queue is the single backpressure point in front of the aggregator and
// the custody signer: a fixed worker pool caps concurrent executions, and
// per-user counters enforce rate limits atomically.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/custody"
	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/filter"
	"solana-copy-trader/internal/idhash"
	"solana-copy-trader/internal/notify"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/storage"
)

// DefaultWorkers caps globally concurrent trade executions.
const DefaultWorkers = 3

// DefaultCallTimeout bounds each aggregator call.
const DefaultCallTimeout = 30 * time.Second

// seenHorizon bounds how long submitted attempt IDs are remembered for
// in-memory deduplication. It matches the hourly counter window; older
// resubmissions are caught by the ledger's duplicate-key check instead.
const seenHorizon = time.Hour

// seenPruneEvery is how often the seen set is swept.
const seenPruneEvery = 10 * time.Minute

// Archiver receives terminal trade records for the analytics archive.
// Writes are best-effort; errors are logged and ignored.
type Archiver interface {
	Insert(ctx context.Context, rec *domain.TradeRecord) error
}

// Options configures the queue.
type Options struct {
	Evaluator  *filter.Evaluator
	Aggregator aggregator.Client
	Custody    custody.Provider
	Users      storage.UserStore
	Ledger     storage.TradeRecordStore
	Sink       notify.Sink
	Archive    Archiver // optional
	Logger     *slog.Logger

	// Workers is the number of concurrent executors. Default 3.
	Workers int
	// CallTimeout bounds each aggregator call. Default 30s.
	CallTimeout time.Duration
}

// Queue is a bounded concurrent work queue of copy-trade attempts. Submit is
// idempotent on the deterministic attempt ID; workers drain FIFO.
type Queue struct {
	evaluator   *filter.Evaluator
	agg         aggregator.Client
	vault       custody.Provider
	users       storage.UserStore
	ledger      storage.TradeRecordStore
	sink        notify.Sink
	archive     Archiver
	logger      *slog.Logger
	workers     int
	callTimeout time.Duration

	mu            sync.Mutex
	pending       []*domain.CopyTradeAttempt
	seen          map[string]time.Time
	lastSeenPrune time.Time
	wake          chan struct{}

	countersMu sync.Mutex
	counters   map[string]*userCounters

	executing atomic.Int64

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue creates an execution queue.
func NewQueue(opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Evaluator == nil {
		opts.Evaluator = filter.NewEvaluator(filter.Config{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sink == nil {
		opts.Sink = notify.NewLogSink(opts.Logger)
	}

	return &Queue{
		evaluator:   opts.Evaluator,
		agg:         opts.Aggregator,
		vault:       opts.Custody,
		users:       opts.Users,
		ledger:      opts.Ledger,
		sink:        opts.Sink,
		archive:     opts.Archive,
		logger:      opts.Logger.With(slog.String("component", "executor")),
		workers:     opts.Workers,
		callTimeout: opts.CallTimeout,
		seen:        make(map[string]time.Time),
		wake:        make(chan struct{}, 1),
		counters:    make(map[string]*userCounters),
	}
}

// Start launches the worker pool. Calling Start on a running queue is a
// no-op.
func (q *Queue) Start(ctx context.Context) {
	if !q.started.CompareAndSwap(false, true) {
		return
	}

	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.logger.Info("execution queue started", slog.Int("workers", q.workers))
}

// Stop drops queued attempts, lets executing attempts finish, and waits for
// the workers to exit. Calling Stop on a stopped queue is a no-op.
func (q *Queue) Stop() {
	if !q.started.CompareAndSwap(true, false) {
		return
	}

	q.mu.Lock()
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()
	observability.DefaultMetrics.QueueDepth.Set(0)

	q.cancel()
	q.wg.Wait()
	if dropped > 0 {
		q.logger.Info("dropped queued attempts on shutdown", slog.Int("count", dropped))
	}
}

// Submit enqueues a copy-trade attempt for a user and signal. The attempt ID
// is derived from (userID, txSignature); submitting a pair the queue has
// already seen is a no-op.
func (q *Queue) Submit(userID string, signal *domain.SwapEvent) {
	if userID == "" || signal == nil || signal.TxSignature == "" {
		return
	}

	id := idhash.ComputeAttemptID(userID, signal.TxSignature)
	now := time.Now()

	q.mu.Lock()
	if now.Sub(q.lastSeenPrune) >= seenPruneEvery {
		q.pruneSeenLocked(now)
		q.lastSeenPrune = now
	}
	if _, dup := q.seen[id]; dup {
		q.mu.Unlock()
		observability.DefaultMetrics.AttemptsDuplicate.Inc()
		q.logger.Debug("duplicate attempt ignored",
			slog.String("attempt", id),
			slog.String("user", userID))
		return
	}
	q.seen[id] = now
	q.pending = append(q.pending, &domain.CopyTradeAttempt{
		ID:           id,
		UserID:       userID,
		SourceWallet: signal.SourceWallet,
		Signal:       *signal,
		EnqueuedAt:   time.Now().UnixMilli(),
		State:        domain.AttemptQueued,
	})
	depth := len(q.pending)
	q.mu.Unlock()

	observability.DefaultMetrics.AttemptsSubmitted.Inc()
	observability.DefaultMetrics.QueueDepth.Set(float64(depth))

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pruneSeenLocked drops dedup entries older than the horizon. Caller holds
// q.mu.
func (q *Queue) pruneSeenLocked(now time.Time) {
	for id, at := range q.seen {
		if now.Sub(at) > seenHorizon {
			delete(q.seen, id)
		}
	}
}

// Depth returns the number of queued attempts.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ExecutingCount returns the number of attempts currently executing.
func (q *Queue) ExecutingCount() int {
	return int(q.executing.Load())
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		attempt := q.pop()
		if attempt == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.execute(ctx, attempt)
	}
}

func (q *Queue) pop() *domain.CopyTradeAttempt {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	attempt := q.pending[0]
	q.pending = q.pending[1:]
	observability.DefaultMetrics.QueueDepth.Set(float64(len(q.pending)))
	return attempt
}

// execute runs one attempt to a terminal state. Every path out of here is
// either a silent denial or exactly one persisted record plus one
// notification.
func (q *Queue) execute(ctx context.Context, attempt *domain.CopyTradeAttempt) {
	started := time.Now()
	attempt.State = domain.AttemptExecuting
	q.executing.Add(1)
	observability.DefaultMetrics.ExecutingAttempts.Set(float64(q.executing.Load()))
	defer func() {
		q.executing.Add(-1)
		observability.DefaultMetrics.ExecutingAttempts.Set(float64(q.executing.Load()))
	}()

	signal := &attempt.Signal

	user, err := q.users.GetByID(ctx, attempt.UserID)
	if err != nil {
		q.fail(ctx, attempt, started, fmt.Errorf("load user: %w", err))
		return
	}

	if delay := time.Duration(user.Settings.DelayMs) * time.Millisecond; delay > 0 {
		select {
		case <-ctx.Done():
			// Shutdown during the configured delay: the attempt never
			// reached the eligibility check, drop it without a record.
			return
		case <-time.After(delay):
		}
	}

	var balance float64
	if user.HasWallet() {
		balance, err = q.vault.GetBalance(ctx, user.WalletPublicKey)
		if err != nil {
			q.fail(ctx, attempt, started, fmt.Errorf("balance check: %w", err))
			return
		}
	}

	// A sell is sized by the user's own position in the token, not by the
	// configured SOL amount. No position means nothing to sell: a silent
	// skip, checked before any budget is reserved.
	var position uint64
	if signal.Direction == domain.DirectionSell && user.HasWallet() {
		position, err = q.vault.GetTokenBalance(ctx, user.WalletPublicKey, signal.InputAsset)
		if err != nil {
			q.fail(ctx, attempt, started, fmt.Errorf("token balance check: %w", err))
			return
		}
		if position == 0 {
			observability.RecordSignalDenied("no-position")
			q.logger.Debug("sell skipped, no position",
				slog.String("attempt", attempt.ID),
				slog.String("user", attempt.UserID),
				slog.String("mint", signal.InputAsset))
			return
		}
	}

	// Re-checked here, not only at fan-out time: settings, caps, and
	// balance may all have changed while the attempt sat in the queue.
	decision := q.reserve(user, signal, balance, time.Now())
	if !decision.Allowed {
		observability.RecordSignalDenied(string(decision.Reason))
		q.logger.Debug("attempt denied at execution time",
			slog.String("attempt", attempt.ID),
			slog.String("user", attempt.UserID),
			slog.String("reason", string(decision.Reason)))
		return
	}
	observability.RecordSignalAllowed()

	rec, err := q.runTrade(ctx, attempt, user, decision.Amount, position)
	if err != nil {
		q.rollback(attempt.UserID, signal.TargetAsset())
		q.fail(ctx, attempt, started, err)
		return
	}
	q.commit(attempt.UserID, time.Now())

	attempt.State = domain.AttemptSucceeded
	q.record(ctx, attempt, rec, started)
}

// runTrade prices and executes the swap, returning the succeeded record.
// The executed pair is always against wrapped SOL regardless of what the
// leader traded through: buys spend the decided SOL amount in lamports, sells
// liquidate the user's whole position in raw token units.
func (q *Queue) runTrade(ctx context.Context, attempt *domain.CopyTradeAttempt, user *domain.User, amountSOL float64, position uint64) (*domain.TradeRecord, error) {
	signal := &attempt.Signal

	inputMint := domain.WSOLMint
	outputMint := signal.TargetAsset()
	amountIn := uint64(amountSOL * domain.LamportsPerSOL)
	recordedIn := amountSOL
	if signal.Direction == domain.DirectionSell {
		inputMint, outputMint = outputMint, domain.WSOLMint
		amountIn = position
		recordedIn = float64(position)
	}

	quoteCtx, cancel := context.WithTimeout(ctx, q.callTimeout)
	quoteStart := time.Now()
	quote, err := q.agg.GetQuote(quoteCtx, inputMint, outputMint, amountIn, user.Settings.SlippageBps)
	cancel()
	observability.RecordAggregatorLatency("quote", time.Since(quoteStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}

	signer, err := q.vault.SignerFor(user.WalletPublicKey, user.EncryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("resolve signer: %w", err)
	}

	swapCtx, cancel := context.WithTimeout(ctx, q.callTimeout)
	swapStart := time.Now()
	result, err := q.agg.ExecuteSwap(swapCtx, quote, signer)
	cancel()
	observability.RecordAggregatorLatency("swap", time.Since(swapStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("execute swap: %w", err)
	}

	return &domain.TradeRecord{
		ID:               attempt.ID,
		UserID:           attempt.UserID,
		SourceWallet:     attempt.SourceWallet,
		TxSignatureIn:    signal.TxSignature,
		TxSignatureOut:   result.Signature,
		InputAsset:       inputMint,
		OutputAsset:      outputMint,
		AmountIn:         recordedIn,
		AmountOut:        float64(quote.OutAmount),
		ScaledFromAmount: signal.InputAmount,
		Status:           domain.TradeStatusSucceeded,
		CreatedAt:        time.Now().UnixMilli(),
	}, nil
}

// fail finalizes an attempt as failed. Counters are never consumed here; the
// caller rolls back any reservation before calling when one was made.
func (q *Queue) fail(ctx context.Context, attempt *domain.CopyTradeAttempt, started time.Time, cause error) {
	attempt.State = domain.AttemptFailed
	signal := &attempt.Signal

	q.logger.Warn("attempt failed",
		slog.String("attempt", attempt.ID),
		slog.String("user", attempt.UserID),
		slog.String("error", cause.Error()))

	rec := &domain.TradeRecord{
		ID:               attempt.ID,
		UserID:           attempt.UserID,
		SourceWallet:     attempt.SourceWallet,
		TxSignatureIn:    signal.TxSignature,
		InputAsset:       signal.InputAsset,
		OutputAsset:      signal.OutputAsset,
		ScaledFromAmount: signal.InputAmount,
		Status:           domain.TradeStatusFailed,
		Error:            cause.Error(),
		CreatedAt:        time.Now().UnixMilli(),
	}
	q.record(ctx, attempt, rec, started)
}

// record persists a terminal record and emits exactly one notification. A
// duplicate in the ledger means an earlier attempt already recorded and
// notified this (user, signal) pair, so both are skipped.
func (q *Queue) record(ctx context.Context, attempt *domain.CopyTradeAttempt, rec *domain.TradeRecord, started time.Time) {
	observability.RecordTradeCompleted(rec.Status, time.Since(started).Seconds())

	if err := q.ledger.Insert(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			q.logger.Debug("terminal record already persisted",
				slog.String("attempt", attempt.ID))
			return
		}
		q.logger.Error("persist trade record",
			slog.String("attempt", attempt.ID),
			slog.String("error", err.Error()))
	}

	if q.archive != nil {
		if err := q.archive.Insert(ctx, rec); err != nil {
			q.logger.Warn("archive trade record",
				slog.String("attempt", attempt.ID),
				slog.String("error", err.Error()))
		}
	}

	var err error
	if rec.Status == domain.TradeStatusSucceeded {
		err = q.sink.TradeSucceeded(ctx, attempt.UserID, rec)
	} else {
		err = q.sink.TradeFailed(ctx, attempt.UserID, rec)
	}
	if err != nil {
		q.logger.Warn("notify trade outcome",
			slog.String("attempt", attempt.ID),
			slog.String("error", err.Error()))
	}
}
