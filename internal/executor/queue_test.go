package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/filter"
	"solana-copy-trader/internal/storage/memory"
)

type stubAggregator struct {
	mu       sync.Mutex
	quoteErr error
	swapErr  error
	calls    int
}

func (a *stubAggregator) GetQuote(_ context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*aggregator.Quote, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.quoteErr != nil {
		return nil, a.quoteErr
	}
	return &aggregator.Quote{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		InAmount:    amount,
		OutAmount:   amount * 2,
		SlippageBps: slippageBps,
		Route:       []byte(`{}`),
	}, nil
}

func (a *stubAggregator) ExecuteSwap(_ context.Context, quote *aggregator.Quote, _ aggregator.Signer) (*aggregator.SwapResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.swapErr != nil {
		return nil, a.swapErr
	}
	a.calls++
	return &aggregator.SwapResult{Signature: fmt.Sprintf("exec-%d", a.calls)}, nil
}

type stubSigner struct{ pub string }

func (s stubSigner) PublicKey() string                              { return s.pub }
func (s stubSigner) Sign(_ context.Context, tx []byte) ([]byte, error) { return tx, nil }

type stubCustody struct {
	balance  float64
	position uint64
}

func (c *stubCustody) GetBalance(context.Context, string) (float64, error) {
	return c.balance, nil
}

func (c *stubCustody) GetTokenBalance(context.Context, string, string) (uint64, error) {
	return c.position, nil
}

func (c *stubCustody) SignerFor(pub string, secret []byte) (aggregator.Signer, error) {
	if pub == "" {
		return nil, errors.New("no wallet")
	}
	return stubSigner{pub: pub}, nil
}

type recordingSink struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
}

func (r *recordingSink) TradeSucceeded(_ context.Context, userID string, _ *domain.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded = append(r.succeeded, userID)
	return nil
}

func (r *recordingSink) TradeFailed(_ context.Context, userID string, _ *domain.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, userID)
	return nil
}

func (r *recordingSink) counts() (succeeded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.succeeded), len(r.failed)
}

type fixture struct {
	queue   *Queue
	agg     *stubAggregator
	custody *stubCustody
	users   *memory.UserStore
	ledger  *memory.TradeRecordStore
	sink    *recordingSink
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	f := &fixture{
		agg:     &stubAggregator{},
		custody: &stubCustody{balance: 10},
		users:   memory.NewUserStore(),
		ledger:  memory.NewTradeRecordStore(),
		sink:    &recordingSink{},
	}

	opts := Options{
		Evaluator: filter.NewEvaluator(filter.Config{
			MinTradeInterval: time.Nanosecond,
			FeeBuffer:        0.001,
		}),
		Aggregator: f.agg,
		Custody:    f.custody,
		Users:      f.users,
		Ledger:     f.ledger,
		Sink:       f.sink,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.queue = NewQueue(opts)
	return f
}

func (f *fixture) addUser(t *testing.T, id string, settings domain.UserSettings) {
	t.Helper()
	require.NoError(t, f.users.Insert(context.Background(), &domain.User{
		ID:              id,
		WalletPublicKey: "Wallet" + id,
		EncryptedSecret: []byte("blob"),
		Settings:        settings,
	}))
}

func enabledSettings() domain.UserSettings {
	s := domain.DefaultUserSettings()
	s.AutoTradingEnabled = true
	return s
}

func signal(sig, asset string) *domain.SwapEvent {
	return &domain.SwapEvent{
		SourceWallet: "AlphaWallet",
		TxSignature:  sig,
		Protocol:     "test-dex",
		InputAsset:   "So11111111111111111111111111111111111111112",
		OutputAsset:  asset,
		Direction:    domain.DirectionBuy,
	}
}

func sellSignal(sig, asset string) *domain.SwapEvent {
	return &domain.SwapEvent{
		SourceWallet: "AlphaWallet",
		TxSignature:  sig,
		Protocol:     "test-dex",
		InputAsset:   asset,
		OutputAsset:  domain.WSOLMint,
		Direction:    domain.DirectionSell,
	}
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	require.Eventually(t, func() bool {
		return q.Depth() == 0 && q.ExecutingCount() == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestQueue_ExecutesEligibleSignal(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "user-1", enabledSettings())

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	f.queue.Submit("user-1", signal("sig-1", "TOKEN_X"))
	waitIdle(t, f.queue)

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TradeStatusSucceeded, recs[0].Status)
	assert.Equal(t, "sig-1", recs[0].TxSignatureIn)
	assert.Equal(t, "exec-1", recs[0].TxSignatureOut)
	assert.Equal(t, domain.DefaultTradeAmount, recs[0].AmountIn)

	succeeded, failed := f.sink.counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
}

func TestQueue_IdempotentSubmit(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "user-1", enabledSettings())

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.queue.Submit("user-1", signal("sig-dup", "TOKEN_X"))
		}()
	}
	wg.Wait()
	waitIdle(t, f.queue)

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "same (user, signature) pair must execute once")

	succeeded, _ := f.sink.counts()
	assert.Equal(t, 1, succeeded, "exactly one notification")
}

func TestQueue_SellLiquidatesPosition(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "user-1", enabledSettings())
	f.custody.position = 5_000

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	f.queue.Submit("user-1", sellSignal("sig-1", "TOKEN_X"))
	waitIdle(t, f.queue)

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TradeStatusSucceeded, recs[0].Status)
	assert.Equal(t, "TOKEN_X", recs[0].InputAsset)
	assert.Equal(t, domain.WSOLMint, recs[0].OutputAsset)
	assert.Equal(t, float64(5_000), recs[0].AmountIn, "sell is sized by the held position, not the SOL trade amount")
}

func TestQueue_SellWithoutPositionIsSilentSkip(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "user-1", enabledSettings())

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	f.queue.Submit("user-1", sellSignal("sig-1", "TOKEN_X"))
	waitIdle(t, f.queue)

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	succeeded, failed := f.sink.counts()
	assert.Zero(t, succeeded)
	assert.Zero(t, failed)

	// the skip consumed no budget: a buy for the same token still passes
	f.queue.Submit("user-1", signal("sig-2", "TOKEN_X"))
	waitIdle(t, f.queue)

	recs, err = f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestQueue_TokenCapStopsSecondTrade(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "user-1", enabledSettings()) // maxTradesPerToken = 1

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	f.queue.Submit("user-1", signal("sig-1", "TOKEN_X"))
	waitIdle(t, f.queue)
	f.queue.Submit("user-1", signal("sig-2", "TOKEN_X"))
	waitIdle(t, f.queue)

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "second trade for the same token is a silent denial")

	succeeded, failed := f.sink.counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed, "denials do not notify")
}

func TestQueue_TokenCapHoldsUnderConcurrency(t *testing.T) {
	settings := enabledSettings() // maxTradesPerToken = 1
	settings.MaxTradesPerHour = 100

	f := newFixture(t, func(o *Options) {
		o.Workers = 8
	})
	f.addUser(t, "user-1", settings)

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.queue.Submit("user-1", signal(fmt.Sprintf("sig-%d", i), "TOKEN_X"))
		}(i)
	}
	wg.Wait()
	waitIdle(t, f.queue)

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "racing attempts cannot both reserve a cap with room for one")
}

func TestQueue_HourlyCap(t *testing.T) {
	settings := enabledSettings()
	settings.MaxTradesPerHour = 2

	f := newFixture(t, nil)
	f.addUser(t, "user-1", settings)

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	for i, asset := range []string{"TOKEN_A", "TOKEN_B", "TOKEN_C"} {
		f.queue.Submit("user-1", signal(fmt.Sprintf("sig-%d", i), asset))
		waitIdle(t, f.queue)
	}

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 2, "third signal within the hour is denied")
}

func TestQueue_FailureDoesNotConsumeBudget(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "user-1", enabledSettings())
	f.agg.quoteErr = errors.New("no route found")

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	f.queue.Submit("user-1", signal("sig-1", "TOKEN_X"))
	waitIdle(t, f.queue)

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TradeStatusFailed, recs[0].Status)
	assert.Contains(t, recs[0].Error, "no route found")
	assert.Empty(t, recs[0].TxSignatureOut)

	succeeded, failed := f.sink.counts()
	assert.Equal(t, 0, succeeded)
	assert.Equal(t, 1, failed)

	// budget released: a fresh signal for the same token still passes
	f.agg.mu.Lock()
	f.agg.quoteErr = nil
	f.agg.mu.Unlock()

	f.queue.Submit("user-1", signal("sig-2", "TOKEN_X"))
	waitIdle(t, f.queue)

	recs, err = f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.TradeStatusSucceeded, recs[0].Status)
}

func TestQueue_AutoDisabledIsSilentSkip(t *testing.T) {
	settings := enabledSettings()
	settings.AutoTradingEnabled = false

	f := newFixture(t, nil)
	f.addUser(t, "user-1", settings)

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	f.queue.Submit("user-1", signal("sig-1", "TOKEN_X"))
	waitIdle(t, f.queue)

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	succeeded, failed := f.sink.counts()
	assert.Zero(t, succeeded)
	assert.Zero(t, failed)
}

func TestQueue_StopDropsQueued(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Workers = 1
	})
	f.addUser(t, "user-1", enabledSettings())

	// never started: submissions stay queued
	for i := 0; i < 5; i++ {
		f.queue.Submit("user-1", signal(fmt.Sprintf("sig-%d", i), "TOKEN_X"))
	}
	assert.Equal(t, 5, f.queue.Depth())

	f.queue.Start(context.Background())
	f.queue.Stop()

	assert.Zero(t, f.queue.Depth())
}

func TestQueue_SeenSetEvictsBeyondHorizon(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "user-1", enabledSettings())

	// not started: submissions stay queued and only the dedup set matters
	f.queue.Submit("user-1", signal("sig-old", "TOKEN_X"))
	f.queue.Submit("user-1", signal("sig-old", "TOKEN_X"))
	assert.Equal(t, 1, f.queue.Depth(), "duplicate within the horizon is dropped")

	// age the entry past the horizon and force the next sweep
	f.queue.mu.Lock()
	for id := range f.queue.seen {
		f.queue.seen[id] = time.Now().Add(-2 * time.Hour)
	}
	f.queue.lastSeenPrune = time.Now().Add(-2 * seenPruneEvery)
	f.queue.mu.Unlock()

	f.queue.Submit("user-1", signal("sig-new", "TOKEN_Y"))

	f.queue.mu.Lock()
	remembered := len(f.queue.seen)
	f.queue.mu.Unlock()
	assert.Equal(t, 1, remembered, "expired entries are swept; memory does not grow without bound")

	f.queue.Submit("user-1", signal("sig-old", "TOKEN_X"))
	assert.Equal(t, 3, f.queue.Depth(), "an evicted ID is accepted again; the ledger is the durable backstop")
}

func TestQueue_SeedCounters(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "user-1", enabledSettings())

	now := time.Now()
	seed := []*domain.TradeRecord{
		{ID: "old", UserID: "user-1", OutputAsset: "TOKEN_OLD", Status: domain.TradeStatusSucceeded,
			CreatedAt: now.Add(-2 * time.Hour).UnixMilli()},
		{ID: "recent", UserID: "user-1", OutputAsset: "TOKEN_X", Status: domain.TradeStatusSucceeded,
			CreatedAt: now.Add(-10 * time.Minute).UnixMilli()},
		{ID: "failed", UserID: "user-1", OutputAsset: "TOKEN_Y", Status: domain.TradeStatusFailed,
			CreatedAt: now.Add(-5 * time.Minute).UnixMilli()},
	}
	for _, rec := range seed {
		require.NoError(t, f.ledger.Insert(context.Background(), rec))
	}

	require.NoError(t, f.queue.SeedCounters(context.Background(), "user-1"))

	f.queue.Start(context.Background())
	defer f.queue.Stop()

	// TOKEN_X already traded within the hour: token cap denies
	f.queue.Submit("user-1", signal("sig-1", "TOKEN_X"))
	waitIdle(t, f.queue)

	recs, err := f.ledger.ListByUser(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "failed", recs[0].ID, "no new record for the denied signal")

	// TOKEN_Y only failed before: failed records never count
	f.queue.Submit("user-1", signal("sig-2", "TOKEN_Y"))
	waitIdle(t, f.queue)

	recs, err = f.ledger.ListByUser(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusSucceeded, recs[0].Status)
	assert.Equal(t, "TOKEN_Y", recs[0].OutputAsset)
}
