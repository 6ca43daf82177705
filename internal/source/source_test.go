package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/solana"
)

type stubWS struct {
	mu           sync.Mutex
	channels     map[string]chan solana.LogNotification
	subscribed   []solana.LogsFilter
	unsubscribes int
	subscribeErr error
	disconnected bool
}

func newStubWS() *stubWS {
	return &stubWS{channels: make(map[string]chan solana.LogNotification)}
}

func (w *stubWS) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (*solana.LogSubscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subscribeErr != nil {
		return nil, w.subscribeErr
	}
	w.subscribed = append(w.subscribed, filter)
	ch := make(chan solana.LogNotification, 8)
	w.channels[filter.Mentions[0]] = ch
	return &solana.LogSubscription{C: ch}, nil
}

func (w *stubWS) UnsubscribeLogs(context.Context, *solana.LogSubscription) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unsubscribes++
	return nil
}

func (w *stubWS) Close() error { return nil }

func (w *stubWS) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.disconnected
}

func (w *stubWS) setDisconnected(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disconnected = v
}

func (w *stubWS) notify(address string, n solana.LogNotification) {
	w.mu.Lock()
	ch := w.channels[address]
	w.mu.Unlock()
	ch <- n
}

func (w *stubWS) subscriptionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subscribed)
}

type stubRPC struct {
	mu sync.Mutex

	txs   map[string]*solana.Transaction
	txErr error

	sigResponses [][]solana.SignatureInfo
	sigOpts      []solana.SignaturesOpts
	sigErr       error
}

func newStubRPC() *stubRPC {
	return &stubRPC{txs: make(map[string]*solana.Transaction)}
}

func (r *stubRPC) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.txErr != nil {
		return nil, r.txErr
	}
	tx, ok := r.txs[signature]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", signature)
	}
	return tx, nil
}

func (r *stubRPC) GetSignaturesForAddress(_ context.Context, _ string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sigErr != nil {
		return nil, r.sigErr
	}
	r.sigOpts = append(r.sigOpts, *opts)
	if len(r.sigResponses) == 0 {
		return nil, nil
	}
	resp := r.sigResponses[0]
	r.sigResponses = r.sigResponses[1:]
	return resp, nil
}

func (r *stubRPC) GetBalance(context.Context, string) (uint64, error) { return 0, nil }

func (r *stubRPC) GetTokenSupply(context.Context, string) (*solana.TokenAmount, error) {
	return nil, errors.New("not implemented")
}

func (r *stubRPC) GetTokenBalance(context.Context, string, string) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (r *stubRPC) SendTransaction(context.Context, string) (string, error) {
	return "", errors.New("not implemented")
}

func (r *stubRPC) addTx(tx *solana.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.Signature] = tx
}

func receiveRawTx(t *testing.T, events <-chan domain.RawTx) domain.RawTx {
	t.Helper()
	select {
	case raw := <-events:
		return raw
	case <-time.After(2 * time.Second):
		t.Fatal("no raw transaction delivered")
		return domain.RawTx{}
	}
}

func TestEmit_DropsOldestWhenFull(t *testing.T) {
	out := make(chan domain.RawTx, 2)

	for i := 0; i < 3; i++ {
		emit(out, domain.RawTx{Signature: fmt.Sprintf("sig-%d", i)})
	}

	assert.Equal(t, "sig-1", (<-out).Signature, "oldest entry evicted")
	assert.Equal(t, "sig-2", (<-out).Signature)
	assert.Empty(t, out)
}

func TestWSSource_DeliversEnrichedTransaction(t *testing.T) {
	ws := newStubWS()
	rpc := newStubRPC()
	rpc.addTx(&solana.Transaction{
		Signature: "sig-1",
		Slot:      100,
		BlockTime: 1_700_000_000,
		Meta:      &solana.TransactionMeta{LogMessages: []string{"Program log: full"}},
		Message:   &solana.TransactionMessage{AccountKeys: []string{"Acc1", "Acc2"}},
	})

	src := NewWSActivitySource(ws, rpc, WSOptions{})
	defer src.Close()

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))
	require.Equal(t, []string{"AlphaWallet"}, ws.subscribed[0].Mentions)

	ws.notify("AlphaWallet", solana.LogNotification{
		Signature: "sig-1",
		Slot:      100,
		Logs:      []string{"Program log: partial"},
	})

	raw := receiveRawTx(t, src.Events())
	assert.Equal(t, "AlphaWallet", raw.SourceWallet)
	assert.Equal(t, "sig-1", raw.Signature)
	assert.Equal(t, int64(1_700_000_000), raw.BlockTime)
	assert.Equal(t, []string{"Acc1", "Acc2"}, raw.AccountKeys)
	assert.Equal(t, []string{"Program log: full"}, raw.Logs)
	assert.False(t, raw.Failed)
}

func TestWSSource_FlagsFailedTransaction(t *testing.T) {
	ws := newStubWS()
	rpc := newStubRPC()
	rpc.addTx(&solana.Transaction{
		Signature: "sig-err",
		Meta:      &solana.TransactionMeta{Err: map[string]any{"InstructionError": []any{}}},
	})

	src := NewWSActivitySource(ws, rpc, WSOptions{})
	defer src.Close()

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))
	ws.notify("AlphaWallet", solana.LogNotification{Signature: "sig-err"})

	raw := receiveRawTx(t, src.Events())
	assert.True(t, raw.Failed)
}

func TestWSSource_AddWalletIdempotent(t *testing.T) {
	ws := newStubWS()
	src := NewWSActivitySource(ws, newStubRPC(), WSOptions{})
	defer src.Close()

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))
	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))

	assert.Equal(t, 1, ws.subscriptionCount())
}

func TestWSSource_RemoveWalletUnsubscribes(t *testing.T) {
	ws := newStubWS()
	src := NewWSActivitySource(ws, newStubRPC(), WSOptions{})
	defer src.Close()

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))
	require.NoError(t, src.RemoveWallet(context.Background(), "AlphaWallet"))

	ws.mu.Lock()
	unsubs := ws.unsubscribes
	ws.mu.Unlock()
	assert.Equal(t, 1, unsubs)

	// unknown address is a no-op
	require.NoError(t, src.RemoveWallet(context.Background(), "Unknown"))
}

func TestWSSource_DegradedAfterConsecutiveFetchFailures(t *testing.T) {
	ws := newStubWS()
	rpc := newStubRPC()
	rpc.txErr = errors.New("rpc unavailable")

	src := NewWSActivitySource(ws, rpc, WSOptions{
		DegradedThreshold: 2,
		FetchRetries:      1,
		FetchRetryDelay:   time.Millisecond,
	})
	defer src.Close()

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))

	for i := 0; i < 2; i++ {
		ws.notify("AlphaWallet", solana.LogNotification{
			Signature: fmt.Sprintf("sig-%d", i),
			Logs:      []string{"Program log: from notification"},
		})
		// fetch failed, but the notification payload still flows through
		raw := receiveRawTx(t, src.Events())
		assert.Equal(t, []string{"Program log: from notification"}, raw.Logs)
	}

	require.Eventually(t, func() bool { return src.Degraded() }, time.Second, 5*time.Millisecond)

	// a successful fetch clears the flag
	rpc.mu.Lock()
	rpc.txErr = nil
	rpc.mu.Unlock()
	rpc.addTx(&solana.Transaction{Signature: "sig-ok"})

	ws.notify("AlphaWallet", solana.LogNotification{Signature: "sig-ok"})
	receiveRawTx(t, src.Events())
	assert.False(t, src.Degraded())
}

func TestWSSource_DegradedWhileTransportDown(t *testing.T) {
	ws := newStubWS()
	src := NewWSActivitySource(ws, newStubRPC(), WSOptions{})
	defer src.Close()

	require.False(t, src.Degraded())

	ws.setDisconnected(true)
	assert.True(t, src.Degraded(), "lost transport reports degraded")

	ws.setDisconnected(false)
	assert.False(t, src.Degraded(), "reconnect clears the flag")
}

func TestWSSource_CloseClosesEvents(t *testing.T) {
	ws := newStubWS()
	src := NewWSActivitySource(ws, newStubRPC(), WSOptions{})

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))
	require.NoError(t, src.Close())

	_, open := <-src.Events()
	assert.False(t, open)

	assert.Error(t, src.AddWallet(context.Background(), "Other"))
	require.NoError(t, src.Close())
}

func TestPollingSource_DiffsAgainstLastSeen(t *testing.T) {
	rpc := newStubRPC()
	blockTime := int64(1_700_000_000)
	rpc.sigResponses = [][]solana.SignatureInfo{
		// first round only records the head
		{{Signature: "sig-1", Slot: 10, BlockTime: &blockTime}},
		// second round: two new signatures, newest first
		{
			{Signature: "sig-3", Slot: 12, BlockTime: &blockTime},
			{Signature: "sig-2", Slot: 11, BlockTime: &blockTime},
		},
	}
	rpc.addTx(&solana.Transaction{
		Signature: "sig-2",
		Slot:      11,
		BlockTime: blockTime,
		Meta:      &solana.TransactionMeta{LogMessages: []string{"Program log: two"}},
		Message:   &solana.TransactionMessage{AccountKeys: []string{"Acc1"}},
	})
	rpc.addTx(&solana.Transaction{
		Signature: "sig-3",
		Slot:      12,
		BlockTime: blockTime,
	})

	src := NewPollingActivitySource(rpc, PollOptions{Interval: 10 * time.Millisecond})
	defer src.Close()

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))

	first := receiveRawTx(t, src.Events())
	assert.Equal(t, "sig-2", first.Signature, "new signatures replay oldest first")
	assert.Equal(t, []string{"Program log: two"}, first.Logs)
	assert.Equal(t, []string{"Acc1"}, first.AccountKeys)

	second := receiveRawTx(t, src.Events())
	assert.Equal(t, "sig-3", second.Signature)

	require.Eventually(t, func() bool {
		rpc.mu.Lock()
		defer rpc.mu.Unlock()
		return len(rpc.sigOpts) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	rpc.mu.Lock()
	defer rpc.mu.Unlock()
	assert.Equal(t, "", rpc.sigOpts[0].Until)
	assert.Equal(t, "sig-1", rpc.sigOpts[1].Until)
	assert.Equal(t, "sig-3", rpc.sigOpts[2].Until, "head advances past emitted signatures")
}

func TestPollingSource_FlagsFailedSignature(t *testing.T) {
	rpc := newStubRPC()
	rpc.sigResponses = [][]solana.SignatureInfo{
		{{Signature: "sig-1"}},
		{{Signature: "sig-2", Err: map[string]any{"InstructionError": []any{}}}},
	}

	src := NewPollingActivitySource(rpc, PollOptions{Interval: 10 * time.Millisecond})
	defer src.Close()

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))

	raw := receiveRawTx(t, src.Events())
	assert.Equal(t, "sig-2", raw.Signature)
	assert.True(t, raw.Failed)
}

func TestPollingSource_DegradedOnPollFailures(t *testing.T) {
	rpc := newStubRPC()
	rpc.sigErr = errors.New("rpc unavailable")

	src := NewPollingActivitySource(rpc, PollOptions{
		Interval:          5 * time.Millisecond,
		DegradedThreshold: 3,
	})
	defer src.Close()

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))
	require.Eventually(t, func() bool { return src.Degraded() }, 2*time.Second, 5*time.Millisecond)

	rpc.mu.Lock()
	rpc.sigErr = nil
	rpc.mu.Unlock()

	require.Eventually(t, func() bool { return !src.Degraded() }, 2*time.Second, 5*time.Millisecond)
}

func TestPollingSource_RemoveWalletStopsPolling(t *testing.T) {
	rpc := newStubRPC()
	src := NewPollingActivitySource(rpc, PollOptions{Interval: 5 * time.Millisecond})
	defer src.Close()

	require.NoError(t, src.AddWallet(context.Background(), "AlphaWallet"))
	require.Eventually(t, func() bool {
		rpc.mu.Lock()
		defer rpc.mu.Unlock()
		return len(rpc.sigOpts) > 0
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, src.RemoveWallet(context.Background(), "AlphaWallet"))

	rpc.mu.Lock()
	seen := len(rpc.sigOpts)
	rpc.mu.Unlock()
	time.Sleep(50 * time.Millisecond)

	rpc.mu.Lock()
	after := len(rpc.sigOpts)
	rpc.mu.Unlock()
	assert.LessOrEqual(t, after, seen+1, "at most one in-flight round after removal")
}
