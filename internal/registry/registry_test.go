package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/domain"
)

const (
	walletA = "A1phaWa11et111111111111111111111111111111111"
	walletB = "A1phaWa11et222222222222222222222222222222222"
)

func TestWalletRegistry_AddRemove(t *testing.T) {
	r := NewWalletRegistry()

	assert.True(t, r.AddWallet(walletA, "whale-1"))
	assert.False(t, r.AddWallet(walletA, "whale-1"), "re-adding an active wallet is a no-op")
	assert.True(t, r.IsTracked(walletA))
	assert.Equal(t, 1, r.ActiveCount())

	assert.True(t, r.RemoveWallet(walletA))
	assert.False(t, r.RemoveWallet(walletA))
	assert.False(t, r.IsTracked(walletA))
	assert.Equal(t, 0, r.ActiveCount())

	// soft-deleted entry survives and keeps its label
	w, ok := r.Wallet(walletA)
	require.True(t, ok)
	assert.Equal(t, "whale-1", w.Label)
	assert.False(t, w.IsActive)

	// reactivation restores tracking
	assert.True(t, r.AddWallet(walletA, ""))
	assert.True(t, r.IsTracked(walletA))
	w, _ = r.Wallet(walletA)
	assert.Equal(t, "whale-1", w.Label)
}

func TestWalletRegistry_Subscriptions(t *testing.T) {
	r := NewWalletRegistry()
	r.AddWallet(walletA, "")

	r.Subscribe("user-1", walletA)
	r.Subscribe("user-2", walletA)
	r.Subscribe("user-1", walletA) // duplicate collapsed

	assert.ElementsMatch(t, []string{"user-1", "user-2"}, r.SubscribersOf(walletA))

	r.Unsubscribe("user-1", walletA)
	assert.Equal(t, []string{"user-2"}, r.SubscribersOf(walletA))

	r.Unsubscribe("user-1", walletA) // already gone, no-op
	assert.Equal(t, []string{"user-2"}, r.SubscribersOf(walletA))
}

func TestWalletRegistry_InactiveWalletHasNoSubscribers(t *testing.T) {
	r := NewWalletRegistry()
	r.AddWallet(walletA, "")
	r.Subscribe("user-1", walletA)

	r.RemoveWallet(walletA)
	assert.Nil(t, r.SubscribersOf(walletA))

	// subscription survives deactivation
	r.AddWallet(walletA, "")
	assert.Equal(t, []string{"user-1"}, r.SubscribersOf(walletA))
}

func TestWalletRegistry_Load(t *testing.T) {
	r := NewWalletRegistry()
	r.AddWallet("stale", "")

	now := time.Now().UnixMilli()
	r.Load(
		[]domain.TrackedWallet{
			{Address: walletA, Label: "whale-1", IsActive: true, AddedAt: now},
			{Address: walletB, Label: "whale-2", IsActive: false, AddedAt: now},
		},
		[]domain.Subscription{
			{UserID: "user-1", WalletAddress: walletA},
			{UserID: "user-2", WalletAddress: walletA},
		},
	)

	assert.False(t, r.IsTracked("stale"))
	assert.ElementsMatch(t, []string{walletA}, r.ActiveAddresses())
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, r.SubscribersOf(walletA))
	assert.False(t, r.IsTracked(walletB))
}

func TestWalletRegistry_ConcurrentReadersAndWriters(t *testing.T) {
	r := NewWalletRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			addr := fmt.Sprintf("wallet-%d", n)
			for j := 0; j < 200; j++ {
				r.AddWallet(addr, "")
				r.Subscribe(fmt.Sprintf("user-%d", j%5), addr)
				r.RemoveWallet(addr)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = r.ActiveAddresses()
				_ = r.SubscribersOf("wallet-3")
				_ = r.ActiveCount()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.ActiveCount())
}
