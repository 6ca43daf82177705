// Package registry keeps the in-memory mirror of tracked alpha wallets and
// per-user subscriptions. It is the pipeline's answer to "who is watching
// whom" during signal fan-out.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"solana-copy-trader/internal/domain"
)

// snapshot is the immutable state readers observe. Writers build a new
// snapshot and swap it in whole, so a reader never sees a half-applied
// mutation.
type snapshot struct {
	wallets     map[string]domain.TrackedWallet // address -> wallet
	subscribers map[string][]string             // address -> userIDs
}

// WalletRegistry mirrors the persisted tracked-wallet set. Reads are
// lock-free against the current snapshot; writes serialize on a mutex,
// rebuild the affected maps, and publish atomically.
type WalletRegistry struct {
	mu   sync.Mutex // guards writers
	snap atomic.Pointer[snapshot]
}

// NewWalletRegistry creates an empty registry.
func NewWalletRegistry() *WalletRegistry {
	r := &WalletRegistry{}
	r.snap.Store(&snapshot{
		wallets:     make(map[string]domain.TrackedWallet),
		subscribers: make(map[string][]string),
	})
	return r
}

// Load replaces the registry contents from persisted state, typically at
// startup. Inactive wallets are mirrored too so re-registration can restore
// them without losing the label.
func (r *WalletRegistry) Load(wallets []domain.TrackedWallet, subs []domain.Subscription) {
	next := &snapshot{
		wallets:     make(map[string]domain.TrackedWallet, len(wallets)),
		subscribers: make(map[string][]string),
	}
	for _, w := range wallets {
		next.wallets[w.Address] = w
	}
	for _, s := range subs {
		next.subscribers[s.WalletAddress] = append(next.subscribers[s.WalletAddress], s.UserID)
	}

	r.mu.Lock()
	r.snap.Store(next)
	r.mu.Unlock()
}

// AddWallet registers or reactivates a tracked wallet and reports whether the
// active set changed, which tells the caller whether the chain source needs a
// subscription update.
func (r *WalletRegistry) AddWallet(address, label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	existing, ok := cur.wallets[address]
	if ok && existing.IsActive {
		return false
	}

	next := r.cloneLocked()
	if ok {
		existing.IsActive = true
		if label != "" {
			existing.Label = label
		}
		next.wallets[address] = existing
	} else {
		next.wallets[address] = domain.TrackedWallet{
			Address:  address,
			Label:    label,
			IsActive: true,
			AddedAt:  time.Now().UnixMilli(),
		}
	}
	r.snap.Store(next)
	return true
}

// RemoveWallet deactivates a tracked wallet. The entry stays in the mirror,
// matching the persisted soft-delete, but it no longer appears in the active
// set and fan-out skips it. Reports whether the active set changed.
func (r *WalletRegistry) RemoveWallet(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	existing, ok := cur.wallets[address]
	if !ok || !existing.IsActive {
		return false
	}

	next := r.cloneLocked()
	existing.IsActive = false
	next.wallets[address] = existing
	r.snap.Store(next)
	return true
}

// Subscribe links a user to a tracked wallet. Duplicate subscriptions are
// collapsed.
func (r *WalletRegistry) Subscribe(userID, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	for _, id := range cur.subscribers[address] {
		if id == userID {
			return
		}
	}

	next := r.cloneLocked()
	next.subscribers[address] = append(next.subscribers[address], userID)
	r.snap.Store(next)
}

// Unsubscribe removes a user's link to a tracked wallet.
func (r *WalletRegistry) Unsubscribe(userID, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	subs := cur.subscribers[address]
	idx := -1
	for i, id := range subs {
		if id == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	next := r.cloneLocked()
	kept := make([]string, 0, len(subs)-1)
	kept = append(kept, subs[:idx]...)
	kept = append(kept, subs[idx+1:]...)
	if len(kept) == 0 {
		delete(next.subscribers, address)
	} else {
		next.subscribers[address] = kept
	}
	r.snap.Store(next)
}

// SubscribersOf returns the user IDs subscribed to a wallet. Fan-out skips
// inactive wallets even when stale subscriptions remain.
func (r *WalletRegistry) SubscribersOf(address string) []string {
	snap := r.snap.Load()
	w, ok := snap.wallets[address]
	if !ok || !w.IsActive {
		return nil
	}

	subs := snap.subscribers[address]
	out := make([]string, len(subs))
	copy(out, subs)
	return out
}

// ActiveAddresses returns the addresses of all active tracked wallets.
func (r *WalletRegistry) ActiveAddresses() []string {
	snap := r.snap.Load()
	out := make([]string, 0, len(snap.wallets))
	for addr, w := range snap.wallets {
		if w.IsActive {
			out = append(out, addr)
		}
	}
	return out
}

// IsTracked reports whether an address is an active tracked wallet.
func (r *WalletRegistry) IsTracked(address string) bool {
	snap := r.snap.Load()
	w, ok := snap.wallets[address]
	return ok && w.IsActive
}

// Wallet returns the tracked wallet for an address, active or not.
func (r *WalletRegistry) Wallet(address string) (domain.TrackedWallet, bool) {
	snap := r.snap.Load()
	w, ok := snap.wallets[address]
	return w, ok
}

// ActiveCount returns the number of active tracked wallets.
func (r *WalletRegistry) ActiveCount() int {
	snap := r.snap.Load()
	n := 0
	for _, w := range snap.wallets {
		if w.IsActive {
			n++
		}
	}
	return n
}

// cloneLocked deep-copies the current snapshot. Callers must hold mu.
func (r *WalletRegistry) cloneLocked() *snapshot {
	cur := r.snap.Load()
	next := &snapshot{
		wallets:     make(map[string]domain.TrackedWallet, len(cur.wallets)),
		subscribers: make(map[string][]string, len(cur.subscribers)),
	}
	for addr, w := range cur.wallets {
		next.wallets[addr] = w
	}
	for addr, subs := range cur.subscribers {
		cp := make([]string, len(subs))
		copy(cp, subs)
		next.subscribers[addr] = cp
	}
	return next
}
