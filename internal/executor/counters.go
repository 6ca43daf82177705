package executor

import (
	"context"
	"sync"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/filter"
)

// userCounters is one user's rate-limit state. The queue owns it exclusively;
// all reads and writes happen under mu so a check-and-increment is a single
// critical section.
type userCounters struct {
	mu                sync.Mutex
	tradesThisHour    int
	hourWindowResetAt time.Time
	tokenTradeCounts  map[string]int
	lastTradeAt       time.Time
}

// countersFor returns the counters for a user, creating them on first use.
func (q *Queue) countersFor(userID string) *userCounters {
	q.countersMu.Lock()
	defer q.countersMu.Unlock()

	c, ok := q.counters[userID]
	if !ok {
		c = &userCounters{tokenTradeCounts: make(map[string]int)}
		q.counters[userID] = c
	}
	return c
}

// reserve evaluates eligibility and, when allowed, reserves the budget by
// incrementing the counters inside the same critical section. Two concurrent
// attempts for one user therefore cannot both pass a cap that only has room
// for one.
// A reservation is released by rollback on failure or sealed by commit on
// success.
func (q *Queue) reserve(user *domain.User, signal *domain.SwapEvent, balance float64, now time.Time) filter.Decision {
	c := q.countersFor(user.ID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !now.Before(c.hourWindowResetAt) {
		c.tradesThisHour = 0
		c.hourWindowResetAt = now.Add(time.Hour)
	}

	d := q.evaluator.Evaluate(filter.Input{
		User:     *user,
		Settings: user.Settings,
		Counters: filter.CountersSnapshot{
			TradesThisHour:    c.tradesThisHour,
			HourWindowResetAt: c.hourWindowResetAt,
			TokenTradeCounts:  c.tokenTradeCounts,
			LastTradeAt:       c.lastTradeAt,
		},
		Signal:  signal,
		Balance: balance,
		Now:     now,
	})

	if d.Allowed {
		c.tradesThisHour++
		c.tokenTradeCounts[signal.TargetAsset()]++
	}
	return d
}

// rollback releases a reservation after a failed attempt so the failure does
// not consume the user's budget.
func (q *Queue) rollback(userID, asset string) {
	c := q.countersFor(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tradesThisHour > 0 {
		c.tradesThisHour--
	}
	if c.tokenTradeCounts[asset] > 0 {
		c.tokenTradeCounts[asset]--
	}
}

// commit seals a reservation after a successful trade.
func (q *Queue) commit(userID string, now time.Time) {
	c := q.countersFor(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastTradeAt = now
}

// SeedCounters rebuilds a user's counters from the last hour of persisted
// trades. Called at startup; failed records never count.
func (q *Queue) SeedCounters(ctx context.Context, userID string) error {
	now := time.Now()
	recs, err := q.ledger.ListByUserSince(ctx, userID, now.Add(-time.Hour).UnixMilli())
	if err != nil {
		return err
	}

	c := q.countersFor(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tradesThisHour = 0
	c.tokenTradeCounts = make(map[string]int)
	c.lastTradeAt = time.Time{}

	oldest := now
	for _, rec := range recs {
		if rec.Status != domain.TradeStatusSucceeded {
			continue
		}
		c.tradesThisHour++
		c.tokenTradeCounts[recordTargetAsset(rec)]++

		created := time.UnixMilli(rec.CreatedAt)
		if created.After(c.lastTradeAt) {
			c.lastTradeAt = created
		}
		if created.Before(oldest) {
			oldest = created
		}
	}
	c.hourWindowResetAt = oldest.Add(time.Hour)
	return nil
}

// recordTargetAsset recovers the per-token budget key from a persisted
// record: the non-SOL side of the executed pair.
func recordTargetAsset(rec *domain.TradeRecord) string {
	if rec.OutputAsset == domain.WSOLMint {
		return rec.InputAsset
	}
	return rec.OutputAsset
}
