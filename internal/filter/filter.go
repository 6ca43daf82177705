// Package filter holds the per-user copy-trade eligibility decision. The
// evaluator is pure: it reads its inputs, mutates nothing, and returns a
// structured allow/deny outcome, so the same check runs at fan-out time and
// again at execution time.
package filter

import (
	"time"

	"solana-copy-trader/internal/domain"
)

// DenyReason identifies which check rejected a signal.
type DenyReason string

// Deny reasons in evaluation order. The first failing check wins.
const (
	DenyAutoDisabled        DenyReason = "auto-disabled"
	DenyDirectionFiltered   DenyReason = "direction-filtered"
	DenyTokenCapReached     DenyReason = "token-cap-reached"
	DenyHourlyCapReached    DenyReason = "hourly-cap-reached"
	DenyCooldownActive      DenyReason = "cooldown-active"
	DenyNoWallet            DenyReason = "no-wallet"
	DenyInsufficientBalance DenyReason = "insufficient-balance"
)

// Decision is the evaluation outcome. A denial is not an error; it is a
// normal, silent skip surfaced only to logs and metrics.
type Decision struct {
	Allowed bool
	Amount  float64    // trade size in base asset units, set when Allowed
	Reason  DenyReason // set when not Allowed
}

// Allow builds an allowing decision with the computed trade size.
func Allow(amount float64) Decision {
	return Decision{Allowed: true, Amount: amount}
}

// Deny builds a denying decision.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// CountersSnapshot is a read-only view of a user's rate-limit counters taken
// inside the owner's critical section. The window roll is applied logically
// here; the owner performs the actual reset.
type CountersSnapshot struct {
	TradesThisHour    int
	HourWindowResetAt time.Time
	TokenTradeCounts  map[string]int
	LastTradeAt       time.Time
}

// Input bundles everything one evaluation reads. Balance is the user's
// available base-asset balance, fetched by the caller; the evaluator itself
// never does I/O.
type Input struct {
	User     domain.User
	Settings domain.UserSettings
	Counters CountersSnapshot
	Signal   *domain.SwapEvent
	Balance  float64
	Now      time.Time
}

// Evaluator applies the eligibility checks with fixed policy knobs.
type Evaluator struct {
	minTradeInterval time.Duration
	feeBuffer        float64
	scalingFactor    float64
}

// Config tunes the evaluator. Zero values take the defaults.
type Config struct {
	// MinTradeInterval is the per-user cooldown floor between trades.
	// Default 30s.
	MinTradeInterval time.Duration
	// FeeBuffer is the base-asset amount reserved for network fees on top
	// of the trade size. Default 0.01.
	FeeBuffer float64
	// ScalingFactor sizes copies proportionally to the leader's trade when
	// the source amount is known. Zero disables scaling and the configured
	// fixed trade amount is used as-is.
	ScalingFactor float64
}

// NewEvaluator creates an evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.MinTradeInterval <= 0 {
		cfg.MinTradeInterval = 30 * time.Second
	}
	if cfg.FeeBuffer <= 0 {
		cfg.FeeBuffer = 0.01
	}
	return &Evaluator{
		minTradeInterval: cfg.MinTradeInterval,
		feeBuffer:        cfg.FeeBuffer,
		scalingFactor:    cfg.ScalingFactor,
	}
}

// Evaluate runs the checks in order and short-circuits on the first failure.
func (e *Evaluator) Evaluate(in Input) Decision {
	s := in.Settings

	if !s.AutoTradingEnabled {
		return Deny(DenyAutoDisabled)
	}

	if directionExcluded(s, in.Signal.Direction) {
		return Deny(DenyDirectionFiltered)
	}

	if in.Counters.TokenTradeCounts[in.Signal.TargetAsset()] >= s.MaxTradesPerToken {
		return Deny(DenyTokenCapReached)
	}

	tradesThisHour := in.Counters.TradesThisHour
	if !in.Now.Before(in.Counters.HourWindowResetAt) {
		tradesThisHour = 0
	}
	if tradesThisHour >= s.MaxTradesPerHour {
		return Deny(DenyHourlyCapReached)
	}

	if !in.Counters.LastTradeAt.IsZero() && in.Now.Sub(in.Counters.LastTradeAt) < e.minTradeInterval {
		return Deny(DenyCooldownActive)
	}

	if !in.User.HasWallet() {
		return Deny(DenyNoWallet)
	}

	if in.Balance < s.TradeAmount+e.feeBuffer {
		return Deny(DenyInsufficientBalance)
	}

	return Allow(e.tradeSize(s, in.Signal))
}

// tradeSize picks the copy amount in SOL: the fixed configured amount, capped
// by a scaled fraction of the leader's trade. Scaling only applies when the
// leader spent wrapped SOL, since that is the one input whose raw amount
// (lamports) converts to SOL without a per-mint decimals lookup.
func (e *Evaluator) tradeSize(s domain.UserSettings, signal *domain.SwapEvent) float64 {
	amount := s.TradeAmount
	if e.scalingFactor > 0 && signal.InputAsset == domain.WSOLMint && signal.InputAmount > 0 {
		scaled := signal.InputAmount / domain.LamportsPerSOL * e.scalingFactor
		if scaled < amount {
			amount = scaled
		}
	}
	return amount
}

// directionExcluded reports whether the user's directional filter rejects
// the signal. An ambiguous direction cannot satisfy a directional filter and
// is rejected whenever one is set.
func directionExcluded(s domain.UserSettings, dir domain.Direction) bool {
	switch {
	case s.BuyOnly:
		return dir != domain.DirectionBuy
	case s.SellOnly:
		return dir != domain.DirectionSell
	default:
		return false
	}
}
