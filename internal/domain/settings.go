package domain

// Default user settings applied when a user has no explicit configuration.
const (
	DefaultTradeAmount       = 0.05 // SOL
	DefaultSlippageBps       = 300
	DefaultMaxTradesPerToken = 1
	DefaultMaxTradesPerHour  = 10
)

// UserSettings is the per-user copy-trading configuration. It is mutated only
// by explicit user action and read (never mutated) by the eligibility filter
// and the execution queue.
//
// Invariant: BuyOnly and SellOnly are mutually exclusive; use SetBuyOnly and
// SetSellOnly to mutate them.
type UserSettings struct {
	TradeAmount        float64 // fixed copy size in SOL
	SlippageBps        int     // max slippage in basis points
	AutoTradingEnabled bool
	BuyOnly            bool
	SellOnly           bool
	DelayMs            int64 // optional delay before execution
	MaxTradesPerToken  int
	MaxTradesPerHour   int
}

// DefaultUserSettings returns settings for a newly connected user.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		TradeAmount:       DefaultTradeAmount,
		SlippageBps:       DefaultSlippageBps,
		MaxTradesPerToken: DefaultMaxTradesPerToken,
		MaxTradesPerHour:  DefaultMaxTradesPerHour,
	}
}

// SetBuyOnly sets the buy-only flag, clearing sell-only when enabled.
func (s *UserSettings) SetBuyOnly(v bool) {
	s.BuyOnly = v
	if v {
		s.SellOnly = false
	}
}

// SetSellOnly sets the sell-only flag, clearing buy-only when enabled.
func (s *UserSettings) SetSellOnly(v bool) {
	s.SellOnly = v
	if v {
		s.BuyOnly = false
	}
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
// BuyOnly/SellOnly mutual exclusion is applied in patch order.
type SettingsPatch struct {
	TradeAmount        *float64
	SlippageBps        *int
	AutoTradingEnabled *bool
	BuyOnly            *bool
	SellOnly           *bool
	DelayMs            *int64
	MaxTradesPerToken  *int
	MaxTradesPerHour   *int
}

// Apply merges the patch into settings, enforcing invariants.
func (p SettingsPatch) Apply(s *UserSettings) {
	if p.TradeAmount != nil {
		s.TradeAmount = *p.TradeAmount
	}
	if p.SlippageBps != nil {
		s.SlippageBps = *p.SlippageBps
	}
	if p.AutoTradingEnabled != nil {
		s.AutoTradingEnabled = *p.AutoTradingEnabled
	}
	if p.BuyOnly != nil {
		s.SetBuyOnly(*p.BuyOnly)
	}
	if p.SellOnly != nil {
		s.SetSellOnly(*p.SellOnly)
	}
	if p.DelayMs != nil {
		s.DelayMs = *p.DelayMs
	}
	if p.MaxTradesPerToken != nil {
		s.MaxTradesPerToken = *p.MaxTradesPerToken
	}
	if p.MaxTradesPerHour != nil {
		s.MaxTradesPerHour = *p.MaxTradesPerHour
	}
}
