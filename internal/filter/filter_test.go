package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"solana-copy-trader/internal/domain"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func eligibleInput() Input {
	settings := domain.DefaultUserSettings()
	settings.AutoTradingEnabled = true
	return Input{
		User: domain.User{
			ID:              "user-1",
			WalletPublicKey: "UserWa11et1111111111111111111111111111111111",
			Settings:        settings,
		},
		Settings: settings,
		Counters: CountersSnapshot{
			HourWindowResetAt: testNow.Add(time.Hour),
			TokenTradeCounts:  map[string]int{},
		},
		Signal: &domain.SwapEvent{
			TxSignature: "sig-1",
			InputAsset:  "So11111111111111111111111111111111111111112",
			OutputAsset: "TOKEN_X",
			Direction:   domain.DirectionBuy,
		},
		Balance: 1.0,
		Now:     testNow,
	}
}

func TestEvaluate_AllChecksPass(t *testing.T) {
	e := NewEvaluator(Config{})

	d := e.Evaluate(eligibleInput())
	assert.True(t, d.Allowed)
	assert.Equal(t, domain.DefaultTradeAmount, d.Amount)
	assert.Empty(t, d.Reason)
}

func TestEvaluate_DenyReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		want   DenyReason
	}{
		{"auto trading off", func(in *Input) {
			in.Settings.AutoTradingEnabled = false
		}, DenyAutoDisabled},
		{"buy filtered by sellOnly", func(in *Input) {
			in.Settings.SetSellOnly(true)
		}, DenyDirectionFiltered},
		{"sell filtered by buyOnly", func(in *Input) {
			in.Settings.SetBuyOnly(true)
			in.Signal.Direction = domain.DirectionSell
		}, DenyDirectionFiltered},
		{"ambiguous filtered when directional", func(in *Input) {
			in.Settings.SetBuyOnly(true)
			in.Signal.Direction = domain.DirectionAmbiguous
		}, DenyDirectionFiltered},
		{"token cap", func(in *Input) {
			in.Counters.TokenTradeCounts["TOKEN_X"] = 1
		}, DenyTokenCapReached},
		{"hourly cap", func(in *Input) {
			in.Counters.TradesThisHour = in.Settings.MaxTradesPerHour
		}, DenyHourlyCapReached},
		{"cooldown", func(in *Input) {
			in.Counters.LastTradeAt = testNow.Add(-10 * time.Second)
		}, DenyCooldownActive},
		{"no wallet", func(in *Input) {
			in.User.WalletPublicKey = ""
		}, DenyNoWallet},
		{"insufficient balance", func(in *Input) {
			in.Balance = 0.05 // trade amount alone, no room for fees
		}, DenyInsufficientBalance},
	}

	e := NewEvaluator(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := eligibleInput()
			tt.mutate(&in)
			d := e.Evaluate(in)
			assert.False(t, d.Allowed)
			assert.Equal(t, tt.want, d.Reason)
		})
	}
}

func TestEvaluate_DenyOrderShortCircuits(t *testing.T) {
	e := NewEvaluator(Config{})

	// everything is wrong at once; the first check in order must win
	in := eligibleInput()
	in.Settings.AutoTradingEnabled = false
	in.Settings.SellOnly = true
	in.Counters.TokenTradeCounts["TOKEN_X"] = 5
	in.User.WalletPublicKey = ""
	in.Balance = 0

	assert.Equal(t, DenyAutoDisabled, e.Evaluate(in).Reason)
}

func TestEvaluate_HourWindowRollsLazily(t *testing.T) {
	e := NewEvaluator(Config{})

	in := eligibleInput()
	in.Counters.TradesThisHour = in.Settings.MaxTradesPerHour
	in.Counters.HourWindowResetAt = testNow.Add(-time.Minute)

	// window expired, so the stale count no longer applies
	d := e.Evaluate(in)
	assert.True(t, d.Allowed)
}

func TestEvaluate_SellAllowedWithSellOnly(t *testing.T) {
	e := NewEvaluator(Config{})

	in := eligibleInput()
	in.Settings.SetSellOnly(true)
	in.Signal.Direction = domain.DirectionSell

	assert.True(t, e.Evaluate(in).Allowed)
}

func TestEvaluate_CooldownBoundary(t *testing.T) {
	e := NewEvaluator(Config{MinTradeInterval: 30 * time.Second})

	in := eligibleInput()
	in.Counters.LastTradeAt = testNow.Add(-30 * time.Second)
	assert.True(t, e.Evaluate(in).Allowed, "exactly at the floor is allowed")

	in.Counters.LastTradeAt = testNow.Add(-29 * time.Second)
	assert.Equal(t, DenyCooldownActive, e.Evaluate(in).Reason)
}

func TestEvaluate_ScalingFactor(t *testing.T) {
	e := NewEvaluator(Config{ScalingFactor: 0.001})

	in := eligibleInput()
	in.Signal.InputAmount = 10 * domain.LamportsPerSOL // leader spent 10 SOL
	d := e.Evaluate(in)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0.01, d.Amount, "scaled below the fixed amount")

	// unknown source amount falls back to the fixed amount
	in.Signal.InputAmount = 0
	d = e.Evaluate(in)
	assert.Equal(t, domain.DefaultTradeAmount, d.Amount)

	// large leader trade is capped at the fixed amount
	in.Signal.InputAmount = 1000 * domain.LamportsPerSOL
	d = e.Evaluate(in)
	assert.Equal(t, domain.DefaultTradeAmount, d.Amount)
}

func TestEvaluate_ScalingIgnoresNonSOLInput(t *testing.T) {
	e := NewEvaluator(Config{ScalingFactor: 0.001})

	// a USDC-funded buy: the raw input amount is in USDC base units, not
	// lamports, so proportional sizing would be nonsense
	in := eligibleInput()
	in.Signal.InputAsset = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	in.Signal.InputAmount = 10

	d := e.Evaluate(in)
	assert.True(t, d.Allowed)
	assert.Equal(t, domain.DefaultTradeAmount, d.Amount)
}

func TestEvaluate_SellTokenCapKeysOnSoldToken(t *testing.T) {
	e := NewEvaluator(Config{})

	in := eligibleInput()
	in.Signal.InputAsset = "TOKEN_X"
	in.Signal.OutputAsset = domain.WSOLMint
	in.Signal.Direction = domain.DirectionSell
	in.Counters.TokenTradeCounts["TOKEN_X"] = 1

	assert.Equal(t, DenyTokenCapReached, e.Evaluate(in).Reason)
}

func TestSettings_MutualExclusion(t *testing.T) {
	var s domain.UserSettings

	s.SetBuyOnly(true)
	assert.True(t, s.BuyOnly)
	assert.False(t, s.SellOnly)

	s.SetSellOnly(true)
	assert.False(t, s.BuyOnly)
	assert.True(t, s.SellOnly)

	s.SetBuyOnly(true)
	s.SetBuyOnly(false)
	assert.False(t, s.BuyOnly)
	assert.False(t, s.SellOnly)
}
