// Package notify delivers trade outcome notifications to users. Every
// terminal attempt produces exactly one notification; eligibility denials
// produce none. Delivery is best-effort: a failed send is logged and never
// affects trade processing.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"solana-copy-trader/internal/domain"
)

// Sink receives trade outcome events for a user.
type Sink interface {
	// TradeSucceeded reports a completed copy trade.
	TradeSucceeded(ctx context.Context, userID string, rec *domain.TradeRecord) error

	// TradeFailed reports a failed copy trade with its reason.
	TradeFailed(ctx context.Context, userID string, rec *domain.TradeRecord) error
}

// MultiSink fans events out to several sinks. A single sink failure does not
// prevent delivery to the remaining sinks.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(logger *slog.Logger, sinks ...Sink) *MultiSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSink{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "notify")),
	}
}

// Compile-time interface check.
var _ Sink = (*MultiSink)(nil)

// TradeSucceeded fans out a success event.
func (m *MultiSink) TradeSucceeded(ctx context.Context, userID string, rec *domain.TradeRecord) error {
	return m.dispatch(ctx, userID, rec, Sink.TradeSucceeded)
}

// TradeFailed fans out a failure event.
func (m *MultiSink) TradeFailed(ctx context.Context, userID string, rec *domain.TradeRecord) error {
	return m.dispatch(ctx, userID, rec, Sink.TradeFailed)
}

func (m *MultiSink) dispatch(ctx context.Context, userID string, rec *domain.TradeRecord,
	send func(Sink, context.Context, string, *domain.TradeRecord) error) error {

	var errs []string
	for _, s := range m.sinks {
		if err := send(s, ctx, userID, rec); err != nil {
			m.logger.Error("sink failed",
				slog.String("user", userID),
				slog.String("error", err.Error()))
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sink(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// LogSink writes trade outcomes to the structured log. It is the default
// sink when no messaging channel is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With(slog.String("component", "notify"))}
}

// Compile-time interface check.
var _ Sink = (*LogSink)(nil)

// TradeSucceeded logs a completed trade.
func (l *LogSink) TradeSucceeded(_ context.Context, userID string, rec *domain.TradeRecord) error {
	l.logger.Info("trade succeeded",
		slog.String("user", userID),
		slog.String("attempt", rec.ID),
		slog.String("output_asset", rec.OutputAsset),
		slog.Float64("amount_in", rec.AmountIn),
		slog.String("signature", rec.TxSignatureOut))
	return nil
}

// TradeFailed logs a failed trade.
func (l *LogSink) TradeFailed(_ context.Context, userID string, rec *domain.TradeRecord) error {
	l.logger.Warn("trade failed",
		slog.String("user", userID),
		slog.String("attempt", rec.ID),
		slog.String("output_asset", rec.OutputAsset),
		slog.String("reason", rec.Error))
	return nil
}
