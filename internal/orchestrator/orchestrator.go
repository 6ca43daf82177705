// Package orchestrator wires the chain activity source, swap parser, wallet
// registry, and execution queue into one pipeline and exposes the operations
// the outer surfaces (daemon, bot, API) call.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/executor"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/parser"
	"solana-copy-trader/internal/registry"
	"solana-copy-trader/internal/source"
	"solana-copy-trader/internal/storage"
)

// WalletImporter validates a base58 secret key and returns the public key
// with the encrypted secret blob.
type WalletImporter interface {
	ImportWallet(secretBase58 string) (string, []byte, error)
}

// Options configures the orchestrator. Source, Parser, Registry, Queue, and
// the three stores are required; Importer is optional and gates LinkUserWallet,
// Assets is optional and screens target tokens before fan-out.
type Options struct {
	Source        source.ChainActivitySource
	Parser        *parser.SwapParser
	Assets        parser.AssetPolicy
	Registry      *registry.WalletRegistry
	Queue         *executor.Queue
	Users         storage.UserStore
	Wallets       storage.TrackedWalletStore
	Subscriptions storage.SubscriptionStore
	Importer      WalletImporter
	Logger        *slog.Logger
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Running           bool
	SourceConnected   bool
	SourceDegraded    bool
	TrackedWallets    int
	QueueDepth        int
	ExecutingAttempts int
}

// Orchestrator owns the pipeline lifecycle. Start loads persisted state,
// seeds rate-limit counters, and begins pumping source events through the
// parser into the queue; Stop tears the pipeline down in reverse order.
type Orchestrator struct {
	src      source.ChainActivitySource
	parser   *parser.SwapParser
	assets   parser.AssetPolicy
	registry *registry.WalletRegistry
	queue    *executor.Queue
	users    storage.UserStore
	wallets  storage.TrackedWalletStore
	subs     storage.SubscriptionStore
	importer WalletImporter
	logger   *slog.Logger

	started atomic.Bool
	wg      sync.WaitGroup
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		src:      opts.Source,
		parser:   opts.Parser,
		assets:   opts.Assets,
		registry: opts.Registry,
		queue:    opts.Queue,
		users:    opts.Users,
		wallets:  opts.Wallets,
		subs:     opts.Subscriptions,
		importer: opts.Importer,
		logger:   opts.Logger.With(slog.String("component", "orchestrator")),
	}
}

// Start loads persisted wallets, subscriptions, and counters, then starts
// the queue and the event pump. Calling Start on a running orchestrator is a
// no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := o.loadState(ctx); err != nil {
		o.started.Store(false)
		return fmt.Errorf("load state: %w", err)
	}

	o.queue.Start(ctx)

	o.wg.Add(1)
	go o.pump()

	o.logger.Info("pipeline started",
		slog.Int("tracked_wallets", o.registry.ActiveCount()))
	return nil
}

// Stop closes the source, drains the pump, and stops the queue. Calling
// Stop on a stopped orchestrator is a no-op.
func (o *Orchestrator) Stop() {
	if !o.started.CompareAndSwap(true, false) {
		return
	}

	if err := o.src.Close(); err != nil {
		o.logger.Warn("close source", slog.String("error", err.Error()))
	}
	o.wg.Wait()
	o.queue.Stop()
	o.logger.Info("pipeline stopped")
}

// Status reports the current pipeline state.
func (o *Orchestrator) Status() Status {
	running := o.started.Load()
	return Status{
		Running:           running,
		SourceConnected:   running && !o.src.Degraded(),
		SourceDegraded:    o.src.Degraded(),
		TrackedWallets:    o.registry.ActiveCount(),
		QueueDepth:        o.queue.Depth(),
		ExecutingAttempts: o.queue.ExecutingCount(),
	}
}

// RegisterTrackedWallet adds or reactivates an alpha wallet. Registering an
// already-active wallet refreshes its label.
func (o *Orchestrator) RegisterTrackedWallet(ctx context.Context, address, label string) error {
	if address == "" {
		return fmt.Errorf("register wallet: %w", storage.ErrInvalidInput)
	}

	if err := o.wallets.Upsert(ctx, &domain.TrackedWallet{
		Address:  address,
		Label:    label,
		IsActive: true,
		AddedAt:  time.Now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("persist tracked wallet: %w", err)
	}

	o.registry.AddWallet(address, label)
	observability.DefaultMetrics.TrackedWallets.Set(float64(o.registry.ActiveCount()))

	if o.started.Load() {
		if err := o.src.AddWallet(ctx, address); err != nil {
			return fmt.Errorf("watch tracked wallet: %w", err)
		}
	}

	o.logger.Info("tracked wallet registered",
		slog.String("address", address),
		slog.String("label", label))
	return nil
}

// DeregisterTrackedWallet deactivates an alpha wallet. The wallet row and
// its subscriptions are kept; only the active flag flips. Removing an
// unknown wallet is a no-op.
func (o *Orchestrator) DeregisterTrackedWallet(ctx context.Context, address string) error {
	if err := o.wallets.SetActive(ctx, address, false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("deactivate tracked wallet: %w", err)
	}

	o.registry.RemoveWallet(address)
	observability.DefaultMetrics.TrackedWallets.Set(float64(o.registry.ActiveCount()))

	if o.started.Load() {
		if err := o.src.RemoveWallet(ctx, address); err != nil {
			return fmt.Errorf("unwatch tracked wallet: %w", err)
		}
	}

	o.logger.Info("tracked wallet deregistered", slog.String("address", address))
	return nil
}

// RegisterUser creates a user with default settings.
func (o *Orchestrator) RegisterUser(ctx context.Context, userID string) (*domain.User, error) {
	user := &domain.User{
		ID:        userID,
		Settings:  domain.DefaultUserSettings(),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := o.users.Insert(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// LinkUserWallet imports a base58 secret key and attaches the resulting
// custody wallet to the user.
func (o *Orchestrator) LinkUserWallet(ctx context.Context, userID, secretBase58 string) (string, error) {
	if o.importer == nil {
		return "", fmt.Errorf("wallet import is not configured")
	}

	publicKey, blob, err := o.importer.ImportWallet(secretBase58)
	if err != nil {
		return "", fmt.Errorf("import wallet: %w", err)
	}
	if err := o.users.LinkWallet(ctx, userID, publicKey, blob); err != nil {
		return "", fmt.Errorf("link wallet: %w", err)
	}
	return publicKey, nil
}

// UpdateUserSettings applies a partial settings update and returns the
// resulting settings. BuyOnly/SellOnly mutual exclusion is enforced by the
// patch itself.
func (o *Orchestrator) UpdateUserSettings(ctx context.Context, userID string, patch domain.SettingsPatch) (domain.UserSettings, error) {
	user, err := o.users.GetByID(ctx, userID)
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("load user: %w", err)
	}

	patch.Apply(&user.Settings)
	if err := o.users.UpdateSettings(ctx, userID, user.Settings); err != nil {
		return domain.UserSettings{}, fmt.Errorf("save settings: %w", err)
	}
	return user.Settings, nil
}

// SubscribeUser subscribes a user to an active tracked wallet.
func (o *Orchestrator) SubscribeUser(ctx context.Context, userID, address string) error {
	if !o.registry.IsTracked(address) {
		return fmt.Errorf("wallet %s is not tracked: %w", address, storage.ErrNotFound)
	}

	if err := o.subs.Insert(ctx, &domain.Subscription{
		UserID:        userID,
		WalletAddress: address,
		CreatedAt:     time.Now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}
	o.registry.Subscribe(userID, address)
	return nil
}

// UnsubscribeUser removes a user's subscription to a wallet.
func (o *Orchestrator) UnsubscribeUser(ctx context.Context, userID, address string) error {
	if err := o.subs.Delete(ctx, userID, address); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	o.registry.Unsubscribe(userID, address)
	return nil
}

// loadState rebuilds the in-memory registry and rate-limit counters from
// the stores and starts watching every active wallet.
func (o *Orchestrator) loadState(ctx context.Context) error {
	storedWallets, err := o.wallets.List(ctx)
	if err != nil {
		return fmt.Errorf("list tracked wallets: %w", err)
	}
	storedSubs, err := o.subs.List(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	wallets := make([]domain.TrackedWallet, 0, len(storedWallets))
	for _, w := range storedWallets {
		wallets = append(wallets, *w)
	}
	subs := make([]domain.Subscription, 0, len(storedSubs))
	for _, s := range storedSubs {
		subs = append(subs, *s)
	}
	o.registry.Load(wallets, subs)
	observability.DefaultMetrics.TrackedWallets.Set(float64(o.registry.ActiveCount()))

	for _, address := range o.registry.ActiveAddresses() {
		if err := o.src.AddWallet(ctx, address); err != nil {
			return fmt.Errorf("watch wallet %s: %w", address, err)
		}
	}

	users, err := o.users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, user := range users {
		if err := o.queue.SeedCounters(ctx, user.ID); err != nil {
			return fmt.Errorf("seed counters for %s: %w", user.ID, err)
		}
	}
	return nil
}

// pump drains the source, classifies each raw transaction, and fans the
// resulting signal out to every subscriber of the source wallet. It exits
// when the source channel closes.
func (o *Orchestrator) pump() {
	defer o.wg.Done()

	for raw := range o.src.Events() {
		raw := raw
		event := o.parser.Parse(&raw)
		if event == nil {
			continue
		}

		if !o.eligibleTarget(event) {
			continue
		}

		subscribers := o.registry.SubscribersOf(event.SourceWallet)
		if len(subscribers) == 0 {
			continue
		}

		o.logger.Debug("signal fan-out",
			slog.String("wallet", event.SourceWallet),
			slog.String("signature", event.TxSignature),
			slog.String("direction", event.Direction.String()),
			slog.Int("subscribers", len(subscribers)))

		for _, userID := range subscribers {
			o.queue.Submit(userID, event)
		}
	}
}

// eligibleTarget screens the swap's target token against the asset policy.
// Ineligible tokens are dropped before fan-out so no user ever copies them.
func (o *Orchestrator) eligibleTarget(event *domain.SwapEvent) bool {
	if o.assets == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.assets.IsEligibleAsset(ctx, event.TargetAsset()) {
		return true
	}

	observability.RecordSignalDenied("asset-ineligible")
	o.logger.Debug("signal dropped, ineligible asset",
		slog.String("wallet", event.SourceWallet),
		slog.String("signature", event.TxSignature),
		slog.String("mint", event.TargetAsset()))
	return false
}
