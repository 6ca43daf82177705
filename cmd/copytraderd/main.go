// Command copytraderd runs the copy-trading daemon: it watches tracked
// wallets on Solana, classifies their swaps, and replicates eligible trades
// for subscribed users through the Jupiter aggregator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/config"
	"solana-copy-trader/internal/custody"
	"solana-copy-trader/internal/executor"
	"solana-copy-trader/internal/filter"
	"solana-copy-trader/internal/notify"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/orchestrator"
	"solana-copy-trader/internal/parser"
	"solana-copy-trader/internal/registry"
	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/source"
	"solana-copy-trader/internal/storage"
	"solana-copy-trader/internal/storage/clickhouse"
	"solana-copy-trader/internal/storage/memory"
	"solana-copy-trader/internal/storage/migrations"
	pgstore "solana-copy-trader/internal/storage/postgres"
)

func main() {
	envFile := flag.String("env", ".env", "Path to .env file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)

	if err := run(logger, *envFile); err != nil {
		logger.Error("daemon exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type stores struct {
	users   storage.UserStore
	wallets storage.TrackedWalletStore
	subs    storage.SubscriptionStore
	ledger  storage.TradeRecordStore
}

func run(logger *slog.Logger, envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var archive executor.Archiver
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		archive = clickhouse.NewTradeActivityStore(conn)
		logger.Info("clickhouse archive enabled")
	}

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)

	vault, err := custody.NewVault(cfg.CustodyPassphrase, rpc)
	if err != nil {
		return fmt.Errorf("custody vault: %w", err)
	}

	src, err := openSource(ctx, cfg, rpc, logger)
	if err != nil {
		return err
	}

	sinks := []notify.Sink{notify.NewLogSink(logger)}
	if cfg.TelegramToken != "" {
		sinks = append(sinks, notify.NewTelegramSink(cfg.TelegramToken))
		logger.Info("telegram notifications enabled")
	}

	queue := executor.NewQueue(executor.Options{
		Evaluator: filter.NewEvaluator(filter.Config{
			MinTradeInterval: cfg.MinTradeInterval,
			FeeBuffer:        cfg.FeeBuffer,
			ScalingFactor:    cfg.ScalingFactor,
		}),
		Aggregator: aggregator.NewJupiterClient(rpc),
		Custody:    vault,
		Users:      st.users,
		Ledger:     st.ledger,
		Sink:       notify.NewMultiSink(logger, sinks...),
		Archive:    archive,
		Logger:     logger,
		Workers:    cfg.Workers,
	})

	assets := parser.NewHeuristicAssetPolicy(
		parser.NewRPCMetadataResolver(rpc), parser.HeuristicPolicyConfig{}, logger)

	orch := orchestrator.New(orchestrator.Options{
		Source:        src,
		Parser:        parser.NewSwapParser(logger),
		Assets:        assets,
		Registry:      registry.NewWalletRegistry(),
		Queue:         queue,
		Users:         st.users,
		Wallets:       st.wallets,
		Subscriptions: st.subs,
		Importer:      vault,
		Logger:        logger,
	})

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	httpServer := startHTTPServer(cfg.MetricsAddr, orch, logger)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.DefaultMetrics.UptimeSeconds.Inc()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	orch.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.String("error", err.Error()))
	}

	logger.Info("shutdown complete")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, func(), error) {
	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		return &stores{
			users:   memory.NewUserStore(),
			wallets: memory.NewTrackedWalletStore(),
			subs:    memory.NewSubscriptionStore(),
			ledger:  memory.NewTradeRecordStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Info("postgres storage ready")

	return &stores{
		users:   pgstore.NewUserStore(pool),
		wallets: pgstore.NewTrackedWalletStore(pool),
		subs:    pgstore.NewSubscriptionStore(pool),
		ledger:  pgstore.NewTradeRecordStore(pool),
	}, pool.Close, nil
}

func openSource(ctx context.Context, cfg *config.Config, rpc solana.RPCClient, logger *slog.Logger) (source.ChainActivitySource, error) {
	switch cfg.SourceStrategy {
	case config.SourcePoll:
		logger.Info("using polling activity source",
			slog.Duration("interval", cfg.PollInterval))
		return source.NewPollingActivitySource(rpc, source.PollOptions{
			Logger:     logger,
			Interval:   cfg.PollInterval,
			BufferSize: cfg.BufferSize,
		}), nil
	default:
		ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("connect websocket: %w", err)
		}
		logger.Info("using websocket activity source",
			slog.String("endpoint", cfg.WSEndpoint))
		return source.NewWSActivitySource(ws, rpc, source.WSOptions{
			Logger:     logger,
			BufferSize: cfg.BufferSize,
		}), nil
	}
}

func startHTTPServer(addr string, orch *orchestrator.Orchestrator, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(orch.Status())
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("http server listening", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.String("error", err.Error()))
		}
	}()
	return server
}
