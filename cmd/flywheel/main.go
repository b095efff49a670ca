package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/hadcinema-ops/giveaway/pkg/airdrop"
	"github.com/hadcinema-ops/giveaway/pkg/burn"
	"github.com/hadcinema-ops/giveaway/pkg/config"
	"github.com/hadcinema-ops/giveaway/pkg/cycle"
	"github.com/hadcinema-ops/giveaway/pkg/holders"
	"github.com/hadcinema-ops/giveaway/pkg/jupiter"
	"github.com/hadcinema-ops/giveaway/pkg/logger"
	"github.com/hadcinema-ops/giveaway/pkg/metrics"
	"github.com/hadcinema-ops/giveaway/pkg/pumpportal"
	"github.com/hadcinema-ops/giveaway/pkg/report"
	"github.com/hadcinema-ops/giveaway/pkg/server"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
	"github.com/hadcinema-ops/giveaway/pkg/stats"
	"github.com/hadcinema-ops/giveaway/pkg/swap"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	printStatsFlag := flag.Bool("print-stats", false, "print persisted totals and history, then exit")
	runOnceFlag := flag.Bool("run-once", false, "run a single cycle and exit instead of serving")
	listenAddrFlag := flag.String("listen-addr", "", "HTTP listen address (overrides LISTEN_ADDR)")
	metricsAddrFlag := flag.String("metrics-addr", "", "Prometheus metrics listen address (overrides METRICS_ADDR)")
	flag.Parse()

	// A missing .env file is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *listenAddrFlag != "" {
		cfg.ListenAddr = *listenAddrFlag
	}
	if *metricsAddrFlag != "" {
		cfg.MetricsAddr = *metricsAddrFlag
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Release: version}); err != nil {
			log.Warn("sentry init failed, continuing without it", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	store, err := stats.NewBadgerStore(stats.BadgerStoreConfig{
		Logger:  logger.NewComponent(log, "stats"),
		Dir:     cfg.DBPath,
		Mint:    cfg.Mint.String(),
		Wallet:  cfg.Wallet.String(),
		Network: cfg.Network,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close state db", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *printStatsFlag {
		doc, err := store.Load(ctx)
		if err != nil {
			return err
		}
		report.Render(os.Stdout, doc)
		return nil
	}

	rpcClient, err := chain.NewRPCClient(chain.RPCClientConfig{
		Logger:   logger.NewComponent(log, "rpc"),
		Endpoint: cfg.RPCURL,
	})
	if err != nil {
		return err
	}

	orch, registry, err := buildOrchestrator(log, cfg, store, rpcClient)
	if err != nil {
		return err
	}

	if *runOnceFlag {
		_, err := orch.RunCycle(ctx, "cli")
		return err
	}

	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	scheduler, err := cycle.NewScheduler(cycle.SchedulerConfig{
		Logger:   logger.NewComponent(log, "scheduler"),
		Clock:    clockwork.NewRealClock(),
		Runner:   orch,
		Interval: cfg.CycleInterval,
		Enabled:  cfg.EnableCron && cfg.CanSign(),
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Logger:          logger.NewComponent(log, "server"),
		ListenAddr:      cfg.ListenAddr,
		Store:           store,
		Controller:      orch,
		Chain:           rpcClient,
		Mint:            cfg.Mint,
		Registry:        registry,
		BearerToken:     cfg.AdminBearerToken,
		FrontendOrigins: cfg.FrontendOrigins,
	})
	if err != nil {
		return err
	}

	log.Info("flywheel starting",
		"version", version,
		"mode", cfg.Mode,
		"entry_mode", cfg.EntryMode,
		"network", cfg.Network,
		"mint", cfg.Mint,
		"wallet", cfg.Wallet,
		"can_sign", cfg.CanSign(),
		"cron", cfg.EnableCron,
		"interval", cfg.CycleInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildOrchestrator wires the cycle components for the configured mode. With
// no signer the flywheel serves stats read-only; cycles fail fast with a
// clear error instead of being silently disabled.
func buildOrchestrator(log *slog.Logger, cfg *config.Config, store stats.Store, rpcClient chain.Client) (*cycle.Orchestrator, *holders.Registry, error) {
	events := cycle.NewBroadcaster()

	decimals := func(ctx context.Context) (uint8, error) {
		return rpcClient.MintDecimals(ctx, cfg.Mint)
	}

	if !cfg.CanSign() {
		log.Warn("no signer configured, running read-only")
		orch, err := cycle.NewOrchestrator(cycle.OrchestratorConfig{
			Logger:   logger.NewComponent(log, "cycle"),
			Store:    store,
			Buyer:    unsignedBuyer{},
			Terminal: unsignedTerminal{},
			Decimals: decimals,
			Events:   events,
		})
		return orch, nil, err
	}

	pump, err := pumpportal.NewClient(pumpportal.ClientConfig{
		Logger:  logger.NewComponent(log, "pumpportal"),
		BaseURL: cfg.PumpPortalBaseURL,
		Chain:   rpcClient,
		Mint:    cfg.Mint,
		Signer:  cfg.Signer,
	})
	if err != nil {
		return nil, nil, err
	}

	router, err := jupiter.NewClient(jupiter.ClientConfig{
		Logger:  logger.NewComponent(log, "jupiter"),
		BaseURL: cfg.JupiterBaseURL,
	})
	if err != nil {
		return nil, nil, err
	}

	measurer, err := swap.NewDeltaMeasurer(swap.DeltaMeasurerConfig{
		Logger: logger.NewComponent(log, "swap"),
		Chain:  rpcClient,
	})
	if err != nil {
		return nil, nil, err
	}

	buyer, err := swap.NewBuyer(swap.BuyerConfig{
		Logger:                    logger.NewComponent(log, "swap"),
		Chain:                     rpcClient,
		Router:                    router,
		Fallback:                  pump,
		Measurer:                  measurer,
		Signer:                    cfg.Signer,
		Mint:                      cfg.Mint,
		ReserveSOL:                cfg.ReserveSOL,
		MinSwapSOL:                cfg.MinSwapSOL,
		SlippageBps:               cfg.SlippageBps,
		MinPumpSOL:                cfg.MinPumpSOL,
		TargetPumpSOL:             cfg.TargetPumpSOL,
		PumpSlippagePct:           cfg.PumpSlippagePct,
		PriorityFeeSOL:            cfg.PriorityFeeSOL,
		PrioritizationFeeLamports: cfg.PrioritizationFeeLamports,
	})
	if err != nil {
		return nil, nil, err
	}

	var terminal cycle.Terminal
	var registry *holders.Registry
	switch cfg.Mode {
	case config.ModeAirdrop:
		if cfg.EntryMode == config.EntryModeKeyword {
			registry = holders.NewRegistry()
			registry.Reset(holders.NewKeyword())
		}
		selector, err := holders.NewSelector(holders.SelectorConfig{
			Logger: logger.NewComponent(log, "holders"),
			Chain:  rpcClient,
			Mint:   cfg.Mint,
			Policy: cfg.EntryMode,
		})
		if err != nil {
			return nil, nil, err
		}
		terminal, err = airdrop.NewAirdropper(airdrop.AirdropperConfig{
			Logger:           logger.NewComponent(log, "airdrop"),
			Chain:            rpcClient,
			Selector:         selector,
			Registry:         registry,
			Signer:           cfg.Signer,
			Mint:             cfg.Mint,
			PriorityFeeMicro: cfg.PriorityFeeMicro,
		})
		if err != nil {
			return nil, nil, err
		}
	default:
		terminal, err = burn.NewBurner(burn.BurnerConfig{
			Logger:           logger.NewComponent(log, "burn"),
			Chain:            rpcClient,
			Signer:           cfg.Signer,
			Mint:             cfg.Mint,
			PriorityFeeMicro: cfg.PriorityFeeMicro,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	orch, err := cycle.NewOrchestrator(cycle.OrchestratorConfig{
		Logger:   logger.NewComponent(log, "cycle"),
		Store:    store,
		Claimer:  pump,
		Buyer:    buyer,
		Terminal: terminal,
		Decimals: decimals,
		Events:   events,
		Registry: registry,
	})
	return orch, registry, err
}

// unsignedBuyer and unsignedTerminal back the read-only deployment.
type unsignedBuyer struct{}

func (unsignedBuyer) MarketBuy(ctx context.Context) (*swap.BuyResult, error) {
	return nil, errors.New("no signer configured")
}

type unsignedTerminal struct{}

func (unsignedTerminal) Dispose(ctx context.Context, decimals uint8) (*stats.HistoryEntry, error) {
	return nil, nil
}
