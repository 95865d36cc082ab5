package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/api"
	"github.com/park285/cheese-wager/internal/archive"
	appcfg "github.com/park285/cheese-wager/internal/config"
	"github.com/park285/cheese-wager/internal/coordinator"
	"github.com/park285/cheese-wager/internal/gateway"
	"github.com/park285/cheese-wager/internal/journal"
	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/msgcat"
	"github.com/park285/cheese-wager/internal/notify"
	"github.com/park285/cheese-wager/internal/obslog"
	"github.com/park285/cheese-wager/internal/session"
)

// ledgerConn is what main needs from either ledger backend.
type ledgerConn interface {
	ledger.Client
	ledger.Reader
}

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("message catalog init error: %v", err)
	}

	var (
		lc    ledgerConn = ledger.Offline{}
		chain *ledger.Chain
	)
	if cfg.LedgerPartial() {
		obslog.L().Warn("ledger_partially_configured", zap.String("hint", "set RPC_URL, CONTRACT_ADDRESS and OWNER_PRIVATE_KEY"))
	}
	if cfg.LedgerEnabled() {
		dctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		chain, err = ledger.Dial(dctx, ledger.Config{
			RPCURL:          cfg.RPCURL,
			ContractAddress: cfg.ContractAddress,
			PrivateKey:      cfg.OwnerPrivateKey,
			ChainID:         cfg.ChainID,
			CallTimeout:     cfg.LedgerCallTimeout,
			ConfirmTimeout:  cfg.LedgerConfirmTimeout,
		})
		cancel()
		if err != nil {
			log.Fatalf("ledger init error: %v", err)
		}
		defer chain.Close()
		lc = chain
	} else {
		obslog.L().Info("ledger_offline")
	}

	jctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	jr, err := journal.Open(jctx, cfg.RedisURL)
	cancel()
	if err != nil {
		log.Fatalf("journal init error: %v", err)
	}
	defer func() { _ = jr.Close() }()

	opts := []coordinator.Option{
		coordinator.WithCleanupDelay(cfg.AbandonCleanupDelay),
		coordinator.WithSettlementTimeout(cfg.LedgerConfirmTimeout + cfg.LedgerCallTimeout),
		coordinator.WithJournal(jr),
	}
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		defer func() { _ = repo.Close() }()
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = repo.EnsureSchema(sctx)
		cancel()
		if err != nil {
			log.Fatalf("archive schema error: %v", err)
		}
		opts = append(opts, coordinator.WithArchiver(repo))
	}
	hook, err := notify.NewWebhook(cfg.SettlementWebhookURL)
	if err != nil {
		log.Fatalf("webhook init error: %v", err)
	}
	if hook != nil {
		opts = append(opts, coordinator.WithAlerter(hook))
	}

	coord := coordinator.New(session.NewStore(), lc, opts...)
	gw := gateway.New(coord, cat,
		gateway.WithOriginPatterns(cfg.AllowedOrigins...),
		gateway.WithCallTimeout(cfg.LedgerCallTimeout),
	)
	coord.SetListener(gw)

	if chain != nil {
		poller, err := ledger.NewPoller(chain.LogSource(), chain.Address(),
			ledger.WithInterval(cfg.LedgerPollInterval),
			ledger.WithStartBlock(cfg.LedgerPollStartBlock),
			ledger.WithCursorStore(jr),
		)
		if err != nil {
			log.Fatalf("ledger poller init error: %v", err)
		}
		events, unsubscribe := poller.Subscribe(64)
		defer unsubscribe()
		go gw.ConsumeLedgerEvents(ctx, events)
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				obslog.L().Error("ledger_poller_stopped", zap.Error(err))
			}
		}()
	}

	router := api.NewRouter(coord, lc,
		api.WithSettlements(jr),
		api.WithCatalog(cat),
		api.WithWebsocket(gw),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
		api.WithCallTimeout(cfg.LedgerCallTimeout),
		api.WithAvailableLimit(cfg.LedgerAvailableScan),
	)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		obslog.L().Info("server_listen",
			zap.String("addr", cfg.ListenAddr),
			zap.Bool("ledger", lc.Enabled()),
			zap.Bool("archive", cfg.DatabaseURL != ""),
			zap.Bool("redis_journal", cfg.RedisURL != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	obslog.L().Info("server_shutdown")

	// returns once every socket's disconnect has reached the coordinator
	gw.Close()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		obslog.L().Warn("server_shutdown_failed", zap.Error(err))
	}
	// waits for in-flight settlements so their journal entries resolve
	coord.Close()
}
