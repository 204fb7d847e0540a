package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamtip/sponsord/internal/config"
	"github.com/streamtip/sponsord/internal/events"
	"github.com/streamtip/sponsord/internal/ledger"
	"github.com/streamtip/sponsord/internal/server"
	"github.com/streamtip/sponsord/internal/sponsor"
	"github.com/streamtip/sponsord/internal/store/donationstore"
	"github.com/streamtip/sponsord/pkg/kvstore"
	"github.com/streamtip/sponsord/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sponsorship API and the donation event pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func runServe(cfg config.Config) error {
	sponsorKey, err := sponsor.LoadKeypair(cfg.Sponsor.KeyFile, cfg.Sponsor.KeyEnv)
	if err != nil {
		return fmt.Errorf("load sponsor key: %w", err)
	}
	logger.Info("Sponsor key loaded", "address", sponsorKey.Address())

	kv, err := newKVStore(cfg.KVStore)
	if err != nil {
		return fmt.Errorf("open kvstore: %w", err)
	}
	defer kv.Close()

	gateway := newGateway(cfg.Ledger)
	defer gateway.Close()

	records := donationstore.New(kv)
	estimator := sponsor.NewGasEstimator(gateway, cfg.Policy.GasBuffer, cfg.Policy.MinGasBudget)
	builder := sponsor.NewBuilder(gateway, cfg.Ledger.DonationPackage, sponsorKey.Address())
	executor := sponsor.NewExecutor(gateway, sponsorKey, cfg.Policy.SubmitRetryWindow, logger.L())
	service := sponsor.NewService(gateway, estimator, builder, executor, sponsorKey, records,
		sponsor.Policy{
			MinDonation:          cfg.Policy.MinDonation,
			GasCoinType:          cfg.Ledger.GasCoinType,
			PlaceholderGasBudget: cfg.Policy.PlaceholderGasBudget,
		}, logger.L())

	nc, err := events.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	defer nc.Close()

	emitter := events.NewNATSEmitter(nc, cfg.NATS.SubjectPrefix, cfg.Ledger.CoinDecimals)
	pipeline := events.NewPipeline(gateway, nc, emitter, events.PipelineConfig{
		EventType:     cfg.Ledger.DonationEventType,
		Interval:      cfg.Poller.Interval,
		PageSize:      cfg.Poller.PageSize,
		Beneficiaries: cfg.Poller.Beneficiaries,
		PushSubject:   cfg.NATS.PushSubject,
		DedupCapacity: cfg.NATS.DedupCapacity,
	}, logger.L())

	ctx := context.Background()
	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("start event pipeline: %w", err)
	}
	defer pipeline.Stop()

	srv := server.New(server.Config{Service: service})
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("Sponsorship API started", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	logger.Info("sponsord is running... Press Ctrl+C to stop")
	waitForShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	logger.Info("sponsord stopped")
	return nil
}

func newGateway(cfg config.LedgerCfg) *ledger.Client {
	var opts []ledger.Option
	if cfg.MaxRPS > 0 {
		opts = append(opts, ledger.WithRateLimit(cfg.MaxRPS, cfg.MaxRPS*2))
	}
	return ledger.NewClient(cfg.URL, cfg.Timeout, opts...)
}

func newKVStore(cfg config.KVStoreCfg) (kvstore.KVStore, error) {
	switch cfg.Type {
	case "badger":
		return kvstore.NewBadgerStore(cfg.Directory, cfg.Prefix, kvstore.JSON)
	default:
		return kvstore.NewMemoryStore(kvstore.JSON), nil
	}
}

func waitForShutdown() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}
