package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamtip/sponsord/internal/events"
	"github.com/streamtip/sponsord/pkg/logger"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Run only the donation event pipeline (no API, no sponsor key)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		gateway := newGateway(cfg.Ledger)
		defer gateway.Close()

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

		if err := pipeline.Start(context.Background()); err != nil {
			return fmt.Errorf("start event pipeline: %w", err)
		}
		defer pipeline.Stop()

		logger.Info("Event pipeline is running... Press Ctrl+C to stop")
		waitForShutdown()
		return nil
	},
}
