package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/streamtip/sponsord/internal/ledger"
)

// PipelineConfig wires the event layer: what to poll, where the push feed
// lives, and how much dedup memory to keep.
type PipelineConfig struct {
	EventType     string
	Interval      time.Duration
	PageSize      int
	Beneficiaries []string
	PushSubject   string
	DedupCapacity int
}

// Pipeline owns both event sources and the deduplicator between them, so the
// merge policy lives in one testable place instead of in consumer wiring.
type Pipeline struct {
	poller  *Poller
	push    *PushFeed
	dedup   *Deduplicator
	emitter Emitter

	events chan TransferEvent
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

func NewPipeline(gw ledger.Gateway, nc *nats.Conn, emitter Emitter, cfg PipelineConfig, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	events := make(chan TransferEvent, 64)

	p := &Pipeline{
		emitter: emitter,
		events:  events,
		log:     log,
	}
	p.dedup = NewDeduplicator(cfg.DedupCapacity, func(ev TransferEvent) {
		if err := emitter.EmitDonation(ev); err != nil {
			log.Error("failed to emit donation event", "ledger_tx_id", ev.LedgerTxID, "error", err)
		}
	}, log)
	p.poller = NewPoller(gw, cfg.EventType, cfg.Interval, cfg.PageSize, cfg.Beneficiaries, events, log)
	p.push = NewPushFeed(nc, cfg.PushSubject, events, log)
	return p
}

func (p *Pipeline) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if err := p.push.Start(ctx); err != nil {
		cancel()
		return err
	}

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.poller.Run(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.dedup.Run(ctx, p.events)
	}()

	p.log.Info("event pipeline started")
	return nil
}

func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.push.Stop()
	p.wg.Wait()
	p.emitter.Close()
	p.log.Info("event pipeline stopped")
}
