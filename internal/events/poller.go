package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/streamtip/sponsord/internal/ledger"
)

// Cursor marks the newest event the poller has processed. It lives in memory
// for the session only: a restart re-initializes from the most recent event
// without replaying history.
type Cursor struct {
	TxDigest    string
	EventSeq    uint64
	TimestampMs uint64
}

// onChainDonation is the parsed payload of the protocol's donation event.
type onChainDonation struct {
	Donor            string `json:"donor"`
	Beneficiary      string `json:"beneficiary"`
	AmountMinorUnits string `json:"amountMinorUnits"`
	CorrelationRef   string `json:"correlationRef"`
	DonorDisplayName string `json:"donorDisplayName,omitempty"`
	Message          string `json:"message,omitempty"`
}

// Poller watches the ledger's event log for donation events on a fixed
// interval and emits each newly seen event exactly once, newest-first as the
// ledger returns them. It is one of the Deduplicator's two sources; a
// subscribe-capable ledger could back the same contract without polling.
type Poller struct {
	gateway   ledger.Gateway
	eventType string
	interval  time.Duration
	pageSize  int
	out       chan<- TransferEvent

	// Beneficiary filter; empty means emit everything.
	beneficiaries map[string]bool

	mu          sync.Mutex
	cursor      *Cursor
	initialized bool

	log *slog.Logger
}

func NewPoller(gw ledger.Gateway, eventType string, interval time.Duration, pageSize int, beneficiaries []string, out chan<- TransferEvent, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	filter := make(map[string]bool, len(beneficiaries))
	for _, b := range beneficiaries {
		filter[b] = true
	}
	return &Poller{
		gateway:       gw,
		eventType:     eventType,
		interval:      interval,
		pageSize:      pageSize,
		out:           out,
		beneficiaries: filter,
		log:           log,
	}
}

// Run polls until ctx is cancelled. A failed poll is logged and retried on the
// next tick; it never advances or resets the cursor.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First activation: one silent poll that only positions the cursor, so
	// pre-existing history is not replayed as if it just happened.
	if err := p.pollOnce(ctx); err != nil {
		p.log.Error("initial event poll failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.log.Info("event poller stopped", "event_type", p.eventType)
			return
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				p.log.Error("event poll failed", "error", err)
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	page, err := p.gateway.QueryEvents(ctx, p.eventType, p.pageSize, true)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		if len(page.Data) > 0 {
			p.cursor = cursorFrom(page.Data[0])
		}
		p.initialized = true
		return nil
	}

	// Walk newest to oldest, stopping at the first event at or before the
	// cursor. Everything above it is new.
	fresh := make([]ledger.Event, 0, len(page.Data))
	for _, ev := range page.Data {
		if p.reached(ev) {
			break
		}
		fresh = append(fresh, ev)
	}

	for _, ev := range fresh {
		p.emit(ctx, ev)
	}

	if len(fresh) > 0 {
		p.cursor = cursorFrom(page.Data[0])
	}
	return nil
}

// reached reports whether ev is at or before the current cursor. Events that
// share the cursor's timestamp are treated as reached even when the cursor's
// own transaction has fallen off the page: the ledger gives no ordering within
// one millisecond, and dropping an at-most-once candidate beats re-emitting.
func (p *Poller) reached(ev ledger.Event) bool {
	if p.cursor == nil {
		return false
	}
	if ev.ID.TxDigest == p.cursor.TxDigest && ev.ID.Seq() == p.cursor.EventSeq {
		return true
	}
	return ev.Timestamp() <= p.cursor.TimestampMs
}

func (p *Poller) emit(ctx context.Context, ev ledger.Event) {
	var payload onChainDonation
	if err := json.Unmarshal(ev.ParsedJSON, &payload); err != nil {
		p.log.Warn("malformed donation event payload", "tx_digest", ev.ID.TxDigest, "error", err)
		return
	}
	if len(p.beneficiaries) > 0 && !p.beneficiaries[payload.Beneficiary] {
		return
	}

	amount, _ := strconv.ParseUint(payload.AmountMinorUnits, 10, 64)
	event := TransferEvent{
		LedgerTxID:       ev.ID.TxDigest,
		Payer:            payload.Donor,
		Beneficiary:      payload.Beneficiary,
		AmountMinorUnits: amount,
		CorrelationRef:   payload.CorrelationRef,
		DonorDisplayName: payload.DonorDisplayName,
		Message:          payload.Message,
		ObservedAt:       time.Now().UTC(),
		Source:           SourcePoll,
	}

	select {
	case p.out <- event:
	case <-ctx.Done():
	}
}

// Cursor returns a copy of the current cursor, or nil before any event has
// been seen.
func (p *Poller) Cursor() *Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor == nil {
		return nil
	}
	c := *p.cursor
	return &c
}

func cursorFrom(ev ledger.Event) *Cursor {
	return &Cursor{
		TxDigest:    ev.ID.TxDigest,
		EventSeq:    ev.ID.Seq(),
		TimestampMs: ev.Timestamp(),
	}
}
