package events

import (
	"context"
	"log/slog"
	"sync"
)

const DefaultDedupCapacity = 500

// Deduplicator merges the push feed and the on-chain poller into one stream.
// Whichever source delivers a ledger tx id first wins; the other observation
// is silently dropped. The seen-set is bounded: on overflow the oldest half is
// evicted, an approximation rather than exact LRU.
type Deduplicator struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int

	sink func(TransferEvent)
	log  *slog.Logger
}

func NewDeduplicator(capacity int, sink func(TransferEvent), log *slog.Logger) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	if log == nil {
		log = slog.Default()
	}
	return &Deduplicator{
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
		sink:     sink,
		log:      log,
	}
}

// Offer forwards ev to the sink if its ledger tx id has not been seen.
// Returns true when the event was delivered.
func (d *Deduplicator) Offer(ev TransferEvent) bool {
	if ev.LedgerTxID == "" {
		d.log.Warn("dropping event without ledger tx id", "source", ev.Source)
		return false
	}

	d.mu.Lock()
	if _, dup := d.seen[ev.LedgerTxID]; dup {
		d.mu.Unlock()
		d.log.Debug("duplicate event dropped", "ledger_tx_id", ev.LedgerTxID, "source", ev.Source)
		return false
	}

	d.seen[ev.LedgerTxID] = struct{}{}
	d.order = append(d.order, ev.LedgerTxID)
	if len(d.order) > d.capacity {
		d.evictOldestHalf()
	}
	d.mu.Unlock()

	d.sink(ev)
	return true
}

func (d *Deduplicator) evictOldestHalf() {
	// At least one entry must go, or tiny capacities never shrink the set.
	half := d.capacity / 2
	if half == 0 {
		half = 1
	}
	for _, id := range d.order[:half] {
		delete(d.seen, id)
	}
	remaining := make([]string, len(d.order)-half, d.capacity)
	copy(remaining, d.order[half:])
	d.order = remaining
}

// Run consumes events from in until ctx is cancelled. Both sources write to
// the same channel, so delivery order between them is whatever arrival order
// happens to be; no cross-source ordering is guaranteed.
func (d *Deduplicator) Run(ctx context.Context, in <-chan TransferEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			d.Offer(ev)
		}
	}
}

// Len reports the current seen-set size.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
