package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DonationRow is the row-insert notification published by the application
// datastore when a donation record lands.
type DonationRow struct {
	ID               string    `json:"id"`
	BeneficiaryID    string    `json:"beneficiaryId"`
	DonorDisplayName string    `json:"donorDisplayName"`
	Message          string    `json:"message"`
	AmountNet        uint64    `json:"amountNet"`
	LedgerTxID       string    `json:"ledgerTxId"`
	CreatedAt        time.Time `json:"createdAt"`
	Status           string    `json:"status"`
}

// PushFeed subscribes to the datastore's row-insert subject and converts rows
// into transfer events. It is the second of the Deduplicator's two sources.
type PushFeed struct {
	nc      *nats.Conn
	subject string
	out     chan<- TransferEvent
	sub     *nats.Subscription
	log     *slog.Logger
}

func NewPushFeed(nc *nats.Conn, subject string, out chan<- TransferEvent, log *slog.Logger) *PushFeed {
	if log == nil {
		log = slog.Default()
	}
	return &PushFeed{
		nc:      nc,
		subject: subject,
		out:     out,
		log:     log,
	}
}

func (f *PushFeed) Start(ctx context.Context) error {
	sub, err := f.nc.Subscribe(f.subject, func(msg *nats.Msg) {
		var row DonationRow
		if err := json.Unmarshal(msg.Data, &row); err != nil {
			f.log.Warn("malformed push feed row", "error", err)
			return
		}
		// Rows without a ledger tx id cannot be correlated with the chain
		// and would defeat dedup.
		if row.LedgerTxID == "" {
			f.log.Debug("push feed row without ledger tx id skipped", "row_id", row.ID)
			return
		}

		event := TransferEvent{
			LedgerTxID:       row.LedgerTxID,
			Beneficiary:      row.BeneficiaryID,
			AmountMinorUnits: row.AmountNet,
			DonorDisplayName: row.DonorDisplayName,
			Message:          row.Message,
			ObservedAt:       time.Now().UTC(),
			Source:           SourcePush,
		}

		select {
		case f.out <- event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	f.sub = sub
	f.log.Info("push feed subscribed", "subject", f.subject)
	return nil
}

func (f *PushFeed) Stop() {
	if f.sub != nil {
		_ = f.sub.Unsubscribe()
		f.sub = nil
	}
}
